package inventory

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/odyssey-supply/internal/platform/httpx"
)

// Handler wires HTTP endpoints for inventory module.
type Handler struct {
	service *Service
}

// NewHandler constructs inventory handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// MountRoutes registers inventory routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.list)
	r.Post("/", h.addItem)
}

// MountItemRoutes registers the per-item summary.
func (h *Handler) MountItemRoutes(r chi.Router) {
	r.Get("/{code}/summary", h.summary)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	p, err := httpx.Principal(r)
	if err != nil {
		httpx.RespondError(w, r, err)
		return
	}
	q := r.URL.Query()
	entries, page, err := h.service.ListEntries(r.Context(), p, ListFilter{
		WarehouseName: q.Get("warehouse_name"),
		ItemCode:      q.Get("item_code"),
		Search:        q.Get("search"),
		Page:          httpx.PageParams(r),
	})
	if err != nil {
		httpx.RespondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, httpx.Envelope{Data: entries, Pagination: &page})
}

func (h *Handler) addItem(w http.ResponseWriter, r *http.Request) {
	p, err := httpx.Principal(r)
	if err != nil {
		httpx.RespondError(w, r, err)
		return
	}
	var input AddItemInput
	if err := httpx.DecodeJSON(r, &input); err != nil {
		httpx.RespondError(w, r, err)
		return
	}
	entry, err := h.service.AddItemToWarehouse(r.Context(), p, input)
	if err != nil {
		httpx.RespondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, httpx.Envelope{Message: "Item added to warehouse successfully", Data: entry})
}

func (h *Handler) summary(w http.ResponseWriter, r *http.Request) {
	p, err := httpx.Principal(r)
	if err != nil {
		httpx.RespondError(w, r, err)
		return
	}
	summary, err := h.service.Summary(r.Context(), p, chi.URLParam(r, "code"))
	if err != nil {
		httpx.RespondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, httpx.Envelope{Data: summary})
}
