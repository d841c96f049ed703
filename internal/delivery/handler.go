package delivery

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/odyssey-supply/internal/platform/httpx"
)

// Handler exposes delivery order endpoints.
type Handler struct {
	service *Service
}

// NewHandler creates a new delivery handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// MountRoutes registers /api/delivery-orders.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.list)
	r.Post("/", h.create)
	r.Get("/{id}", h.get)
	r.Put("/{id}", h.update)
	r.Delete("/{id}", h.delete)
	r.Post("/{id}/approve", h.approve)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	p, err := httpx.Principal(r)
	if err != nil {
		httpx.RespondError(w, r, err)
		return
	}
	q := r.URL.Query()
	orders, page, err := h.service.ListOrders(r.Context(), p, Filter{
		Status: Status(q.Get("status")),
		Search: q.Get("search"),
		Page:   httpx.PageParams(r),
	})
	if err != nil {
		httpx.RespondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, httpx.Envelope{Data: orders, Pagination: &page})
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	p, err := httpx.Principal(r)
	if err != nil {
		httpx.RespondError(w, r, err)
		return
	}
	var input CreateOrderInput
	if err := httpx.DecodeJSON(r, &input); err != nil {
		httpx.RespondError(w, r, err)
		return
	}
	do, err := h.service.CreateOrder(r.Context(), p, input)
	if err != nil {
		httpx.RespondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, httpx.Envelope{Message: "Delivery order created successfully", Data: do})
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	p, err := httpx.Principal(r)
	if err != nil {
		httpx.RespondError(w, r, err)
		return
	}
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, r, err)
		return
	}
	do, err := h.service.GetOrder(r.Context(), p, id)
	if err != nil {
		httpx.RespondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, httpx.Envelope{Data: do})
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	p, err := httpx.Principal(r)
	if err != nil {
		httpx.RespondError(w, r, err)
		return
	}
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, r, err)
		return
	}
	var input UpdateOrderInput
	if err := httpx.DecodeJSON(r, &input); err != nil {
		httpx.RespondError(w, r, err)
		return
	}
	do, err := h.service.UpdateOrder(r.Context(), p, id, input)
	if err != nil {
		httpx.RespondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, httpx.Envelope{Message: "Delivery order updated successfully", Data: do})
}

func (h *Handler) delete(w http.ResponseWriter, r *http.Request) {
	p, err := httpx.Principal(r)
	if err != nil {
		httpx.RespondError(w, r, err)
		return
	}
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, r, err)
		return
	}
	if err := h.service.DeleteOrder(r.Context(), p, id); err != nil {
		httpx.RespondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, httpx.Envelope{Message: "Delivery order deleted successfully"})
}

func (h *Handler) approve(w http.ResponseWriter, r *http.Request) {
	p, err := httpx.Principal(r)
	if err != nil {
		httpx.RespondError(w, r, err)
		return
	}
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, r, err)
		return
	}
	result, err := h.service.ApproveOrder(r.Context(), p, id)
	if err != nil {
		httpx.RespondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, httpx.Envelope{Message: result.Message, Data: result})
}
