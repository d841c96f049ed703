package history

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/odyssey-supply/internal/platform/httpx"
	"github.com/odyssey-erp/odyssey-supply/internal/shared"
)

// Handler serves the history endpoints.
type Handler struct {
	service *Service
}

// NewHandler constructs Handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// MountRoutes registers /incoming and /outgoing.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/incoming", h.list(TypeIncoming))
	r.Get("/outgoing", h.list(TypeOutgoing))
}

func (h *Handler) list(typ Type) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, err := httpx.Principal(r)
		if err != nil {
			httpx.RespondError(w, r, err)
			return
		}
		f := filterFromQuery(r)
		var (
			records []Record
			page    shared.Pagination
		)
		if typ == TypeIncoming {
			records, page, err = h.service.ListIncoming(r.Context(), p, f)
		} else {
			records, page, err = h.service.ListOutgoing(r.Context(), p, f)
		}
		if err != nil {
			httpx.RespondError(w, r, err)
			return
		}
		httpx.JSON(w, http.StatusOK, httpx.Envelope{Data: records, Pagination: &page})
	}
}

func filterFromQuery(r *http.Request) Filter {
	q := r.URL.Query()
	return Filter{
		ItemCode:      q.Get("item_code"),
		ItemName:      q.Get("item_name"),
		WarehouseName: q.Get("warehouse_name"),
		StartDate:     q.Get("start_date"),
		EndDate:       q.Get("end_date"),
		PONumber:      q.Get("po_number"),
		IGRNumber:     q.Get("igr_number"),
		MPRNumber:     q.Get("mpr_number"),
		DONumber:      q.Get("do_number"),
		LocationName:  q.Get("location_name"),
		Page:          httpx.PageParams(r),
	}
}
