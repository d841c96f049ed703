package procurement

import (
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/odyssey-supply/internal/platform/httpx"
	"github.com/odyssey-erp/odyssey-supply/internal/shared"
)

// Handler exposes the MPR, purchase order and goods receipt endpoints.
type Handler struct {
	service *Service
}

// NewHandler constructs procurement handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// MountRequestRoutes registers /api/requests.
func (h *Handler) MountRequestRoutes(r chi.Router) {
	r.Get("/", h.listRequests)
	r.Post("/", h.createRequest)
	r.Get("/{id}", h.getRequest)
	r.Put("/{id}", h.updateRequest)
	r.Delete("/{id}", h.deleteRequest)
	r.Post("/{id}/approve", h.approveRequest)
	r.Post("/code/{code}/reject", h.rejectRequest)
	r.Post("/code/{code}/complete", h.completeRequest)
}

// MountOrderRoutes registers /api/purchase-orders.
func (h *Handler) MountOrderRoutes(r chi.Router) {
	r.Get("/", h.listOrders)
	r.Post("/", h.createOrder)
	r.Get("/{id}", h.getOrder)
	r.Put("/{id}", h.updateOrder)
	r.Delete("/{id}", h.deleteOrder)
	r.Post("/{id}/approve", h.approveOrder)
}

// MountReceiptRoutes registers /api/receipts.
func (h *Handler) MountReceiptRoutes(r chi.Router) {
	r.Get("/", h.listReceipts)
	r.Get("/{id}", h.getReceipt)
	r.Post("/{id}/approve", h.approveReceipt)
	r.Delete("/{id}", h.deleteReceipt)
}

// principalAndID reads the caller and the {id} URL parameter.
func principalAndID(r *http.Request) (shared.Principal, int64, error) {
	p, err := httpx.Principal(r)
	if err != nil {
		return shared.Principal{}, 0, err
	}
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		return shared.Principal{}, 0, err
	}
	return p, id, nil
}

func (h *Handler) listRequests(w http.ResponseWriter, r *http.Request) {
	p, err := httpx.Principal(r)
	if err != nil {
		httpx.RespondError(w, r, err)
		return
	}
	q := r.URL.Query()
	reqs, page, err := h.service.ListRequests(r.Context(), p, RequestFilter{
		Status: RequestStatus(q.Get("status")),
		Search: q.Get("search"),
		Page:   httpx.PageParams(r),
	})
	if err != nil {
		httpx.RespondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, httpx.Envelope{Data: reqs, Pagination: &page})
}

func (h *Handler) createRequest(w http.ResponseWriter, r *http.Request) {
	p, err := httpx.Principal(r)
	if err != nil {
		httpx.RespondError(w, r, err)
		return
	}
	var input CreateRequestInput
	if err := httpx.DecodeJSON(r, &input); err != nil {
		httpx.RespondError(w, r, err)
		return
	}
	req, err := h.service.CreateRequest(r.Context(), p, input)
	if err != nil {
		httpx.RespondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, httpx.Envelope{Message: "Request purchase created successfully", Data: req})
}

func (h *Handler) getRequest(w http.ResponseWriter, r *http.Request) {
	p, id, err := principalAndID(r)
	if err != nil {
		httpx.RespondError(w, r, err)
		return
	}
	req, err := h.service.GetRequest(r.Context(), p, id)
	if err != nil {
		httpx.RespondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, httpx.Envelope{Data: req})
}

func (h *Handler) updateRequest(w http.ResponseWriter, r *http.Request) {
	p, id, err := principalAndID(r)
	if err != nil {
		httpx.RespondError(w, r, err)
		return
	}
	var input UpdateRequestInput
	if err := httpx.DecodeJSON(r, &input); err != nil {
		httpx.RespondError(w, r, err)
		return
	}
	req, err := h.service.UpdateRequest(r.Context(), p, id, input)
	if err != nil {
		httpx.RespondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, httpx.Envelope{Message: "Request purchase updated successfully", Data: req})
}

func (h *Handler) deleteRequest(w http.ResponseWriter, r *http.Request) {
	p, id, err := principalAndID(r)
	if err != nil {
		httpx.RespondError(w, r, err)
		return
	}
	if err := h.service.DeleteRequest(r.Context(), p, id); err != nil {
		httpx.RespondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, httpx.Envelope{Message: "Request purchase deleted successfully"})
}

func (h *Handler) approveRequest(w http.ResponseWriter, r *http.Request) {
	p, id, err := principalAndID(r)
	if err != nil {
		httpx.RespondError(w, r, err)
		return
	}
	req, err := h.service.ApproveRequest(r.Context(), p, id)
	if err != nil {
		httpx.RespondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, httpx.Envelope{Message: "Request purchase approved successfully", Data: req})
}

func (h *Handler) rejectRequest(w http.ResponseWriter, r *http.Request) {
	p, err := httpx.Principal(r)
	if err != nil {
		httpx.RespondError(w, r, err)
		return
	}
	req, err := h.service.RejectRequest(r.Context(), p, chi.URLParam(r, "code"))
	if err != nil {
		httpx.RespondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, httpx.Envelope{Message: "Request purchase rejected successfully", Data: req})
}

func (h *Handler) completeRequest(w http.ResponseWriter, r *http.Request) {
	p, err := httpx.Principal(r)
	if err != nil {
		httpx.RespondError(w, r, err)
		return
	}
	changed, err := h.service.CompleteRequest(r.Context(), p, chi.URLParam(r, "code"))
	if err != nil {
		httpx.RespondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, httpx.Envelope{
		Message: fmt.Sprintf("%d item request(s) marked as COMPLETED", changed),
		Data:    map[string]int64{"updated": changed},
	})
}

func (h *Handler) listOrders(w http.ResponseWriter, r *http.Request) {
	p, err := httpx.Principal(r)
	if err != nil {
		httpx.RespondError(w, r, err)
		return
	}
	q := r.URL.Query()
	orders, page, err := h.service.ListOrders(r.Context(), p, OrderFilter{
		Status: OrderStatus(q.Get("status")),
		Search: q.Get("search"),
		Page:   httpx.PageParams(r),
	})
	if err != nil {
		httpx.RespondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, httpx.Envelope{Data: orders, Pagination: &page})
}

func (h *Handler) createOrder(w http.ResponseWriter, r *http.Request) {
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
	po, err := h.service.CreateOrder(r.Context(), p, input)
	if err != nil {
		httpx.RespondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, httpx.Envelope{Message: "Purchase order created successfully", Data: po})
}

func (h *Handler) getOrder(w http.ResponseWriter, r *http.Request) {
	p, id, err := principalAndID(r)
	if err != nil {
		httpx.RespondError(w, r, err)
		return
	}
	po, err := h.service.GetOrder(r.Context(), p, id)
	if err != nil {
		httpx.RespondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, httpx.Envelope{Data: po})
}

func (h *Handler) updateOrder(w http.ResponseWriter, r *http.Request) {
	p, id, err := principalAndID(r)
	if err != nil {
		httpx.RespondError(w, r, err)
		return
	}
	var input UpdateOrderInput
	if err := httpx.DecodeJSON(r, &input); err != nil {
		httpx.RespondError(w, r, err)
		return
	}
	po, err := h.service.UpdateOrder(r.Context(), p, id, input)
	if err != nil {
		httpx.RespondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, httpx.Envelope{Message: "Purchase order updated successfully", Data: po})
}

func (h *Handler) deleteOrder(w http.ResponseWriter, r *http.Request) {
	p, id, err := principalAndID(r)
	if err != nil {
		httpx.RespondError(w, r, err)
		return
	}
	if err := h.service.DeleteOrder(r.Context(), p, id); err != nil {
		httpx.RespondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, httpx.Envelope{Message: "Purchase order deleted successfully"})
}

func (h *Handler) approveOrder(w http.ResponseWriter, r *http.Request) {
	p, id, err := principalAndID(r)
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

func (h *Handler) listReceipts(w http.ResponseWriter, r *http.Request) {
	p, err := httpx.Principal(r)
	if err != nil {
		httpx.RespondError(w, r, err)
		return
	}
	q := r.URL.Query()
	receipts, page, err := h.service.ListReceipts(r.Context(), p, ReceiptFilter{
		Status: ReceiptStatus(q.Get("status")),
		Search: q.Get("search"),
		Page:   httpx.PageParams(r),
	})
	if err != nil {
		httpx.RespondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, httpx.Envelope{Data: receipts, Pagination: &page})
}

func (h *Handler) getReceipt(w http.ResponseWriter, r *http.Request) {
	p, id, err := principalAndID(r)
	if err != nil {
		httpx.RespondError(w, r, err)
		return
	}
	receipt, err := h.service.GetReceipt(r.Context(), p, id)
	if err != nil {
		httpx.RespondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, httpx.Envelope{Data: receipt})
}

func (h *Handler) approveReceipt(w http.ResponseWriter, r *http.Request) {
	p, id, err := principalAndID(r)
	if err != nil {
		httpx.RespondError(w, r, err)
		return
	}
	var input ApproveReceiptInput
	if err := httpx.DecodeJSON(r, &input); err != nil {
		httpx.RespondError(w, r, err)
		return
	}
	result, err := h.service.ApproveReceipt(r.Context(), p, id, input)
	if err != nil {
		httpx.RespondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, httpx.Envelope{Message: result.Message, Data: result})
}

func (h *Handler) deleteReceipt(w http.ResponseWriter, r *http.Request) {
	p, id, err := principalAndID(r)
	if err != nil {
		httpx.RespondError(w, r, err)
		return
	}
	if err := h.service.DeleteReceipt(r.Context(), p, id); err != nil {
		httpx.RespondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, httpx.Envelope{Message: "IGR deleted successfully"})
}
