package procurement

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-supply/internal/shared"
)

func routerAs(h *Handler, p shared.Principal) http.Handler {
	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			next.ServeHTTP(w, req.WithContext(shared.ContextWithPrincipal(req.Context(), p)))
		})
	})
	r.Route("/requests", h.MountRequestRoutes)
	r.Route("/purchase-orders", h.MountOrderRoutes)
	r.Route("/receipts", h.MountReceiptRoutes)
	return r
}

func serve(h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestRequestApproveAndRejectRoutes(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	h := NewHandler(f.svc)
	req, err := f.svc.CreateRequest(ctx, requester, CreateRequestInput{
		LocationName: "Jakarta",
		Lines:        []RequestLineInput{{Name: "Bolt M8", Amount: 4}},
	})
	require.NoError(t, err)
	approvePath := fmt.Sprintf("/requests/%d/approve", req.ID)
	rejectPath := "/requests/code/" + req.RequestCode + "/reject"

	tests := []struct {
		name   string
		as     shared.Principal
		method string
		path   string
		status int
		body   string
	}{
		{name: "requester cannot approve", as: requester, method: http.MethodPost, path: approvePath, status: http.StatusForbidden},
		{name: "staff approves", as: staffA, method: http.MethodPost, path: approvePath, status: http.StatusOK, body: "Request purchase approved successfully"},
		{name: "second approval conflicts", as: staffB, method: http.MethodPost, path: approvePath, status: http.StatusConflict},
		{name: "malformed id", as: staffA, method: http.MethodPost, path: "/requests/abc/approve", status: http.StatusBadRequest},
		{name: "requester cannot reject", as: requester, method: http.MethodPost, path: rejectPath, status: http.StatusForbidden},
		{name: "staff rejects", as: staffA, method: http.MethodPost, path: rejectPath, status: http.StatusOK, body: `"status":"REJECTED"`},
		{name: "second reject conflicts", as: staffB, method: http.MethodPost, path: rejectPath, status: http.StatusConflict},
		{name: "unknown code", as: staffA, method: http.MethodPost, path: "/requests/code/MPR-9999JKT/reject", status: http.StatusNotFound},
	}
	for _, tc := range tests {
		rec := serve(routerAs(h, tc.as), tc.method, tc.path, "")
		require.Equal(t, tc.status, rec.Code, "%s: %s", tc.name, rec.Body.String())
		if tc.body != "" {
			require.Contains(t, rec.Body.String(), tc.body, tc.name)
		}
	}
}

func TestOrderAndReceiptApproveRoutes(t *testing.T) {
	f := newFixture(t)
	h := NewHandler(f.svc)
	req := f.approvedRequest(t)
	po, err := f.svc.CreateOrder(context.Background(), staffA, orderInput("PO-001", req.RequestCode))
	require.NoError(t, err)
	approvePath := fmt.Sprintf("/purchase-orders/%d/approve", po.ID)

	rec := serve(routerAs(h, staffA), http.MethodPost, approvePath, "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "(1/3 approvals)")

	rec = serve(routerAs(h, staffA), http.MethodPost, approvePath, "")
	require.Equal(t, http.StatusConflict, rec.Code)

	rec = serve(routerAs(h, unsigned), http.MethodPost, approvePath, "")
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Contains(t, rec.Body.String(), "signature registered")

	var res OrderApproval
	for _, p := range []shared.Principal{staffB, staffC} {
		res, err = f.svc.ApproveOrder(context.Background(), p, po.ID)
		require.NoError(t, err)
	}
	receipt, err := f.repo.GetReceipt(context.Background(), *res.ReceiptID)
	require.NoError(t, err)
	bolt := receipt.Items[0]

	line := fmt.Sprintf(`{"igr_item_id":%d,"warehouse_name":"Main Warehouse","item_code":"BLT-01","is_received":true}`, bolt.ID)
	rec = serve(routerAs(h, staffA), http.MethodPost, fmt.Sprintf("/receipts/%d/approve", receipt.ID), `{"items":[`+line+`,`+line+`]}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Contains(t, rec.Body.String(), "more than once")
	require.Empty(t, f.repo.snapshot().records)
}
