package httpx

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-supply/internal/shared"
)

func TestRespondErrorLogsInternalErrors(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	var handler http.Handler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		RespondError(w, r.WithContext(ContextWithLogger(r.Context(), logger)), errors.New("connection reset by peer"))
	})
	handler = middleware.RequestID(handler)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/receipts/3/approve", nil))

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	require.Contains(t, rec.Body.String(), `"detail":"request id `)
	require.NotContains(t, rec.Body.String(), "connection reset")
	require.Contains(t, buf.String(), `"msg":"request failed"`)
	require.Contains(t, buf.String(), `"error":"connection reset by peer"`)
	require.Contains(t, buf.String(), `"path":"/api/receipts/3/approve"`)
}

func TestRespondErrorMapsClasses(t *testing.T) {
	cases := []struct {
		err    error
		status int
	}{
		{fmt.Errorf("%w: warehouse %q", shared.ErrNotFound, "North"), http.StatusNotFound},
		{shared.ErrConflict, http.StatusConflict},
		{shared.ErrValidation, http.StatusBadRequest},
		{shared.ErrForbidden, http.StatusForbidden},
		{shared.ErrUnauthenticated, http.StatusUnauthorized},
	}
	for _, tc := range cases {
		var buf bytes.Buffer
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req = req.WithContext(ContextWithLogger(req.Context(), slog.New(slog.NewTextHandler(&buf, nil))))
		rec := httptest.NewRecorder()
		RespondError(rec, req, tc.err)
		require.Equal(t, tc.status, rec.Code, tc.err.Error())
		require.Empty(t, buf.String())
	}
}
