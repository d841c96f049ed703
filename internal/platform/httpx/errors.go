// Package httpx provides HTTP response utilities.
package httpx

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/odyssey-erp/odyssey-supply/internal/shared"
)

type loggerContextKey struct{}

// ContextWithLogger stores the request-scoped logger.
func ContextWithLogger(ctx context.Context, logger *slog.Logger) context.Context {
	return context.WithValue(ctx, loggerContextKey{}, logger)
}

// LoggerFromContext returns the request-scoped logger, or slog.Default.
func LoggerFromContext(ctx context.Context) *slog.Logger {
	if logger, ok := ctx.Value(loggerContextKey{}).(*slog.Logger); ok && logger != nil {
		return logger
	}
	return slog.Default()
}

// RespondError maps domain errors to HTTP responses using RFC7807. Unclassified
// errors are logged with the request logger and answered with a 500 that carries
// only the request id.
func RespondError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, shared.ErrNotFound):
		Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, shared.ErrConflict):
		Problem(w, http.StatusConflict, "Conflict", err.Error())
	case errors.Is(err, shared.ErrValidation):
		Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	case errors.Is(err, shared.ErrForbidden):
		Problem(w, http.StatusForbidden, "Forbidden", err.Error())
	case errors.Is(err, shared.ErrUnauthenticated):
		Problem(w, http.StatusUnauthorized, "Unauthorized", err.Error())
	default:
		reqID := middleware.GetReqID(r.Context())
		LoggerFromContext(r.Context()).Error("request failed",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.String("request_id", reqID),
			slog.Any("error", err),
		)
		detail := ""
		if reqID != "" {
			detail = "request id " + reqID
		}
		Problem(w, http.StatusInternalServerError, "Internal Error", detail)
	}
}

// IsClientError reports whether err maps to a 4xx response.
func IsClientError(err error) bool {
	return errors.Is(err, shared.ErrNotFound) ||
		errors.Is(err, shared.ErrConflict) ||
		errors.Is(err, shared.ErrValidation) ||
		errors.Is(err, shared.ErrForbidden) ||
		errors.Is(err, shared.ErrUnauthenticated)
}
