package handlers

import (
	"log/slog"
	"net/http"

	"queue-ticket/internal/status"

	"github.com/pocketbase/pocketbase/apis"
	"github.com/pocketbase/pocketbase/core"
)

// toAPIError maps a service error to the HTTP error PocketBase renders.
func toAPIError(e *core.RequestEvent, err error) error {
	kind := status.KindOf(err)
	switch kind {
	case status.KindValidation:
		return apis.NewBadRequestError(err.Error(), nil)
	case status.KindNotFound:
		return apis.NewNotFoundError(err.Error(), nil)
	case status.KindConflict, status.KindInvalidTransition, status.KindEmptyQueue:
		return apis.NewApiError(http.StatusConflict, err.Error(), nil)
	case status.KindStorageUnavailable, status.KindStorageTimeout:
		slog.Error("storage failure", "method", e.Request.Method, "path", e.Request.URL.Path, "kind", kind, "error", err)
		e.Response.Header().Set("Retry-After", "1")
		return apis.NewApiError(http.StatusServiceUnavailable, "Storage is unavailable, try again shortly.", nil)
	}

	slog.Error("unexpected error", "method", e.Request.Method, "path", e.Request.URL.Path, "error", err)
	return apis.NewInternalServerError("Something went wrong.", nil)
}
