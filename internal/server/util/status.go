// Package util holds helpers shared by the HTTP handlers.
package util

import (
	"errors"
	"net/http"

	"github.com/cartonhq/carton/pkg/common"
)

// StatusForError maps core errors onto HTTP status codes and a client-safe
// message. Validation failures carry their reason through; everything else
// gets a generic message so internals never leak.
func StatusForError(err error) (int, string) {
	var ve *common.ValidationError
	switch {
	case err == nil:
		return http.StatusOK, "OK"
	case errors.As(err, &ve):
		return http.StatusBadRequest, ve.Error()
	case errors.Is(err, common.ErrNotFound):
		return http.StatusNotFound, "Not found"
	case errors.Is(err, common.ErrLockHeld):
		return http.StatusConflict, "Namespace is busy, try again later"
	case errors.Is(err, common.ErrConsistency):
		return http.StatusInternalServerError, "Projection out of sync, rebuild required"
	case errors.Is(err, common.ErrCollaborator):
		return http.StatusBadGateway, "Upstream service unavailable"
	default:
		return http.StatusInternalServerError, "Internal server error"
	}
}
