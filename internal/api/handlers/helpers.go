package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/marmos91/storagehub/pkg/provision/models"
)

// decodeJSONBody decodes a JSON request body into the provided pointer.
// Returns true if successful, false if decoding fails (error response is
// written automatically).
func decodeJSONBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		BadRequest(w, "Invalid request body")
		return false
	}
	return true
}

// writeEntityError maps a provisioning error to its problem response.
// Domain errors carry sanitized, operator-facing messages, so their text
// is passed through as the detail.
func writeEntityError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, models.ErrNameInvalid):
		BadRequest(w, err.Error())
	case errors.Is(err, models.ErrEntityNotFound):
		NotFound(w, err.Error())
	case errors.Is(err, models.ErrEntityExists):
		Conflict(w, err.Error())
	case errors.Is(err, models.ErrConcurrentModification):
		Conflict(w, err.Error())
	case errors.Is(err, models.ErrQuotaInvalid):
		UnprocessableEntity(w, err.Error())
	case errors.Is(err, models.ErrBackendUnavailable):
		ServiceUnavailable(w, err.Error())
	case errors.Is(err, models.ErrRollbackFailed):
		InternalServerError(w, err.Error())
	default:
		InternalServerError(w, "Internal error")
	}
}
