package handlers

import (
	"net/http"

	"github.com/marmos91/storagehub/pkg/provision"
)

// StorageHandler serves the aggregate storage listing.
type StorageHandler struct {
	tracker *provision.UsageTracker
}

// NewStorageHandler creates a StorageHandler.
func NewStorageHandler(t *provision.UsageTracker) *StorageHandler {
	return &StorageHandler{tracker: t}
}

// List handles GET /api/v1/storages.
// Returns every managed entity with a fresh usage sample. A failed
// sample for one entity degrades that entry instead of failing the
// whole listing.
func (h *StorageHandler) List(w http.ResponseWriter, r *http.Request) {
	reports, err := h.tracker.ListUsage(r.Context())
	if err != nil {
		InternalServerError(w, "Failed to list storages")
		return
	}

	WriteJSONOK(w, reports)
}
