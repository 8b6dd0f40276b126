package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/marmos91/storagehub/pkg/provision"
	"github.com/marmos91/storagehub/pkg/provision/models"
)

// EntityHandler handles entity management endpoints for one entity
// kind. The same handler serves /users and /groups; only the kind
// differs.
type EntityHandler struct {
	kind         models.Kind
	orchestrator *provision.Orchestrator
	tracker      *provision.UsageTracker
}

// NewEntityHandler creates an EntityHandler for the given kind.
func NewEntityHandler(kind models.Kind, o *provision.Orchestrator, t *provision.UsageTracker) *EntityHandler {
	return &EntityHandler{kind: kind, orchestrator: o, tracker: t}
}

// CreateEntityRequest is the request body for POST /api/v1/{users,groups}.
type CreateEntityRequest struct {
	Name     string        `json:"name"`
	Quota    *models.Quota `json:"quota,omitempty"`
	OwnerUID *uint32       `json:"owner_uid,omitempty"`
	OwnerGID *uint32       `json:"owner_gid,omitempty"`
}

// RenameEntityRequest is the request body for the rename endpoint.
type RenameEntityRequest struct {
	NewName string `json:"new_name"`
}

// CreateEntityResponse is the response body for entity creation.
// QuotaError is set only in best-effort quota mode, when the entity was
// kept despite a failed quota step.
type CreateEntityResponse struct {
	models.EntityView
	QuotaError string `json:"quota_error,omitempty"`
}

// Create handles POST /api/v1/{users,groups}.
func (h *EntityHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateEntityRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}

	if req.Name == "" {
		BadRequest(w, "Entity name is required")
		return
	}

	result, err := h.orchestrator.CreateEntity(r.Context(), provision.CreateRequest{
		Kind:     h.kind,
		Name:     req.Name,
		Quota:    req.Quota,
		OwnerUID: req.OwnerUID,
		OwnerGID: req.OwnerGID,
	})
	if err != nil {
		writeEntityError(w, err)
		return
	}

	WriteJSONCreated(w, CreateEntityResponse{
		EntityView: result.Entity,
		QuotaError: result.QuotaError,
	})
}

// List handles GET /api/v1/{users,groups}.
func (h *EntityHandler) List(w http.ResponseWriter, r *http.Request) {
	views, err := h.orchestrator.ListEntities(r.Context())
	if err != nil {
		InternalServerError(w, "Failed to list entities")
		return
	}

	response := make([]models.EntityView, 0, len(views))
	for _, v := range views {
		if v.Kind == h.kind {
			response = append(response, v)
		}
	}

	WriteJSONOK(w, response)
}

// Get handles GET /api/v1/{users,groups}/{name}.
func (h *EntityHandler) Get(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if name == "" {
		BadRequest(w, "Entity name is required")
		return
	}

	view, err := h.orchestrator.GetEntity(r.Context(), h.kind, name)
	if err != nil {
		writeEntityError(w, err)
		return
	}

	WriteJSONOK(w, view)
}

// UpdateQuota handles PUT /api/v1/{users,groups}/{name}/quota.
// The body carries the new limits; an empty object clears the quota.
func (h *EntityHandler) UpdateQuota(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if name == "" {
		BadRequest(w, "Entity name is required")
		return
	}

	var quota models.Quota
	if !decodeJSONBody(w, r, &quota) {
		return
	}

	view, err := h.orchestrator.UpdateQuota(r.Context(), h.kind, name, &quota)
	if err != nil {
		writeEntityError(w, err)
		return
	}

	WriteJSONOK(w, view)
}

// Delete handles DELETE /api/v1/{users,groups}/{name}.
// Idempotent: deleting an absent entity also returns 204.
func (h *EntityHandler) Delete(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if name == "" {
		BadRequest(w, "Entity name is required")
		return
	}

	if err := h.orchestrator.DeleteEntity(r.Context(), h.kind, name); err != nil {
		writeEntityError(w, err)
		return
	}

	WriteNoContent(w)
}

// Rename handles POST /api/v1/{users,groups}/{name}/rename.
func (h *EntityHandler) Rename(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if name == "" {
		BadRequest(w, "Entity name is required")
		return
	}

	var req RenameEntityRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}
	if req.NewName == "" {
		BadRequest(w, "New name is required")
		return
	}

	view, err := h.orchestrator.RenameEntity(r.Context(), h.kind, name, req.NewName)
	if err != nil {
		writeEntityError(w, err)
		return
	}

	WriteJSONOK(w, view)
}

// Usage handles GET /api/v1/{users,groups}/{name}/usage.
// Always a fresh backend read, never cached.
func (h *EntityHandler) Usage(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if name == "" {
		BadRequest(w, "Entity name is required")
		return
	}

	sample, err := h.tracker.GetUsage(r.Context(), h.kind, name)
	if err != nil {
		writeEntityError(w, err)
		return
	}

	WriteJSONOK(w, sample)
}

// Reset handles POST /api/v1/{users,groups}/{name}/reset.
// Recovery path for entities in the failed state: returns 200 with the
// reactivated entity, or 204 if the entity turned out to be absent and
// its record was dropped.
func (h *EntityHandler) Reset(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if name == "" {
		BadRequest(w, "Entity name is required")
		return
	}

	view, err := h.orchestrator.ResetEntity(r.Context(), h.kind, name)
	if err != nil {
		writeEntityError(w, err)
		return
	}
	if view == nil {
		WriteNoContent(w)
		return
	}

	WriteJSONOK(w, view)
}
