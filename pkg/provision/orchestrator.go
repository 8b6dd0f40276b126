// Package provision implements the provisioning core: the orchestrator
// that sequences multi-step create/update/delete workflows against a
// storage backend, the per-entity concurrency guard, and the usage
// tracker.
//
// Every mutating workflow is an ordered list of steps with compensating
// actions (a small saga): a step failure aborts the remaining steps and
// runs compensations in reverse, and a compensation failure parks the
// entity in the failed state for operator intervention instead of being
// silently resolved.
package provision

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/marmos91/storagehub/internal/logger"
	"github.com/marmos91/storagehub/pkg/provision/models"
	"github.com/marmos91/storagehub/pkg/provision/store"
	"github.com/marmos91/storagehub/pkg/storage"
)

// Metrics records provisioning outcomes. Implementations must be
// nil-safe at the call sites: a nil Metrics disables recording.
type Metrics interface {
	// ObserveOperation records one orchestrator operation with its
	// duration and outcome.
	ObserveOperation(operation string, duration time.Duration, err error)

	// RecordRollback records a compensation run and whether it restored
	// a consistent state.
	RecordRollback(operation string, succeeded bool)

	// RecordUsageQuery records a usage read and its outcome.
	RecordUsageQuery(err error)
}

// Config carries the process-wide provisioning policy. It is built once
// at startup from configuration and immutable afterward.
type Config struct {
	// DefaultUID and DefaultGID own newly provisioned storage unless a
	// request overrides them.
	DefaultUID uint32
	DefaultGID uint32

	// BestEffortQuota keeps an entity whose quota step failed during
	// creation instead of rolling the provision back. The quota failure
	// is still reported to the caller.
	BestEffortQuota bool
}

// Orchestrator sequences entity workflows against the active backend.
type Orchestrator struct {
	cfg     Config
	backend storage.Backend
	store   store.Store
	guard   *Guard
	metrics Metrics
}

// New creates an orchestrator. metrics may be nil.
func New(cfg Config, backend storage.Backend, st store.Store, metrics Metrics) *Orchestrator {
	return &Orchestrator{
		cfg:     cfg,
		backend: backend,
		store:   st,
		guard:   NewGuard(),
		metrics: metrics,
	}
}

// CreateRequest describes a new entity.
type CreateRequest struct {
	Kind     models.Kind
	Name     string
	Quota    *models.Quota
	OwnerUID *uint32
	OwnerGID *uint32
}

// CreateResult is the outcome of CreateEntity. QuotaError is set only
// in best-effort mode, when the entity was kept despite a failed quota
// step.
type CreateResult struct {
	Entity     models.EntityView
	QuotaError string
}

// CreateEntity provisions storage for a new entity and applies its
// quota. On a quota failure the provision is rolled back (strict mode,
// the default) or the entity is kept without quota (best-effort mode).
func (o *Orchestrator) CreateEntity(ctx context.Context, req CreateRequest) (result *CreateResult, err error) {
	defer o.observe("create", time.Now(), &err)

	if err := models.ValidateName(req.Name); err != nil {
		return nil, err
	}
	if err := req.Quota.Validate(); err != nil {
		return nil, err
	}

	release, ok := o.guard.TryAcquire(req.Kind, req.Name)
	if !ok {
		return nil, o.contention(req.Kind, req.Name)
	}
	defer release()

	if existing, getErr := o.store.GetEntity(ctx, req.Kind, req.Name); getErr == nil {
		if existing.EntityState() == models.StateFailed {
			return nil, o.failedState(existing)
		}
		return nil, fmt.Errorf("%w: %s %q", models.ErrEntityExists, req.Kind, req.Name)
	} else if !errors.Is(getErr, models.ErrEntityNotFound) {
		return nil, getErr
	}

	entity := &models.Entity{
		Kind:     string(req.Kind),
		Name:     req.Name,
		OwnerUID: o.cfg.DefaultUID,
		OwnerGID: o.cfg.DefaultGID,
		State:    string(models.StateProvisioning),
	}
	if req.OwnerUID != nil {
		entity.OwnerUID = *req.OwnerUID
	}
	if req.OwnerGID != nil {
		entity.OwnerGID = *req.OwnerGID
	}

	if err := o.store.CreateEntity(ctx, entity); err != nil {
		return nil, err
	}

	if stepErr := o.backend.Provision(ctx, entity); stepErr != nil {
		op := o.opError(req.Kind, req.Name, "provision", stepErr)
		// A location that already existed was not created by this step;
		// removing it would destroy someone else's data. Only a partially
		// created location (directory made, chown failed) is cleaned up.
		if errors.Is(stepErr, models.ErrEntityExists) {
			_ = o.store.DeleteEntity(ctx, req.Kind, req.Name)
			return nil, op
		}
		if compErr := o.backend.Remove(ctx, entity); compErr != nil {
			return nil, o.parkFailed(ctx, entity, op, "remove", compErr)
		}
		o.recordRollback("create", true)
		_ = o.store.DeleteEntity(ctx, req.Kind, req.Name)
		return nil, op
	}

	quotaFailure := ""
	if !req.Quota.IsUnlimited() {
		if stepErr := o.backend.ApplyQuota(ctx, entity, req.Quota); stepErr != nil {
			op := o.opError(req.Kind, req.Name, "apply_quota", stepErr)

			if !o.cfg.BestEffortQuota {
				if compErr := o.backend.Remove(ctx, entity); compErr != nil {
					return nil, o.parkFailed(ctx, entity, op, "remove", compErr)
				}
				o.recordRollback("create", true)
				_ = o.store.DeleteEntity(ctx, req.Kind, req.Name)
				return nil, op
			}

			logger.Warn("quota step failed, keeping entity without quota",
				"kind", req.Kind, "name", req.Name, "error", stepErr)
			quotaFailure = op.Error()
		} else {
			entity.SetQuota(req.Quota)
		}
	}

	entity.State = string(models.StateActive)
	entity.LastError = quotaFailure
	if err := o.store.UpdateEntity(ctx, entity); err != nil {
		return nil, err
	}

	logger.Info("entity provisioned",
		"kind", req.Kind, "name", req.Name, "backend", o.backend.Name())

	return &CreateResult{Entity: o.view(entity), QuotaError: quotaFailure}, nil
}

// UpdateQuota replaces an entity's quota. The prior quota is retained
// before the new one is applied so it can be restored if the apply
// fails; a failed restore parks the entity in the failed state.
func (o *Orchestrator) UpdateQuota(ctx context.Context, kind models.Kind, name string, quota *models.Quota) (view *models.EntityView, err error) {
	defer o.observe("update_quota", time.Now(), &err)

	if err := quota.Validate(); err != nil {
		return nil, err
	}

	release, ok := o.guard.TryAcquire(kind, name)
	if !ok {
		return nil, o.contention(kind, name)
	}
	defer release()

	entity, err := o.activeEntity(ctx, kind, name)
	if err != nil {
		return nil, err
	}

	prior := entity.Quota()

	entity.State = string(models.StateUpdating)
	if err := o.store.UpdateEntity(ctx, entity); err != nil {
		return nil, err
	}

	if stepErr := o.backend.ApplyQuota(ctx, entity, quota); stepErr != nil {
		op := o.opError(kind, name, "apply_quota", stepErr)

		if compErr := o.backend.ApplyQuota(ctx, entity, prior); compErr != nil {
			return nil, o.parkFailed(ctx, entity, op, "restore_quota", compErr)
		}
		o.recordRollback("update_quota", true)

		entity.State = string(models.StateActive)
		if err := o.store.UpdateEntity(ctx, entity); err != nil {
			return nil, err
		}
		return nil, op
	}

	entity.SetQuota(quota)
	entity.State = string(models.StateActive)
	entity.LastError = ""
	if err := o.store.UpdateEntity(ctx, entity); err != nil {
		return nil, err
	}

	v := o.view(entity)
	return &v, nil
}

// DeleteEntity removes an entity's storage and its record. It is
// idempotent: deleting an absent entity succeeds, and a leftover
// location without a record is still cleaned up.
func (o *Orchestrator) DeleteEntity(ctx context.Context, kind models.Kind, name string) (err error) {
	defer o.observe("delete", time.Now(), &err)

	if err := models.ValidateName(name); err != nil {
		return err
	}

	release, ok := o.guard.TryAcquire(kind, name)
	if !ok {
		return o.contention(kind, name)
	}
	defer release()

	entity, getErr := o.store.GetEntity(ctx, kind, name)
	if errors.Is(getErr, models.ErrEntityNotFound) {
		// No record: remove any orphaned location under the default
		// owner so delete-after-crash converges to absent.
		orphan := &models.Entity{
			Kind: string(kind), Name: name,
			OwnerUID: o.cfg.DefaultUID, OwnerGID: o.cfg.DefaultGID,
		}
		if stepErr := o.backend.Remove(ctx, orphan); stepErr != nil {
			return o.opError(kind, name, "remove", stepErr)
		}
		return nil
	}
	if getErr != nil {
		return getErr
	}

	switch entity.EntityState() {
	case models.StateFailed:
		return o.failedState(entity)
	case models.StateActive:
	default:
		return o.contention(kind, name)
	}

	entity.State = string(models.StateRemoving)
	if err := o.store.UpdateEntity(ctx, entity); err != nil {
		return err
	}

	if stepErr := o.backend.Remove(ctx, entity); stepErr != nil {
		// nothing was destroyed; the entity stays usable
		entity.State = string(models.StateActive)
		if updErr := o.store.UpdateEntity(ctx, entity); updErr != nil {
			logger.Error("failed to restore entity state after remove failure",
				"kind", kind, "name", name, "error", updErr)
		}
		return o.opError(kind, name, "remove", stepErr)
	}

	if err := o.store.DeleteEntity(ctx, kind, name); err != nil && !errors.Is(err, models.ErrEntityNotFound) {
		return err
	}

	logger.Info("entity removed", "kind", kind, "name", name)
	return nil
}

// RenameEntity moves an entity's storage to a new name. Both names are
// guarded for the duration. On the posix backend the move is not atomic
// across failure, so a failed rename is compensated by renaming back.
func (o *Orchestrator) RenameEntity(ctx context.Context, kind models.Kind, name, newName string) (view *models.EntityView, err error) {
	defer o.observe("rename", time.Now(), &err)

	if err := models.ValidateName(newName); err != nil {
		return nil, err
	}

	release, ok := o.guard.TryAcquire(kind, name)
	if !ok {
		return nil, o.contention(kind, name)
	}
	defer release()

	releaseNew, ok := o.guard.TryAcquire(kind, newName)
	if !ok {
		return nil, o.contention(kind, newName)
	}
	defer releaseNew()

	entity, err := o.activeEntity(ctx, kind, name)
	if err != nil {
		return nil, err
	}

	if _, getErr := o.store.GetEntity(ctx, kind, newName); getErr == nil {
		return nil, fmt.Errorf("%w: %s %q", models.ErrEntityExists, kind, newName)
	} else if !errors.Is(getErr, models.ErrEntityNotFound) {
		return nil, getErr
	}

	entity.State = string(models.StateUpdating)
	if err := o.store.UpdateEntity(ctx, entity); err != nil {
		return nil, err
	}

	if stepErr := o.backend.Rename(ctx, entity, newName); stepErr != nil {
		op := o.opError(kind, name, "rename", stepErr)

		// if the move partially happened, move it back; a not-found
		// compensation means nothing had moved yet
		moved := *entity
		moved.Name = newName
		if compErr := o.backend.Rename(ctx, &moved, name); compErr != nil &&
			!errors.Is(compErr, models.ErrEntityNotFound) {
			return nil, o.parkFailed(ctx, entity, op, "rename_back", compErr)
		}
		o.recordRollback("rename", true)

		entity.State = string(models.StateActive)
		if err := o.store.UpdateEntity(ctx, entity); err != nil {
			return nil, err
		}
		return nil, op
	}

	entity.Name = newName
	entity.State = string(models.StateActive)
	if err := o.store.UpdateEntity(ctx, entity); err != nil {
		return nil, err
	}

	logger.Info("entity renamed", "kind", kind, "old_path", name, "new_path", newName)

	v := o.view(entity)
	return &v, nil
}

// GetEntity returns the entity view from the authoritative record.
// Read-only; does not take the mutation guard.
func (o *Orchestrator) GetEntity(ctx context.Context, kind models.Kind, name string) (*models.EntityView, error) {
	entity, err := o.store.GetEntity(ctx, kind, name)
	if err != nil {
		return nil, err
	}
	v := o.view(entity)
	return &v, nil
}

// ListEntities returns views for all known entities.
func (o *Orchestrator) ListEntities(ctx context.Context) ([]models.EntityView, error) {
	entities, err := o.store.ListEntities(ctx)
	if err != nil {
		return nil, err
	}
	views := make([]models.EntityView, len(entities))
	for i, e := range entities {
		views[i] = o.view(e)
	}
	return views, nil
}

// ResetEntity is the administrative recovery path for entities parked
// in the failed state. It re-probes backend reality: if the storage
// location exists the entity returns to active, otherwise the record is
// dropped. A nil view with a nil error means the entity is now absent.
func (o *Orchestrator) ResetEntity(ctx context.Context, kind models.Kind, name string) (view *models.EntityView, err error) {
	defer o.observe("reset", time.Now(), &err)

	release, ok := o.guard.TryAcquire(kind, name)
	if !ok {
		return nil, o.contention(kind, name)
	}
	defer release()

	entity, err := o.store.GetEntity(ctx, kind, name)
	if err != nil {
		return nil, err
	}

	// Reset is only for parked entities. A healthy entity whose probe
	// transiently fails must not lose its record here.
	if entity.EntityState() != models.StateFailed {
		return nil, fmt.Errorf("%w: %s %q is %s, only failed entities can be reset",
			models.ErrConcurrentModification, kind, name, entity.State)
	}

	_, probeErr := o.backend.QueryUsage(ctx, entity)
	switch {
	case probeErr == nil:
		entity.State = string(models.StateActive)
		entity.LastError = ""
		if err := o.store.UpdateEntity(ctx, entity); err != nil {
			return nil, err
		}
		logger.Info("entity reset to active", "kind", kind, "name", name)
		v := o.view(entity)
		return &v, nil

	case errors.Is(probeErr, models.ErrEntityNotFound):
		if err := o.store.DeleteEntity(ctx, kind, name); err != nil && !errors.Is(err, models.ErrEntityNotFound) {
			return nil, err
		}
		logger.Info("entity reset to absent", "kind", kind, "name", name)
		return nil, nil

	default:
		return nil, probeErr
	}
}

// activeEntity loads a record and enforces that new operations may only
// start from the active state.
func (o *Orchestrator) activeEntity(ctx context.Context, kind models.Kind, name string) (*models.Entity, error) {
	entity, err := o.store.GetEntity(ctx, kind, name)
	if err != nil {
		return nil, err
	}
	switch entity.EntityState() {
	case models.StateActive:
		return entity, nil
	case models.StateFailed:
		return nil, o.failedState(entity)
	default:
		return nil, o.contention(kind, name)
	}
}

// parkFailed transitions an entity to the failed state after a
// compensation failure and returns the combined error.
func (o *Orchestrator) parkFailed(ctx context.Context, entity *models.Entity, op *models.OpError, compensation string, compErr error) error {
	o.recordRollback(op.Step, false)

	rollbackErr := &models.RollbackError{
		Op:           op,
		Compensation: compensation,
		CompErr:      compErr,
	}

	entity.State = string(models.StateFailed)
	entity.LastError = rollbackErr.Error()
	if err := o.store.UpdateEntity(ctx, entity); err != nil {
		logger.Error("failed to persist failed state",
			"kind", entity.Kind, "name", entity.Name, "error", err)
	}

	logger.Error("rollback failed, entity requires operator reset",
		"kind", entity.Kind, "name", entity.Name,
		"step", op.Step, "compensation", compensation,
		"step_error", op.Err, "compensation_error", compErr)

	return rollbackErr
}

func (o *Orchestrator) opError(kind models.Kind, name, step string, err error) *models.OpError {
	return &models.OpError{Kind: kind, Name: name, Step: step, Err: err}
}

func (o *Orchestrator) contention(kind models.Kind, name string) error {
	return fmt.Errorf("%w: %s %q", models.ErrConcurrentModification, kind, name)
}

func (o *Orchestrator) failedState(entity *models.Entity) error {
	return fmt.Errorf("%w: %s %q requires reset: %s",
		models.ErrRollbackFailed, entity.Kind, entity.Name, entity.LastError)
}

func (o *Orchestrator) view(entity *models.Entity) models.EntityView {
	return newView(o.backend, entity)
}

// newView builds the transport DTO for an entity record.
func newView(backend storage.Backend, entity *models.Entity) models.EntityView {
	return models.EntityView{
		Kind:       entity.EntityKind(),
		Name:       entity.Name,
		Backend:    backend.Name(),
		QuotaScope: string(backend.Scope()),
		OwnerUID:   entity.OwnerUID,
		OwnerGID:   entity.OwnerGID,
		Quota:      entity.Quota(),
		State:      entity.EntityState(),
		CreatedAt:  entity.CreatedAt,
	}
}

func (o *Orchestrator) observe(operation string, start time.Time, err *error) {
	if o.metrics == nil {
		return
	}
	o.metrics.ObserveOperation(operation, time.Since(start), *err)
}

func (o *Orchestrator) recordRollback(operation string, succeeded bool) {
	if o.metrics == nil {
		return
	}
	o.metrics.RecordRollback(operation, succeeded)
}
