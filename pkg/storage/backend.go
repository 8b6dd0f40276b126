// Package storage implements the storage backends that provision,
// quota and meter entity storage locations. Two technologies are
// supported: plain directories with OS-level disk quotas (posix) and
// ZFS datasets with native per-dataset accounting (zfs).
package storage

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/marmos91/storagehub/pkg/provision/models"
)

// QuotaScope describes how precisely a backend can attribute quota and
// usage to a single entity.
type QuotaScope string

const (
	// ScopeDataset means quota and usage are native properties of the
	// entity's own dataset: exact and per-entity.
	ScopeDataset QuotaScope = "dataset"

	// ScopeFilesystemOwner means quota is enforced per owning uid/gid
	// across the whole filesystem containing the base path, not per
	// directory. Callers are told this explicitly via the entity view
	// rather than discovering it from enforcement behavior.
	ScopeFilesystemOwner QuotaScope = "filesystem-owner"
)

// Backend is the capability contract implemented per storage
// technology. The implementation is selected once at startup; it is
// never chosen per call.
//
// All methods classify failures into the models error taxonomy:
// ErrEntityNotFound, ErrEntityExists, ErrQuotaInvalid and
// ErrBackendUnavailable.
type Backend interface {
	// Name returns the backend identifier ("posix" or "zfs").
	Name() string

	// Scope reports the quota attribution granularity of this backend.
	Scope() QuotaScope

	// Provision creates the physical storage location and sets initial
	// ownership. Fails with ErrEntityExists if the location is already
	// present; safe to retry while it is not.
	Provision(ctx context.Context, entity *models.Entity) error

	// ApplyQuota sets or clears quota limits on an existing location.
	ApplyQuota(ctx context.Context, entity *models.Entity, quota *models.Quota) error

	// QueryUsage reads live usage. Never cached.
	QueryUsage(ctx context.Context, entity *models.Entity) (models.UsageSample, error)

	// Remove deletes the location and its contents. Idempotent:
	// removing an absent location succeeds silently.
	Remove(ctx context.Context, entity *models.Entity) error

	// Rename moves the entity's storage to a new name. Atomic on zfs
	// (native dataset rename); best effort on posix, where a failure
	// mid-move requires compensation by the caller.
	Rename(ctx context.Context, entity *models.Entity, newName string) error
}

// Config selects and parameterizes the active backend. Initialized once
// at process start, immutable afterward.
type Config struct {
	// Backend is "posix" or "zfs".
	Backend string

	// BasePath is the directory (posix) or dataset (zfs) under which
	// all entity storage locations are created.
	BasePath string

	// CommandTimeout bounds every external tool invocation. A hung tool
	// surfaces as ErrBackendUnavailable, never as an indefinite block.
	CommandTimeout time.Duration
}

// Validate checks the backend configuration.
func (c *Config) Validate() error {
	if c.BasePath == "" || strings.HasSuffix(c.BasePath, "/") {
		return fmt.Errorf("invalid base path %q: must be non-empty without trailing slash", c.BasePath)
	}
	switch c.Backend {
	case "posix", "zfs":
		return nil
	default:
		return fmt.Errorf("invalid storage backend %q: supported backends are posix, zfs", c.Backend)
	}
}

// newSample stamps a usage reading with the query time.
func newSample(usedBytes, usedObjects uint64) models.UsageSample {
	return models.UsageSample{
		UsedBytes:   usedBytes,
		UsedObjects: usedObjects,
		ObservedAt:  time.Now().UTC(),
	}
}

// New constructs the configured backend.
func New(cfg Config) (Backend, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	timeout := cfg.CommandTimeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	runner := NewRunner(timeout)

	switch cfg.Backend {
	case "zfs":
		return NewZfs(cfg.BasePath, runner)
	default:
		return NewPosix(cfg.BasePath, runner)
	}
}
