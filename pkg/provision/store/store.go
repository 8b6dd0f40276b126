// Package store persists the entity registry. It is the authoritative
// record of which entities exist and their last-known state; on-disk
// reality is reconciled lazily by the provisioning layer.
package store

import (
	"context"

	"github.com/marmos91/storagehub/pkg/provision/models"
)

// Store is the persistence interface for entity records.
type Store interface {
	// GetEntity retrieves an entity by kind and name.
	// Returns models.ErrEntityNotFound if no record exists.
	GetEntity(ctx context.Context, kind models.Kind, name string) (*models.Entity, error)

	// CreateEntity inserts a new entity record.
	// Returns models.ErrEntityExists on a (kind, name) collision.
	CreateEntity(ctx context.Context, entity *models.Entity) error

	// UpdateEntity saves the mutable fields of an existing record.
	UpdateEntity(ctx context.Context, entity *models.Entity) error

	// DeleteEntity removes the record. Deleting a missing record
	// returns models.ErrEntityNotFound.
	DeleteEntity(ctx context.Context, kind models.Kind, name string) error

	// ListEntities returns all entity records ordered by kind, name.
	ListEntities(ctx context.Context) ([]*models.Entity, error)

	// Ping verifies database connectivity. Used by readiness probes.
	Ping(ctx context.Context) error

	// Close releases the underlying database connection.
	Close() error
}
