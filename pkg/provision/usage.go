package provision

import (
	"context"

	"github.com/marmos91/storagehub/pkg/provision/models"
	"github.com/marmos91/storagehub/pkg/provision/store"
	"github.com/marmos91/storagehub/pkg/storage"
)

// UsageTracker answers on-demand usage queries. Every sample is a fresh
// backend read; nothing is cached and the mutation guard is never taken,
// so usage reads stay available while an operation is in flight.
type UsageTracker struct {
	backend storage.Backend
	store   store.Store
	metrics Metrics
}

// NewUsageTracker creates a usage tracker. metrics may be nil.
func NewUsageTracker(backend storage.Backend, st store.Store, metrics Metrics) *UsageTracker {
	return &UsageTracker{backend: backend, store: st, metrics: metrics}
}

// GetUsage returns a point-in-time usage sample for an entity.
// Returns models.ErrEntityNotFound when no record exists or the storage
// location is gone.
func (t *UsageTracker) GetUsage(ctx context.Context, kind models.Kind, name string) (sample models.UsageSample, err error) {
	defer func() {
		if t.metrics != nil {
			t.metrics.RecordUsageQuery(err)
		}
	}()

	entity, err := t.store.GetEntity(ctx, kind, name)
	if err != nil {
		return models.UsageSample{}, err
	}
	return t.backend.QueryUsage(ctx, entity)
}

// EntityReport pairs an entity view with its latest usage sample for
// the aggregate listing. UsageError is set when the sample could not be
// taken; the view is still returned.
type EntityReport struct {
	Entity     models.EntityView   `json:"entity"`
	Usage      *models.UsageSample `json:"usage,omitempty"`
	UsageError string              `json:"usage_error,omitempty"`
}

// ListUsage returns a report for every known entity. A failed sample
// for one entity does not fail the listing.
func (t *UsageTracker) ListUsage(ctx context.Context) ([]EntityReport, error) {
	entities, err := t.store.ListEntities(ctx)
	if err != nil {
		return nil, err
	}

	reports := make([]EntityReport, 0, len(entities))
	for _, e := range entities {
		report := EntityReport{Entity: newView(t.backend, e)}
		sample, sampleErr := t.backend.QueryUsage(ctx, e)
		if t.metrics != nil {
			t.metrics.RecordUsageQuery(sampleErr)
		}
		if sampleErr != nil {
			report.UsageError = sampleErr.Error()
		} else {
			report.Usage = &sample
		}
		reports = append(reports, report)
	}
	return reports, nil
}
