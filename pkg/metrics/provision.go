package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/marmos91/storagehub/pkg/provision"
)

// provisionMetrics is the Prometheus implementation of
// provision.Metrics.
type provisionMetrics struct {
	operations        *prometheus.CounterVec
	operationDuration *prometheus.HistogramVec
	rollbacks         *prometheus.CounterVec
	usageQueries      *prometheus.CounterVec
}

// NewProvisionMetrics creates the Prometheus-backed provisioning
// metrics.
//
// Returns nil if metrics are not enabled (InitRegistry not called);
// the orchestrator treats a nil Metrics as a no-op.
func NewProvisionMetrics() provision.Metrics {
	if !IsEnabled() {
		return nil
	}

	reg := GetRegistry()

	return &provisionMetrics{
		operations: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "storagehub_provision_operations_total",
				Help: "Total number of provisioning operations by operation and outcome",
			},
			[]string{"operation", "status"}, // status: "success", "error"
		),
		operationDuration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Name: "storagehub_provision_operation_duration_seconds",
				Help: "Duration of provisioning operations in seconds",
				Buckets: []float64{
					0.01, // quick metadata-only failures
					0.05,
					0.1,
					0.5,
					1,
					5,  // typical tool invocation
					15, // large recursive removals
					60,
				},
			},
			[]string{"operation"},
		),
		rollbacks: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "storagehub_provision_rollbacks_total",
				Help: "Total number of compensation runs by operation and outcome",
			},
			[]string{"operation", "status"}, // status: "success", "failed"
		),
		usageQueries: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "storagehub_usage_queries_total",
				Help: "Total number of usage queries by outcome",
			},
			[]string{"status"},
		),
	}
}

func (m *provisionMetrics) ObserveOperation(operation string, duration time.Duration, err error) {
	if m == nil {
		return
	}
	m.operations.WithLabelValues(operation, statusLabel(err)).Inc()
	m.operationDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

func (m *provisionMetrics) RecordRollback(operation string, succeeded bool) {
	if m == nil {
		return
	}
	status := "success"
	if !succeeded {
		status = "failed"
	}
	m.rollbacks.WithLabelValues(operation, status).Inc()
}

func (m *provisionMetrics) RecordUsageQuery(err error) {
	if m == nil {
		return
	}
	m.usageQueries.WithLabelValues(statusLabel(err)).Inc()
}

func statusLabel(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}
