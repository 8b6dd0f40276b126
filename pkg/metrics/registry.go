// Package metrics manages the Prometheus registry and the metric
// collectors published on /metrics.
//
// Metrics are opt-in: constructors return nil until InitRegistry has
// been called, and all collectors are nil-safe, so a disabled setup has
// zero overhead.
package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	registryOnce sync.Once
	registry     *prometheus.Registry
)

// InitRegistry creates the process-wide Prometheus registry with the
// standard Go runtime and process collectors. Idempotent.
func InitRegistry() {
	registryOnce.Do(func() {
		registry = prometheus.NewRegistry()
		registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	})
}

// IsEnabled reports whether InitRegistry has been called.
func IsEnabled() bool {
	return registry != nil
}

// GetRegistry returns the process-wide registry, or nil when metrics
// are disabled.
func GetRegistry() *prometheus.Registry {
	return registry
}

// Handler returns the HTTP handler serving the registry, or nil when
// metrics are disabled.
func Handler() http.Handler {
	if !IsEnabled() {
		return nil
	}
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}
