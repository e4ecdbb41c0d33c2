// Package metrics holds the catalog service's Prometheus collectors.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/example/title-ratings/services/catalog/internal/store"
)

// Sync outcomes recorded per external item.
const (
	SyncCreated   = "created"
	SyncUpdated   = "updated"
	SyncUnchanged = "unchanged"
	SyncFailed    = "failed"
	SyncDropped   = "dropped"
)

type Metrics struct {
	Registry *prometheus.Registry

	SyncItems        *prometheus.CounterVec
	ExternalRequests *prometheus.CounterVec
	FindDuration     *prometheus.HistogramVec
}

// New registers every collector on a fresh registry, together with the Go
// runtime and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	f := promauto.With(reg)

	return &Metrics{
		Registry: reg,
		SyncItems: f.NewCounterVec(prometheus.CounterOpts{
			Name: "catalog_sync_items_total",
			Help: "External catalog items processed by the synchronizer, by result.",
		}, []string{"result"}),
		ExternalRequests: f.NewCounterVec(prometheus.CounterOpts{
			Name: "catalog_external_requests_total",
			Help: "Requests to the external catalog, by content kind and outcome.",
		}, []string{"kind", "outcome"}),
		FindDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "catalog_find_duration_seconds",
			Help:    "Duration of catalog queries, by sort policy.",
			Buckets: prometheus.DefBuckets,
		}, []string{"sort"}),
	}
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{Registry: m.Registry})
}

// The methods below are nil-safe so components can run without metrics.

func (m *Metrics) ObserveSync(result string) {
	if m == nil {
		return
	}
	m.SyncItems.WithLabelValues(result).Inc()
}

func (m *Metrics) ObserveExternalRequest(kind store.Kind, outcome string) {
	if m == nil {
		return
	}
	m.ExternalRequests.WithLabelValues(string(kind), outcome).Inc()
}

func (m *Metrics) ObserveFind(sort string, d time.Duration) {
	if m == nil {
		return
	}
	m.FindDuration.WithLabelValues(sort).Observe(d.Seconds())
}
