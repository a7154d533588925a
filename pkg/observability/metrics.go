// Package observability exposes the service's Prometheus metrics.
package observability

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	// Global metrics instance for singleton pattern
	globalCollector *Collector
	collectorMutex  sync.Mutex
)

// Collector holds all Prometheus metrics for the application
type Collector struct {
	registry *prometheus.Registry

	// HTTP metrics
	HTTPRequests *prometheus.CounterVec
	HTTPDuration *prometheus.HistogramVec

	// Editing metrics
	NodesCreated        prometheus.Counter
	EdgesCreated        prometheus.Counter
	SuggestionsAccepted *prometheus.CounterVec
	TemporalApplied     prometheus.Counter
	SessionsOpen        prometheus.Gauge

	// Layout metrics
	LayoutRuns     *prometheus.CounterVec
	LayoutDuration *prometheus.HistogramVec
	LayoutStale    prometheus.Counter

	// Persistence metrics
	Saves        *prometheus.CounterVec
	SaveDuration prometheus.Histogram
}

// NewCollector creates the metrics collector with the given namespace.
// Singleton, so tests that build the app twice do not double-register.
func NewCollector(namespace string) *Collector {
	collectorMutex.Lock()
	defer collectorMutex.Unlock()

	if globalCollector != nil {
		return globalCollector
	}

	registry := prometheus.NewRegistry()

	httpRequests := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	httpDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	nodesCreated := prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "nodes_created_total",
			Help:      "Total number of nodes added to maps",
		},
	)

	edgesCreated := prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "edges_created_total",
			Help:      "Total number of edges added to maps",
		},
	)

	suggestionsAccepted := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "suggestions_accepted_total",
			Help:      "Total number of accepted suggestions",
		},
		[]string{"outcome"},
	)

	temporalApplied := prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "temporal_merges_total",
			Help:      "Total number of temporal sub-maps merged into main maps",
		},
	)

	sessionsOpen := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sessions_open",
			Help:      "Number of editing sessions currently open",
		},
	)

	layoutRuns := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "layout_runs_total",
			Help:      "Total number of layout computations",
		},
		[]string{"kind", "status"},
	)

	layoutDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "layout_duration_seconds",
			Help:      "Layout computation duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"kind"},
	)

	layoutStale := prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "layout_stale_results_total",
			Help:      "Layout results discarded because a newer trigger superseded them",
		},
	)

	saves := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "map_saves_total",
			Help:      "Total number of map save attempts",
		},
		[]string{"trigger", "status"},
	)

	saveDuration := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "map_save_duration_seconds",
			Help:      "Map save duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
	)

	registry.MustRegister(
		httpRequests,
		httpDuration,
		nodesCreated,
		edgesCreated,
		suggestionsAccepted,
		temporalApplied,
		sessionsOpen,
		layoutRuns,
		layoutDuration,
		layoutStale,
		saves,
		saveDuration,
	)

	globalCollector = &Collector{
		registry:            registry,
		HTTPRequests:        httpRequests,
		HTTPDuration:        httpDuration,
		NodesCreated:        nodesCreated,
		EdgesCreated:        edgesCreated,
		SuggestionsAccepted: suggestionsAccepted,
		TemporalApplied:     temporalApplied,
		SessionsOpen:        sessionsOpen,
		LayoutRuns:          layoutRuns,
		LayoutDuration:      layoutDuration,
		LayoutStale:         layoutStale,
		Saves:               saves,
		SaveDuration:        saveDuration,
	}
	return globalCollector
}

// ResetForTesting resets the global collector for testing purposes
func ResetForTesting() {
	collectorMutex.Lock()
	defer collectorMutex.Unlock()
	globalCollector = nil
}

// ObserveLayout records one layout computation.
func (c *Collector) ObserveLayout(kind string, d time.Duration, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	c.LayoutRuns.WithLabelValues(kind, status).Inc()
	if err == nil {
		c.LayoutDuration.WithLabelValues(kind).Observe(d.Seconds())
	}
}

// ObserveSave records one save attempt.
func (c *Collector) ObserveSave(trigger string, d time.Duration, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	c.Saves.WithLabelValues(trigger, status).Inc()
	if err == nil {
		c.SaveDuration.Observe(d.Seconds())
	}
}

// GetRegistry returns the Prometheus registry for this collector
func (c *Collector) GetRegistry() *prometheus.Registry {
	return c.registry
}
