// Package metrics exposes the Prometheus collectors for the tracker.
//
// Collectors live on a package registry rather than the client library's
// default one, so tests and embedded uses never trip duplicate-registration
// panics. The API server mounts Handler() at /metrics.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	registry = prometheus.NewRegistry()

	ingestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ingests_total",
		Help: "Total ingest attempts by source and status.",
	}, []string{"source", "status"})

	ingestDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "ingest_duration_seconds",
		Help:    "Histogram of ingest durations.",
		Buckets: prometheus.DefBuckets,
	})

	normalizeErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "normalize_errors_total",
		Help: "Total payloads or account records dropped during normalization.",
	})

	fleetViewDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "fleet_view_duration_seconds",
		Help:    "Histogram of fleet view build durations.",
		Buckets: prometheus.DefBuckets,
	})

	submarines = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "submarines",
		Help: "Submarines known to the tracker by voyage status.",
	}, []string{"status"})

	activityEvents = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "activity_events_total",
		Help: "Total activity events detected by type.",
	}, []string{"type"})

	voyagesRecorded = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "voyages_recorded_total",
		Help: "Total completed voyages written to the archive.",
	})

	feedMessages = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "feed_messages_total",
		Help: "Total feed messages by transport and status.",
	}, []string{"transport", "status"})

	routeStatsRefresh = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "route_stats_refresh_total",
		Help: "Total route statistics refresh attempts by status.",
	}, []string{"status"})
)

func init() {
	registry.MustRegister(
		ingestsTotal,
		ingestDuration,
		normalizeErrors,
		fleetViewDuration,
		submarines,
		activityEvents,
		voyagesRecorded,
		feedMessages,
		routeStatsRefresh,
	)
}

// IncIngest increments the ingest counter for the given source and status.
func IncIngest(source, status string) {
	ingestsTotal.WithLabelValues(source, status).Inc()
}

// ObserveIngestDuration records one ingest duration, expressed in seconds.
func ObserveIngestDuration(seconds float64) {
	if seconds < 0 {
		return
	}
	ingestDuration.Observe(seconds)
}

// IncNormalizeError counts one payload or account record dropped during
// normalization.
func IncNormalizeError() {
	normalizeErrors.Inc()
}

// ObserveFleetViewDuration records one fleet view build duration, expressed
// in seconds.
func ObserveFleetViewDuration(seconds float64) {
	if seconds < 0 {
		return
	}
	fleetViewDuration.Observe(seconds)
}

// SetSubmarines updates the submarine gauge for one voyage status.
func SetSubmarines(status string, n int) {
	submarines.WithLabelValues(status).Set(float64(n))
}

// IncActivityEvent increments the event counter for the given event type.
func IncActivityEvent(eventType string) {
	activityEvents.WithLabelValues(eventType).Inc()
}

// AddVoyagesRecorded counts n completed voyages written to the archive.
func AddVoyagesRecorded(n int) {
	if n <= 0 {
		return
	}
	voyagesRecorded.Add(float64(n))
}

// IncFeedMessage increments the feed counter for the given transport and
// status.
func IncFeedMessage(transport, status string) {
	feedMessages.WithLabelValues(transport, status).Inc()
}

// IncRouteStatsRefresh increments the refresh counter for the given status.
func IncRouteStatsRefresh(status string) {
	routeStatsRefresh.WithLabelValues(status).Inc()
}

// Handler serves the package registry in Prometheus exposition format.
func Handler() http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}
