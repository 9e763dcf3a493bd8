package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	TicksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "price_sync_ticks_total",
			Help: "Scheduler ticks by outcome",
		},
		[]string{"outcome"},
	)
	AbortsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "price_sync_aborts_total",
			Help: "Aborted ticks by failing stage",
		},
		[]string{"stage"},
	)
	RelayFallbacksTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "price_sync_relay_fallbacks_total",
			Help: "Fetches retried through the relay after a blocked status",
		},
	)
	SkippedElementsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "price_sync_skipped_elements_total",
			Help: "Upstream elements dropped while parsing, by reason",
		},
		[]string{"reason"},
	)
	RecordsWrittenTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "price_sync_records_written_total",
			Help: "Changed prices written to the store, by result",
		},
		[]string{"result"},
	)
	SnapshotSize = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "price_snapshot_items",
			Help: "Items in the published snapshot",
		},
	)
	LastPublishSeconds = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "price_snapshot_published_timestamp_seconds",
			Help: "Unix time of the last published snapshot",
		},
	)
)

// Register adds the collectors to reg.
func Register(reg prometheus.Registerer) {
	reg.MustRegister(
		TicksTotal,
		AbortsTotal,
		RelayFallbacksTotal,
		SkippedElementsTotal,
		RecordsWrittenTotal,
		SnapshotSize,
		LastPublishSeconds,
	)
}

// Start registers the collectors and serves /metrics on port in the background.
func Start(port string) <-chan error {
	Register(prometheus.DefaultRegisterer)
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	errc := make(chan error, 1)
	go func() {
		errc <- http.ListenAndServe(":"+port, mux)
	}()
	return errc
}
