// Package metrics holds the Prometheus collectors shared by the pipeline components.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	ResultOK      = "ok"
	ResultError   = "error"
	ResultDropped = "dropped"
	ResultNoop    = "noop"
)

var (
	// EvidenceFetched counts content fetches per candidate link.
	EvidenceFetched = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "trendline_evidence_fetched_total",
		Help: "Content fetches per candidate link by result",
	}, []string{"result"})

	// MediaChecked counts media validation checks.
	MediaChecked = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "trendline_media_checked_total",
		Help: "Media validation checks by result",
	}, []string{"result"})

	// Merges counts merge attempts per entity kind.
	Merges = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "trendline_merges_total",
		Help: "Summary merges by entity kind and result",
	}, []string{"kind", "result"})

	// OracleDuration tracks language model latency.
	OracleDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "trendline_oracle_duration_seconds",
		Help:    "Oracle call duration in seconds",
		Buckets: prometheus.ExponentialBuckets(0.25, 2, 9), // 250ms to ~64s
	}, []string{"provider"})

	// PollChanges counts entities reported as changed by the tracker.
	PollChanges = promauto.NewCounter(prometheus.CounterOpts{
		Name: "trendline_poll_changes_total",
		Help: "Entities observed as changed by the poll tracker",
	})

	// IngestionCycles counts slow-interval ingestion cycles.
	IngestionCycles = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "trendline_ingestion_cycles_total",
		Help: "News ingestion cycles by result",
	}, []string{"result"})
)

// Handler exposes the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
