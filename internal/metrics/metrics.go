package metrics

import "github.com/prometheus/client_golang/prometheus"

// Outcomes de un turno de relay para la métrica de turnos.
const (
	OutcomeCompleted     = "completed"
	OutcomeAborted       = "aborted"
	OutcomeUpstreamError = "upstream_error"
	OutcomeStoreError    = "store_error"
)

var (
	RelayTurns = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "genui_relay_turns_total",
		Help: "Relay turns by outcome.",
	}, []string{"outcome"})

	UpstreamFirstByteSeconds = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "genui_upstream_first_byte_seconds",
		Help:    "Time until the first upstream byte of a streaming turn.",
		Buckets: prometheus.ExponentialBuckets(0.05, 2, 12),
	})

	StreamBytesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "genui_stream_bytes_total",
		Help: "Raw upstream bytes relayed to clients.",
	})

	ActiveStreams = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "genui_active_streams",
		Help: "Streaming turns currently in flight.",
	})

	RateLimitedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "genui_rate_limited_total",
		Help: "Chat requests rejected by the rate limiter.",
	})
)

func init() {
	prometheus.MustRegister(
		RelayTurns,
		UpstreamFirstByteSeconds,
		StreamBytesTotal,
		ActiveStreams,
		RateLimitedTotal,
	)
}
