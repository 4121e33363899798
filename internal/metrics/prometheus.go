// Package metrics registers the Prometheus instrumentation for the call
// pipeline, exposed at /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds every pipeline metric. Create once per process; promauto
// registers on the default registry.
type Metrics struct {
	// Call lifecycle
	CallsInitiated prometheus.Counter
	CallsEnded     *prometheus.CounterVec
	ActiveSessions prometheus.Gauge
	CallDuration   prometheus.Histogram

	// Turn loop
	TurnsCompleted  prometheus.Counter
	TurnsDegraded   prometheus.Counter
	TurnDuration    prometheus.Histogram
	TimeoutAttempts prometheus.Counter

	// Upstream capabilities
	CompletionRequests    prometheus.Counter
	CompletionFailures    prometheus.Counter
	SynthesisRequests     prometheus.Counter
	SynthesisFailures     prometheus.Counter
	TranscriptionRequests prometheus.Counter
	TranscriptionFailures prometheus.Counter

	// Response cache
	CacheHits   *prometheus.CounterVec
	CacheMisses *prometheus.CounterVec

	// HTTP API
	HTTPRequests        *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
}

// New creates and registers all pipeline metrics.
func New() *Metrics {
	return &Metrics{
		CallsInitiated: promauto.NewCounter(prometheus.CounterOpts{
			Name: "voiceagent_calls_initiated_total",
			Help: "Total number of outbound calls initiated",
		}),
		CallsEnded: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "voiceagent_calls_ended_total",
			Help: "Total number of calls ended, by end reason",
		}, []string{"reason"}),
		ActiveSessions: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "voiceagent_active_sessions",
			Help: "Current number of live call sessions",
		}),
		CallDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "voiceagent_call_duration_seconds",
			Help:    "Call duration from initiation to ended",
			Buckets: []float64{5, 15, 30, 60, 120, 300, 600},
		}),

		TurnsCompleted: promauto.NewCounter(prometheus.CounterOpts{
			Name: "voiceagent_turns_completed_total",
			Help: "Total number of completed conversation turns",
		}),
		TurnsDegraded: promauto.NewCounter(prometheus.CounterOpts{
			Name: "voiceagent_turns_degraded_total",
			Help: "Total number of turns answered with the degraded fallback reply",
		}),
		TurnDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "voiceagent_turn_duration_seconds",
			Help:    "Time from final user speech to reply audio ready",
			Buckets: prometheus.DefBuckets,
		}),
		TimeoutAttempts: promauto.NewCounter(prometheus.CounterOpts{
			Name: "voiceagent_timeout_attempts_total",
			Help: "Total number of no-speech timeouts recorded",
		}),

		CompletionRequests: promauto.NewCounter(prometheus.CounterOpts{
			Name: "voiceagent_completion_requests_total",
			Help: "Total number of completion calls made",
		}),
		CompletionFailures: promauto.NewCounter(prometheus.CounterOpts{
			Name: "voiceagent_completion_failures_total",
			Help: "Total number of failed completion calls",
		}),
		SynthesisRequests: promauto.NewCounter(prometheus.CounterOpts{
			Name: "voiceagent_synthesis_requests_total",
			Help: "Total number of synthesis calls made",
		}),
		SynthesisFailures: promauto.NewCounter(prometheus.CounterOpts{
			Name: "voiceagent_synthesis_failures_total",
			Help: "Total number of failed synthesis calls",
		}),
		TranscriptionRequests: promauto.NewCounter(prometheus.CounterOpts{
			Name: "voiceagent_transcription_requests_total",
			Help: "Total number of transcription calls made",
		}),
		TranscriptionFailures: promauto.NewCounter(prometheus.CounterOpts{
			Name: "voiceagent_transcription_failures_total",
			Help: "Total number of failed transcription calls",
		}),

		CacheHits: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "voiceagent_cache_hits_total",
			Help: "Response cache hits, by entry kind",
		}, []string{"kind"}),
		CacheMisses: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "voiceagent_cache_misses_total",
			Help: "Response cache misses, by entry kind",
		}, []string{"kind"}),

		HTTPRequests: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "voiceagent_http_requests_total",
			Help: "HTTP requests served, by method, path, and status",
		}, []string{"method", "path", "status"}),
		HTTPRequestDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "voiceagent_http_request_duration_seconds",
			Help:    "HTTP request latency, by method and path",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "path"}),
	}
}
