package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Dual-write stages reported by DualWriteGap.
const (
	StageStore = "store"
	StageCache = "cache"
)

var (
	cacheDegraded = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_cache_degraded_total",
			Help: "Conversation cache operations that failed and were absorbed.",
		},
		[]string{"op"},
	)

	// Turns whose durable and cached copies diverged after a successful
	// completion. Repaired by rebuild-on-miss for stage="cache".
	dualWriteGap = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_dual_write_gap_total",
			Help: "Chat turns where a post-completion write failed, by stage.",
		},
		[]string{"stage"},
	)

	completionLat = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "chat_completion_duration_seconds",
			Help:    "Latency of completion provider calls.",
			Buckets: []float64{.1, .25, .5, 1, 2.5, 5, 10, 20, 30, 60},
		},
		[]string{"outcome"},
	)
)

func init() {
	prometheus.MustRegister(cacheDegraded, dualWriteGap, completionLat)
}

// CacheDegraded counts an absorbed cache failure for op (load, save, append,
// delete).
func CacheDegraded(op string) { cacheDegraded.WithLabelValues(op).Inc() }

// DualWriteGap counts a write that failed after the provider succeeded.
func DualWriteGap(stage string) { dualWriteGap.WithLabelValues(stage).Inc() }

// ObserveCompletion records a provider call. outcome is "ok", "error" or
// "timeout".
func ObserveCompletion(outcome string, d time.Duration) {
	completionLat.WithLabelValues(outcome).Observe(d.Seconds())
}
