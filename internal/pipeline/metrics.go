package pipeline

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	dispatchTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "push_dispatch_total",
		Help: "Push dispatch invocations by terminal state.",
	}, []string{"state"})

	dispatchDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "push_dispatch_duration_seconds",
		Help:    "Duration of push dispatch invocations.",
		Buckets: prometheus.DefBuckets,
	}, []string{"state"})
)

func observe(state State, elapsed time.Duration) {
	dispatchTotal.WithLabelValues(string(state)).Inc()
	dispatchDuration.WithLabelValues(string(state)).Observe(elapsed.Seconds())
}
