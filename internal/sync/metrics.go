package sync

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Refresh cycle metrics, exposed on /metrics in serve mode.
var (
	refreshCycles = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "roostersync_refresh_cycles_total",
		Help: "Refresh cycles per user and outcome.",
	}, []string{"user", "status"})

	refreshDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "roostersync_refresh_duration_seconds",
		Help:    "Wall time of a full refresh cycle.",
		Buckets: prometheus.DefBuckets,
	}, []string{"user"})

	rebuilds = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "roostersync_rebuilds_total",
		Help: "Synchronous reconcile+emit runs triggered by event edits.",
	}, []string{"user", "status"})
)
