package projector

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var projectionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "fleetledger_projections_total",
	Help: "Snapshot projections completed, labelled by aggregate.",
}, []string{"aggregate"})

var foldDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Name:    "fleetledger_fold_duration_seconds",
	Help:    "Time spent replaying events into a snapshot.",
	Buckets: prometheus.DefBuckets,
}, []string{"aggregate"})
