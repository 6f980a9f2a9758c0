package export

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	exportPublished = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fleetledger_audit_export_published_total",
		Help: "Audit entries successfully produced to the export topic.",
	})
	exportFailed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fleetledger_audit_export_failed_total",
		Help: "Audit entries that failed to produce to the export topic.",
	})
	exportDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fleetledger_audit_export_dropped_total",
		Help: "Audit entries dropped because the export inbox was full.",
	})
)
