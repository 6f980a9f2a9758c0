package audit

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var entriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "fleetledger_audit_entries_total",
	Help: "Audit entries written, labelled by entry type.",
}, []string{"audit_type"})
