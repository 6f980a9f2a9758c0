package query

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"fleetledger/internal/cqrs/result"
)

var queriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "fleetledger_queries_total",
	Help: "Queries processed, labelled by aggregate, operation, and result.",
}, []string{"aggregate", "operation", "result"})

func queryOutcome(aggregate, operation string, rt result.ResultType) {
	queriesTotal.WithLabelValues(aggregate, operation, strconv.Itoa(int(rt))).Inc()
}
