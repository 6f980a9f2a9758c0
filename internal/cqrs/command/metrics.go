package command

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"fleetledger/internal/cqrs/result"
)

var commandsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "fleetledger_commands_total",
	Help: "Commands processed, labelled by aggregate, operation, and result.",
}, []string{"aggregate", "operation", "result"})

func commandOutcome(aggregate, operation string, rt result.ResultType) {
	commandsTotal.WithLabelValues(aggregate, operation, strconv.Itoa(int(rt))).Inc()
}
