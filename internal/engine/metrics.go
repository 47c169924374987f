package engine

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	commandsHandled = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "matchd_commands_total",
		Help: "Total number of commands handled by result",
	}, []string{"command", "result"})

	deltasApplied = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "matchd_stat_deltas_total",
		Help: "Total number of stat deltas by field and whether they applied",
	}, []string{"field", "applied"})

	roundsStarted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "matchd_rounds_started_total",
		Help: "Total number of rounds started",
	})

	roundsEnded = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "matchd_rounds_ended_total",
		Help: "Total number of rounds ended by winner",
	}, []string{"winner", "reason"})

	votesCast = promauto.NewCounter(prometheus.CounterOpts{
		Name: "matchd_votes_cast_total",
		Help: "Total number of accepted map votes",
	})

	eventQueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "matchd_engine_queue_depth",
		Help: "Events waiting for the engine loop",
	})
)
