// Package metrics exposes controller counters on the default
// prometheus registry.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	SamplesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "poet",
		Subsystem: "controller",
		Name:      "samples_total",
		Help:      "Total iteration samples reported to the controller",
	})

	DecisionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "poet",
		Subsystem: "controller",
		Name:      "decisions_total",
		Help:      "Total decision cycles, by decision branch",
	}, []string{"decision"})

	InfeasibleTransitionsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "poet",
		Subsystem: "controller",
		Name:      "infeasible_transitions_total",
		Help:      "Transitions into the goal-unreachable regime",
	})

	ApplyCallsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "poet",
		Subsystem: "controller",
		Name:      "apply_calls_total",
		Help:      "Total invocations of the apply callback",
	})

	LogFlushesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "poet",
		Subsystem: "history",
		Name:      "log_flushes_total",
		Help:      "Total batched history log flushes",
	})

	LogRowsWrittenTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "poet",
		Subsystem: "history",
		Name:      "log_rows_written_total",
		Help:      "Total history rows committed to the log file",
	})

	CurrentStateID = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "poet",
		Subsystem: "controller",
		Name:      "current_state_id",
		Help:      "State id most recently requested by the controller",
	})
)
