package main

import (
	"context"
	"log/slog"
	"math/rand"

	"github.com/montanaflynn/stats"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/saeidbarati157/poet"
	"github.com/saeidbarati157/poet/internal/numeric"
)

func realToFloat(r poet.Real) float64 { return numeric.ToFloat(r) }

// workloadSim plays the host application: it derives achieved
// performance and power from whichever state the controller last
// applied, with optional relative jitter.
type workloadSim struct {
	basePerf  float64
	basePower float64
	jitter    float64

	byID      map[uint]poet.ControlState
	appliedID uint

	applyCalls  int
	firstApply  bool
	lastIdleNS  uint64
	totalIdleNS uint64

	rng    *rand.Rand
	logger *slog.Logger

	traceCtx context.Context
	tracer   trace.Tracer
}

// instrument attaches a tracer so each actuation emits a span under the
// run's root span. Without it apply stays untraced.
func (w *workloadSim) instrument(ctx context.Context, tracer trace.Tracer) {
	w.traceCtx = ctx
	w.tracer = tracer
}

func newWorkloadSim(basePerf, basePower, jitter float64, states []poet.ControlState, seed int64, logger *slog.Logger) *workloadSim {
	byID := make(map[uint]poet.ControlState, len(states))
	for _, s := range states {
		byID[s.ID] = s
	}
	return &workloadSim{
		basePerf:  basePerf,
		basePower: basePower,
		jitter:    jitter,
		byID:      byID,
		rng:       rand.New(rand.NewSource(seed)),
		logger:    logger,
	}
}

// apply is the controller's actuation hook.
func (w *workloadSim) apply(_ any, _ []poet.ControlState, id, lastID uint, idleNS uint64, firstApply bool) {
	w.appliedID = id
	w.applyCalls++
	w.firstApply = firstApply
	w.lastIdleNS = idleNS
	w.totalIdleNS += idleNS
	if w.tracer != nil {
		_, span := w.tracer.Start(w.traceCtx, "apply_state",
			trace.WithAttributes(
				attribute.Int64("state_id", int64(id)),
				attribute.Int64("previous_id", int64(lastID)),
				attribute.Int64("idle_ns", int64(idleNS)),
				attribute.Bool("first_apply", firstApply),
			))
		span.End()
	}
	w.logger.Debug("apply",
		"state_id", id,
		"previous_id", lastID,
		"idle_ns", idleNS,
		"first_apply", firstApply,
	)
}

// measure returns one iteration's achieved values under the applied
// state, scaled linearly by its speedup and cost.
func (w *workloadSim) measure() (perf, power float64) {
	s, ok := w.byID[w.appliedID]
	if !ok {
		return w.basePerf, w.basePower
	}
	perf = w.basePerf * realToFloat(s.Speedup) * w.noise()
	power = w.basePower * realToFloat(s.Cost) * w.noise()
	return perf, power
}

func (w *workloadSim) noise() float64 {
	if w.jitter <= 0 {
		return 1
	}
	return 1 + w.jitter*(2*w.rng.Float64()-1)
}

// runSummary aggregates the achieved series for the end-of-run report.
type runSummary struct {
	MeanPerf  float64
	P95Perf   float64
	MeanPower float64
	P95Power  float64
}

func summarize(perfs, powers []float64) (runSummary, error) {
	var s runSummary
	var err error
	if s.MeanPerf, err = stats.Mean(perfs); err != nil {
		return s, err
	}
	if s.P95Perf, err = stats.Percentile(perfs, 95); err != nil {
		return s, err
	}
	if s.MeanPower, err = stats.Mean(powers); err != nil {
		return s, err
	}
	s.P95Power, err = stats.Percentile(powers, 95)
	return s, err
}
