package control

import (
	"log/slog"
	"time"

	"github.com/saeidbarati157/poet/internal/numeric"
)

type decisionLabel string

const (
	decisionSeedFirstApply    decisionLabel = "seed_first_apply"
	decisionHold              decisionLabel = "hold"
	decisionMove              decisionLabel = "apply_move"
	decisionInfeasibleExtreme decisionLabel = "infeasible_extreme"
	decisionIdleSubstitute    decisionLabel = "idle_substitute"
)

// Decision is the outcome of one decision cycle.
type Decision struct {
	// ID is the state to request from the apply hook.
	ID uint
	// PreviousID is the state applied before this cycle.
	PreviousID uint
	// IdleNS is the idle time accumulated since the last non-idle
	// application; nonzero only on the decision that leaves idle.
	IdleNS uint64
	// FirstApply is true on the first cycle after init.
	FirstApply bool
	// Label names the decision branch taken.
	Label string
	// NewlyInfeasible is true on the cycle that transitions into the
	// goal-unreachable regime, and on no other cycle of that regime.
	NewlyInfeasible bool
}

// Engine runs the constrained-goal selection over a state table. It is
// single-threaded by contract; the owning handle serializes access.
type Engine struct {
	table      *Table
	goal       numeric.Real
	constraint Constraint

	lastID     uint
	firstApply bool
	infeasible bool

	idleSince time.Time
	idleAccum time.Duration

	nowFn  func() time.Time
	logger *slog.Logger
}

// NewEngine seeds the engine at seedID, which the first decision cycle
// confirms without prediction.
func NewEngine(table *Table, goal numeric.Real, constraint Constraint, seedID uint, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		table:      table,
		goal:       goal,
		constraint: constraint,
		lastID:     seedID,
		firstApply: true,
		nowFn:      time.Now,
		logger:     logger,
	}
}

// LastID returns the most recently decided state id.
func (e *Engine) LastID() uint { return e.lastID }

// SetConstraint swaps the tradeoff configuration. It takes effect on
// the next decision cycle; history, idle accounting and the last
// applied id are untouched.
func (e *Engine) SetConstraint(constraint Constraint, goal numeric.Real) {
	e.constraint = constraint
	e.goal = goal
	e.infeasible = false
}

// Decide runs one decision cycle against the mean achieved performance
// and power observed since the previous cycle. allowIdle gates idle
// substitution.
func (e *Engine) Decide(meanPerf, meanPower numeric.Real, allowIdle bool) Decision {
	prev := e.lastID

	if e.firstApply {
		e.firstApply = false
		return Decision{
			ID:         e.lastID,
			PreviousID: prev,
			FirstApply: true,
			Label:      string(decisionSeedFirstApply),
		}
	}

	current, ok := e.table.ByID(e.lastID)
	if !ok {
		// Seeded id drifted outside the table; re-anchor at baseline.
		current = e.table.states[0]
	}

	chosen, label, feasible := e.selectState(current, meanPerf, meanPower)

	newlyInfeasible := false
	if !feasible {
		if !e.infeasible {
			newlyInfeasible = true
			e.logger.Warn("goal unreachable by any state, selecting extreme",
				"constraint", e.constraint.String(),
				"goal", numeric.ToFloat(e.goal),
				"state_id", chosen.ID,
			)
		}
		e.infeasible = true
	} else {
		e.infeasible = false
	}

	if allowIdle && feasible {
		if idle, ok := e.idleCandidate(chosen, current, meanPerf, meanPower); ok {
			chosen = idle
			label = decisionIdleSubstitute
		}
	}

	idleNS := e.accountIdle(chosen)

	e.lastID = chosen.ID
	return Decision{
		ID:              chosen.ID,
		PreviousID:      prev,
		IdleNS:          idleNS,
		Label:           string(label),
		NewlyInfeasible: newlyInfeasible,
	}
}

// selectState scans the non-idle candidates, predicting each one's
// metrics under linear scaling from the currently applied state, and
// returns the feasible candidate that best serves the optimized metric.
// When no candidate is feasible it returns the extreme state for the
// goal and feasible = false.
func (e *Engine) selectState(current State, meanPerf, meanPower numeric.Real) (State, decisionLabel, bool) {
	var best State
	var bestObjective numeric.Real
	found := false

	for _, cand := range e.table.states {
		if cand.IsIdle() {
			continue
		}
		predPerf := numeric.MulDiv(meanPerf, cand.Speedup, current.Speedup)
		predPower := numeric.MulDiv(meanPower, cand.Cost, current.Cost)

		var feasible bool
		var objective numeric.Real
		switch e.constraint {
		case ConstraintPower:
			feasible = predPower <= e.goal
			objective = predPerf // maximize
		default: // ConstraintPerformance
			feasible = predPerf >= e.goal
			objective = predPower // minimize
		}
		if !feasible {
			continue
		}
		if !found || e.better(objective, bestObjective) ||
			(objective == bestObjective && idDistance(cand.ID, e.lastID) < idDistance(best.ID, e.lastID)) {
			best = cand
			bestObjective = objective
			found = true
		}
	}

	if !found {
		if e.constraint == ConstraintPerformance {
			return e.table.MaxSpeedupActive(), decisionInfeasibleExtreme, false
		}
		return e.table.MinCostActive(), decisionInfeasibleExtreme, false
	}
	if best.ID == e.lastID {
		return best, decisionHold, true
	}
	return best, decisionMove, true
}

func (e *Engine) better(objective, best numeric.Real) bool {
	if e.constraint == ConstraintPower {
		return objective > best
	}
	return objective < best
}

// idleCandidate reports the idle twin to substitute when the chosen
// state is the cheapest active configuration and the constrained bound
// is still strictly over-satisfied there, meaning demand sits below
// what the smallest active state usefully provides.
func (e *Engine) idleCandidate(chosen, current State, meanPerf, meanPower numeric.Real) (State, bool) {
	minActive := e.table.MinCostActive()
	if chosen.ID != minActive.ID {
		return State{}, false
	}
	overSatisfied := false
	switch e.constraint {
	case ConstraintPower:
		predPower := numeric.MulDiv(meanPower, chosen.Cost, current.Cost)
		overSatisfied = predPower < e.goal
	default:
		predPerf := numeric.MulDiv(meanPerf, chosen.Speedup, current.Speedup)
		overSatisfied = predPerf > e.goal
	}
	if !overSatisfied {
		return State{}, false
	}
	twinID, ok := e.table.IdleTwin(chosen.ID)
	if !ok {
		return State{}, false
	}
	twin, _ := e.table.ByID(twinID)
	return twin, true
}

// accountIdle tracks time spent in idle states. While idle, duration
// accumulates across cycles; the decision that returns to an active
// state carries the accumulated total and resets it.
func (e *Engine) accountIdle(chosen State) uint64 {
	now := e.nowFn()
	if chosen.IsIdle() {
		if e.idleSince.IsZero() {
			e.idleSince = now
		} else {
			e.idleAccum += now.Sub(e.idleSince)
			e.idleSince = now
		}
		return 0
	}
	if e.idleSince.IsZero() {
		return 0
	}
	e.idleAccum += now.Sub(e.idleSince)
	total := uint64(e.idleAccum.Nanoseconds())
	e.idleSince = time.Time{}
	e.idleAccum = 0
	return total
}

func idDistance(a, b uint) uint {
	if a > b {
		return a - b
	}
	return b - a
}
