package control

import (
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/saeidbarati157/poet/internal/numeric"
)

func newTestEngine(t *testing.T, states []State, goal float64, constraint Constraint, seed uint) *Engine {
	t.Helper()
	table, err := NewTable(states)
	require.NoError(t, err)
	return NewEngine(table, numeric.FromFloat(goal), constraint, seed, slog.Default())
}

// skipSeed consumes the first-apply cycle so subsequent cycles predict.
func skipSeed(e *Engine) {
	e.Decide(numeric.One, numeric.One, false)
}

func TestEngine_FirstDecisionConfirmsSeed(t *testing.T) {
	e := newTestEngine(t, []State{st(0, 1, 1), st(1, 2, 1.5)}, 1.4, ConstraintPower, 1)

	d := e.Decide(numeric.FromFloat(2), numeric.FromFloat(1.5), true)
	assert.True(t, d.FirstApply)
	assert.Equal(t, uint(1), d.ID)
	assert.Equal(t, uint(1), d.PreviousID)
	assert.Equal(t, "seed_first_apply", d.Label)
}

func TestEngine_PowerConstraintRejectsOverBudgetState(t *testing.T) {
	// Table {0:(1,1), 1:(2,1.5)}, power bound 1.4, achieved power 1 at
	// state 0. State 1 predicts power 1.5 > 1.4 and must never win.
	e := newTestEngine(t, []State{st(0, 1, 1), st(1, 2, 1.5)}, 1.4, ConstraintPower, 0)
	skipSeed(e)

	for i := 0; i < 10; i++ {
		d := e.Decide(numeric.One, numeric.One, false)
		assert.Equal(t, uint(0), d.ID)
		assert.False(t, d.NewlyInfeasible)
	}
}

func TestEngine_PerformanceConstraintSelectsFasterState(t *testing.T) {
	// Same table, perf bound 1.5, achieved perf 1.0 at state 0. State 1
	// predicts perf 2.0 >= 1.5 and is the only feasible candidate.
	e := newTestEngine(t, []State{st(0, 1, 1), st(1, 2, 1.5)}, 1.5, ConstraintPerformance, 0)
	skipSeed(e)

	d := e.Decide(numeric.One, numeric.One, false)
	assert.Equal(t, uint(1), d.ID)
	assert.Equal(t, "apply_move", d.Label)
}

func TestEngine_ConvergenceUnderStaticLoad(t *testing.T) {
	states := []State{
		st(0, 1, 1),
		st(1, 1.5, 1.3),
		st(2, 2, 1.7),
		st(3, 2.8, 2.4),
	}
	e := newTestEngine(t, states, 1.8, ConstraintPerformance, 0)
	skipSeed(e)

	// The workload responds linearly to the applied state, so achieved
	// values track the chosen state's factors.
	basePerf, basePower := 1.0, 1.0
	var last uint
	stable := 0
	for i := 0; i < 12; i++ {
		applied := states[e.LastID()]
		perf := numeric.FromFloat(basePerf * numeric.ToFloat(applied.Speedup))
		power := numeric.FromFloat(basePower * numeric.ToFloat(applied.Cost))
		d := e.Decide(perf, power, false)
		if d.ID == last {
			stable++
		} else {
			stable = 0
		}
		last = d.ID
	}

	// Converges to the cheapest state meeting perf >= 1.8 (state 2) and
	// stays there with no oscillation.
	assert.Equal(t, uint(2), last)
	assert.GreaterOrEqual(t, stable, 8)
}

func TestEngine_InfeasibleGoalPicksExtremeOnceSignaled(t *testing.T) {
	states := []State{st(0, 1, 1), st(1, 2, 1.5)}
	e := newTestEngine(t, states, 10, ConstraintPerformance, 0)
	skipSeed(e)

	d := e.Decide(numeric.One, numeric.One, false)
	assert.Equal(t, uint(1), d.ID, "max speedup state under an unreachable performance goal")
	assert.Equal(t, "infeasible_extreme", d.Label)
	assert.True(t, d.NewlyInfeasible)

	// Still infeasible: the condition is raised only on the transition.
	d = e.Decide(numeric.One, numeric.One, false)
	assert.Equal(t, "infeasible_extreme", d.Label)
	assert.False(t, d.NewlyInfeasible)

	// Recovery clears the regime, so a later relapse signals again.
	d = e.Decide(numeric.FromFloat(12), numeric.One, false)
	require.NotEqual(t, "infeasible_extreme", d.Label)
	d = e.Decide(numeric.One, numeric.One, false)
	assert.True(t, d.NewlyInfeasible)
}

func TestEngine_InfeasiblePowerGoalPicksCheapestState(t *testing.T) {
	states := []State{st(0, 1, 1), st(1, 2, 1.5)}
	e := newTestEngine(t, states, 0.25, ConstraintPower, 1)
	skipSeed(e)

	d := e.Decide(numeric.One, numeric.FromFloat(1.5), false)
	assert.Equal(t, uint(0), d.ID, "min cost state under an unreachable power bound")
	assert.Equal(t, "infeasible_extreme", d.Label)
}

func TestEngine_TieBreakPrefersNearbyID(t *testing.T) {
	// States 1 and 3 predict identical metrics; from state 2 the engine
	// must prefer the closer one deterministically.
	states := []State{
		st(0, 1, 1),
		st(1, 2, 1.2),
		st(2, 2.5, 1.6),
		st(3, 2, 1.2),
	}
	e := newTestEngine(t, states, 1.5, ConstraintPerformance, 2)
	skipSeed(e)

	applied := states[2]
	perf := applied.Speedup
	power := applied.Cost
	d := e.Decide(perf, power, false)
	assert.Equal(t, uint(1), d.ID)
}

func TestEngine_HoldLabelWhenStaying(t *testing.T) {
	states := []State{st(0, 1, 1), st(1, 2, 1.5)}
	e := newTestEngine(t, states, 1.4, ConstraintPower, 0)
	skipSeed(e)

	d := e.Decide(numeric.One, numeric.One, false)
	assert.Equal(t, uint(0), d.ID)
	assert.Equal(t, "hold", d.Label)
}

func TestEngine_SetConstraintTakesEffectNextCycle(t *testing.T) {
	states := []State{st(0, 1, 1), st(1, 2, 1.5)}
	e := newTestEngine(t, states, 1.4, ConstraintPower, 0)
	skipSeed(e)

	d := e.Decide(numeric.One, numeric.One, false)
	require.Equal(t, uint(0), d.ID)

	e.SetConstraint(ConstraintPerformance, numeric.FromFloat(1.5))
	d = e.Decide(numeric.One, numeric.One, false)
	assert.Equal(t, uint(1), d.ID)
}

func TestEngine_IdleSubstitutionAndAccounting(t *testing.T) {
	states := []State{
		idleSt(0, 1, 0.1, 1),
		st(1, 1, 1),
		st(2, 2, 1.5),
	}
	e := newTestEngine(t, states, 0.5, ConstraintPerformance, 1)
	skipSeed(e)

	now := time.Unix(1000, 0)
	e.nowFn = func() time.Time { return now }

	// Demand far below what the cheapest active state provides: the
	// bound is over-satisfied at state 1, so its idle twin is chosen.
	d := e.Decide(numeric.One, numeric.One, true)
	require.Equal(t, uint(0), d.ID)
	assert.Equal(t, "idle_substitute", d.Label)
	assert.Zero(t, d.IdleNS)

	// Stay idle for two more cycles, one second apart.
	now = now.Add(time.Second)
	d = e.Decide(numeric.One, numeric.One, true)
	require.Equal(t, uint(0), d.ID)
	assert.Zero(t, d.IdleNS)

	now = now.Add(time.Second)
	d = e.Decide(numeric.One, numeric.One, true)
	require.Equal(t, uint(0), d.ID)

	// Demand rises; the engine leaves idle and reports the accumulated
	// idle duration exactly once.
	now = now.Add(time.Second)
	d = e.Decide(numeric.FromFloat(0.25), numeric.One, true)
	require.NotEqual(t, uint(0), d.ID)
	assert.Equal(t, uint64(3*time.Second), d.IdleNS)

	// Accounting reset: the next decision carries no idle time.
	applied := states[d.ID]
	d = e.Decide(applied.Speedup, applied.Cost, true)
	assert.Zero(t, d.IdleNS)
}

func TestEngine_IdleDisabledNeverSubstitutes(t *testing.T) {
	states := []State{
		idleSt(0, 1, 0.1, 1),
		st(1, 1, 1),
		st(2, 2, 1.5),
	}
	e := newTestEngine(t, states, 0.5, ConstraintPerformance, 1)
	skipSeed(e)

	for i := 0; i < 5; i++ {
		d := e.Decide(numeric.One, numeric.One, false)
		assert.Equal(t, uint(1), d.ID)
	}
}

func TestEngine_IdleNotSubstitutedWithoutHeadroom(t *testing.T) {
	states := []State{
		idleSt(0, 1, 0.1, 1),
		st(1, 1, 1),
		st(2, 2, 1.5),
	}
	// Goal exactly met at state 1: no strict over-satisfaction, no idle.
	e := newTestEngine(t, states, 1.0, ConstraintPerformance, 1)
	skipSeed(e)

	d := e.Decide(numeric.One, numeric.One, true)
	assert.Equal(t, uint(1), d.ID)
}
