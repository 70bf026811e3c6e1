// Package control implements the decision engine: the control-state
// table, the periodic constrained-goal decision algorithm, and idle
// state substitution.
package control

import (
	"fmt"

	"github.com/saeidbarati157/poet/internal/numeric"
)

// Constraint selects which metric the goal bounds. The opposing metric
// is the one being optimized.
type Constraint int

const (
	// ConstraintPerformance bounds performance from below (achieved
	// performance must stay >= goal) while power is minimized.
	ConstraintPerformance Constraint = iota
	// ConstraintPower bounds power from above (achieved power must stay
	// <= goal) while performance is maximized.
	ConstraintPower
)

func (c Constraint) String() string {
	switch c {
	case ConstraintPerformance:
		return "performance"
	case ConstraintPower:
		return "power"
	default:
		return fmt.Sprintf("constraint(%d)", int(c))
	}
}

// State describes one discrete operating point. Speedup and cost are
// normalized against the baseline state (id 0 carries speedup = cost =
// 1 by caller convention). IdlePartnerID is meaningful only on idle
// states, where it names the non-idling state with the same
// configuration; non-idle states carry their own id there.
type State struct {
	ID            uint
	Speedup       numeric.Real
	Cost          numeric.Real
	IdlePartnerID uint
}

// IsIdle reports whether s is an idle state.
func (s State) IsIdle() bool { return s.IdlePartnerID != s.ID }

// ApplyFunc is the host-supplied actuation hook. It receives the
// caller-owned context verbatim, a view of the state table that must
// not be retained past the call, the chosen and previously applied
// state ids, idle nanoseconds accumulated since the last non-idle
// application, and whether this is the first application after init.
// The engine treats the call as fire-and-forget.
type ApplyFunc func(ctx any, states []State, id, lastID uint, idleNS uint64, firstApply bool)

// CurrentFunc probes the id of the state the system is already in. It
// is consulted once at init; an error means undeterminable and the
// engine seeds from id 0 instead.
type CurrentFunc func(states []State) (uint, error)

// Table is the immutable-after-init indexed collection of control
// states.
type Table struct {
	states   []State
	byID     map[uint]State
	idleTwin map[uint]uint // active id -> idle state id
}

// NewTable copies and validates the caller's state slice. The caller's
// slice is not retained.
func NewTable(states []State) (*Table, error) {
	if len(states) == 0 {
		return nil, fmt.Errorf("control: state table is empty")
	}
	t := &Table{
		states:   make([]State, len(states)),
		byID:     make(map[uint]State, len(states)),
		idleTwin: make(map[uint]uint),
	}
	copy(t.states, states)
	for _, s := range t.states {
		if _, dup := t.byID[s.ID]; dup {
			return nil, fmt.Errorf("control: duplicate state id %d", s.ID)
		}
		t.byID[s.ID] = s
	}
	for _, s := range t.states {
		if !s.IsIdle() {
			continue
		}
		partner, ok := t.byID[s.IdlePartnerID]
		if !ok {
			return nil, fmt.Errorf("control: idle state %d names unknown partner %d", s.ID, s.IdlePartnerID)
		}
		if partner.IsIdle() {
			return nil, fmt.Errorf("control: idle state %d partnered with idle state %d", s.ID, partner.ID)
		}
		t.idleTwin[partner.ID] = s.ID
	}
	return t, nil
}

// Len returns the number of states.
func (t *Table) Len() int { return len(t.states) }

// ByID looks up a state; ok is false for ids outside the table.
func (t *Table) ByID(id uint) (State, bool) {
	s, ok := t.byID[id]
	return s, ok
}

// States returns a fresh copy of the table for handing to callbacks.
func (t *Table) States() []State {
	out := make([]State, len(t.states))
	copy(out, t.states)
	return out
}

// IdleTwin returns the idle state paired with the given active state,
// if one exists in the table.
func (t *Table) IdleTwin(activeID uint) (uint, bool) {
	id, ok := t.idleTwin[activeID]
	return id, ok
}

// MinCostActive returns the non-idle state with the smallest cost.
func (t *Table) MinCostActive() State {
	var best State
	found := false
	for _, s := range t.states {
		if s.IsIdle() {
			continue
		}
		if !found || s.Cost < best.Cost {
			best = s
			found = true
		}
	}
	return best
}

// MaxSpeedupActive returns the non-idle state with the largest speedup.
func (t *Table) MaxSpeedupActive() State {
	var best State
	found := false
	for _, s := range t.states {
		if s.IsIdle() {
			continue
		}
		if !found || s.Speedup > best.Speedup {
			best = s
			found = true
		}
	}
	return best
}
