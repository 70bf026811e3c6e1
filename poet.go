// Package poet is a runtime feedback controller that steers a host
// application between a finite menu of discrete control states (CPU
// frequencies, core counts, thread counts) so that one metric meets a
// goal while the opposing metric is optimized. The host reports one
// (performance, power) measurement per iteration through ApplyControl;
// every Period samples the controller re-evaluates its state choice and
// requests the change through the host-supplied apply callback.
//
// A Controller is single-threaded by contract: the host must serialize
// ApplyControl, SetConstraint and Close on one handle.
package poet

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/saeidbarati157/poet/internal/control"
	"github.com/saeidbarati157/poet/internal/history"
	"github.com/saeidbarati157/poet/internal/metrics"
	"github.com/saeidbarati157/poet/internal/numeric"
)

// Real is the build-selected magnitude representation for goals,
// speedups, costs and measurements: float64 by default, saturating
// Q16.16 fixed point under the poet_fixed build tag.
type Real = numeric.Real

// ControlState describes one discrete operating point. See
// control.State.
type ControlState = control.State

// Constraint selects which metric the goal bounds.
type Constraint = control.Constraint

const (
	// ConstraintPerformance bounds performance from below; power is
	// minimized.
	ConstraintPerformance = control.ConstraintPerformance
	// ConstraintPower bounds power from above; performance is
	// maximized.
	ConstraintPower = control.ConstraintPower
)

// ApplyFunc is the host actuation hook invoked once per decision cycle.
type ApplyFunc = control.ApplyFunc

// CurrentFunc probes the system's current state id at init.
type CurrentFunc = control.CurrentFunc

// Environment toggles, checked on every ApplyControl call. Setting a
// variable to any value, including empty, activates it.
const (
	// EnvDisableControl skips the whole pipeline: no sample is
	// recorded and no internal state advances.
	EnvDisableControl = "POET_DISABLE_CONTROL"
	// EnvDisableApply runs decisions and advances internal state but
	// never invokes the apply callback.
	EnvDisableApply = "POET_DISABLE_APPLY"
	// EnvDisableIdle prevents idle state substitution.
	EnvDisableIdle = "POET_DISABLE_IDLE"
)

// defaultBufferDepth sizes the history ring when no log file is
// configured and the caller left BufferDepth at zero.
const defaultBufferDepth = 20

// OverflowCount reports how many numeric operations saturated since
// process start. Always zero in the float build; nonzero values in the
// fixed-point build indicate goals or measurements near the edge of
// the Q16.16 range.
func OverflowCount() uint64 { return numeric.OverflowCount() }

// Config carries everything New needs. States is copied; the caller's
// slice only has to stay valid for the duration of the call.
// ApplyContext is passed to the apply callback verbatim and never
// inspected.
type Config struct {
	Goal       Real
	Constraint Constraint
	States     []ControlState

	ApplyContext any
	Apply        ApplyFunc
	Current      CurrentFunc

	// Period is the decision cadence in samples. Must be > 0.
	Period uint
	// BufferDepth is the history retention and log flush batch size.
	// Must be > 0 when LogPath is set; defaults otherwise.
	BufferDepth uint
	// LogPath, when non-empty, names the history log file. It is
	// created or truncated during New.
	LogPath string

	// Logger defaults to slog.Default().
	Logger *slog.Logger
	// LookupEnv resolves the POET_DISABLE_* toggles and defaults to
	// os.LookupEnv. Injectable so toggle behavior is testable without
	// touching the process environment.
	LookupEnv func(string) (string, bool)
}

func (c *Config) validate() error {
	if c.Goal <= 0 {
		return fmt.Errorf("poet: goal must be > 0, got %v", numeric.ToFloat(c.Goal))
	}
	if len(c.States) == 0 {
		return fmt.Errorf("poet: state table must not be empty")
	}
	if c.Period == 0 {
		return fmt.Errorf("poet: period must be > 0")
	}
	if c.LogPath != "" && c.BufferDepth == 0 {
		return fmt.Errorf("poet: buffer depth must be > 0 when a log path is set")
	}
	return nil
}

// Controller is the opaque engine handle. The zero value is not usable;
// construct with New and release with Close.
type Controller struct {
	engine  *control.Engine
	table   *control.Table
	buffer  *history.Buffer
	applyFn ApplyFunc
	applyCx any

	period      uint
	sinceCycle  uint
	statesView  []ControlState
	lookupEnv   func(string) (string, bool)
	logger      *slog.Logger
	lastFlushes uint64
	lastRows    uint64
	closed      bool
}

// New validates cfg, copies the state table, seeds the current state
// through the Current callback (falling back to id 0 when the probe
// fails) and opens the history log if configured.
func New(cfg Config) (*Controller, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	lookup := cfg.LookupEnv
	if lookup == nil {
		lookup = os.LookupEnv
	}

	table, err := control.NewTable(cfg.States)
	if err != nil {
		return nil, fmt.Errorf("poet: %w", err)
	}
	statesView := table.States()

	depth := cfg.BufferDepth
	if depth == 0 {
		depth = defaultBufferDepth
	}
	// The ring must hold at least one full decision window.
	capacity := int(depth)
	if int(cfg.Period) > capacity {
		capacity = int(cfg.Period)
	}
	buffer, err := history.NewBuffer(capacity, int(depth), cfg.LogPath)
	if err != nil {
		return nil, fmt.Errorf("poet: %w", err)
	}

	seed := uint(0)
	if cfg.Current != nil {
		id, probeErr := cfg.Current(statesView)
		if probeErr != nil {
			logger.Warn("current state probe failed, seeding from baseline", "err", probeErr)
		} else if _, ok := table.ByID(id); !ok {
			logger.Warn("current state probe returned unknown id, seeding from baseline", "state_id", id)
		} else {
			seed = id
		}
	}

	return &Controller{
		engine:     control.NewEngine(table, cfg.Goal, cfg.Constraint, seed, logger),
		table:      table,
		buffer:     buffer,
		applyFn:    cfg.Apply,
		applyCx:    cfg.ApplyContext,
		period:     cfg.Period,
		statesView: statesView,
		lookupEnv:  lookup,
		logger:     logger,
	}, nil
}

// SetConstraint replaces the tradeoff configuration at runtime. The new
// configuration is used from the next decision cycle on; buffered
// history, idle accounting and the last applied id are preserved.
func (c *Controller) SetConstraint(constraint Constraint, goal Real) error {
	if goal <= 0 {
		return fmt.Errorf("poet: goal must be > 0, got %v", numeric.ToFloat(goal))
	}
	c.engine.SetConstraint(constraint, goal)
	return nil
}

// ApplyControl reports one iteration's achieved performance and power.
// Every Period calls it runs a decision cycle and, unless suppressed by
// the environment toggles, invokes the apply callback with the result.
func (c *Controller) ApplyControl(iterationID uint64, perf, power Real) {
	if c == nil || c.closed {
		return
	}
	if _, set := c.lookupEnv(EnvDisableControl); set {
		return
	}

	sample := history.Sample{
		Iteration: iterationID,
		Perf:      perf,
		Power:     power,
		StateID:   c.engine.LastID(),
		At:        time.Now(),
	}
	if err := c.buffer.Append(sample); err != nil {
		// Logging is best-effort; a failed flush must not stall the
		// host's hot path.
		c.logger.Warn("history flush failed", "err", err)
	}
	metrics.SamplesTotal.Inc()
	if flushes := c.buffer.Flushes(); flushes > c.lastFlushes {
		metrics.LogFlushesTotal.Add(float64(flushes - c.lastFlushes))
		c.lastFlushes = flushes
	}
	if rows := c.buffer.RowsWritten(); rows > c.lastRows {
		metrics.LogRowsWrittenTotal.Add(float64(rows - c.lastRows))
		c.lastRows = rows
	}

	c.sinceCycle++
	if c.sinceCycle < c.period {
		return
	}
	c.sinceCycle = 0

	meanPerf, meanPower, ok := c.buffer.Window(int(c.period))
	if !ok {
		return
	}

	_, idleDisabled := c.lookupEnv(EnvDisableIdle)
	d := c.engine.Decide(meanPerf, meanPower, !idleDisabled)

	metrics.DecisionsTotal.WithLabelValues(d.Label).Inc()
	metrics.CurrentStateID.Set(float64(d.ID))
	if d.NewlyInfeasible {
		metrics.InfeasibleTransitionsTotal.Inc()
	}
	c.logger.Debug("decision cycle",
		"decision", d.Label,
		"state_id", d.ID,
		"previous_id", d.PreviousID,
		"idle_ns", d.IdleNS,
		"first_apply", d.FirstApply,
	)

	if _, applyDisabled := c.lookupEnv(EnvDisableApply); applyDisabled {
		return
	}
	if c.applyFn == nil {
		return
	}
	c.applyFn(c.applyCx, c.statesView, d.ID, d.PreviousID, d.IdleNS, d.FirstApply)
	metrics.ApplyCallsTotal.Inc()
}

// Close flushes any buffered history rows to the log and closes it.
// Safe on a nil handle and safe to call more than once.
func (c *Controller) Close() error {
	if c == nil || c.closed {
		return nil
	}
	c.closed = true
	err := c.buffer.Close()
	if flushes := c.buffer.Flushes(); flushes > c.lastFlushes {
		metrics.LogFlushesTotal.Add(float64(flushes - c.lastFlushes))
		c.lastFlushes = flushes
	}
	if rows := c.buffer.RowsWritten(); rows > c.lastRows {
		metrics.LogRowsWrittenTotal.Add(float64(rows - c.lastRows))
		c.lastRows = rows
	}
	return err
}
