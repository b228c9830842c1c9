// Package engine implements the execution engine: the
// global STOPPED/RUNNING/PAUSED/STEPPING control state machine, cooperative
// suspension at every child-boundary, and hierarchy/barrier/preemptive
// execution of a state tree built with internal/model.
package engine

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/corestate/statecraft/internal/errs"
	"github.com/corestate/statecraft/internal/history"
	"github.com/corestate/statecraft/internal/ids"
	"github.com/corestate/statecraft/internal/model"
	"github.com/corestate/statecraft/internal/observer"
	"github.com/corestate/statecraft/internal/platform/ctxutil"
	"github.com/corestate/statecraft/internal/platform/telemetry"
	"github.com/corestate/statecraft/internal/scopeddata"
)

// Status is the engine's global control state.
type Status string

const (
	StatusStopped  Status = "stopped"
	StatusRunning  Status = "running"
	StatusPaused   Status = "paused"
	StatusStepping Status = "stepping"
)

// StepMode selects how a STEPPING run decides where to stop.
type StepMode string

const (
	StepInto     StepMode = "step_into"
	StepOver     StepMode = "step_over"
	StepOut      StepMode = "step_out"
	StepBackward StepMode = "backward_step"
)

// Loader resolves a library state's persisted path into a fresh in-memory
// tree. Implemented by internal/storage.
type Loader interface {
	Load(path string) (*model.State, error)
}

// Config carries the engine's tunables, sourced from internal/platform/envutil.
type Config struct {
	// SuspensionPollInterval is defaulted to 25ms by New but not read by
	// the engine: a PAUSED run blocks on a condition variable until
	// Resume, Step or Stop wakes it.
	SuspensionPollInterval time.Duration
}

// Engine drives one state machine's execution. It is not safe to reuse
// across concurrent Run calls; callers needing concurrent machines should
// construct one Engine per machine: one engine, one tree, one lifecycle.
// The tree must not be structurally mutated while the engine is
// RUNNING, PAUSED or STEPPING.
type Engine struct {
	cfg    Config
	loader Loader
	log    *history.Log
	sf     singleflight.Group

	mu       sync.Mutex
	cond     *sync.Cond
	status   Status
	stepMode StepMode
	stepBase int // container-depth at which the current step command was issued

	cancelled atomic.Bool
}

// New constructs a STOPPED engine. log may be nil (history kept out of
// scope of the caller); loader may be nil if the tree has no library
// states.
func New(cfg Config, log *history.Log, loader Loader) *Engine {
	if cfg.SuspensionPollInterval <= 0 {
		cfg.SuspensionPollInterval = 25 * time.Millisecond
	}
	e := &Engine{cfg: cfg, loader: loader, log: log, status: StatusStopped}
	e.cond = sync.NewCond(&e.mu)
	return e
}

// Status reports the engine's current control state.
func (e *Engine) Status() Status {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.status
}

// Stop sets the shared cancellation flag; every running branch observes it
// at its next suspension point and exits via preempted.
func (e *Engine) Stop() {
	e.cancelled.Store(true)
	e.mu.Lock()
	e.status = StatusStopped
	e.cond.Broadcast()
	e.mu.Unlock()
}

// Pause requests the engine stop at the next suspension point without
// cancelling.
func (e *Engine) Pause() {
	e.mu.Lock()
	e.status = StatusPaused
	e.cond.Broadcast()
	e.mu.Unlock()
}

// Resume lets a PAUSED engine continue running.
func (e *Engine) Resume() {
	e.mu.Lock()
	e.status = StatusRunning
	e.cond.Broadcast()
	e.mu.Unlock()
}

// Step arms a single STEPPING run with the given mode; baseDepth is the
// container-depth current execution sits at when the command is issued,
// used by StepOver/StepOut to decide which boundary qualifies.
func (e *Engine) Step(mode StepMode, baseDepth int) {
	e.mu.Lock()
	e.status = StatusStepping
	e.stepMode = mode
	e.stepBase = baseDepth
	e.cond.Broadcast()
	e.mu.Unlock()
}

// FinishedOrStopped reports whether the engine has returned to STOPPED,
// the terminal state of every run.
func (e *Engine) FinishedOrStopped() bool {
	return e.Status() == StatusStopped
}

// suspend is the cooperative suspension point invoked at every
// child-boundary and engine tick. depth is the current
// container nesting depth, used to evaluate step_over/step_out.
func (e *Engine) suspend(ctx context.Context, depth int) error {
	if e.cancelled.Load() {
		return errs.Cancelled("engine.suspend")
	}
	if err := ctx.Err(); err != nil {
		return errs.Cancelled("engine.suspend")
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	for e.status == StatusPaused {
		e.cond.Wait()
		if e.cancelled.Load() {
			return errs.Cancelled("engine.suspend")
		}
	}
	if e.status == StatusStepping {
		stop := false
		switch e.stepMode {
		case StepInto:
			stop = true
		case StepOver:
			stop = depth <= e.stepBase
		case StepOut:
			stop = depth < e.stepBase
		}
		if stop {
			e.status = StatusPaused
		}
	}
	return nil
}

// runCtx carries the per-call context threaded through hierarchy/barrier/
// preemptive execution: the run id shared by every item of one state's
// execution, the state path from root, and depth for stepping decisions.
type runCtx struct {
	runID     string
	statePath []string
	namePath  []string
	depth     int

	// callID, when non-nil, receives the history_item_id recordCall
	// generates for this state's Call item, letting a concurrency
	// container retroactively mark a losing branch's Call cancelled
	// once the race is decided. Left nil by child(),
	// which only concurrency containers opt back into per branch.
	callID *string
}

func (r runCtx) child(state *model.State) runCtx {
	return runCtx{
		runID:     ids.NewRunID(),
		statePath: append(append([]string{}, r.statePath...), state.ID),
		namePath:  append(append([]string{}, r.namePath...), state.Name),
		depth:     r.depth + 1,
	}
}

// Run executes root from its start, recording a StateMachineStart item
// first, and returns the terminal outcome id.
func (e *Engine) Run(ctx context.Context, root *model.State) (string, error) {
	e.mu.Lock()
	e.status = StatusRunning
	e.cancelled.Store(false)
	e.mu.Unlock()

	runID := ids.NewRunID()

	if e.log != nil {
		_ = e.log.Append(&history.Item{
			HistoryItemID: ids.NewHistoryItemID(),
			Kind:          history.KindStateMachineStart,
			RunID:         runID,
			Timestamp:     timeNow(),
			RootSnapshot:  snapshotState(root),
			Version:       1,
		})
	}

	ctx = ctxutil.WithTraceData(ctx, &ctxutil.TraceData{RunID: runID})
	rc := runCtx{runID: runID, statePath: []string{root.ID}, namePath: []string{root.Name}, depth: 0}
	_, outcome, err := e.execute(ctx, root, map[string]scopeddata.Value{}, rc)
	// The root has no enclosing container to reify a cancellation into an
	// outcome for, so do it here: a run stopped at the root boundary ends
	// with preempted, not a Go error.
	if se, ok := err.(*errs.Error); ok && !se.Surfaces() {
		if se.Kind == errs.KindCancelled {
			outcome = ids.OutcomePreemptID
		} else {
			outcome = ids.OutcomeAbortedID
		}
		err = nil
	}

	e.mu.Lock()
	e.status = StatusStopped
	e.mu.Unlock()
	return outcome, err
}

// execute dispatches to the variant-specific executor, or
// runs a leaf script for VariantExecution, or lazily loads and delegates
// for VariantLibrary. inputs holds state's already-resolved input values
// (keyed by input port id); it returns state's output values (keyed by
// output port id) and its outcome id.
func (e *Engine) execute(ctx context.Context, state *model.State, inputs map[string]scopeddata.Value, rc runCtx) (map[string]scopeddata.Value, string, error) {
	if err := e.suspend(ctx, rc.depth); err != nil {
		return nil, ids.OutcomePreemptID, err
	}
	ctx, span := telemetry.StartEngineTick(ctx, strings.Join(rc.statePath, "/"))
	defer span.End()
	state.Dispatcher.Before(observer.Event{Name: "execute", Args: map[string]any{"run_id": rc.runID}})
	var outputs map[string]scopeddata.Value
	var outcome string
	var err error
	switch state.Variant {
	case model.VariantExecution:
		outputs, outcome, err = e.executeLeaf(ctx, state, inputs, rc)
	case model.VariantHierarchy:
		outputs, outcome, err = e.executeHierarchy(ctx, state, inputs, rc)
	case model.VariantBarrier:
		outputs, outcome, err = e.executeBarrier(ctx, state, inputs, rc)
	case model.VariantPreemptive:
		outputs, outcome, err = e.executePreemptive(ctx, state, inputs, rc)
	case model.VariantLibrary:
		outputs, outcome, err = e.executeLibrary(ctx, state, inputs, rc)
	default:
		outcome, err = ids.OutcomeAbortedID, errs.InvalidStructure("engine.execute", unknownVariant(state.Variant))
	}
	// Error propagation policy: InvalidStructure, MissingLibrary and
	// PersistenceFault surface to the caller unchanged. ExecutionFault,
	// UnhandledOutcome and Cancelled are reified as the state's own outcome
	// instead of unwinding the call stack as a Go error.
	if se, ok := err.(*errs.Error); ok && !se.Surfaces() {
		if se.Kind == errs.KindCancelled {
			outcome = ids.OutcomePreemptID
		} else {
			outcome = ids.OutcomeAbortedID
		}
		err = nil
	}
	var reported any
	if err == nil {
		reported = outcome
	}
	state.Dispatcher.After(observer.Event{Name: "execute", Args: map[string]any{"run_id": rc.runID}}, reported)
	return outputs, outcome, err
}

type unknownVariant model.Variant

func (v unknownVariant) Error() string { return "unknown state variant: " + string(v) }

func snapshotState(s *model.State) map[string]any {
	return map[string]any{"id": s.ID, "name": s.Name, "variant": string(s.Variant)}
}

var timeNow = func() time.Time { return time.Now() }
