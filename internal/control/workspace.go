// Package control implements the HTTP control surface:
// engine start/stop/pause/resume/step/status and selection/clipboard
// operations, with destructive routes behind a bearer-token guard.
package control

import (
	"context"
	"fmt"
	"sync"

	"github.com/corestate/statecraft/internal/clipboard"
	"github.com/corestate/statecraft/internal/engine"
	"github.com/corestate/statecraft/internal/errs"
	"github.com/corestate/statecraft/internal/history"
	"github.com/corestate/statecraft/internal/model"
	"github.com/corestate/statecraft/internal/selection"
)

// Workspace is the single loaded state machine a control server operates on,
// one engine, one tree, one lifecycle:
// structural mutation (clipboard ops) is only legal while Engine is STOPPED.
type Workspace struct {
	mu sync.Mutex

	SM        *model.StateMachine
	Engine    *engine.Engine
	Log       *history.Log
	Index     *history.Index // optional secondary queryable index
	Selection *selection.Selection
	Clipboard *clipboard.Clipboard

	runCtx      context.Context
	runCancel   context.CancelFunc
	runErr      error
	lastOutcome string
}

// NewWorkspace wires a loaded state machine to a fresh engine and empty
// selection/clipboard, ready to be driven by the control surface. index may
// be nil if the deployment has no secondary history index configured.
func NewWorkspace(sm *model.StateMachine, eng *engine.Engine, log *history.Log, index *history.Index) *Workspace {
	return &Workspace{
		SM:        sm,
		Engine:    eng,
		Log:       log,
		Index:     index,
		Selection: selection.New(),
		Clipboard: clipboard.New(),
	}
}

// Start launches a run in the background if the engine is currently stopped.
func (w *Workspace) Start() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.Engine.Status() != engine.StatusStopped {
		return errs.InvalidStructure("workspace.Start", fmt.Errorf("engine is %s, not stopped", w.Engine.Status()))
	}
	ctx, cancel := context.WithCancel(context.Background())
	w.runCtx, w.runCancel = ctx, cancel
	go func() {
		outcome, err := w.Engine.Run(ctx, w.SM.Root)
		w.mu.Lock()
		w.lastOutcome, w.runErr = outcome, err
		w.mu.Unlock()
	}()
	return nil
}

// requireStopped enforces the structural-mutation gate: clipboard
// operations are rejected while a run is in flight.
func (w *Workspace) requireStopped(op string) error {
	if w.Engine.Status() != engine.StatusStopped {
		return errs.InvalidStructure(op, fmt.Errorf("structural edits require the engine to be stopped, got %s", w.Engine.Status()))
	}
	return nil
}

// LastRun reports the most recent completed run's terminal outcome and error.
func (w *Workspace) LastRun() (string, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.lastOutcome, w.runErr
}
