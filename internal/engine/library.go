package engine

import (
	"context"
	"fmt"

	"github.com/corestate/statecraft/internal/errs"
	"github.com/corestate/statecraft/internal/model"
	"github.com/corestate/statecraft/internal/scopeddata"
)

// executeLibrary lazily loads the state machine a library state points to
// and delegates execution to its root entirely. Loading
// is deduplicated with singleflight so N concurrent entries into the same
// library path (e.g. sibling branches of a barrier/preemptive container
// that each reference the same library) share one load. Every load starts
// from a fresh in-memory tree rather than a cached one: a library state's own
// script/children are never retained across executions, so editing and
// resaving the library source between runs is always safe.
func (e *Engine) executeLibrary(ctx context.Context, state *model.State, inputs map[string]scopeddata.Value, rc runCtx) (map[string]scopeddata.Value, string, error) {
	if e.loader == nil {
		return nil, "", errs.MissingLibrary("engine.executeLibrary", fmt.Errorf("state %q: no library loader configured", state.ID))
	}
	if state.LibraryPath == "" {
		return nil, "", errs.MissingLibrary("engine.executeLibrary", fmt.Errorf("state %q: no library_path set", state.ID))
	}
	v, err, _ := e.sf.Do(state.LibraryPath, func() (any, error) {
		return e.loader.Load(state.LibraryPath)
	})
	if err != nil {
		return nil, "", errs.MissingLibrary("engine.executeLibrary", err)
	}
	root, ok := v.(*model.State)
	if !ok || root == nil {
		return nil, "", errs.MissingLibrary("engine.executeLibrary", fmt.Errorf("state %q: loader returned no root", state.ID))
	}
	return e.execute(ctx, root, inputs, rc.child(root))
}
