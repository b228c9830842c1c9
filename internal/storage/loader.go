package storage

import "github.com/corestate/statecraft/internal/model"

// Loader satisfies internal/engine's Loader interface: resolving a
// VariantLibrary state's LibraryPath means loading the state machine rooted
// at that path and handing back its root state tree.
// It always loads fresh rather than caching; the persisted layout is the
// source of truth, and engine.Engine already dedups concurrent loads of the
// same path via singleflight.
type Loader struct {
	store *Store
}

// NewLoader wraps store for use as an engine.Loader.
func NewLoader(store *Store) *Loader {
	return &Loader{store: store}
}

func (l *Loader) Load(path string) (*model.State, error) {
	sm, err := l.store.Load(path)
	if err != nil {
		return nil, err
	}
	return sm.Root, nil
}
