// Package storage implements the on-disk state-machine layout
// and its load/save round trip, over an afero filesystem so tests can run
// against an in-memory fs. The round trip carries the state tree with its
// ports, outcomes, transitions, data flows and scoped variables. It does not
// store the machine's own id (Load names the machine after its root state's
// id), script bodies, or meta data.
package storage

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"

	"github.com/corestate/statecraft/internal/errs"
	"github.com/corestate/statecraft/internal/ids"
	"github.com/corestate/statecraft/internal/model"
	"github.com/corestate/statecraft/internal/scopeddata"
)

const (
	fileStateMachine = "statemachine.yaml"
	fileCoreData     = "core_data.yaml"
	fileMetaData     = "meta_data.yaml"
	fileScript       = "script.yaml"
)

// Store wraps an afero filesystem rooted at a state-machine directory.
type Store struct {
	fs afero.Fs
}

// New wraps fs. Pass afero.NewMemMapFs() for round-trip tests, or
// afero.NewOsFs() for real disk layouts.
func New(fs afero.Fs) *Store {
	return &Store{fs: fs}
}

type rootMeta struct {
	Version            int       `yaml:"version"`
	CreatedAt          time.Time `yaml:"created_at"`
	UpdatedAt          time.Time `yaml:"updated_at"`
	RootStateStorageID string    `yaml:"root_state_storage_id"`
}

type coreData struct {
	ID           string                     `yaml:"id"`
	Name         string                     `yaml:"name"`
	Variant      model.Variant              `yaml:"variant"`
	InputPorts   []portData                 `yaml:"input_ports,omitempty"`
	OutputPorts  []portData                 `yaml:"output_ports,omitempty"`
	Outcomes     []outcomeData              `yaml:"outcomes,omitempty"`
	Transitions  []transitionData           `yaml:"transitions,omitempty"`
	DataFlows    []dataFlowData             `yaml:"data_flows,omitempty"`
	ScopedVars   []scopedVarData            `yaml:"scoped_variables,omitempty"`
	StartStateID string                     `yaml:"start_state_id,omitempty"`
	LibraryPath  string                     `yaml:"library_path,omitempty"`
	ChildOrder   []string                   `yaml:"child_order,omitempty"`
}

type portData struct {
	ID       string           `yaml:"id"`
	Name     string           `yaml:"name"`
	DataType string           `yaml:"data_type"`
	Default  scopeddata.Value `yaml:"default"`
}

type outcomeData struct {
	ID   string `yaml:"id"`
	Name string `yaml:"name"`
}

type transitionData struct {
	ID          string `yaml:"id"`
	FromState   string `yaml:"from_state"`
	FromOutcome string `yaml:"from_outcome"`
	ToState     string `yaml:"to_state"`
	ToOutcome   string `yaml:"to_outcome"`
}

type dataFlowData struct {
	ID        string `yaml:"id"`
	FromState string `yaml:"from_state"`
	FromKey   string `yaml:"from_key"`
	ToState   string `yaml:"to_state"`
	ToKey     string `yaml:"to_key"`
}

type scopedVarData struct {
	ID       string           `yaml:"id"`
	Name     string           `yaml:"name"`
	DataType string           `yaml:"data_type"`
	Default  scopeddata.Value `yaml:"default"`
}

// Save writes sm to dir following the recursive on-disk layout. A state's
// script body (a Go closure, not data) is never persisted, only that an
// execution state carries one, via a script.yaml marker file holding only
// "present: true";
// resolving an execution state's actual Script after Load is the caller's
// responsibility (e.g. re-binding a named script registry entry).
func (s *Store) Save(dir string, sm *model.StateMachine) error {
	if err := s.fs.MkdirAll(dir, 0o755); err != nil {
		return errs.PersistenceFault("storage.Save", err)
	}
	meta := rootMeta{Version: 1, CreatedAt: time.Now(), UpdatedAt: time.Now(), RootStateStorageID: sm.Root.ID}
	if err := writeYAML(s.fs, filepath.Join(dir, fileStateMachine), meta); err != nil {
		return err
	}
	return s.saveState(dir, sm.Root)
}

func (s *Store) saveState(parentDir string, st *model.State) error {
	stateDir := filepath.Join(parentDir, st.ID)
	if err := s.fs.MkdirAll(stateDir, 0o755); err != nil {
		return errs.PersistenceFault("storage.saveState", err)
	}
	cd := coreData{
		ID: st.ID, Name: st.Name, Variant: st.Variant,
		Outcomes: toOutcomeData(st.Outcomes), StartStateID: st.StartStateID, LibraryPath: st.LibraryPath,
	}
	cd.InputPorts = toPortData(st.InputPorts)
	cd.OutputPorts = toPortData(st.OutputPorts)
	if st.Variant.IsContainer() {
		cd.Transitions = toTransitionData(st.Transitions)
		cd.DataFlows = toDataFlowData(st.DataFlows)
		cd.ScopedVars = toScopedVarData(st.ScopedVars)
		for _, c := range st.Children() {
			cd.ChildOrder = append(cd.ChildOrder, c.ID)
		}
	}
	if err := writeYAML(s.fs, filepath.Join(stateDir, fileCoreData), cd); err != nil {
		return err
	}
	if st.Variant == model.VariantExecution && st.Script != nil {
		if err := writeYAML(s.fs, filepath.Join(stateDir, fileScript), map[string]any{"present": true}); err != nil {
			return err
		}
	}
	if st.Variant.IsContainer() {
		for _, c := range st.Children() {
			if err := s.saveState(stateDir, c); err != nil {
				return err
			}
		}
	}
	return nil
}

// Load reads a state machine back from dir.
func (s *Store) Load(dir string) (*model.StateMachine, error) {
	var meta rootMeta
	if err := readYAML(s.fs, filepath.Join(dir, fileStateMachine), &meta); err != nil {
		return nil, err
	}
	root, err := s.loadState(dir, meta.RootStateStorageID)
	if err != nil {
		return nil, err
	}
	sm := model.NewStateMachine(meta.RootStateStorageID, root)
	sm.FileSystemPath = dir
	return sm, nil
}

func (s *Store) loadState(parentDir, stateID string) (*model.State, error) {
	stateDir := filepath.Join(parentDir, stateID)
	var cd coreData
	if err := readYAML(s.fs, filepath.Join(stateDir, fileCoreData), &cd); err != nil {
		return nil, err
	}
	st := model.NewState(cd.ID, cd.Name, cd.Variant)
	st.InputPorts = fromPortData(cd.InputPorts)
	st.OutputPorts = fromPortData(cd.OutputPorts)
	if len(cd.Outcomes) > 0 {
		st.Outcomes = fromOutcomeData(cd.Outcomes)
	}
	st.StartStateID = cd.StartStateID
	st.LibraryPath = cd.LibraryPath
	if st.Variant.IsContainer() {
		st.Transitions = fromTransitionData(cd.Transitions)
		st.DataFlows = fromDataFlowData(cd.DataFlows)
		st.ScopedVars = fromScopedVarData(cd.ScopedVars)
		for _, childID := range cd.ChildOrder {
			if childID == ids.UniqueDeciderStateID {
				// NewState already attached a fresh decider; restore the
				// persisted decider's authored surface onto it.
				if d, ok := st.Decider(); ok {
					var dcd coreData
					if err := readYAML(s.fs, filepath.Join(stateDir, childID, fileCoreData), &dcd); err == nil {
						d.Name = dcd.Name
						d.InputPorts = fromPortData(dcd.InputPorts)
						d.OutputPorts = fromPortData(dcd.OutputPorts)
						if len(dcd.Outcomes) > 0 {
							d.Outcomes = fromOutcomeData(dcd.Outcomes)
						}
					}
				}
				continue
			}
			child, err := s.loadState(stateDir, childID)
			if err != nil {
				return nil, err
			}
			if err := model.AddState(st, child); err != nil {
				return nil, err
			}
		}
	}
	return st, nil
}

func writeYAML(fs afero.Fs, path string, v any) error {
	b, err := yaml.Marshal(v)
	if err != nil {
		return errs.PersistenceFault("storage.writeYAML", err)
	}
	if err := afero.WriteFile(fs, path, b, 0o644); err != nil {
		return errs.PersistenceFault("storage.writeYAML", err)
	}
	return nil
}

func readYAML(fs afero.Fs, path string, v any) error {
	b, err := afero.ReadFile(fs, path)
	if err != nil {
		return errs.PersistenceFault("storage.readYAML", err)
	}
	if err := yaml.Unmarshal(b, v); err != nil {
		return errs.PersistenceFault("storage.readYAML", fmt.Errorf("%s: %w", path, err))
	}
	return nil
}

func toPortData(ps []*model.Port) []portData {
	out := make([]portData, len(ps))
	for i, p := range ps {
		out[i] = portData{ID: p.ID, Name: p.Name, DataType: p.DataType, Default: p.Default}
	}
	return out
}

func fromPortData(ps []portData) []*model.Port {
	out := make([]*model.Port, len(ps))
	for i, p := range ps {
		out[i] = &model.Port{ID: p.ID, Name: p.Name, DataType: p.DataType, Default: p.Default}
	}
	return out
}

func toOutcomeData(os []*model.Outcome) []outcomeData {
	out := make([]outcomeData, len(os))
	for i, o := range os {
		out[i] = outcomeData{ID: o.ID, Name: o.Name}
	}
	return out
}

func fromOutcomeData(os []outcomeData) []*model.Outcome {
	out := make([]*model.Outcome, len(os))
	for i, o := range os {
		out[i] = &model.Outcome{ID: o.ID, Name: o.Name}
	}
	return out
}

func toTransitionData(ts []*model.Transition) []transitionData {
	out := make([]transitionData, len(ts))
	for i, t := range ts {
		out[i] = transitionData{ID: t.ID, FromState: t.FromState, FromOutcome: t.FromOutcome, ToState: t.ToState, ToOutcome: t.ToOutcome}
	}
	return out
}

func fromTransitionData(ts []transitionData) []*model.Transition {
	out := make([]*model.Transition, len(ts))
	for i, t := range ts {
		out[i] = &model.Transition{ID: t.ID, FromState: t.FromState, FromOutcome: t.FromOutcome, ToState: t.ToState, ToOutcome: t.ToOutcome}
	}
	return out
}

func toDataFlowData(ds []*model.DataFlow) []dataFlowData {
	out := make([]dataFlowData, len(ds))
	for i, d := range ds {
		out[i] = dataFlowData{ID: d.ID, FromState: d.FromState, FromKey: d.FromKey, ToState: d.ToState, ToKey: d.ToKey}
	}
	return out
}

func fromDataFlowData(ds []dataFlowData) []*model.DataFlow {
	out := make([]*model.DataFlow, len(ds))
	for i, d := range ds {
		out[i] = &model.DataFlow{ID: d.ID, FromState: d.FromState, FromKey: d.FromKey, ToState: d.ToState, ToKey: d.ToKey}
	}
	return out
}

func toScopedVarData(vs []*model.ScopedVariable) []scopedVarData {
	out := make([]scopedVarData, len(vs))
	for i, v := range vs {
		out[i] = scopedVarData{ID: v.ID, Name: v.Name, DataType: v.DataType, Default: v.Default}
	}
	return out
}

func fromScopedVarData(vs []scopedVarData) []*model.ScopedVariable {
	out := make([]*model.ScopedVariable, len(vs))
	for i, v := range vs {
		out[i] = &model.ScopedVariable{ID: v.ID, Name: v.Name, DataType: v.DataType, Default: v.Default}
	}
	return out
}
