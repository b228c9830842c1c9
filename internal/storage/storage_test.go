package storage

import (
	"testing"

	"github.com/spf13/afero"

	"github.com/corestate/statecraft/internal/model"
	"github.com/corestate/statecraft/internal/scopeddata"
)

func buildSampleMachine() *model.StateMachine {
	root := model.NewState("root", "root", model.VariantHierarchy)
	a := model.NewState("a", "a", model.VariantExecution)
	b := model.NewState("b", "b", model.VariantExecution)
	_ = model.AddState(root, a)
	_ = model.AddState(root, b)
	root.StartStateID = a.ID
	_ = model.AddPort(a, &model.Port{ID: "out1", Name: "out1", DataType: "int", Default: scopeddata.Int(0)}, model.Output)
	_ = model.AddPort(b, &model.Port{ID: "in1", Name: "in1", DataType: "int", Default: scopeddata.Int(0)}, model.Input)
	_ = model.AddTransition(root, &model.Transition{ID: "t1", FromState: a.ID, FromOutcome: a.Outcomes[0].ID, ToState: b.ID, ToOutcome: ""})
	_ = model.AddDataFlow(root, &model.DataFlow{ID: "df1", FromState: a.ID, FromKey: "out1", ToState: b.ID, ToKey: "in1"})
	return model.NewStateMachine("sm1", root)
}

func TestSaveLoadRoundTrip(t *testing.T) {
	fs := afero.NewMemMapFs()
	store := New(fs)
	sm := buildSampleMachine()

	if err := store.Save("/machines/sm1", sm); err != nil {
		t.Fatalf("Save: %v", err)
	}

	loaded, err := store.Load("/machines/sm1")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if loaded.Root.ID != sm.Root.ID {
		t.Fatalf("root id: want=%q got=%q", sm.Root.ID, loaded.Root.ID)
	}
	if loaded.Root.StartStateID != sm.Root.StartStateID {
		t.Fatalf("start state id: want=%q got=%q", sm.Root.StartStateID, loaded.Root.StartStateID)
	}
	if len(loaded.Root.Children()) != 2 {
		t.Fatalf("children count: want=2 got=%d", len(loaded.Root.Children()))
	}
	if len(loaded.Root.Transitions) != 1 || loaded.Root.Transitions[0].ID != "t1" {
		t.Fatalf("transitions not round-tripped: %+v", loaded.Root.Transitions)
	}
	if len(loaded.Root.DataFlows) != 1 || loaded.Root.DataFlows[0].ID != "df1" {
		t.Fatalf("data flows not round-tripped: %+v", loaded.Root.DataFlows)
	}

	a, ok := loaded.Root.Child("a")
	if !ok {
		t.Fatalf("child 'a' missing after load")
	}
	if len(a.OutputPorts) != 1 || a.OutputPorts[0].ID != "out1" {
		t.Fatalf("ports not round-tripped on child a: %+v", a.OutputPorts)
	}
}

func TestLoadMissingStateMachineFile(t *testing.T) {
	fs := afero.NewMemMapFs()
	store := New(fs)
	if _, err := store.Load("/nope"); err == nil {
		t.Fatalf("Load: expected error for missing statemachine.yaml, got nil")
	}
}

func TestLoaderResolvesRoot(t *testing.T) {
	fs := afero.NewMemMapFs()
	store := New(fs)
	sm := buildSampleMachine()
	if err := store.Save("/lib/sm1", sm); err != nil {
		t.Fatalf("Save: %v", err)
	}

	loader := NewLoader(store)
	root, err := loader.Load("/lib/sm1")
	if err != nil {
		t.Fatalf("Loader.Load: %v", err)
	}
	if root.ID != sm.Root.ID {
		t.Fatalf("loader root id: want=%q got=%q", sm.Root.ID, root.ID)
	}
}
