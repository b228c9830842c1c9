package clipboard

import (
	"fmt"

	"github.com/corestate/statecraft/internal/errs"
	"github.com/corestate/statecraft/internal/ids"
	"github.com/corestate/statecraft/internal/model"
)

// outcomeKey and portKey are the composite remap keys:
// outcome_id_map is keyed by (old_parent_state_id, old_outcome_id),
// port_id_map by (old_state_id, old_port_id).
type outcomeKey struct{ parentStateID, outcomeID string }
type portKey struct{ stateID, portID string }

// remapTables holds the three maps a paste maintains for its duration.
type remapTables struct {
	stateIDMap   map[string]string
	outcomeIDMap map[outcomeKey]string
	portIDMap    map[portKey]string
}

// Paste re-deep-copies the clipboard's held subgraph and installs it under
// target: states first, then outcomes/ports/scoped
// variables (suffixing a freshly allocated ids.NewShortID id, such as
// "sv3-mfrggzdf", on name collision; the suffix is not purely numeric),
// then transitions/data flows rewritten through the three maps. A linkage
// whose endpoint fell outside the pasted set is dropped; no warning is
// logged or returned for it.
func (c *Clipboard) Paste(target *model.State) error {
	if c.Empty() {
		return errs.InvalidStructure("clipboard.Paste", fmt.Errorf("clipboard is empty"))
	}
	if !target.Variant.IsContainer() {
		return errs.InvalidStructure("clipboard.Paste", fmt.Errorf("target %q is not a container", target.ID))
	}

	tables := &remapTables{
		stateIDMap:   map[string]string{},
		outcomeIDMap: map[outcomeKey]string{},
		portIDMap:    map[portKey]string{},
	}

	fresh := make([]*model.State, len(c.states))
	for i, s := range c.states {
		fresh[i] = cloneState(s)
	}

	// Step 1: insert states, remapping id on collision.
	for _, st := range fresh {
		oldID := st.ID
		newID := oldID
		if _, exists := target.Child(newID); exists || newID == target.ID {
			newID = ids.NewShortID("state")
		}
		st.ID = newID
		tables.stateIDMap[oldID] = newID
		if err := model.AddState(target, st); err != nil {
			return err
		}
	}

	// Step 2: outcomes, input ports, output ports, scoped variables.
	for _, st := range fresh {
		oldStateID := reverseLookup(tables.stateIDMap, st.ID)
		remapOutcomes(st, oldStateID, tables)
		remapPorts(st.InputPorts, oldStateID, tables)
		remapPorts(st.OutputPorts, oldStateID, tables)
	}
	for _, sv := range c.scopedVars {
		cp := *sv
		if hasScopedVarName(target, cp.Name) {
			cp.ID = ids.NewShortID("sv")
			cp.Name = fmt.Sprintf("%s_%s", cp.Name, cp.ID)
		}
		target.ScopedVars = append(target.ScopedVars, &cp)
	}

	// Step 3: transitions and data flows, rewritten through the maps, target last.
	for _, t := range c.transitions {
		nt := *t
		fromState, ok1 := remapState(tables, nt.FromState, target)
		toState, ok2 := remapState(tables, nt.ToState, target)
		if !ok1 || !ok2 {
			continue // endpoint outside the pasted set; dropped silently
		}
		if no, ok := tables.outcomeIDMap[outcomeKey{t.FromState, t.FromOutcome}]; ok {
			nt.FromOutcome = no
		}
		if no, ok := tables.outcomeIDMap[outcomeKey{t.ToState, t.ToOutcome}]; ok {
			nt.ToOutcome = no
		}
		nt.FromState, nt.ToState = fromState, toState
		nt.ID = ids.NewShortID("trans")
		target.Transitions = append(target.Transitions, &nt)
	}
	for _, d := range c.dataFlows {
		nd := *d
		fromState, ok1 := remapState(tables, nd.FromState, target)
		toState, ok2 := remapState(tables, nd.ToState, target)
		if !ok1 || !ok2 {
			continue
		}
		if nk, ok := tables.portIDMap[portKey{d.FromState, d.FromKey}]; ok {
			nd.FromKey = nk
		}
		if nk, ok := tables.portIDMap[portKey{d.ToState, d.ToKey}]; ok {
			nd.ToKey = nk
		}
		nd.FromState, nd.ToState = fromState, toState
		nd.ID = ids.NewShortID("df")
		target.DataFlows = append(target.DataFlows, &nd)
	}
	return nil
}

func remapState(tables *remapTables, oldID string, target *model.State) (string, bool) {
	if oldID == target.ID {
		return target.ID, true
	}
	if newID, ok := tables.stateIDMap[oldID]; ok {
		return newID, true
	}
	return "", false
}

func reverseLookup(m map[string]string, newID string) string {
	for old, nw := range m {
		if nw == newID {
			return old
		}
	}
	return newID
}

func remapOutcomes(st *model.State, oldStateID string, tables *remapTables) {
	seen := map[string]bool{}
	for _, o := range st.Outcomes {
		oldID := o.ID
		if seen[o.Name] {
			o.ID = ids.NewShortID("oc")
		}
		seen[o.Name] = true
		tables.outcomeIDMap[outcomeKey{oldStateID, oldID}] = o.ID
	}
}

func remapPorts(ports []*model.Port, oldStateID string, tables *remapTables) {
	seen := map[string]bool{}
	for _, p := range ports {
		oldID := p.ID
		if seen[p.Name] {
			p.ID = ids.NewShortID("port")
			p.Name = fmt.Sprintf("%s_%s", p.Name, p.ID)
		}
		seen[p.Name] = true
		tables.portIDMap[portKey{oldStateID, oldID}] = p.ID
	}
}

func hasScopedVarName(container *model.State, name string) bool {
	for _, v := range container.ScopedVars {
		if v.Name == name {
			return true
		}
	}
	return false
}
