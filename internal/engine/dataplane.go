package engine

import (
	"github.com/corestate/statecraft/internal/model"
	"github.com/corestate/statecraft/internal/scopeddata"
)

// planeKey derives the scoped-data-plane key for a port or scoped variable
// owned by ownerID (a mapping port_or_sv_id → (name, type,
// value)"). Port and scoped-variable ids are generated from disjoint id
// spaces (internal/ids), so qualifying by owner alone is enough to keep a
// container's own ports, its scoped variables, and every child's output
// slots from colliding in one Plane.
func planeKey(ownerID, key string) string {
	return ownerID + "::" + key
}

// seedContainerEntry installs the container's own input values (already
// resolved by the caller (the enclosing container's data plane), with each
// port's declared default standing in for a missing value) and every scoped
// variable's default into a fresh Plane.
func seedContainerEntry(container *model.State, inputs map[string]scopeddata.Value) *scopeddata.Plane {
	plane := scopeddata.New()
	for _, p := range container.InputPorts {
		v, ok := inputs[p.ID]
		if !ok {
			v = p.Default
		}
		plane.Set(planeKey(container.ID, p.ID), p.Name, p.DataType, v)
	}
	for _, sv := range container.ScopedVars {
		plane.Set(planeKey(container.ID, sv.ID), sv.Name, sv.DataType, sv.Default)
	}
	return plane
}

// resolveChildInputs computes child's inputs by following data flows whose
// to_state is child back to their source: a sibling
// output already written this run, the container's own input, or a scoped
// variable. A missing source falls back to the port's declared default.
func resolveChildInputs(container, child *model.State, plane *scopeddata.Plane) map[string]scopeddata.Value {
	out := make(map[string]scopeddata.Value, len(child.InputPorts))
	for _, p := range child.InputPorts {
		out[p.ID] = p.Default
		for _, d := range container.DataFlows {
			if d.ToState != child.ID || d.ToKey != p.ID {
				continue
			}
			entry, ok := plane.Get(planeKey(d.FromState, d.FromKey))
			if !ok {
				continue
			}
			if v, ok := scopeddata.ConvertTo(entry.Value, kindOf(p.DataType)); ok {
				out[p.ID] = v
			}
			break
		}
	}
	return out
}

// recordChildOutputs writes child's outputs into the container's scoped
// data plane: directly under the child's own key (so later siblings can
// read them as a data-flow source) and, for every outgoing data flow whose
// from_state is child, into the destination slot (scoped variable or the
// container's own output port staging slot).
func recordChildOutputs(container, child *model.State, plane *scopeddata.Plane, outputs map[string]scopeddata.Value) {
	for _, p := range child.OutputPorts {
		v, ok := outputs[p.ID]
		if !ok {
			v = p.Default
		}
		plane.Set(planeKey(child.ID, p.ID), p.Name, p.DataType, v)
	}
	for _, d := range container.DataFlows {
		if d.FromState != child.ID {
			continue
		}
		entry, ok := plane.Get(planeKey(child.ID, d.FromKey))
		if !ok {
			continue
		}
		plane.Set(planeKey(d.ToState, d.ToKey), entry.Name, entry.Type, entry.Value)
	}
}

// fillContainerOutputs reads the container's own output ports back out of
// the scoped data plane at container exit.
func fillContainerOutputs(container *model.State, plane *scopeddata.Plane) map[string]scopeddata.Value {
	out := make(map[string]scopeddata.Value, len(container.OutputPorts))
	for _, p := range container.OutputPorts {
		if entry, ok := plane.Get(planeKey(container.ID, p.ID)); ok {
			out[p.ID] = entry.Value
		} else {
			out[p.ID] = p.Default
		}
	}
	return out
}

func kindOf(dataType string) scopeddata.Kind {
	switch dataType {
	case "int":
		return scopeddata.KindInt
	case "float":
		return scopeddata.KindFloat
	case "string":
		return scopeddata.KindStr
	case "bool":
		return scopeddata.KindBool
	case "bytes":
		return scopeddata.KindBytes
	default:
		return scopeddata.KindNull
	}
}
