// Package scopeddata implements the scoped data plane: the
// per-container-execution map of port/scoped-variable id to (name, type,
// value), and the tagged value variant port values are carried as.
package scopeddata

import (
	"encoding/json"
	"fmt"
)

// Kind tags the variant held by a Value.
type Kind string

const (
	KindInt   Kind = "int"
	KindFloat Kind = "float"
	KindStr   Kind = "string"
	KindBool  Kind = "bool"
	KindBytes Kind = "bytes"
	KindList  Kind = "list"
	KindMap   Kind = "map"
	KindNull  Kind = "null"
)

// Value is the tagged variant carried by ports and scoped variables
// (Int|Float|Str|Bool|Bytes|List(Value)|Map(Str,Value)|Null).
type Value struct {
	Kind  Kind
	Int   int64
	Float float64
	Str   string
	Bool  bool
	Bytes []byte
	List  []Value
	Map   map[string]Value
}

func Null() Value                  { return Value{Kind: KindNull} }
func Int(v int64) Value            { return Value{Kind: KindInt, Int: v} }
func Float(v float64) Value        { return Value{Kind: KindFloat, Float: v} }
func Str(v string) Value           { return Value{Kind: KindStr, Str: v} }
func Bool(v bool) Value            { return Value{Kind: KindBool, Bool: v} }
func Bytes(v []byte) Value         { return Value{Kind: KindBytes, Bytes: v} }
func List(v []Value) Value         { return Value{Kind: KindList, List: v} }
func Map(v map[string]Value) Value { return Value{Kind: KindMap, Map: v} }

// IsNull reports whether v is the Null variant (including the zero Value).
func (v Value) IsNull() bool { return v.Kind == "" || v.Kind == KindNull }

// TypeName returns the declared type name this value's kind corresponds to,
// used to validate against a port's declared data_type.
func (v Value) TypeName() string {
	switch v.Kind {
	case KindList:
		if len(v.List) == 0 {
			return "list<any>"
		}
		return fmt.Sprintf("list<%s>", v.List[0].TypeName())
	case KindMap:
		return "map<string,any>"
	case "":
		return "null"
	default:
		return string(v.Kind)
	}
}

// conversion table. Only the conversions a script output or data-flow crossing can
// legitimately need are implemented; anything else is a hard type error.
var conversions = map[[2]Kind]func(Value) (Value, bool){
	{KindInt, KindFloat}:  func(v Value) (Value, bool) { return Float(float64(v.Int)), true },
	{KindFloat, KindInt}:  func(v Value) (Value, bool) { return Int(int64(v.Float)), true },
	{KindInt, KindStr}:    func(v Value) (Value, bool) { return Str(fmt.Sprintf("%d", v.Int)), true },
	{KindFloat, KindStr}:  func(v Value) (Value, bool) { return Str(fmt.Sprintf("%g", v.Float)), true },
	{KindBool, KindStr}:   func(v Value) (Value, bool) { return Str(fmt.Sprintf("%t", v.Bool)), true },
	{KindNull, KindStr}:   func(v Value) (Value, bool) { return Str(""), true },
}

// ConvertTo attempts to convert v to the given target kind, used when a
// data flow crosses ports of differing declared types. Same-kind is always
// a no-op success.
func ConvertTo(v Value, target Kind) (Value, bool) {
	if v.Kind == target {
		return v, true
	}
	if target == KindNull {
		return Null(), v.IsNull()
	}
	if fn, ok := conversions[[2]Kind{v.Kind, target}]; ok {
		return fn(v)
	}
	return Value{}, false
}

// jsonValue is the wire shape used when a Value is serialised to JSON (a
// history item); internal/storage's YAML layout files encode Value through
// yaml.v3 directly and do not go through it.
type jsonValue struct {
	Kind  Kind              `json:"kind" yaml:"kind"`
	Int   int64             `json:"int,omitempty" yaml:"int,omitempty"`
	Float float64           `json:"float,omitempty" yaml:"float,omitempty"`
	Str   string            `json:"str,omitempty" yaml:"str,omitempty"`
	Bool  bool              `json:"bool,omitempty" yaml:"bool,omitempty"`
	Bytes []byte            `json:"bytes,omitempty" yaml:"bytes,omitempty"`
	List  []jsonValue       `json:"list,omitempty" yaml:"list,omitempty"`
	Map   map[string]jsonValue `json:"map,omitempty" yaml:"map,omitempty"`
}

func toJSONValue(v Value) jsonValue {
	jv := jsonValue{Kind: v.Kind, Int: v.Int, Float: v.Float, Str: v.Str, Bool: v.Bool, Bytes: v.Bytes}
	for _, it := range v.List {
		jv.List = append(jv.List, toJSONValue(it))
	}
	if v.Map != nil {
		jv.Map = make(map[string]jsonValue, len(v.Map))
		for k, it := range v.Map {
			jv.Map[k] = toJSONValue(it)
		}
	}
	return jv
}

func fromJSONValue(jv jsonValue) Value {
	v := Value{Kind: jv.Kind, Int: jv.Int, Float: jv.Float, Str: jv.Str, Bool: jv.Bool, Bytes: jv.Bytes}
	for _, it := range jv.List {
		v.List = append(v.List, fromJSONValue(it))
	}
	if jv.Map != nil {
		v.Map = make(map[string]Value, len(jv.Map))
		for k, it := range jv.Map {
			v.Map[k] = fromJSONValue(it)
		}
	}
	return v
}

func (v Value) MarshalJSON() ([]byte, error) {
	return json.Marshal(toJSONValue(v))
}

func (v *Value) UnmarshalJSON(b []byte) error {
	var jv jsonValue
	if err := json.Unmarshal(b, &jv); err != nil {
		return err
	}
	*v = fromJSONValue(jv)
	return nil
}
