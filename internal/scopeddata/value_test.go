package scopeddata

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestConvertToSameKindIsNoOp(t *testing.T) {
	v, ok := ConvertTo(Int(7), KindInt)
	require.True(t, ok)
	require.Equal(t, Int(7), v)
}

func TestConvertToCrossKind(t *testing.T) {
	cases := []struct {
		name   string
		in     Value
		target Kind
		want   Value
		ok     bool
	}{
		{"int to float", Int(3), KindFloat, Float(3), true},
		{"float to int truncates", Float(2.9), KindInt, Int(2), true},
		{"int to string", Int(42), KindStr, Str("42"), true},
		{"bool to string", Bool(true), KindStr, Str("true"), true},
		{"bytes to int rejected", Bytes([]byte{1}), KindInt, Value{}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := ConvertTo(tc.in, tc.target)
			require.Equal(t, tc.ok, ok)
			if ok {
				require.Equal(t, tc.want, got)
			}
		})
	}
}

func TestValueJSONRoundTripNested(t *testing.T) {
	in := Map(map[string]Value{
		"n":    Int(1),
		"list": List([]Value{Str("a"), Bool(false)}),
	})
	b, err := json.Marshal(in)
	require.NoError(t, err)

	var out Value
	require.NoError(t, json.Unmarshal(b, &out))
	require.Equal(t, in, out)
}

func TestPlaneSnapshotIsIndependent(t *testing.T) {
	p := New()
	p.Set("k1", "x", "int", Int(1))

	snap := p.Snapshot()
	p.Set("k1", "x", "int", Int(2))

	require.Equal(t, Int(1), snap["k1"].Value, "snapshot must not see later mutations")
	entry, ok := p.Get("k1")
	require.True(t, ok)
	require.Equal(t, Int(2), entry.Value)
}
