package snapshot

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zclconf/go-cty/cty"
)

func TestDecode(t *testing.T) {
	src := `{
		"nodes": [
			{"id": "v1", "type": "ValueOp", "position": {"x": 10, "y": 20},
			 "data": {"inputs": {"value": 5}, "locked": true}},
			{"id": "sum", "type": "MathOp", "position": {"x": 100, "y": 20}, "data": {}}
		],
		"edges": [
			{"id": "e1", "source": "v1", "target": "sum",
			 "sourceHandle": "out.out", "targetHandle": "par.a"}
		]
	}`

	snap, err := Decode(strings.NewReader(src))
	require.NoError(t, err)
	require.Len(t, snap.Nodes, 2)
	require.Len(t, snap.Edges, 1)

	assert.Equal(t, "v1", snap.Nodes[0].ID)
	assert.Equal(t, "ValueOp", snap.Nodes[0].Type)
	assert.Equal(t, 10.0, snap.Nodes[0].Position.X)
	assert.True(t, snap.Nodes[0].Data.Locked)
	assert.JSONEq(t, "5", string(snap.Nodes[0].Data.Inputs["value"]))

	assert.Equal(t, "e1", snap.Edges[0].ID)
	assert.Equal(t, "out.out", snap.Edges[0].SourceHandle)
}

func TestDecode_Malformed(t *testing.T) {
	_, err := Decode(strings.NewReader("{nodes:"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decoding graph snapshot")
}

func TestEdge_CanonicalID(t *testing.T) {
	withID := &Edge{ID: "e1", Source: "a", Target: "b", SourceHandle: "out.out", TargetHandle: "par.in"}
	assert.Equal(t, "e1", withID.CanonicalID())

	derived := &Edge{Source: "a", Target: "b", SourceHandle: "out.out", TargetHandle: "par.in"}
	assert.Equal(t, "a.out.out->b.par.in", derived.CanonicalID())
}

func TestEdge_IsReference(t *testing.T) {
	assert.False(t, (&Edge{}).IsReference())
	assert.False(t, (&Edge{Kind: "value"}).IsReference())
	assert.True(t, (&Edge{Kind: "reference"}).IsReference())
}

func TestDecodeValue(t *testing.T) {
	v, err := DecodeValue(json.RawMessage(`5`))
	require.NoError(t, err)
	assert.True(t, v.RawEquals(cty.NumberIntVal(5)))

	v, err = DecodeValue(json.RawMessage(`"hello"`))
	require.NoError(t, err)
	assert.True(t, v.RawEquals(cty.StringVal("hello")))

	v, err = DecodeValue(json.RawMessage(`[1, 2, 3]`))
	require.NoError(t, err)
	require.True(t, v.CanIterateElements())
	assert.Equal(t, 3, v.LengthInt())

	// Objects imply structural object types.
	v, err = DecodeValue(json.RawMessage(`{"name": "a", "n": 2}`))
	require.NoError(t, err)
	assert.True(t, v.Type().IsObjectType())

	_, err = DecodeValue(json.RawMessage(`{broken`))
	assert.Error(t, err)
}
