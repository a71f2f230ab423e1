// Package snapshot defines the declarative graph format consumed by the
// reconciler: a flat collection of nodes and edges. Node ids are
// slash-delimited hierarchical paths; edge handles follow the
// "{par|out}.{fieldName}" grammar.
package snapshot

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/vk/opgraph/internal/handle"
	"github.com/zclconf/go-cty/cty"
	ctyjson "github.com/zclconf/go-cty/cty/json"
)

// Position is the node's editor placement. The engine carries it through
// untouched.
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// NodeData holds the declared initial inputs and the lock flag.
type NodeData struct {
	Inputs map[string]json.RawMessage `json:"inputs,omitempty"`
	Locked bool                       `json:"locked,omitempty"`
}

// Node is one declared operator.
type Node struct {
	ID       string   `json:"id"`
	Type     string   `json:"type"`
	Position Position `json:"position"`
	Data     NodeData `json:"data"`
}

// Edge is one declared connection between two field handles. Kind is
// either "" / "value" for data flow or "reference" for read-only lookups.
type Edge struct {
	ID           string `json:"id,omitempty"`
	Source       string `json:"source"`
	Target       string `json:"target"`
	SourceHandle string `json:"sourceHandle"`
	TargetHandle string `json:"targetHandle"`
	Kind         string `json:"kind,omitempty"`
}

// CanonicalID returns the edge's stable identifier, deriving it from the
// endpoints when the snapshot did not carry one.
func (e *Edge) CanonicalID() string {
	if e.ID != "" {
		return e.ID
	}
	return handle.EdgeID(e.Source, e.SourceHandle, e.Target, e.TargetHandle)
}

// IsReference reports whether the edge is reference-only.
func (e *Edge) IsReference() bool {
	return e.Kind == "reference"
}

// Snapshot is a complete declarative description of the graph.
type Snapshot struct {
	Nodes []*Node `json:"nodes"`
	Edges []*Edge `json:"edges"`
}

// Decode reads a JSON snapshot.
func Decode(r io.Reader) (*Snapshot, error) {
	var s Snapshot
	dec := json.NewDecoder(r)
	if err := dec.Decode(&s); err != nil {
		return nil, fmt.Errorf("decoding graph snapshot: %w", err)
	}
	return &s, nil
}

// DecodeValue converts a raw JSON input value into a cty value with its
// implied type, so arbitrary JSON-shaped data flows through dynamic
// fields.
func DecodeValue(raw json.RawMessage) (cty.Value, error) {
	ty, err := ctyjson.ImpliedType(raw)
	if err != nil {
		return cty.NilVal, fmt.Errorf("implying type of input value: %w", err)
	}
	v, err := ctyjson.Unmarshal(raw, ty)
	if err != nil {
		return cty.NilVal, fmt.Errorf("decoding input value: %w", err)
	}
	return v, nil
}
