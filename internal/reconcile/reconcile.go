// Package reconcile converts a declarative {nodes, edges} snapshot into
// the live operator population: it diffs the snapshot against existing
// instances, wires field-level connections from edge handles, and applies
// the structural special cases (container input propagation, for-loop
// chain tracking). The UI, storage and assistant layers all feed the same
// snapshot format through this single path.
package reconcile

import (
	"context"
	"fmt"
	"strings"

	"github.com/vk/opgraph/internal/ctxlog"
	"github.com/vk/opgraph/internal/dag"
	"github.com/vk/opgraph/internal/field"
	"github.com/vk/opgraph/internal/handle"
	"github.com/vk/opgraph/internal/op"
	"github.com/vk/opgraph/internal/registry"
	"github.com/vk/opgraph/internal/schema"
	"github.com/vk/opgraph/internal/snapshot"
	"github.com/vk/opgraph/internal/store"
)

// implicitPrefix marks the non-edge-backed connections the reconciler
// maintains itself (container -> child input propagation). They are never
// torn down by edge diffing.
const implicitPrefix = "implicit:"

// TransformGraph reconciles the snapshot against the live population and
// returns the resulting operators in creation order. It is idempotent
// given the same snapshot and prior state. The only fatal failure is a
// malformed handle or an unresolvable field, which indicates an
// un-migrated or corrupt project; schema-incompatible connections are
// wired anyway and recorded on the target operator.
//
// All structural mutations run inside a notification batch so external
// field subscribers never observe an intermediate state.
func TransformGraph(ctx context.Context, pop *store.Population, reg *registry.Registry, snap *snapshot.Snapshot) ([]*op.Operator, error) {
	var (
		result []*op.Operator
		err    error
	)
	pop.Batch(func() {
		result, err = transform(ctx, pop, reg, snap)
	})
	return result, err
}

func transform(ctx context.Context, pop *store.Population, reg *registry.Registry, snap *snapshot.Snapshot) ([]*op.Operator, error) {
	logger := ctxlog.FromContext(ctx)

	// Pass 1: filter to known operator types and fix creation order by
	// topologically sorting the declared edges, so a container exists
	// before its children and sources before their sinks.
	known := make(map[string]*snapshot.Node)
	for _, n := range snap.Nodes {
		if _, ok := reg.Lookup(n.Type); !ok {
			logger.Warn("Skipping node with unknown operator type.", "id", n.ID, "type", n.Type)
			continue
		}
		known[n.ID] = n
	}

	order := creationOrder(known, snap.Edges)
	logger.Debug("Reconciliation order resolved.", "nodes", len(order), "edges", len(snap.Edges))

	// Pass 2: dispose operators whose node disappeared from the snapshot.
	for _, live := range pop.All() {
		if _, ok := known[live.ID]; !ok {
			logger.Debug("Disposing operator absent from snapshot.", "id", live.ID)
			live.Dispose()
			pop.Delete(live.ID)
		}
	}

	// Pass 3: reuse or create operators. Existing instances keep their
	// field values; new instances get the declared initial inputs.
	result := make([]*op.Operator, 0, len(order))
	for _, id := range order {
		n := known[id]
		o, exists := pop.Get(id)
		if exists {
			o.Locked = n.Data.Locked
			result = append(result, o)
			continue
		}

		o, err := reg.Instantiate(n.Type, n.ID, n.Data.Locked, pop.Batcher())
		if err != nil {
			return nil, fmt.Errorf("creating operator %q: %w", n.ID, err)
		}
		applyDeclaredInputs(ctx, o, n)
		o.BindDirtyHook(pop)
		pop.Set(o)
		result = append(result, o)
	}

	// Pass 4: tear down field connections whose edge disappeared. This is
	// independent of node removal: an edge deletion removes exactly its
	// own connection.
	liveEdges := make(map[string]struct{}, len(snap.Edges))
	for _, e := range snap.Edges {
		liveEdges[e.CanonicalID()] = struct{}{}
	}
	removeStaleConnections(ctx, pop, liveEdges)

	// Pass 5: wire every declared edge.
	for _, e := range snap.Edges {
		if err := wireEdge(ctx, pop, e); err != nil {
			return nil, err
		}
	}

	// Pass 6: rebuild operator-level adjacency from the field connections
	// now in place.
	rebuildAdjacency(pop)

	// Pass 7: structural special cases.
	trackLoopChains(ctx, pop, known, snap.Edges)
	propagateContainerInputs(ctx, pop, known)

	return result, nil
}

// creationOrder topologically sorts the declared nodes by declared edges;
// nodes on cycles still appear so reconciliation never loses them.
func creationOrder(known map[string]*snapshot.Node, edges []*snapshot.Edge) []string {
	g := dag.New()
	for id := range known {
		g.AddNode(id)
	}
	for _, e := range edges {
		if _, ok := known[e.Source]; !ok {
			continue
		}
		if _, ok := known[e.Target]; !ok {
			continue
		}
		// Declared edges, not live dependencies: errors (self edges) are
		// ignored here and surface during wiring instead.
		_ = g.AddEdge(e.Source, e.Target)
	}
	// Creation order tolerates cycles; evaluation refuses them later.
	order, _ := g.TopologicalSort()
	return order
}

// applyDeclaredInputs writes a node's declared initial input values into a
// freshly created operator. Validation failures are surfaced per field,
// never thrown, and leave the field at its default.
func applyDeclaredInputs(ctx context.Context, o *op.Operator, n *snapshot.Node) {
	logger := ctxlog.FromContext(ctx)
	for name, raw := range n.Data.Inputs {
		f, ok := o.Inputs[name]
		if !ok {
			logger.Warn("Declared input does not exist on operator type.", "id", n.ID, "input", name)
			continue
		}
		v, err := snapshot.DecodeValue(raw)
		if err != nil {
			logger.Warn("Could not decode declared input value.", "id", n.ID, "input", name, "error", err)
			continue
		}
		if err := f.SetValue(v); err != nil {
			logger.Warn("Declared input value failed validation.", "id", n.ID, "input", name, "error", err)
		}
	}
}

// removeStaleConnections drops every field connection whose edge id no
// longer appears in the snapshot, clearing any validation error recorded
// for it. Implicit connections are managed separately and skipped.
func removeStaleConnections(ctx context.Context, pop *store.Population, liveEdges map[string]struct{}) {
	logger := ctxlog.FromContext(ctx)
	for _, o := range pop.All() {
		for _, f := range o.Inputs {
			for _, c := range f.Connections() {
				if strings.HasPrefix(c.ID, implicitPrefix) {
					continue
				}
				if _, ok := liveEdges[c.ID]; ok {
					continue
				}
				logger.Debug("Removing connection for deleted edge.", "op", o.ID, "edge", c.ID)
				f.RemoveConnection(c.ID, c.Kind)
				o.ClearConnectionError(c.ID)
				o.MarkDirty(pop)
			}
		}
	}
}

// wireEdge parses both handles, resolves the endpoint fields and registers
// the field-level connection. Malformed handles are fatal; incompatible
// schemas are wired anyway and recorded on the target operator so the
// surrounding editor can show a non-blocking diagnostic.
func wireEdge(ctx context.Context, pop *store.Population, e *snapshot.Edge) error {
	logger := ctxlog.FromContext(ctx)
	edgeID := e.CanonicalID()

	srcOp, ok := pop.Get(e.Source)
	if !ok {
		logger.Warn("Edge source refers to a node that was not created.", "edge", edgeID)
		return nil
	}
	dstOp, ok := pop.Get(e.Target)
	if !ok {
		logger.Warn("Edge target refers to a node that was not created.", "edge", edgeID)
		return nil
	}

	srcHandle, err := handle.Parse(e.SourceHandle)
	if err != nil {
		return fmt.Errorf("edge %q: source handle: %w", edgeID, err)
	}
	dstHandle, err := handle.Parse(e.TargetHandle)
	if err != nil {
		return fmt.Errorf("edge %q: target handle: %w", edgeID, err)
	}
	if dstHandle.Namespace != handle.NamespaceParam {
		return fmt.Errorf("edge %q: target handle must address an input, got %q", edgeID, e.TargetHandle)
	}

	// Namespace "out" is a normal output; "par" reads an input as a
	// reference source for formula-style edges.
	var srcField *field.Field
	switch srcHandle.Namespace {
	case handle.NamespaceOutput:
		srcField = srcOp.Outputs[srcHandle.Field]
	case handle.NamespaceParam:
		srcField = srcOp.Inputs[srcHandle.Field]
	}
	if srcField == nil {
		return fmt.Errorf("edge %q: no field %q on %s", edgeID, e.SourceHandle, e.Source)
	}
	dstField := dstOp.Inputs[dstHandle.Field]
	if dstField == nil {
		return fmt.Errorf("edge %q: no input %q on %s", edgeID, dstHandle.Field, e.Target)
	}

	if srcField == dstField {
		verr := fmt.Errorf("edge %q: source and target resolve to the same field", edgeID)
		logger.Warn("Edge loops a field back onto itself; skipping.", "edge", edgeID)
		dstOp.SetConnectionError(edgeID, verr)
		return nil
	}

	kind := field.KindValue
	if e.IsReference() {
		kind = field.KindReference
	}

	if verr := schema.ValidateConnection(srcField.Schema(), srcField.Value(), dstField.Schema()); verr != nil {
		logger.Warn("Edge connects incompatible fields; wiring anyway.", "edge", edgeID, "error", verr)
		dstOp.SetConnectionError(edgeID, verr)
	} else {
		dstOp.ClearConnectionError(edgeID)
	}

	isNew := !dstField.HasConnection(edgeID)
	dstField.AddConnection(edgeID, e.Source, srcField, kind)
	if isNew {
		dstOp.MarkDirty(pop)
	}
	return nil
}

// rebuildAdjacency derives the operator-level dependency edges from the
// field connections currently in place. Adjacency is recomputed wholesale
// each pass; it is cheap and removes the need to mirror every connection
// add/remove.
func rebuildAdjacency(pop *store.Population) {
	all := pop.All()
	for _, o := range all {
		o.ResetAdjacency()
	}
	for _, o := range all {
		for _, f := range o.Inputs {
			for _, c := range f.Connections() {
				if c.SourceOp == o.ID {
					continue
				}
				if up, ok := pop.Get(c.SourceOp); ok {
					o.AddUpstream(up.ID)
					up.AddDownstream(o.ID)
				}
			}
		}
	}
}
