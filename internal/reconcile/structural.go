package reconcile

import (
	"context"

	"github.com/vk/opgraph/internal/ctxlog"
	"github.com/vk/opgraph/internal/field"
	"github.com/vk/opgraph/internal/handle"
	"github.com/vk/opgraph/internal/registry"
	"github.com/vk/opgraph/internal/snapshot"
	"github.com/vk/opgraph/internal/store"
)

// trackLoopChains rebuilds, for every for-loop end, the ordered chain of
// operators bracketed by its matching begin. The walk follows declared
// edges backwards from the end node and stops at the first begin. The
// chain is rebound on the operator only when its identity actually
// changed; an unchanged loop body costs nothing.
func trackLoopChains(ctx context.Context, pop *store.Population, known map[string]*snapshot.Node, edges []*snapshot.Edge) {
	logger := ctxlog.FromContext(ctx)

	incomers := make(map[string][]string)
	for _, e := range edges {
		if e.IsReference() {
			continue
		}
		incomers[e.Target] = append(incomers[e.Target], e.Source)
	}

	for id, n := range known {
		if n.Type != registry.TypeForLoopEnd {
			continue
		}
		endOp, ok := pop.Get(id)
		if !ok {
			continue
		}

		chain := walkLoopChain(known, incomers, id)
		if endOp.SetLoopChain(chain) {
			logger.Debug("Loop chain changed; rebinding.", "end", id, "chain", chain)
			endOp.MarkDirty(pop)
		}
	}
}

// walkLoopChain collects the loop body in dependency order, begin first.
// Recursion stops at the first ForLoopBeginOp on each path; nodes outside
// the bracket (feeding the begin) are not part of the chain.
func walkLoopChain(known map[string]*snapshot.Node, incomers map[string][]string, endID string) []string {
	var chain []string
	seen := make(map[string]struct{})

	var walk func(id string)
	walk = func(id string) {
		for _, src := range incomers[id] {
			if _, ok := seen[src]; ok {
				continue
			}
			seen[src] = struct{}{}
			n, ok := known[src]
			if !ok {
				continue
			}
			if n.Type == registry.TypeForLoopBegin {
				chain = append(chain, src)
				continue
			}
			walk(src)
			chain = append(chain, src)
		}
	}
	walk(endID)
	return chain
}

// propagateContainerInputs establishes the implicit connection from every
// container's "in" input to the "parentValue" input of each direct-child
// graph-input operator. The connection is not backed by an edge and is
// scoped strictly to direct children, never deeper descendants.
func propagateContainerInputs(ctx context.Context, pop *store.Population, known map[string]*snapshot.Node) {
	logger := ctxlog.FromContext(ctx)

	for id, n := range known {
		if n.Type != registry.TypeContainer {
			continue
		}
		containerOp, ok := pop.Get(id)
		if !ok {
			continue
		}
		inField := containerOp.Inputs["in"]
		if inField == nil {
			continue
		}

		for childID, childNode := range known {
			if childNode.Type != registry.TypeGraphInput {
				continue
			}
			if !handle.IsDirectChild(id, childID) {
				continue
			}
			child, ok := pop.Get(childID)
			if !ok {
				continue
			}
			pv := child.Inputs["parentValue"]
			if pv == nil {
				continue
			}

			connID := implicitPrefix + id + "->" + childID
			isNew := !pv.HasConnection(connID)
			pv.AddConnection(connID, id, inField, field.KindValue)
			child.AddUpstream(id)
			containerOp.AddDownstream(childID)
			if isNew {
				logger.Debug("Propagating container input to child.", "container", id, "child", childID)
				child.MarkDirty(pop)
			}
		}
	}
}
