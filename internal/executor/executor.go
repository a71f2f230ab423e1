// Package executor drives evaluation of the live population: it refuses
// cyclic graphs, pulls the requested sinks, and reports per-operator
// results without letting one failure abort its siblings.
package executor

import (
	"context"
	"fmt"

	"github.com/hashicorp/go-multierror"
	"github.com/vk/opgraph/internal/ctxlog"
	"github.com/vk/opgraph/internal/dag"
	"github.com/vk/opgraph/internal/op"
	"github.com/vk/opgraph/internal/store"
	"github.com/zclconf/go-cty/cty"
)

// Result is the outcome of pulling one operator.
type Result struct {
	Outputs map[string]cty.Value
	Err     error
}

// Evaluate pulls the named operators, or every sink (operator with no
// dependents) when ids is empty. Each sink is evaluated independently: a
// failing subgraph is captured in its Result while siblings proceed. The
// returned error is non-nil only for structural refusals (cyclic graph,
// unknown id).
func Evaluate(ctx context.Context, pop *store.Population, ids []string) (map[string]Result, error) {
	logger := ctxlog.FromContext(ctx)

	g := BuildGraph(pop)
	if _, cycles := g.TopologicalSort(); len(cycles) > 0 {
		return nil, fmt.Errorf("graph contains cycles involving %v; refusing to evaluate", cycles)
	}

	targets := ids
	if len(targets) == 0 {
		targets = sinks(pop)
	}

	var structural *multierror.Error
	results := make(map[string]Result, len(targets))
	for _, id := range targets {
		o, ok := pop.Get(id)
		if !ok {
			structural = multierror.Append(structural, fmt.Errorf("no operator with id %q", id))
			continue
		}
		outputs, err := o.Pull(ctx, pop)
		if err != nil {
			logger.Warn("Operator evaluation failed.", "op", id, "error", err)
		}
		results[id] = Result{Outputs: outputs, Err: err}
	}
	return results, structural.ErrorOrNil()
}

// MarkDirty marks a batch of operators dirty. Propagation is idempotent,
// so overlapping downstream sets cost nothing extra.
func MarkDirty(pop *store.Population, ids []string) {
	for _, id := range ids {
		if o, ok := pop.Get(id); ok {
			o.MarkDirty(pop)
		}
	}
}

// Levels groups the live population into parallel-safe execution levels:
// every operator in level k depends only on operators in earlier levels.
func Levels(pop *store.Population) [][]string {
	return BuildGraph(pop).Levels()
}

// BuildGraph projects the population's operator-level adjacency into a
// dag.Graph for ordering and cycle queries.
func BuildGraph(pop *store.Population) *dag.Graph {
	g := dag.New()
	all := pop.All()
	for _, o := range all {
		g.AddNode(o.ID)
	}
	for _, o := range all {
		for _, upID := range o.Upstream() {
			if g.Has(upID) {
				_ = g.AddEdge(upID, o.ID)
			}
		}
	}
	return g
}

// sinks returns the ids of operators nothing depends on.
func sinks(pop *store.Population) []string {
	var out []string
	for _, o := range pop.All() {
		if len(o.Downstream()) == 0 {
			out = append(out, o.ID)
		}
	}
	return out
}

var _ op.Resolver = (*store.Population)(nil)
