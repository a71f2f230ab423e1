package builtin

import (
	"context"
	"fmt"

	"github.com/vk/opgraph/internal/ctxlog"
	"github.com/vk/opgraph/internal/op"
	"github.com/vk/opgraph/internal/registry"
	"github.com/vk/opgraph/internal/schema"
	"github.com/zclconf/go-cty/cty"
)

func registerStructuralOps(r *registry.Registry) {
	r.Register(&registry.Spec{
		Type: registry.TypeContainer,
		Inputs: []registry.FieldSpec{
			{Name: "in", Schema: schema.Any()},
		},
		Outputs: []registry.FieldSpec{
			{Name: "out", Schema: schema.Any()},
		},
		Run: passthrough("in", "out"),
	})

	r.Register(&registry.Spec{
		Type: registry.TypeGraphInput,
		Inputs: []registry.FieldSpec{
			{Name: "parentValue", Schema: schema.Any()},
		},
		Outputs: []registry.FieldSpec{
			{Name: "out", Schema: schema.Any()},
		},
		Run: passthrough("parentValue", "out"),
	})

	r.Register(&registry.Spec{
		Type: registry.TypeGraphOutput,
		Inputs: []registry.FieldSpec{
			{Name: "in", Schema: schema.Any()},
		},
		Outputs: []registry.FieldSpec{
			{Name: "out", Schema: schema.Any()},
		},
		Run: passthrough("in", "out"),
	})

	r.Register(&registry.Spec{
		Type: registry.TypeForLoopBegin,
		Inputs: []registry.FieldSpec{
			{Name: "items", Schema: schema.Any()},
		},
		Outputs: []registry.FieldSpec{
			{Name: "item", Schema: schema.Any()},
			{Name: "index", Schema: schema.Number()},
		},
		// No body: outputs are staged per iteration by the loop end.
	})

	r.Register(&registry.Spec{
		Type: registry.TypeForLoopEnd,
		Inputs: []registry.FieldSpec{
			{Name: "result", Schema: schema.Any()},
		},
		Outputs: []registry.FieldSpec{
			{Name: "results", Schema: schema.Any()},
		},
		RunGraph: runForLoopEnd,
	})
}

func passthrough(in, out string) op.RunFunc {
	return func(ctx context.Context, inputs map[string]cty.Value) (map[string]cty.Value, error) {
		return map[string]cty.Value{out: inputs[in]}, nil
	}
}

// runForLoopEnd drives the loop body once per element of the begin
// operator's items: the item and its index are staged onto the begin's
// outputs, dirtiness flows through the chain naturally, and the end's
// upstream is re-pulled before its "result" input is collected.
func runForLoopEnd(ctx context.Context, o *op.Operator, res op.Resolver) (map[string]cty.Value, error) {
	logger := ctxlog.FromContext(ctx).With("op", o.ID)

	chain := o.LoopChain()
	if len(chain) == 0 {
		return nil, fmt.Errorf("for-loop end %s has no matching begin", o.ID)
	}
	begin, ok := res.Get(chain[0])
	if !ok || begin.Type != registry.TypeForLoopBegin {
		return nil, fmt.Errorf("for-loop end %s: chain head %q is not a loop begin", o.ID, chain[0])
	}

	// Resolve whatever feeds the items list before iterating.
	for _, upID := range begin.Upstream() {
		up, ok := res.Get(upID)
		if !ok {
			continue
		}
		if _, err := up.Pull(ctx, res); err != nil {
			return nil, fmt.Errorf("resolving loop items: %w", err)
		}
	}

	items := begin.Inputs["items"].Value()
	if items == cty.NilVal || items.IsNull() {
		return map[string]cty.Value{"results": cty.EmptyTupleVal}, nil
	}
	if !items.CanIterateElements() {
		return nil, fmt.Errorf("loop items are not iterable: %s", items.Type().FriendlyName())
	}

	var results []cty.Value
	index := int64(0)
	for it := items.ElementIterator(); it.Next(); {
		_, item := it.Element()
		logger.Debug("Loop iteration.", "index", index)

		if err := begin.StageOutputs(map[string]cty.Value{
			"item":  item,
			"index": cty.NumberIntVal(index),
		}); err != nil {
			return nil, fmt.Errorf("staging loop variable: %w", err)
		}

		for _, upID := range o.Upstream() {
			up, ok := res.Get(upID)
			if !ok {
				continue
			}
			if _, err := up.Pull(ctx, res); err != nil {
				return nil, fmt.Errorf("iteration %d: %w", index, err)
			}
		}

		results = append(results, o.Inputs["result"].Value())
		index++
	}

	if len(results) == 0 {
		return map[string]cty.Value{"results": cty.EmptyTupleVal}, nil
	}
	return map[string]cty.Value{"results": cty.TupleVal(results)}, nil
}
