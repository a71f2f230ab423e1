package op

import (
	"context"
	"fmt"

	"github.com/vk/opgraph/internal/ctxlog"
	"github.com/zclconf/go-cty/cty"
	"golang.org/x/sync/errgroup"
)

// Pull ensures the operator's outputs are up to date and returns them.
//
// A clean operator serves its cached outputs without traversing upstream
// or re-executing. A dirty operator first pulls every upstream dependency
// (independent upstreams concurrently), then executes its body, writes the
// results into its output fields and transitions to clean.
//
// Execute-time failures are captured on the operator, leave it dirty so no
// stale output is ever served silently, and propagate to the requesting
// caller. The population must be cycle-free before pulling; the executor
// refuses cyclic graphs up front.
func (o *Operator) Pull(ctx context.Context, res Resolver) (map[string]cty.Value, error) {
	o.pullMu.Lock()
	defer o.pullMu.Unlock()

	if o.Status() == StatusClean {
		return o.lastOutputs, nil
	}

	logger := ctxlog.FromContext(ctx).With("op", o.ID)
	logger.Debug("Pulling dirty operator.")

	if o.runGraph != nil {
		// Structural operators drive their own upstream evaluation.
		outputs, err := o.runGraph(ctx, o, res)
		return o.commit(ctx, outputs, err)
	}

	if err := o.pullUpstream(ctx, res); err != nil {
		o.setExecError(err)
		return nil, err
	}

	inputs := o.InputValues()
	outputs, err := o.invoke(ctx, inputs)
	return o.commit(ctx, outputs, err)
}

// pullUpstream resolves every upstream dependency. Independent branches
// are issued concurrently; each branch itself resolves depth-first.
func (o *Operator) pullUpstream(ctx context.Context, res Resolver) error {
	upstream := o.Upstream()
	if len(upstream) == 0 {
		return nil
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, id := range upstream {
		up, ok := res.Get(id)
		if !ok {
			continue
		}
		g.Go(func() error {
			if _, err := up.Pull(gctx, res); err != nil {
				return fmt.Errorf("upstream %s: %w", up.ID, err)
			}
			return nil
		})
	}
	return g.Wait()
}

// commit writes execute results into the output fields and settles status.
func (o *Operator) commit(ctx context.Context, outputs map[string]cty.Value, err error) (map[string]cty.Value, error) {
	if err != nil {
		o.setExecError(err)
		return nil, err
	}

	logger := ctxlog.FromContext(ctx).With("op", o.ID)
	for name, v := range outputs {
		out, ok := o.Outputs[name]
		if !ok {
			logger.Warn("Execute produced a value for an undeclared output.", "output", name)
			continue
		}
		if serr := out.SetValue(v); serr != nil {
			o.setExecError(fmt.Errorf("output %q: %w", name, serr))
			return nil, o.ExecError()
		}
	}

	o.setExecError(nil)
	o.lastOutputs = outputs
	o.markClean()
	return outputs, nil
}

// invoke runs the execute body, consulting the memo cache for cacheable
// operators so unchanged inputs never re-run the body.
func (o *Operator) invoke(ctx context.Context, inputs map[string]cty.Value) (map[string]cty.Value, error) {
	if o.run == nil {
		// Pass-through for operators with no body: outputs mirror the
		// current output field values.
		return o.OutputValues(), nil
	}

	if fns := o.accessorFuncs(); fns != nil {
		// Stored functions are invisible to the input snapshot, so the
		// memo cache must be bypassed while any are set.
		return o.run(withAccessorFuncs(ctx, fns), inputs)
	}

	if o.memo != nil {
		if key, ok := memoKey(inputs); ok {
			if cached, hit := o.memo.get(key); hit {
				return cached, nil
			}
			outputs, err := o.run(ctx, inputs)
			if err == nil {
				o.memo.put(key, outputs)
			}
			return outputs, err
		}
	}
	return o.run(ctx, inputs)
}

// InputValues snapshots the current values of all input fields.
func (o *Operator) InputValues() map[string]cty.Value {
	vals := make(map[string]cty.Value, len(o.Inputs))
	for name, f := range o.Inputs {
		vals[name] = f.Value()
	}
	return vals
}

// OutputValues snapshots the current values of all output fields.
func (o *Operator) OutputValues() map[string]cty.Value {
	vals := make(map[string]cty.Value, len(o.Outputs))
	for name, f := range o.Outputs {
		vals[name] = f.Value()
	}
	return vals
}

// StageOutputs writes values directly into output fields and marks the
// operator clean without running its body. For-loop iteration uses this to
// feed the loop variable through the chain.
func (o *Operator) StageOutputs(vals map[string]cty.Value) error {
	for name, v := range vals {
		out, ok := o.Outputs[name]
		if !ok {
			return fmt.Errorf("no output named %q on %s", name, o.ID)
		}
		if err := out.SetValue(v); err != nil {
			return err
		}
	}
	o.lastOutputs = vals
	o.markClean()
	return nil
}
