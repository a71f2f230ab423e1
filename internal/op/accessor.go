package op

import (
	"context"

	"github.com/zclconf/go-cty/cty/function"
)

type accessorKey struct{}

// withAccessorFuncs stores the per-row functions of the executing
// operator's accessor inputs on the context for one execute call.
func withAccessorFuncs(ctx context.Context, fns map[string]function.Function) context.Context {
	return context.WithValue(ctx, accessorKey{}, fns)
}

// AccessorFunc returns the per-row function stored on the named accessor
// input of the operator currently executing, if one is set. Execute bodies
// of iteration-style operators consult it before falling back to their
// declarative inputs.
func AccessorFunc(ctx context.Context, input string) (function.Function, bool) {
	fns, ok := ctx.Value(accessorKey{}).(map[string]function.Function)
	if !ok {
		return function.Function{}, false
	}
	fn, ok := fns[input]
	return fn, ok
}

// accessorFuncs collects the per-row functions currently stored on the
// operator's accessor inputs, or nil when none are set.
func (o *Operator) accessorFuncs() map[string]function.Function {
	var fns map[string]function.Function
	for name, f := range o.Inputs {
		if !f.IsAccessor() {
			continue
		}
		if fn, ok := f.Func(); ok {
			if fns == nil {
				fns = make(map[string]function.Function)
			}
			fns[name] = fn
		}
	}
	return fns
}
