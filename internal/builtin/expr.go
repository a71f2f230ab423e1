package builtin

import (
	"context"
	"fmt"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/hclsyntax"
	"github.com/vk/opgraph/internal/op"
	"github.com/vk/opgraph/internal/registry"
	"github.com/vk/opgraph/internal/schema"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/convert"
)

func registerExprOps(r *registry.Registry) {
	r.Register(&registry.Spec{
		Type:      "ExprOp",
		Cacheable: true,
		Inputs: []registry.FieldSpec{
			{Name: "expression", Schema: schema.String()},
			{Name: "data", Schema: schema.Any()},
		},
		Outputs: []registry.FieldSpec{
			{Name: "result", Schema: schema.Any()},
		},
		Run: func(ctx context.Context, inputs map[string]cty.Value) (map[string]cty.Value, error) {
			expr, err := compileRowExpr(inputs["expression"])
			if err != nil {
				return nil, err
			}
			result, err := evalRowExpr(expr, inputs["data"])
			if err != nil {
				return nil, err
			}
			return map[string]cty.Value{"result": result}, nil
		},
	})

	r.Register(&registry.Spec{
		Type:      "FilterOp",
		Cacheable: true,
		Inputs: []registry.FieldSpec{
			{Name: "data", Schema: schema.Any()},
			{Name: "expression", Schema: schema.String(), Accessor: true},
		},
		Outputs: []registry.FieldSpec{
			{Name: "result", Schema: schema.Any()},
		},
		Run: runFilter,
	})

	r.Register(&registry.Spec{
		Type:      "MapOp",
		Cacheable: true,
		Inputs: []registry.FieldSpec{
			{Name: "data", Schema: schema.Any()},
			{Name: "expression", Schema: schema.String(), Accessor: true},
		},
		Outputs: []registry.FieldSpec{
			{Name: "result", Schema: schema.Any()},
		},
		Run: runMap,
	})
}

// compileRowExpr parses an expression string once per execution; the
// operator-level memoizer prevents recompiles while inputs are unchanged.
func compileRowExpr(v cty.Value) (hcl.Expression, error) {
	if v == cty.NilVal || v.IsNull() {
		return nil, fmt.Errorf("expression is not set")
	}
	src, err := convert.Convert(v, cty.String)
	if err != nil {
		return nil, fmt.Errorf("expression must be a string: %w", err)
	}
	expr, diags := hclsyntax.ParseExpression([]byte(src.AsString()), "expression", hcl.InitialPos)
	if diags.HasErrors() {
		return nil, fmt.Errorf("invalid expression: %w", diags)
	}
	return expr, nil
}

// evalRowExpr evaluates a compiled expression with the row bound as "d".
func evalRowExpr(expr hcl.Expression, row cty.Value) (cty.Value, error) {
	evalCtx := &hcl.EvalContext{
		Variables: map[string]cty.Value{"d": row},
	}
	result, diags := expr.Value(evalCtx)
	if diags.HasErrors() {
		return cty.NilVal, fmt.Errorf("evaluating expression: %w", diags)
	}
	return result, nil
}

// rowEvaluator builds the per-row evaluation for the list operators. A
// function stored on the "expression" accessor input takes precedence
// over the expression string.
func rowEvaluator(ctx context.Context, exprVal cty.Value) (func(cty.Value) (cty.Value, error), error) {
	if fn, ok := op.AccessorFunc(ctx, "expression"); ok {
		return func(row cty.Value) (cty.Value, error) {
			return fn.Call([]cty.Value{row})
		}, nil
	}
	expr, err := compileRowExpr(exprVal)
	if err != nil {
		return nil, err
	}
	return func(row cty.Value) (cty.Value, error) {
		return evalRowExpr(expr, row)
	}, nil
}

func runFilter(ctx context.Context, inputs map[string]cty.Value) (map[string]cty.Value, error) {
	eval, err := rowEvaluator(ctx, inputs["expression"])
	if err != nil {
		return nil, err
	}
	data := inputs["data"]
	if data == cty.NilVal || data.IsNull() {
		return map[string]cty.Value{"result": cty.EmptyTupleVal}, nil
	}
	if !data.CanIterateElements() {
		return nil, fmt.Errorf("data is not iterable: %s", data.Type().FriendlyName())
	}

	var kept []cty.Value
	for it := data.ElementIterator(); it.Next(); {
		_, row := it.Element()
		verdict, err := eval(row)
		if err != nil {
			return nil, err
		}
		b, err := convert.Convert(verdict, cty.Bool)
		if err != nil {
			return nil, fmt.Errorf("filter expression must yield a boolean: %w", err)
		}
		if !b.IsNull() && b.True() {
			kept = append(kept, row)
		}
	}

	if len(kept) == 0 {
		return map[string]cty.Value{"result": cty.EmptyTupleVal}, nil
	}
	return map[string]cty.Value{"result": cty.TupleVal(kept)}, nil
}

func runMap(ctx context.Context, inputs map[string]cty.Value) (map[string]cty.Value, error) {
	eval, err := rowEvaluator(ctx, inputs["expression"])
	if err != nil {
		return nil, err
	}
	data := inputs["data"]
	if data == cty.NilVal || data.IsNull() {
		return map[string]cty.Value{"result": cty.EmptyTupleVal}, nil
	}
	if !data.CanIterateElements() {
		return nil, fmt.Errorf("data is not iterable: %s", data.Type().FriendlyName())
	}

	var mapped []cty.Value
	for it := data.ElementIterator(); it.Next(); {
		_, row := it.Element()
		result, err := eval(row)
		if err != nil {
			return nil, err
		}
		mapped = append(mapped, result)
	}

	if len(mapped) == 0 {
		return map[string]cty.Value{"result": cty.EmptyTupleVal}, nil
	}
	return map[string]cty.Value{"result": cty.TupleVal(mapped)}, nil
}
