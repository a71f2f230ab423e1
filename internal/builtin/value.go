package builtin

import (
	"context"
	"fmt"
	"math/big"

	"github.com/vk/opgraph/internal/registry"
	"github.com/vk/opgraph/internal/schema"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/convert"
)

func registerValueOps(r *registry.Registry) {
	r.Register(&registry.Spec{
		Type: "ValueOp",
		Inputs: []registry.FieldSpec{
			{Name: "value", Schema: schema.Any()},
			{Name: "type", Schema: schema.String()},
		},
		Outputs: []registry.FieldSpec{
			{Name: "out", Schema: schema.Any()},
		},
		Run: runValue,
	})

	r.Register(&registry.Spec{
		Type:      "MathOp",
		Cacheable: true,
		Inputs: []registry.FieldSpec{
			{Name: "a", Schema: schema.Number(), Default: cty.Zero},
			{Name: "b", Schema: schema.Number(), Default: cty.Zero},
			{Name: "op", Schema: schema.StringEnum("+", "-", "*", "/"), Default: cty.StringVal("+")},
		},
		Outputs: []registry.FieldSpec{
			{Name: "result", Schema: schema.Number()},
		},
		Run: runMath,
	})

	r.Register(&registry.Spec{
		Type: "MergeOp",
		Inputs: []registry.FieldSpec{
			{Name: "items", Schema: schema.Any(), List: true},
		},
		Outputs: []registry.FieldSpec{
			{Name: "result", Schema: schema.Any()},
		},
		Run: func(ctx context.Context, inputs map[string]cty.Value) (map[string]cty.Value, error) {
			return map[string]cty.Value{"result": inputs["items"]}, nil
		},
	})
}

// runValue emits the configured constant. The optional "type" input holds
// a type expression ("number", "list(string)") the value is converted to
// before emission, so snapshots can coerce loosely typed literals.
func runValue(ctx context.Context, inputs map[string]cty.Value) (map[string]cty.Value, error) {
	v := inputs["value"]
	if t := inputs["type"]; t != cty.NilVal && !t.IsNull() {
		want, err := schema.ParseType(ctx, t.AsString())
		if err != nil {
			return nil, fmt.Errorf("value type: %w", err)
		}
		converted, err := convert.Convert(v, want)
		if err != nil {
			return nil, fmt.Errorf("converting value to %s: %w", want.FriendlyName(), err)
		}
		v = converted
	}
	return map[string]cty.Value{"out": v}, nil
}

func runMath(ctx context.Context, inputs map[string]cty.Value) (map[string]cty.Value, error) {
	a, err := toNumber(inputs["a"], "a")
	if err != nil {
		return nil, err
	}
	b, err := toNumber(inputs["b"], "b")
	if err != nil {
		return nil, err
	}

	operator := "+"
	if v := inputs["op"]; v != cty.NilVal && !v.IsNull() {
		operator = v.AsString()
	}

	result := new(big.Float)
	switch operator {
	case "+":
		result.Add(a, b)
	case "-":
		result.Sub(a, b)
	case "*":
		result.Mul(a, b)
	case "/":
		if b.Sign() == 0 {
			return nil, fmt.Errorf("division by zero")
		}
		result.Quo(a, b)
	default:
		return nil, fmt.Errorf("unknown math operator %q", operator)
	}

	return map[string]cty.Value{"result": cty.NumberVal(result)}, nil
}

func toNumber(v cty.Value, name string) (*big.Float, error) {
	if v == cty.NilVal || v.IsNull() {
		return big.NewFloat(0), nil
	}
	converted, err := convert.Convert(v, cty.Number)
	if err != nil {
		return nil, fmt.Errorf("input %q is not numeric: %w", name, err)
	}
	return converted.AsBigFloat(), nil
}
