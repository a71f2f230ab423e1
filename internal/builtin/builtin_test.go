package builtin

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vk/opgraph/internal/op"
	"github.com/vk/opgraph/internal/registry"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/function"
)

// runOp instantiates a built-in type, applies the given inputs and pulls it
// once through a single-operator resolver.
func runOp(t *testing.T, typeTag string, inputs map[string]cty.Value) (map[string]cty.Value, error) {
	t.Helper()
	reg := NewRegistry()
	o, err := reg.Instantiate(typeTag, "x", false, nil)
	require.NoError(t, err)
	for name, v := range inputs {
		f, ok := o.Inputs[name]
		require.True(t, ok, "no input %q on %s", name, typeTag)
		require.NoError(t, f.SetValue(v))
	}
	return o.Pull(context.Background(), soloResolver{o})
}

type soloResolver struct{ o *op.Operator }

func (r soloResolver) Get(id string) (*op.Operator, bool) {
	if id == r.o.ID {
		return r.o, true
	}
	return nil, false
}

func TestNewRegistry_RegistersStructuralTypes(t *testing.T) {
	reg := NewRegistry()
	for _, typeTag := range []string{
		registry.TypeContainer,
		registry.TypeGraphInput,
		registry.TypeGraphOutput,
		registry.TypeForLoopBegin,
		registry.TypeForLoopEnd,
		"ValueOp", "MathOp", "MergeOp", "ExprOp", "FilterOp", "MapOp",
	} {
		_, ok := reg.Lookup(typeTag)
		assert.True(t, ok, "missing type %s", typeTag)
	}
}

func TestValueOp(t *testing.T) {
	out, err := runOp(t, "ValueOp", map[string]cty.Value{
		"value": cty.StringVal("hello"),
	})
	require.NoError(t, err)
	assert.True(t, out["out"].RawEquals(cty.StringVal("hello")))
}

func TestValueOp_TypeCoercion(t *testing.T) {
	out, err := runOp(t, "ValueOp", map[string]cty.Value{
		"value": cty.StringVal("5"),
		"type":  cty.StringVal("number"),
	})
	require.NoError(t, err)
	assert.True(t, out["out"].RawEquals(cty.NumberIntVal(5)))

	out, err = runOp(t, "ValueOp", map[string]cty.Value{
		"value": cty.TupleVal([]cty.Value{cty.NumberIntVal(1), cty.NumberIntVal(2)}),
		"type":  cty.StringVal("list(string)"),
	})
	require.NoError(t, err)
	assert.True(t, out["out"].RawEquals(cty.ListVal([]cty.Value{cty.StringVal("1"), cty.StringVal("2")})))
}

func TestValueOp_TypeCoercionErrors(t *testing.T) {
	_, err := runOp(t, "ValueOp", map[string]cty.Value{
		"value": cty.StringVal("5"),
		"type":  cty.StringVal("integer"),
	})
	assert.ErrorContains(t, err, "value type")

	_, err = runOp(t, "ValueOp", map[string]cty.Value{
		"value": cty.StringVal("nope"),
		"type":  cty.StringVal("number"),
	})
	assert.ErrorContains(t, err, "converting value")
}

func TestMathOp(t *testing.T) {
	cases := []struct {
		op   string
		a, b int64
		want int64
	}{
		{"+", 2, 3, 5},
		{"-", 10, 4, 6},
		{"*", 6, 7, 42},
		{"/", 20, 5, 4},
	}
	for _, tc := range cases {
		out, err := runOp(t, "MathOp", map[string]cty.Value{
			"a":  cty.NumberIntVal(tc.a),
			"b":  cty.NumberIntVal(tc.b),
			"op": cty.StringVal(tc.op),
		})
		require.NoError(t, err, tc.op)
		assert.True(t, out["result"].RawEquals(cty.NumberIntVal(tc.want)), "op %s", tc.op)
	}
}

func TestMathOp_DefaultsToAddition(t *testing.T) {
	out, err := runOp(t, "MathOp", map[string]cty.Value{
		"a": cty.NumberIntVal(1),
		"b": cty.NumberIntVal(2),
	})
	require.NoError(t, err)
	assert.True(t, out["result"].RawEquals(cty.NumberIntVal(3)))
}

func TestMathOp_DivisionByZero(t *testing.T) {
	_, err := runOp(t, "MathOp", map[string]cty.Value{
		"a":  cty.NumberIntVal(1),
		"b":  cty.Zero,
		"op": cty.StringVal("/"),
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "division by zero")
}

func TestMathOp_RejectsUnknownOperator(t *testing.T) {
	reg := NewRegistry()
	o, err := reg.Instantiate("MathOp", "x", false, nil)
	require.NoError(t, err)

	// The enum schema rejects the write before execution is ever reached.
	err = o.Inputs["op"].SetValue(cty.StringVal("%"))
	require.Error(t, err)
}

func TestMergeOp_AggregatesListInput(t *testing.T) {
	reg := NewRegistry()
	o, err := reg.Instantiate("MergeOp", "m", false, nil)
	require.NoError(t, err)
	require.True(t, o.Inputs["items"].IsList())

	out, err := o.Pull(context.Background(), soloResolver{o})
	require.NoError(t, err)
	assert.True(t, out["result"].RawEquals(cty.EmptyTupleVal), "no connections yields an empty aggregate")
}

func TestExprOp(t *testing.T) {
	out, err := runOp(t, "ExprOp", map[string]cty.Value{
		"expression": cty.StringVal("d.price * 2"),
		"data":       cty.ObjectVal(map[string]cty.Value{"price": cty.NumberIntVal(21)}),
	})
	require.NoError(t, err)
	assert.True(t, out["result"].RawEquals(cty.NumberIntVal(42)))
}

func TestExprOp_InvalidExpression(t *testing.T) {
	_, err := runOp(t, "ExprOp", map[string]cty.Value{
		"expression": cty.StringVal("d.price +"),
		"data":       cty.EmptyObjectVal,
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid expression")
}

func TestExprOp_MissingExpression(t *testing.T) {
	_, err := runOp(t, "ExprOp", map[string]cty.Value{
		"data": cty.EmptyObjectVal,
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "expression is not set")
}

func TestFilterOp(t *testing.T) {
	rows := cty.TupleVal([]cty.Value{
		cty.ObjectVal(map[string]cty.Value{"n": cty.NumberIntVal(1)}),
		cty.ObjectVal(map[string]cty.Value{"n": cty.NumberIntVal(5)}),
		cty.ObjectVal(map[string]cty.Value{"n": cty.NumberIntVal(9)}),
	})

	out, err := runOp(t, "FilterOp", map[string]cty.Value{
		"data":       rows,
		"expression": cty.StringVal("d.n > 3"),
	})
	require.NoError(t, err)

	result := out["result"]
	require.True(t, result.CanIterateElements())
	require.Equal(t, 2, result.LengthInt())
}

func TestFilterOp_NonBooleanVerdict(t *testing.T) {
	rows := cty.TupleVal([]cty.Value{
		cty.ObjectVal(map[string]cty.Value{"n": cty.NumberIntVal(1)}),
	})
	_, err := runOp(t, "FilterOp", map[string]cty.Value{
		"data":       rows,
		"expression": cty.StringVal("d"),
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boolean")
}

func TestFilterOp_NullDataYieldsEmpty(t *testing.T) {
	out, err := runOp(t, "FilterOp", map[string]cty.Value{
		"expression": cty.StringVal("d.n > 3"),
	})
	require.NoError(t, err)
	assert.True(t, out["result"].RawEquals(cty.EmptyTupleVal))
}

func TestMapOp(t *testing.T) {
	rows := cty.TupleVal([]cty.Value{
		cty.ObjectVal(map[string]cty.Value{"n": cty.NumberIntVal(1)}),
		cty.ObjectVal(map[string]cty.Value{"n": cty.NumberIntVal(2)}),
	})

	out, err := runOp(t, "MapOp", map[string]cty.Value{
		"data":       rows,
		"expression": cty.StringVal("d.n * 10"),
	})
	require.NoError(t, err)

	want := cty.TupleVal([]cty.Value{cty.NumberIntVal(10), cty.NumberIntVal(20)})
	assert.True(t, out["result"].RawEquals(want))
}

// numPredicate builds a per-row function keeping numbers above min.
func numPredicate(min int64) function.Function {
	return function.New(&function.Spec{
		Params: []function.Parameter{{Name: "d", Type: cty.Number}},
		Type:   function.StaticReturnType(cty.Bool),
		Impl: func(args []cty.Value, _ cty.Type) (cty.Value, error) {
			return args[0].GreaterThan(cty.NumberIntVal(min)), nil
		},
	})
}

func TestFilterOp_AccessorFunctionWins(t *testing.T) {
	reg := NewRegistry()
	o, err := reg.Instantiate("FilterOp", "f", false, nil)
	require.NoError(t, err)
	o.BindDirtyHook(soloResolver{o})

	rows := cty.TupleVal([]cty.Value{
		cty.NumberIntVal(1), cty.NumberIntVal(4), cty.NumberIntVal(5),
	})
	require.NoError(t, o.Inputs["data"].SetValue(rows))
	// The string expression would drop every row; the stored function
	// takes precedence.
	require.NoError(t, o.Inputs["expression"].SetValue(cty.StringVal("d < 0")))
	require.NoError(t, o.Inputs["expression"].SetFunc(numPredicate(3)))

	out, err := o.Pull(context.Background(), soloResolver{o})
	require.NoError(t, err)
	want := cty.TupleVal([]cty.Value{cty.NumberIntVal(4), cty.NumberIntVal(5)})
	assert.True(t, out["result"].RawEquals(want))

	// Swapping the function re-executes even though the field values are
	// unchanged.
	require.NoError(t, o.Inputs["expression"].SetFunc(numPredicate(0)))
	out, err = o.Pull(context.Background(), soloResolver{o})
	require.NoError(t, err)
	require.True(t, out["result"].CanIterateElements())
	assert.Equal(t, 3, out["result"].LengthInt())
}

func TestMapOp_AccessorFunction(t *testing.T) {
	reg := NewRegistry()
	o, err := reg.Instantiate("MapOp", "m", false, nil)
	require.NoError(t, err)

	tenfold := function.New(&function.Spec{
		Params: []function.Parameter{{Name: "d", Type: cty.Number}},
		Type:   function.StaticReturnType(cty.Number),
		Impl: func(args []cty.Value, _ cty.Type) (cty.Value, error) {
			return args[0].Multiply(cty.NumberIntVal(10)), nil
		},
	})
	require.NoError(t, o.Inputs["data"].SetValue(cty.TupleVal([]cty.Value{
		cty.NumberIntVal(1), cty.NumberIntVal(2),
	})))
	// No expression string at all: the stored function is enough.
	require.NoError(t, o.Inputs["expression"].SetFunc(tenfold))

	out, err := o.Pull(context.Background(), soloResolver{o})
	require.NoError(t, err)
	want := cty.TupleVal([]cty.Value{cty.NumberIntVal(10), cty.NumberIntVal(20)})
	assert.True(t, out["result"].RawEquals(want))
}

func TestMapOp_NotIterable(t *testing.T) {
	_, err := runOp(t, "MapOp", map[string]cty.Value{
		"data":       cty.NumberIntVal(5),
		"expression": cty.StringVal("d"),
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not iterable")
}

func TestStructuralPassthroughs(t *testing.T) {
	out, err := runOp(t, registry.TypeContainer, map[string]cty.Value{
		"in": cty.StringVal("payload"),
	})
	require.NoError(t, err)
	assert.True(t, out["out"].RawEquals(cty.StringVal("payload")))

	out, err = runOp(t, registry.TypeGraphInput, map[string]cty.Value{
		"parentValue": cty.NumberIntVal(3),
	})
	require.NoError(t, err)
	assert.True(t, out["out"].RawEquals(cty.NumberIntVal(3)))

	out, err = runOp(t, registry.TypeGraphOutput, map[string]cty.Value{
		"in": cty.True,
	})
	require.NoError(t, err)
	assert.True(t, out["out"].RawEquals(cty.True))
}

func TestForLoopEnd_WithoutBeginFails(t *testing.T) {
	_, err := runOp(t, registry.TypeForLoopEnd, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no matching begin")
}
