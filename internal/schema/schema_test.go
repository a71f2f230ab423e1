package schema

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zclconf/go-cty/cty"
)

func TestValidateValue_TypeConversion(t *testing.T) {
	s := Number()

	// Exact type passes.
	require.NoError(t, s.ValidateValue(cty.NumberIntVal(42)))

	// Convertible string passes (cty converts "42" to a number).
	require.NoError(t, s.ValidateValue(cty.StringVal("42")))

	// Non-numeric string fails with a ValidationError.
	err := s.ValidateValue(cty.StringVal("not a number"))
	require.Error(t, err)
	var verr *ValidationError
	assert.ErrorAs(t, err, &verr)
}

func TestValidateValue_NullAndNil(t *testing.T) {
	s := String()

	// Null is a member of every type.
	assert.NoError(t, s.ValidateValue(cty.NullVal(cty.String)))

	// NilVal is rejected outright.
	assert.Error(t, s.ValidateValue(cty.NilVal))
}

func TestValidateValue_AnyAcceptsEverything(t *testing.T) {
	s := Any()
	assert.NoError(t, s.ValidateValue(cty.NumberIntVal(1)))
	assert.NoError(t, s.ValidateValue(cty.StringVal("x")))
	assert.NoError(t, s.ValidateValue(cty.TupleVal([]cty.Value{cty.True, cty.Zero})))
}

func TestValidateValue_NumericBounds(t *testing.T) {
	s := NumberRange(0, 10)

	assert.NoError(t, s.ValidateValue(cty.NumberIntVal(0)))
	assert.NoError(t, s.ValidateValue(cty.NumberIntVal(10)))

	err := s.ValidateValue(cty.NumberIntVal(11))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exceeds maximum")

	err = s.ValidateValue(cty.NumberIntVal(-1))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "below minimum")
}

func TestValidateValue_StringEnum(t *testing.T) {
	s := StringEnum("+", "-", "*", "/")

	assert.NoError(t, s.ValidateValue(cty.StringVal("*")))

	err := s.ValidateValue(cty.StringVal("%"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not one of the allowed options")
}

func TestValidateValue_StringLengthBounds(t *testing.T) {
	min, max := 2, 4
	s := &Schema{Type: cty.String, MinLen: &min, MaxLen: &max}

	assert.NoError(t, s.ValidateValue(cty.StringVal("abc")))
	assert.Error(t, s.ValidateValue(cty.StringVal("a")))
	assert.Error(t, s.ValidateValue(cty.StringVal("abcde")))
}

func TestValidateConnection_TypeMismatch(t *testing.T) {
	err := ValidateConnection(Bool(), cty.NullVal(cty.Bool), List(cty.String))
	require.Error(t, err)

	var mismatch *TypeMismatchError
	require.ErrorAs(t, err, &mismatch)
	assert.Equal(t, cty.Bool, mismatch.Source)
	assert.Equal(t, cty.List(cty.String), mismatch.Target)
}

func TestValidateConnection_ConstraintViolation(t *testing.T) {
	// Structurally compatible (number to number), but the current source
	// value breaks the target's bound: reported as a constraint violation,
	// not a type mismatch.
	err := ValidateConnection(Number(), cty.NumberIntVal(99), NumberRange(0, 10))
	require.Error(t, err)

	var violation *ConstraintViolationError
	require.ErrorAs(t, err, &violation)
	assert.Contains(t, violation.Reason, "exceeds maximum")

	var mismatch *TypeMismatchError
	assert.NotErrorAs(t, err, &mismatch)
}

func TestValidateConnection_Compatible(t *testing.T) {
	assert.NoError(t, ValidateConnection(Number(), cty.NumberIntVal(5), NumberRange(0, 10)))

	// Convertible types connect: number feeds string.
	assert.NoError(t, ValidateConnection(Number(), cty.NumberIntVal(5), String()))
}

func TestValidateConnection_UnknownIsEscapeHatch(t *testing.T) {
	assert.NoError(t, ValidateConnection(Any(), cty.NullVal(cty.DynamicPseudoType), Bool()))
	assert.NoError(t, ValidateConnection(Bool(), cty.True, Any()))
}

func TestValidateConnection_NullSourceSkipsConstraints(t *testing.T) {
	// A null source has no value to check against bounds yet.
	assert.NoError(t, ValidateConnection(Number(), cty.NullVal(cty.Number), NumberRange(0, 1)))
}

func TestParseType_Primitives(t *testing.T) {
	ctx := context.Background()

	cases := map[string]cty.Type{
		"string": cty.String,
		"number": cty.Number,
		"bool":   cty.Bool,
		"any":    cty.DynamicPseudoType,
	}
	for src, want := range cases {
		got, err := ParseType(ctx, src)
		require.NoError(t, err, src)
		assert.Equal(t, want, got, src)
	}
}

func TestParseType_Collections(t *testing.T) {
	ctx := context.Background()

	got, err := ParseType(ctx, "list(string)")
	require.NoError(t, err)
	assert.Equal(t, cty.List(cty.String), got)

	got, err = ParseType(ctx, "map(number)")
	require.NoError(t, err)
	assert.Equal(t, cty.Map(cty.Number), got)

	got, err = ParseType(ctx, "set(bool)")
	require.NoError(t, err)
	assert.Equal(t, cty.Set(cty.Bool), got)

	// Nested collections compose.
	got, err = ParseType(ctx, "list(map(string))")
	require.NoError(t, err)
	assert.Equal(t, cty.List(cty.Map(cty.String)), got)
}

func TestParseType_Object(t *testing.T) {
	ctx := context.Background()

	got, err := ParseType(ctx, "object({name = string, n = number})")
	require.NoError(t, err)
	assert.Equal(t, cty.Object(map[string]cty.Type{"name": cty.String, "n": cty.Number}), got)

	// Quoted keys and nested constructors are accepted.
	got, err = ParseType(ctx, `object({"tags" = list(string)})`)
	require.NoError(t, err)
	assert.Equal(t, cty.Object(map[string]cty.Type{"tags": cty.List(cty.String)}), got)

	got, err = ParseType(ctx, "object({})")
	require.NoError(t, err)
	assert.Equal(t, cty.Object(map[string]cty.Type{}), got)

	_, err = ParseType(ctx, "object(string)")
	assert.Error(t, err, "argument must be an object literal")

	_, err = ParseType(ctx, "object({n = integer})")
	assert.ErrorContains(t, err, `in object attribute "n"`)
}

func TestParseType_Errors(t *testing.T) {
	ctx := context.Background()

	_, err := ParseType(ctx, "list(any)")
	assert.Error(t, err, "collections of any are rejected")

	_, err = ParseType(ctx, "tuple(string)")
	assert.Error(t, err, "unknown constructor")

	_, err = ParseType(ctx, "integer")
	assert.Error(t, err, "unknown primitive")

	_, err = ParseType(ctx, "list(string, number)")
	assert.Error(t, err, "constructors take exactly one argument")
}
