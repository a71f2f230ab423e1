// Package schema implements the type system for operator fields. A schema
// pairs a structural cty type with optional value constraints (numeric
// bounds, string length bounds, enumerated options). It is the single
// authority both for validating values written into a field and for
// deciding whether two fields may be connected.
package schema

import (
	"fmt"

	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/convert"
)

// Schema describes the structural type and the value constraints of a field.
// A zero constraint pointer means "unbounded" for that dimension.
type Schema struct {
	// Type is the structural type. cty.DynamicPseudoType acts as the
	// "unknown" escape hatch: it is compatible with every other schema in
	// both directions.
	Type cty.Type

	// Min and Max bound numeric values, inclusive.
	Min *float64
	Max *float64

	// MinLen and MaxLen bound string lengths, inclusive.
	MinLen *int
	MaxLen *int

	// Options enumerates the allowed string values. Empty means any.
	Options []string
}

// Any returns a schema that accepts values of any type.
func Any() *Schema {
	return &Schema{Type: cty.DynamicPseudoType}
}

// Number returns an unbounded numeric schema.
func Number() *Schema {
	return &Schema{Type: cty.Number}
}

// NumberRange returns a numeric schema bounded to [min, max].
func NumberRange(min, max float64) *Schema {
	return &Schema{Type: cty.Number, Min: &min, Max: &max}
}

// String returns an unconstrained string schema.
func String() *Schema {
	return &Schema{Type: cty.String}
}

// StringEnum returns a string schema restricted to the given options.
func StringEnum(options ...string) *Schema {
	return &Schema{Type: cty.String, Options: options}
}

// Bool returns a boolean schema.
func Bool() *Schema {
	return &Schema{Type: cty.Bool}
}

// List returns a schema for a list of the given element type.
func List(elem cty.Type) *Schema {
	return &Schema{Type: cty.List(elem)}
}

// IsUnknown reports whether the schema is the dynamic escape hatch.
func (s *Schema) IsUnknown() bool {
	return s.Type == cty.DynamicPseudoType
}

// ValidateValue checks v against the schema. On failure it returns a
// *ValidationError describing the rejection; it never panics and never
// mutates anything.
func (s *Schema) ValidateValue(v cty.Value) error {
	if v == cty.NilVal {
		return &ValidationError{Reason: "value is nil"}
	}
	if s.IsUnknown() {
		return nil
	}
	if v.IsNull() {
		// Null is a valid member of every cty type.
		return nil
	}

	converted, err := convert.Convert(v, s.Type)
	if err != nil {
		return &ValidationError{
			Reason: fmt.Sprintf("cannot use %s value as %s: %v",
				v.Type().FriendlyName(), s.Type.FriendlyName(), err),
		}
	}
	return s.checkConstraints(converted)
}

// checkConstraints assumes v already matches the structural type.
func (s *Schema) checkConstraints(v cty.Value) error {
	if v.IsNull() || !v.IsKnown() {
		return nil
	}

	if s.Type == cty.Number {
		f, _ := v.AsBigFloat().Float64()
		if s.Min != nil && f < *s.Min {
			return &ValidationError{Reason: fmt.Sprintf("value %v is below minimum %v", f, *s.Min)}
		}
		if s.Max != nil && f > *s.Max {
			return &ValidationError{Reason: fmt.Sprintf("value %v exceeds maximum %v", f, *s.Max)}
		}
	}

	if s.Type == cty.String {
		str := v.AsString()
		if s.MinLen != nil && len(str) < *s.MinLen {
			return &ValidationError{Reason: fmt.Sprintf("string length %d is below minimum %d", len(str), *s.MinLen)}
		}
		if s.MaxLen != nil && len(str) > *s.MaxLen {
			return &ValidationError{Reason: fmt.Sprintf("string length %d exceeds maximum %d", len(str), *s.MaxLen)}
		}
		if len(s.Options) > 0 {
			for _, opt := range s.Options {
				if str == opt {
					return nil
				}
			}
			return &ValidationError{Reason: fmt.Sprintf("value %q is not one of the allowed options", str)}
		}
	}

	return nil
}
