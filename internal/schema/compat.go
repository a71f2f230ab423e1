package schema

import (
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/convert"
)

// ValidateConnection decides whether a field with schema src, currently
// holding srcValue, may feed a field with schema dst. The result is a
// discriminated failure:
//
//   - nil: compatible.
//   - *TypeMismatchError: the structural types cannot be converted.
//   - *ConstraintViolationError: the structural types agree but srcValue
//     breaks a constraint on dst (for example a numeric bound).
//
// An unknown schema on either side is compatible with everything; it is
// the escape hatch for dynamic or JSON-shaped data.
func ValidateConnection(src *Schema, srcValue cty.Value, dst *Schema) error {
	if src.IsUnknown() || dst.IsUnknown() {
		return nil
	}

	if !src.Type.Equals(dst.Type) {
		if conv := convert.GetConversion(src.Type, dst.Type); conv == nil {
			return &TypeMismatchError{Source: src.Type, Target: dst.Type}
		}
	}

	// Structurally compatible: check the current source value against the
	// destination's constraints so that, for example, an out-of-range
	// constant is reported as a bound failure rather than a type failure.
	if srcValue == cty.NilVal || srcValue.IsNull() || !srcValue.IsKnown() {
		return nil
	}
	converted, err := convert.Convert(srcValue, dst.Type)
	if err != nil {
		return &TypeMismatchError{Source: srcValue.Type(), Target: dst.Type}
	}
	if cerr := dst.checkConstraints(converted); cerr != nil {
		var verr *ValidationError
		if ve, ok := cerr.(*ValidationError); ok {
			verr = ve
		} else {
			verr = &ValidationError{Reason: cerr.Error()}
		}
		return &ConstraintViolationError{Reason: verr.Reason}
	}
	return nil
}
