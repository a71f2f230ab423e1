package schema

import (
	"fmt"

	"github.com/zclconf/go-cty/cty"
)

// ValidationError reports a value that failed schema validation on a
// SetValue call. The prior field value is always retained by the caller.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed: %s", e.Reason)
}

// TypeMismatchError reports a connection between two structurally
// incompatible schemas. It names both types so diagnostics can show what
// was connected to what.
type TypeMismatchError struct {
	Source cty.Type
	Target cty.Type
}

func (e *TypeMismatchError) Error() string {
	return fmt.Sprintf("type mismatch: cannot connect %s to %s",
		e.Source.FriendlyName(), e.Target.FriendlyName())
}

// ConstraintViolationError reports a connection whose structural types
// agree but whose source value breaks a constraint on the target schema,
// such as a numeric bound.
type ConstraintViolationError struct {
	Reason string
}

func (e *ConstraintViolationError) Error() string {
	return fmt.Sprintf("constraint violation: %s", e.Reason)
}
