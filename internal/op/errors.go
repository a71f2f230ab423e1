package op

import "github.com/hashicorp/go-multierror"

// SetConnectionError records a validation failure for an incoming edge.
func (o *Operator) SetConnectionError(edgeID string, err error) {
	o.errMu.Lock()
	defer o.errMu.Unlock()
	o.connErrs[edgeID] = err
}

// ClearConnectionError removes the record for an edge, typically because
// the edge was deleted or superseded by a compatible connection.
func (o *Operator) ClearConnectionError(edgeID string) {
	o.errMu.Lock()
	defer o.errMu.Unlock()
	delete(o.connErrs, edgeID)
}

// ConnectionErrors returns a copy of the per-edge validation failures.
func (o *Operator) ConnectionErrors() map[string]error {
	o.errMu.Lock()
	defer o.errMu.Unlock()
	out := make(map[string]error, len(o.connErrs))
	for k, v := range o.connErrs {
		out[k] = v
	}
	return out
}

// HasConnectionErrors reports whether any incoming edge failed validation.
func (o *Operator) HasConnectionErrors() bool {
	o.errMu.Lock()
	defer o.errMu.Unlock()
	return len(o.connErrs) > 0
}

// ConnectionError aggregates all per-edge failures into one error, or nil.
func (o *Operator) ConnectionError() error {
	o.errMu.Lock()
	defer o.errMu.Unlock()
	var result *multierror.Error
	for edgeID, err := range o.connErrs {
		result = multierror.Append(result, &EdgeError{EdgeID: edgeID, Err: err})
	}
	return result.ErrorOrNil()
}

// ExecError returns the error captured by the last failed execute, or nil.
func (o *Operator) ExecError() error {
	o.errMu.Lock()
	defer o.errMu.Unlock()
	return o.execErr
}

func (o *Operator) setExecError(err error) {
	o.errMu.Lock()
	defer o.errMu.Unlock()
	o.execErr = err
}

// EdgeError wraps a connection validation failure with its edge id.
type EdgeError struct {
	EdgeID string
	Err    error
}

func (e *EdgeError) Error() string {
	return e.EdgeID + ": " + e.Err.Error()
}

func (e *EdgeError) Unwrap() error {
	return e.Err
}
