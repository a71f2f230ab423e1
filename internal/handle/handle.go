// Package handle parses the identifier grammars of the declarative graph
// format: field handles ("par.data", "out.result"), edge ids
// ("{source}.{sourceHandle}->{target}.{targetHandle}") and the
// slash-delimited hierarchical operator paths.
package handle

import (
	"fmt"
	"regexp"
)

// Namespace says which side of an operator a handle refers to.
type Namespace string

const (
	// NamespaceParam addresses an input field. In special cases an input
	// is read as a source, for formula-style reference edges.
	NamespaceParam Namespace = "par"
	// NamespaceOutput addresses an output field.
	NamespaceOutput Namespace = "out"
)

// Handle is the parsed form of a "{par|out}.{fieldName}" identifier.
type Handle struct {
	Namespace Namespace
	Field     string
}

// handleRegex parses a single handle, e.g. `par.data` or `out.result`.
var handleRegex = regexp.MustCompile(`^(par|out)\.([A-Za-z_][A-Za-z0-9_-]*)$`)

// Parse parses a raw handle string. A failure here is fatal to
// reconciliation: it means the declarative graph is malformed or
// un-migrated.
func Parse(raw string) (Handle, error) {
	if raw == "" {
		return Handle{}, fmt.Errorf("handle cannot be empty")
	}
	matches := handleRegex.FindStringSubmatch(raw)
	if matches == nil {
		return Handle{}, fmt.Errorf("malformed handle %q: expected {par|out}.{fieldName}", raw)
	}
	return Handle{Namespace: Namespace(matches[1]), Field: matches[2]}, nil
}

// String serializes the handle into its canonical form.
func (h Handle) String() string {
	return fmt.Sprintf("%s.%s", h.Namespace, h.Field)
}
