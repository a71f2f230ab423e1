// Package registry holds the table of operator types. Dispatch from a
// declarative node's type tag to a live operator is a table lookup against
// a spec describing the fixed input/output field shape and the execute
// body.
package registry

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/vk/opgraph/internal/field"
	"github.com/vk/opgraph/internal/handle"
	"github.com/vk/opgraph/internal/op"
	"github.com/vk/opgraph/internal/schema"
	"github.com/zclconf/go-cty/cty"
)

// FieldSpec declares one named field of an operator type.
type FieldSpec struct {
	Name   string
	Schema *schema.Schema
	// Default is the initial value; cty.NilVal leaves the field null.
	Default cty.Value
	// List marks a field accepting multiple simultaneous connections.
	List bool
	// Accessor marks a field that may hold a per-row function.
	Accessor bool
}

// Spec describes an operator type: its field shape and execute body.
type Spec struct {
	Type string
	// Cacheable wraps the body in a memoizer keyed on the input snapshot.
	Cacheable bool
	Inputs    []FieldSpec
	Outputs   []FieldSpec
	Run       op.RunFunc
	// RunGraph, when set, replaces Run for structural operators that
	// drive their own upstream evaluation (for-loop ends).
	RunGraph op.RunGraphFunc
}

// Registry maps type tags to specs for a single engine instance.
type Registry struct {
	mu    sync.RWMutex
	specs map[string]*Spec
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{specs: make(map[string]*Spec)}
}

// Register adds a spec. Registering a duplicate type tag is a programming
// error at process init and panics.
func (r *Registry) Register(spec *Spec) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.specs[spec.Type]; exists {
		panic(fmt.Sprintf("operator type %q already registered", spec.Type))
	}
	slog.Debug("Registering operator type.", "type", spec.Type)
	r.specs[spec.Type] = spec
}

// Lookup resolves a type tag.
func (r *Registry) Lookup(typeTag string) (*Spec, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	spec, ok := r.specs[typeTag]
	return spec, ok
}

// Types returns the sorted registered type tags.
func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.specs))
	for t := range r.specs {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// Instantiate builds a live operator of the given type. The container id
// is derived from the slash-delimited path; fields attach to the
// population's notification batcher.
func (r *Registry) Instantiate(typeTag, id string, locked bool, batcher *field.Batcher) (*op.Operator, error) {
	spec, ok := r.Lookup(typeTag)
	if !ok {
		return nil, fmt.Errorf("unknown operator type %q", typeTag)
	}

	build := func(fs FieldSpec) (*field.Field, error) {
		var f *field.Field
		switch {
		case fs.List:
			f = field.NewList(fs.Name, fs.Schema)
		case fs.Accessor:
			f = field.NewAccessor(fs.Name, fs.Schema)
		default:
			f = field.New(fs.Name, fs.Schema)
		}
		if batcher != nil {
			f.SetBatcher(batcher)
		}
		if fs.Default != cty.NilVal {
			if err := f.SetValue(fs.Default); err != nil {
				return nil, fmt.Errorf("default for field %q: %w", fs.Name, err)
			}
		}
		return f, nil
	}

	cfg := op.Config{
		ID:          id,
		Type:        spec.Type,
		ContainerID: handle.ContainerOf(id),
		Locked:      locked,
		Cacheable:   spec.Cacheable,
		Run:         spec.Run,
		RunGraph:    spec.RunGraph,
	}
	for _, fs := range spec.Inputs {
		f, err := build(fs)
		if err != nil {
			return nil, err
		}
		cfg.Inputs = append(cfg.Inputs, f)
	}
	for _, fs := range spec.Outputs {
		f, err := build(fs)
		if err != nil {
			return nil, err
		}
		cfg.Outputs = append(cfg.Outputs, f)
	}

	return op.New(cfg), nil
}
