// Package op implements the graph node of the engine: an operator owning
// named input and output fields, pull-based execution with dirty tracking,
// and optional memoization of its execute body.
package op

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/vk/opgraph/internal/field"
	"github.com/zclconf/go-cty/cty"
)

// Status is the pull-execution state of an operator.
type Status int32

const (
	// StatusDirty means cached outputs may be stale; the next Pull
	// re-resolves upstream dependencies and re-executes.
	StatusDirty Status = iota
	// StatusClean means cached outputs are valid and Pull serves them
	// without traversal.
	StatusClean
)

func (s Status) String() string {
	if s == StatusClean {
		return "clean"
	}
	return "dirty"
}

// Resolver resolves operator ids to live instances. The population arena
// implements it; operators never hold direct pointers to each other.
type Resolver interface {
	Get(id string) (*Operator, bool)
}

// RunFunc is a pure execute body: current input values to output values.
// Bodies may block; they honor ctx for cancellation.
type RunFunc func(ctx context.Context, inputs map[string]cty.Value) (map[string]cty.Value, error)

// RunGraphFunc replaces the plain execute body for structural operators
// (for-loop ends) that drive their own upstream evaluation per iteration.
type RunGraphFunc func(ctx context.Context, o *Operator, res Resolver) (map[string]cty.Value, error)

// Config carries everything needed to construct an operator. The registry
// prepares it from a type spec.
type Config struct {
	ID          string
	Type        string
	ContainerID string
	Locked      bool
	Cacheable   bool
	Inputs      []*field.Field
	Outputs     []*field.Field
	Run         RunFunc
	RunGraph    RunGraphFunc
}

// Operator is a single node in the live population.
type Operator struct {
	ID          string
	Type        string
	ContainerID string
	Locked      bool

	Inputs  map[string]*field.Field
	Outputs map[string]*field.Field

	status atomic.Int32

	run      RunFunc
	runGraph RunGraphFunc
	memo     *memoCache

	// pullMu serializes Pull so a diamond join never executes the shared
	// upstream twice concurrently.
	pullMu      sync.Mutex
	lastOutputs map[string]cty.Value

	adjMu      sync.Mutex
	upstream   map[string]struct{}
	downstream map[string]struct{}

	errMu    sync.Mutex
	connErrs map[string]error
	execErr  error

	// loopChain is the ordered operator chain bracketed by a for-loop
	// pair, tracked on the loop's end operator.
	loopChain []string

	unsubs   []func()
	disposed atomic.Bool
}

// New constructs an operator from a prepared config. Every input field
// gets the owner hook that marks the operator (and transitively its
// dependents) dirty on change.
func New(cfg Config) *Operator {
	o := &Operator{
		ID:          cfg.ID,
		Type:        cfg.Type,
		ContainerID: cfg.ContainerID,
		Locked:      cfg.Locked,
		Inputs:      make(map[string]*field.Field, len(cfg.Inputs)),
		Outputs:     make(map[string]*field.Field, len(cfg.Outputs)),
		run:         cfg.Run,
		runGraph:    cfg.RunGraph,
		upstream:    make(map[string]struct{}),
		downstream:  make(map[string]struct{}),
		connErrs:    make(map[string]error),
	}
	o.status.Store(int32(StatusDirty))
	if cfg.Cacheable {
		o.memo = newMemoCache()
	}
	for _, f := range cfg.Inputs {
		o.Inputs[f.Name()] = f
	}
	for _, f := range cfg.Outputs {
		o.Outputs[f.Name()] = f
	}
	return o
}

// BindDirtyHook wires every input field's owner hook to dirty propagation
// through the given resolver. Called once the operator joins a population.
func (o *Operator) BindDirtyHook(res Resolver) {
	for _, f := range o.Inputs {
		f.SetOwnerHook(func() { o.MarkDirty(res) })
	}
}

// Status returns the operator's current pull status.
func (o *Operator) Status() Status {
	return Status(o.status.Load())
}

// MarkDirty sets the status to dirty and eagerly propagates to every
// downstream dependent. Visiting an already-dirty operator is a no-op,
// which keeps diamond-shaped graphs linear.
func (o *Operator) MarkDirty(res Resolver) {
	if !o.status.CompareAndSwap(int32(StatusClean), int32(StatusDirty)) {
		return
	}
	for _, id := range o.Downstream() {
		if dep, ok := res.Get(id); ok {
			dep.MarkDirty(res)
		}
	}
}

// ForceDirty marks just this operator dirty without propagation, used when
// a freshly wired edge targets it.
func (o *Operator) ForceDirty() {
	o.status.Store(int32(StatusDirty))
}

// markClean transitions to clean after a successful execute.
func (o *Operator) markClean() {
	o.status.Store(int32(StatusClean))
}

// AddUpstream records a dependency on the operator with the given id.
func (o *Operator) AddUpstream(id string) {
	o.adjMu.Lock()
	defer o.adjMu.Unlock()
	o.upstream[id] = struct{}{}
}

// AddDownstream records a dependent with the given id.
func (o *Operator) AddDownstream(id string) {
	o.adjMu.Lock()
	defer o.adjMu.Unlock()
	o.downstream[id] = struct{}{}
}

// ResetAdjacency clears both dependency sets; the reconciler rebuilds them
// from the live field connections after each pass.
func (o *Operator) ResetAdjacency() {
	o.adjMu.Lock()
	defer o.adjMu.Unlock()
	o.upstream = make(map[string]struct{})
	o.downstream = make(map[string]struct{})
}

// Upstream returns the sorted ids of upstream dependencies.
func (o *Operator) Upstream() []string {
	o.adjMu.Lock()
	defer o.adjMu.Unlock()
	out := make([]string, 0, len(o.upstream))
	for id := range o.upstream {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// Downstream returns the sorted ids of downstream dependents.
func (o *Operator) Downstream() []string {
	o.adjMu.Lock()
	defer o.adjMu.Unlock()
	out := make([]string, 0, len(o.downstream))
	for id := range o.downstream {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// SetLoopChain stores the ordered loop-body chain and reports whether its
// identity changed from the previous reconciliation.
func (o *Operator) SetLoopChain(chain []string) bool {
	if len(chain) == len(o.loopChain) {
		same := true
		for i := range chain {
			if chain[i] != o.loopChain[i] {
				same = false
				break
			}
		}
		if same {
			return false
		}
	}
	o.loopChain = append([]string(nil), chain...)
	return true
}

// LoopChain returns the tracked loop-body chain.
func (o *Operator) LoopChain() []string {
	return append([]string(nil), o.loopChain...)
}

// Dispose unsubscribes all field listeners and detaches the operator from
// the dependency graph. Safe to call more than once.
func (o *Operator) Dispose() {
	if !o.disposed.CompareAndSwap(false, true) {
		return
	}
	for _, unsub := range o.unsubs {
		unsub()
	}
	o.unsubs = nil
	for _, f := range o.Inputs {
		f.SetOwnerHook(nil)
		f.DisconnectAll()
	}
	for _, f := range o.Outputs {
		f.DisconnectAll()
	}
	o.ResetAdjacency()
}

// Disposed reports whether Dispose has run.
func (o *Operator) Disposed() bool {
	return o.disposed.Load()
}

// TrackUnsubscribe registers a cleanup function to run on Dispose.
func (o *Operator) TrackUnsubscribe(unsub func()) {
	o.unsubs = append(o.unsubs, unsub)
}
