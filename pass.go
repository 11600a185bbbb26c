package cells

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Mode identifies how a pass evaluates the graph
type Mode string

const (
	ModeSequential Mode = "sequential"
	ModeConcurrent Mode = "concurrent"
	ModeFlow       Mode = "flow"
)

// Status is the outcome of a node invocation or a whole pass
type Status int

const (
	StatusRunning Status = iota
	StatusSuccess
	StatusFailed
	StatusCancelled
	// StatusUnchanged marks a node that returned ErrNotModified
	StatusUnchanged
	// StatusSkipped marks a node that never ran because a predecessor failed
	StatusSkipped
)

func (s Status) String() string {
	switch s {
	case StatusRunning:
		return "running"
	case StatusSuccess:
		return "success"
	case StatusFailed:
		return "failed"
	case StatusCancelled:
		return "cancelled"
	case StatusUnchanged:
		return "unchanged"
	case StatusSkipped:
		return "skipped"
	}
	return "unknown"
}

// Pass is one evaluation of (part of) a graph. Node functions can reach the
// current pass through PassFromContext.
type Pass struct {
	id     string
	mode   Mode
	graph  *Graph
	runner *Runner
	fired  []*Node

	mu      sync.Mutex
	data    map[any]any
	records []*Record
}

func newPass(r *Runner, g *Graph, mode Mode, fired []*Node) *Pass {
	p := &Pass{
		id:     uuid.NewString(),
		mode:   mode,
		graph:  g,
		runner: r,
		fired:  fired,
		data:   make(map[any]any),
	}
	p.Set(passModeTag, mode)
	p.Set(startTimeTag, time.Now())
	p.Set(statusTag, StatusRunning)
	return p
}

func (p *Pass) ID() string    { return p.id }
func (p *Pass) Mode() Mode    { return p.mode }
func (p *Pass) Graph() *Graph { return p.graph }

// Fired returns the input nodes whose completion triggered this pass. It is
// empty outside of flow recomputations.
func (p *Pass) Fired() []*Node {
	return cloneNodes(p.fired)
}

// Set stores a value on the pass
func (p *Pass) Set(tag any, value any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.data[tag] = value
}

// Get reads a value from the pass only
func (p *Pass) Get(tag any) (any, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	v, ok := p.data[tag]
	return v, ok
}

func (p *Pass) GetTag(tag any) (any, bool) { return p.Get(tag) }
func (p *Pass) SetTag(tag any, val any)    { p.Set(tag, val) }

// Lookup tries the pass, then the runner
func (p *Pass) Lookup(tag any) (any, bool) {
	if v, ok := p.Get(tag); ok {
		return v, true
	}
	if p.runner == nil {
		return nil, false
	}
	return p.runner.GetTag(tag)
}

func (p *Pass) addRecord(rec *Record) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.records = append(p.records, rec)
}

// finalize snapshots the pass into trace records
func (p *Pass) finalize() (*Record, []*Record) {
	p.mu.Lock()
	defer p.mu.Unlock()

	root := &Record{
		ID:   p.id,
		Tags: make(map[any]any, len(p.data)),
	}
	for k, v := range p.data {
		root.Tags[k] = v
	}
	children := make([]*Record, len(p.records))
	copy(children, p.records)
	return root, children
}

type passKey struct{}

// PassFromContext returns the pass a node is running in
func PassFromContext(ctx context.Context) (*Pass, bool) {
	p, ok := ctx.Value(passKey{}).(*Pass)
	return p, ok
}

func withPass(ctx context.Context, p *Pass) context.Context {
	return context.WithValue(ctx, passKey{}, p)
}
