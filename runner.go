package cells

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// ErrorMode selects how a concurrent pass reacts to a node failure
type ErrorMode int

const (
	// ErrorModeFailFast cancels the pass on the first failure
	ErrorModeFailFast ErrorMode = iota
	// ErrorModeCollectErrors skips the dependents of failed nodes, keeps
	// running everything else and joins the errors
	ErrorModeCollectErrors
)

const defaultTraceLimit = 1000

// Runner evaluates graphs. It holds the extensions, the pass history and
// per-node statistics shared by every pass it runs. A Runner is safe for
// concurrent use; one graph may be computed by several runners.
type Runner struct {
	mu         sync.RWMutex
	extensions []Extension
	tags       sync.Map
	trace      *Trace
	stats      *statsTable
	logger     *zap.Logger

	concurrency    int
	errorMode      ErrorMode
	flowLimiter    *rate.Limiter
	flowConcurrent bool
}

// RunnerOption is a modifier for runners
type RunnerOption func(*Runner)

// WithRunnerTag returns an option that sets a tag on a runner
func WithRunnerTag[T any](tag Tag[T], val T) RunnerOption {
	return func(r *Runner) {
		tag.Set(r, val)
	}
}

// WithExtension returns an option that registers an extension to a runner
func WithExtension(ext Extension) RunnerOption {
	return func(r *Runner) {
		if err := r.UseExtension(ext); err != nil {
			panic(err)
		}
	}
}

// WithConcurrency bounds how many nodes a concurrent pass runs at once.
// Zero or less means unbounded.
func WithConcurrency(n int) RunnerOption {
	return func(r *Runner) {
		r.concurrency = n
	}
}

func WithFailFast() RunnerOption {
	return func(r *Runner) {
		r.errorMode = ErrorModeFailFast
	}
}

func WithCollectErrors() RunnerOption {
	return func(r *Runner) {
		r.errorMode = ErrorModeCollectErrors
	}
}

// WithTraceLimit caps the number of records kept in the trace
func WithTraceLimit(n int) RunnerOption {
	return func(r *Runner) {
		if n > 0 {
			r.trace = newTrace(n)
		}
	}
}

// WithFlowRate throttles flow recomputation passes. A burst below one is
// raised to one.
func WithFlowRate(limit rate.Limit, burst int) RunnerOption {
	return func(r *Runner) {
		burst = max(burst, 1)
		r.flowLimiter = rate.NewLimiter(limit, burst)
	}
}

// WithFlowConcurrent makes flow recomputation passes run concurrently
// instead of sequentially
func WithFlowConcurrent() RunnerOption {
	return func(r *Runner) {
		r.flowConcurrent = true
	}
}

func WithLogger(logger *zap.Logger) RunnerOption {
	return func(r *Runner) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// NewRunner creates a runner with optional configuration
func NewRunner(opts ...RunnerOption) *Runner {
	r := &Runner{
		extensions: []Extension{},
		trace:      newTrace(defaultTraceLimit),
		stats:      newStatsTable(),
		logger:     zap.NewNop(),
	}

	for _, opt := range opts {
		opt(r)
	}

	return r
}

// UseExtension registers an extension to the runner
func (r *Runner) UseExtension(ext Extension) error {
	r.mu.Lock()
	r.extensions = append(r.extensions, ext)
	sort.SliceStable(r.extensions, func(i, j int) bool {
		return r.extensions[i].Order() < r.extensions[j].Order()
	})
	r.mu.Unlock()

	return ext.Init(r)
}

func (r *Runner) snapshotExtensions() []Extension {
	r.mu.RLock()
	defer r.mu.RUnlock()
	exts := make([]Extension, len(r.extensions))
	copy(exts, r.extensions)
	return exts
}

func (r *Runner) Logger() *zap.Logger {
	return r.logger
}

// GetTag retrieves a tag value from the runner
func (r *Runner) GetTag(tag any) (any, bool) {
	return r.tags.Load(tag)
}

// SetTag stores a tag value on the runner
func (r *Runner) SetTag(tag any, val any) {
	r.tags.Store(tag, val)
}

// Trace returns the pass history
func (r *Runner) Trace() *Trace {
	return r.trace
}

// NodeStats summarises every invocation of a node by a runner
type NodeStats struct {
	Runs         uint64
	Failures     uint64
	Unchanged    uint64
	LastStatus   Status
	LastDuration time.Duration
}

type nodeStats struct {
	mu sync.Mutex
	NodeStats
}

// Stats returns the statistics recorded for n
func (r *Runner) Stats(n *Node) NodeStats {
	s, ok := r.stats.load(n)
	if !ok {
		return NodeStats{}
	}
	return s.snapshot()
}

// AllStats returns the statistics of every node this runner has invoked,
// keyed by node
func (r *Runner) AllStats() map[*Node]NodeStats {
	all := make(map[*Node]NodeStats)
	r.stats.each(func(n *Node, s *nodeStats) bool {
		all[n] = s.snapshot()
		return true
	})
	return all
}

func (s *nodeStats) snapshot() NodeStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.NodeStats
}

func (r *Runner) recordStats(n *Node, status Status, d time.Duration) {
	s := r.stats.entry(n)
	s.mu.Lock()
	defer s.mu.Unlock()

	s.Runs++
	switch status {
	case StatusFailed:
		s.Failures++
	case StatusUnchanged:
		s.Unchanged++
	}
	s.LastStatus = status
	s.LastDuration = d
}

// Dispose disposes every extension, in reverse registration order
func (r *Runner) Dispose() error {
	exts := r.snapshotExtensions()

	var errs []error
	for i := len(exts) - 1; i >= 0; i-- {
		if err := exts[i].Dispose(r); err != nil {
			errs = append(errs, fmt.Errorf("disposing extension %s: %w", exts[i].Name(), err))
		}
	}
	r.stats.clear()
	return errors.Join(errs...)
}
