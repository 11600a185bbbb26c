package cells

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// ComputeSequential computes every node of g once, one at a time, in
// topological order, using a default runner.
func ComputeSequential(ctx context.Context, g *Graph) error {
	return NewRunner().Sequential(ctx, g)
}

// ComputeConcurrent computes every node of g once, starting each node as soon
// as all of its predecessors have completed, using a default runner.
func ComputeConcurrent(ctx context.Context, g *Graph) error {
	return NewRunner().Concurrent(ctx, g)
}

// Sequential computes every node of g once in topological order. It stops at
// the first failure.
func (r *Runner) Sequential(ctx context.Context, g *Graph) error {
	order, err := r.prepare(g)
	if err != nil {
		return err
	}
	return r.runPass(ctx, g, ModeSequential, order, nil, false)
}

// Concurrent computes every node of g once. A node starts when all of its
// predecessors have succeeded; at most the configured concurrency run at the
// same time.
func (r *Runner) Concurrent(ctx context.Context, g *Graph) error {
	order, err := r.prepare(g)
	if err != nil {
		return err
	}
	return r.runPass(ctx, g, ModeConcurrent, order, nil, true)
}

func (r *Runner) prepare(g *Graph) ([]*Node, error) {
	if err := g.Validate(); err != nil {
		return nil, err
	}
	return g.TopologicalOrder()
}

func (r *Runner) runPass(ctx context.Context, g *Graph, mode Mode, nodes []*Node, fired []*Node, concurrent bool) error {
	// Check for cancellation before starting the pass
	if err := ctx.Err(); err != nil {
		return err
	}

	p := newPass(r, g, mode, fired)
	exts := r.snapshotExtensions()

	for _, ext := range exts {
		if err := ext.OnPassStart(p); err != nil {
			r.finishPass(p, exts, err)
			return err
		}
	}

	r.logger.Debug("pass started",
		zap.String("graph", g.Name()),
		zap.String("pass", p.ID()),
		zap.String("mode", string(mode)),
		zap.Int("nodes", len(nodes)),
	)

	pctx := withPass(ctx, p)
	var err error
	if concurrent {
		err = r.runConcurrent(pctx, p, nodes, exts)
	} else {
		err = r.runSequential(pctx, p, nodes, exts)
	}

	r.finishPass(p, exts, err)
	return err
}

func (r *Runner) finishPass(p *Pass, exts []Extension, err error) {
	p.Set(endTimeTag, time.Now())
	switch {
	case err == nil:
		p.Set(statusTag, StatusSuccess)
	case isCancellation(err):
		p.Set(statusTag, StatusCancelled)
		p.Set(errorTag, err)
	default:
		p.Set(statusTag, StatusFailed)
		p.Set(errorTag, err)
	}

	for i := len(exts) - 1; i >= 0; i-- {
		exts[i].OnPassEnd(p, err)
	}

	root, children := p.finalize()
	r.trace.addPass(root, children)

	if err != nil {
		r.logger.Debug("pass ended with error",
			zap.String("pass", p.ID()),
			zap.Error(err),
		)
	}
}

func (r *Runner) runSequential(ctx context.Context, p *Pass, nodes []*Node, exts []Extension) error {
	for _, n := range nodes {
		// Check for cancellation before each node
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := r.invoke(ctx, p, n, OpCompute, exts); err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			return err
		}
	}
	return nil
}

func (r *Runner) runConcurrent(parent context.Context, p *Pass, nodes []*Node, exts []Extension) error {
	if len(nodes) == 0 {
		return nil
	}

	in := make(map[*Node]bool, len(nodes))
	for _, n := range nodes {
		in[n] = true
	}
	pending := make(map[*Node]int, len(nodes))
	for _, n := range nodes {
		for _, pred := range p.graph.Predecessors(n) {
			if in[pred] {
				pending[n]++
			}
		}
	}

	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	eg, egCtx := errgroup.WithContext(ctx)
	if r.concurrency > 0 {
		eg.SetLimit(r.concurrency)
	}

	type completion struct {
		node *Node
		err  error
	}
	// Buffered so workers never block on a scheduler that stopped listening
	done := make(chan completion, len(nodes))

	launch := func(n *Node) {
		eg.Go(func() error {
			err := r.invoke(egCtx, p, n, OpCompute, exts)
			done <- completion{node: n, err: err}
			if err != nil && r.errorMode == ErrorModeFailFast {
				return err
			}
			return nil
		})
	}

	for _, n := range nodes {
		if pending[n] == 0 {
			launch(n)
		}
	}

	skipped := make(map[*Node]bool)
	remaining := len(nodes)
	var errs []error

loop:
	for remaining > 0 {
		var c completion
		select {
		case c = <-done:
		case <-parent.Done():
			break loop
		}
		remaining--

		if c.err != nil {
			errs = append(errs, c.err)
			if r.errorMode == ErrorModeFailFast {
				break loop
			}
			for _, d := range p.graph.Downstream(c.node) {
				if in[d] && !skipped[d] {
					skipped[d] = true
					remaining--
					r.skip(p, d)
				}
			}
			continue
		}

		for _, s := range p.graph.Successors(c.node) {
			if !in[s] {
				continue
			}
			pending[s]--
			if pending[s] == 0 && !skipped[s] {
				launch(s)
			}
		}
	}

	cancel()
	_ = eg.Wait()

	if err := parent.Err(); err != nil {
		return err
	}
	if r.errorMode == ErrorModeFailFast && len(errs) > 0 {
		return errs[0]
	}
	return errors.Join(errs...)
}

// invoke runs one node through the extension chain and records the outcome
func (r *Runner) invoke(ctx context.Context, p *Pass, n *Node, kind OperationKind, exts []Extension) error {
	rec := &Record{
		ID:   uuid.NewString(),
		Tags: make(map[any]any),
	}
	rec.SetTag(nodeNameTag, n.Name())
	start := time.Now()
	rec.SetTag(startTimeTag, start)

	op := &Operation{
		Kind:   kind,
		Node:   n,
		Pass:   p,
		Runner: r,
	}

	next := func(c context.Context) error {
		return callNode(c, n)
	}

	// Apply extensions in reverse order (first registered wraps outermost)
	for i := len(exts) - 1; i >= 0; i-- {
		ext := exts[i]
		currentNext := next
		next = func(c context.Context) error {
			return ext.Wrap(c, currentNext, op)
		}
	}

	err := next(ctx)
	duration := time.Since(start)

	var status Status
	switch {
	case err == nil:
		status = StatusSuccess
	case errors.Is(err, ErrNotModified):
		status = StatusUnchanged
		err = nil
	case kind == OpInput && errors.Is(err, ErrStopFlow):
		status = StatusSuccess
	case isCancellation(err) && ctx.Err() != nil:
		status = StatusCancelled
	default:
		status = StatusFailed
	}

	if status == StatusFailed || status == StatusCancelled {
		var nodeErr *NodeError
		if !errors.As(err, &nodeErr) || nodeErr.Node != n {
			nodeErr = newNodeError(n, err)
		}
		err = nodeErr
		rec.SetTag(errorTag, err)
		if nodeErr.IsPanic() {
			rec.SetTag(panicStackTag, nodeErr.StackTrace)
		}
		if status == StatusFailed {
			for _, ext := range exts {
				ext.OnNodeError(nodeErr, op)
			}
			r.logger.Debug("node failed",
				zap.String("node", n.Name()),
				zap.Duration("duration", duration),
				zap.Error(err),
			)
		}
	}

	rec.SetTag(endTimeTag, time.Now())
	rec.SetTag(statusTag, status)
	r.recordStats(n, status, duration)
	if kind == OpCompute {
		p.addRecord(rec)
	}

	return err
}

func (r *Runner) skip(p *Pass, n *Node) {
	rec := &Record{
		ID:   uuid.NewString(),
		Tags: make(map[any]any),
	}
	rec.SetTag(nodeNameTag, n.Name())
	rec.SetTag(statusTag, StatusSkipped)
	p.addRecord(rec)
}

func callNode(ctx context.Context, n *Node) (err error) {
	defer func() {
		if recovered := recover(); recovered != nil {
			err = newPanicError(n, recovered)
		}
	}()
	return n.Call(ctx)
}

func isCancellation(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
