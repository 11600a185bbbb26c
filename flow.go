package cells

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"
)

// ComputeFlow runs g continuously with a default runner. See Runner.Flow.
func ComputeFlow(ctx context.Context, g *Graph) error {
	return NewRunner().Flow(ctx, g)
}

// Flow computes g continuously.
//
// Every non-input node is computed once, then every input node is started in
// its own goroutine. Whenever one or more inputs return, the nodes downstream
// of them are recomputed in a single pass and the inputs are started again.
//
// Flow returns nil once an input returns ErrStopFlow and the pass it
// triggered has completed, ctx.Err() when ctx is cancelled, and the error of
// any failing input or pass otherwise. A graph without inputs is computed once.
// Input functions must honour ctx; Flow waits for all of them before
// returning.
func (r *Runner) Flow(ctx context.Context, g *Graph) error {
	order, err := r.prepare(g)
	if err != nil {
		return err
	}

	inputs := g.Inputs()
	computed := make([]*Node, 0, len(order))
	for _, n := range order {
		if !g.IsInput(n) {
			computed = append(computed, n)
		}
	}

	if err := r.runPass(ctx, g, ModeFlow, computed, nil, r.flowConcurrent); err != nil {
		return err
	}
	if len(inputs) == 0 {
		return nil
	}

	flowCtx, cancel := context.WithCancel(ctx)
	var wg sync.WaitGroup
	defer func() {
		cancel()
		wg.Wait()
	}()

	// Inputs run outside of any recomputation pass; this pass only carries
	// the flow's context to them and is never traced.
	inputPass := newPass(r, g, ModeFlow, nil)
	inputCtx := withPass(flowCtx, inputPass)
	exts := r.snapshotExtensions()

	type event struct {
		node *Node
		err  error
	}
	// An input is never running twice, so one slot per input is enough
	events := make(chan event, len(inputs))

	start := func(n *Node) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := r.invoke(inputCtx, inputPass, n, OpInput, exts)
			events <- event{node: n, err: err}
		}()
	}

	for _, n := range inputs {
		start(n)
	}

	r.logger.Debug("flow started",
		zap.String("graph", g.Name()),
		zap.Int("inputs", len(inputs)),
	)

	for {
		var batch []event
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev := <-events:
			batch = append(batch, ev)
		}

	drain:
		for {
			select {
			case ev := <-events:
				batch = append(batch, ev)
			default:
				break drain
			}
		}

		fired := make([]*Node, 0, len(batch))
		stop := false
		for _, ev := range batch {
			switch {
			case ev.err == nil:
				fired = append(fired, ev.node)
			case errors.Is(ev.err, ErrStopFlow):
				fired = append(fired, ev.node)
				stop = true
			default:
				if ctx.Err() != nil {
					return ctx.Err()
				}
				return ev.err
			}
		}

		if r.flowLimiter != nil {
			if err := r.flowLimiter.Wait(flowCtx); err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				return err
			}
		}

		if err := r.runPass(flowCtx, g, ModeFlow, g.Downstream(fired...), fired, r.flowConcurrent); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return err
		}

		if stop {
			return nil
		}
		for _, n := range fired {
			start(n)
		}
	}
}
