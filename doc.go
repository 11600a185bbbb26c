// Package cells computes dependency graphs of small units of work, once or
// continuously, recomputing only what changed.
//
// # Overview
//
// Cells organizes code around four concepts:
//
//  1. Nodes: named functions taking a context.Context
//  2. Graphs: nodes plus precedence edges ("a before b") and input nodes
//  3. Runners: evaluate graphs sequentially, concurrently, or as a flow
//  4. Cells: values stamped by a shared clock, so nodes can skip work when
//     nothing they read has changed
//
// # Basic Usage
//
//	g := cells.NewGraph()
//
//	fetch := cells.NewNode("fetch", func(ctx context.Context) error { ... })
//	parse := cells.NewNode("parse", func(ctx context.Context) error { ... })
//	store := cells.NewNode("store", func(ctx context.Context) error { ... })
//
//	g.AddPrecedence(fetch, parse)
//	g.AddPrecedence(parse, store)
//
//	err := cells.ComputeSequential(ctx, g)
//	err = cells.ComputeConcurrent(ctx, g)
//
// # Runners
//
// A Runner holds extensions, the pass history and per-node statistics:
//
//	runner := cells.NewRunner(
//	    cells.WithConcurrency(4),
//	    cells.WithCollectErrors(),
//	    cells.WithExtension(extensions.NewLoggingExtension(logger)),
//	)
//	defer runner.Dispose()
//
//	err := runner.Concurrent(ctx, g)
//	stats := runner.Stats(parse)
//
// In fail-fast mode (the default) the first failure cancels the pass. In
// collect mode the nodes downstream of a failure are skipped and the errors
// are joined.
//
// # Cells
//
// Cells carry modification stamps from a shared Clock. Func1..Func3 and FuncN
// build nodes that recompute their output cell only when an input cell was
// assigned since their previous run:
//
//	clock := cells.NewClock()
//	celsius := cells.NewCell[float64](clock)
//	fahrenheit := cells.NewCell[float64](clock)
//
//	convert := cells.Func1("convert", celsius, fahrenheit,
//	    func(ctx context.Context, c float64) (float64, error) {
//	        return c*9/5 + 32, nil
//	    },
//	)
//
// A node that decides it has nothing to do returns ErrNotModified; runners
// record it with StatusUnchanged.
//
// # Flows
//
// Input nodes are event sources. Flow computes the graph once, then keeps
// calling the inputs; every time one returns, the nodes downstream of it are
// recomputed:
//
//	tick := cells.NewCell[time.Time](clock)
//	timer := cells.Timer("timer", time.Second, tick)
//	g.AddInput(timer)
//	g.AddPrecedence(timer, render)
//
//	err := runner.Flow(ctx, g) // until ctx is cancelled or ErrStopFlow
//
// # Trace
//
// Every pass is kept in a bounded Trace, a tree of Records tagged with
// NodeName, StatusTag, StartTime, EndTime and ErrorTag:
//
//	last := runner.Trace().Last()
//	for _, rec := range runner.Trace().Children(last.ID) {
//	    name, _ := cells.NodeName().Get(rec)
//	    status, _ := cells.StatusTag().Get(rec)
//	}
//
// # Extensions
//
// Extensions wrap every node invocation and observe passes. Embed
// BaseExtension and override the hooks you need:
//
//	type timing struct{ cells.BaseExtension }
//
//	func (t *timing) Wrap(ctx context.Context, next func(context.Context) error, op *cells.Operation) error {
//	    start := time.Now()
//	    err := next(ctx)
//	    log.Printf("%s took %v", op.Node.Name(), time.Since(start))
//	    return err
//	}
package cells
