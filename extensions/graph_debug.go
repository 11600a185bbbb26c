package extensions

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"

	cells "github.com/pumped-fn/cells-go"
)

// GraphDebugExtension logs the neighbourhood of a failing node: its
// predecessors, itself and its successors, each marked with what happened to
// it in the current pass.
//
// Usage:
//
//	logger, _ := zap.NewDevelopment()
//	runner := cells.NewRunner(
//	    cells.WithExtension(extensions.NewGraphDebugExtension(logger)),
//	)
//
// The extension logs at ERROR level for node failures and panics.
type GraphDebugExtension struct {
	cells.BaseExtension
	logger *zap.Logger

	mu        sync.Mutex
	completed map[string]map[*cells.Node]bool
}

// NewGraphDebugExtension creates a new graph debug extension
func NewGraphDebugExtension(logger *zap.Logger) *GraphDebugExtension {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GraphDebugExtension{
		BaseExtension: cells.NewBaseExtension("graph-debug"),
		logger:        logger,
		completed:     make(map[string]map[*cells.Node]bool),
	}
}

func (e *GraphDebugExtension) OnPassStart(p *cells.Pass) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.completed[p.ID()] = make(map[*cells.Node]bool)
	return nil
}

func (e *GraphDebugExtension) OnPassEnd(p *cells.Pass, err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.completed, p.ID())
}

// Wrap tracks which nodes completed in each pass
func (e *GraphDebugExtension) Wrap(ctx context.Context, next func(context.Context) error, op *cells.Operation) error {
	err := next(ctx)
	if err == nil && op.Kind == cells.OpCompute {
		e.mu.Lock()
		if done, ok := e.completed[op.Pass.ID()]; ok {
			done[op.Node] = true
		}
		e.mu.Unlock()
	}
	return err
}

// OnNodeError logs the dependency neighbourhood of the failed node
func (e *GraphDebugExtension) OnNodeError(err *cells.NodeError, op *cells.Operation) {
	fields := []zap.Field{
		zap.String("node", op.Node.Name()),
		zap.String("operation", string(op.Kind)),
		zap.Error(err.Cause),
		zap.String("dependency_graph", e.formatNeighbourhood(op, err)),
	}
	if err.IsPanic() {
		fields = append(fields, zap.ByteString("stack_trace", err.StackTrace))
		e.logger.Error("Node Panic", fields...)
		return
	}
	e.logger.Error("Node Failure", fields...)
}

func (e *GraphDebugExtension) formatNeighbourhood(op *cells.Operation, nodeErr *cells.NodeError) string {
	var sb strings.Builder
	g := op.Pass.Graph()

	e.mu.Lock()
	done := e.completed[op.Pass.ID()]
	status := func(n *cells.Node) string {
		switch {
		case n == op.Node:
			return " ❌ FAILED"
		case done[n]:
			return " ✓"
		default:
			return " (pending)"
		}
	}

	preds := g.Predecessors(op.Node)
	succs := g.Successors(op.Node)

	sb.WriteString("\n")
	if len(preds) == 0 {
		sb.WriteString("  (no predecessors)\n")
	}
	for _, p := range preds {
		sb.WriteString(fmt.Sprintf("  %s%s\n", p.Name(), status(p)))
	}
	sb.WriteString(fmt.Sprintf("    └─> %s%s\n", op.Node.Name(), status(op.Node)))
	for i, s := range succs {
		if i == len(succs)-1 {
			sb.WriteString(fmt.Sprintf("          └─> %s%s\n", s.Name(), status(s)))
		} else {
			sb.WriteString(fmt.Sprintf("          ├─> %s%s\n", s.Name(), status(s)))
		}
	}
	e.mu.Unlock()

	sb.WriteString("\nError Details:\n")
	sb.WriteString(fmt.Sprintf("  Node: %s\n", op.Node.Name()))
	sb.WriteString(fmt.Sprintf("  Error: %v\n", nodeErr.Cause))

	return sb.String()
}
