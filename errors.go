package cells

import (
	"errors"
	"fmt"
	"runtime/debug"
	"strings"
)

var (
	// ErrNilNode is returned when a nil node is added to a graph
	ErrNilNode = errors.New("cells: nil node")
	// ErrDuplicateName is returned by Validate when two nodes share a name
	ErrDuplicateName = errors.New("cells: duplicate node name")
	// ErrInputHasPredecessors is returned by Validate when an input node
	// has incoming precedence edges
	ErrInputHasPredecessors = errors.New("cells: input node has predecessors")

	// ErrNotModified is returned by a node that decided its output is
	// already up to date. Runners treat it as success.
	ErrNotModified = errors.New("cells: not modified")

	// ErrStopFlow is returned by an input node to end a flow cleanly.
	ErrStopFlow = errors.New("cells: stop flow")
)

// NodeError reports a node failure during a pass
type NodeError struct {
	Node       *Node
	Cause      error
	StackTrace []byte
}

func (e *NodeError) Error() string {
	if len(e.StackTrace) > 0 {
		return fmt.Sprintf("node %s panicked: %v", e.Node.Name(), e.Cause)
	}
	return fmt.Sprintf("node %s: %v", e.Node.Name(), e.Cause)
}

func (e *NodeError) Unwrap() error {
	return e.Cause
}

// IsPanic reports whether the node failed by panicking
func (e *NodeError) IsPanic() bool {
	return len(e.StackTrace) > 0
}

func newNodeError(n *Node, cause error) *NodeError {
	return &NodeError{Node: n, Cause: cause}
}

func newPanicError(n *Node, recovered any) *NodeError {
	return &NodeError{
		Node:       n,
		Cause:      fmt.Errorf("panic: %v", recovered),
		StackTrace: debug.Stack(),
	}
}

// CycleError is returned when the precedence edges of a graph form a cycle
type CycleError struct {
	// Nodes lists the cycle in precedence order; the last node precedes the
	// first.
	Nodes []*Node
}

func (e *CycleError) Error() string {
	names := make([]string, len(e.Nodes))
	for i, n := range e.Nodes {
		names[i] = n.Name()
	}
	if len(names) > 0 {
		names = append(names, names[0])
	}
	return "cells: dependency cycle: " + strings.Join(names, " -> ")
}
