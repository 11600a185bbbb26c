package cells

import (
	"context"
	"fmt"
	"sync"
)

// Func is the work a node performs when the graph is computed
type Func func(ctx context.Context) error

// Node is a unit of computation in a Graph. Nodes are compared by identity,
// so the same *Node may appear in several graphs.
type Node struct {
	name string
	fn   Func

	mu   sync.RWMutex
	tags map[any]any
}

// NodeOption is a modifier for nodes
type NodeOption func(*Node)

// WithNodeTag returns an option that sets a tag on a node
func WithNodeTag[T any](tag Tag[T], val T) NodeOption {
	return func(n *Node) {
		n.tags[tag] = val
	}
}

// NewNode creates a node that runs fn. A nil fn creates a no-op node, which
// is handy for joining branches.
func NewNode(name string, fn Func, opts ...NodeOption) *Node {
	n := &Node{
		name: name,
		fn:   fn,
		tags: make(map[any]any),
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Name returns the node's name
func (n *Node) Name() string {
	if n.name == "" {
		return fmt.Sprintf("node_%p", n)
	}
	return n.name
}

func (n *Node) String() string {
	return n.Name()
}

// Call invokes the node function directly, without extensions or tracing.
func (n *Node) Call(ctx context.Context) error {
	if n.fn == nil {
		return nil
	}
	return n.fn(ctx)
}

func (n *Node) GetTag(tag any) (any, bool) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	val, ok := n.tags[tag]
	return val, ok
}

func (n *Node) SetTag(tag any, val any) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.tags[tag] = val
}
