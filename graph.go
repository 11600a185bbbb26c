package cells

import (
	"fmt"
	"sort"
	"sync"
)

// Graph holds nodes and the precedence relationships between them
type Graph struct {
	name string

	mu sync.RWMutex
	// Adjacency lists in both directions, keyed by node identity
	downstream map[*Node][]*Node
	upstream   map[*Node][]*Node
	order      map[*Node]int
	nodes      []*Node
	inputs     map[*Node]bool
}

// GraphOption is a modifier for graphs
type GraphOption func(*Graph)

// WithGraphName names the graph for logs and rendering
func WithGraphName(name string) GraphOption {
	return func(g *Graph) {
		g.name = name
	}
}

// NewGraph creates an empty graph
func NewGraph(opts ...GraphOption) *Graph {
	g := &Graph{
		downstream: make(map[*Node][]*Node),
		upstream:   make(map[*Node][]*Node),
		order:      make(map[*Node]int),
		inputs:     make(map[*Node]bool),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Name returns the graph name, "graph" when unset
func (g *Graph) Name() string {
	if g.name == "" {
		return "graph"
	}
	return g.name
}

// AddNode adds n to the graph. Adding a node twice is a no-op.
func (g *Graph) AddNode(n *Node) error {
	if n == nil {
		return ErrNilNode
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.addNodeLocked(n)
	return nil
}

func (g *Graph) addNodeLocked(n *Node) {
	if _, ok := g.order[n]; ok {
		return
	}
	g.order[n] = len(g.nodes)
	g.nodes = append(g.nodes, n)
}

// AddPrecedence records that before must complete before after starts.
// Both nodes are added to the graph if missing.
func (g *Graph) AddPrecedence(before, after *Node) error {
	if before == nil || after == nil {
		return ErrNilNode
	}
	if before == after {
		return &CycleError{Nodes: []*Node{before}}
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	g.addNodeLocked(before)
	g.addNodeLocked(after)
	g.downstream[before] = appendUnique(g.downstream[before], after)
	g.upstream[after] = appendUnique(g.upstream[after], before)
	return nil
}

// RemovePrecedence removes the edge before -> after if present
func (g *Graph) RemovePrecedence(before, after *Node) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.downstream[before] = removeElement(g.downstream[before], after)
	if len(g.downstream[before]) == 0 {
		delete(g.downstream, before)
	}

	g.upstream[after] = removeElement(g.upstream[after], before)
	if len(g.upstream[after]) == 0 {
		delete(g.upstream, after)
	}
}

// AddInput adds n as an input node. Inputs are the event sources of a flow:
// ComputeFlow calls them repeatedly and recomputes their dependents each time
// one returns.
func (g *Graph) AddInput(n *Node) error {
	if n == nil {
		return ErrNilNode
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.addNodeLocked(n)
	g.inputs[n] = true
	return nil
}

// Nodes returns every node in insertion order
func (g *Graph) Nodes() []*Node {
	g.mu.RLock()
	defer g.mu.RUnlock()
	result := make([]*Node, len(g.nodes))
	copy(result, g.nodes)
	return result
}

// Inputs returns the input nodes in insertion order
func (g *Graph) Inputs() []*Node {
	g.mu.RLock()
	defer g.mu.RUnlock()
	var result []*Node
	for _, n := range g.nodes {
		if g.inputs[n] {
			result = append(result, n)
		}
	}
	return result
}

func (g *Graph) IsInput(n *Node) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.inputs[n]
}

func (g *Graph) Contains(n *Node) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	_, ok := g.order[n]
	return ok
}

func (g *Graph) Len() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.nodes)
}

// Lookup finds a node by name
func (g *Graph) Lookup(name string) (*Node, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	for _, n := range g.nodes {
		if n.Name() == name {
			return n, true
		}
	}
	return nil, false
}

// Predecessors returns the direct predecessors of n
func (g *Graph) Predecessors(n *Node) []*Node {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return cloneNodes(g.upstream[n])
}

// Successors returns the direct successors of n
func (g *Graph) Successors(n *Node) []*Node {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return cloneNodes(g.downstream[n])
}

// TopologicalOrder returns the nodes so that every node comes after all of
// its predecessors. Ties are broken by insertion order, so equal graphs give
// equal orders.
func (g *Graph) TopologicalOrder() ([]*Node, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.topologicalOrderLocked()
}

func (g *Graph) topologicalOrderLocked() ([]*Node, error) {
	indegree := make(map[*Node]int, len(g.nodes))
	ready := make([]*Node, 0, len(g.nodes))
	for _, n := range g.nodes {
		indegree[n] = len(g.upstream[n])
		if indegree[n] == 0 {
			ready = append(ready, n)
		}
	}

	result := make([]*Node, 0, len(g.nodes))
	for len(ready) > 0 {
		current := ready[0]
		ready = ready[1:]
		result = append(result, current)

		released := false
		for _, next := range g.downstream[current] {
			indegree[next]--
			if indegree[next] == 0 {
				ready = append(ready, next)
				released = true
			}
		}
		if released {
			sort.SliceStable(ready, func(i, j int) bool {
				return g.order[ready[i]] < g.order[ready[j]]
			})
		}
	}

	if len(result) != len(g.nodes) {
		remaining := make(map[*Node]bool)
		for n, deg := range indegree {
			if deg > 0 {
				remaining[n] = true
			}
		}
		return nil, &CycleError{Nodes: g.findCycleLocked(remaining)}
	}
	return result, nil
}

// findCycleLocked walks the nodes left over by Kahn's algorithm; every one of
// them either sits on a cycle or is downstream of one.
func (g *Graph) findCycleLocked(remaining map[*Node]bool) []*Node {
	const (
		white = iota
		grey
		black
	)
	color := make(map[*Node]int, len(remaining))
	var path []*Node
	var cycle []*Node

	var visit func(n *Node) bool
	visit = func(n *Node) bool {
		color[n] = grey
		path = append(path, n)
		for _, next := range g.downstream[n] {
			if !remaining[next] {
				continue
			}
			switch color[next] {
			case grey:
				for i, p := range path {
					if p == next {
						cycle = append([]*Node(nil), path[i:]...)
						return true
					}
				}
			case white:
				if visit(next) {
					return true
				}
			}
		}
		path = path[:len(path)-1]
		color[n] = black
		return false
	}

	for _, n := range g.nodes {
		if remaining[n] && color[n] == white {
			if visit(n) {
				return cycle
			}
		}
	}
	return nil
}

// Downstream returns every node reachable from the given nodes through
// precedence edges, excluding the start nodes themselves, in topological
// order.
func (g *Graph) Downstream(start ...*Node) []*Node {
	g.mu.RLock()
	defer g.mu.RUnlock()

	isStart := make(map[*Node]bool, len(start))
	stack := make([]*Node, 0, 32)
	for _, n := range start {
		isStart[n] = true
		stack = append(stack, n)
	}

	visited := make(map[*Node]bool, 32)
	for len(stack) > 0 {
		current := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if visited[current] {
			continue
		}
		visited[current] = true

		for _, dep := range g.downstream[current] {
			if !visited[dep] {
				stack = append(stack, dep)
			}
		}
	}

	order, err := g.topologicalOrderLocked()
	if err != nil {
		order = g.nodes
	}

	result := make([]*Node, 0, len(visited))
	for _, n := range order {
		if visited[n] && !isStart[n] {
			result = append(result, n)
		}
	}
	return result
}

// Validate checks the graph can be computed: no cycles, unique names and no
// edges into input nodes.
func (g *Graph) Validate() error {
	g.mu.RLock()
	defer g.mu.RUnlock()

	seen := make(map[string]bool, len(g.nodes))
	for _, n := range g.nodes {
		name := n.Name()
		if seen[name] {
			return fmt.Errorf("%w: %q", ErrDuplicateName, name)
		}
		seen[name] = true

		if g.inputs[n] && len(g.upstream[n]) > 0 {
			return fmt.Errorf("%w: %s", ErrInputHasPredecessors, name)
		}
	}

	_, err := g.topologicalOrderLocked()
	return err
}

func cloneNodes(nodes []*Node) []*Node {
	if len(nodes) == 0 {
		return nil
	}
	result := make([]*Node, len(nodes))
	copy(result, nodes)
	return result
}

func appendUnique[T comparable](slice []T, item T) []T {
	for _, existing := range slice {
		if existing == item {
			return slice
		}
	}
	return append(slice, item)
}

func removeElement[T comparable](slice []T, item T) []T {
	for i, existing := range slice {
		if existing == item {
			return append(slice[:i], slice[i+1:]...)
		}
	}
	return slice
}
