package cells

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func names(nodes []*Node) []string {
	out := make([]string, len(nodes))
	for i, n := range nodes {
		out[i] = n.Name()
	}
	return out
}

func noop(name string) *Node {
	return NewNode(name, nil)
}

func TestTopologicalOrderIsStable(t *testing.T) {
	g := NewGraph()
	a, b, c, d, e := noop("a"), noop("b"), noop("c"), noop("d"), noop("e")

	require.NoError(t, g.AddNode(e))
	require.NoError(t, g.AddPrecedence(a, d))
	require.NoError(t, g.AddPrecedence(b, d))
	require.NoError(t, g.AddPrecedence(c, b))
	require.NoError(t, g.AddPrecedence(d, e))

	order, err := g.TopologicalOrder()
	require.NoError(t, err)

	want := []string{"a", "c", "b", "d", "e"}
	if diff := cmp.Diff(want, names(order)); diff != "" {
		t.Errorf("topological order mismatch (-want +got):\n%s", diff)
	}

	again, err := g.TopologicalOrder()
	require.NoError(t, err)
	assert.Equal(t, names(order), names(again))
}

func TestAddNodeIsIdempotent(t *testing.T) {
	g := NewGraph()
	a := noop("a")

	require.NoError(t, g.AddNode(a))
	require.NoError(t, g.AddNode(a))
	require.NoError(t, g.AddPrecedence(a, noop("b")))
	require.NoError(t, g.AddPrecedence(a, g.Successors(a)[0]))

	assert.Equal(t, 2, g.Len())
	assert.Len(t, g.Successors(a), 1)
	assert.ErrorIs(t, g.AddNode(nil), ErrNilNode)
	assert.ErrorIs(t, g.AddPrecedence(nil, a), ErrNilNode)
}

func TestCycleDetection(t *testing.T) {
	g := NewGraph()
	a, b, c, d := noop("a"), noop("b"), noop("c"), noop("d")

	require.NoError(t, g.AddPrecedence(d, a))
	require.NoError(t, g.AddPrecedence(a, b))
	require.NoError(t, g.AddPrecedence(b, c))
	require.NoError(t, g.AddPrecedence(c, a))

	_, err := g.TopologicalOrder()
	var cycleErr *CycleError
	require.True(t, errors.As(err, &cycleErr), "expected CycleError, got %v", err)
	assert.ElementsMatch(t, []string{"a", "b", "c"}, names(cycleErr.Nodes))
	assert.Contains(t, err.Error(), "->")

	assert.Error(t, g.Validate())
}

func TestSelfPrecedenceIsCycle(t *testing.T) {
	g := NewGraph()
	a := noop("a")

	err := g.AddPrecedence(a, a)
	var cycleErr *CycleError
	require.True(t, errors.As(err, &cycleErr))
	assert.Equal(t, "cells: dependency cycle: a -> a", err.Error())
}

func TestRemovePrecedence(t *testing.T) {
	g := NewGraph()
	a, b := noop("a"), noop("b")

	require.NoError(t, g.AddPrecedence(a, b))
	require.NoError(t, g.AddPrecedence(b, a))
	require.Error(t, g.Validate())

	g.RemovePrecedence(b, a)
	require.NoError(t, g.Validate())
	assert.Empty(t, g.Predecessors(a))
	assert.Equal(t, []*Node{a}, g.Predecessors(b))
}

func TestValidate(t *testing.T) {
	t.Run("duplicate names", func(t *testing.T) {
		g := NewGraph()
		require.NoError(t, g.AddNode(noop("x")))
		require.NoError(t, g.AddNode(noop("x")))
		assert.ErrorIs(t, g.Validate(), ErrDuplicateName)
	})

	t.Run("input with predecessors", func(t *testing.T) {
		g := NewGraph()
		in := noop("in")
		require.NoError(t, g.AddInput(in))
		require.NoError(t, g.AddPrecedence(noop("before"), in))
		assert.ErrorIs(t, g.Validate(), ErrInputHasPredecessors)
	})

	t.Run("valid", func(t *testing.T) {
		g := NewGraph()
		in := noop("in")
		require.NoError(t, g.AddInput(in))
		require.NoError(t, g.AddPrecedence(in, noop("after")))
		assert.NoError(t, g.Validate())
		assert.True(t, g.IsInput(in))
		assert.Equal(t, []*Node{in}, g.Inputs())
	})
}

func TestDownstream(t *testing.T) {
	g := NewGraph()
	a, b, c, d, e := noop("a"), noop("b"), noop("c"), noop("d"), noop("e")

	require.NoError(t, g.AddPrecedence(a, c))
	require.NoError(t, g.AddPrecedence(b, c))
	require.NoError(t, g.AddPrecedence(c, d))
	require.NoError(t, g.AddPrecedence(a, d))
	require.NoError(t, g.AddNode(e))

	assert.Equal(t, []string{"c", "d"}, names(g.Downstream(a)))
	assert.Equal(t, []string{"c", "d"}, names(g.Downstream(a, b)))
	assert.Equal(t, []string{"d"}, names(g.Downstream(c)))
	assert.Empty(t, g.Downstream(e))
	assert.Equal(t, []string{"d"}, names(g.Downstream(a, c)))
}

func TestLookupAndContains(t *testing.T) {
	g := NewGraph(WithGraphName("lookup"))
	a := noop("a")
	require.NoError(t, g.AddNode(a))

	found, ok := g.Lookup("a")
	require.True(t, ok)
	assert.Same(t, a, found)

	_, ok = g.Lookup("missing")
	assert.False(t, ok)

	assert.True(t, g.Contains(a))
	assert.False(t, g.Contains(noop("a")))
	assert.Equal(t, "lookup", g.Name())
	assert.Equal(t, "graph", NewGraph().Name())
}
