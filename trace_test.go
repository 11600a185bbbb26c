package cells

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTraceRecordsPasses(t *testing.T) {
	j := &journal{}
	g, _ := diamond(j, 0)

	runner := NewRunner()
	require.NoError(t, runner.Sequential(context.Background(), g))
	require.NoError(t, runner.Concurrent(context.Background(), g))

	roots := runner.Trace().Roots()
	require.Len(t, roots, 2)
	assert.Equal(t, ModeSequential, PassMode().MustGet(roots[0]))
	assert.Equal(t, ModeConcurrent, PassMode().MustGet(roots[1]))

	children := runner.Trace().Children(roots[0].ID)
	require.Len(t, children, 4)
	assert.Equal(t, []string{"a", "b", "c", "d"}, []string{
		NodeName().MustGet(children[0]),
		NodeName().MustGet(children[1]),
		NodeName().MustGet(children[2]),
		NodeName().MustGet(children[3]),
	})
	for _, child := range children {
		assert.Equal(t, roots[0].ID, child.ParentID)
		assert.Equal(t, StatusSuccess, StatusTag().MustGet(child))
		start := StartTime().MustGet(child)
		end := EndTime().MustGet(child)
		assert.False(t, end.Before(start))
	}

	visited := 0
	runner.Trace().Walk(roots[1].ID, func(*Record) bool {
		visited++
		return true
	})
	assert.Equal(t, 5, visited)

	succeeded := runner.Trace().Filter(func(r *Record) bool {
		name, ok := NodeName().Get(r)
		return ok && name == "d"
	})
	assert.Len(t, succeeded, 2)
}

func TestTraceEvictsOldestPasses(t *testing.T) {
	g := NewGraph()
	require.NoError(t, g.AddNode(noop("a")))
	require.NoError(t, g.AddNode(noop("b")))

	runner := NewRunner(WithTraceLimit(7))
	for i := 0; i < 5; i++ {
		require.NoError(t, runner.Sequential(context.Background(), g))
	}

	// Each pass holds three records
	assert.Len(t, runner.Trace().Roots(), 2)
	assert.Equal(t, 6, runner.Trace().Len())
	assert.NotNil(t, runner.Trace().Get(runner.Trace().Last().ID))
}

func TestTagDefaults(t *testing.T) {
	n := NewNode("tagged", nil, WithNodeTag(NewTag[int]("weight"), 3))
	weight := NewTag[int]("weight")
	missing := NewTag[string]("missing")

	assert.Equal(t, 3, weight.MustGet(n))
	assert.Equal(t, "fallback", missing.GetOrDefault(n, "fallback"))
	assert.Panics(t, func() { missing.MustGet(n) })

	missing.Set(n, "now set")
	assert.Equal(t, "now set", missing.MustGet(n))
	assert.Equal(t, "weight", weight.Key())
}
