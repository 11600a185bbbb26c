package cells

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"
)

// channelInput builds an input node that assigns the next value received on
// ch to out. A closed channel stops the flow.
func channelInput(name string, ch <-chan int, out *Cell[int]) *Node {
	return NewNode(name, func(ctx context.Context) error {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case v, ok := <-ch:
			if !ok {
				return ErrStopFlow
			}
			out.Assign(v)
			return nil
		}
	})
}

func TestFlowRecomputesOnInput(t *testing.T) {
	clock := NewClock()
	source := NewCell[int](clock)
	doubled := NewCell[int](clock)
	events := make(chan int)

	var mu sync.Mutex
	var collected []int

	input := channelInput("source", events, source)
	double := Func1("double", source, doubled, func(ctx context.Context, v int) (int, error) {
		return v * 2, nil
	})
	collect := Effect1("collect", doubled, func(ctx context.Context, v int) error {
		mu.Lock()
		defer mu.Unlock()
		collected = append(collected, v)
		return nil
	})

	g := NewGraph()
	require.NoError(t, g.AddInput(input))
	require.NoError(t, g.AddPrecedence(input, double))
	require.NoError(t, g.AddPrecedence(double, collect))

	runner := NewRunner()
	done := make(chan error, 1)
	go func() {
		done <- runner.Flow(context.Background(), g)
	}()

	events <- 1
	events <- 2
	events <- 3
	close(events)

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("flow did not stop")
	}

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []int{2, 4, 6}, collected)

	// Initial pass plus one pass per event, the closing event included
	assert.Len(t, runner.Trace().Roots(), 5)
	assert.Equal(t, uint64(5), runner.Stats(double).Runs)
	assert.Equal(t, uint64(2), runner.Stats(double).Unchanged)
}

func TestFlowRecomputesOnlyDownstreamOfFiredInputs(t *testing.T) {
	clock := NewClock()
	left := NewCell[int](clock)
	right := NewCell[int](clock)
	leftEvents := make(chan int)
	rightEvents := make(chan int)

	var leftRuns, rightRuns atomic.Int32
	var fired []string
	var firedMu sync.Mutex

	leftInput := channelInput("left-input", leftEvents, left)
	rightInput := channelInput("right-input", rightEvents, right)
	leftNode := NewNode("left", func(ctx context.Context) error {
		leftRuns.Add(1)
		if p, ok := PassFromContext(ctx); ok {
			firedMu.Lock()
			fired = append(fired, names(p.Fired())...)
			firedMu.Unlock()
		}
		return nil
	})
	rightNode := NewNode("right", func(ctx context.Context) error {
		rightRuns.Add(1)
		return nil
	})

	g := NewGraph()
	require.NoError(t, g.AddInput(leftInput))
	require.NoError(t, g.AddInput(rightInput))
	require.NoError(t, g.AddPrecedence(leftInput, leftNode))
	require.NoError(t, g.AddPrecedence(rightInput, rightNode))

	done := make(chan error, 1)
	go func() {
		done <- ComputeFlow(context.Background(), g)
	}()

	leftEvents <- 1
	leftEvents <- 2
	require.Eventually(t, func() bool { return leftRuns.Load() == 3 }, time.Second, time.Millisecond)

	close(rightEvents)
	require.NoError(t, <-done)

	assert.Equal(t, int32(3), leftRuns.Load())
	assert.Equal(t, int32(2), rightRuns.Load())

	firedMu.Lock()
	defer firedMu.Unlock()
	assert.Equal(t, []string{"left-input", "left-input"}, fired)
}

func TestFlowWithoutInputsComputesOnce(t *testing.T) {
	var runs atomic.Int32
	g := NewGraph()
	require.NoError(t, g.AddNode(NewNode("only", func(ctx context.Context) error {
		runs.Add(1)
		return nil
	})))

	require.NoError(t, ComputeFlow(context.Background(), g))
	assert.Equal(t, int32(1), runs.Load())
}

func TestFlowStopsOnCancellation(t *testing.T) {
	clock := NewClock()
	tick := NewCell[time.Time](clock)
	var renders atomic.Int32

	timer := Timer("timer", 5*time.Millisecond, tick)
	render := Effect1("render", tick, func(ctx context.Context, _ time.Time) error {
		renders.Add(1)
		return nil
	})

	g := NewGraph()
	require.NoError(t, g.AddInput(timer))
	require.NoError(t, g.AddPrecedence(timer, render))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- ComputeFlow(ctx, g)
	}()

	require.Eventually(t, func() bool { return renders.Load() >= 3 }, 2*time.Second, time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("flow ignored cancellation")
	}
}

func TestFlowReturnsInputError(t *testing.T) {
	boom := errors.New("sensor offline")
	g := NewGraph()
	require.NoError(t, g.AddInput(NewNode("sensor", func(ctx context.Context) error {
		return boom
	})))

	err := ComputeFlow(context.Background(), g)
	require.ErrorIs(t, err, boom)

	var nodeErr *NodeError
	require.True(t, errors.As(err, &nodeErr))
	assert.Equal(t, "sensor", nodeErr.Node.Name())
}

func TestFlowReturnsPassError(t *testing.T) {
	boom := errors.New("render failed")
	events := make(chan int, 1)
	source := NewCell[int](nil)

	input := channelInput("source", events, source)
	failing := Effect1("render", source, func(ctx context.Context, v int) error {
		return boom
	})

	g := NewGraph()
	require.NoError(t, g.AddInput(input))
	require.NoError(t, g.AddPrecedence(input, failing))

	events <- 1
	err := NewRunner(WithFlowConcurrent()).Flow(context.Background(), g)
	assert.ErrorIs(t, err, boom)
}

func TestFlowRateLimit(t *testing.T) {
	events := make(chan int, 3)
	source := NewCell[int](nil)
	var passes atomic.Int32

	input := channelInput("source", events, source)
	count := Effect1("count", source, func(ctx context.Context, v int) error {
		passes.Add(1)
		return nil
	})

	g := NewGraph()
	require.NoError(t, g.AddInput(input))
	require.NoError(t, g.AddPrecedence(input, count))

	events <- 1
	events <- 2
	close(events)

	start := time.Now()
	runner := NewRunner(WithFlowRate(rate.Every(20*time.Millisecond), 1))
	require.NoError(t, runner.Flow(context.Background(), g))

	assert.Equal(t, int32(2), passes.Load())
	assert.GreaterOrEqual(t, time.Since(start), 40*time.Millisecond)
}

func TestFlowRateZeroBurst(t *testing.T) {
	clock := NewClock()
	source := NewCell[int](clock)
	events := make(chan int, 2)

	var passes atomic.Int32
	input := channelInput("source", events, source)
	count := Effect1("count", source, func(ctx context.Context, v int) error {
		passes.Add(1)
		return nil
	})

	g := NewGraph()
	require.NoError(t, g.AddInput(input))
	require.NoError(t, g.AddPrecedence(input, count))

	events <- 1
	events <- 2
	close(events)

	runner := NewRunner(WithFlowRate(rate.Every(time.Millisecond), 0))
	assert.Equal(t, 1, runner.flowLimiter.Burst())
	require.NoError(t, runner.Flow(context.Background(), g))
	assert.GreaterOrEqual(t, passes.Load(), int32(1))
}
