package cells

import (
	"context"
	"slices"
	"sync"
	"time"
)

// tracker remembers the input stamps a node last computed from
type tracker struct {
	mu   sync.Mutex
	seen []Stamp
	ran  bool
}

// trackedNode builds a node that runs compute only when an input changed
// since the last successful run, or when out was never assigned (or reset).
// A nil out means the node has no output and only input changes count.
func trackedNode(name string, inputs []Versioned, out Versioned, compute Func, opts []NodeOption) *Node {
	t := &tracker{}
	return NewNode(name, func(ctx context.Context) error {
		t.mu.Lock()
		defer t.mu.Unlock()

		stamps := make([]Stamp, len(inputs))
		for i, in := range inputs {
			if !in.IsSet() {
				return ErrNotModified
			}
			stamps[i] = in.Stamp()
		}

		fresh := t.ran
		if out != nil && !out.IsSet() {
			fresh = false
		}
		if fresh && slices.Equal(stamps, t.seen) {
			return ErrNotModified
		}

		if err := compute(ctx); err != nil {
			return err
		}
		t.seen = stamps
		t.ran = true
		return nil
	}, opts...)
}

// Func1 builds a node computing out from a. The function only runs when a
// changed since the previous run or out is unset.
func Func1[A, R any](
	name string,
	a *Cell[A],
	out *Cell[R],
	fn func(context.Context, A) (R, error),
	opts ...NodeOption,
) *Node {
	return trackedNode(name, []Versioned{a}, out, func(ctx context.Context) error {
		result, err := fn(ctx, a.Value())
		if err != nil {
			return err
		}
		out.Assign(result)
		return nil
	}, opts)
}

func Func2[A, B, R any](
	name string,
	a *Cell[A],
	b *Cell[B],
	out *Cell[R],
	fn func(context.Context, A, B) (R, error),
	opts ...NodeOption,
) *Node {
	return trackedNode(name, []Versioned{a, b}, out, func(ctx context.Context) error {
		result, err := fn(ctx, a.Value(), b.Value())
		if err != nil {
			return err
		}
		out.Assign(result)
		return nil
	}, opts)
}

func Func3[A, B, C, R any](
	name string,
	a *Cell[A],
	b *Cell[B],
	c *Cell[C],
	out *Cell[R],
	fn func(context.Context, A, B, C) (R, error),
	opts ...NodeOption,
) *Node {
	return trackedNode(name, []Versioned{a, b, c}, out, func(ctx context.Context) error {
		result, err := fn(ctx, a.Value(), b.Value(), c.Value())
		if err != nil {
			return err
		}
		out.Assign(result)
		return nil
	}, opts)
}

// FuncN is the untyped form for any number of inputs; fn reads the input
// cells itself.
func FuncN[R any](
	name string,
	inputs []Versioned,
	out *Cell[R],
	fn func(context.Context) (R, error),
	opts ...NodeOption,
) *Node {
	return trackedNode(name, inputs, out, func(ctx context.Context) error {
		result, err := fn(ctx)
		if err != nil {
			return err
		}
		out.Assign(result)
		return nil
	}, opts)
}

// Effect1 builds an output-less node that calls fn whenever a changes
func Effect1[A any](name string, a *Cell[A], fn func(context.Context, A) error, opts ...NodeOption) *Node {
	return trackedNode(name, []Versioned{a}, nil, func(ctx context.Context) error {
		return fn(ctx, a.Value())
	}, opts)
}

// EffectN calls fn whenever any of inputs changes
func EffectN(name string, inputs []Versioned, fn Func, opts ...NodeOption) *Node {
	return trackedNode(name, inputs, nil, fn, opts)
}

// Timer builds an input node that waits interval and then assigns the
// current time to out.
func Timer(name string, interval time.Duration, out *Cell[time.Time], opts ...NodeOption) *Node {
	return NewNode(name, func(ctx context.Context) error {
		timer := time.NewTimer(interval)
		defer timer.Stop()

		select {
		case <-ctx.Done():
			return ctx.Err()
		case now := <-timer.C:
			out.Assign(now)
			return nil
		}
	}, opts...)
}
