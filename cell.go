package cells

import (
	"sync"
	"sync/atomic"
)

// Stamp is a Clock reading. The zero Stamp means "never assigned".
type Stamp uint64

// Clock issues strictly increasing stamps. Cells that are compared with each
// other must share a clock.
type Clock struct {
	now atomic.Uint64
}

func NewClock() *Clock {
	return &Clock{}
}

// Tick advances the clock and returns the new reading
func (c *Clock) Tick() Stamp {
	return Stamp(c.now.Add(1))
}

// Now returns the latest reading without advancing
func (c *Clock) Now() Stamp {
	return Stamp(c.now.Load())
}

// Versioned is the type-erased view of a Cell used for change detection
type Versioned interface {
	Stamp() Stamp
	IsSet() bool
}

// Cell holds a value together with the stamp of its last assignment
type Cell[T any] struct {
	clock *Clock

	mu    sync.RWMutex
	value T
	stamp Stamp
}

// NewCell creates an unset cell on clock. A nil clock gives the cell a
// private one.
func NewCell[T any](clock *Clock) *Cell[T] {
	if clock == nil {
		clock = NewClock()
	}
	return &Cell[T]{clock: clock}
}

// Assign stores v and stamps the cell with a fresh clock reading
func (c *Cell[T]) Assign(v T) Stamp {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.value = v
	c.stamp = c.clock.Tick()
	return c.stamp
}

// Update applies fn to the current value and assigns the result
func (c *Cell[T]) Update(fn func(T) T) Stamp {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.value = fn(c.value)
	c.stamp = c.clock.Tick()
	return c.stamp
}

// Value returns the current value, the zero value when unset
func (c *Cell[T]) Value() T {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.value
}

// Peek returns the value and whether it was ever assigned
func (c *Cell[T]) Peek() (T, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.value, c.stamp != 0
}

// Snapshot returns the value and its stamp read together
func (c *Cell[T]) Snapshot() (T, Stamp) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.value, c.stamp
}

func (c *Cell[T]) Stamp() Stamp {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.stamp
}

func (c *Cell[T]) IsSet() bool {
	return c.Stamp() != 0
}

// Reset clears the value, making the cell unset again
func (c *Cell[T]) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	var zero T
	c.value = zero
	c.stamp = 0
}

func (c *Cell[T]) Clock() *Clock {
	return c.clock
}
