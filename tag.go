package cells

import "time"

// Tagged is anything that carries tag metadata: nodes, passes, trace
// records and runners.
type Tagged interface {
	GetTag(tag any) (any, bool)
	SetTag(tag any, val any)
}

// Tag is a type-safe key for metadata
type Tag[T any] struct {
	key string
}

// NewTag creates a new tag with the given key
func NewTag[T any](key string) Tag[T] {
	return Tag[T]{key: key}
}

// Key returns the tag's key (for debugging)
func (t Tag[T]) Key() string {
	return t.key
}

// Get retrieves the tag value from a tagged value
func (t Tag[T]) Get(src Tagged) (T, bool) {
	val, ok := src.GetTag(t)
	if !ok {
		var zero T
		return zero, false
	}
	typed, ok := val.(T)
	return typed, ok
}

// MustGet retrieves the tag value or panics if not found
func (t Tag[T]) MustGet(src Tagged) T {
	val, ok := t.Get(src)
	if !ok {
		panic("tag " + t.key + " not found")
	}
	return val
}

// GetOrDefault retrieves the tag value or returns a default
func (t Tag[T]) GetOrDefault(src Tagged, defaultVal T) T {
	if val, ok := t.Get(src); ok {
		return val
	}
	return defaultVal
}

// Set stores the tag value
func (t Tag[T]) Set(dst Tagged, val T) {
	dst.SetTag(t, val)
}

var (
	nodeNameTag   = NewTag[string]("node.name")
	passModeTag   = NewTag[Mode]("pass.mode")
	startTimeTag  = NewTag[time.Time]("exec.start_time")
	endTimeTag    = NewTag[time.Time]("exec.end_time")
	statusTag     = NewTag[Status]("exec.status")
	errorTag      = NewTag[error]("exec.error")
	panicStackTag = NewTag[[]byte]("exec.panic_stack")
)

func NodeName() Tag[string]     { return nodeNameTag }
func PassMode() Tag[Mode]       { return passModeTag }
func StartTime() Tag[time.Time] { return startTimeTag }
func EndTime() Tag[time.Time]   { return endTimeTag }
func StatusTag() Tag[Status]    { return statusTag }
func ErrorTag() Tag[error]      { return errorTag }
func PanicStack() Tag[[]byte]   { return panicStackTag }
