package cells

import "context"

// Extension provides hooks into graph evaluation
type Extension interface {
	// Name returns the extension's name
	Name() string

	// Order determines extension execution order (lower = earlier, outermost)
	Order() int

	// Init is called when the extension is registered to a runner
	Init(r *Runner) error

	// Wrap intercepts a node invocation. Implementations must call next
	// exactly once and normally return its error unchanged.
	Wrap(ctx context.Context, next func(context.Context) error, op *Operation) error

	// OnNodeError is called after a node fails
	OnNodeError(err *NodeError, op *Operation)

	// Pass hooks. An error from OnPassStart aborts the pass.
	OnPassStart(p *Pass) error
	OnPassEnd(p *Pass, err error)

	// Dispose is called when the runner is disposed
	Dispose(r *Runner) error
}

// BaseExtension provides default implementations for Extension methods
type BaseExtension struct {
	name string
}

// NewBaseExtension creates a new base extension with the given name
func NewBaseExtension(name string) BaseExtension {
	return BaseExtension{name: name}
}

func (e *BaseExtension) Name() string {
	return e.name
}

func (e *BaseExtension) Order() int {
	return 100
}

func (e *BaseExtension) Init(r *Runner) error {
	return nil
}

func (e *BaseExtension) Wrap(ctx context.Context, next func(context.Context) error, op *Operation) error {
	return next(ctx)
}

func (e *BaseExtension) OnNodeError(err *NodeError, op *Operation) {
}

func (e *BaseExtension) OnPassStart(p *Pass) error {
	return nil
}

func (e *BaseExtension) OnPassEnd(p *Pass, err error) {
}

func (e *BaseExtension) Dispose(r *Runner) error {
	return nil
}

// Operation describes the node invocation being wrapped
type Operation struct {
	Kind   OperationKind
	Node   *Node
	Pass   *Pass
	Runner *Runner
}

// OperationKind represents the type of operation
type OperationKind string

const (
	// OpCompute is a node invocation inside a sequential or concurrent pass
	OpCompute OperationKind = "compute"
	// OpInput is an input node invocation driven by a flow
	OpInput OperationKind = "input"
)
