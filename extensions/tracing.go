package extensions

import (
	"context"
	"errors"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	cells "github.com/pumped-fn/cells-go"
)

const tracerName = "github.com/pumped-fn/cells-go"

// TracingExtension opens an OpenTelemetry span per pass and a child span per
// node invocation. Input invocations in a flow get root spans of their own.
type TracingExtension struct {
	cells.BaseExtension
	tracer trace.Tracer

	mu    sync.Mutex
	spans map[string]trace.Span
}

// NewTracingExtension creates a tracing extension. A nil provider uses the
// global one.
func NewTracingExtension(tp trace.TracerProvider) *TracingExtension {
	if tp == nil {
		tp = otel.GetTracerProvider()
	}
	return &TracingExtension{
		BaseExtension: cells.NewBaseExtension("tracing"),
		tracer:        tp.Tracer(tracerName),
		spans:         make(map[string]trace.Span),
	}
}

// Order runs tracing outside the other extensions so their work is inside
// the node span
func (e *TracingExtension) Order() int {
	return 10
}

func (e *TracingExtension) OnPassStart(p *cells.Pass) error {
	fired := make([]string, 0, len(p.Fired()))
	for _, n := range p.Fired() {
		fired = append(fired, n.Name())
	}

	_, span := e.tracer.Start(context.Background(), "cells.pass",
		trace.WithAttributes(
			attribute.String("cells.graph", p.Graph().Name()),
			attribute.String("cells.pass_id", p.ID()),
			attribute.String("cells.mode", string(p.Mode())),
			attribute.StringSlice("cells.fired", fired),
		),
	)

	e.mu.Lock()
	e.spans[p.ID()] = span
	e.mu.Unlock()
	return nil
}

func (e *TracingExtension) OnPassEnd(p *cells.Pass, err error) {
	e.mu.Lock()
	span, ok := e.spans[p.ID()]
	delete(e.spans, p.ID())
	e.mu.Unlock()
	if !ok {
		return
	}

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}

func (e *TracingExtension) Wrap(ctx context.Context, next func(context.Context) error, op *cells.Operation) error {
	e.mu.Lock()
	passSpan, ok := e.spans[op.Pass.ID()]
	e.mu.Unlock()
	if ok {
		ctx = trace.ContextWithSpan(ctx, passSpan)
	}

	ctx, span := e.tracer.Start(ctx, op.Node.Name(),
		trace.WithAttributes(
			attribute.String("cells.node", op.Node.Name()),
			attribute.String("cells.op", string(op.Kind)),
		),
	)
	defer span.End()

	err := next(ctx)
	switch {
	case err == nil:
		span.SetStatus(codes.Ok, "")
	case errors.Is(err, cells.ErrNotModified):
		span.SetAttributes(attribute.Bool("cells.unchanged", true))
		span.SetStatus(codes.Ok, "")
	case errors.Is(err, cells.ErrStopFlow):
		span.SetAttributes(attribute.Bool("cells.stop_flow", true))
		span.SetStatus(codes.Ok, "")
	default:
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}
