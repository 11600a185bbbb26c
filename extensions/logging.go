package extensions

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	cells "github.com/pumped-fn/cells-go"
)

// LoggingExtension logs every node invocation and pass
type LoggingExtension struct {
	cells.BaseExtension
	logger *zap.Logger
}

// NewLoggingExtension creates a new logging extension. A nil logger logs
// nothing.
func NewLoggingExtension(logger *zap.Logger) *LoggingExtension {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LoggingExtension{
		BaseExtension: cells.NewBaseExtension("logging"),
		logger:        logger,
	}
}

func (e *LoggingExtension) Wrap(ctx context.Context, next func(context.Context) error, op *cells.Operation) error {
	start := time.Now()
	fields := []zap.Field{
		zap.String("node", op.Node.Name()),
		zap.String("op", string(op.Kind)),
	}
	if op.Pass != nil && op.Kind == cells.OpCompute {
		fields = append(fields, zap.String("pass", op.Pass.ID()))
	}

	e.logger.Debug("node starting", fields...)
	err := next(ctx)
	fields = append(fields, zap.Duration("duration", time.Since(start)))

	switch {
	case err == nil:
		e.logger.Info("node completed", fields...)
	case errors.Is(err, cells.ErrNotModified):
		e.logger.Debug("node unchanged", fields...)
	case errors.Is(err, cells.ErrStopFlow):
		e.logger.Info("input stopped flow", fields...)
	case errors.Is(err, context.Canceled):
		e.logger.Debug("node cancelled", fields...)
	default:
		e.logger.Warn("node failed", append(fields, zap.Error(err))...)
	}

	return err
}

func (e *LoggingExtension) OnPassStart(p *cells.Pass) error {
	fired := make([]string, 0, len(p.Fired()))
	for _, n := range p.Fired() {
		fired = append(fired, n.Name())
	}
	e.logger.Info("pass started",
		zap.String("graph", p.Graph().Name()),
		zap.String("pass", p.ID()),
		zap.String("mode", string(p.Mode())),
		zap.Strings("fired", fired),
	)
	return nil
}

func (e *LoggingExtension) OnPassEnd(p *cells.Pass, err error) {
	fields := []zap.Field{
		zap.String("graph", p.Graph().Name()),
		zap.String("pass", p.ID()),
	}
	if start, ok := cells.StartTime().Get(p); ok {
		fields = append(fields, zap.Duration("duration", time.Since(start)))
	}

	if err != nil {
		e.logger.Error("pass failed", append(fields, zap.Error(err))...)
		return
	}
	e.logger.Info("pass completed", fields...)
}

func (e *LoggingExtension) Dispose(r *cells.Runner) error {
	// Sync fails on stderr/stdout for some platforms; nothing to do about it
	_ = e.logger.Sync()
	return nil
}
