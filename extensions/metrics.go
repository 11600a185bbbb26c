package extensions

import (
	"context"
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	cells "github.com/pumped-fn/cells-go"
)

// MetricsExtension exports node and pass metrics to Prometheus
type MetricsExtension struct {
	cells.BaseExtension

	nodeRuns     *prometheus.CounterVec
	nodeDuration *prometheus.HistogramVec
	passes       *prometheus.CounterVec
	passDuration *prometheus.HistogramVec
	activeNodes  prometheus.Gauge
}

// NewMetricsExtension registers the cells metrics with reg. A nil reg
// leaves the metrics unregistered, which is useful in tests.
func NewMetricsExtension(reg prometheus.Registerer) *MetricsExtension {
	factory := promauto.With(reg)
	return &MetricsExtension{
		BaseExtension: cells.NewBaseExtension("metrics"),
		nodeRuns: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "cells",
			Name:      "node_runs_total",
			Help:      "Node invocations by outcome",
		}, []string{"graph", "node", "status"}),
		nodeDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "cells",
			Name:      "node_duration_seconds",
			Help:      "Time spent in node functions",
			Buckets:   prometheus.DefBuckets,
		}, []string{"graph", "node"}),
		passes: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "cells",
			Name:      "passes_total",
			Help:      "Graph passes by mode and outcome",
		}, []string{"graph", "mode", "status"}),
		passDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "cells",
			Name:      "pass_duration_seconds",
			Help:      "Wall time of graph passes",
			Buckets:   prometheus.DefBuckets,
		}, []string{"graph", "mode"}),
		activeNodes: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "cells",
			Name:      "active_nodes",
			Help:      "Node functions currently running",
		}),
	}
}

func (e *MetricsExtension) Wrap(ctx context.Context, next func(context.Context) error, op *cells.Operation) error {
	graph := op.Pass.Graph().Name()

	e.activeNodes.Inc()
	defer e.activeNodes.Dec()

	start := time.Now()
	err := next(ctx)
	e.nodeDuration.WithLabelValues(graph, op.Node.Name()).Observe(time.Since(start).Seconds())
	e.nodeRuns.WithLabelValues(graph, op.Node.Name(), outcome(err)).Inc()

	return err
}

func (e *MetricsExtension) OnPassEnd(p *cells.Pass, err error) {
	graph := p.Graph().Name()
	mode := string(p.Mode())

	e.passes.WithLabelValues(graph, mode, outcome(err)).Inc()
	if start, ok := cells.StartTime().Get(p); ok {
		e.passDuration.WithLabelValues(graph, mode).Observe(time.Since(start).Seconds())
	}
}

func outcome(err error) string {
	switch {
	case err == nil, errors.Is(err, cells.ErrStopFlow):
		return cells.StatusSuccess.String()
	case errors.Is(err, cells.ErrNotModified):
		return cells.StatusUnchanged.String()
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return cells.StatusCancelled.String()
	default:
		return cells.StatusFailed.String()
	}
}
