package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	cells "github.com/pumped-fn/cells-go"
	"github.com/pumped-fn/cells-go/extensions"
	"github.com/pumped-fn/cells-go/pkg/graphfile"
	"github.com/pumped-fn/cells-go/pkg/render"
)

type runOptions struct {
	mode        string
	concurrency int
	metricsAddr string
	trace       bool
	collect     bool
	flowRate    float64
	flowConc    bool
	duration    time.Duration
}

func newRunCmd(a *app) *cobra.Command {
	opts := &runOptions{}

	cmd := &cobra.Command{
		Use:   "run FILE",
		Short: "Evaluate a graph file",
		Long: `Evaluates the graph once in sequential or concurrent mode, or keeps
reacting to its inputs in flow mode until interrupted.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.run(cmd, args[0], opts)
		},
	}

	cmd.Flags().StringVarP(&opts.mode, "mode", "m", string(cells.ModeSequential), "Evaluation mode: sequential, concurrent or flow")
	cmd.Flags().IntVarP(&opts.concurrency, "concurrency", "c", 0, "Maximum nodes running at once (0 = unlimited)")
	cmd.Flags().StringVar(&opts.metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address")
	cmd.Flags().BoolVar(&opts.trace, "trace", false, "Print the trace of every pass when done")
	cmd.Flags().BoolVar(&opts.collect, "keep-going", false, "In concurrent mode, keep running nodes that do not depend on a failure")
	cmd.Flags().Float64Var(&opts.flowRate, "flow-rate", 0, "In flow mode, at most this many recomputation passes per second (0 = unlimited)")
	cmd.Flags().BoolVar(&opts.flowConc, "flow-concurrent", false, "In flow mode, run recomputation passes concurrently")
	cmd.Flags().DurationVar(&opts.duration, "for", 0, "Stop after this long (0 = until done or interrupted)")

	return cmd
}

func (a *app) run(cmd *cobra.Command, path string, opts *runOptions) error {
	mode := cells.Mode(opts.mode)
	switch mode {
	case cells.ModeSequential, cells.ModeConcurrent, cells.ModeFlow:
	default:
		return fmt.Errorf("unknown mode %q", opts.mode)
	}

	doc, err := graphfile.Load(path)
	if err != nil {
		return err
	}
	built, err := graphfile.Build(doc, cmd.OutOrStdout())
	if err != nil {
		return err
	}

	runnerOpts := []cells.RunnerOption{
		cells.WithLogger(a.logger),
		cells.WithConcurrency(opts.concurrency),
		cells.WithExtension(extensions.NewLoggingExtension(a.logger)),
		cells.WithExtension(extensions.NewGraphDebugExtension(a.logger)),
	}
	if opts.collect {
		runnerOpts = append(runnerOpts, cells.WithCollectErrors())
	}
	if opts.flowRate > 0 {
		runnerOpts = append(runnerOpts, cells.WithFlowRate(rate.Limit(opts.flowRate), 1))
	}
	if opts.flowConc {
		runnerOpts = append(runnerOpts, cells.WithFlowConcurrent())
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if opts.duration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.duration)
		defer cancel()
	}

	if opts.metricsAddr != "" {
		reg := prometheus.NewRegistry()
		runnerOpts = append(runnerOpts, cells.WithExtension(extensions.NewMetricsExtension(reg)))

		shutdown, err := a.serveMetrics(opts.metricsAddr, reg)
		if err != nil {
			return err
		}
		defer shutdown()
	}

	runner := cells.NewRunner(runnerOpts...)
	defer func() {
		if err := runner.Dispose(); err != nil {
			a.logger.Warn("disposing runner", zap.Error(err))
		}
	}()

	a.logger.Info("running graph",
		zap.String("file", path),
		zap.String("graph", built.Graph.Name()),
		zap.String("mode", string(mode)),
		zap.Int("nodes", built.Graph.Len()),
	)

	switch mode {
	case cells.ModeConcurrent:
		err = runner.Concurrent(ctx, built.Graph)
	case cells.ModeFlow:
		err = runner.Flow(ctx, built.Graph)
	default:
		err = runner.Sequential(ctx, built.Graph)
	}

	for n, s := range runner.AllStats() {
		a.logger.Debug("node stats",
			zap.String("node", n.Name()),
			zap.Uint64("runs", s.Runs),
			zap.Uint64("failures", s.Failures),
			zap.Uint64("unchanged", s.Unchanged),
			zap.Stringer("last_status", s.LastStatus),
		)
	}

	if opts.trace {
		for _, root := range runner.Trace().Roots() {
			drawing, terr := render.TraceTree(runner.Trace(), root.ID)
			if terr != nil {
				return terr
			}
			fmt.Fprintln(cmd.ErrOrStderr(), drawing)
		}
	}

	// Interrupting a flow or running out of time is the normal way to end it
	stopped := errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
	if stopped && ctx.Err() != nil && cmd.Context().Err() == nil {
		a.logger.Info("stopped", zap.Error(ctx.Err()))
		return nil
	}
	return err
}

func (a *app) serveMetrics(addr string, reg *prometheus.Registry) (func(), error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listening for metrics: %w", err)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	srv := &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Warn("metrics server", zap.Error(err))
		}
	}()

	a.logger.Info("serving metrics", zap.String("addr", ln.Addr().String()))

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			a.logger.Warn("metrics server shutdown", zap.Error(err))
		}
		<-done
	}, nil
}
