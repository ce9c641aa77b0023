package main

import (
	"context"
	"errors"
	"expvar"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"tapeview/internal/adapters/dashboard"
	"tapeview/internal/blob"
	"tapeview/internal/config"
	"tapeview/internal/core"
	"tapeview/internal/render"
)

const shutdownTimeout = 10 * time.Second

func newServeCmd(root *rootOptions) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the dashboard over HTTP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := root.load()
			if err != nil {
				return err
			}
			if addr != "" {
				cfg.HTTPAddr = addr
			}
			logger, err := newLogger(cfg.LogLevel)
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()
			return serve(cmd.Context(), cfg, logger)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides TAPEVIEW_HTTP_ADDR)")
	return cmd
}

// server is the assembled dashboard with the resources it owns.
type server struct {
	handler http.Handler
	worker  *dashboard.Worker
	closers []func() error
}

func (s *server) close(ctx context.Context) error {
	var errs []error
	if s.worker != nil {
		errs = append(errs, s.worker.Stop(ctx))
	}
	for i := len(s.closers) - 1; i >= 0; i-- {
		errs = append(errs, s.closers[i]())
	}
	return errors.Join(errs...)
}

func newServer(ctx context.Context, cfg config.Config, logger *zap.Logger) (*server, error) {
	srv := &server{}
	store, err := core.OpenRecordStore(ctx, cfg.Storage)
	if err != nil {
		return nil, fmt.Errorf("open record store: %w", err)
	}
	srv.closers = append(srv.closers, store.Close)

	metrics, metricsPath, metricsHandler := newMetrics(cfg.Metrics)
	svc, err := core.NewService(store,
		core.WithLogger(logger),
		core.WithMetrics(metrics),
		core.WithSessionCapacity(cfg.SessionCapacity),
		core.WithConsumerFactory(render.NewFactory(render.WithLogger(logger))),
	)
	if err != nil {
		_ = srv.close(ctx)
		return nil, err
	}

	exports, err := blob.Open(ctx, cfg.Blob)
	if err != nil {
		_ = srv.close(ctx)
		return nil, fmt.Errorf("open export store: %w", err)
	}
	srv.worker = dashboard.NewWorker(exports, dashboard.WithWorkerLogger(logger))
	srv.worker.Start()

	h := dashboard.NewHandler(svc)
	h.Exports = srv.worker
	h.Logger = logger

	mux := http.NewServeMux()
	mux.Handle(metricsPath, metricsHandler)
	mux.Handle("/", h)
	srv.handler = mux
	logger.Info("dashboard assembled",
		zap.String("storage", cfg.Storage.Driver),
		zap.String("exports", string(exports.Driver())),
		zap.String("metrics", metricsPath))
	return srv, nil
}

func newMetrics(kind string) (core.MetricsRecorder, string, http.Handler) {
	if kind == "expvar" {
		return core.NewExpvarMetricsRecorder(""), "/debug/vars", expvar.Handler()
	}
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return core.NewPrometheusMetricsRecorder(reg), "/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
}

func serve(ctx context.Context, cfg config.Config, logger *zap.Logger) error {
	srv, err := newServer(ctx, cfg, logger)
	if err != nil {
		return err
	}
	httpServer := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           srv.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", zap.String("addr", cfg.HTTPAddr))
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err = <-errCh:
	case <-ctx.Done():
		logger.Info("shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	shutdownErr := httpServer.Shutdown(shutdownCtx)
	if errors.Is(err, http.ErrServerClosed) {
		err = nil
	}
	return errors.Join(err, shutdownErr, srv.close(shutdownCtx))
}
