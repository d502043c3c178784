package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/MrEthical07/goGuard/internal/httpapi"
	"github.com/MrEthical07/goGuard/metrics/export/prometheus"
	"github.com/MrEthical07/goGuard/middleware"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func newServeCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the metrics endpoint",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, flags)
		},
	}
}

func serve(ctx context.Context, flags *globalFlags) error {
	rt, err := openRuntime(ctx, flags)
	if err != nil {
		return err
	}
	defer rt.close()

	cfg := rt.cfg
	logger := rt.logger

	report := rt.engine.SecurityReport()
	for _, w := range report.Warnings {
		logger.Warn("security posture", zap.String("warning", w))
	}

	resolver, err := newResolver(rt)
	if err != nil {
		return err
	}
	gateway, err := middleware.NewGateway(rt.engine, resolver, cfg.Gateway, middleware.WithLogger(logger))
	if err != nil {
		return err
	}
	api := httpapi.New(rt.engine, logger)
	handler := httpapi.NewRouter(api, gateway, middleware.ClientKeyOptions{
		TrustForwardedFor: cfg.Gateway.TrustForwardedFor,
	})

	servers := []*http.Server{{
		Addr:              cfg.Server.Addr,
		Handler:           handler,
		ReadHeaderTimeout: cfg.Server.ReadHeaderTimeout,
	}}
	if cfg.Server.MetricsAddr != "" && cfg.Engine.Metrics.Enabled {
		mux := http.NewServeMux()
		mux.Handle("/metrics", prometheus.NewPrometheusExporter(rt.engine).Handler())
		servers = append(servers, &http.Server{
			Addr:              cfg.Server.MetricsAddr,
			Handler:           mux,
			ReadHeaderTimeout: cfg.Server.ReadHeaderTimeout,
		})
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, srv := range servers {
		srv := srv
		g.Go(func() error {
			logger.Info("listening", zap.String("addr", srv.Addr))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		var errs []error
		for _, srv := range servers {
			if err := srv.Shutdown(shutdownCtx); err != nil {
				errs = append(errs, err)
			}
		}
		return errors.Join(errs...)
	})

	if err := g.Wait(); err != nil {
		logger.Error("server stopped", zap.Error(err))
		return err
	}
	logger.Info("server exited")
	return nil
}
