// Command orderflow runs the order engine as a standalone HTTP service.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/cleanhouse123/orderflow"
	"github.com/cleanhouse123/orderflow/api"
	audithook "github.com/cleanhouse123/orderflow/audit_hook"
	"github.com/cleanhouse123/orderflow/extension"
	"github.com/cleanhouse123/orderflow/observability"
)

var Version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// newRootCmd builds the command tree. A one-off scheduler pass is triggered
// against the running service with POST {base_path}/internal/schedules/run.
func newRootCmd() *cobra.Command {
	var configPath string

	rootCmd := &cobra.Command{
		Use:     "orderflow",
		Short:   "Order lifecycle, payment reconciliation and recurring orders",
		Version: Version,
	}
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file (default ./orderflow.yaml)")

	rootCmd.AddCommand(serveCmd(&configPath))
	return rootCmd
}

func serveCmd(configPath *string) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the webhook endpoint and run the scheduler",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			if addr != "" {
				cfg.Addr = addr
			}
			logger := newLogger(cfg.LogLevel)

			eng, err := buildEngine(cfg, logger, prometheus.DefaultRegisterer)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			if err := eng.Start(ctx); err != nil {
				return fmt.Errorf("start engine: %w", err)
			}
			defer func() {
				if err := eng.Stop(); err != nil {
					logger.Error("engine shutdown failed", "error", err)
				}
			}()

			root := chi.NewRouter()
			root.Handle("/metrics", promhttp.Handler())
			if !cfg.Orderflow.DisableRoutes {
				api.New(eng, logger).Mount(root, cfg.Orderflow.BasePath)
			}

			srv := &http.Server{
				Addr:              cfg.Addr,
				Handler:           root,
				ReadHeaderTimeout: 10 * time.Second,
			}

			errCh := make(chan error, 1)
			go func() {
				logger.Info("listening", "addr", cfg.Addr, "base_path", cfg.Orderflow.BasePath)
				errCh <- srv.ListenAndServe()
			}()

			select {
			case err := <-errCh:
				if !errors.Is(err, http.ErrServerClosed) {
					return err
				}
				return nil
			case <-ctx.Done():
			}

			shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides config)")
	return cmd
}

// buildEngine wires the store, metrics and audit logging. Only the memory
// driver can be opened from configuration alone; the SQL and document
// drivers need a grove database and are reached through the Forge
// extension, so serve refuses them here.
func buildEngine(cfg *fileConfig, logger *slog.Logger, reg prometheus.Registerer) (*orderflow.Engine, error) {
	s, err := extension.OpenStore(cfg.Orderflow.Driver, nil)
	if err != nil {
		return nil, err
	}

	audit := audithook.New(audithook.RecorderFunc(func(ctx context.Context, evt *audithook.AuditEvent) error {
		logger.LogAttrs(ctx, slog.LevelInfo, "audit",
			slog.String("action", evt.Action),
			slog.String("resource", evt.Resource),
			slog.String("resource_id", evt.ResourceID),
			slog.String("outcome", evt.Outcome),
			slog.String("severity", evt.Severity),
			slog.Any("metadata", evt.Metadata),
		)
		return nil
	}), audithook.WithLogger(logger))

	metrics := observability.NewMetricsExtension(observability.NewPrometheusFactory(reg))

	opts := append(cfg.Orderflow.EngineOptions(),
		orderflow.WithLogger(logger),
		orderflow.WithPlugin(metrics),
		orderflow.WithPlugin(audit),
	)
	return orderflow.New(s, opts...), nil
}
