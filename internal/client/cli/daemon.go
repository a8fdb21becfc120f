package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/iudanet/taskkeeper/internal/metrics"
)

const metricsShutdownTimeout = 5 * time.Second

func newDaemonCommand(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "daemon",
		Short: "Keep running and sync whenever the connection returns",
		Long: `Run in the foreground, follow connectivity changes and drain the queue each
time the server becomes reachable. Stops on SIGINT or SIGTERM.

With metrics.listen set, Prometheus metrics are served on /metrics.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return e.withApp(cmd, func(ctx context.Context, app *App) error {
				metrics.Register()

				if listen := e.cfg.Metrics.Listen; listen != "" {
					srv := startMetricsServer(listen, e)
					defer func() {
						shutdownCtx, cancel := context.WithTimeout(context.Background(), metricsShutdownTimeout)
						defer cancel()
						if err := srv.Shutdown(shutdownCtx); err != nil {
							e.logger.Error("Metrics server shutdown failed", "error", err)
						}
					}()
				}

				app.Monitor.OnStatusChange(func(offline bool) {
					if offline {
						e.logger.Warn("Connection lost, changes will be queued")
						return
					}
					e.logger.Info("Connection restored")
				})

				e.logger.Info("Daemon started",
					"api_url", e.cfg.API.URL,
					"pending", app.Service.PendingCount(),
					"offline", app.Service.IsOffline(),
				)
				app.Service.Run(ctx)
				e.logger.Info("Daemon stopped", "pending", app.Service.PendingCount())

				summary := app.Service.GetSyncStatus().Indicator()
				if summary == "" {
					summary = "All changes synced"
				}
				_, err := fmt.Fprintln(cmd.OutOrStdout(), summary)
				return err
			})
		},
	}
}

func startMetricsServer(listen string, e *env) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("GET /metrics", promhttp.Handler())

	srv := &http.Server{
		Addr:              listen,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		e.logger.Info("Serving metrics", "address", listen)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			e.logger.Error("Metrics server failed", "error", err)
		}
	}()
	return srv
}
