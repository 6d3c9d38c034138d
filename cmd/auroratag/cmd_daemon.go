package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"syscall"
	"time"

	"github.com/oklog/run"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel/exporters/prometheus"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"

	"github.com/yairfalse/auroratag/internal/app"
	"github.com/yairfalse/auroratag/internal/daemon"
)

var (
	daemonInterval    time.Duration
	daemonMetricsAddr string
)

// daemonCmd represents the daemon command
var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Sweep on a fixed interval",
	Long: `Run the sweep continuously, for deployments outside Lambda.

The daemon sweeps once at start and then on every interval, and serves:
- Prometheus metrics on /metrics
- Health checks on /health, /-/healthy, /-/ready
- Graceful shutdown on SIGTERM/SIGINT`,
	Example: `  auroratag daemon                          # Interval from config (default 1h)
  auroratag daemon --interval 15m           # Sweep every 15 minutes
  auroratag daemon --metrics-addr :2112     # Custom metrics address`,
	RunE: runDaemon,
}

func init() {
	rootCmd.AddCommand(daemonCmd)

	daemonCmd.Flags().DurationVar(&daemonInterval, "interval", 0, "Sweep interval (overrides config)")
	daemonCmd.Flags().StringVar(&daemonMetricsAddr, "metrics-addr", "", "Metrics HTTP listen address (overrides config)")
}

func runDaemon(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if daemonInterval > 0 {
		cfg.Daemon.Interval = daemonInterval
	}
	if daemonMetricsAddr != "" {
		cfg.Daemon.MetricsAddr = daemonMetricsAddr
	}

	promExporter, err := prometheus.New()
	if err != nil {
		return fmt.Errorf("create prometheus exporter: %w", err)
	}

	a, err := newApp(ctx, cfg, app.Options{Readers: []sdkmetric.Reader{promExporter}})
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = a.Close(shutdownCtx)
	}()

	d, err := daemon.NewDaemon(a.Sweeper, a.Emitter, a.Logger, daemon.Config{
		Interval:   cfg.Daemon.Interval,
		RunOnStart: true,
	})
	if err != nil {
		return fmt.Errorf("create daemon: %w", err)
	}

	server := &http.Server{
		Addr:              cfg.Daemon.MetricsAddr,
		Handler:           d.Routes(promhttp.Handler()),
		ReadHeaderTimeout: 10 * time.Second,
	}

	var g run.Group
	g.Add(run.SignalHandler(ctx, syscall.SIGINT, syscall.SIGTERM))
	{
		daemonCtx, cancel := context.WithCancel(ctx)
		g.Add(func() error {
			return d.Start(daemonCtx)
		}, func(error) {
			cancel()
		})
	}
	{
		g.Add(func() error {
			a.Logger.Info().Str("addr", server.Addr).Msg("starting metrics server")
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("metrics server: %w", err)
			}
			return nil
		}, func(error) {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = server.Shutdown(shutdownCtx)
		})
	}

	err = g.Run()
	var sigErr run.SignalError
	if errors.As(err, &sigErr) {
		a.Logger.Info().Str("signal", sigErr.Signal.String()).Msg("shutting down")
		return nil
	}
	return err
}
