// Package app wires configuration, logging, telemetry and the RDS client
// into the components the entry points run.
package app

import (
	"context"
	"fmt"
	"io"

	"github.com/rs/zerolog"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"

	"github.com/yairfalse/auroratag/internal/config"
	"github.com/yairfalse/auroratag/internal/emitter"
	"github.com/yairfalse/auroratag/internal/filter"
	"github.com/yairfalse/auroratag/internal/rds"
	"github.com/yairfalse/auroratag/internal/tagger"
	"github.com/yairfalse/auroratag/internal/telemetry"
)

// App holds the wired components for one process.
type App struct {
	Config     *config.Config
	Logger     zerolog.Logger
	Telemetry  *telemetry.Provider
	Emitter    emitter.Emitter
	Sweeper    *tagger.Sweeper
	Propagator *tagger.Propagator
}

// Options adjusts how New wires the components.
type Options struct {
	// Backend replaces the RDS client built from Config.AWS.
	Backend tagger.Backend
	// Readers are extra metric readers, e.g. the Prometheus exporter.
	Readers []sdkmetric.Reader
}

// NewLogger builds the process logger from cfg.
func NewLogger(w io.Writer, cfg *config.Config) (zerolog.Logger, error) {
	return telemetry.NewLogger(w, telemetry.LogOptions{
		Service: cfg.OTEL.ServiceName,
		Level:   cfg.Log.Level,
		Format:  cfg.Log.Format,
	})
}

// New validates cfg and builds every component.
func New(ctx context.Context, cfg *config.Config, logger zerolog.Logger, opts Options) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	mode, err := tagger.ParseMode(cfg.Tagging.Mode)
	if err != nil {
		return nil, err
	}

	f, err := filter.New(filter.Options{
		IncludeIDs:  cfg.Filter.IncludeIDs,
		ExcludeIDs:  cfg.Filter.ExcludeIDs,
		Engines:     cfg.Filter.Engines,
		IncludeTags: cfg.Filter.IncludeTags,
		ExcludeTags: cfg.Filter.ExcludeTags,
	})
	if err != nil {
		return nil, fmt.Errorf("build filter: %w", err)
	}

	backend := opts.Backend
	if backend == nil {
		client, err := rds.New(ctx, rds.WithRegion(cfg.AWS.Region), rds.WithProfile(cfg.AWS.Profile))
		if err != nil {
			return nil, err
		}
		backend = client
	}

	tp, err := telemetry.NewProvider(ctx, cfg.OTEL, opts.Readers...)
	if err != nil {
		return nil, fmt.Errorf("init telemetry: %w", err)
	}

	metrics, err := emitter.NewMetricsEmitter(tp.Meter())
	if err != nil {
		_ = tp.Shutdown(ctx)
		return nil, err
	}

	return &App{
		Config:    cfg,
		Logger:    logger,
		Telemetry: tp,
		Emitter:   emitter.NewMultiEmitter(emitter.NewLogEmitter(logger), metrics),
		Sweeper: tagger.NewSweeper(backend, logger, tagger.SweepOptions{
			Mode:   mode,
			Key:    cfg.Tagging.Key,
			DryRun: cfg.Tagging.DryRun,
			Filter: f,
		}),
		Propagator: tagger.NewPropagator(backend, logger, tagger.PropagateOptions{
			DryRun: cfg.Tagging.DryRun,
			Filter: f,
		}),
	}, nil
}

// Close flushes telemetry and releases the emitters.
func (a *App) Close(ctx context.Context) error {
	if err := a.Emitter.Close(); err != nil {
		a.Logger.Warn().Err(err).Msg("failed to close emitter")
	}
	return a.Telemetry.Shutdown(ctx)
}

// Flushing wraps a Lambda handler so telemetry is exported before each
// invocation returns.
func Flushing[E, R any](a *App, fn func(context.Context, E) (R, error)) func(context.Context, E) (R, error) {
	return func(ctx context.Context, ev E) (R, error) {
		resp, err := fn(ctx, ev)
		if flushErr := a.Telemetry.Flush(ctx); flushErr != nil {
			a.Logger.Warn().Err(flushErr).Msg("failed to flush telemetry")
		}
		return resp, err
	}
}
