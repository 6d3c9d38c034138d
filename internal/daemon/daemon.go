// Package daemon runs the sweep on a fixed interval for long-lived
// deployments outside Lambda.
package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/yairfalse/auroratag/internal/emitter"
	"github.com/yairfalse/auroratag/pkg/resource"
)

// Sweeper runs one tagging pass.
type Sweeper interface {
	Sweep(ctx context.Context) (resource.SweepReport, error)
}

// Config holds daemon configuration
type Config struct {
	Interval time.Duration
	// RunOnStart sweeps once before waiting for the first tick.
	RunOnStart bool
}

// Daemon manages the periodic sweep
type Daemon struct {
	sweeper    Sweeper
	emitter    emitter.Emitter
	logger     zerolog.Logger
	interval   time.Duration
	runOnStart bool
	startTime  time.Time

	sweepCount   atomic.Int64
	failureCount atomic.Int64
	lastSweep    atomic.Int64 // unix nanos
	lastFailed   atomic.Bool
}

// NewDaemon creates a new daemon instance. em may be nil.
func NewDaemon(sweeper Sweeper, em emitter.Emitter, logger zerolog.Logger, config Config) (*Daemon, error) {
	if sweeper == nil {
		return nil, errors.New("daemon requires a sweeper")
	}
	if config.Interval <= 0 {
		return nil, errors.New("daemon interval must be positive")
	}
	return &Daemon{
		sweeper:    sweeper,
		emitter:    em,
		logger:     logger.With().Str("component", "daemon").Logger(),
		interval:   config.Interval,
		runOnStart: config.RunOnStart,
		startTime:  time.Now(),
	}, nil
}

// Start begins the sweep loop. It returns nil when ctx is cancelled; a
// failed sweep is logged and the loop keeps going.
func (d *Daemon) Start(ctx context.Context) error {
	d.logger.Info().Dur("interval", d.interval).Msg("daemon started")

	if d.runOnStart {
		d.runSweep(ctx)
	}

	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			d.logger.Info().Int64("sweeps", d.sweepCount.Load()).Msg("daemon stopped")
			return nil
		case <-ticker.C:
			d.runSweep(ctx)
		}
	}
}

func (d *Daemon) runSweep(ctx context.Context) {
	report, err := d.sweeper.Sweep(ctx)
	d.sweepCount.Add(1)
	d.lastSweep.Store(time.Now().UnixNano())
	d.lastFailed.Store(err != nil)

	if err != nil {
		d.failureCount.Add(1)
		d.logger.Error().Err(err).Msg("sweep failed")
	}
	if d.emitter != nil {
		if emitErr := d.emitter.EmitSweep(ctx, report, err); emitErr != nil {
			d.logger.Warn().Err(emitErr).Msg("failed to emit sweep report")
		}
	}
}

// Health returns daemon health status
func (d *Daemon) Health() HealthStatus {
	status := HealthStatus{
		Status:   "healthy",
		Uptime:   int64(time.Since(d.startTime).Seconds()),
		Sweeps:   d.sweepCount.Load(),
		Failures: d.failureCount.Load(),
	}
	if ts := d.lastSweep.Load(); ts > 0 {
		status.LastSweep = time.Unix(0, ts).UTC()
	}
	if d.lastFailed.Load() {
		status.Status = "degraded"
	}
	return status
}

// HealthStatus represents daemon health
type HealthStatus struct {
	Status    string    `json:"status"`
	Uptime    int64     `json:"uptime_seconds"`
	Sweeps    int64     `json:"sweeps"`
	Failures  int64     `json:"failures"`
	LastSweep time.Time `json:"last_sweep"`
}

// SweepCount returns total sweeps run
func (d *Daemon) SweepCount() int64 {
	return d.sweepCount.Load()
}

// Ready reports whether at least one sweep has completed.
func (d *Daemon) Ready() bool {
	return d.sweepCount.Load() > 0
}

// Routes returns the daemon's HTTP surface: /metrics (when metrics is not
// nil), /health, /-/healthy and /-/ready.
func (d *Daemon) Routes(metrics http.Handler) http.Handler {
	mux := http.NewServeMux()
	if metrics != nil {
		mux.Handle("/metrics", metrics)
	}
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(d.Health())
	})
	mux.HandleFunc("/-/healthy", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok\n"))
	})
	mux.HandleFunc("/-/ready", func(w http.ResponseWriter, _ *http.Request) {
		if !d.Ready() {
			http.Error(w, "no sweep completed yet", http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte("ready\n"))
	})
	return mux
}
