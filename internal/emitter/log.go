package emitter

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/yairfalse/auroratag/pkg/resource"
)

// LogEmitter writes one summary line per run, plus the tag changes of a
// propagation.
type LogEmitter struct {
	logger zerolog.Logger
}

// NewLogEmitter creates a log emitter.
func NewLogEmitter(logger zerolog.Logger) *LogEmitter {
	return &LogEmitter{logger: logger}
}

// EmitSweep logs the sweep summary.
func (e *LogEmitter) EmitSweep(ctx context.Context, report resource.SweepReport, runErr error) error {
	event := e.logger.Info()
	if runErr != nil {
		event = e.logger.Error().Err(runErr)
	}

	event.Ctx(ctx).
		Str("operation", OpSweep).
		Str("mode", report.Mode).
		Str("key", report.Key).
		Bool("dry_run", report.DryRun).
		Int("clusters_tagged", report.Count(resource.KindCluster, resource.ActionTagged)).
		Int("clusters_already_tagged", report.Count(resource.KindCluster, resource.ActionAlreadyTagged)).
		Int("clusters_skipped", report.Count(resource.KindCluster, resource.ActionSkipped)).
		Int("instances_tagged", report.Count(resource.KindInstance, resource.ActionTagged)).
		Int("instances_already_tagged", report.Count(resource.KindInstance, resource.ActionAlreadyTagged)).
		Int("would_tag", report.Count(resource.KindCluster, resource.ActionWouldTag)+report.Count(resource.KindInstance, resource.ActionWouldTag)).
		Dur("duration", report.Duration).
		Msg("sweep complete")
	return nil
}

// EmitPropagation logs the propagation summary and each tag change.
func (e *LogEmitter) EmitPropagation(ctx context.Context, report resource.PropagationReport, runErr error) error {
	if runErr != nil {
		e.logger.Error().Ctx(ctx).Err(runErr).
			Str("operation", OpPropagate).
			Str("instance", report.InstanceID).
			Dur("duration", report.Duration).
			Msg("propagation failed")
		return nil
	}

	for key, change := range report.Diff.Changes {
		e.logger.Debug().Ctx(ctx).
			Str("instance", report.InstanceID).
			Str("tag", key).
			Str("change", string(change.Type)).
			Str("from", change.Previous).
			Str("to", change.Current).
			Msg("tag changed")
	}

	e.logger.Info().Ctx(ctx).
		Str("operation", OpPropagate).
		Str("instance", report.InstanceID).
		Str("cluster", report.ClusterID).
		Str("action", string(report.Outcome.Action)).
		Bool("orphan", report.Orphan).
		Bool("dry_run", report.DryRun).
		Int("removed", len(report.Diff.Remove)).
		Int("added", len(report.Diff.Add)).
		Dur("duration", report.Duration).
		Msg("propagation complete")
	return nil
}

// Close is a no-op.
func (e *LogEmitter) Close() error {
	return nil
}
