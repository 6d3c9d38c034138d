package tagger

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"

	"github.com/yairfalse/auroratag/internal/filter"
	"github.com/yairfalse/auroratag/pkg/resource"
)

// PropagateOptions configures a Propagator.
type PropagateOptions struct {
	DryRun bool
	Filter *filter.Filter
}

// Propagator replaces an instance's tags with its parent cluster's tags.
type Propagator struct {
	backend Backend
	logger  zerolog.Logger
	dryRun  bool
	filter  *filter.Filter
}

// NewPropagator creates a propagator.
func NewPropagator(backend Backend, logger zerolog.Logger, opts PropagateOptions) *Propagator {
	return &Propagator{
		backend: backend,
		logger:  logger.With().Str("component", "propagator").Logger(),
		dryRun:  opts.DryRun,
		filter:  opts.Filter,
	}
}

// Propagate copies the parent cluster's tag set onto instanceID, removing
// every tag the instance held before. An instance outside any cluster is
// reported as an orphan and is not an error.
func (p *Propagator) Propagate(ctx context.Context, instanceID string) (resource.PropagationReport, error) {
	ctx, span := tracer().Start(ctx, "tagger.Propagate")
	defer span.End()
	span.SetAttributes(attribute.String("auroratag.instance", instanceID))

	report := resource.PropagationReport{
		InstanceID: instanceID,
		DryRun:     p.dryRun,
		StartedAt:  time.Now().UTC(),
		Outcome:    resource.Outcome{Kind: resource.KindInstance, ID: instanceID},
	}
	done := func(err error) (resource.PropagationReport, error) {
		report.Duration = time.Since(report.StartedAt)
		if err != nil {
			return report, fail(span, err)
		}
		return report, nil
	}

	inst, err := p.backend.DescribeInstance(ctx, instanceID)
	if err != nil {
		return done(err)
	}

	if !inst.InCluster() {
		report.Orphan = true
		report.Outcome.Action = resource.ActionSkipped
		report.Outcome.Reason = "instance is not part of a cluster"
		p.logger.Error().Ctx(ctx).Str("instance", instanceID).Msgf("instance %s is not part of a cluster", instanceID)
		return done(nil)
	}

	report.ClusterID = inst.ClusterID
	report.Outcome.ClusterID = inst.ClusterID
	span.SetAttributes(attribute.String("auroratag.cluster", inst.ClusterID))
	logger := p.logger.With().Str("instance", instanceID).Str("cluster", inst.ClusterID).Logger()

	cluster, err := p.backend.DescribeCluster(ctx, inst.ClusterID)
	if err != nil {
		return done(err)
	}

	if ok, reason := p.filter.ShouldIncludeCluster(cluster); !ok {
		report.Outcome.Action = resource.ActionSkipped
		report.Outcome.Reason = reason
		logger.Info().Ctx(ctx).Str("reason", reason).Msg("cluster skipped by filter")
		return done(nil)
	}

	clusterTags, err := p.backend.ListTags(ctx, cluster.ARN)
	if err != nil {
		return done(err)
	}
	instanceTags, err := p.backend.ListTags(ctx, inst.ARN)
	if err != nil {
		return done(err)
	}

	report.Diff = resource.DiffTags(instanceTags, clusterTags)
	logger.Debug().Ctx(ctx).
		Strs("remove", report.Diff.Remove).
		Int("add", len(report.Diff.Add)).
		Int("changes", len(report.Diff.Changes)).
		Msg("tag replacement planned")

	if p.dryRun {
		report.Outcome.Action = resource.ActionWouldReplace
		logger.Info().Ctx(ctx).Msgf("dry run: would replace tags on instance %s with tags of cluster %s", instanceID, inst.ClusterID)
		return done(nil)
	}

	if err := p.backend.RemoveTags(ctx, inst.ARN, report.Diff.Remove); err != nil {
		return done(err)
	}

	report.Outcome.Action = resource.ActionReplaced
	if len(clusterTags) == 0 {
		logger.Warn().Ctx(ctx).Msgf("no tags found for cluster %s to add to instance %s", inst.ClusterID, instanceID)
		return done(nil)
	}

	if err := p.backend.AddTags(ctx, inst.ARN, clusterTags); err != nil {
		return done(err)
	}
	logger.Info().Ctx(ctx).Int("tags", len(clusterTags)).Msgf("added tags from cluster %s to instance %s", inst.ClusterID, instanceID)
	return done(nil)
}
