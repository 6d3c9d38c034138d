package tagger

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"

	"github.com/yairfalse/auroratag/internal/filter"
	"github.com/yairfalse/auroratag/pkg/resource"
)

// SweepOptions configures a Sweeper.
type SweepOptions struct {
	Mode Mode
	// Key defaults to DefaultKey(Mode).
	Key    string
	DryRun bool
	Filter *filter.Filter
}

// Sweeper tags every visible cluster and its instances with the cluster's
// own identifier.
type Sweeper struct {
	backend Backend
	logger  zerolog.Logger
	mode    Mode
	key     string
	dryRun  bool
	filter  *filter.Filter
}

// NewSweeper creates a sweeper.
func NewSweeper(backend Backend, logger zerolog.Logger, opts SweepOptions) *Sweeper {
	if opts.Mode == "" {
		opts.Mode = ModeChecked
	}
	if opts.Key == "" {
		opts.Key = DefaultKey(opts.Mode)
	}
	return &Sweeper{
		backend: backend,
		logger:  logger.With().Str("component", "sweeper").Logger(),
		mode:    opts.Mode,
		key:     opts.Key,
		dryRun:  opts.DryRun,
		filter:  opts.Filter,
	}
}

// Key returns the tag key the sweeper writes.
func (s *Sweeper) Key() string {
	return s.key
}

// Sweep makes one pass over all clusters. The first API error aborts the
// pass; the report holds the outcomes recorded up to that point.
func (s *Sweeper) Sweep(ctx context.Context) (resource.SweepReport, error) {
	ctx, span := tracer().Start(ctx, "tagger.Sweep")
	defer span.End()
	span.SetAttributes(
		attribute.String("auroratag.mode", string(s.mode)),
		attribute.String("auroratag.key", s.key),
		attribute.Bool("auroratag.dry_run", s.dryRun),
	)

	report := resource.SweepReport{
		Mode:      string(s.mode),
		Key:       s.key,
		DryRun:    s.dryRun,
		StartedAt: time.Now().UTC(),
	}

	clusters, err := s.backend.ListClusters(ctx)
	if err != nil {
		report.Duration = time.Since(report.StartedAt)
		return report, fail(span, err)
	}
	s.logger.Debug().Ctx(ctx).Int("clusters", len(clusters)).Msg("clusters listed")

	for _, cluster := range clusters {
		if err := s.sweepCluster(ctx, cluster, &report); err != nil {
			report.Duration = time.Since(report.StartedAt)
			return report, fail(span, err)
		}
	}

	report.Duration = time.Since(report.StartedAt)
	span.SetAttributes(attribute.Int("auroratag.outcomes", len(report.Outcomes)))
	return report, nil
}

func (s *Sweeper) sweepCluster(ctx context.Context, cluster resource.Cluster, report *resource.SweepReport) error {
	ctx, span := tracer().Start(ctx, "tagger.sweepCluster")
	defer span.End()
	span.SetAttributes(attribute.String("auroratag.cluster", cluster.ID))

	if ok, reason := s.filter.ShouldIncludeCluster(cluster); !ok {
		s.logger.Info().Ctx(ctx).Str("cluster", cluster.ID).Str("reason", reason).Msg("cluster skipped by filter")
		report.Outcomes = append(report.Outcomes, resource.Outcome{
			Kind: resource.KindCluster, ID: cluster.ID, ClusterID: cluster.ID,
			Action: resource.ActionSkipped, Reason: reason,
		})
		return nil
	}

	outcome, err := s.tagResource(ctx, resource.KindCluster, cluster.ID, cluster.ARN, cluster.ID)
	if err != nil {
		return fail(span, err)
	}
	report.Outcomes = append(report.Outcomes, outcome)

	instances, err := s.backend.ClusterInstances(ctx, cluster.ID)
	if err != nil {
		return fail(span, err)
	}

	for _, inst := range instances {
		outcome, err := s.tagResource(ctx, resource.KindInstance, inst.ID, inst.ARN, cluster.ID)
		if err != nil {
			return fail(span, err)
		}
		report.Outcomes = append(report.Outcomes, outcome)
	}
	return nil
}

// tagResource ensures (key, clusterID) is present on the resource at arn.
func (s *Sweeper) tagResource(ctx context.Context, kind resource.Kind, id, arn, clusterID string) (resource.Outcome, error) {
	outcome := resource.Outcome{Kind: kind, ID: id, ClusterID: clusterID}
	lc := s.logger.With().Str("cluster", clusterID).Str("key", s.key)
	if kind == resource.KindInstance {
		lc = lc.Str("instance", id)
	}
	logger := lc.Logger()

	if s.mode == ModeChecked {
		tags, err := s.backend.ListTags(ctx, arn)
		if err != nil {
			return outcome, err
		}
		if tags.Has(s.key, clusterID) {
			outcome.Action = resource.ActionAlreadyTagged
			logger.Info().Ctx(ctx).Msgf("tag already exists on %s %s", kind, id)
			return outcome, nil
		}
	}

	if s.dryRun {
		outcome.Action = resource.ActionWouldTag
		logger.Info().Ctx(ctx).Msgf("dry run: would tag %s %s", kind, id)
		return outcome, nil
	}

	if err := s.backend.AddTags(ctx, arn, resource.Tags{s.key: clusterID}); err != nil {
		return outcome, err
	}
	outcome.Action = resource.ActionTagged
	logger.Info().Ctx(ctx).Msgf("tagged %s %s", kind, id)
	return outcome, nil
}
