// Package tagger applies cluster identity tags to Aurora clusters and
// instances, and copies cluster tags onto new instances.
package tagger

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/yairfalse/auroratag/internal/telemetry"
	"github.com/yairfalse/auroratag/pkg/resource"
)

// Backend is the RDS surface the tagger needs. *rds.Client implements it.
type Backend interface {
	ListClusters(ctx context.Context) ([]resource.Cluster, error)
	ClusterInstances(ctx context.Context, clusterID string) ([]resource.Instance, error)
	DescribeCluster(ctx context.Context, id string) (resource.Cluster, error)
	DescribeInstance(ctx context.Context, id string) (resource.Instance, error)
	ListTags(ctx context.Context, arn string) (resource.Tags, error)
	AddTags(ctx context.Context, arn string, tags resource.Tags) error
	RemoveTags(ctx context.Context, arn string, keys []string) error
}

// Mode selects how a sweep treats resources that already carry the tag.
type Mode string

const (
	// ModeChecked lists tags first and only writes when the tag is missing.
	ModeChecked Mode = "checked"
	// ModeUnconditional writes the tag on every resource without looking.
	ModeUnconditional Mode = "unconditional"
)

// ParseMode converts a configuration string to a Mode.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case ModeChecked, ModeUnconditional:
		return Mode(s), nil
	case "":
		return ModeChecked, nil
	default:
		return "", fmt.Errorf("unknown tagging mode %q", s)
	}
}

// DefaultKey returns the tag key a mode writes when none is configured.
func DefaultKey(m Mode) string {
	if m == ModeUnconditional {
		return "cluster"
	}
	return "aurora_cluster"
}

func tracer() trace.Tracer {
	return otel.Tracer(telemetry.InstrumentationName)
}

func fail(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}
