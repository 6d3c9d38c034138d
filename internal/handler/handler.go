// Package handler adapts the tagger to AWS Lambda invocations.
package handler

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambdacontext"
	"github.com/rs/zerolog"

	"github.com/yairfalse/auroratag/internal/emitter"
	"github.com/yairfalse/auroratag/internal/event"
	"github.com/yairfalse/auroratag/pkg/resource"
)

// SweepSuccessBody is the response body of a successful sweep.
const SweepSuccessBody = "Tags added to all Aurora clusters and instances successfully."

// Response is the value returned to the Lambda runtime.
type Response struct {
	StatusCode int    `json:"statusCode"`
	Body       string `json:"body"`
}

// Sweeper runs one tagging pass.
type Sweeper interface {
	Sweep(ctx context.Context) (resource.SweepReport, error)
}

// Propagator copies cluster tags to one instance.
type Propagator interface {
	Propagate(ctx context.Context, instanceID string) (resource.PropagationReport, error)
}

// Sweep handles scheduled sweep invocations.
type Sweep struct {
	sweeper Sweeper
	emitter emitter.Emitter
	logger  zerolog.Logger
}

// NewSweep creates a sweep handler. em may be nil.
func NewSweep(sweeper Sweeper, em emitter.Emitter, logger zerolog.Logger) *Sweep {
	return &Sweep{sweeper: sweeper, emitter: em, logger: logger}
}

// Handle runs the sweep. The triggering event carries no input.
func (h *Sweep) Handle(ctx context.Context, ev events.CloudWatchEvent) (Response, error) {
	logger := withRequest(ctx, h.logger)
	ctx = logger.WithContext(ctx)
	logger.Debug().Str("event_id", ev.ID).Str("source", ev.Source).Msg("sweep invoked")

	report, err := h.sweeper.Sweep(ctx)
	h.emitSweep(ctx, logger, report, err)
	if err != nil {
		logger.Error().Err(err).Msg("error tagging aurora resources")
		return Response{}, err
	}

	return Response{StatusCode: 200, Body: SweepSuccessBody}, nil
}

func (h *Sweep) emitSweep(ctx context.Context, logger zerolog.Logger, report resource.SweepReport, runErr error) {
	if h.emitter == nil {
		return
	}
	if err := h.emitter.EmitSweep(ctx, report, runErr); err != nil {
		logger.Warn().Err(err).Msg("failed to emit sweep report")
	}
}

// Propagate handles RDS instance-creation notifications.
type Propagate struct {
	propagator Propagator
	emitter    emitter.Emitter
	logger     zerolog.Logger
}

// NewPropagate creates a propagation handler. em may be nil.
func NewPropagate(propagator Propagator, em emitter.Emitter, logger zerolog.Logger) *Propagate {
	return &Propagate{propagator: propagator, emitter: em, logger: logger}
}

// Handle propagates cluster tags for every notification in ev, in order.
// The first failure aborts the invocation.
func (h *Propagate) Handle(ctx context.Context, ev events.SNSEvent) (Response, error) {
	logger := withRequest(ctx, h.logger)
	ctx = logger.WithContext(ctx)
	logger.Info().Int("records", len(ev.Records)).Msg("received event")

	for _, rec := range ev.Records {
		logger.Info().Str("message_id", rec.SNS.MessageID).Str("message", rec.SNS.Message).Msg("received message")
	}

	notifications, err := event.ParseSNS(ev)
	if err != nil {
		logger.Error().Err(err).Msg("error processing event")
		return Response{}, err
	}

	var resp Response
	for _, n := range notifications {
		resp, err = h.propagate(ctx, logger, n)
		if err != nil {
			return Response{}, err
		}
	}
	return resp, nil
}

func (h *Propagate) propagate(ctx context.Context, logger zerolog.Logger, n event.Notification) (Response, error) {
	logger = logger.With().Str("instance", n.SourceID).Logger()

	report, err := h.propagator.Propagate(ctx, n.SourceID)
	if h.emitter != nil {
		if emitErr := h.emitter.EmitPropagation(ctx, report, err); emitErr != nil {
			logger.Warn().Err(emitErr).Msg("failed to emit propagation report")
		}
	}
	if err != nil {
		logger.Error().Err(err).Msg("error processing event")
		return Response{}, fmt.Errorf("propagate %s: %w", n.SourceID, err)
	}

	if report.Orphan {
		return Response{
			StatusCode: 200,
			Body:       fmt.Sprintf("Instance %s is not part of a cluster; no tags added.", n.SourceID),
		}, nil
	}
	if report.Outcome.Action == resource.ActionSkipped {
		return Response{
			StatusCode: 200,
			Body:       fmt.Sprintf("Instance %s skipped: %s.", n.SourceID, report.Outcome.Reason),
		}, nil
	}
	return Response{
		StatusCode: 200,
		Body:       fmt.Sprintf("Tags added to instance %s successfully.", n.SourceID),
	}, nil
}

// withRequest tags logger with the Lambda request ID, when ctx carries one.
func withRequest(ctx context.Context, logger zerolog.Logger) zerolog.Logger {
	lc, ok := lambdacontext.FromContext(ctx)
	if !ok || lc == nil {
		return logger
	}
	return logger.With().Str("request_id", lc.AwsRequestID).Logger()
}

// IsMalformed reports whether err came from an unreadable notification.
func IsMalformed(err error) bool {
	return errors.Is(err, event.ErrMalformedMessage) ||
		errors.Is(err, event.ErrMissingSourceID) ||
		errors.Is(err, event.ErrNoRecords)
}
