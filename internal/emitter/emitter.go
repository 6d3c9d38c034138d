// Package emitter reports tagging runs to logs and metrics backends.
package emitter

import (
	"context"

	"github.com/yairfalse/auroratag/pkg/resource"
)

// Operation names used as metric and log attributes.
const (
	OpSweep     = "sweep"
	OpPropagate = "propagate"
)

// Emitter records the outcome of a run.
type Emitter interface {
	// EmitSweep records a sweep. runErr is the error the sweep returned, if any.
	EmitSweep(ctx context.Context, report resource.SweepReport, runErr error) error

	// EmitPropagation records a propagation. runErr is the error it returned, if any.
	EmitPropagation(ctx context.Context, report resource.PropagationReport, runErr error) error

	// Close cleans up resources.
	Close() error
}

// MultiEmitter fans out to multiple emitters.
type MultiEmitter struct {
	emitters []Emitter
}

// NewMultiEmitter creates an emitter that sends to multiple backends.
func NewMultiEmitter(emitters ...Emitter) *MultiEmitter {
	return &MultiEmitter{emitters: emitters}
}

// EmitSweep sends to all emitters, returns first error.
func (m *MultiEmitter) EmitSweep(ctx context.Context, report resource.SweepReport, runErr error) error {
	for _, e := range m.emitters {
		if err := e.EmitSweep(ctx, report, runErr); err != nil {
			return err
		}
	}
	return nil
}

// EmitPropagation sends to all emitters, returns first error.
func (m *MultiEmitter) EmitPropagation(ctx context.Context, report resource.PropagationReport, runErr error) error {
	for _, e := range m.emitters {
		if err := e.EmitPropagation(ctx, report, runErr); err != nil {
			return err
		}
	}
	return nil
}

// Close closes all emitters.
func (m *MultiEmitter) Close() error {
	for _, e := range m.emitters {
		if err := e.Close(); err != nil {
			return err
		}
	}
	return nil
}
