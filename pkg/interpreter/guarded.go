package interpreter

import (
	"context"
	"log/slog"
	"time"

	"github.com/dukex/parley/pkg/metrics"
	"github.com/dukex/parley/pkg/models"
	"github.com/dukex/parley/pkg/otelhelper"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Gate is the circuit breaker as seen by the interpreter boundary.
type Gate interface {
	IsAvailable(ctx context.Context, key string) bool
	RecordSuccess(ctx context.Context, key string)
	RecordFailure(ctx context.Context, key string)
}

// Guarded wraps an Interpreter with the breaker keyed by provider, metrics, tracing and
// the evidence filter. Failures are absorbed: callers get nil.
type Guarded struct {
	next     Interpreter
	gate     Gate
	provider string
	metrics  metrics.Sink
	tracer   trace.Tracer
	logger   *slog.Logger
}

type GuardedOption func(*Guarded)

func WithMetrics(sink metrics.Sink) GuardedOption {
	return func(g *Guarded) { g.metrics = sink }
}

func WithTracer(t trace.Tracer) GuardedOption {
	return func(g *Guarded) { g.tracer = t }
}

func NewGuarded(next Interpreter, gate Gate, provider string, logger *slog.Logger, opts ...GuardedOption) *Guarded {
	g := &Guarded{
		next:     next,
		gate:     gate,
		provider: provider,
		metrics:  metrics.Noop{},
		tracer:   otelhelper.NoopTracer(),
		logger:   logger,
	}

	for _, opt := range opts {
		opt(g)
	}

	return g
}

// Interpret returns a trusted analysis or nil. The analysis must name one of the given
// definitions; its slots are reduced to those with verbatim evidence in text.
func (g *Guarded) Interpret(ctx context.Context, definitions []*models.WorkDefinition, text string) *Analysis {
	var analysis *Analysis

	ok := g.call(ctx, "interpret", func(ctx context.Context) error {
		var err error
		analysis, err = g.next.Interpret(ctx, definitions, text)

		return err
	})
	if !ok || analysis == nil {
		return nil
	}

	var def *models.WorkDefinition

	for _, d := range definitions {
		if d.TypeID == analysis.WorkDefinitionTypeID {
			def = d

			break
		}
	}

	if def == nil {
		g.logger.WarnContext(ctx, "interpreter proposed an unknown work type",
			"provider", g.provider,
			"type_id", analysis.WorkDefinitionTypeID,
		)
		g.metrics.Increment("interpreter.rejected", 1, map[string]string{"provider": g.provider, "reason": "unknown_type"})

		return nil
	}

	kept, dropped := TrustedSlots(def, analysis.Slots, text)
	g.reportDropped(ctx, dropped)

	analysis.Slots = kept
	if analysis.Model.Provider == "" {
		analysis.Model.Provider = g.provider
	}

	return analysis
}

// SolveActiveWork returns the trusted candidate slots for an open work, or nil.
func (g *Guarded) SolveActiveWork(ctx context.Context, definition *models.WorkDefinition, state models.Snapshot, text string) []models.CandidateSlot {
	var slots []models.CandidateSlot

	ok := g.call(ctx, "solve_active_work", func(ctx context.Context) error {
		var err error
		slots, err = g.next.SolveActiveWork(ctx, definition, state, text)

		return err
	})
	if !ok {
		return nil
	}

	kept, dropped := TrustedSlots(definition, slots, text)
	g.reportDropped(ctx, dropped)

	return kept
}

func (g *Guarded) call(ctx context.Context, op string, fn func(ctx context.Context) error) bool {
	tags := map[string]string{"provider": g.provider, "op": op}

	if !g.gate.IsAvailable(ctx, g.provider) {
		g.logger.WarnContext(ctx, "interpreter unavailable, breaker open", "provider", g.provider, "op", op)
		g.metrics.Increment("interpreter.skipped", 1, tags)

		return false
	}

	ctx, span := otelhelper.StartSpan(ctx, g.tracer, "interpreter."+op, attribute.String(otelhelper.ProviderKey, g.provider))
	defer span.End()

	start := time.Now()
	err := fn(ctx)
	g.metrics.RecordTiming("interpreter.call", time.Since(start), tags)

	if err != nil {
		g.gate.RecordFailure(ctx, g.provider)
		otelhelper.SetError(span, err)
		g.logger.ErrorContext(ctx, "interpreter call failed", "provider", g.provider, "op", op, "error", err)
		g.metrics.Increment("interpreter.failure", 1, tags)

		return false
	}

	g.gate.RecordSuccess(ctx, g.provider)
	g.metrics.Increment("interpreter.success", 1, tags)

	return true
}

func (g *Guarded) reportDropped(ctx context.Context, dropped []models.CandidateSlot) {
	for _, s := range dropped {
		g.logger.InfoContext(ctx, "dropped untrusted slot", "provider", g.provider, "path", s.Path)
	}

	if len(dropped) > 0 {
		g.metrics.Increment("interpreter.slots_dropped", float64(len(dropped)), map[string]string{"provider": g.provider})
	}
}
