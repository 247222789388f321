// Package engine is the transactional core of work execution: it proposes, opens,
// mutates, confirms and expires works and records idempotent external effects. It is
// the only component that writes work state.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/dukex/parley/pkg/eventbus"
	"github.com/dukex/parley/pkg/events"
	"github.com/dukex/parley/pkg/metrics"
	"github.com/dukex/parley/pkg/models"
	"github.com/dukex/parley/pkg/otelhelper"
	"github.com/dukex/parley/pkg/persistence"
	"github.com/go-playground/validator/v10"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// DefaultConfirmationTTL applies when neither the caller nor the definition sets one.
const DefaultConfirmationTTL = 5 * time.Minute

// Engine holds its collaborators explicitly; there is no package level state.
type Engine struct {
	store     persistence.Persistence
	metrics   metrics.Sink
	publisher eventbus.EventPublisher
	tracer    trace.Tracer
	logger    *slog.Logger
	validate  *validator.Validate
	now       func() time.Time
}

// Option configures an Engine.
type Option func(*Engine)

// WithMetrics sets the metrics sink. Defaults to metrics.Noop.
func WithMetrics(sink metrics.Sink) Option {
	return func(e *Engine) { e.metrics = sink }
}

// WithPublisher fans committed work events out on the event bus.
func WithPublisher(p eventbus.EventPublisher) Option {
	return func(e *Engine) { e.publisher = p }
}

// WithTracer sets the tracer. Defaults to a no-op tracer.
func WithTracer(t trace.Tracer) Option {
	return func(e *Engine) { e.tracer = t }
}

// WithClock overrides the time source used for every persisted timestamp.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// New creates an engine over store.
func New(store persistence.Persistence, logger *slog.Logger, opts ...Option) *Engine {
	e := &Engine{
		store:    store,
		metrics:  metrics.Noop{},
		tracer:   otelhelper.NoopTracer(),
		logger:   logger,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		now:      func() time.Time { return time.Now().UTC() },
	}

	for _, opt := range opts {
		opt(e)
	}

	return e
}

func (e *Engine) validateRequest(req any) error {
	if err := e.validate.Struct(req); err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidRequest, err.Error())
	}

	return nil
}

// instrument opens a span for op and returns the function that closes it, recording the
// outcome counter and latency.
func (e *Engine) instrument(ctx context.Context, op string, attrs ...attribute.KeyValue) (context.Context, func(error)) {
	start := time.Now()
	ctx, span := otelhelper.StartSpan(ctx, e.tracer, "engine."+op, attrs...)

	return ctx, func(err error) {
		tags := metrics.Tags("op", op, "outcome", outcome(err))
		e.metrics.Increment("engine.operation", 1, tags)
		e.metrics.RecordTiming("engine.operation", time.Since(start), metrics.Tags("op", op))

		if err != nil {
			otelhelper.SetError(span, err)
		}

		span.End()
	}
}

// publish mirrors committed audit rows onto the event bus. Failures are logged only:
// the transaction has already committed.
func (e *Engine) publish(ctx context.Context, committed []*models.WorkEvent) {
	if e.publisher == nil {
		return
	}

	for _, we := range committed {
		msg := events.WorkEventCommitted{
			BaseEvent: events.BaseEvent{
				ID:        fmt.Sprintf("%s-%d", we.WorkID, we.ID),
				Type:      events.WorkEventCommittedType,
				Timestamp: we.CreatedAt,
				AccountID: we.AccountID,
			},
			Event: *we,
		}

		if err := e.publisher.Publish(ctx, we.WorkID, msg); err != nil {
			e.logger.ErrorContext(ctx, "failed to publish work event",
				"work_id", we.WorkID,
				"event_type", we.Type,
				"work_revision", we.WorkRevision,
				"error", err,
			)
		}
	}
}

// HealthCheck reports whether the store is reachable.
func (e *Engine) HealthCheck(ctx context.Context) error {
	return e.store.HealthCheck(ctx)
}
