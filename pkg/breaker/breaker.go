// Package breaker gates calls to a flaky upstream per logical key: closed until a run of
// consecutive failures, open for a cooldown, then half-open for a single probing call.
package breaker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dukex/parley/pkg/metrics"
)

const (
	DefaultThreshold = 3
	DefaultCooldown  = 60 * time.Second
)

// ErrOpen is returned by Do when the breaker rejects the call.
var ErrOpen = errors.New("circuit breaker is open")

type State string

const (
	StateClosed   State = "closed"
	StateOpen     State = "open"
	StateHalfOpen State = "half_open"
)

// Record is the persisted state of one key.
type Record struct {
	State          State     `json:"state"`
	Failures       int       `json:"failures"`
	OpenedAt       time.Time `json:"opened_at,omitzero"`
	ProbeStartedAt time.Time `json:"probe_started_at,omitzero"`
}

// Store applies fn to the record of key atomically. fn reports whether it changed the
// record; unchanged records are not written back. A missing key starts closed.
type Store interface {
	Update(ctx context.Context, key string, fn func(rec *Record) bool) (Record, error)
}

// Breaker evaluates transitions over a Store. Store errors fail open: an unreachable
// breaker store never blocks the upstream call.
type Breaker struct {
	store     Store
	threshold int
	cooldown  time.Duration
	metrics   metrics.Sink
	logger    *slog.Logger
	now       func() time.Time
}

type Option func(*Breaker)

func WithThreshold(n int) Option {
	return func(b *Breaker) { b.threshold = n }
}

func WithCooldown(d time.Duration) Option {
	return func(b *Breaker) { b.cooldown = d }
}

func WithMetrics(sink metrics.Sink) Option {
	return func(b *Breaker) { b.metrics = sink }
}

func WithClock(now func() time.Time) Option {
	return func(b *Breaker) { b.now = now }
}

func New(store Store, logger *slog.Logger, opts ...Option) *Breaker {
	b := &Breaker{
		store:     store,
		threshold: DefaultThreshold,
		cooldown:  DefaultCooldown,
		metrics:   metrics.Noop{},
		logger:    logger,
		now:       time.Now,
	}

	for _, opt := range opts {
		opt(b)
	}

	return b
}

// IsAvailable reports whether a call for key may proceed. An open breaker whose cooldown
// elapsed lets exactly one probe through and stays half-open until that probe reports.
// A probe that never reports is replaced after another cooldown.
func (b *Breaker) IsAvailable(ctx context.Context, key string) bool {
	now := b.now()
	allowed := false

	rec, err := b.store.Update(ctx, key, func(rec *Record) bool {
		allowed = false

		switch rec.State {
		case StateOpen:
			if now.Sub(rec.OpenedAt) < b.cooldown {
				return false
			}

			rec.State = StateHalfOpen
			rec.ProbeStartedAt = now
			allowed = true

			return true
		case StateHalfOpen:
			if now.Sub(rec.ProbeStartedAt) < b.cooldown {
				return false
			}

			rec.ProbeStartedAt = now
			allowed = true

			return true
		default:
			allowed = true

			return false
		}
	})
	if err != nil {
		b.logger.WarnContext(ctx, "breaker store unavailable, allowing call", "key", key, "error", err)

		return true
	}

	if !allowed {
		b.metrics.Increment("breaker.rejected", 1, map[string]string{"key": key})
	} else if rec.State == StateHalfOpen {
		b.logger.InfoContext(ctx, "breaker half-open, probing", "key", key)
	}

	return allowed
}

// RecordSuccess closes the breaker for key.
func (b *Breaker) RecordSuccess(ctx context.Context, key string) {
	_, err := b.store.Update(ctx, key, func(rec *Record) bool {
		if rec.State == StateClosed && rec.Failures == 0 {
			return false
		}

		*rec = Record{State: StateClosed}

		return true
	})
	if err != nil {
		b.logger.WarnContext(ctx, "failed to record breaker success", "key", key, "error", err)
	}
}

// RecordFailure counts a failure for key, opening the breaker at the threshold. A failed
// probe reopens it immediately.
func (b *Breaker) RecordFailure(ctx context.Context, key string) {
	now := b.now()

	rec, err := b.store.Update(ctx, key, func(rec *Record) bool {
		rec.Failures++

		if rec.State == StateHalfOpen || (rec.State != StateOpen && rec.Failures >= b.threshold) {
			rec.State = StateOpen
			rec.OpenedAt = now
			rec.ProbeStartedAt = time.Time{}
		}

		return true
	})
	if err != nil {
		b.logger.WarnContext(ctx, "failed to record breaker failure", "key", key, "error", err)

		return
	}

	if rec.State == StateOpen && rec.OpenedAt.Equal(now) {
		b.logger.WarnContext(ctx, "breaker opened", "key", key, "failures", rec.Failures)
		b.metrics.Increment("breaker.opened", 1, map[string]string{"key": key})
	}
}

// Do runs fn when key is available and reports its outcome.
func (b *Breaker) Do(ctx context.Context, key string, fn func(ctx context.Context) error) error {
	if !b.IsAvailable(ctx, key) {
		return fmt.Errorf("%w: %s", ErrOpen, key)
	}

	if err := fn(ctx); err != nil {
		b.RecordFailure(ctx, key)

		return err
	}

	b.RecordSuccess(ctx, key)

	return nil
}

func normalize(rec *Record) {
	if rec.State == "" {
		rec.State = StateClosed
	}
}
