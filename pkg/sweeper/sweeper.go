// Package sweeper runs the periodic expiration sweep on a cron schedule.
package sweeper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/dukex/parley/pkg/models"
	"github.com/robfig/cron/v3"
)

const DefaultSchedule = "@every 1m"

// Expirer is the maintenance operation the sweeper drives.
type Expirer interface {
	ExpireMaintenance(ctx context.Context) (models.ExpirationResult, error)
}

type Sweeper struct {
	schedule string
	expirer  Expirer
	cron     *cron.Cron
	logger   *slog.Logger
}

// New validates schedule, a standard cron expression or descriptor such as "@every 30s".
func New(schedule string, expirer Expirer, logger *slog.Logger) (*Sweeper, error) {
	if schedule == "" {
		return nil, errors.New("sweep schedule is required")
	}

	if _, err := cron.ParseStandard(schedule); err != nil {
		return nil, fmt.Errorf("invalid sweep schedule: %w", err)
	}

	return &Sweeper{
		schedule: schedule,
		expirer:  expirer,
		logger:   logger.With("module", "sweeper", "schedule", schedule),
	}, nil
}

// Start schedules the sweep. Runs never overlap; a run still going when the next tick
// fires makes that tick a no-op.
func (s *Sweeper) Start(ctx context.Context) error {
	cl := cronLogger{logger: s.logger}

	s.cron = cron.New(cron.WithLogger(cl), cron.WithChain(
		cron.SkipIfStillRunning(cl),
		cron.Recover(cl),
	))

	id, err := s.cron.AddFunc(s.schedule, func() {
		if _, err := s.RunOnce(ctx); err != nil {
			s.logger.ErrorContext(ctx, "expiration sweep failed", "error", err)
		}
	})
	if err != nil {
		return fmt.Errorf("failed to schedule sweep: %w", err)
	}

	s.logger.InfoContext(ctx, "sweeper started", "entry_id", id)
	s.cron.Start()

	return nil
}

// RunOnce performs a single sweep.
func (s *Sweeper) RunOnce(ctx context.Context) (models.ExpirationResult, error) {
	result, err := s.expirer.ExpireMaintenance(ctx)
	if err != nil {
		return result, err
	}

	s.logger.DebugContext(ctx, "expiration sweep finished",
		"expired_works", result.ExpiredWorks,
		"expired_contexts", result.ExpiredContexts,
	)

	return result, nil
}

// Stop stops scheduling and waits for a running sweep to finish or ctx to end.
func (s *Sweeper) Stop(ctx context.Context) error {
	if s.cron == nil {
		return nil
	}

	select {
	case <-s.cron.Stop().Done():
		s.logger.InfoContext(ctx, "sweeper stopped")

		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// cronLogger routes cron's logr-style calls to slog.
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Debug(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.logger.Error(msg, append(keysAndValues, "error", err)...)
}
