package main

import (
	"context"
	"log/slog"

	"github.com/dukex/parley/pkg/cmd"
	"github.com/dukex/parley/pkg/engine"
	"github.com/dukex/parley/pkg/log"
	"github.com/dukex/parley/pkg/sweeper"
	cli "github.com/urfave/cli/v3"
)

// newEngine opens the store and bus and returns the engine plus a cleanup.
func newEngine(ctx context.Context, command *cli.Command, logger *slog.Logger) (*engine.Engine, func(), error) {
	store, err := cmd.NewPersistence(ctx, logger, command.String("database-url"))
	if err != nil {
		return nil, nil, err
	}

	bus, err := cmd.NewEventBus(command.String("event-bus"), logger)
	if err != nil {
		_ = store.Close(ctx)

		return nil, nil, err
	}

	tracer, shutdown, err := cmd.NewTracer(ctx, command.Bool("tracing"), "parley-sweeper")
	if err != nil {
		_ = bus.Close()
		_ = store.Close(ctx)

		return nil, nil, err
	}

	cleanup := func() {
		if err := shutdown(ctx); err != nil {
			logger.ErrorContext(ctx, "Failed to shutdown tracer", "error", err)
		}

		if err := bus.Close(); err != nil {
			logger.ErrorContext(ctx, "Failed to close event bus", "error", err)
		}

		if err := store.Close(ctx); err != nil {
			logger.ErrorContext(ctx, "Failed to close persistence", "error", err)
		}
	}

	return engine.New(store, logger, engine.WithPublisher(bus), engine.WithTracer(tracer)), cleanup, nil
}

func runSweeper(ctx context.Context, command *cli.Command) error {
	log.Setup(command.String("log-level"), command.String("log-format"))

	logger := log.WithModule("sweeper")

	eng, cleanup, err := newEngine(ctx, command, logger)
	if err != nil {
		return err
	}
	defer cleanup()

	s, err := sweeper.New(command.String("sweep-schedule"), eng, logger)
	if err != nil {
		return err
	}

	if err := s.Start(ctx); err != nil {
		return err
	}

	<-ctx.Done()

	return s.Stop(context.Background())
}

func sweepOnce(ctx context.Context, command *cli.Command) error {
	log.Setup(command.String("log-level"), command.String("log-format"))

	logger := log.WithModule("sweeper")

	eng, cleanup, err := newEngine(ctx, command, logger)
	if err != nil {
		return err
	}
	defer cleanup()

	s, err := sweeper.New(sweeper.DefaultSchedule, eng, logger)
	if err != nil {
		return err
	}

	result, err := s.RunOnce(ctx)
	if err != nil {
		return err
	}

	logger.InfoContext(ctx, "Sweep finished",
		"expired_works", result.ExpiredWorks,
		"expired_contexts", result.ExpiredContexts,
	)

	return nil
}
