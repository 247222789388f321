// Package main runs the periodic expiration sweep.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/dukex/parley/pkg/log"
	"github.com/dukex/parley/pkg/sweeper"
	cli "github.com/urfave/cli/v3"
)

func commonFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:     "database-url",
			Usage:    "Database connection URL for persistence",
			Required: true,
			Sources:  cli.EnvVars("DATABASE_URL"),
		},
		&cli.StringFlag{
			Name:    "event-bus",
			Usage:   "Event bus type (gochannel, kafka)",
			Value:   "gochannel",
			Sources: cli.EnvVars("EVENT_BUS_TYPE"),
		},
		&cli.BoolFlag{
			Name:    "tracing",
			Usage:   "Export traces over OTLP/HTTP",
			Sources: cli.EnvVars("OTEL_ENABLED"),
		},
		&cli.StringFlag{
			Name:    "log-level",
			Usage:   "Log level (debug, info, warn, error)",
			Value:   "info",
			Sources: cli.EnvVars("LOG_LEVEL"),
		},
		&cli.StringFlag{
			Name:    "log-format",
			Usage:   "Log format (text, json)",
			Value:   "text",
			Sources: cli.EnvVars("LOG_FORMAT"),
		},
	}
}

func main() {
	command := &cli.Command{
		Name:                  "parley-sweeper",
		Usage:                 "Expire stale works and semantic contexts",
		EnableShellCompletion: true,
		Commands: []*cli.Command{
			{
				Name:    "run",
				Aliases: []string{"r"},
				Usage:   "Sweep on a cron schedule until interrupted",
				Flags: append(commonFlags(), &cli.StringFlag{
					Name:    "sweep-schedule",
					Usage:   "Cron expression or descriptor such as @every 1m",
					Value:   sweeper.DefaultSchedule,
					Sources: cli.EnvVars("SWEEP_SCHEDULE"),
				}),
				Action: func(ctx context.Context, command *cli.Command) error {
					ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
					defer stop()

					return runSweeper(ctx, command)
				},
			},
			{
				Name:  "once",
				Usage: "Run a single sweep and exit",
				Flags: commonFlags(),
				Action: func(ctx context.Context, command *cli.Command) error {
					return sweepOnce(ctx, command)
				},
			},
		},
	}

	if err := command.Run(context.Background(), os.Args); err != nil {
		log.WithModule("sweeper").Error("parley-sweeper failed", "error", err)
		os.Exit(1)
	}
}
