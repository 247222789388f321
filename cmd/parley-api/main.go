package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dukex/parley/pkg/conversation"
	"github.com/dukex/parley/pkg/log"
	cli "github.com/urfave/cli/v3"
)

const defaultPort = 9091

func main() {
	command := &cli.Command{
		Name:                  "parley-api",
		Usage:                 "Serve the work execution API",
		EnableShellCompletion: true,
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    "port",
				Aliases: []string{"p"},
				Usage:   "Port to run the API server on",
				Value:   defaultPort,
				Sources: cli.EnvVars("PORT"),
			},
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
			&cli.StringFlag{
				Name:    "redis-url",
				Usage:   "Redis URL holding circuit breaker state; in-memory when empty",
				Sources: cli.EnvVars("REDIS_URL"),
			},
			&cli.StringFlag{
				Name:     "interpreter-url",
				Usage:    "Base URL of the language interpreter service",
				Required: true,
				Sources:  cli.EnvVars("INTERPRETER_URL"),
			},
			&cli.StringFlag{
				Name:    "interpreter-provider",
				Usage:   "Provider name used as the circuit breaker key",
				Value:   "default",
				Sources: cli.EnvVars("INTERPRETER_PROVIDER"),
			},
			&cli.DurationFlag{
				Name:    "interpreter-timeout",
				Usage:   "Timeout of a single interpreter call",
				Value:   10 * time.Second,
				Sources: cli.EnvVars("INTERPRETER_TIMEOUT"),
			},
			&cli.FloatFlag{
				Name:    "min-confidence",
				Usage:   "Minimum interpreter confidence to propose a work",
				Value:   conversation.DefaultMinConfidence,
				Sources: cli.EnvVars("MIN_CONFIDENCE"),
			},
			&cli.StringFlag{
				Name:    "ack-webhook-url",
				Usage:   "Webhook receiving acknowledgement messages; logged only when empty",
				Sources: cli.EnvVars("ACK_WEBHOOK_URL"),
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
		},
		Action: func(ctx context.Context, command *cli.Command) error {
			log.Setup(command.String("log-level"), command.String("log-format"))

			logger := log.WithModule("api")

			logger.InfoContext(ctx, "Initializing Parley API")

			api, err := NewAPI(ctx, logger, Config{
				DatabaseURL:         command.String("database-url"),
				EventBus:            command.String("event-bus"),
				RedisURL:            command.String("redis-url"),
				InterpreterURL:      command.String("interpreter-url"),
				InterpreterProvider: command.String("interpreter-provider"),
				InterpreterTimeout:  command.Duration("interpreter-timeout"),
				MinConfidence:       command.Float("min-confidence"),
				AckWebhookURL:       command.String("ack-webhook-url"),
				Tracing:             command.Bool("tracing"),
			})
			if err != nil {
				return err
			}

			defer api.Close(ctx)

			ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
			defer stop()

			return api.Start(ctx, command.Int("port"))
		},
	}

	err := command.Run(context.Background(), os.Args)
	if err != nil {
		panic(err)
	}
}
