// Package main is the parley administration CLI.
package main

import (
	"context"
	"os"

	"github.com/dukex/parley/pkg/log"
	cli "github.com/urfave/cli/v3"
)

func main() {
	command := &cli.Command{
		Name:                  "parley",
		Usage:                 "Manage work definitions and inspect works",
		EnableShellCompletion: true,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "database-url",
				Usage:    "Database connection URL for persistence",
				Required: true,
				Sources:  cli.EnvVars("DATABASE_URL"),
			},
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "Log level (debug, info, warn, error)",
				Value:   "warn",
				Sources: cli.EnvVars("LOG_LEVEL"),
			},
		},
		Before: func(ctx context.Context, command *cli.Command) (context.Context, error) {
			log.Setup(command.String("log-level"), "text")

			return ctx, nil
		},
		Commands: []*cli.Command{
			definitionsCommand(),
			worksCommand(),
			{
				Name:  "expire",
				Usage: "Run one expiration sweep",
				Action: func(ctx context.Context, command *cli.Command) error {
					return withEngine(ctx, command, func(env *environment) error {
						result, err := env.engine.ExpireMaintenance(ctx)
						if err != nil {
							return err
						}

						return printJSON(command, result)
					})
				},
			},
		},
	}

	if err := command.Run(context.Background(), os.Args); err != nil {
		log.WithModule("cli").Error("parley failed", "error", err)
		os.Exit(1)
	}
}
