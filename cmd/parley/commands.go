package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/dukex/parley/pkg/cmd"
	"github.com/dukex/parley/pkg/engine"
	"github.com/dukex/parley/pkg/log"
	"github.com/dukex/parley/pkg/registry"
	cli "github.com/urfave/cli/v3"
)

type environment struct {
	engine   *engine.Engine
	registry *registry.Registry
}

func withEngine(ctx context.Context, command *cli.Command, fn func(env *environment) error) error {
	logger := log.WithModule("cli")

	store, err := cmd.NewPersistence(ctx, logger, command.String("database-url"))
	if err != nil {
		return err
	}

	defer func() {
		if err := store.Close(ctx); err != nil {
			logger.ErrorContext(ctx, "Failed to close persistence", "error", err)
		}
	}()

	return fn(&environment{
		engine:   engine.New(store, logger),
		registry: registry.New(store.Definitions(), logger),
	})
}

func printJSON(command *cli.Command, v any) error {
	enc := json.NewEncoder(command.Root().Writer)
	enc.SetIndent("", "  ")

	return enc.Encode(v)
}

func accountFlag() cli.Flag {
	return &cli.StringFlag{
		Name:     "account",
		Aliases:  []string{"a"},
		Usage:    "Owning account id",
		Required: true,
		Sources:  cli.EnvVars("PARLEY_ACCOUNT"),
	}
}

func definitionsCommand() *cli.Command {
	return &cli.Command{
		Name:    "definitions",
		Aliases: []string{"defs"},
		Usage:   "Manage work definitions",
		Commands: []*cli.Command{
			{
				Name:  "register",
				Usage: "Register a definition version from a YAML or JSON file",
				Flags: []cli.Flag{
					accountFlag(),
					&cli.StringFlag{
						Name:     "file",
						Aliases:  []string{"f"},
						Usage:    "Definition file",
						Required: true,
					},
				},
				Action: func(ctx context.Context, command *cli.Command) error {
					def, err := registry.LoadFile(command.String("file"))
					if err != nil {
						return err
					}

					return withEngine(ctx, command, func(env *environment) error {
						registered, err := env.registry.Register(ctx, command.String("account"), def)
						if err != nil {
							return err
						}

						return printJSON(command, registered)
					})
				},
			},
			{
				Name:  "list",
				Usage: "List the latest version of every definition type",
				Flags: []cli.Flag{accountFlag()},
				Action: func(ctx context.Context, command *cli.Command) error {
					return withEngine(ctx, command, func(env *environment) error {
						defs, err := env.registry.ListLatest(ctx, command.String("account"))
						if err != nil {
							return err
						}

						w := tabwriter.NewWriter(command.Root().Writer, 0, 4, 2, ' ', 0)
						fmt.Fprintln(w, "TYPE\tVERSION\tID\tNAME")

						for _, d := range defs {
							fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", d.TypeID, d.Version, d.ID, d.Name)
						}

						return w.Flush()
					})
				},
			},
			{
				Name:      "show",
				Usage:     "Show a definition, the latest version unless --version is set",
				ArgsUsage: "<type-id>",
				Flags: []cli.Flag{
					accountFlag(),
					&cli.StringFlag{Name: "version", Usage: "Exact version"},
				},
				Action: func(ctx context.Context, command *cli.Command) error {
					typeID := command.Args().First()
					if typeID == "" {
						return errors.New("type id is required")
					}

					return withEngine(ctx, command, func(env *environment) error {
						account := command.String("account")

						if v := command.String("version"); v != "" {
							def, err := env.registry.Get(ctx, account, typeID, v)
							if err != nil {
								return err
							}

							if def == nil {
								return fmt.Errorf("definition %s@%s not found", typeID, v)
							}

							return printJSON(command, def)
						}

						def, err := env.registry.GetLatest(ctx, account, typeID)
						if err != nil {
							return err
						}

						if def == nil {
							return fmt.Errorf("definition %s not found", typeID)
						}

						return printJSON(command, def)
					})
				},
			},
		},
	}
}

func worksCommand() *cli.Command {
	return &cli.Command{
		Name:  "works",
		Usage: "Inspect works",
		Commands: []*cli.Command{
			{
				Name:      "show",
				Usage:     "Show the current projection of a work",
				ArgsUsage: "<work-id>",
				Action: func(ctx context.Context, command *cli.Command) error {
					return withEngine(ctx, command, func(env *environment) error {
						projection, err := env.engine.GetWorkState(ctx, command.Args().First())
						if err != nil {
							return err
						}

						return printJSON(command, projection)
					})
				},
			},
			{
				Name:      "history",
				Usage:     "List the audit events of a work in order",
				ArgsUsage: "<work-id>",
				Action: func(ctx context.Context, command *cli.Command) error {
					return withEngine(ctx, command, func(env *environment) error {
						events, err := env.engine.ListWorkEvents(ctx, command.Args().First())
						if err != nil {
							return err
						}

						w := tabwriter.NewWriter(command.Root().Writer, 0, 4, 2, ' ', 0)
						fmt.Fprintln(w, "REVISION\tTYPE\tACTOR\tAT")

						for _, e := range events {
							fmt.Fprintf(w, "%d\t%s\t%s\t%s\n", e.WorkRevision, e.Type, e.Actor, e.CreatedAt.Format(time.RFC3339))
						}

						return w.Flush()
					})
				},
			},
		},
	}
}
