package main

import (
	"context"
	"fmt"
	"os"

	"github.com/dukex/wardflow/pkg/cmd"
	"github.com/dukex/wardflow/pkg/log"
	"github.com/dukex/wardflow/pkg/registry"
	cli "github.com/urfave/cli/v3"
)

func NewSeedCommand() *cli.Command {
	return &cli.Command{
		Name:  "seed",
		Usage: "Load resource units from a YAML seed file",
		Flags: append(cmd.CommonFlags(),
			&cli.StringFlag{
				Name:     "file",
				Aliases:  []string{"f"},
				Usage:    "Seed file with a top-level units list",
				Required: true,
			},
		),
		Action: func(ctx context.Context, command *cli.Command) error {
			log.Setup(command.String("log-level"), command.String("log-format"))

			logger := log.WithModule("seed")

			deps, err := cmd.NewRuntime(ctx, command, serviceName, logger)
			if err != nil {
				return err
			}
			defer deps.Close(ctx)

			count, err := seedFile(ctx, deps.Engine.Registry, command.String("file"))
			if err != nil {
				return err
			}

			logger.InfoContext(ctx, "Seed complete", "units", count)

			return nil
		},
	}
}

// seedFile validates and stores every unit in path. Nothing is stored when
// any unit is invalid.
func seedFile(ctx context.Context, reg *registry.Registry, path string) (int, error) {
	file, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("failed to open seed file: %w", err)
	}

	defer func() {
		_ = file.Close()
	}()

	units, err := registry.LoadSeed(file)
	if err != nil {
		return 0, err
	}

	err = reg.Seed(ctx, units)
	if err != nil {
		return 0, err
	}

	return len(units), nil
}
