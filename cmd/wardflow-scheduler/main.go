package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	cli "github.com/urfave/cli/v3"
)

const serviceName = "wardflow-scheduler"

func main() {
	_ = godotenv.Load()

	root := &cli.Command{
		Name:                  serviceName,
		Usage:                 "Run orchestration cycles and maintain the workflow store",
		EnableShellCompletion: true,
		Commands: []*cli.Command{
			NewRunCommand(),
			NewReplayEventsCommand(),
			NewSeedCommand(),
			NewValidateConfigCommand(),
		},
	}

	err := root.Run(context.Background(), os.Args)
	if err != nil {
		slog.Error("Scheduler exited with error", "error", err)
		os.Exit(1)
	}
}
