package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/dukex/wardflow/pkg/cmd"
	"github.com/dukex/wardflow/pkg/generator"
	cli "github.com/urfave/cli/v3"
)

func NewValidateConfigCommand() *cli.Command {
	return &cli.Command{
		Name:  "validate-config",
		Usage: "Check the engine configuration and print the effective cycle intervals",
		Flags: []cli.Flag{cmd.ConfigFlag()},
		Action: func(_ context.Context, command *cli.Command) error {
			engineConfig, err := cmd.LoadConfig(command)
			if err != nil {
				return err
			}

			out := command.Root().Writer

			for _, domain := range generator.Domains {
				printInterval(out, string(domain), engineConfig.Scheduler.Interval(domain))
			}

			printInterval(out, "sweep", engineConfig.Scheduler.Sweep)
			fmt.Fprintln(out, "configuration is valid")

			return nil
		},
	}
}

func printInterval(out io.Writer, job string, interval time.Duration) {
	if interval <= 0 {
		fmt.Fprintf(out, "%-10s disabled\n", job)

		return
	}

	fmt.Fprintf(out, "%-10s every %s\n", job, interval)
}
