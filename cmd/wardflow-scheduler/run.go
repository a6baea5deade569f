package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dukex/wardflow/pkg/cmd"
	"github.com/dukex/wardflow/pkg/eventbus"
	"github.com/dukex/wardflow/pkg/log"
	"github.com/dukex/wardflow/pkg/models"
	"github.com/dukex/wardflow/pkg/scheduler"
	cli "github.com/urfave/cli/v3"
)

const stopTimeout = 30 * time.Second

func NewRunCommand() *cli.Command {
	return &cli.Command{
		Name:    "run",
		Aliases: []string{"r"},
		Usage:   "Start the cycle scheduler",
		Flags:   cmd.CommonFlags(),
		Action: func(ctx context.Context, command *cli.Command) error {
			log.Setup(command.String("log-level"), command.String("log-format"))

			logger := log.WithModule("scheduler")
			logger.InfoContext(ctx, "Initializing Wardflow scheduler")

			ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
			defer stop()

			deps, err := cmd.NewRuntime(ctx, command, serviceName, logger)
			if err != nil {
				return err
			}
			defer deps.Close(context.WithoutCancel(ctx))

			sched := scheduler.New(logger, deps.Engine.Orchestrator, deps.Engine.Machine, deps.Config.Scheduler)

			dedup := cmd.NewDedup(deps.Redis, serviceName, deps.Config.Events.DedupTTL)

			err = deps.EventBus.Handle(models.EventForceRequested, eventbus.Idempotent(dedup, sched.HandleForceRequest))
			if err != nil {
				return fmt.Errorf("failed to subscribe force requests: %w", err)
			}

			err = deps.EventBus.Subscribe(ctx)
			if err != nil {
				return fmt.Errorf("failed to subscribe to event bus: %w", err)
			}

			err = sched.Start(ctx)
			if err != nil {
				return fmt.Errorf("failed to start scheduler: %w", err)
			}

			<-ctx.Done()
			logger.Info("Shutting down gracefully...")

			stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), stopTimeout)
			defer cancel()

			return sched.Stop(stopCtx)
		},
	}
}
