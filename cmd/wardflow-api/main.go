package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dukex/wardflow/pkg/cmd"
	"github.com/dukex/wardflow/pkg/eventbus"
	"github.com/dukex/wardflow/pkg/log"
	"github.com/dukex/wardflow/pkg/models"
	"github.com/dukex/wardflow/pkg/scheduler"
	"github.com/dukex/wardflow/pkg/services"
	"github.com/dukex/wardflow/pkg/stream"
	"github.com/joho/godotenv"
	cli "github.com/urfave/cli/v3"
)

const (
	defaultPort       = 9091
	defaultStreamPort = 9092
	serviceName       = "wardflow-api"
)

func main() {
	_ = godotenv.Load()

	flags := append(cmd.CommonFlags(),
		&cli.IntFlag{
			Name:    "port",
			Aliases: []string{"p"},
			Usage:   "Port to run the API server on",
			Value:   defaultPort,
			Sources: cli.EnvVars("PORT"),
		},
		&cli.IntFlag{
			Name:    "stream-port",
			Usage:   "Port of the websocket event stream",
			Value:   defaultStreamPort,
			Sources: cli.EnvVars("STREAM_PORT"),
		},
		&cli.BoolFlag{
			Name:    "embedded-scheduler",
			Usage:   "Run the cycle scheduler inside the API process",
			Sources: cli.EnvVars("EMBEDDED_SCHEDULER"),
		},
	)

	root := &cli.Command{
		Name:                  serviceName,
		Usage:                 "Review and resolve hospital resource workflow items",
		EnableShellCompletion: true,
		Flags:                 flags,
		Action: func(ctx context.Context, command *cli.Command) error {
			log.Setup(command.String("log-level"), command.String("log-format"))

			logger := log.WithModule("api")
			logger.InfoContext(ctx, "Initializing Wardflow API")

			ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
			defer stop()

			deps, err := cmd.NewRuntime(ctx, command, serviceName, logger)
			if err != nil {
				return err
			}
			defer deps.Close(context.WithoutCancel(ctx))

			hub := stream.NewHub(logger)

			err = deps.EventBus.Handle(eventbus.AnyEvent, hub.Handle)
			if err != nil {
				return fmt.Errorf("failed to subscribe event stream: %w", err)
			}

			var trigger services.CycleTrigger = scheduler.NewRemoteTrigger(deps.EventBus, serviceName)

			if command.Bool("embedded-scheduler") {
				sched := scheduler.New(logger, deps.Engine.Orchestrator, deps.Engine.Machine, deps.Config.Scheduler)

				dedup := cmd.NewDedup(deps.Redis, serviceName, deps.Config.Events.DedupTTL)

				err = deps.EventBus.Handle(models.EventForceRequested, eventbus.Idempotent(dedup, sched.HandleForceRequest))
				if err != nil {
					return fmt.Errorf("failed to subscribe force requests: %w", err)
				}

				err = sched.Start(ctx)
				if err != nil {
					return fmt.Errorf("failed to start scheduler: %w", err)
				}

				defer func() {
					stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
					defer cancel()

					stopErr := sched.Stop(stopCtx)
					if stopErr != nil {
						logger.Error("Failed to stop scheduler", "error", stopErr)
					}
				}()

				trigger = sched
			} else if command.String("event-bus") == "gochannel" {
				logger.WarnContext(ctx, "No scheduler shares the in-process event bus; force-cycle requests will not run")
			}

			err = deps.EventBus.Subscribe(ctx)
			if err != nil {
				return fmt.Errorf("failed to subscribe to event bus: %w", err)
			}

			go func() {
				streamErr := serveStream(ctx, logger, hub, command.Int("stream-port"))
				if streamErr != nil {
					logger.Error("Event stream server failed", "error", streamErr)
				}
			}()

			api, err := NewAPI(logger, deps.Store, deps.Engine, trigger)
			if err != nil {
				return err
			}

			err = api.Start(ctx, command.Int("port"))
			if err != nil {
				logger.ErrorContext(ctx, "Failed to start API", "error", err)
			}

			return err
		},
	}

	err := root.Run(context.Background(), os.Args)
	if err != nil {
		slog.Error("API exited with error", "error", err)
		os.Exit(1)
	}
}
