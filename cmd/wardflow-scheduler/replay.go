package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/dukex/wardflow/pkg/cmd"
	"github.com/dukex/wardflow/pkg/eventbus"
	"github.com/dukex/wardflow/pkg/log"
	"github.com/dukex/wardflow/pkg/persistence"
	cli "github.com/urfave/cli/v3"
)

func NewReplayEventsCommand() *cli.Command {
	return &cli.Command{
		Name:  "replay-events",
		Usage: "Republish logged workflow events; consumers skip ids they already handled",
		Flags: append(cmd.CommonFlags(),
			&cli.StringFlag{
				Name:     "since",
				Usage:    "RFC 3339 timestamp or a duration back from now (e.g. 2h)",
				Required: true,
			},
		),
		Action: func(ctx context.Context, command *cli.Command) error {
			log.Setup(command.String("log-level"), command.String("log-format"))

			logger := log.WithModule("replay")

			since, err := parseSince(command.String("since"), time.Now().UTC())
			if err != nil {
				return err
			}

			deps, err := cmd.NewRuntime(ctx, command, serviceName, logger)
			if err != nil {
				return err
			}
			defer deps.Close(ctx)

			count, err := replayEvents(ctx, logger, deps.Store.EventLogRepository(), deps.EventBus, since)
			if err != nil {
				return err
			}

			logger.InfoContext(ctx, "Replayed events", "count", count, "since", since)

			return nil
		},
	}
}

// parseSince accepts an absolute RFC 3339 time or a duration before now.
func parseSince(value string, now time.Time) (time.Time, error) {
	since, err := time.Parse(time.RFC3339, value)
	if err == nil {
		return since, nil
	}

	ago, durationErr := time.ParseDuration(value)
	if durationErr != nil || ago < 0 {
		return time.Time{}, fmt.Errorf("invalid --since %q: want an RFC 3339 time or a positive duration", value)
	}

	return now.Add(-ago), nil
}

// replayEvents republishes every logged event at or after since, in log order.
func replayEvents(
	ctx context.Context,
	logger *slog.Logger,
	eventLog persistence.EventLogRepository,
	publisher eventbus.EventPublisher,
	since time.Time,
) (int, error) {
	logged, err := eventLog.Since(ctx, since)
	if err != nil {
		return 0, fmt.Errorf("failed to read event log: %w", err)
	}

	for i, event := range logged {
		err = publisher.Publish(ctx, event)
		if err != nil {
			return i, fmt.Errorf("failed to publish event %s: %w", event.ID, err)
		}

		logger.DebugContext(ctx, "Republished event", "event_id", event.ID, "type", event.Type)
	}

	return len(logged), nil
}
