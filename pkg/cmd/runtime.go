package cmd

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/dukex/wardflow/pkg/config"
	"github.com/dukex/wardflow/pkg/eventbus"
	"github.com/dukex/wardflow/pkg/locks"
	"github.com/dukex/wardflow/pkg/persistence"
	"github.com/redis/go-redis/v9"
	"github.com/urfave/cli/v3"
	"go.opentelemetry.io/otel/trace"
)

// CommonFlags are accepted by every process that opens the engine.
func CommonFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:     "database-url",
			Usage:    "Database connection URL for persistence (postgres://... or a directory)",
			Required: true,
			Sources:  cli.EnvVars("DATABASE_URL"),
		},
		&cli.StringFlag{
			Name:    "event-bus",
			Usage:   "Event bus type (gochannel, kafka)",
			Value:   "gochannel",
			Sources: cli.EnvVars("EVENT_BUS_TYPE"),
		},
		&cli.StringSliceFlag{
			Name:    "kafka-brokers",
			Usage:   "Kafka broker addresses",
			Sources: cli.EnvVars("KAFKA_BROKERS"),
		},
		&cli.StringFlag{
			Name:    "redis-url",
			Usage:   "Redis URL for distributed locks and event deduplication",
			Sources: cli.EnvVars("REDIS_URL"),
		},
		&cli.StringFlag{
			Name:    "lock-backend",
			Usage:   "Resolution lock backend (memory, redis)",
			Value:   "memory",
			Sources: cli.EnvVars("LOCK_BACKEND"),
		},
		ConfigFlag(),
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
		&cli.BoolFlag{
			Name:    "otel",
			Usage:   "Export traces over OTLP/HTTP",
			Sources: cli.EnvVars("OTEL_ENABLED"),
		},
	}
}

func ConfigFlag() cli.Flag {
	return &cli.StringFlag{
		Name:    "config",
		Aliases: []string{"c"},
		Usage:   "Path to the engine configuration file",
		Sources: cli.EnvVars("WARDFLOW_CONFIG"),
	}
}

// LoadConfig loads and validates the file named by the config flag.
func LoadConfig(command *cli.Command) (config.Config, error) {
	engineConfig, err := config.Load(command.String("config"))
	if err != nil {
		return config.Config{}, err
	}

	err = engineConfig.Validate()
	if err != nil {
		return config.Config{}, fmt.Errorf("invalid configuration: %w", err)
	}

	return engineConfig, nil
}

// Runtime holds the process-wide dependencies opened from the common flags.
type Runtime struct {
	Logger   *slog.Logger
	Config   config.Config
	Store    persistence.Persistence
	EventBus eventbus.EventBus
	Redis    *redis.Client
	Locker   locks.Locker
	Tracer   trace.Tracer
	Engine   *Engine

	closers []func(context.Context) error
}

// NewRuntime opens everything the common flags describe. On error the
// already opened resources are closed.
func NewRuntime(ctx context.Context, command *cli.Command, serviceName string, logger *slog.Logger) (*Runtime, error) {
	r := &Runtime{Logger: logger}

	err := r.open(ctx, command, serviceName)
	if err != nil {
		r.Close(ctx)

		return nil, err
	}

	return r, nil
}

func (r *Runtime) open(ctx context.Context, command *cli.Command, serviceName string) error {
	var err error

	r.Config, err = LoadConfig(command)
	if err != nil {
		return err
	}

	tracer, shutdown, err := NewTracer(ctx, command.Bool("otel"), serviceName)
	if err != nil {
		return fmt.Errorf("failed to initialize tracer: %w", err)
	}

	r.Tracer = tracer
	r.closers = append(r.closers, shutdown)

	r.Store, err = NewPersistence(ctx, r.Logger, command.String("database-url"))
	if err != nil {
		return err
	}

	r.closers = append(r.closers, r.Store.Close)

	r.Redis, err = NewRedisClient(command.String("redis-url"))
	if err != nil {
		return err
	}

	if r.Redis != nil {
		r.closers = append(r.closers, func(context.Context) error { return r.Redis.Close() })
	}

	r.Locker, err = NewLocker(command.String("lock-backend"), r.Redis, r.Config.Locks)
	if err != nil {
		return err
	}

	r.EventBus, err = NewEventBus(command.String("event-bus"), command.StringSlice("kafka-brokers"), serviceName, r.Logger)
	if err != nil {
		return err
	}

	r.closers = append(r.closers, func(context.Context) error { return r.EventBus.Close() })

	r.Engine = NewEngine(r.Logger, r.Store, r.Locker, r.EventBus, r.Tracer, r.Config)

	return nil
}

// Close releases resources in reverse opening order and logs failures.
func (r *Runtime) Close(ctx context.Context) {
	for i := len(r.closers) - 1; i >= 0; i-- {
		err := r.closers[i](ctx)
		if err != nil {
			r.Logger.ErrorContext(ctx, "Failed to close resource", "error", err)
		}
	}

	r.closers = nil
}
