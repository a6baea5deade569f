// Package scheduler drives orchestration cycles on independent per-domain
// intervals and sweeps expired workflow items.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/dukex/wardflow/pkg/generator"
	"github.com/dukex/wardflow/pkg/metrics"
	"github.com/dukex/wardflow/pkg/models"
	"github.com/dukex/wardflow/pkg/orchestrator"
	"github.com/dukex/wardflow/pkg/persistence"
	"github.com/robfig/cron/v3"
)

// CycleRunner runs one orchestration cycle.
type CycleRunner interface {
	RunCycle(ctx context.Context, domain generator.Domain, opts orchestrator.CycleOptions) (orchestrator.CycleReport, error)
}

// Sweeper expires overdue pending items.
type Sweeper interface {
	ExpireDue(ctx context.Context) (int, error)
}

// RetryConfig bounds the retries of a cycle that hit a transient storage error.
type RetryConfig struct {
	MaxRetries      uint64        `mapstructure:"max_retries"`
	InitialInterval time.Duration `mapstructure:"initial_interval"`
	MaxInterval     time.Duration `mapstructure:"max_interval"`
}

// Config sets the cycle interval per domain. A zero interval disables the domain.
type Config struct {
	Supply    time.Duration `mapstructure:"supply"`
	Staff     time.Duration `mapstructure:"staff"`
	Equipment time.Duration `mapstructure:"equipment"`
	Bed       time.Duration `mapstructure:"bed"`
	Sweep     time.Duration `mapstructure:"sweep"`
	Retry     RetryConfig   `mapstructure:"retry"`
}

func DefaultConfig() Config {
	return Config{
		Supply:    5 * time.Minute,
		Staff:     30 * time.Second,
		Equipment: 2 * time.Minute,
		Bed:       2 * time.Minute,
		Sweep:     time.Minute,
		Retry: RetryConfig{
			MaxRetries:      3,
			InitialInterval: 500 * time.Millisecond,
			MaxInterval:     10 * time.Second,
		},
	}
}

// Interval returns the configured interval of domain.
func (c Config) Interval(domain generator.Domain) time.Duration {
	switch domain {
	case generator.DomainSupply:
		return c.Supply
	case generator.DomainStaff:
		return c.Staff
	case generator.DomainEquipment:
		return c.Equipment
	case generator.DomainBed:
		return c.Bed
	default:
		return 0
	}
}

type Scheduler struct {
	runner  CycleRunner
	sweeper Sweeper
	config  Config
	logger  *slog.Logger
	cron    *cron.Cron
	jobs    map[string]cron.EntryID
	running map[generator.Domain]*atomic.Bool
	mutex   sync.RWMutex
	wg      sync.WaitGroup
	ctx     context.Context
	cancel  context.CancelFunc
}

func New(logger *slog.Logger, runner CycleRunner, sweeper Sweeper, config Config) *Scheduler {
	running := make(map[generator.Domain]*atomic.Bool, len(generator.Domains))
	for _, domain := range generator.Domains {
		running[domain] = &atomic.Bool{}
	}

	return &Scheduler{
		runner:  runner,
		sweeper: sweeper,
		config:  config,
		logger:  logger.With("module", "scheduler"),
		jobs:    make(map[string]cron.EntryID),
		running: running,
	}
}

func (s *Scheduler) Start(ctx context.Context) error {
	s.logger.Info("Starting scheduler")
	s.ctx, s.cancel = context.WithCancel(ctx)

	s.cron = cron.New(cron.WithChain(
		cron.SkipIfStillRunning(cron.DefaultLogger),
		cron.Recover(cron.DefaultLogger),
	))

	for _, domain := range generator.Domains {
		interval := s.config.Interval(domain)
		if interval <= 0 {
			s.logger.Info("Domain cycle disabled", "domain", domain)

			continue
		}

		err := s.addJob(string(domain), interval, func() {
			s.tick(domain)
		})
		if err != nil {
			return err
		}
	}

	if s.sweeper != nil && s.config.Sweep > 0 {
		err := s.addJob("sweep", s.config.Sweep, s.sweep)
		if err != nil {
			return err
		}
	}

	s.cron.Start()
	s.logger.Info("Scheduler started", "jobs", len(s.jobs))

	return nil
}

func (s *Scheduler) addJob(name string, interval time.Duration, job func()) error {
	spec := "@every " + interval.String()

	entryID, err := s.cron.AddFunc(spec, job)
	if err != nil {
		return fmt.Errorf("failed to add cron job %s: %w", name, err)
	}

	s.mutex.Lock()
	s.jobs[name] = entryID
	s.mutex.Unlock()

	s.logger.Info("Added cron job", "job", name, "spec", spec, "entry_id", entryID)

	return nil
}

// Stop halts the cron and waits for running cycles or ctx, whichever ends first.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.logger.Info("Stopping scheduler")

	if s.cancel != nil {
		s.cancel()
	}

	done := make(chan struct{})

	go func() {
		if s.cron != nil {
			<-s.cron.Stop().Done()
		}

		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}

	s.mutex.Lock()
	s.jobs = make(map[string]cron.EntryID)
	s.mutex.Unlock()

	s.logger.Info("Scheduler stopped")

	return nil
}

// ForceCycle runs domain immediately in the background with forced semantics.
// It reports false when a cycle of the domain is already running.
func (s *Scheduler) ForceCycle(ctx context.Context, domain generator.Domain, reason string) (bool, error) {
	flag, ok := s.running[domain]
	if !ok {
		return false, fmt.Errorf("%w: %q", orchestrator.ErrUnknownDomain, domain)
	}

	if !flag.CompareAndSwap(false, true) {
		s.skipped(domain, true)

		return false, nil
	}

	runCtx := s.baseContext(ctx)

	s.wg.Add(1)

	go func() {
		defer s.wg.Done()
		defer flag.Store(false)

		s.run(runCtx, domain, orchestrator.CycleOptions{Forced: true, Reason: reason})
	}()

	return true, nil
}

// HandleForceRequest consumes force requests published by processes that do
// not run a scheduler.
func (s *Scheduler) HandleForceRequest(ctx context.Context, event models.WorkflowEvent) error {
	if event.Type != models.EventForceRequested {
		return nil
	}

	_, err := s.ForceCycle(ctx, generator.Domain(event.Domain), event.Reason)
	if errors.Is(err, orchestrator.ErrUnknownDomain) {
		s.logger.WarnContext(ctx, "Ignoring force request", "event_id", event.ID, "error", err)

		return nil
	}

	return err
}

func (s *Scheduler) baseContext(ctx context.Context) context.Context {
	if s.ctx != nil {
		return s.ctx
	}

	return context.WithoutCancel(ctx)
}

func (s *Scheduler) tick(domain generator.Domain) {
	flag := s.running[domain]
	if !flag.CompareAndSwap(false, true) {
		s.skipped(domain, false)

		return
	}
	defer flag.Store(false)

	s.run(s.ctx, domain, orchestrator.CycleOptions{})
}

func (s *Scheduler) skipped(domain generator.Domain, forced bool) {
	metrics.ObserveCycle(string(domain), "skipped", 0)
	s.logger.Info("Cycle still running, skipping", "domain", domain, "forced", forced)
}

// run executes one cycle, retrying transient storage errors with exponential backoff.
// Errors stay within the domain.
func (s *Scheduler) run(ctx context.Context, domain generator.Domain, opts orchestrator.CycleOptions) {
	logger := s.logger.With("domain", domain, "forced", opts.Forced)
	started := time.Now()

	operation := func() error {
		_, err := s.runner.RunCycle(ctx, domain, opts)
		if err != nil && !persistence.IsTransient(err) {
			return backoff.Permanent(err)
		}

		return err
	}

	notify := func(err error, wait time.Duration) {
		logger.WarnContext(ctx, "Cycle hit a transient error, retrying", "error", err, "retry_in", wait)
	}

	err := backoff.RetryNotify(operation, s.retryPolicy(ctx), notify)
	if err != nil {
		metrics.ObserveCycle(string(domain), "error", time.Since(started))
		logger.ErrorContext(ctx, "Cycle failed", "error", err)

		return
	}

	metrics.ObserveCycle(string(domain), "ok", time.Since(started))
}

func (s *Scheduler) retryPolicy(ctx context.Context) backoff.BackOff {
	exponential := backoff.NewExponentialBackOff()
	exponential.MaxElapsedTime = 0

	if s.config.Retry.InitialInterval > 0 {
		exponential.InitialInterval = s.config.Retry.InitialInterval
	}

	if s.config.Retry.MaxInterval > 0 {
		exponential.MaxInterval = s.config.Retry.MaxInterval
	}

	return backoff.WithContext(backoff.WithMaxRetries(exponential, s.config.Retry.MaxRetries), ctx)
}

func (s *Scheduler) sweep() {
	expired, err := s.sweeper.ExpireDue(s.ctx)
	if err != nil {
		s.logger.ErrorContext(s.ctx, "Expiry sweep failed", "error", err)

		return
	}

	if expired > 0 {
		s.logger.InfoContext(s.ctx, "Expired overdue items", "count", expired)
	}
}
