// Package config loads the engine configuration from YAML with WARDFLOW_
// environment overrides.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dukex/wardflow/pkg/evaluator"
	"github.com/dukex/wardflow/pkg/generator"
	"github.com/dukex/wardflow/pkg/orchestrator"
	"github.com/dukex/wardflow/pkg/scheduler"
	"github.com/dukex/wardflow/pkg/workflow"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes environment overrides, e.g. WARDFLOW_SCHEDULER_STAFF=1m.
const EnvPrefix = "WARDFLOW"

// LockConfig tunes the resolution locks.
type LockConfig struct {
	Timeout time.Duration `mapstructure:"timeout"`
	TTL     time.Duration `mapstructure:"ttl"`
}

// EventConfig tunes event consumers.
type EventConfig struct {
	DedupTTL time.Duration `mapstructure:"dedup_ttl"`
}

type Config struct {
	Thresholds   evaluator.Thresholds            `mapstructure:"thresholds"`
	Generator    generator.Config                `mapstructure:"generator"`
	Workflow     workflow.Config                 `mapstructure:"workflow"`
	Scheduler    scheduler.Config                `mapstructure:"scheduler"`
	AutoApproval orchestrator.AutoApprovalPolicy `mapstructure:"auto_approval"`
	Locks        LockConfig                      `mapstructure:"locks"`
	Events       EventConfig                     `mapstructure:"events"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		Thresholds: evaluator.DefaultThresholds(),
		Generator:  generator.DefaultConfig(),
		Workflow:   workflow.DefaultConfig(),
		Scheduler:  scheduler.DefaultConfig(),
		AutoApproval: orchestrator.AutoApprovalPolicy{
			Actor: orchestrator.DefaultAutoApprovalActor,
		},
		Locks: LockConfig{
			Timeout: 2 * time.Second,
			TTL:     30 * time.Second,
		},
		Events: EventConfig{
			DedupTTL: 24 * time.Hour,
		},
	}
}

// Load reads path, when set, over the defaults and applies environment overrides.
func Load(path string) (Config, error) {
	v := viper.New()
	setDefaults(v, Default())

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)

		err := v.ReadInConfig()
		if err != nil {
			return Config{}, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
	}

	var config Config

	err := v.Unmarshal(&config)
	if err != nil {
		return Config{}, fmt.Errorf("failed to decode config: %w", err)
	}

	return config, nil
}

// setDefaults registers every leaf key so AutomaticEnv can override it.
func setDefaults(v *viper.Viper, d Config) {
	v.SetDefault("thresholds.supply_high_ratio", d.Thresholds.SupplyHighRatio)
	v.SetDefault("thresholds.overloaded", d.Thresholds.Overloaded)
	v.SetDefault("thresholds.critical_overload", d.Thresholds.CriticalOverload)
	v.SetDefault("thresholds.available", d.Thresholds.Available)
	v.SetDefault("thresholds.role_weights", d.Thresholds.RoleWeights)

	v.SetDefault("generator.max_order_size", d.Generator.MaxOrderSize)
	v.SetDefault("generator.ttl", d.Generator.TTL)
	v.SetDefault("generator.forced_ttl", d.Generator.ForcedTTL)
	v.SetDefault("generator.compatible_departments", d.Generator.CompatibleDepartments)
	v.SetDefault("generator.staffing_rules", d.Generator.StaffingRules)
	v.SetDefault("generator.shift_lookahead", d.Generator.ShiftLookahead)
	v.SetDefault("generator.shift_extension", d.Generator.ShiftExtension)

	requireSelection := make([]string, 0, len(d.Workflow.RequireSelection))
	for _, kind := range d.Workflow.RequireSelection {
		requireSelection = append(requireSelection, string(kind))
	}

	v.SetDefault("workflow.require_selection", requireSelection)
	v.SetDefault("workflow.manual_ttl", d.Workflow.ManualTTL)

	v.SetDefault("scheduler.supply", d.Scheduler.Supply)
	v.SetDefault("scheduler.staff", d.Scheduler.Staff)
	v.SetDefault("scheduler.equipment", d.Scheduler.Equipment)
	v.SetDefault("scheduler.bed", d.Scheduler.Bed)
	v.SetDefault("scheduler.sweep", d.Scheduler.Sweep)
	v.SetDefault("scheduler.retry.max_retries", d.Scheduler.Retry.MaxRetries)
	v.SetDefault("scheduler.retry.initial_interval", d.Scheduler.Retry.InitialInterval)
	v.SetDefault("scheduler.retry.max_interval", d.Scheduler.Retry.MaxInterval)

	v.SetDefault("auto_approval.enabled", d.AutoApproval.Enabled)
	v.SetDefault("auto_approval.actor", d.AutoApproval.Actor)
	v.SetDefault("auto_approval.rules", []map[string]any{})

	v.SetDefault("locks.timeout", d.Locks.Timeout)
	v.SetDefault("locks.ttl", d.Locks.TTL)

	v.SetDefault("events.dedup_ttl", d.Events.DedupTTL)
}

// Validate reports every inconsistent setting.
func (c Config) Validate() error {
	var errs []error

	th := c.Thresholds
	if th.SupplyHighRatio <= 0 || th.SupplyHighRatio > 1 {
		errs = append(errs, fmt.Errorf("thresholds.supply_high_ratio must be in (0, 1], got %v", th.SupplyHighRatio))
	}

	if th.Available <= 0 || th.Available >= th.Overloaded || th.Overloaded > th.CriticalOverload || th.CriticalOverload > 100 {
		errs = append(errs, fmt.Errorf("thresholds must satisfy 0 < available < overloaded <= critical_overload <= 100, got %d, %d, %d",
			th.Available, th.Overloaded, th.CriticalOverload))
	}

	if c.Generator.TTL <= 0 || c.Generator.ForcedTTL <= 0 {
		errs = append(errs, errors.New("generator.ttl and generator.forced_ttl must be positive"))
	}

	if c.Generator.MaxOrderSize < 0 {
		errs = append(errs, errors.New("generator.max_order_size must not be negative"))
	}

	for department, rules := range c.Generator.StaffingRules {
		for _, rule := range rules {
			if rule.MinOccupancyRate < 0 || rule.MinOccupancyRate > 1 || rule.MinActiveStaff < 0 {
				errs = append(errs, fmt.Errorf("generator.staffing_rules.%s has an invalid rule %+v", department, rule))
			}
		}
	}

	for _, kind := range c.Workflow.RequireSelection {
		if !kind.Valid() {
			errs = append(errs, fmt.Errorf("workflow.require_selection has unknown kind %q", kind))
		}
	}

	if c.Workflow.ManualTTL < 0 {
		errs = append(errs, errors.New("workflow.manual_ttl must not be negative"))
	}

	for _, domain := range generator.Domains {
		if c.Scheduler.Interval(domain) < 0 {
			errs = append(errs, fmt.Errorf("scheduler.%s must not be negative", domain))
		}
	}

	if c.Scheduler.Sweep < 0 {
		errs = append(errs, errors.New("scheduler.sweep must not be negative"))
	}

	for i, rule := range c.AutoApproval.Rules {
		if !rule.Kind.Valid() {
			errs = append(errs, fmt.Errorf("auto_approval.rules[%d] has unknown kind %q", i, rule.Kind))
		}

		if rule.MinPriority != "" && !rule.MinPriority.Valid() {
			errs = append(errs, fmt.Errorf("auto_approval.rules[%d] has unknown priority %q", i, rule.MinPriority))
		}

		if rule.MaxEstimatedCost < 0 {
			errs = append(errs, fmt.Errorf("auto_approval.rules[%d].max_estimated_cost must not be negative", i))
		}
	}

	if c.Locks.Timeout <= 0 {
		errs = append(errs, errors.New("locks.timeout must be positive"))
	}

	if c.Locks.TTL < c.Locks.Timeout {
		errs = append(errs, errors.New("locks.ttl must be at least locks.timeout"))
	}

	if c.Events.DedupTTL <= 0 {
		errs = append(errs, errors.New("events.dedup_ttl must be positive"))
	}

	return errors.Join(errs...)
}
