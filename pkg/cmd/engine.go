package cmd

import (
	"log/slog"

	"github.com/dukex/wardflow/pkg/config"
	"github.com/dukex/wardflow/pkg/eventbus"
	"github.com/dukex/wardflow/pkg/generator"
	"github.com/dukex/wardflow/pkg/locks"
	"github.com/dukex/wardflow/pkg/orchestrator"
	"github.com/dukex/wardflow/pkg/persistence"
	"github.com/dukex/wardflow/pkg/registry"
	"github.com/dukex/wardflow/pkg/workflow"
	"go.opentelemetry.io/otel/trace"
)

// Engine holds the components shared by the API and scheduler processes.
type Engine struct {
	Registry     *registry.Registry
	Machine      *workflow.Machine
	Generator    *generator.Generator
	Orchestrator *orchestrator.Orchestrator
}

// NewEngine wires the registry, workflow machine, generator and orchestrator
// over store. publisher may be nil.
func NewEngine(
	logger *slog.Logger,
	store persistence.Persistence,
	locker locks.Locker,
	publisher eventbus.EventPublisher,
	tracer trace.Tracer,
	config config.Config,
) *Engine {
	reg := registry.NewRegistry(logger.With("module", "registry"), store.ResourceRepository())

	machine := workflow.NewMachine(
		logger.With("module", "workflow"),
		store,
		reg,
		locker,
		publisher,
		config.Workflow,
		workflow.WithTracer(tracer),
	)

	gen := generator.New(config.Generator, config.Thresholds)

	orch := orchestrator.New(
		logger.With("module", "orchestrator"),
		reg,
		machine,
		gen,
		config.Thresholds,
		store.EventLogRepository(),
		publisher,
		orchestrator.WithTracer(tracer),
		orchestrator.WithAutoApproval(config.AutoApproval),
	)

	return &Engine{
		Registry:     reg,
		Machine:      machine,
		Generator:    gen,
		Orchestrator: orch,
	}
}
