package orchestrator

import (
	"context"
	"fmt"
	"math/rand/v2"
	"sync"
	"testing"
	"time"

	"github.com/dukex/wardflow/pkg/evaluator"
	"github.com/dukex/wardflow/pkg/generator"
	"github.com/dukex/wardflow/pkg/locks"
	"github.com/dukex/wardflow/pkg/log"
	"github.com/dukex/wardflow/pkg/mocks"
	"github.com/dukex/wardflow/pkg/models"
	"github.com/dukex/wardflow/pkg/persistence/file"
	"github.com/dukex/wardflow/pkg/registry"
	"github.com/dukex/wardflow/pkg/testutil"
	"github.com/dukex/wardflow/pkg/workflow"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	orchestrator *Orchestrator
	machine      *workflow.Machine
	store        *file.Persistence
	bus          *mocks.MockEventBus
}

func newFixture(t *testing.T, policy AutoApprovalPolicy, units ...models.ResourceUnit) *fixture {
	t.Helper()

	ctx := context.Background()
	logger := log.WithModule("test")
	store := file.NewPersistence(t.TempDir())

	require.NoError(t, store.ResourceRepository().SaveUnits(ctx, units...))

	bus := &mocks.MockEventBus{}
	bus.On("Publish", mock.Anything, mock.Anything).Return(nil)

	clock := func() time.Time { return testutil.Now }
	reg := registry.NewRegistry(logger, store.ResourceRepository())
	machine := workflow.NewMachine(logger, store, reg, locks.NewMemory(time.Second), bus,
		workflow.DefaultConfig(), workflow.WithClock(clock))

	o := New(logger, reg, machine, generator.New(generator.DefaultConfig(), evaluator.DefaultThresholds()),
		evaluator.DefaultThresholds(), store.EventLogRepository(), bus,
		WithClock(clock), WithAutoApproval(policy))

	return &fixture{orchestrator: o, machine: machine, store: store, bus: bus}
}

func (f *fixture) eventTypes(t *testing.T) []models.EventType {
	t.Helper()

	logged, err := f.store.EventLogRepository().Since(context.Background(), time.Time{})
	require.NoError(t, err)

	types := make([]models.EventType, 0, len(logged))
	for _, event := range logged {
		types = append(types, event.Type)
	}

	return types
}

func TestRunCycle_CreatesReorderOnce(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, AutoApprovalPolicy{}, testutil.CreateSupplyUnit("s-1", "gauze", 0))

	report, err := f.orchestrator.RunCycle(ctx, generator.DomainSupply, CycleOptions{})
	require.NoError(t, err)
	assert.Equal(t, 1, report.Created)
	assert.Equal(t, 0, report.AutoApproved)

	items, err := f.machine.List(ctx, models.ItemFilter{Kind: models.ItemKindReorder})
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, models.PriorityCritical, items[0].Priority)
	assert.Equal(t, models.OriginCycle, items[0].Origin)
	assert.Equal(t, 100, items[0].Payload.Reorder.SuggestedQuantity)

	again, err := f.orchestrator.RunCycle(ctx, generator.DomainSupply, CycleOptions{})
	require.NoError(t, err)
	assert.Equal(t, 0, again.Created)

	items, err = f.machine.List(ctx, models.ItemFilter{Kind: models.ItemKindReorder})
	require.NoError(t, err)
	assert.Len(t, items, 1)

	assert.Contains(t, f.eventTypes(t), models.EventCycleCompleted)
}

func TestRunCycle_ForcedElevatesPriority(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, AutoApprovalPolicy{}, testutil.CreateSupplyUnit("s-1", "gauze", 15))

	report, err := f.orchestrator.RunCycle(ctx, generator.DomainSupply, CycleOptions{Forced: true, Reason: "audit"})
	require.NoError(t, err)
	assert.True(t, report.Forced)
	require.Equal(t, 1, report.Created)

	items, err := f.machine.List(ctx, models.ItemFilter{Kind: models.ItemKindReorder})
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, models.OriginForcedCycle, items[0].Origin)
	assert.Equal(t, models.PriorityHigh, items[0].Priority)
	assert.Contains(t, items[0].Reason, "audit")
}

func TestRunCycle_CoverageGapIsAnnounced(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, AutoApprovalPolicy{}, testutil.CreateStaffUnit("n-1", "icu", 12, 12))

	report, err := f.orchestrator.RunCycle(ctx, generator.DomainStaff, CycleOptions{})
	require.NoError(t, err)
	assert.Equal(t, 0, report.Created)
	assert.Equal(t, 1, report.Alerts)

	assert.Contains(t, f.eventTypes(t), models.EventCoverageGap)
}

func TestRunCycle_AutoApprovesReorder(t *testing.T) {
	ctx := context.Background()
	policy := AutoApprovalPolicy{
		Enabled: true,
		Rules:   []AutoApprovalRule{{Kind: models.ItemKindReorder, MinPriority: models.PriorityHigh, MaxEstimatedCost: 500}},
	}
	f := newFixture(t, policy, testutil.CreateSupplyUnit("s-1", "gauze", 0))

	report, err := f.orchestrator.RunCycle(ctx, generator.DomainSupply, CycleOptions{})
	require.NoError(t, err)
	assert.Equal(t, 1, report.AutoApproved)

	reorders, err := f.machine.List(ctx, models.ItemFilter{Kind: models.ItemKindReorder})
	require.NoError(t, err)
	require.Len(t, reorders, 1)
	assert.Equal(t, models.ItemStatusCompleted, reorders[0].Status)
	assert.Equal(t, DefaultAutoApprovalActor, reorders[0].ResolvedBy)

	orders, err := f.machine.List(ctx, models.ItemFilter{Kind: models.ItemKindPurchaseOrder})
	require.NoError(t, err)
	require.Len(t, orders, 1)
	assert.Equal(t, "supplier-1", orders[0].Payload.PurchaseOrder.SupplierID)
}

func TestRunCycle_UnknownDomain(t *testing.T) {
	f := newFixture(t, AutoApprovalPolicy{})

	_, err := f.orchestrator.RunCycle(context.Background(), generator.Domain("pharmacy"), CycleOptions{})
	assert.ErrorIs(t, err, ErrUnknownDomain)
}

func TestAutoApprovalPolicy_Decide(t *testing.T) {
	policy := AutoApprovalPolicy{
		Enabled: true,
		Rules: []AutoApprovalRule{
			{Kind: models.ItemKindReorder, MinPriority: models.PriorityHigh, MaxEstimatedCost: 100},
			{Kind: models.ItemKindTransfer},
		},
	}

	tests := []struct {
		name      string
		item      *models.WorkflowItem
		selection string
		ok        bool
	}{
		{
			name:      "reorder within limits",
			item:      testutil.CreateReorderItem("s-1", 10, testutil.WithPriority(models.PriorityCritical)),
			selection: "supplier-1",
			ok:        true,
		},
		{
			name: "reorder below priority",
			item: testutil.CreateReorderItem("s-1", 10, testutil.WithPriority(models.PriorityMedium)),
		},
		{
			name: "reorder over cost cap",
			item: testutil.CreateReorderItem("s-1", 100, testutil.WithPriority(models.PriorityCritical)),
		},
		{
			name: "reorder without preferred supplier",
			item: testutil.CreateReorderItem("s-1", 10, testutil.WithPriority(models.PriorityCritical),
				func(i *models.WorkflowItem) { i.Payload.Reorder.ProposedSupplierID = "" }),
		},
		{
			name: "transfer matches any priority",
			item: testutil.CreateTransferItem("a", "b", 5),
			ok:   true,
		},
		{
			name: "no rule for kind",
			item: testutil.CreateReallocationItem("a", "b", 2),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			selection, ok := policy.Decide(tt.item)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.selection, selection)
		})
	}

	_, ok := AutoApprovalPolicy{Rules: policy.Rules}.Decide(testutil.CreateTransferItem("a", "b", 5))
	assert.False(t, ok, "disabled policy approves nothing")
}

func randomUnits(rng *rand.Rand) []models.ResourceUnit {
	var units []models.ResourceUnit

	for i := range 6 {
		code := []string{"gauze", "saline"}[i%2]
		units = append(units, testutil.CreateSupplyUnit(fmt.Sprintf("s-%d", i), code, rng.IntN(100)))
	}

	for i := range 6 {
		units = append(units, testutil.CreateStaffUnit(fmt.Sprintf("n-%d", i), "icu", 0, 0,
			testutil.WithWorkload(rng.IntN(101))))
	}

	return units
}

// resolvePending approves or rejects a random pending item of the cycle kinds.
func resolvePending(ctx context.Context, t *testing.T, f *fixture, rng *rand.Rand) {
	pending, err := f.machine.List(ctx, models.ItemFilter{Status: models.ItemStatusPending})
	if !assert.NoError(t, err) || len(pending) == 0 {
		return
	}

	item := pending[rng.IntN(len(pending))]

	target := models.ItemStatusApproved
	if rng.IntN(4) == 0 {
		target = models.ItemStatusRejected
	}

	_, err = f.machine.Transition(ctx, item.ID, target, "charge-nurse",
		workflow.TransitionOptions{SelectionRef: "supplier-1"})
	if err != nil {
		assert.True(t, workflow.IsInvalidTransition(err) || workflow.IsConcurrencyConflict(err), err.Error())
	}
}

func TestRunCycle_ConcurrentCyclesAndApprovalsNeverDoubleBook(t *testing.T) {
	for seed := range uint64(5) {
		t.Run(fmt.Sprintf("seed %d", seed), func(t *testing.T) {
			ctx := context.Background()
			f := newFixture(t, AutoApprovalPolicy{}, randomUnits(rand.New(rand.NewPCG(seed, 1)))...)

			var wg sync.WaitGroup

			for worker := range 4 {
				wg.Add(1)

				go func() {
					defer wg.Done()

					rng := rand.New(rand.NewPCG(seed, uint64(worker)+10))

					for range 10 {
						domain := generator.DomainSupply
						if rng.IntN(2) == 0 {
							domain = generator.DomainStaff
						}

						_, err := f.orchestrator.RunCycle(ctx, domain, CycleOptions{Forced: rng.IntN(3) == 0})
						if err != nil {
							assert.True(t, workflow.IsConcurrencyConflict(err), err.Error())
						}

						resolvePending(ctx, t, f, rng)
					}
				}()
			}

			wg.Wait()

			items, err := f.machine.List(ctx, models.ItemFilter{ActiveOnly: true})
			require.NoError(t, err)

			active := make(map[string]string)

			for _, item := range items {
				for _, ref := range item.SubjectRefs {
					key := string(item.Kind) + "/" + ref

					other, taken := active[key]
					assert.False(t, taken, "%s is subject of active %s items %s and %s", ref, item.Kind, other, item.ID)

					active[key] = item.ID
				}
			}
		})
	}
}
