package postgresql_test

import (
	"context"
	"database/sql"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/dukex/wardflow/pkg/models"
	"github.com/dukex/wardflow/pkg/persistence"
	"github.com/dukex/wardflow/pkg/persistence/postgresql"
	"github.com/google/uuid"
	_ "github.com/lib/pq"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
)

var postgresContainer *postgres.PostgresContainer

func dropDb(ctx context.Context, t *testing.T, databaseURL string) {
	t.Helper()

	db, err := sql.Open("postgres", databaseURL)
	require.NoError(t, err)

	for _, table := range []string{
		"workflow_events", "workflow_items", "supply_units", "staff_units", "bed_units", "equipment_units",
		"schema_migrations",
	} {
		_, err = db.ExecContext(ctx, "DROP TABLE IF EXISTS "+table+" CASCADE")
		require.NoError(t, err)
	}

	err = db.Close()
	require.NoError(t, err)
}

func setupTestDB(t *testing.T) (*postgresql.Persistence, context.Context, string) {
	t.Helper()

	if testing.Short() {
		t.Skip("skipping postgres container tests in short mode")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 120*time.Second)

	if postgresContainer == nil || !postgresContainer.IsRunning() {
		var err error

		postgresContainer, err = postgres.Run(ctx,
			"postgres:16-alpine",
			postgres.WithDatabase("wardflow_test"),
			postgres.WithUsername("wardflow"),
			postgres.WithPassword("wardflow"),
			postgres.BasicWaitStrategies(),
		)
		require.NoError(t, err)
	}

	databaseURL, err := postgresContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	dropDb(ctx, t, databaseURL)

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))

	store, err := postgresql.NewPersistence(ctx, logger, databaseURL)
	require.NoError(t, err)

	t.Cleanup(func() {
		dropDb(ctx, t, databaseURL)

		err = store.Close(ctx)
		require.NoError(t, err)

		cancel()
	})

	return store, ctx, databaseURL
}

func TestNewPersistence_Migrations(t *testing.T) {
	store, ctx, databaseURL := setupTestDB(t)

	require.NoError(t, store.HealthCheck(ctx))

	db, err := sql.Open("postgres", databaseURL)
	require.NoError(t, err)

	defer db.Close()

	var version int
	err = db.QueryRowContext(ctx, "SELECT MAX(version) FROM schema_migrations").Scan(&version)
	require.NoError(t, err)
	assert.Equal(t, 3, version)

	for _, table := range []string{"supply_units", "staff_units", "bed_units", "equipment_units", "workflow_items", "workflow_events"} {
		var exists bool
		err = db.QueryRowContext(ctx,
			"SELECT EXISTS (SELECT FROM information_schema.tables WHERE table_name = $1)", table).Scan(&exists)
		require.NoError(t, err)
		assert.True(t, exists, table)
	}
}

func TestResourceRepository_RoundTrip(t *testing.T) {
	store, ctx, _ := setupTestDB(t)
	repo := store.ResourceRepository()

	shiftEnd := time.Date(2026, 3, 1, 19, 0, 0, 0, time.UTC)

	require.NoError(t, repo.SaveUnits(ctx,
		models.ResourceUnit{
			ID: "gauze-ward-a", Kind: models.ResourceKindSupply, Name: "Gauze", DepartmentID: "ward-a",
			CurrentValue: 12, Bounds: models.Bounds{Min: 10, Max: 100}, Status: models.UnitStatusActive,
			Attributes: models.UnitAttributes{ItemCode: "GZ-10", ReorderPoint: 20, UnitCost: decimal.RequireFromString("1.25")},
		},
		models.ResourceUnit{
			ID: "nurse-1", Kind: models.ResourceKindStaff, Name: "Nurse One", DepartmentID: "icu",
			Status:     models.UnitStatusActive,
			Attributes: models.UnitAttributes{Role: "nurse", CurrentPatients: 3, MaxPatients: 6, ShiftEnd: &shiftEnd},
		},
	))

	supplies, err := repo.ListUnits(ctx, models.ResourceKindSupply)
	require.NoError(t, err)
	require.Len(t, supplies, 1)
	assert.Equal(t, models.ResourceKindSupply, supplies[0].Kind)
	assert.Equal(t, 100, supplies[0].Bounds.Max)
	assert.True(t, supplies[0].Attributes.UnitCost.Equal(decimal.RequireFromString("1.25")))

	nurse, err := repo.GetUnit(ctx, models.ResourceKindStaff, "nurse-1")
	require.NoError(t, err)
	require.NotNil(t, nurse.Attributes.ShiftEnd)
	assert.True(t, shiftEnd.Equal(*nurse.Attributes.ShiftEnd))

	_, err = repo.GetUnit(ctx, models.ResourceKindBed, "nurse-1")
	assert.True(t, persistence.IsUnitNotFound(err))
}

func TestWorkflowItemRepository_RoundTrip(t *testing.T) {
	store, ctx, _ := setupTestDB(t)
	repo := store.WorkflowItemRepository()

	expires := time.Now().UTC().Add(30 * time.Minute).Truncate(time.Microsecond)
	item := &models.WorkflowItem{
		ID:           uuid.NewString(),
		Kind:         models.ItemKindReallocation,
		SubjectRefs:  []string{"nurse-1", "nurse-2"},
		DepartmentID: "icu",
		Priority:     models.PriorityHigh,
		Status:       models.ItemStatusPending,
		Origin:       models.OriginCycle,
		Reason:       "workload 92",
		ExpiresAt:    &expires,
		Payload: models.Payload{Reallocation: &models.ReallocationPayload{
			FromStaffID: "nurse-1", ToStaffID: "nurse-2", LoadToMove: 8,
		}},
	}

	require.NoError(t, repo.Create(ctx, item))
	require.ErrorIs(t, repo.Create(ctx, item), persistence.ErrItemAlreadyExists)

	stored, err := repo.Get(ctx, item.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"nurse-1", "nurse-2"}, stored.SubjectRefs)
	assert.Equal(t, 8, stored.Payload.Reallocation.LoadToMove)
	require.NotNil(t, stored.ExpiresAt)
	assert.True(t, expires.Equal(*stored.ExpiresAt))

	item.Status = models.ItemStatusRejected
	require.NoError(t, repo.Update(ctx, item))
	assert.Equal(t, 2, item.Version)

	stored.Status = models.ItemStatusApproved
	assert.True(t, persistence.IsVersionConflict(repo.Update(ctx, stored)))

	bySubject, err := repo.List(ctx, models.ItemFilter{SubjectRef: "nurse-2"})
	require.NoError(t, err)
	require.Len(t, bySubject, 1)

	active, err := repo.List(ctx, models.ItemFilter{ActiveOnly: true})
	require.NoError(t, err)
	assert.Empty(t, active)
}

func TestWorkflowItemRepository_ListOrder(t *testing.T) {
	store, ctx, _ := setupTestDB(t)
	repo := store.WorkflowItemRepository()
	base := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)

	for i, priority := range []models.Priority{models.PriorityLow, models.PriorityCritical, models.PriorityHigh} {
		require.NoError(t, repo.Create(ctx, &models.WorkflowItem{
			ID:        string(priority),
			Kind:      models.ItemKindReorder,
			Priority:  priority,
			Status:    models.ItemStatusPending,
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
			Payload:   models.Payload{Reorder: &models.ReorderPayload{UnitID: "u"}},
		}))
	}

	items, err := repo.List(ctx, models.ItemFilter{Kind: models.ItemKindReorder})
	require.NoError(t, err)
	require.Len(t, items, 3)
	assert.Equal(t, "critical", items[0].ID)
	assert.Equal(t, "high", items[1].ID)
	assert.Equal(t, "low", items[2].ID)
}

func TestEventLogRepository_Append(t *testing.T) {
	store, ctx, _ := setupTestDB(t)
	repo := store.EventLogRepository()
	base := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)

	event := models.WorkflowEvent{ID: "item-1:pending", Type: models.EventItemCreated, ItemID: "item-1", Timestamp: base}

	require.NoError(t, repo.Append(ctx, event))
	require.NoError(t, repo.Append(ctx, event))
	require.NoError(t, repo.Append(ctx, models.WorkflowEvent{
		ID: "item-1:approved", Type: models.EventItemTransitioned, ItemID: "item-1", Timestamp: base.Add(time.Minute),
	}))

	events, err := repo.Since(ctx, base)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, "item-1:pending", events[0].ID)
}
