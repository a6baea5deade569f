package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dukex/wardflow/pkg/models"
	"github.com/dukex/wardflow/pkg/persistence"
)

// ResourceRepository handles resource unit database operations.
type ResourceRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewResourceRepository creates a new resource repository.
func NewResourceRepository(db *sql.DB, logger *slog.Logger) *ResourceRepository {
	return &ResourceRepository{db: db, logger: logger}
}

func tableFor(kind models.ResourceKind) (string, error) {
	switch kind {
	case models.ResourceKindSupply:
		return "supply_units", nil
	case models.ResourceKindStaff:
		return "staff_units", nil
	case models.ResourceKindBed:
		return "bed_units", nil
	case models.ResourceKindEquipment:
		return "equipment_units", nil
	default:
		return "", fmt.Errorf("unknown resource kind %q", kind)
	}
}

const unitColumns = `id, name, department_id, location_id, current_value, min_value, max_value, status, attributes, updated_at`

func (rr *ResourceRepository) ListUnits(ctx context.Context, kind models.ResourceKind) ([]models.ResourceUnit, error) {
	table, err := tableFor(kind)
	if err != nil {
		return nil, err
	}

	rows, err := rr.db.QueryContext(ctx, "SELECT "+unitColumns+" FROM "+table+" ORDER BY id")
	if err != nil {
		return nil, persistence.Unavailable("list "+table, err)
	}

	defer closeRows(ctx, rr.logger, rows)

	var units []models.ResourceUnit

	for rows.Next() {
		unit, err := scanUnit(rows, kind)
		if err != nil {
			return nil, err
		}

		units = append(units, unit)
	}

	err = rows.Err()
	if err != nil {
		return nil, persistence.Unavailable("iterate "+table, err)
	}

	return units, nil
}

func (rr *ResourceRepository) GetUnit(ctx context.Context, kind models.ResourceKind, id string) (*models.ResourceUnit, error) {
	table, err := tableFor(kind)
	if err != nil {
		return nil, err
	}

	row := rr.db.QueryRowContext(ctx, "SELECT "+unitColumns+" FROM "+table+" WHERE id = $1", id)

	unit, err := scanUnit(row, kind)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.NewUnitError("GetUnit", string(kind), id, persistence.ErrUnitNotFound)
		}

		return nil, persistence.NewUnitError("GetUnit", string(kind), id, err)
	}

	return &unit, nil
}

// SaveUnits upserts every unit inside one transaction.
func (rr *ResourceRepository) SaveUnits(ctx context.Context, units ...models.ResourceUnit) error {
	transaction, err := rr.db.BeginTx(ctx, nil)
	if err != nil {
		return persistence.Unavailable("begin SaveUnits", err)
	}

	now := time.Now().UTC()

	for _, unit := range units {
		table, err := tableFor(unit.Kind)
		if err != nil {
			_ = transaction.Rollback()

			return persistence.NewUnitError("SaveUnits", string(unit.Kind), unit.ID, err)
		}

		attributes, err := json.Marshal(unit.Attributes)
		if err != nil {
			_ = transaction.Rollback()

			return fmt.Errorf("failed to marshal attributes of %s: %w", unit.ID, err)
		}

		updatedAt := unit.UpdatedAt
		if updatedAt.IsZero() {
			updatedAt = now
		}

		query := `
			INSERT INTO ` + table + ` (` + unitColumns + `)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
			ON CONFLICT (id) DO UPDATE SET
				name = EXCLUDED.name,
				department_id = EXCLUDED.department_id,
				location_id = EXCLUDED.location_id,
				current_value = EXCLUDED.current_value,
				min_value = EXCLUDED.min_value,
				max_value = EXCLUDED.max_value,
				status = EXCLUDED.status,
				attributes = EXCLUDED.attributes,
				updated_at = EXCLUDED.updated_at
		`

		_, err = transaction.ExecContext(ctx, query,
			unit.ID,
			unit.Name,
			unit.DepartmentID,
			unit.LocationID,
			unit.CurrentValue,
			unit.Bounds.Min,
			unit.Bounds.Max,
			unit.Status,
			attributes,
			updatedAt,
		)
		if err != nil {
			_ = transaction.Rollback()

			return persistence.NewUnitError("SaveUnits", string(unit.Kind), unit.ID, persistence.Unavailable("upsert", err))
		}
	}

	err = transaction.Commit()
	if err != nil {
		return persistence.Unavailable("commit SaveUnits", err)
	}

	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanUnit(row scanner, kind models.ResourceKind) (models.ResourceUnit, error) {
	var (
		unit       models.ResourceUnit
		attributes []byte
		status     string
	)

	err := row.Scan(
		&unit.ID,
		&unit.Name,
		&unit.DepartmentID,
		&unit.LocationID,
		&unit.CurrentValue,
		&unit.Bounds.Min,
		&unit.Bounds.Max,
		&status,
		&attributes,
		&unit.UpdatedAt,
	)
	if err != nil {
		return unit, err
	}

	unit.Kind = kind
	unit.Status = models.UnitStatus(status)

	if len(attributes) > 0 {
		err = json.Unmarshal(attributes, &unit.Attributes)
		if err != nil {
			return unit, fmt.Errorf("failed to unmarshal attributes of %s: %w", unit.ID, err)
		}
	}

	return unit, nil
}
