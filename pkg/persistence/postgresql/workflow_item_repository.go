package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/dukex/wardflow/pkg/models"
	"github.com/dukex/wardflow/pkg/persistence"
	"github.com/lib/pq"
)

// WorkflowItemRepository handles workflow item database operations.
type WorkflowItemRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewWorkflowItemRepository creates a new workflow item repository.
func NewWorkflowItemRepository(db *sql.DB, logger *slog.Logger) *WorkflowItemRepository {
	return &WorkflowItemRepository{db: db, logger: logger}
}

const itemColumns = `id, kind, subject_refs, department_id, priority, payload, status, reason, origin,
	selection_ref, failure_reason, created_at, updated_at, expires_at, resolved_by, resolved_at, version`

func (wr *WorkflowItemRepository) Create(ctx context.Context, item *models.WorkflowItem) error {
	payload, err := json.Marshal(item.Payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	now := time.Now().UTC()
	if item.CreatedAt.IsZero() {
		item.CreatedAt = now
	}

	if item.UpdatedAt.IsZero() {
		item.UpdatedAt = item.CreatedAt
	}

	query := `
		INSERT INTO workflow_items (
			id, kind, subject_refs, department_id, priority, priority_rank, payload, status, reason, origin,
			selection_ref, failure_reason, created_at, updated_at, expires_at, resolved_by, resolved_at, version
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, 1)
		ON CONFLICT (id) DO NOTHING
	`

	result, err := wr.db.ExecContext(ctx, query,
		item.ID,
		item.Kind,
		pq.Array(item.SubjectRefs),
		item.DepartmentID,
		item.Priority,
		item.Priority.Rank(),
		payload,
		item.Status,
		item.Reason,
		item.Origin,
		item.SelectionRef,
		item.FailureReason,
		item.CreatedAt,
		item.UpdatedAt,
		item.ExpiresAt,
		item.ResolvedBy,
		item.ResolvedAt,
	)
	if err != nil {
		return persistence.NewItemError("Create", item.ID, persistence.Unavailable("insert", err))
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return persistence.NewItemError("Create", item.ID, persistence.Unavailable("rows affected", err))
	}

	if affected == 0 {
		return persistence.NewItemError("Create", item.ID, persistence.ErrItemAlreadyExists)
	}

	item.Version = 1

	return nil
}

func (wr *WorkflowItemRepository) Update(ctx context.Context, item *models.WorkflowItem) error {
	payload, err := json.Marshal(item.Payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	query := `
		UPDATE workflow_items SET
			subject_refs = $2,
			department_id = $3,
			priority = $4,
			priority_rank = $5,
			payload = $6,
			status = $7,
			reason = $8,
			selection_ref = $9,
			failure_reason = $10,
			updated_at = $11,
			expires_at = $12,
			resolved_by = $13,
			resolved_at = $14,
			version = version + 1
		WHERE id = $1 AND version = $15
	`

	result, err := wr.db.ExecContext(ctx, query,
		item.ID,
		pq.Array(item.SubjectRefs),
		item.DepartmentID,
		item.Priority,
		item.Priority.Rank(),
		payload,
		item.Status,
		item.Reason,
		item.SelectionRef,
		item.FailureReason,
		item.UpdatedAt,
		item.ExpiresAt,
		item.ResolvedBy,
		item.ResolvedAt,
		item.Version,
	)
	if err != nil {
		return persistence.NewItemError("Update", item.ID, persistence.Unavailable("update", err))
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return persistence.NewItemError("Update", item.ID, persistence.Unavailable("rows affected", err))
	}

	if affected == 0 {
		_, getErr := wr.Get(ctx, item.ID)
		if getErr != nil {
			return getErr
		}

		return persistence.NewItemError("Update", item.ID, persistence.ErrVersionConflict)
	}

	item.Version++

	return nil
}

func (wr *WorkflowItemRepository) Get(ctx context.Context, id string) (*models.WorkflowItem, error) {
	row := wr.db.QueryRowContext(ctx, "SELECT "+itemColumns+" FROM workflow_items WHERE id = $1", id)

	item, err := scanItem(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.NewItemError("Get", id, persistence.ErrItemNotFound)
		}

		return nil, persistence.NewItemError("Get", id, persistence.Unavailable("select", err))
	}

	return item, nil
}

// List returns matching items ordered by priority, then age, then id.
func (wr *WorkflowItemRepository) List(ctx context.Context, filter models.ItemFilter) ([]*models.WorkflowItem, error) {
	var (
		conditions []string
		args       []any
	)

	add := func(condition string, value any) {
		args = append(args, value)
		conditions = append(conditions, strings.ReplaceAll(condition, "?", "$"+strconv.Itoa(len(args))))
	}

	if filter.Kind != "" {
		add("kind = ?", filter.Kind)
	}

	if filter.Status != "" {
		add("status = ?", filter.Status)
	}

	if filter.DepartmentID != "" {
		add("department_id = ?", filter.DepartmentID)
	}

	if filter.SubjectRef != "" {
		add("? = ANY(subject_refs)", filter.SubjectRef)
	}

	if filter.ActiveOnly {
		conditions = append(conditions, "status IN ('pending', 'approved', 'executing')")
	}

	query := "SELECT " + itemColumns + " FROM workflow_items"
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}

	query += " ORDER BY priority_rank DESC, created_at ASC, id ASC"

	rows, err := wr.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, persistence.Unavailable("list workflow items", err)
	}

	defer closeRows(ctx, wr.logger, rows)

	items := make([]*models.WorkflowItem, 0)

	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan workflow item: %w", err)
		}

		items = append(items, item)
	}

	err = rows.Err()
	if err != nil {
		return nil, persistence.Unavailable("iterate workflow items", err)
	}

	return items, nil
}

func scanItem(row scanner) (*models.WorkflowItem, error) {
	var (
		item       models.WorkflowItem
		subjects   pq.StringArray
		payload    []byte
		expiresAt  sql.NullTime
		resolvedAt sql.NullTime
	)

	err := row.Scan(
		&item.ID,
		&item.Kind,
		&subjects,
		&item.DepartmentID,
		&item.Priority,
		&payload,
		&item.Status,
		&item.Reason,
		&item.Origin,
		&item.SelectionRef,
		&item.FailureReason,
		&item.CreatedAt,
		&item.UpdatedAt,
		&expiresAt,
		&item.ResolvedBy,
		&resolvedAt,
		&item.Version,
	)
	if err != nil {
		return nil, err
	}

	item.SubjectRefs = []string(subjects)

	if expiresAt.Valid {
		expires := expiresAt.Time.UTC()
		item.ExpiresAt = &expires
	}

	if resolvedAt.Valid {
		resolved := resolvedAt.Time.UTC()
		item.ResolvedAt = &resolved
	}

	err = json.Unmarshal(payload, &item.Payload)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal payload of %s: %w", item.ID, err)
	}

	return &item, nil
}
