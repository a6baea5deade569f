package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/dukex/wardflow/pkg/models"
	"github.com/dukex/wardflow/pkg/persistence"
)

// EventLogRepository stores the append-only workflow_events log.
type EventLogRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewEventLogRepository creates a new event log repository.
func NewEventLogRepository(db *sql.DB, logger *slog.Logger) *EventLogRepository {
	return &EventLogRepository{db: db, logger: logger}
}

func (er *EventLogRepository) Append(ctx context.Context, event models.WorkflowEvent) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event %s: %w", event.ID, err)
	}

	query := `
		INSERT INTO workflow_events (id, event_type, item_id, body, occurred_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO NOTHING
	`

	_, err = er.db.ExecContext(ctx, query, event.ID, event.Type, event.ItemID, body, event.Timestamp)
	if err != nil {
		return persistence.Unavailable("append event "+event.ID, err)
	}

	return nil
}

func (er *EventLogRepository) Since(ctx context.Context, since time.Time) ([]models.WorkflowEvent, error) {
	rows, err := er.db.QueryContext(ctx,
		"SELECT body FROM workflow_events WHERE occurred_at >= $1 ORDER BY occurred_at ASC, recorded_at ASC", since)
	if err != nil {
		return nil, persistence.Unavailable("query events", err)
	}

	defer closeRows(ctx, er.logger, rows)

	events := make([]models.WorkflowEvent, 0)

	for rows.Next() {
		var body []byte

		err := rows.Scan(&body)
		if err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}

		var event models.WorkflowEvent

		err = json.Unmarshal(body, &event)
		if err != nil {
			return nil, fmt.Errorf("failed to unmarshal event: %w", err)
		}

		events = append(events, event)
	}

	err = rows.Err()
	if err != nil {
		return nil, persistence.Unavailable("iterate events", err)
	}

	return events, nil
}
