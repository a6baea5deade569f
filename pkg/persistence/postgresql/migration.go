package postgresql

import (
	"fmt"
	"strings"
)

var unitTables = []string{"supply_units", "staff_units", "bed_units", "equipment_units"}

func migrations() map[int]string {
	var units strings.Builder

	for _, table := range unitTables {
		fmt.Fprintf(&units, `
			CREATE TABLE %[1]s (
				id VARCHAR(255) PRIMARY KEY,
				name VARCHAR(255) NOT NULL DEFAULT '',
				department_id VARCHAR(255) NOT NULL DEFAULT '',
				location_id VARCHAR(255) NOT NULL DEFAULT '',
				current_value INTEGER NOT NULL DEFAULT 0,
				min_value INTEGER NOT NULL DEFAULT 0,
				max_value INTEGER NOT NULL DEFAULT 0,
				status VARCHAR(50) NOT NULL,
				attributes JSONB NOT NULL DEFAULT '{}',
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL
			);

			CREATE INDEX idx_%[1]s_department ON %[1]s(department_id);
		`, table)
	}

	return map[int]string{
		1: units.String(),
		2: `
			CREATE TABLE workflow_items (
				id VARCHAR(255) PRIMARY KEY,
				kind VARCHAR(50) NOT NULL,
				subject_refs TEXT[] NOT NULL DEFAULT '{}',
				department_id VARCHAR(255) NOT NULL DEFAULT '',
				priority VARCHAR(20) NOT NULL,
				priority_rank INTEGER NOT NULL,
				payload JSONB NOT NULL,
				status VARCHAR(20) NOT NULL,
				reason TEXT NOT NULL DEFAULT '',
				origin VARCHAR(20) NOT NULL DEFAULT '',
				selection_ref VARCHAR(255) NOT NULL DEFAULT '',
				failure_reason TEXT NOT NULL DEFAULT '',
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL,
				expires_at TIMESTAMP WITH TIME ZONE,
				resolved_by VARCHAR(255) NOT NULL DEFAULT '',
				resolved_at TIMESTAMP WITH TIME ZONE,
				version INTEGER NOT NULL DEFAULT 1
			);

			CREATE INDEX idx_workflow_items_status ON workflow_items(status);
			CREATE INDEX idx_workflow_items_kind ON workflow_items(kind);
			CREATE INDEX idx_workflow_items_department ON workflow_items(department_id);
			CREATE INDEX idx_workflow_items_subjects ON workflow_items USING GIN (subject_refs);
			CREATE INDEX idx_workflow_items_expires_at ON workflow_items(expires_at) WHERE status = 'pending';
		`,
		3: `
			CREATE TABLE workflow_events (
				id VARCHAR(255) PRIMARY KEY,
				event_type VARCHAR(50) NOT NULL,
				item_id VARCHAR(255) NOT NULL DEFAULT '',
				body JSONB NOT NULL,
				occurred_at TIMESTAMP WITH TIME ZONE NOT NULL,
				recorded_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
			);

			CREATE INDEX idx_workflow_events_item ON workflow_events(item_id);
			CREATE INDEX idx_workflow_events_occurred_at ON workflow_events(occurred_at);
		`,
	}
}
