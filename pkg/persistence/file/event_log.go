package file

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/dukex/wardflow/pkg/models"
	"github.com/dukex/wardflow/pkg/persistence"
)

// EventLogRepository appends events as JSON lines to workflow_events.jsonl.
type EventLogRepository struct {
	root string
	mu   sync.Mutex
	seen map[string]bool
}

// NewEventLogRepository creates a new event log repository.
func NewEventLogRepository(root string) *EventLogRepository {
	return &EventLogRepository{root: root}
}

func (er *EventLogRepository) path() string {
	return filepath.Join(er.root, "workflow_events.jsonl")
}

func (er *EventLogRepository) readAll() ([]models.WorkflowEvent, error) {
	file, err := os.Open(filepath.Clean(er.path()))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}

		return nil, persistence.Unavailable("open event log", err)
	}

	defer func() {
		_ = file.Close()
	}()

	var events []models.WorkflowEvent

	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		if len(scanner.Bytes()) == 0 {
			continue
		}

		var event models.WorkflowEvent

		err := json.Unmarshal(scanner.Bytes(), &event)
		if err != nil {
			return nil, fmt.Errorf("failed to unmarshal event log line: %w", err)
		}

		events = append(events, event)
	}

	err = scanner.Err()
	if err != nil {
		return nil, persistence.Unavailable("scan event log", err)
	}

	return events, nil
}

func (er *EventLogRepository) Append(_ context.Context, event models.WorkflowEvent) error {
	er.mu.Lock()
	defer er.mu.Unlock()

	if er.seen == nil {
		events, err := er.readAll()
		if err != nil {
			return err
		}

		er.seen = make(map[string]bool, len(events))
		for _, recorded := range events {
			er.seen[recorded.ID] = true
		}
	}

	if er.seen[event.ID] {
		return nil
	}

	line, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event %s: %w", event.ID, err)
	}

	err = os.MkdirAll(er.root, 0750)
	if err != nil {
		return persistence.Unavailable("create event log directory", err)
	}

	file, err := os.OpenFile(er.path(), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		return persistence.Unavailable("open event log", err)
	}

	defer func() {
		_ = file.Close()
	}()

	_, err = file.Write(append(line, '\n'))
	if err != nil {
		return persistence.Unavailable("append event", err)
	}

	er.seen[event.ID] = true

	return nil
}

func (er *EventLogRepository) Since(_ context.Context, since time.Time) ([]models.WorkflowEvent, error) {
	er.mu.Lock()
	defer er.mu.Unlock()

	events, err := er.readAll()
	if err != nil {
		return nil, err
	}

	filtered := make([]models.WorkflowEvent, 0, len(events))

	for _, event := range events {
		if !event.Timestamp.Before(since) {
			filtered = append(filtered, event)
		}
	}

	sort.SliceStable(filtered, func(i, j int) bool {
		return filtered[i].Timestamp.Before(filtered[j].Timestamp)
	})

	return filtered, nil
}
