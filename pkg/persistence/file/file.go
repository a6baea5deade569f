// Package file provides file-based persistence for local runs and tests.
package file

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/dukex/wardflow/pkg/persistence"
)

// Persistence implements the persistence.Persistence interface using the file system.
type Persistence struct {
	root         string
	resourceRepo *ResourceRepository
	itemRepo     *WorkflowItemRepository
	eventRepo    *EventLogRepository
}

// NewPersistence creates a new instance of Persistence with the specified root directory.
func NewPersistence(root string) *Persistence {
	cleanRoot := strings.Replace(root, "file://", "", 1)

	return &Persistence{
		root:         cleanRoot,
		resourceRepo: NewResourceRepository(cleanRoot),
		itemRepo:     NewWorkflowItemRepository(cleanRoot),
		eventRepo:    NewEventLogRepository(cleanRoot),
	}
}

// Close performs any necessary cleanup. For file-based persistence, there is nothing to clean up.
func (fp *Persistence) Close(_ context.Context) error {
	return nil
}

// HealthCheck checks if the file persistence layer is healthy by verifying the root directory exists.
func (fp *Persistence) HealthCheck(_ context.Context) error {
	if _, err := os.Stat(fp.root); os.IsNotExist(err) {
		return os.ErrNotExist
	}

	return nil
}

func (fp *Persistence) ResourceRepository() persistence.ResourceRepository {
	return fp.resourceRepo
}

func (fp *Persistence) WorkflowItemRepository() persistence.WorkflowItemRepository {
	return fp.itemRepo
}

func (fp *Persistence) EventLogRepository() persistence.EventLogRepository {
	return fp.eventRepo
}

func fileName(id string) string {
	return url.PathEscape(id) + ".json"
}

func readJSON(path string, target any) (bool, error) {
	body, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}

		return false, persistence.Unavailable("read "+path, err)
	}

	err = json.Unmarshal(body, target)
	if err != nil {
		return false, fmt.Errorf("failed to unmarshal %s: %w", path, err)
	}

	return true, nil
}

// writeJSON writes through a temporary file so readers never see a partial document.
func writeJSON(dir, name string, value any) error {
	err := os.MkdirAll(dir, 0750)
	if err != nil {
		return persistence.Unavailable("create directory "+dir, err)
	}

	data, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", name, err)
	}

	tmp := filepath.Join(dir, "."+name+".tmp")

	err = os.WriteFile(tmp, data, 0600)
	if err != nil {
		return persistence.Unavailable("write "+name, err)
	}

	err = os.Rename(tmp, filepath.Join(dir, name))
	if err != nil {
		return persistence.Unavailable("rename "+name, err)
	}

	return nil
}

func listJSON(dir string) ([]string, error) {
	paths, err := filepath.Glob(filepath.Join(dir, "*.json"))
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", dir, err)
	}

	return paths, nil
}
