package main

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/dukex/wardflow/pkg/cmd"
	"github.com/dukex/wardflow/pkg/config"
	"github.com/dukex/wardflow/pkg/locks"
	"github.com/dukex/wardflow/pkg/log"
	"github.com/dukex/wardflow/pkg/mocks"
	"github.com/dukex/wardflow/pkg/models"
	"github.com/dukex/wardflow/pkg/otelhelper"
	"github.com/dukex/wardflow/pkg/persistence/file"
	"github.com/dukex/wardflow/pkg/scheduler"
	"github.com/dukex/wardflow/pkg/testutil"
	"github.com/gofiber/fiber/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func setupTestApp(t *testing.T) (*fiber.App, *mocks.MockEventBus) {
	t.Helper()

	logger := log.WithModule("test")
	store := file.NewPersistence(t.TempDir())
	engineConfig := config.Default()

	bus := &mocks.MockEventBus{}
	bus.On("Publish", mock.Anything, mock.Anything).Return(nil)

	engine := cmd.NewEngine(logger, store, locks.NewMemory(engineConfig.Locks.Timeout), bus, otelhelper.NoopTracer(), engineConfig)
	require.NoError(t, engine.Registry.Seed(context.Background(), []models.ResourceUnit{
		testutil.CreateSupplyUnit("gauze-ward3", "gauze", 40),
	}))

	api, err := NewAPI(logger, store, engine, scheduler.NewRemoteTrigger(bus, serviceName))
	require.NoError(t, err)

	return api.App(), bus
}

func readBody(t *testing.T, resp *http.Response) string {
	t.Helper()

	defer func() {
		err := resp.Body.Close()
		if err != nil {
			t.Logf("Failed to close response body: %v", err)
		}
	}()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	return string(body)
}

func TestAPI_RootEndpoint(t *testing.T) {
	app, _ := setupTestApp(t)

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/", nil))
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "Wardflow API", readBody(t, resp))
}

func TestAPI_HealthCheck(t *testing.T) {
	app, _ := setupTestApp(t)

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/livez", nil))
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "OK", readBody(t, resp))

	resp, err = app.Test(httptest.NewRequest(http.MethodGet, "/health", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, readBody(t, resp), "healthy")
}

func TestAPI_Metrics(t *testing.T) {
	app, _ := setupTestApp(t)

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, readBody(t, resp), "go_goroutines")
}

func TestAPI_Resources(t *testing.T) {
	app, _ := setupTestApp(t)

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/resources/supply", nil))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body struct {
		Kind  string                `json:"kind"`
		Units []models.ResourceUnit `json:"units"`
	}
	require.NoError(t, json.Unmarshal([]byte(readBody(t, resp)), &body))
	assert.Equal(t, "supply", body.Kind)
	require.Len(t, body.Units, 1)
	assert.Equal(t, "gauze-ward3", body.Units[0].ID)
}

func TestAPI_ForceCyclePublishesRequest(t *testing.T) {
	app, bus := setupTestApp(t)

	req := httptest.NewRequest(http.MethodPost, "/domains/supply/force-cycle", strings.NewReader(`{"reason":"stock audit"}`))
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)
	assert.Contains(t, readBody(t, resp), "scheduled")

	published := bus.Published()
	require.Len(t, published, 1)
	assert.Equal(t, models.EventForceRequested, published[0].Type)
	assert.Equal(t, "supply", published[0].Domain)
	assert.Equal(t, "stock audit", published[0].Reason)
}

func TestAPI_WorkflowItemsEmpty(t *testing.T) {
	app, _ := setupTestApp(t)

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/workflow-items", nil))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body map[string]any
	require.NoError(t, json.Unmarshal([]byte(readBody(t, resp)), &body))
	assert.InDelta(t, 0, body["total_count"], 0)
}
