package stream

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/dukex/wardflow/pkg/events"
	"github.com/dukex/wardflow/pkg/log"
	"github.com/dukex/wardflow/pkg/models"
	"github.com/dukex/wardflow/pkg/testutil"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dial(t *testing.T, server *httptest.Server) *websocket.Conn {
	t.Helper()

	url := "ws" + strings.TrimPrefix(server.URL, "http")

	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)

	t.Cleanup(func() { _ = conn.Close() })

	return conn
}

func TestHub_BroadcastsEvents(t *testing.T) {
	hub := NewHub(log.WithModule("test"))
	server := httptest.NewServer(hub)
	defer server.Close()

	first := dial(t, server)
	second := dial(t, server)

	require.Eventually(t, func() bool { return hub.Clients() == 2 }, time.Second, 10*time.Millisecond)

	item := testutil.CreateTransferItem("s-1", "s-2", 5)
	require.NoError(t, hub.Handle(context.Background(), events.ItemCreated(item)))

	for _, conn := range []*websocket.Conn{first, second} {
		require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))

		_, message, err := conn.ReadMessage()
		require.NoError(t, err)

		var received map[string]any
		require.NoError(t, json.Unmarshal(message, &received))
		assert.Equal(t, item.ID+":pending", received["id"])
		assert.Equal(t, string(models.EventItemCreated), received["event"])
		assert.Equal(t, item.ID, received["item_id"])
		assert.Equal(t, "transfer", received["kind"])
		assert.Equal(t, "pending", received["status"])
		assert.Contains(t, received, "timestamp")
	}
}

func TestHub_UnregistersClosedClients(t *testing.T) {
	hub := NewHub(log.WithModule("test"))
	server := httptest.NewServer(hub)
	defer server.Close()

	conn := dial(t, server)
	require.Eventually(t, func() bool { return hub.Clients() == 1 }, time.Second, 10*time.Millisecond)

	require.NoError(t, conn.Close())
	assert.Eventually(t, func() bool { return hub.Clients() == 0 }, time.Second, 10*time.Millisecond)
}

func TestHub_Close(t *testing.T) {
	hub := NewHub(log.WithModule("test"))
	server := httptest.NewServer(hub)
	defer server.Close()

	conn := dial(t, server)
	require.Eventually(t, func() bool { return hub.Clients() == 1 }, time.Second, 10*time.Millisecond)

	hub.Close()
	assert.Equal(t, 0, hub.Clients())

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))

	_, _, err := conn.ReadMessage()
	assert.Error(t, err)
}
