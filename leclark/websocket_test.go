package leclark

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func hubTestServer(
	t testing.TB,
	hub *WebSocketHub,
	guildID string,
) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_ = hub.Subscribe(r.Context(), w, r, guildID)
		}),
	)
	t.Cleanup(srv.Close)
	return srv
}

func dialHub(t testing.TB, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func waitForSubscribers(
	t testing.TB,
	hub *WebSocketHub,
	guildID string,
	want int,
) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if hub.SubscriberCount(guildID) == want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf(
		"timed out waiting for %d subscribers, have %d",
		want,
		hub.SubscriberCount(guildID),
	)
}

func TestWebSocketHubBroadcast(t *testing.T) {
	hub := NewWebSocketHub(nil)
	srv := hubTestServer(t, hub, "guild-1")

	first := dialHub(t, srv)
	second := dialHub(t, srv)
	waitForSubscribers(t, hub, "guild-1", 2)

	payload := widgetUpdate{
		Type: "full_update",
		RegularData: widgetSnapshot{
			Queue: []Submission{
				{GuildID: "guild-1", UserID: "alice"},
			},
			Reviewed: 2,
			Open:     true,
		},
	}
	hub.Broadcast(context.Background(), "guild-1", payload)

	for _, conn := range []*websocket.Conn{first, second} {
		require.NoError(
			t,
			conn.SetReadDeadline(time.Now().Add(5*time.Second)),
		)
		var received widgetUpdate
		_, data, err := conn.ReadMessage()
		require.NoError(t, err)
		require.NoError(t, json.Unmarshal(data, &received))
		assert.Equal(t, "full_update", received.Type)
		assert.True(t, received.RegularData.Open)
		assert.Equal(t, 2, received.RegularData.Reviewed)
		require.Len(t, received.RegularData.Queue, 1)
		assert.Equal(t, "alice", received.RegularData.Queue[0].UserID)
	}
}

func TestWebSocketHubGuildIsolation(t *testing.T) {
	hub := NewWebSocketHub(nil)
	srvA := hubTestServer(t, hub, "guild-a")
	srvB := hubTestServer(t, hub, "guild-b")

	connA := dialHub(t, srvA)
	_ = dialHub(t, srvB)
	waitForSubscribers(t, hub, "guild-a", 1)
	waitForSubscribers(t, hub, "guild-b", 1)

	hub.Broadcast(
		context.Background(),
		"guild-a",
		widgetUpdate{Type: "full_update"},
	)

	require.NoError(
		t,
		connA.SetReadDeadline(time.Now().Add(5*time.Second)),
	)
	_, _, err := connA.ReadMessage()
	require.NoError(t, err, "guild-a subscriber should receive the update")
}

func TestWebSocketHubUnregisterOnDisconnect(t *testing.T) {
	hub := NewWebSocketHub(nil)
	srv := hubTestServer(t, hub, "guild-1")

	conn := dialHub(t, srv)
	waitForSubscribers(t, hub, "guild-1", 1)

	require.NoError(t, conn.Close())
	waitForSubscribers(t, hub, "guild-1", 0)
}

func TestWebSocketHubConcurrentBroadcasts(t *testing.T) {
	hub := NewWebSocketHub(nil)
	srv := hubTestServer(t, hub, "guild-1")

	conn := dialHub(t, srv)
	waitForSubscribers(t, hub, "guild-1", 1)

	const writers = 8
	const perWriter = 25
	var wg sync.WaitGroup
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perWriter; i++ {
				hub.Broadcast(
					context.Background(),
					"guild-1",
					widgetUpdate{Type: "full_update"},
				)
			}
		}()
	}

	// Every frame must arrive intact; interleaved writes would corrupt
	// the stream and surface here as a read error.
	for i := 0; i < writers*perWriter; i++ {
		require.NoError(
			t,
			conn.SetReadDeadline(time.Now().Add(10*time.Second)),
		)
		var received widgetUpdate
		_, data, err := conn.ReadMessage()
		require.NoError(t, err)
		require.NoError(t, json.Unmarshal(data, &received))
		assert.Equal(t, "full_update", received.Type)
	}
	wg.Wait()
	assert.Equal(t, 1, hub.SubscriberCount("guild-1"))
}

func TestWebSocketHubBroadcastNoSubscribers(t *testing.T) {
	hub := NewWebSocketHub(nil)
	// Must not panic or block
	hub.Broadcast(
		context.Background(),
		"guild-unknown",
		widgetUpdate{Type: "full_update"},
	)
	assert.Equal(t, 0, hub.SubscriberCount("guild-unknown"))
}
