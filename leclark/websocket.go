package leclark

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/lmittmann/tint"
)

const (
	wsWriteTimeout = 10 * time.Second
	wsPingInterval = 30 * time.Second
	wsPongWait     = 60 * time.Second
)

// wsClient pairs a connection with a write lock. Gorilla connections
// support at most one concurrent writer per data frame, so every
// WriteJSON goes through writeJSON. Control frames (ping, close) are
// exempt and may be sent concurrently.
type wsClient struct {
	conn *websocket.Conn

	writeMu sync.Mutex
}

func (c *wsClient) writeJSON(payload any) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	return c.conn.WriteJSON(payload)
}

// WebSocketHub fans widget updates out to subscribed connections, keyed
// by guild. Broadcasts are best-effort: a connection that fails to
// accept a write is dropped, never retried, and never blocks other
// subscribers.
type WebSocketHub struct {
	logger   *slog.Logger
	upgrader websocket.Upgrader

	mu    sync.RWMutex
	conns map[string]map[*wsClient]struct{}
}

func NewWebSocketHub(logger *slog.Logger) *WebSocketHub {
	if logger == nil {
		logger = slog.Default()
	}
	return &WebSocketHub{
		logger: logger.With(loggerNameKey, "websocket_hub"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Widget tokens authorize subscriptions, not origins
			CheckOrigin: func(_ *http.Request) bool { return true },
		},
		conns: map[string]map[*wsClient]struct{}{},
	}
}

// Subscribe upgrades the HTTP request to a websocket and registers the
// connection for the guild's updates. Blocks until the connection
// closes or the context is canceled.
func (h *WebSocketHub) Subscribe(
	ctx context.Context,
	w http.ResponseWriter,
	r *http.Request,
	guildID string,
) error {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return err
	}
	client := &wsClient{conn: conn}
	h.register(guildID, client)
	defer h.unregister(guildID, client)

	h.logger.InfoContext(
		ctx,
		"widget subscribed",
		"guild_id", guildID,
		"remote_addr", conn.RemoteAddr().String(),
	)

	_ = conn.SetReadDeadline(time.Now().Add(wsPongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})

	done := make(chan struct{})
	go func() {
		defer close(done)
		// Widgets never send application messages; the read loop only
		// services control frames and detects closure.
		for {
			if _, _, readErr := conn.ReadMessage(); readErr != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(wsPingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			_ = conn.Close()
			<-done
			return nil
		case <-done:
			h.logger.InfoContext(
				ctx,
				"widget disconnected",
				"guild_id", guildID,
			)
			return nil
		case <-ticker.C:
			if err = conn.WriteControl(
				websocket.PingMessage,
				nil,
				time.Now().Add(wsWriteTimeout),
			); err != nil {
				_ = conn.Close()
				<-done
				return nil
			}
		}
	}
}

func (h *WebSocketHub) register(guildID string, client *wsClient) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set := h.conns[guildID]
	if set == nil {
		set = map[*wsClient]struct{}{}
		h.conns[guildID] = set
	}
	set[client] = struct{}{}
}

func (h *WebSocketHub) unregister(guildID string, client *wsClient) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if set := h.conns[guildID]; set != nil {
		delete(set, client)
		if len(set) == 0 {
			delete(h.conns, guildID)
		}
	}
	_ = client.conn.Close()
}

// SubscriberCount returns the number of live connections for a guild.
func (h *WebSocketHub) SubscriberCount(guildID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns[guildID])
}

// Broadcast sends payload as JSON to every subscriber of the guild.
// Failed connections are closed and removed.
func (h *WebSocketHub) Broadcast(
	ctx context.Context,
	guildID string,
	payload any,
) {
	h.mu.RLock()
	targets := make([]*wsClient, 0, len(h.conns[guildID]))
	for client := range h.conns[guildID] {
		targets = append(targets, client)
	}
	h.mu.RUnlock()

	if len(targets) == 0 {
		return
	}

	var failed []*wsClient
	for _, client := range targets {
		if err := client.writeJSON(payload); err != nil {
			h.logger.WarnContext(
				ctx,
				"dropping widget connection",
				"guild_id", guildID,
				"remote_addr", client.conn.RemoteAddr().String(),
				tint.Err(err),
			)
			failed = append(failed, client)
		}
	}
	for _, client := range failed {
		h.unregister(guildID, client)
	}
}

// CloseAll tears down every connection. Used during shutdown.
func (h *WebSocketHub) CloseAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for guildID, set := range h.conns {
		for client := range set {
			_ = client.conn.WriteControl(
				websocket.CloseMessage,
				websocket.FormatCloseMessage(
					websocket.CloseGoingAway,
					"server shutting down",
				),
				time.Now().Add(wsWriteTimeout),
			)
			_ = client.conn.Close()
		}
		delete(h.conns, guildID)
	}
}
