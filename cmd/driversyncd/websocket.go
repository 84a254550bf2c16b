// WebSocket surface for pushing queue and sync events to the portal UI.
package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/baltiqcast/driversync/internal/logging"
	syncpkg "github.com/baltiqcast/driversync/internal/sync"
	"github.com/baltiqcast/driversync/internal/watch"
)

// WSClient is one connected UI shell.
type WSClient struct {
	id   string
	conn *websocket.Conn
	send chan []byte
	hub  *WSHub
}

// WSHub tracks connected clients and fans out event envelopes.
type WSHub struct {
	clients    map[string]*WSClient
	broadcast  chan []byte
	register   chan *WSClient
	unregister chan *WSClient
	mu         sync.RWMutex
}

// WSEnvelope wraps all outbound WebSocket messages.
type WSEnvelope struct {
	Type      string                 `json:"type"`
	Data      map[string]interface{} `json:"data"`
	Timestamp int64                  `json:"timestamp"`
}

const (
	EventQueueChanged         = "queue.changed"
	EventSyncStarted          = "sync.started"
	EventSyncCompleted        = "sync.completed"
	EventSyncFailed           = "sync.failed"
	EventSyncConflictDetected = "sync.conflict_detected"
	EventBannerChanged        = "banner.changed"
	EventConnectivityChanged  = "connectivity.changed"
	EventStorageLossDetected  = "storage.loss_detected"
)

// NewWSHub creates a hub and starts its dispatch loop.
func NewWSHub() *WSHub {
	hub := &WSHub{
		clients:    make(map[string]*WSClient),
		broadcast:  make(chan []byte, 256),
		register:   make(chan *WSClient),
		unregister: make(chan *WSClient),
	}
	go hub.run()
	return hub
}

func (h *WSHub) run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client.id] = client
			total := len(h.clients)
			h.mu.Unlock()
			logging.Debug("ws client connected", map[string]interface{}{
				"client_id": client.id,
				"total":     total,
			})

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client.id]; ok {
				delete(h.clients, client.id)
				close(client.send)
			}
			h.mu.Unlock()

		case message := <-h.broadcast:
			h.mu.Lock()
			for id, client := range h.clients {
				select {
				case client.send <- message:
				default:
					// Slow consumer, drop the connection.
					close(client.send)
					delete(h.clients, id)
				}
			}
			h.mu.Unlock()
		}
	}
}

// Broadcast sends an event envelope to every connected client.
func (h *WSHub) Broadcast(eventType string, data map[string]interface{}) {
	envelope := WSEnvelope{
		Type:      eventType,
		Data:      data,
		Timestamp: time.Now().Unix(),
	}

	bytes, err := json.Marshal(envelope)
	if err != nil {
		logging.Error("failed to marshal ws envelope", err, map[string]interface{}{
			"event": eventType,
		})
		return
	}

	h.broadcast <- bytes
}

// BroadcastQueueChanged pushes a new pending count after any queue mutation.
func (h *WSHub) BroadcastQueueChanged(pending int, degraded bool) {
	h.Broadcast(EventQueueChanged, map[string]interface{}{
		"pending_count": pending,
		"degraded":      degraded,
	})
}

// BroadcastSyncStarted announces the start of a drain.
func (h *WSHub) BroadcastSyncStarted(pending int) {
	h.Broadcast(EventSyncStarted, map[string]interface{}{
		"pending_count": pending,
	})
}

// BroadcastSyncCompleted publishes the outcome of a finished drain.
func (h *WSHub) BroadcastSyncCompleted(result *syncpkg.Result) {
	h.Broadcast(EventSyncCompleted, map[string]interface{}{
		"succeeded":   len(result.Success),
		"failed":      len(result.Failed),
		"conflicts":   len(result.Conflicts),
		"duration_ms": result.Duration.Milliseconds(),
	})
}

// BroadcastSyncFailed reports a drain that could not run at all.
func (h *WSHub) BroadcastSyncFailed(errMsg string) {
	h.Broadcast(EventSyncFailed, map[string]interface{}{
		"error": errMsg,
	})
}

// BroadcastConflictDetected surfaces entries parked for manual review.
func (h *WSHub) BroadcastConflictDetected(ids []string) {
	h.Broadcast(EventSyncConflictDetected, map[string]interface{}{
		"action_ids": ids,
	})
}

// BroadcastBannerChanged mirrors banner transitions to the UI.
func (h *WSHub) BroadcastBannerChanged(state watch.BannerState) {
	h.Broadcast(EventBannerChanged, map[string]interface{}{
		"state": string(state),
	})
}

// BroadcastConnectivityChanged echoes the connectivity the shell reported.
func (h *WSHub) BroadcastConnectivityChanged(online bool) {
	h.Broadcast(EventConnectivityChanged, map[string]interface{}{
		"online": online,
	})
}

// BroadcastStorageLoss warns the UI that queued work vanished from storage.
func (h *WSHub) BroadcastStorageLoss(lostCount int, lostIDs []string) {
	h.Broadcast(EventStorageLossDetected, map[string]interface{}{
		"lost_count": lostCount,
		"lost_ids":   lostIDs,
	})
}

func (c *WSClient) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()

	c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	// The UI never sends application messages; the read loop only services
	// control frames and detects disconnects.
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logging.Debug("ws read error", map[string]interface{}{
					"client_id": c.id,
					"error":     err.Error(),
				})
			}
			return
		}
	}
}

func (c *WSClient) writePump() {
	ticker := time.NewTicker(30 * time.Second)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// HandleWebSocket upgrades /ws connections. Only the local UI shell may
// connect.
func HandleWebSocket(hub *WSHub, port int) http.HandlerFunc {
	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			return r.Host == "localhost" || r.Host == fmt.Sprintf("localhost:%d", port) ||
				r.Host == "127.0.0.1" || r.Host == fmt.Sprintf("127.0.0.1:%d", port)
		},
	}

	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logging.Error("ws upgrade failed", err)
			return
		}

		client := &WSClient{
			id:   fmt.Sprintf("%s-%d", r.RemoteAddr, time.Now().UnixNano()),
			conn: conn,
			send: make(chan []byte, 256),
			hub:  hub,
		}

		hub.register <- client

		go client.writePump()
		go client.readPump()
	}
}
