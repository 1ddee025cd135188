// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package broadcast

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"github.com/coder/websocket"
)

// envelope wraps a payload with the event type name clients switch on.
type envelope struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// Hub is a websocket-backed Broadcaster: browser clients connect to
// ServeHTTP, name the group they want on connect, and receive every event
// published to that group as a JSON text frame. It is the local/dev
// transport behind the Broadcaster interface; a production deployment can
// swap in a managed pub/sub service behind the same interface without
// touching the Dispatcher or Consumer.
type Hub struct {
	log *slog.Logger

	mu      sync.RWMutex
	members map[string]map[*conn]struct{} // group -> connections
}

type conn struct {
	ws *websocket.Conn
	mu sync.Mutex // coder/websocket forbids concurrent writers on one conn
}

func (c *conn) writeJSON(ctx context.Context, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ws.Write(ctx, websocket.MessageText, data)
}

// NewHub creates an empty hub.
func NewHub(log *slog.Logger) *Hub {
	if log == nil {
		log = slog.Default()
	}
	return &Hub{log: log, members: make(map[string]map[*conn]struct{})}
}

// ServeHTTP upgrades the request to a websocket connection and subscribes
// it to the group named by the "group" query parameter until the client
// disconnects.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	group := r.URL.Query().Get("group")
	if group == "" {
		http.Error(w, "missing group parameter", http.StatusBadRequest)
		return
	}

	ws, err := websocket.Accept(w, r, nil)
	if err != nil {
		h.log.Warn("broadcast: accept failed", "error", err)
		return
	}
	defer ws.CloseNow()

	c := &conn{ws: ws}
	h.subscribe(group, c)
	defer h.unsubscribe(group, c)

	ctx := r.Context()
	for {
		if _, _, err := ws.Read(ctx); err != nil {
			return
		}
	}
}

func (h *Hub) subscribe(group string, c *conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.members[group] == nil {
		h.members[group] = make(map[*conn]struct{})
	}
	h.members[group][c] = struct{}{}
}

func (h *Hub) unsubscribe(group string, c *conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.members[group], c)
	if len(h.members[group]) == 0 {
		delete(h.members, group)
	}
}

func (h *Hub) publish(group, eventType string, data any) error {
	h.mu.RLock()
	conns := make([]*conn, 0, len(h.members[group]))
	for c := range h.members[group] {
		conns = append(conns, c)
	}
	h.mu.RUnlock()

	ctx := context.Background()
	var firstErr error
	for _, c := range conns {
		if err := c.writeJSON(ctx, envelope{Type: eventType, Data: data}); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("broadcast: write to %s subscriber: %w", group, err)
		}
	}
	return firstErr
}

// PublishExecutionUpdate implements Broadcaster.
func (h *Hub) PublishExecutionUpdate(ctx context.Context, executionID string, event ExecutionUpdate) error {
	return h.publish(DetailGroup(executionID), "executionUpdate", event)
}

// PublishHistoryUpdate implements Broadcaster.
func (h *Hub) PublishHistoryUpdate(ctx context.Context, scope string, event ExecutionHistoryUpdate) error {
	return h.publish(HistoryGroup(scope), "executionHistoryUpdate", event)
}

// SubscriberCount implements Broadcaster.
func (h *Hub) SubscriberCount(group string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.members[group])
}

var _ Broadcaster = (*Hub)(nil)
