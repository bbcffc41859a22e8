// Cratedig - Discogs Seller Inventory Tracker
// Copyright 2026 Cratedig Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/cratedig/cratedig

// Package websocket pushes live sync progress to connected browsers.
package websocket

import (
	"context"
	"sync"

	"github.com/cratedig/cratedig/internal/logging"
	"github.com/cratedig/cratedig/internal/metrics"
	syncpkg "github.com/cratedig/cratedig/internal/sync"
)

// Message types sent to clients.
const (
	MessageTypePing        = "ping"
	MessageTypePong        = "pong"
	MessageTypeJobProgress = "job_progress"
)

// Message is the envelope for all hub-to-client traffic.
type Message struct {
	Type string `json:"type"`
	Data any    `json:"data,omitempty"`
}

// Hub maintains the set of active clients and fans broadcasts out to them.
// It runs as a service under the supervision tree.
type Hub struct {
	clients    map[*Client]bool
	broadcast  chan Message
	Register   chan *Client
	Unregister chan *Client
	mu         sync.RWMutex
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		broadcast:  make(chan Message, 256),
		Register:   make(chan *Client),
		Unregister: make(chan *Client),
	}
}

// String implements suture's service naming.
func (h *Hub) String() string { return "websocket-hub" }

// BroadcastProgress implements the sync progress broadcaster. Events are
// dropped when the broadcast buffer is full; a stalled hub must not slow
// down a sync run.
func (h *Hub) BroadcastProgress(ev syncpkg.ProgressEvent) {
	select {
	case h.broadcast <- Message{Type: MessageTypeJobProgress, Data: ev}:
	default:
		logging.Warn().Str("job_id", ev.JobID).Msg("progress broadcast dropped, hub backlogged")
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Serve implements suture.Service. Lifecycle events take priority over
// broadcasts so client state is settled before messages fan out; on
// cancellation every client connection is closed before returning.
func (h *Hub) Serve(ctx context.Context) error {
	for {
		select {
		case client := <-h.Register:
			h.add(client)
			continue
		case client := <-h.Unregister:
			h.remove(client)
			continue
		default:
		}

		select {
		case <-ctx.Done():
			h.closeAll()
			return ctx.Err()
		case client := <-h.Register:
			h.add(client)
		case client := <-h.Unregister:
			h.remove(client)
		case msg := <-h.broadcast:
			h.fanOut(msg)
		}
	}
}

func (h *Hub) add(client *Client) {
	h.mu.Lock()
	h.clients[client] = true
	total := len(h.clients)
	h.mu.Unlock()
	metrics.WebsocketClients.Set(float64(total))
	logging.Info().Int("total_clients", total).Msg("websocket client connected")
}

func (h *Hub) remove(client *Client) {
	h.mu.Lock()
	if _, ok := h.clients[client]; ok {
		delete(h.clients, client)
		close(client.send)
	}
	total := len(h.clients)
	h.mu.Unlock()
	metrics.WebsocketClients.Set(float64(total))
	logging.Info().Int("total_clients", total).Msg("websocket client disconnected")
}

func (h *Hub) fanOut(msg Message) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for client := range h.clients {
		select {
		case client.send <- msg:
		default:
			// Slow consumer: drop the message rather than block the hub.
		}
	}
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for client := range h.clients {
		close(client.send)
		delete(h.clients, client)
	}
	metrics.WebsocketClients.Set(0)
	logging.Info().Msg("websocket hub shut down")
}
