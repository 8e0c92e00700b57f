// Package sse provides Server-Sent Events streaming for store and
// session events.
package sse

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/felixgeelhaar/ganttly/pkg/domain/events"
	"github.com/felixgeelhaar/ganttly/pkg/storage"
)

// Handler streams events via Server-Sent Events.
type Handler struct {
	publisher *storage.InMemoryEventPublisher
	mu        sync.RWMutex
	clients   map[chan *events.Event]struct{}
}

// NewHandler creates an SSE handler subscribed to the publisher.
func NewHandler(publisher *storage.InMemoryEventPublisher) *Handler {
	h := &Handler{
		publisher: publisher,
		clients:   make(map[chan *events.Event]struct{}),
	}

	publisher.Subscribe(func(e *events.Event) error {
		h.mu.RLock()
		defer h.mu.RUnlock()
		for ch := range h.clients {
			select {
			case ch <- e:
			default:
				// Drop if client is slow
			}
		}
		return nil
	})

	return h
}

// ServeHTTP handles SSE connections.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming unsupported", http.StatusInternalServerError)
		return
	}

	// Parse type filters from query param
	typeFilter := make(map[string]bool)
	if types := r.URL.Query().Get("types"); types != "" {
		for _, t := range strings.Split(types, ",") {
			typeFilter[strings.TrimSpace(t)] = true
		}
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("Access-Control-Allow-Origin", "*")

	ch := make(chan *events.Event, 64)

	h.mu.Lock()
	h.clients[ch] = struct{}{}
	h.mu.Unlock()

	defer func() {
		h.mu.Lock()
		delete(h.clients, ch)
		h.mu.Unlock()
		close(ch)
	}()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case e := <-ch:
			if len(typeFilter) > 0 && !typeFilter[e.Type] {
				continue
			}
			data, err := json.Marshal(e)
			if err != nil {
				continue
			}
			fmt.Fprintf(w, "event: %s\n", e.Type)
			fmt.Fprintf(w, "data: %s\n\n", data)
			flusher.Flush()
		}
	}
}

// ClientCount returns the number of connected clients.
func (h *Handler) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
