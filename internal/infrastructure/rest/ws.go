package rest

import (
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/felixgeelhaar/ganttly/pkg/domain/events"
	"github.com/felixgeelhaar/ganttly/pkg/storage"
	"github.com/gorilla/websocket"
)

const (
	wsWriteWait  = 10 * time.Second
	wsPingPeriod = 30 * time.Second
)

// wsHub fans domain events out to connected websocket clients.
type wsHub struct {
	mu      sync.Mutex
	clients map[*wsClient]struct{}
	closed  bool
}

type wsClient struct {
	conn *websocket.Conn
	send chan *events.Event
	done chan struct{}
}

func newWSHub(publisher *storage.InMemoryEventPublisher) *wsHub {
	h := &wsHub{clients: make(map[*wsClient]struct{})}
	publisher.Subscribe(h.broadcast)
	return h
}

func (h *wsHub) broadcast(e *events.Event) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		select {
		case c.send <- e:
		default:
			// slow client, drop the event
		}
	}
	return nil
}

func (h *wsHub) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("websocket upgrade failed: %v", err)
		return
	}

	c := &wsClient{
		conn: conn,
		send: make(chan *events.Event, 64),
		done: make(chan struct{}),
	}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		conn.Close()
		return
	}
	h.clients[c] = struct{}{}
	h.mu.Unlock()

	go h.writeLoop(c)
	h.readLoop(c)
}

func (h *wsHub) writeLoop(c *wsClient) {
	ticker := time.NewTicker(wsPingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case e := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := c.conn.WriteJSON(e); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readLoop drains client frames until the connection drops, then
// unregisters the client.
func (h *wsHub) readLoop(c *wsClient) {
	defer func() {
		h.mu.Lock()
		delete(h.clients, c)
		h.mu.Unlock()
		close(c.done)
		c.conn.Close()
	}()
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *wsHub) close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for c := range h.clients {
		c.conn.Close()
	}
}
