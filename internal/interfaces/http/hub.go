package http

import (
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/adpulse/adpulse/internal/application"
)

// clientBuffer bounds per-client queued events. Clients that fall further
// behind are dropped rather than allowed to block the pipeline.
const clientBuffer = 32

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Hub fans pipeline events out to connected websocket clients. It implements
// the pipeline's event sink; Publish never blocks.
type Hub struct {
	mu      sync.RWMutex
	clients map[*websocket.Conn]chan application.Event
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{clients: make(map[*websocket.Conn]chan application.Event)}
}

// Publish queues the event for every connected client, dropping clients
// whose buffers are full.
func (h *Hub) Publish(ev application.Event) {
	h.mu.RLock()
	var slow []*websocket.Conn
	for conn, ch := range h.clients {
		select {
		case ch <- ev:
		default:
			slow = append(slow, conn)
		}
	}
	h.mu.RUnlock()

	for _, conn := range slow {
		log.Warn().Str("remote", conn.RemoteAddr().String()).Msg("Dropping slow websocket client")
		h.remove(conn)
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// ServeWS upgrades the request and streams events until the client
// disconnects.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Msg("Websocket upgrade failed")
		return
	}

	ch := make(chan application.Event, clientBuffer)
	h.mu.Lock()
	h.clients[conn] = ch
	h.mu.Unlock()
	log.Info().Str("remote", conn.RemoteAddr().String()).Msg("Websocket client connected")

	// Reader goroutine: we never expect client messages, but reading is
	// required to notice disconnects.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				h.remove(conn)
				return
			}
		}
	}()

	for ev := range ch {
		if err := conn.WriteJSON(ev); err != nil {
			h.remove(conn)
			return
		}
	}
}

func (h *Hub) remove(conn *websocket.Conn) {
	h.mu.Lock()
	ch, ok := h.clients[conn]
	if ok {
		delete(h.clients, conn)
		close(ch)
	}
	h.mu.Unlock()
	if ok {
		conn.Close()
	}
}

// Close disconnects every client.
func (h *Hub) Close() {
	h.mu.Lock()
	conns := make([]*websocket.Conn, 0, len(h.clients))
	for conn := range h.clients {
		conns = append(conns, conn)
	}
	h.mu.Unlock()
	for _, conn := range conns {
		h.remove(conn)
	}
}
