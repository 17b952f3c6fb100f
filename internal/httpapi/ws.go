package httpapi

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/fpga-edge/drm-agent-go/internal/session"
)

// Message is one lifecycle event as pushed to a connected dashboard.
type Message struct {
	Kind      string    `json:"kind"`
	SessionID string    `json:"session_id"`
	State     string    `json:"state"`
	Time      time.Time `json:"time"`
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Hub fans session.Event values out to every connected /events
// websocket client, grounded on the register/unregister/broadcast
// channel pattern of a gorilla/websocket connection manager: no client
// write ever happens outside the Hub's own goroutine, so concurrent
// broadcasts can't interleave writes on the same connection.
type Hub struct {
	mu      sync.Mutex
	clients map[*websocket.Conn]struct{}

	broadcast  chan Message
	register   chan *websocket.Conn
	unregister chan *websocket.Conn

	log zerolog.Logger
}

// NewHub builds an idle Hub. Call Run to start fanning out events.
func NewHub(log zerolog.Logger) *Hub {
	return &Hub{
		clients:    make(map[*websocket.Conn]struct{}),
		broadcast:  make(chan Message, 64),
		register:   make(chan *websocket.Conn),
		unregister: make(chan *websocket.Conn),
		log:        log,
	}
}

// Run drives the Hub's event loop until done is closed. It must run
// in its own goroutine for the lifetime of the httpapi server.
func (h *Hub) Run(done <-chan struct{}) {
	for {
		select {
		case conn := <-h.register:
			h.mu.Lock()
			h.clients[conn] = struct{}{}
			h.mu.Unlock()
		case conn := <-h.unregister:
			h.mu.Lock()
			delete(h.clients, conn)
			h.mu.Unlock()
			conn.Close()
		case msg := <-h.broadcast:
			h.mu.Lock()
			conns := make([]*websocket.Conn, 0, len(h.clients))
			for c := range h.clients {
				conns = append(conns, c)
			}
			h.mu.Unlock()
			for _, c := range conns {
				if err := c.WriteJSON(msg); err != nil {
					h.mu.Lock()
					delete(h.clients, c)
					h.mu.Unlock()
					c.Close()
				}
			}
		case <-done:
			return
		}
	}
}

// OnEvent adapts the Hub into the func(session.Event) shape
// session.Options.OnEvent expects, matching internal/events'
// Publisher.OnEvent so cmd/drm-agentd can wire both in side by side.
func (h *Hub) OnEvent(ev session.Event) {
	msg := Message{Kind: string(ev.Kind), SessionID: ev.SessionID, State: ev.State.String(), Time: time.Now()}
	select {
	case h.broadcast <- msg:
	default:
		h.log.Warn().Msg("event broadcast channel full, dropping event")
	}
}

// ServeWS upgrades the request to a websocket and registers it with
// the Hub. The connection is unregistered and closed once the client
// disconnects or sends anything — this endpoint is push-only.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}
	h.register <- conn
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				h.unregister <- conn
				return
			}
		}
	}()
}
