package server

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/gdlive/gdlive/observability"
)

const (
	writeWait = 5 * time.Second
	// sendBuffer bounds how far a viewer may fall behind before it is
	// dropped. Update events are tiny and carry the latest upid, so a
	// dropped viewer loses nothing it cannot recover by reconnecting.
	sendBuffer = 16
)

// event is one push message to connected viewers.
type event struct {
	Type string `json:"type"`
	UpID int64  `json:"upid,omitempty"`
}

// client is one websocket viewer. All writes to conn go through the
// send channel and a single writer goroutine; closing send ends the
// writer with a close frame.
type client struct {
	id   string
	conn *websocket.Conn
	send chan []byte
}

// hub tracks the live websocket connections and fans events out to
// them. Broadcasting only enqueues: network writes happen on each
// client's own writer goroutine, so a viewer that stops reading never
// blocks the caller. The caller is the drawing engine's thread.
type hub struct {
	mu      sync.Mutex
	clients map[*client]struct{}
	logger  observability.Logger
}

func newHub(logger observability.Logger) *hub {
	return &hub{clients: make(map[*client]struct{}), logger: logger}
}

var upgrader = websocket.Upgrader{
	// Cross-origin access is governed by the token gate and the CORS
	// flag; the websocket handshake itself accepts any origin.
	CheckOrigin: func(*http.Request) bool { return true },
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("ws upgrade", observability.Error("err", err))
		return
	}
	c := &client{id: uuid.NewString(), conn: conn, send: make(chan []byte, sendBuffer)}
	s.hub.add(c)
	go s.hub.writeLoop(c)

	// Reader loop: we never expect client messages, but reading is how
	// disconnects are noticed.
	go func() {
		defer s.hub.remove(c)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

// writeLoop drains the client's send channel onto the connection. A
// closed channel means orderly teardown: say goodbye, then hang up.
func (h *hub) writeLoop(c *client) {
	defer c.conn.Close()
	for msg := range c.send {
		c.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			h.logger.Warn("client write failed",
				observability.String("client", c.id), observability.Error("err", err))
			h.remove(c)
			return
		}
	}
	msg := websocket.FormatCloseMessage(websocket.CloseGoingAway, "device closing")
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	c.conn.WriteMessage(websocket.CloseMessage, msg)
}

func (h *hub) add(c *client) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	n := len(h.clients)
	h.mu.Unlock()
	h.logger.Debug("client connected",
		observability.String("client", c.id),
		observability.Int(observability.MetricClientCount, n))
}

// remove unregisters the client and closes its send channel, which
// ends the writer goroutine. Safe to call more than once.
func (h *hub) remove(c *client) {
	h.mu.Lock()
	_, ok := h.clients[c]
	if ok {
		delete(h.clients, c)
		close(c.send)
	}
	n := len(h.clients)
	h.mu.Unlock()
	if ok {
		h.logger.Debug("client disconnected",
			observability.String("client", c.id),
			observability.Int(observability.MetricClientCount, n))
	}
}

// broadcast enqueues the event for every client without ever blocking.
// A client whose buffer is full has stopped reading; it is dropped on
// the spot rather than allowed to stall the caller.
func (h *hub) broadcast(ev event) {
	data, err := json.Marshal(ev)
	if err != nil {
		return
	}
	h.mu.Lock()
	var stalled []*client
	for c := range h.clients {
		select {
		case c.send <- data:
		default:
			stalled = append(stalled, c)
		}
	}
	h.mu.Unlock()
	for _, c := range stalled {
		h.logger.Warn("client too slow, dropping", observability.String("client", c.id))
		h.remove(c)
	}
}

// closeAll disconnects every client; each writer sends a going-away
// close frame on its way out.
func (h *hub) closeAll() {
	h.mu.Lock()
	clients := make([]*client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.Unlock()
	for _, c := range clients {
		h.remove(c)
	}
}
