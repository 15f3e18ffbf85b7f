package server

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"example.com/gflink/internal/common"
	"example.com/gflink/internal/protocol"
)

const (
	streamBuffer       = 64
	streamWriteTimeout = 5 * time.Second
)

// StreamFrame is one message on the /stream websocket.
type StreamFrame struct {
	Header protocol.Header `json:"header"`
	Record protocol.Record `json:"record,omitempty"`
	Pairs  []protocol.Pair `json:"pairs,omitempty"`
}

func newStreamFrame(pkg protocol.Package) StreamFrame {
	f := StreamFrame{Header: pkg.Header}
	if rec, err := protocol.DecodeRecord(pkg); err == nil {
		f.Record = rec
	} else {
		f.Pairs = pkg.Pairs
	}
	return f
}

type streamClient struct {
	conn *websocket.Conn
	send chan []byte
	once sync.Once
}

func (c *streamClient) close() {
	c.once.Do(func() { close(c.send) })
}

// hub fans encoded frames out to websocket clients. A client whose buffer
// is full loses the frame rather than stalling the link.
type hub struct {
	mu       sync.RWMutex
	clients  map[*streamClient]struct{}
	metrics  *serverMetrics
	upgrader websocket.Upgrader
}

func newHub(m *serverMetrics) *hub {
	return &hub{
		clients: make(map[*streamClient]struct{}),
		metrics: m,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

func (h *hub) add(c *streamClient) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	n := len(h.clients)
	h.mu.Unlock()
	h.metrics.streamClients.Set(float64(n))
}

func (h *hub) remove(c *streamClient) {
	h.mu.Lock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		c.close()
	}
	n := len(h.clients)
	h.mu.Unlock()
	h.metrics.streamClients.Set(float64(n))
}

func (h *hub) count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *hub) broadcast(f StreamFrame) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if len(h.clients) == 0 {
		return
	}
	msg, err := json.Marshal(f)
	if err != nil {
		common.Logf("stream encode %s: %v", f.Header, err)
		return
	}
	for c := range h.clients {
		select {
		case c.send <- msg:
		default:
			h.metrics.streamDropped.Inc()
		}
	}
}

func (h *hub) closeAll() {
	h.mu.Lock()
	for c := range h.clients {
		delete(h.clients, c)
		c.close()
	}
	h.mu.Unlock()
	h.metrics.streamClients.Set(0)
}

func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	conn, err := s.hub.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	c := &streamClient{conn: conn, send: make(chan []byte, streamBuffer)}
	s.hub.add(c)

	go func() {
		defer conn.Close()
		for msg := range c.send {
			conn.SetWriteDeadline(time.Now().Add(streamWriteTimeout))
			if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				s.hub.remove(c)
				return
			}
		}
		conn.SetWriteDeadline(time.Now().Add(streamWriteTimeout))
		conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	}()

	// Clients only listen; reading detects the disconnect.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			s.hub.remove(c)
			return
		}
	}
}
