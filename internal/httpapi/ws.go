package httpapi

import (
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/hamed0406/sitestatus/internal/monitor"
)

const (
	wsWriteWait  = 10 * time.Second
	wsPingPeriod = 30 * time.Second
	wsSendBuffer = 8
)

// safeConn serializes writes; gorilla connections allow one concurrent writer.
type safeConn struct {
	*websocket.Conn
	writeLock sync.Mutex
}

func (c *safeConn) write(msgType int, data []byte) error {
	c.writeLock.Lock()
	defer c.writeLock.Unlock()
	_ = c.SetWriteDeadline(time.Now().Add(wsWriteWait))
	return c.WriteMessage(msgType, data)
}

type wsClient struct {
	conn *safeConn
	send chan []byte
}

// cycleMessage is what subscribers receive after every cycle.
type cycleMessage struct {
	Type string `json:"type"`
	*monitor.Cycle
}

// Hub pushes finished cycles to connected websocket clients.
type Hub struct {
	log      *zap.Logger
	upgrader websocket.Upgrader
	latest   func() (*monitor.Cycle, bool)

	mu      sync.RWMutex
	clients map[*wsClient]struct{}
}

// NewHub builds a hub; latest, when set, supplies the greeting sent on connect.
func NewHub(log *zap.Logger, allowedOrigins []string, latest func() (*monitor.Cycle, bool)) *Hub {
	return &Hub{
		log:    log,
		latest: latest,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 32768,
			CheckOrigin:     originChecker(allowedOrigins),
		},
		clients: make(map[*wsClient]struct{}),
	}
}

func originChecker(allowed []string) func(r *http.Request) bool {
	for _, o := range allowed {
		if o == "*" {
			return func(*http.Request) bool { return true }
		}
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		for _, o := range allowed {
			if strings.EqualFold(o, origin) {
				return true
			}
		}
		u, err := url.Parse(origin)
		return err == nil && strings.EqualFold(u.Host, r.Host)
	}
}

func encodeCycle(c *monitor.Cycle) ([]byte, error) {
	return json.Marshal(cycleMessage{Type: "cycle", Cycle: c})
}

func (h *Hub) ObserveCycle(c *monitor.Cycle) {
	payload, err := encodeCycle(c)
	if err != nil {
		h.log.Warn("ws_encode_failed", zap.String("cycle_id", c.ID), zap.Error(err))
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for cl := range h.clients {
		select {
		case cl.send <- payload:
		default:
			h.log.Debug("ws_client_slow_dropped_message", zap.String("cycle_id", c.ID))
		}
	}
}

// Clients reports the number of connected subscribers.
func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("ws_upgrade_failed", zap.Error(err))
		return
	}
	cl := &wsClient{conn: &safeConn{Conn: conn}, send: make(chan []byte, wsSendBuffer)}

	if h.latest != nil {
		if c, ok := h.latest(); ok {
			if payload, err := encodeCycle(c); err == nil {
				cl.send <- payload
			}
		}
	}

	h.mu.Lock()
	h.clients[cl] = struct{}{}
	h.mu.Unlock()
	h.log.Debug("ws_connected", zap.String("remote", r.RemoteAddr))

	go h.writeLoop(cl)

	// Inbound messages are ignored; reading detects the close.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}

	h.mu.Lock()
	delete(h.clients, cl)
	close(cl.send)
	h.mu.Unlock()
	h.log.Debug("ws_disconnected", zap.String("remote", r.RemoteAddr))
}

func (h *Hub) writeLoop(cl *wsClient) {
	ticker := time.NewTicker(wsPingPeriod)
	defer func() {
		ticker.Stop()
		cl.conn.Close()
	}()
	for {
		select {
		case msg, ok := <-cl.send:
			if !ok {
				_ = cl.conn.write(websocket.CloseMessage, []byte{})
				return
			}
			if err := cl.conn.write(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			if err := cl.conn.write(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
