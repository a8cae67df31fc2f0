package server

import (
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	sendBuffer   = 64
	writeTimeout = 10 * time.Second
)

var upgrader = websocket.Upgrader{
	CheckOrigin: checkOrigin,
}

// checkOrigin accepts same-origin, loopback and private-network origins.
func checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	// Non-browser clients omit the Origin header
	if origin == "" {
		return true
	}

	u, err := url.Parse(origin)
	if err != nil {
		slog.Warn("rejected WebSocket connection: invalid origin URL", "origin", origin)
		return false
	}
	host := u.Hostname()

	if host == "localhost" {
		return true
	}

	requestHost := r.Host
	if h, _, err := net.SplitHostPort(requestHost); err == nil {
		requestHost = h
	}
	if host == requestHost {
		return true
	}

	if ip := net.ParseIP(host); ip != nil && (ip.IsLoopback() || ip.IsPrivate()) {
		return true
	}

	slog.Warn("rejected WebSocket connection", "origin", origin, "host", host)
	return false
}

// client is one WebSocket connection. Only the writer goroutine writes to
// conn.
type client struct {
	conn *websocket.Conn
	send chan any
	done chan struct{}
	once sync.Once
}

func (c *client) close() {
	c.once.Do(func() { close(c.done) })
}

// trySend queues msg without blocking. Messages for a slow client are
// dropped.
func (c *client) trySend(msg any) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.send <- msg:
		return true
	case <-c.done:
		return false
	default:
		return false
	}
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("WebSocket upgrade failed", "error", err)
		return
	}

	c := &client{
		conn: conn,
		send: make(chan any, sendBuffer),
		done: make(chan struct{}),
	}
	s.addClient(c)
	defer s.removeClient(c)

	c.trySend(Message{Type: "snapshot", Data: s.Status()})
	unsubscribe := s.hub.Subscribe(func(m Message) {
		if !c.trySend(m) {
			s.logger.Debug("dropping message for slow client", "type", m.Type)
		}
	})
	defer unsubscribe()

	go s.runWriter(c)
	s.runReader(c)
}

// runWriter is the sole writer to the connection.
func (s *Server) runWriter(c *client) {
	defer func() {
		if err := c.conn.Close(); err != nil {
			s.logger.Debug("WebSocket close error", "error", err)
		}
	}()
	for {
		select {
		case <-c.done:
			return
		case msg := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.conn.WriteJSON(msg); err != nil {
				c.close()
				return
			}
		}
	}
}

// runReader dispatches commands until the connection fails.
func (s *Server) runReader(c *client) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("panic in WebSocket reader", "panic", r)
		}
		c.close()
	}()

	for {
		var cmd Command
		if err := c.conn.ReadJSON(&cmd); err != nil {
			return
		}
		s.handleCommand(cmd, c.trySend)
	}
}

func (s *Server) addClient(c *client) {
	s.clientsMu.Lock()
	s.clients[c] = struct{}{}
	n := len(s.clients)
	s.clientsMu.Unlock()
	s.logger.Debug("client connected", "clients", n)
}

func (s *Server) removeClient(c *client) {
	s.clientsMu.Lock()
	delete(s.clients, c)
	n := len(s.clients)
	s.clientsMu.Unlock()
	s.logger.Debug("client disconnected", "clients", n)
}

func (s *Server) clientCount() int {
	s.clientsMu.Lock()
	defer s.clientsMu.Unlock()
	return len(s.clients)
}

func (s *Server) closeClients() {
	s.clientsMu.Lock()
	defer s.clientsMu.Unlock()
	for c := range s.clients {
		c.close()
	}
}
