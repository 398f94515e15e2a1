package session

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/nwah/tripnav/location"
	"github.com/nwah/tripnav/nav"
)

const (
	pingPeriod     = 30 * time.Second
	pongWait       = 60 * time.Second
	writeWait      = 5 * time.Second
	maxMessageSize = 64 << 10
	sendBuffer     = 256
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// client is the write side of one websocket connection
type client struct {
	once   sync.Once
	done   chan struct{}
	sendCh chan Outbound
}

func newClient() *client {
	return &client{
		done:   make(chan struct{}),
		sendCh: make(chan Outbound, sendBuffer),
	}
}

func (c *client) safeClose() {
	c.once.Do(func() {
		close(c.done)
	})
}

func (c *client) push(msg Outbound) {
	select {
	case <-c.done:
	case c.sendCh <- msg:
	}
}

// ServerOptions configures a Server
type ServerOptions struct {
	Provider nav.Provider
	Reporter Reporter
	Devices  *location.MQTTSource // optional, fixes are shared by every session
	Debounce time.Duration
	Logger   *slog.Logger
}

// Server upgrades connections to websockets and runs one Session per connection
type Server struct {
	opts   ServerOptions
	logger *slog.Logger

	sessions sync.Map // id -> *Session
}

// NewServer creates a websocket server
func NewServer(opts ServerOptions) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{opts: opts, logger: logger.With("component", "ws")}
}

// Sessions returns the number of open sessions
func (s *Server) Sessions() int {
	n := 0
	s.sessions.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}

// Close closes every open session
func (s *Server) Close() {
	s.sessions.Range(func(_, v any) bool {
		v.(*Session).Close()
		return true
	})
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("upgrade error", "error", err)
		return
	}
	defer conn.Close()

	c := newClient()
	sess := New(Options{
		Provider: s.opts.Provider,
		Reporter: s.opts.Reporter,
		Logger:   s.logger,
		Debounce: s.opts.Debounce,
	}, c.push)

	s.sessions.Store(sess.ID, sess)
	defer s.sessions.Delete(sess.ID)

	if s.opts.Devices != nil {
		detach := s.opts.Devices.Attach(sess.Feed())
		defer detach()
	}

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	go s.writer(conn, c)
	go s.pingPong(ctx, conn, c)

	sess.Start()
	s.read(conn, c, sess)

	c.safeClose()
	sess.Close()
}

func (s *Server) read(conn *websocket.Conn, c *client, sess *Session) {
	conn.SetReadLimit(maxMessageSize)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Warn("websocket read error", "session", sess.ID, "error", err)
			}
			return
		}
		conn.SetReadDeadline(time.Now().Add(pongWait))

		var msg Inbound
		if err := json.Unmarshal(data, &msg); err != nil {
			c.push(Outbound{Type: TypeError, Error: "invalid message: " + err.Error()})
			continue
		}
		if err := sess.Handle(msg); err != nil {
			c.push(Outbound{Type: TypeError, Error: err.Error()})
		}
	}
}

func (s *Server) writer(conn *websocket.Conn, c *client) {
	defer c.safeClose()
	for {
		select {
		case <-c.done:
			return
		case msg := <-c.sendCh:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(msg); err != nil {
				s.logger.Debug("websocket write error", "error", err)
				conn.Close()
				return
			}
		}
	}
}

func (s *Server) pingPong(ctx context.Context, conn *websocket.Conn, c *client) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-c.done:
			return
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, []byte("ping"), time.Now().Add(writeWait)); err != nil {
				conn.Close()
				return
			}
		}
	}
}
