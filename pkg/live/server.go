// Package live serves a viewer controller over WebSocket. Clients receive a
// snapshot on connect, every controller event, and a fresh snapshot after each
// batch of property changes. They drive the controller with JSON commands.
package live

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/recera/pdfviewer/pkg/viewer"
)

const (
	writeWait    = 10 * time.Second
	pongWait     = 60 * time.Second
	pingInterval = 54 * time.Second
	sendBuffer   = 64
)

// Loop runs functions on the controller's thread. scheduler.Loop implements it.
type Loop interface {
	Post(fn func())
	Do(ctx context.Context, fn func()) error
}

// Server handles WebSocket connections for one controller.
type Server struct {
	ctrl     *viewer.Controller
	loop     Loop
	log      zerolog.Logger
	upgrader websocket.Upgrader

	mu       sync.RWMutex
	sessions map[uint64]*Session
	nextID   uint64
	closed   bool

	// Touched only on the loop.
	statePending bool
	unsubscribe  []func()
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the server's logger.
func WithLogger(l zerolog.Logger) Option {
	return func(s *Server) { s.log = l.With().Str("component", "live").Logger() }
}

// WithCheckOrigin overrides the upgrader's origin check.
func WithCheckOrigin(fn func(r *http.Request) bool) Option {
	return func(s *Server) { s.upgrader.CheckOrigin = fn }
}

// NewServer creates a server and subscribes it to the controller. It must be
// called on the loop, or before the loop starts.
func NewServer(ctrl *viewer.Controller, loop Loop, opts ...Option) *Server {
	s := &Server{
		ctrl: ctrl,
		loop: loop,
		log:  zerolog.Nop(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		sessions: make(map[uint64]*Session),
	}
	for _, o := range opts {
		o(s)
	}

	s.unsubscribe = append(s.unsubscribe, ctrl.Subscribe(func(ev viewer.Event) {
		s.broadcast(EncodeEvent(ev))
	}))
	sig := ctrl.Signals()
	s.unsubscribe = append(s.unsubscribe,
		sig.Page.Subscribe(func(int) { s.stateChanged() }),
		sig.PageCount.Subscribe(func(int) { s.stateChanged() }),
		sig.Title.Subscribe(func(string) { s.stateChanged() }),
		sig.Loading.Subscribe(func(bool) { s.stateChanged() }),
		sig.Scale.Subscribe(func(float64) { s.stateChanged() }),
		sig.DocumentID.Subscribe(func(uint64) { s.stateChanged() }),
	)
	return s
}

// Handler returns a mux serving /live and /state.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/live", s.HandleWebSocket)
	mux.HandleFunc("/state", s.HandleState)
	return mux
}

// StateChanged schedules a snapshot broadcast. Consecutive calls within one
// loop task produce a single frame. Hosts call it after changes that no
// signal reports, such as a new zoom or layout.
func (s *Server) StateChanged() {
	s.loop.Post(s.stateChanged)
}

// stateChanged must run on the loop.
func (s *Server) stateChanged() {
	if s.statePending {
		return
	}
	s.statePending = true
	s.loop.Post(func() {
		s.statePending = false
		s.broadcast(StateMessage(s.ctrl.Snapshot()))
	})
}

// HandleState serves the current snapshot as JSON.
func (s *Server) HandleState(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	snap, err := s.snapshot(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(snap); err != nil {
		s.log.Warn().Err(err).Msg("failed to write state")
	}
}

// HandleWebSocket upgrades the connection and serves a session until the
// client goes away.
func (s *Server) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn().Err(err).Msg("failed to upgrade connection")
		return
	}

	// Registering on the loop orders the first snapshot before any broadcast.
	var (
		sess *Session
		ok   bool
	)
	err = s.loop.Do(r.Context(), func() {
		if sess, ok = s.register(conn); ok {
			sess.send(StateMessage(s.ctrl.Snapshot()))
		}
	})
	if err != nil || !ok {
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseTryAgainLater, "viewer unavailable"),
			time.Now().Add(writeWait))
		conn.Close()
		if sess != nil {
			sess.close()
		}
		return
	}
	go sess.writer()
	sess.reader()
}

func (s *Server) snapshot(ctx context.Context) (viewer.Snapshot, error) {
	var snap viewer.Snapshot
	err := s.loop.Do(ctx, func() { snap = s.ctrl.Snapshot() })
	if err != nil {
		return snap, fmt.Errorf("live: snapshot: %w", err)
	}
	return snap, nil
}

func (s *Server) register(conn *websocket.Conn) (*Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, false
	}
	s.nextID++
	sess := &Session{
		ID:     s.nextID,
		server: s,
		conn:   conn,
		out:    make(chan []byte, sendBuffer),
		done:   make(chan struct{}),
		log:    s.log.With().Uint64("session", s.nextID).Logger(),
	}
	s.sessions[sess.ID] = sess
	sess.log.Debug().Str("remote", conn.RemoteAddr().String()).Msg("session opened")
	return sess, true
}

func (s *Server) remove(id uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, id)
}

// Sessions returns the number of connected clients.
func (s *Server) Sessions() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

func (s *Server) broadcast(msg Message) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, sess := range s.sessions {
		sess.send(msg)
	}
}

// Close disconnects every client and unsubscribes from the controller.
func (s *Server) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	sessions := make([]*Session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		sessions = append(sessions, sess)
	}
	s.mu.Unlock()

	for _, sess := range sessions {
		sess.close()
	}
	s.loop.Post(func() {
		for _, unsub := range s.unsubscribe {
			unsub()
		}
		s.unsubscribe = nil
	})
}

// Session is one connected client.
type Session struct {
	ID uint64

	server    *Server
	conn      *websocket.Conn
	out       chan []byte
	done      chan struct{}
	closeOnce sync.Once
	log       zerolog.Logger
}

// send queues msg. A client that cannot keep up loses the frame.
func (c *Session) send(msg Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		c.log.Error().Err(err).Msg("failed to encode frame")
		return
	}
	select {
	case <-c.done:
	case c.out <- data:
	default:
		c.log.Warn().Str("type", string(msg.Type)).Msg("send buffer full, dropping frame")
	}
}

func (c *Session) close() {
	c.closeOnce.Do(func() {
		close(c.done)
		c.conn.Close()
		c.server.remove(c.ID)
		c.log.Debug().Msg("session closed")
	})
}

func (c *Session) reader() {
	defer c.close()

	c.conn.SetReadLimit(64 << 10)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		kind, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.log.Warn().Err(err).Msg("unexpected close")
			}
			return
		}
		if kind != websocket.TextMessage {
			continue
		}

		cmd, act, err := DecodeCommand(data)
		if err != nil {
			c.log.Debug().Err(err).Msg("rejected command")
			c.send(Message{Type: FrameError, Error: err.Error()})
			continue
		}
		c.log.Debug().Str("op", string(cmd.Op)).Msg("command")
		server := c.server
		server.loop.Post(func() {
			act(server.ctrl)
			// Zoom, layout and source changes are not carried by a signal.
			server.stateChanged()
		})
	}
}

func (c *Session) writer() {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.close()
	}()

	for {
		select {
		case data := <-c.out:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				c.log.Debug().Err(err).Msg("write failed")
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.done:
			c.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(writeWait))
			return
		}
	}
}
