package relay

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

const (
	// Path is where the relay endpoint is mounted
	Path = "/relay"

	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10

	sendBuffer = 256
)

var (
	// ErrTabClosed is returned by Push after the connection went away
	ErrTabClosed = errors.New("tab closed")
	// ErrTabBusy is returned by Push when the send buffer is full
	ErrTabBusy = errors.New("tab send buffer full")
)

// Server accepts relay connections. Each connection is one tab.
type Server struct {
	handler  Handler
	upgrader websocket.Upgrader
	log      logrus.FieldLogger

	// requests outlive the tab that sent them
	ctx context.Context

	mu   sync.RWMutex
	tabs map[string]*tab
}

// NewServer creates a Server. Requests run under ctx.
func NewServer(ctx context.Context, handler Handler, log logrus.FieldLogger) *Server {
	return &Server{
		handler: handler,
		log:     log,
		ctx:     ctx,
		tabs:    make(map[string]*tab),
		upgrader: websocket.Upgrader{
			CheckOrigin: localOrigin,
		},
	}
}

// localOrigin accepts requests without an Origin header and those from
// loopback hosts
func localOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	host := u.Hostname()
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

// TabCount returns the number of connected tabs
func (s *Server) TabCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.tabs)
}

// ServeHTTP upgrades the connection and serves it until it closes
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.WithError(err).Warn("websocket upgrade failed")
		return
	}

	t := &tab{
		id:   uuid.NewString(),
		conn: conn,
		send: make(chan []byte, sendBuffer),
		done: make(chan struct{}),
	}

	s.mu.Lock()
	s.tabs[t.id] = t
	s.mu.Unlock()
	s.log.WithField("tab", t.id).Debug("tab connected")

	go t.writePump()
	go s.readPump(t)
}

// ListenAndServe serves the relay on addr until ctx is cancelled
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle(Path, s)

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: writeWait,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()
	s.log.WithField("addr", addr).Info("relay listening")

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), writeWait)
		defer cancel()
		s.closeAll()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		return nil
	}
}

// Broadcast pushes msg to every connected tab and returns how many
// accepted it
func (s *Server) Broadcast(msg Message) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sent := 0
	for _, t := range s.tabs {
		if err := t.Push(msg); err != nil {
			s.log.WithError(err).WithField("tab", t.id).Debug("broadcast not delivered")
			continue
		}
		sent++
	}
	return sent
}

func (s *Server) closeAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range s.tabs {
		t.close()
	}
}

func (s *Server) readPump(t *tab) {
	log := s.log.WithField("tab", t.id)
	defer func() {
		s.mu.Lock()
		delete(s.tabs, t.id)
		s.mu.Unlock()
		t.close()
		log.Debug("tab disconnected")
	}()

	t.conn.SetReadDeadline(time.Now().Add(pongWait))
	t.conn.SetPongHandler(func(string) error {
		t.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		messageType, data, err := t.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.WithError(err).Warn("websocket read failed")
			}
			return
		}
		if messageType != websocket.TextMessage {
			continue
		}

		var msg Message
		if err := json.Unmarshal(data, &msg); err != nil {
			log.WithError(err).Debug("ignoring malformed message")
			continue
		}

		go func(msg Message) {
			reply := s.handler.Handle(s.ctx, t, msg)
			reply.ID = msg.ID
			if err := t.deliver(reply); err != nil {
				log.WithError(err).WithField("type", msg.Type).Debug("reply not delivered")
			}
		}(msg)
	}
}

// tab is one connected client
type tab struct {
	id   string
	conn *websocket.Conn
	send chan []byte

	done      chan struct{}
	closeOnce sync.Once
}

func (t *tab) ID() string {
	return t.id
}

// Push queues msg without blocking. Chunks are dropped when the tab is gone
// or its buffer is full.
func (t *tab) Push(msg Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	select {
	case <-t.done:
		return ErrTabClosed
	default:
	}
	select {
	case t.send <- data:
		return nil
	case <-t.done:
		return ErrTabClosed
	default:
		return ErrTabBusy
	}
}

// deliver queues msg, waiting for buffer space until the tab closes
func (t *tab) deliver(msg Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	select {
	case t.send <- data:
		return nil
	case <-t.done:
		return ErrTabClosed
	}
}

func (t *tab) close() {
	t.closeOnce.Do(func() {
		close(t.done)
	})
}

func (t *tab) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		t.conn.Close()
	}()

	for {
		select {
		case data := <-t.send:
			t.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := t.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				t.close()
				return
			}

		case <-ticker.C:
			t.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := t.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				t.close()
				return
			}

		case <-t.done:
			t.conn.SetWriteDeadline(time.Now().Add(writeWait))
			t.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}
