package server

import (
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/reago-dev/reago/pkg/reago"
)

// clientMessage is what a live client sends.
type clientMessage struct {
	Op   string   `json:"op"`
	Keys []string `json:"keys,omitempty"`
	Key  string   `json:"key,omitempty"`
	// Value has no omitempty: writing a zero value is still a write.
	Value any   `json:"value"`
	Args  []any `json:"args,omitempty"`
}

// serverMessage is what the session pushes.
type serverMessage struct {
	Op      string `json:"op"`
	Key     string `json:"key,omitempty"`
	Value   any    `json:"value"`
	Initial any    `json:"initial"`
	Error   string `json:"error,omitempty"`
}

// session is one live WebSocket consumer. It is the host side of the
// model's external subscription primitive: every watched cell is bound
// through a keyBinder, whose change callback enqueues a push.
type session struct {
	server *Server
	conn   *websocket.Conn
	logger *slog.Logger

	send chan serverMessage
	done chan struct{}

	closed atomic.Bool

	// mu protects unsubs and watched.
	mu      sync.Mutex
	unsubs  map[string]func()
	watched map[string]bool
}

func newSession(s *Server, conn *websocket.Conn) *session {
	return &session{
		server:  s,
		conn:    conn,
		logger:  s.logger.With("remote", conn.RemoteAddr().String()),
		send:    make(chan serverMessage, s.config.SendBuffer),
		done:    make(chan struct{}),
		unsubs:  make(map[string]func()),
		watched: make(map[string]bool),
	}
}

func (s *session) start() {
	go s.writeLoop()
	s.readLoop()
}

// readLoop decodes client messages until the connection dies.
func (s *session) readLoop() {
	defer s.close()

	s.conn.SetReadDeadline(time.Now().Add(s.server.config.ReadTimeout))
	s.conn.SetPongHandler(func(string) error {
		s.conn.SetReadDeadline(time.Now().Add(s.server.config.ReadTimeout))
		return nil
	})

	for {
		var msg clientMessage
		if err := s.conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err,
				websocket.CloseGoingAway,
				websocket.CloseAbnormalClosure,
				websocket.CloseNormalClosure) {
				s.logger.Error("read error", "error", err)
			}
			return
		}
		s.conn.SetReadDeadline(time.Now().Add(s.server.config.ReadTimeout))

		switch msg.Op {
		case "watch":
			s.handleWatch(msg.Keys)
		case "unwatch":
			s.handleUnwatch(msg.Keys)
		case "set":
			if err := s.server.model.Set(msg.Key, msg.Value); err != nil {
				s.sendError(err)
			}
		case "call":
			if _, err := s.server.model.Call(msg.Key, msg.Args...); err != nil {
				s.sendError(err)
			}
		default:
			s.sendError(&reago.InvalidArgumentError{Reason: "unknown op " + msg.Op})
		}
	}
}

// handleWatch binds each requested cell through the session. An empty key
// list watches every cell. Already-watched keys are skipped so repeated
// watch messages do not stack subscriptions.
func (s *session) handleWatch(keys []string) {
	if len(keys) == 0 {
		keys = s.server.model.Keys()
	}

	for _, key := range keys {
		s.mu.Lock()
		already := s.watched[key]
		s.mu.Unlock()
		if already {
			continue
		}

		binder := &keyBinder{session: s, key: key}
		var err error
		reago.WithBinder(binder, func() {
			_, err = s.server.model.Watch(key)
		})
		if err != nil {
			s.sendError(err)
			return
		}

		s.mu.Lock()
		s.watched[key] = true
		s.mu.Unlock()
	}
}

// handleUnwatch releases the subscriptions for the named keys, or all of
// them when the list is empty.
func (s *session) handleUnwatch(keys []string) {
	s.mu.Lock()
	if len(keys) == 0 {
		for key := range s.watched {
			keys = append(keys, key)
		}
	}
	var unsubs []func()
	for _, key := range keys {
		if unsub, ok := s.unsubs[key]; ok {
			unsubs = append(unsubs, unsub)
			delete(s.unsubs, key)
		}
		delete(s.watched, key)
	}
	s.mu.Unlock()

	for _, unsub := range unsubs {
		unsub()
	}
	s.push(serverMessage{Op: "unwatched"})
}

// keyBinder is the external subscription primitive for one watched cell.
// Bind wires the cell's change notification to a push of the fresh
// snapshot, keeps the unsubscribe handle for teardown, and reports the
// initial watch result to the client.
type keyBinder struct {
	session *session
	key     string
}

func (b *keyBinder) Bind(subscribe func(onChange func()) (unsubscribe func()), snapshot, initial func() any) any {
	sess, key := b.session, b.key

	unsub := subscribe(func() {
		sess.push(serverMessage{Op: "change", Key: key, Value: snapshot()})
	})

	sess.mu.Lock()
	sess.unsubs[key] = unsub
	sess.mu.Unlock()

	value := snapshot()
	sess.push(serverMessage{Op: "watched", Key: key, Value: value, Initial: initial()})
	return value
}

// push enqueues a message; a session whose queue is full is closed rather
// than allowed to stall the writer.
func (s *session) push(msg serverMessage) {
	if s.closed.Load() {
		return
	}
	select {
	case s.send <- msg:
	default:
		s.logger.Warn("send queue full, closing session")
		s.close()
	}
}

func (s *session) sendError(err error) {
	s.push(serverMessage{Op: "error", Error: err.Error()})
}

// writeLoop drains the send queue and heartbeats.
func (s *session) writeLoop() {
	ticker := time.NewTicker(s.server.config.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case msg := <-s.send:
			s.conn.SetWriteDeadline(time.Now().Add(s.server.config.WriteTimeout))
			if err := s.conn.WriteJSON(msg); err != nil {
				s.logger.Error("write error", "error", err)
				s.close()
				return
			}

		case <-ticker.C:
			s.conn.SetWriteDeadline(time.Now().Add(s.server.config.WriteTimeout))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				s.close()
				return
			}

		case <-s.done:
			return
		}
	}
}

// close tears the session down: releases every cell subscription, then
// closes the connection. Idempotent.
func (s *session) close() {
	if s.closed.Swap(true) {
		return
	}

	s.mu.Lock()
	unsubs := make([]func(), 0, len(s.unsubs))
	for _, unsub := range s.unsubs {
		unsubs = append(unsubs, unsub)
	}
	s.unsubs = map[string]func(){}
	s.watched = map[string]bool{}
	s.mu.Unlock()

	for _, unsub := range unsubs {
		unsub()
	}

	close(s.done)
	s.conn.Close()
}
