package chat

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/chatsense/chatsense/internal/metrics"
	"github.com/coder/websocket"
	"github.com/google/uuid"
)

// sessionSendBuffer bounds the per-session outbound queue. A session
// whose buffer stays full has its events dropped rather than stalling
// room broadcasts.
const sessionSendBuffer = 64

// Session is one connected client's identity within the server process.
// Delivery goes through a buffered outbound channel drained by a write
// pump, so broadcasts never block on a slow connection.
type Session struct {
	ID          string
	ConnectedAt time.Time

	conn *websocket.Conn
	send chan []byte

	mu     sync.Mutex
	closed bool
	done   chan struct{}
}

// NewSession allocates a session for a connection. A nil conn is allowed
// in tests; Deliver then only fills the outbound channel.
func NewSession(conn *websocket.Conn) *Session {
	return &Session{
		ID:          uuid.NewString(),
		ConnectedAt: time.Now().UTC(),
		conn:        conn,
		send:        make(chan []byte, sessionSendBuffer),
		done:        make(chan struct{}),
	}
}

// Deliver queues an encoded event for the session without blocking.
// Returns false if the session is closed or its buffer is full; the
// event is dropped rather than stalling the caller.
func (s *Session) Deliver(data []byte) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return false
	}
	select {
	case s.send <- data:
		return true
	default:
		metrics.BroadcastsDropped.Inc()
		return false
	}
}

// DeliverEvent encodes and queues an event for this session alone.
func (s *Session) DeliverEvent(eventType string, payload any) {
	frame, err := encodeEvent(eventType, payload)
	if err != nil {
		slog.Error("Failed to encode event", "type", eventType, "session_id", s.ID, "error", err)
		return
	}
	s.Deliver(frame)
}

// Close marks the session closed. Idempotent; pending deliveries are
// discarded and the write pump exits.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}
	s.closed = true
	close(s.done)
}

// writePump drains the outbound channel onto the WebSocket connection
// until the session closes or a write fails.
func (s *Session) writePump() {
	for {
		select {
		case <-s.done:
			return
		case data := <-s.send:
			if s.conn == nil {
				continue
			}
			if err := s.conn.Write(context.Background(), websocket.MessageText, data); err != nil {
				slog.Debug("WebSocket write error", "session_id", s.ID, "error", err)
				s.Close()
				return
			}
		}
	}
}
