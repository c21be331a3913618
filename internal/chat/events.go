// Package chat implements the realtime chat core: session and room
// lifecycle, the per-message processing pipeline, and on-demand room
// analytics.
package chat

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/chatsense/chatsense/internal/domain"
)

// Client-to-server event types.
const (
	EventJoin         = "join"
	EventLeave        = "leave"
	EventSendMessage  = "send_message"
	EventGetAnalytics = "get_analytics"
)

// Server-to-client event types.
const (
	EventConnectionResponse = "connection_response"
	EventUserJoined         = "user_joined"
	EventUserLeft           = "user_left"
	EventMessageHistory     = "message_history"
	EventNewMessage         = "new_message"
	EventAnalyticsUpdate    = "analytics_update"
	EventError              = "error"
)

// DefaultUsername is substituted when a client omits the username field.
const DefaultUsername = "Anonymous"

// Envelope is the JSON frame exchanged in both directions over the
// WebSocket connection.
type Envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// JoinPayload carries join and leave requests.
type JoinPayload struct {
	Username string `json:"username"`
	Room     string `json:"room"`
}

func (p *JoinPayload) normalize(defaultRoom string) {
	if strings.TrimSpace(p.Username) == "" {
		p.Username = DefaultUsername
	}
	if strings.TrimSpace(p.Room) == "" {
		p.Room = defaultRoom
	}
}

// SendMessagePayload carries a message submission.
type SendMessagePayload struct {
	Username string `json:"username"`
	Room     string `json:"room"`
	Text     string `json:"text"`
}

func (p *SendMessagePayload) normalize(defaultRoom string) {
	if strings.TrimSpace(p.Username) == "" {
		p.Username = DefaultUsername
	}
	if strings.TrimSpace(p.Room) == "" {
		p.Room = defaultRoom
	}
}

// AnalyticsPayload carries an analytics request.
type AnalyticsPayload struct {
	Room string `json:"room"`
}

func (p *AnalyticsPayload) normalize(defaultRoom string) {
	if strings.TrimSpace(p.Room) == "" {
		p.Room = defaultRoom
	}
}

// ConnectionResponse acknowledges a new connection to that session alone.
type ConnectionResponse struct {
	Status    string `json:"status"`
	SessionID string `json:"session_id"`
}

// UserJoinedPayload is broadcast to a room when a session joins it.
type UserJoinedPayload struct {
	Username  string    `json:"username"`
	Room      string    `json:"room"`
	Timestamp time.Time `json:"timestamp"`
}

// UserLeftPayload is broadcast to a room when a session leaves it.
type UserLeftPayload struct {
	Username string `json:"username"`
	Room     string `json:"room"`
}

// MessageHistoryPayload is sent to a joining session alone, messages in
// chronological order.
type MessageHistoryPayload struct {
	Messages []domain.Message `json:"messages"`
}

// NewMessagePayload is broadcast to a room for each accepted message,
// with the analysis nested under its own key.
type NewMessagePayload struct {
	ID        int64           `json:"id"`
	Username  string          `json:"username"`
	Room      string          `json:"room"`
	Text      string          `json:"text"`
	Timestamp time.Time       `json:"timestamp"`
	Analysis  domain.Analysis `json:"analysis"`
}

// ErrorPayload is delivered to the originating session only.
type ErrorPayload struct {
	Message string `json:"message"`
}

// Validation sentinels surfaced by Submit. The WebSocket layer maps them
// to protocol error events via ErrorMessage.
var (
	ErrEmptyMessage = errors.New("empty message")
	ErrRateLimited  = errors.New("rate limit exceeded")
	ErrShuttingDown = errors.New("server shutting down")
)

// MessageTooLongError reports an over-length submission and carries the
// configured limit for the error payload.
type MessageTooLongError struct {
	Limit int
}

func (e *MessageTooLongError) Error() string {
	return fmt.Sprintf("message too long (max %d chars)", e.Limit)
}

// ErrorMessage converts a pipeline error into the protocol-facing error
// text.
func ErrorMessage(err error) string {
	var tooLong *MessageTooLongError
	switch {
	case errors.Is(err, ErrEmptyMessage):
		return "Empty message"
	case errors.As(err, &tooLong):
		return fmt.Sprintf("Message too long (max %d chars)", tooLong.Limit)
	case errors.Is(err, ErrRateLimited):
		return "Rate limit exceeded"
	default:
		return "Failed to process message"
	}
}

// encodeEvent marshals an outbound envelope.
func encodeEvent(eventType string, payload any) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", eventType, err)
	}
	frame, err := json.Marshal(Envelope{Type: eventType, Data: data})
	if err != nil {
		return nil, fmt.Errorf("marshal %s envelope: %w", eventType, err)
	}
	return frame, nil
}
