package chat

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/chatsense/chatsense/internal/domain"
	"github.com/chatsense/chatsense/internal/metrics"
	"github.com/chatsense/chatsense/internal/store"
	"github.com/coder/websocket"
)

// WebSocketHandlerOptions configures the realtime endpoint.
type WebSocketHandlerOptions struct {
	AllowedOrigin string
	IsDev         bool
	DefaultRoom   string
	HistoryLimit  int
	StoreTimeout  time.Duration
}

// WebSocketHandler speaks the JSON event protocol over one persistent
// connection per session.
type WebSocketHandler struct {
	registry  *Registry
	repo      store.Repository
	processor *Processor
	analytics *Aggregator
	limiter   *Limiter
	opts      WebSocketHandlerOptions
}

// NewWebSocketHandler creates the realtime chat handler.
func NewWebSocketHandler(registry *Registry, repo store.Repository, processor *Processor, analytics *Aggregator, limiter *Limiter, opts WebSocketHandlerOptions) *WebSocketHandler {
	if opts.DefaultRoom == "" {
		opts.DefaultRoom = "general"
	}
	if opts.HistoryLimit <= 0 {
		opts.HistoryLimit = 50
	}
	if opts.StoreTimeout <= 0 {
		opts.StoreTimeout = 5 * time.Second
	}

	return &WebSocketHandler{
		registry:  registry,
		repo:      repo,
		processor: processor,
		analytics: analytics,
		limiter:   limiter,
		opts:      opts,
	}
}

// ServeHTTP implements http.Handler for WebSocket upgrade.
func (h *WebSocketHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !h.checkOrigin(r) {
		http.Error(w, "origin not allowed", http.StatusForbidden)
		return
	}

	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		slog.Error("Failed to accept WebSocket", "error", err, "ip", r.RemoteAddr)
		return
	}
	defer func() {
		if closeErr := ws.Close(websocket.StatusNormalClosure, "session ended"); closeErr != nil {
			slog.Debug("Failed to close websocket", "error", closeErr)
		}
	}()

	sess := NewSession(ws)
	metrics.ActiveSessions.Inc()
	slog.Info("Session connected", "session_id", sess.ID, "ip", r.RemoteAddr)

	go sess.writePump()

	defer func() {
		// Cleanup must never fail loudly toward the now-gone session.
		h.registry.Disconnect(sess)
		h.limiter.Forget(sess.ID)
		sess.Close()
		metrics.ActiveSessions.Dec()
		slog.Info("Session disconnected", "session_id", sess.ID)
	}()

	sess.DeliverEvent(EventConnectionResponse, ConnectionResponse{
		Status:    "connected",
		SessionID: sess.ID,
	})

	ctx := r.Context()
	for {
		_, frame, err := ws.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) != -1 || errors.Is(err, context.Canceled) {
				slog.Debug("WebSocket closed by client", "session_id", sess.ID)
			} else {
				slog.Warn("WebSocket read error", "session_id", sess.ID, "error", err)
			}
			return
		}

		var env Envelope
		if err := json.Unmarshal(frame, &env); err != nil {
			sess.DeliverEvent(EventError, ErrorPayload{Message: "Invalid event"})
			continue
		}

		h.dispatch(ctx, sess, env)
	}
}

func (h *WebSocketHandler) dispatch(ctx context.Context, sess *Session, env Envelope) {
	switch env.Type {
	case EventJoin:
		var p JoinPayload
		if err := json.Unmarshal(env.Data, &p); err != nil {
			sess.DeliverEvent(EventError, ErrorPayload{Message: "Invalid event"})
			return
		}
		p.normalize(h.opts.DefaultRoom)
		h.handleJoin(ctx, sess, p)

	case EventLeave:
		var p JoinPayload
		if err := json.Unmarshal(env.Data, &p); err != nil {
			sess.DeliverEvent(EventError, ErrorPayload{Message: "Invalid event"})
			return
		}
		p.normalize(h.opts.DefaultRoom)
		h.registry.Leave(sess, p.Username, p.Room)
		storeCtx, cancel := context.WithTimeout(ctx, h.opts.StoreTimeout)
		if err := h.repo.TouchUser(storeCtx, p.Username); err != nil {
			slog.Warn("Failed to touch user on leave", "username", p.Username, "error", err)
		}
		cancel()

	case EventSendMessage:
		var p SendMessagePayload
		if err := json.Unmarshal(env.Data, &p); err != nil {
			sess.DeliverEvent(EventError, ErrorPayload{Message: "Invalid event"})
			return
		}
		p.normalize(h.opts.DefaultRoom)
		if err := h.processor.Submit(sess, p.Username, p.Room, p.Text); err != nil {
			sess.DeliverEvent(EventError, ErrorPayload{Message: ErrorMessage(err)})
		}

	case EventGetAnalytics:
		var p AnalyticsPayload
		if err := json.Unmarshal(env.Data, &p); err != nil {
			sess.DeliverEvent(EventError, ErrorPayload{Message: "Invalid event"})
			return
		}
		p.normalize(h.opts.DefaultRoom)
		h.handleAnalytics(ctx, sess, p.Room)

	default:
		sess.DeliverEvent(EventError, ErrorPayload{Message: "Unknown event type"})
	}
}

// handleJoin records membership (the registry broadcasts user_joined),
// upserts the user record, and replies to the joiner alone with recent
// history in chronological order.
func (h *WebSocketHandler) handleJoin(ctx context.Context, sess *Session, p JoinPayload) {
	h.registry.Join(sess, p.Username, p.Room)

	storeCtx, cancel := context.WithTimeout(ctx, h.opts.StoreTimeout)
	defer cancel()

	if _, err := h.repo.UpsertUser(storeCtx, p.Username); err != nil {
		slog.Warn("Failed to upsert user on join", "username", p.Username, "error", err)
	}

	recent, err := h.repo.RecentMessages(storeCtx, p.Room, h.opts.HistoryLimit)
	if err != nil {
		slog.Warn("Failed to load message history", "room", p.Room, "error", err)
		sess.DeliverEvent(EventError, ErrorPayload{Message: "Failed to load history"})
		return
	}

	sess.DeliverEvent(EventMessageHistory, MessageHistoryPayload{
		Messages: chronological(recent),
	})
}

func (h *WebSocketHandler) handleAnalytics(ctx context.Context, sess *Session, room string) {
	storeCtx, cancel := context.WithTimeout(ctx, h.opts.StoreTimeout)
	defer cancel()

	snapshot, err := h.analytics.Snapshot(storeCtx, room)
	if err != nil {
		slog.Error("Failed to compute analytics", "room", room, "error", err)
		sess.DeliverEvent(EventError, ErrorPayload{Message: "Failed to get analytics"})
		return
	}

	sess.DeliverEvent(EventAnalyticsUpdate, snapshot)
}

func (h *WebSocketHandler) checkOrigin(r *http.Request) bool {
	if h.opts.IsDev {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" || h.opts.AllowedOrigin == "" || h.opts.AllowedOrigin == "*" {
		return true
	}
	if origin == h.opts.AllowedOrigin {
		return true
	}
	slog.Warn("WebSocket origin rejected", "origin", origin, "allowed", h.opts.AllowedOrigin)
	return false
}

// chronological reverses a newest-first slice into oldest-first order.
func chronological(messages []domain.Message) []domain.Message {
	out := make([]domain.Message, len(messages))
	for i, msg := range messages {
		out[len(messages)-1-i] = msg
	}
	return out
}
