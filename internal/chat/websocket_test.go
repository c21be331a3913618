package chat

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/chatsense/chatsense/internal/domain"
)

func newTestHandler(t *testing.T, repo *fakeRepo) (*WebSocketHandler, *Processor) {
	t.Helper()
	registry := NewRegistry()
	limiter := NewLimiter(100, time.Minute, 0, 0)
	proc := NewProcessor(registry, repo, happyAnalyzer(), limiter, ProcessorOptions{})
	agg := NewAggregator(repo, 100)
	h := NewWebSocketHandler(registry, repo, proc, agg, limiter, WebSocketHandlerOptions{
		DefaultRoom: "general",
	})
	return h, proc
}

func TestDispatch_AnalyticsWhitespaceRoomDefaults(t *testing.T) {
	repo := newFakeRepo()
	seedMessage(t, repo, "general", "joy", nil, nil)
	h, proc := newTestHandler(t, repo)
	defer proc.Close()

	sess := NewSession(nil)
	data, err := json.Marshal(AnalyticsPayload{Room: "   "})
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	h.dispatch(context.Background(), sess, Envelope{Type: EventGetAnalytics, Data: data})

	env := nextEvent(t, sess)
	if env.Type != EventAnalyticsUpdate {
		t.Fatalf("Expected analytics_update, got %s", env.Type)
	}
	var snapshot domain.AnalyticsSnapshot
	decodeData(t, env, &snapshot)
	if snapshot.Room != "general" {
		t.Errorf("Expected analytics for general, got %q", snapshot.Room)
	}
	if snapshot.MessageCount != 1 {
		t.Errorf("Expected message_count 1, got %d", snapshot.MessageCount)
	}
}

func TestDispatch_UnknownEventType(t *testing.T) {
	h, proc := newTestHandler(t, newFakeRepo())
	defer proc.Close()

	sess := NewSession(nil)
	h.dispatch(context.Background(), sess, Envelope{Type: "bogus"})

	env := nextEvent(t, sess)
	if env.Type != EventError {
		t.Fatalf("Expected error, got %s", env.Type)
	}
	var payload ErrorPayload
	decodeData(t, env, &payload)
	if payload.Message != "Unknown event type" {
		t.Errorf("Unexpected error message: %q", payload.Message)
	}
}
