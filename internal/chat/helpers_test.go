package chat

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/chatsense/chatsense/internal/domain"
)

// fakeRepo is an in-memory store.Repository for pipeline tests.
type fakeRepo struct {
	mu       sync.Mutex
	messages []domain.Message
	nextID   int64
	saveErr  error
	users    map[string]*domain.User
	counts   map[string]int
	recorded int
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		users:  make(map[string]*domain.User),
		counts: make(map[string]int),
	}
}

func (f *fakeRepo) SaveMessage(ctx context.Context, msg *domain.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.saveErr != nil {
		return f.saveErr
	}
	f.nextID++
	msg.ID = f.nextID
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now().UTC()
	}
	f.messages = append(f.messages, *msg)
	return nil
}

func (f *fakeRepo) RecentMessages(ctx context.Context, room string, limit int) ([]domain.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.Message
	for i := len(f.messages) - 1; i >= 0 && len(out) < limit; i-- {
		if f.messages[i].Room == room {
			out = append(out, f.messages[i])
		}
	}
	return out, nil
}

func (f *fakeRepo) UpsertUser(ctx context.Context, username string) (*domain.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	user, ok := f.users[username]
	if !ok {
		user = &domain.User{Username: username, CreatedAt: time.Now().UTC()}
		f.users[username] = user
	}
	user.LastActive = time.Now().UTC()
	copied := *user
	return &copied, nil
}

func (f *fakeRepo) TouchUser(ctx context.Context, username string) error {
	return nil
}

func (f *fakeRepo) IncrementMessageCount(ctx context.Context, username string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.counts[username]++
	return nil
}

func (f *fakeRepo) RecordAnalysis(ctx context.Context, room string, a domain.Analysis, bucket time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.recorded++
	return nil
}

func (f *fakeRepo) Ping(ctx context.Context) error { return nil }
func (f *fakeRepo) Close() error                   { return nil }

func (f *fakeRepo) messageCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.messages)
}

func (f *fakeRepo) userCount(username string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.counts[username]
}

// fakeAnalyzer returns a fixed analysis or error.
type fakeAnalyzer struct {
	analysis *domain.Analysis
	err      error
	ready    bool
}

func (f *fakeAnalyzer) Analyze(ctx context.Context, text string) (*domain.Analysis, error) {
	if f.err != nil {
		return nil, f.err
	}
	copied := *f.analysis
	return &copied, nil
}

func (f *fakeAnalyzer) Ready(ctx context.Context) bool { return f.ready }

// nextEvent pops the session's next outbound event or fails the test.
func nextEvent(t *testing.T, s *Session) Envelope {
	t.Helper()
	select {
	case data := <-s.send:
		var env Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			t.Fatalf("Failed to decode envelope: %v", err)
		}
		return env
	case <-time.After(time.Second):
		t.Fatal("Expected an event, got none")
	}
	return Envelope{}
}

// decodeData unmarshals an envelope's data into out.
func decodeData(t *testing.T, env Envelope, out interface{}) {
	t.Helper()
	if err := json.Unmarshal(env.Data, out); err != nil {
		t.Fatalf("Failed to decode %s payload: %v", env.Type, err)
	}
}

// drainEvents discards everything currently queued for the session.
func drainEvents(s *Session) {
	for {
		select {
		case <-s.send:
		default:
			return
		}
	}
}

// requireNoEvent fails if the session has a queued event.
func requireNoEvent(t *testing.T, s *Session) {
	t.Helper()
	select {
	case data := <-s.send:
		t.Fatalf("Expected no event, got %s", data)
	default:
	}
}
