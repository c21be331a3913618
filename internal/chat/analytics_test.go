package chat

import (
	"context"
	"testing"
	"time"

	"github.com/chatsense/chatsense/internal/domain"
)

func seedMessage(t *testing.T, repo *fakeRepo, room, emotion string, entities []string, sentiments map[string]string) {
	t.Helper()
	msg := domain.Message{Username: "alice", Room: room, Text: "seed"}
	ents := make([]domain.Entity, 0, len(entities))
	for _, e := range entities {
		ents = append(ents, domain.Entity{Text: e, Label: "MISC"})
	}
	msg.SetAnalysis(domain.Analysis{
		Emotion:         emotion,
		EmotionScores:   map[string]float64{},
		Entities:        ents,
		AspectSentiment: sentiments,
	})
	if err := repo.SaveMessage(context.Background(), &msg); err != nil {
		t.Fatalf("SaveMessage failed: %v", err)
	}
}

func TestAggregator_EmptyRoom(t *testing.T) {
	agg := NewAggregator(newFakeRepo(), 100)

	snapshot, err := agg.Snapshot(context.Background(), "general")
	if err != nil {
		t.Fatalf("Snapshot failed: %v", err)
	}

	if snapshot.MessageCount != 0 {
		t.Errorf("Expected message_count 0, got %d", snapshot.MessageCount)
	}
	if len(snapshot.EmotionDistribution) != 0 {
		t.Errorf("Expected empty emotion distribution, got %v", snapshot.EmotionDistribution)
	}
	if len(snapshot.TopEntities) != 0 {
		t.Errorf("Expected empty top entities, got %v", snapshot.TopEntities)
	}
	for _, key := range []string{domain.SentimentPositive, domain.SentimentNegative, domain.SentimentNeutral} {
		if count, ok := snapshot.SentimentDistribution[key]; !ok || count != 0 {
			t.Errorf("Expected sentiment %s present with 0, got %v", key, snapshot.SentimentDistribution)
		}
	}
}

func TestAggregator_Distributions(t *testing.T) {
	repo := newFakeRepo()
	seedMessage(t, repo, "general", "joy", []string{"Go"}, map[string]string{"Go": domain.SentimentPositive})
	seedMessage(t, repo, "general", "joy", nil, nil)
	seedMessage(t, repo, "general", "anger", []string{"Go", "Rust"}, map[string]string{
		"Go":   domain.SentimentNegative,
		"Rust": domain.SentimentNeutral,
	})
	seedMessage(t, repo, "general", "", nil, nil)
	// Other rooms never leak into the window.
	seedMessage(t, repo, "random", "fear", []string{"Python"}, nil)

	agg := NewAggregator(repo, 100)
	snapshot, err := agg.Snapshot(context.Background(), "general")
	if err != nil {
		t.Fatalf("Snapshot failed: %v", err)
	}

	if snapshot.MessageCount != 4 {
		t.Errorf("Expected message_count 4, got %d", snapshot.MessageCount)
	}
	if snapshot.EmotionDistribution["joy"] != 2 || snapshot.EmotionDistribution["anger"] != 1 {
		t.Errorf("Unexpected emotion distribution: %v", snapshot.EmotionDistribution)
	}
	if _, ok := snapshot.EmotionDistribution[""]; ok {
		t.Error("Empty emotions must not be counted")
	}

	if len(snapshot.TopEntities) != 2 {
		t.Fatalf("Expected 2 entities, got %v", snapshot.TopEntities)
	}
	if snapshot.TopEntities[0].Entity != "Go" || snapshot.TopEntities[0].Count != 2 {
		t.Errorf("Expected Go with count 2 first, got %+v", snapshot.TopEntities[0])
	}

	want := map[string]int{
		domain.SentimentPositive: 1,
		domain.SentimentNegative: 1,
		domain.SentimentNeutral:  1,
	}
	for key, count := range want {
		if snapshot.SentimentDistribution[key] != count {
			t.Errorf("Expected %s=%d, got %d", key, count, snapshot.SentimentDistribution[key])
		}
	}
}

func TestAggregator_TopEntityTiesFavorNewest(t *testing.T) {
	repo := newFakeRepo()
	// Oldest first: Old appears in the oldest message, New in the most
	// recent one; both end up with count 1.
	seedMessage(t, repo, "general", "joy", []string{"Old"}, nil)
	seedMessage(t, repo, "general", "joy", []string{"New"}, nil)

	agg := NewAggregator(repo, 100)
	snapshot, err := agg.Snapshot(context.Background(), "general")
	if err != nil {
		t.Fatalf("Snapshot failed: %v", err)
	}

	if len(snapshot.TopEntities) != 2 {
		t.Fatalf("Expected 2 entities, got %v", snapshot.TopEntities)
	}
	if snapshot.TopEntities[0].Entity != "New" {
		t.Errorf("Tie should favor the entity from the more recent message, got %+v", snapshot.TopEntities)
	}
}

func TestAggregator_TopEntitiesCappedAtTen(t *testing.T) {
	repo := newFakeRepo()
	entities := []string{"a", "b", "c", "d", "e", "f", "g", "h", "i", "j", "k", "l"}
	seedMessage(t, repo, "general", "joy", entities, nil)

	agg := NewAggregator(repo, 100)
	snapshot, err := agg.Snapshot(context.Background(), "general")
	if err != nil {
		t.Fatalf("Snapshot failed: %v", err)
	}

	if len(snapshot.TopEntities) != 10 {
		t.Errorf("Expected top entities capped at 10, got %d", len(snapshot.TopEntities))
	}
}

func TestAggregator_WindowBoundsMessages(t *testing.T) {
	repo := newFakeRepo()
	for i := 0; i < 7; i++ {
		seedMessage(t, repo, "general", "joy", nil, nil)
	}

	agg := NewAggregator(repo, 5)
	snapshot, err := agg.Snapshot(context.Background(), "general")
	if err != nil {
		t.Fatalf("Snapshot failed: %v", err)
	}

	if snapshot.MessageCount != 5 {
		t.Errorf("Expected window of 5 messages, got %d", snapshot.MessageCount)
	}
	if snapshot.Timestamp.After(time.Now().UTC().Add(time.Second)) {
		t.Errorf("Snapshot timestamp in the future: %v", snapshot.Timestamp)
	}
}
