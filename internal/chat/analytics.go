package chat

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/chatsense/chatsense/internal/domain"
	"github.com/chatsense/chatsense/internal/store"
)

// Aggregator computes on-demand rolling statistics over a room's recent
// message window. Pull model: every snapshot is recomputed fresh from
// the store, nothing is cached or incrementally maintained.
type Aggregator struct {
	repo   store.Repository
	window int
}

// NewAggregator creates an aggregator over the most recent window
// messages per room.
func NewAggregator(repo store.Repository, window int) *Aggregator {
	if window <= 0 {
		window = 100
	}
	return &Aggregator{repo: repo, window: window}
}

// Snapshot aggregates the room's recent window: emotion distribution,
// top 10 entities by count, and sentiment distribution. Entity ties are
// broken in favor of the entity first encountered while scanning the
// window newest-to-oldest.
func (a *Aggregator) Snapshot(ctx context.Context, room string) (*domain.AnalyticsSnapshot, error) {
	messages, err := a.repo.RecentMessages(ctx, room, a.window)
	if err != nil {
		return nil, fmt.Errorf("load analytics window: %w", err)
	}

	emotions := map[string]int{}
	sentiments := map[string]int{
		domain.SentimentPositive: 0,
		domain.SentimentNegative: 0,
		domain.SentimentNeutral:  0,
	}

	entityCounts := map[string]int{}
	entityOrder := map[string]int{} // first-seen rank, newest message first

	for _, msg := range messages {
		if msg.Emotion != "" {
			emotions[msg.Emotion]++
		}
		for _, ent := range msg.Entities {
			if _, seen := entityCounts[ent.Text]; !seen {
				entityOrder[ent.Text] = len(entityOrder)
			}
			entityCounts[ent.Text]++
		}
		for _, sentiment := range msg.AspectSentiment {
			sentiments[sentiment]++
		}
	}

	top := make([]domain.EntityCount, 0, len(entityCounts))
	for entity, count := range entityCounts {
		top = append(top, domain.EntityCount{Entity: entity, Count: count})
	}
	sort.Slice(top, func(i, j int) bool {
		if top[i].Count != top[j].Count {
			return top[i].Count > top[j].Count
		}
		return entityOrder[top[i].Entity] < entityOrder[top[j].Entity]
	})
	if len(top) > 10 {
		top = top[:10]
	}

	return &domain.AnalyticsSnapshot{
		Room:                  room,
		MessageCount:          len(messages),
		EmotionDistribution:   emotions,
		TopEntities:           top,
		SentimentDistribution: sentiments,
		Timestamp:             time.Now().UTC(),
	}, nil
}
