package domain

import (
	"time"
)

// EntityCount pairs an entity text with its occurrence count inside an
// analytics window.
type EntityCount struct {
	Entity string `json:"entity"`
	Count  int    `json:"count"`
}

// AnalyticsSnapshot is a point-in-time aggregate over a room's most recent
// messages. It is derived on demand and never persisted.
type AnalyticsSnapshot struct {
	Room                  string         `json:"room"`
	MessageCount          int            `json:"message_count"`
	EmotionDistribution   map[string]int `json:"emotion_distribution"`
	TopEntities           []EntityCount  `json:"top_entities"`
	SentimentDistribution map[string]int `json:"sentiment_distribution"`
	Timestamp             time.Time      `json:"timestamp"`
}
