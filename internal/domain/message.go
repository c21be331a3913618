// Package domain contains core domain types for the chatsense server.
package domain

import (
	"time"
)

// Sentiment polarity values attributed to entities by the analyzer.
const (
	SentimentPositive = "positive"
	SentimentNegative = "negative"
	SentimentNeutral  = "neutral"
)

// EmotionNeutral is the fallback primary emotion used when analysis is
// unavailable.
const EmotionNeutral = "neutral"

// Entity is a named entity extracted from message text, with character
// offsets into the original text.
type Entity struct {
	Text  string `json:"text"`
	Label string `json:"label"`
	Start int    `json:"start"`
	End   int    `json:"end"`
}

// Analysis holds the annotations attached to a message by the analyzer.
// It is populated exactly once, when the message is created, and never
// recomputed.
type Analysis struct {
	Emotion         string             `json:"emotion"`
	EmotionScores   map[string]float64 `json:"emotion_scores"`
	Entities        []Entity           `json:"entities"`
	AspectSentiment map[string]string  `json:"aspect_sentiment"`
}

// NeutralAnalysis returns the default analysis substituted when the
// analyzer is unavailable or fails.
func NeutralAnalysis() Analysis {
	return Analysis{
		Emotion:         EmotionNeutral,
		EmotionScores:   map[string]float64{},
		Entities:        []Entity{},
		AspectSentiment: map[string]string{},
	}
}

// Message is a chat message with its analysis results. Immutable once
// persisted; ID and Timestamp are assigned by the store.
type Message struct {
	ID        int64     `json:"id"`
	Username  string    `json:"username"`
	Room      string    `json:"room"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`

	Emotion         string             `json:"emotion"`
	EmotionScores   map[string]float64 `json:"emotion_scores"`
	Entities        []Entity           `json:"entities"`
	AspectSentiment map[string]string  `json:"aspect_sentiment"`
}

// SetAnalysis copies analysis results onto the message.
func (m *Message) SetAnalysis(a Analysis) {
	m.Emotion = a.Emotion
	m.EmotionScores = a.EmotionScores
	m.Entities = a.Entities
	m.AspectSentiment = a.AspectSentiment
}

// AnalysisOf returns the message's analysis as a standalone value.
func (m *Message) AnalysisOf() Analysis {
	return Analysis{
		Emotion:         m.Emotion,
		EmotionScores:   m.EmotionScores,
		Entities:        m.Entities,
		AspectSentiment: m.AspectSentiment,
	}
}
