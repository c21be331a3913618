package domain

import (
	"time"
)

// User is a persistent identity keyed by username. Created lazily on first
// join or first message, updated on every join and accepted message.
type User struct {
	Username     string    `json:"username"`
	CreatedAt    time.Time `json:"created_at"`
	LastActive   time.Time `json:"last_active"`
	MessageCount int64     `json:"message_count"`
}
