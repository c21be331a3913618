// Package store provides data persistence interfaces and implementations.
package store

import (
	"context"
	"time"

	"github.com/chatsense/chatsense/internal/domain"
)

// Repository defines the interface for persisting messages, users, and
// analytics buckets.
type Repository interface {
	// SaveMessage persists a message, assigning its ID and, if unset,
	// its timestamp.
	SaveMessage(ctx context.Context, msg *domain.Message) error

	// RecentMessages retrieves up to limit messages for a room,
	// newest first.
	RecentMessages(ctx context.Context, room string, limit int) ([]domain.Message, error)

	// UpsertUser creates the user if absent and bumps last_active.
	UpsertUser(ctx context.Context, username string) (*domain.User, error)

	// TouchUser updates the user's last_active timestamp.
	TouchUser(ctx context.Context, username string) error

	// IncrementMessageCount increments the user's accepted-message count
	// and bumps last_active.
	IncrementMessageCount(ctx context.Context, username string) error

	// RecordAnalysis accumulates per-room analytics counts for the given
	// hourly bucket.
	RecordAnalysis(ctx context.Context, room string, a domain.Analysis, bucket time.Time) error

	// Ping verifies database connectivity.
	Ping(ctx context.Context) error

	// Close closes the database connection.
	Close() error
}
