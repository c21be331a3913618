// Package analyzer provides the client for the external text-analysis
// service that annotates messages with emotion, entities, and per-entity
// sentiment.
package analyzer

import (
	"context"
	"errors"

	"github.com/chatsense/chatsense/internal/domain"
)

// ErrUnavailable indicates the analyzer service is not configured or not
// reachable. Callers substitute a neutral analysis on this error.
var ErrUnavailable = errors.New("analyzer unavailable")

// Analyzer annotates message text. Implementations must be safe for
// concurrent use.
type Analyzer interface {
	// Analyze runs the full analysis pipeline on one message text.
	// The caller bounds the call with a deadline context.
	Analyze(ctx context.Context, text string) (*domain.Analysis, error)

	// Ready reports whether the underlying service is up and its models
	// are loaded.
	Ready(ctx context.Context) bool
}

type unavailable struct{}

func (unavailable) Analyze(ctx context.Context, text string) (*domain.Analysis, error) {
	return nil, ErrUnavailable
}

func (unavailable) Ready(ctx context.Context) bool { return false }

// Unavailable returns an Analyzer that always reports the service as
// down. Used when no analyzer address is configured, so the rest of the
// pipeline degrades to neutral analysis instead of branching on nil.
func Unavailable() Analyzer {
	return unavailable{}
}
