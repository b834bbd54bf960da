// Package audit persists moderation decisions for operator review.
package audit

import (
	"context"
	"errors"
	"time"
)

// Decision is one recorded moderation outcome for an inbound message.
type Decision struct {
	EventID   string
	SessionID string
	UserID    string
	Text      string
	Outcome   string
	Reason    string
	Timestamp time.Time
}

// Store persists moderation decisions.
// Implementations must be safe for concurrent use.
type Store interface {
	// Record stores one decision.
	Record(ctx context.Context, d Decision) error

	// Recent returns up to limit decisions, newest first.
	Recent(ctx context.Context, limit int) ([]Decision, error)

	// CountByOutcome returns decision counts grouped by outcome.
	CountByOutcome(ctx context.Context) (map[string]int, error)

	// Close releases any resources (connections, files).
	Close() error
}

// ErrStoreClosed indicates the store has been closed.
var ErrStoreClosed = errors.New("audit store closed")
