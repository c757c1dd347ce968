// Package store provides the durable memory storage interface and its
// SQLite implementation.
package store

import (
	"context"
	"time"

	"github.com/aurorahq/echomem/internal/model"
)

// Store defines the durable vector-record storage contract. Upsert is
// idempotent on the record hash; no cross-record transactional guarantee
// is required beyond per-row idempotency.
type Store interface {
	// Upsert writes records, silently skipping rows whose hash is already
	// present. Returns the count of newly-written rows.
	Upsert(ctx context.Context, records []model.MemoryRecord) (int, error)

	// ScanSince returns records with timestamp >= cutoff ordered by
	// (timestamp, turn).
	ScanSince(ctx context.Context, cutoff time.Time) ([]model.MemoryRecord, error)

	// ScanConversation returns a conversation's records ordered by
	// (timestamp, turn).
	ScanConversation(ctx context.Context, convID string) ([]model.MemoryRecord, error)

	// Count returns the total number of stored records.
	Count(ctx context.Context) (int, error)

	// Close closes the store.
	Close() error
}
