// Package cache defines the storage contract for cached upstream responses.
//
// A Store never judges freshness; callers combine it with an expiry.Policy.
package cache

import (
	"context"
	"time"

	"github.com/pario-ai/larder/pkg/models"
)

// Store maps request URLs to cached responses.
type Store interface {
	// Get returns the entry stored under key. ok is false when nothing is stored.
	Get(ctx context.Context, key string) (entry models.CacheEntry, ok bool, err error)
	// Put stores entry under entry.Key, replacing any previous entry.
	Put(ctx context.Context, entry models.CacheEntry) error
	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error
	// Keys lists every stored key in no particular order.
	Keys(ctx context.Context) ([]string, error)
	// DeleteIfStoredBefore removes key only if its entry was stored at or
	// before cutoff, and reports whether it did. An entry rewritten after
	// cutoff is left alone.
	DeleteIfStoredBefore(ctx context.Context, key string, cutoff time.Time) (bool, error)
}

// Statter reports backend contents.
type Statter interface {
	Stats(ctx context.Context) (models.StoreStats, error)
}

// Clearer removes every entry and reports how many were removed.
type Clearer interface {
	Clear(ctx context.Context) (int64, error)
}

// Lister describes stored entries without loading payloads.
type Lister interface {
	List(ctx context.Context) ([]models.EntryInfo, error)
}
