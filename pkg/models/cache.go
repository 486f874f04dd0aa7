package models

import (
	"encoding/json"
	"time"
)

// CacheEntry stores a cached upstream response keyed by its exact request URL.
type CacheEntry struct {
	Key      string          `json:"key"`
	Payload  json.RawMessage `json:"payload"`
	StoredAt time.Time       `json:"stored_at"`
}

// Age reports how old the entry is at now.
func (e CacheEntry) Age(now time.Time) time.Duration {
	return now.Sub(e.StoredAt)
}

// StoreStats reports what a cache backend currently holds.
type StoreStats struct {
	Entries int64     `json:"entries"`
	Bytes   int64     `json:"bytes"`
	Oldest  time.Time `json:"oldest,omitzero"`
	Newest  time.Time `json:"newest,omitzero"`
}

// CacheStats reports cache contents together with request-path counters.
type CacheStats struct {
	StoreStats
	Hits          int64 `json:"hits"`
	Misses        int64 `json:"misses"`
	Expired       int64 `json:"expired"`
	Fetches       int64 `json:"fetches"`
	FetchFailures int64 `json:"fetch_failures"`
	Sweeps        int64 `json:"sweeps"`
	Evictions     int64 `json:"evictions"`
}

// EntryInfo describes a stored entry without its payload.
type EntryInfo struct {
	Key      string    `json:"key"`
	Bytes    int64     `json:"bytes"`
	StoredAt time.Time `json:"stored_at"`
}
