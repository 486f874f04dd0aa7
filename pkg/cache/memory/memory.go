// Package memory is an ephemeral cache.Store for runs that should not touch disk.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/jellydator/ttlcache/v3"

	"github.com/pario-ai/larder/pkg/cache"
	"github.com/pario-ai/larder/pkg/models"
)

// Store keeps entries in process memory. Items never expire on their own;
// freshness is decided by the caller's policy like any other backend.
type Store struct {
	// mu orders writers so a conditional delete cannot race a Put.
	mu    sync.Mutex
	items *ttlcache.Cache[string, models.CacheEntry]
}

// New returns an empty Store.
func New() *Store {
	return &Store{
		items: ttlcache.New(
			ttlcache.WithTTL[string, models.CacheEntry](ttlcache.NoTTL),
			ttlcache.WithDisableTouchOnHit[string, models.CacheEntry](),
		),
	}
}

func (s *Store) Get(_ context.Context, key string) (models.CacheEntry, bool, error) {
	item := s.items.Get(key)
	if item == nil {
		return models.CacheEntry{}, false, nil
	}
	return item.Value(), true, nil
}

func (s *Store) Put(_ context.Context, entry models.CacheEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items.Set(entry.Key, entry, ttlcache.NoTTL)
	return nil
}

func (s *Store) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items.Delete(key)
	return nil
}

func (s *Store) DeleteIfStoredBefore(_ context.Context, key string, cutoff time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	item := s.items.Get(key)
	if item == nil || item.Value().StoredAt.After(cutoff) {
		return false, nil
	}
	s.items.Delete(key)
	return true, nil
}

func (s *Store) Keys(_ context.Context) ([]string, error) {
	return s.items.Keys(), nil
}

// List describes every entry, oldest first.
func (s *Store) List(_ context.Context) ([]models.EntryInfo, error) {
	var infos []models.EntryInfo
	for _, item := range s.items.Items() {
		e := item.Value()
		infos = append(infos, models.EntryInfo{Key: e.Key, Bytes: int64(len(e.Payload)), StoredAt: e.StoredAt})
	}
	sort.Slice(infos, func(i, j int) bool {
		if infos[i].StoredAt.Equal(infos[j].StoredAt) {
			return infos[i].Key < infos[j].Key
		}
		return infos[i].StoredAt.Before(infos[j].StoredAt)
	})
	return infos, nil
}

func (s *Store) Stats(ctx context.Context) (models.StoreStats, error) {
	infos, err := s.List(ctx)
	if err != nil {
		return models.StoreStats{}, err
	}
	var stats models.StoreStats
	for _, info := range infos {
		stats.Entries++
		stats.Bytes += info.Bytes
	}
	if len(infos) > 0 {
		stats.Oldest = infos[0].StoredAt
		stats.Newest = infos[len(infos)-1].StoredAt
	}
	return stats, nil
}

func (s *Store) Clear(_ context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := int64(s.items.Len())
	s.items.DeleteAll()
	return n, nil
}

// Close is a no-op.
func (s *Store) Close() error {
	return nil
}

var (
	_ cache.Store   = (*Store)(nil)
	_ cache.Statter = (*Store)(nil)
	_ cache.Clearer = (*Store)(nil)
	_ cache.Lister  = (*Store)(nil)
)
