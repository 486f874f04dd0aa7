// Package cachetest runs the cache.Store contract against a backend.
package cachetest

import (
	"context"
	"encoding/json"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pario-ai/larder/pkg/cache"
	"github.com/pario-ai/larder/pkg/models"
)

// Factory returns an empty store for a single subtest.
type Factory func(t *testing.T) cache.Store

// Run exercises the Store contract.
func Run(t *testing.T, newStore Factory) {
	t.Run("GetMissing", func(t *testing.T) {
		s := newStore(t)
		_, ok, err := s.Get(context.Background(), "https://example.test/missing")
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("RoundTrip", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		stored := time.Date(2026, 3, 1, 10, 30, 0, 0, time.UTC)
		payload := json.RawMessage(`{"id":7,"name":"Chicken Biryani","ingredients":["rice","chicken"]}`)

		require.NoError(t, s.Put(ctx, models.CacheEntry{Key: "https://example.test/recipes/7", Payload: payload, StoredAt: stored}))

		got, ok, err := s.Get(ctx, "https://example.test/recipes/7")
		require.NoError(t, err)
		require.True(t, ok)
		assert.JSONEq(t, string(payload), string(got.Payload))
		assert.True(t, stored.Equal(got.StoredAt), "stored_at %v != %v", got.StoredAt, stored)
		assert.Equal(t, "https://example.test/recipes/7", got.Key)
	})

	t.Run("PutOverwrites", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		key := "https://example.test/recipes?select=name"
		first := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

		require.NoError(t, s.Put(ctx, models.CacheEntry{Key: key, Payload: json.RawMessage(`{"v":1}`), StoredAt: first}))
		require.NoError(t, s.Put(ctx, models.CacheEntry{Key: key, Payload: json.RawMessage(`{"v":2}`), StoredAt: first.Add(time.Hour)}))

		got, ok, err := s.Get(ctx, key)
		require.NoError(t, err)
		require.True(t, ok)
		assert.JSONEq(t, `{"v":2}`, string(got.Payload))
		assert.True(t, first.Add(time.Hour).Equal(got.StoredAt))

		keys, err := s.Keys(ctx)
		require.NoError(t, err)
		assert.Equal(t, []string{key}, keys)
	})

	t.Run("ExactKeyMatch", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		require.NoError(t, s.Put(ctx, models.CacheEntry{Key: "https://example.test/recipes/7", Payload: json.RawMessage(`{}`), StoredAt: time.Now()}))

		_, ok, err := s.Get(ctx, "https://example.test/recipes/7/")
		require.NoError(t, err)
		assert.False(t, ok)
		_, ok, err = s.Get(ctx, "HTTPS://example.test/recipes/7")
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("DeleteIdempotent", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		key := "https://example.test/recipes/1"
		require.NoError(t, s.Put(ctx, models.CacheEntry{Key: key, Payload: json.RawMessage(`{}`), StoredAt: time.Now()}))

		require.NoError(t, s.Delete(ctx, key))
		require.NoError(t, s.Delete(ctx, key))

		_, ok, err := s.Get(ctx, key)
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("DeleteIfStoredBefore", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		key := "https://example.test/recipes/3"
		stored := time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)
		require.NoError(t, s.Put(ctx, models.CacheEntry{Key: key, Payload: json.RawMessage(`{}`), StoredAt: stored}))

		deleted, err := s.DeleteIfStoredBefore(ctx, key, stored.Add(-time.Millisecond))
		require.NoError(t, err)
		assert.False(t, deleted, "entry newer than cutoff must survive")
		_, ok, err := s.Get(ctx, key)
		require.NoError(t, err)
		assert.True(t, ok)

		deleted, err = s.DeleteIfStoredBefore(ctx, key, stored)
		require.NoError(t, err)
		assert.True(t, deleted)
		_, ok, err = s.Get(ctx, key)
		require.NoError(t, err)
		assert.False(t, ok)

		deleted, err = s.DeleteIfStoredBefore(ctx, key, stored)
		require.NoError(t, err)
		assert.False(t, deleted)
	})

	t.Run("Keys", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		want := []string{
			"https://example.test/recipes/1",
			"https://example.test/recipes/2",
			"https://example.test/recipes?select=name",
		}
		for _, k := range want {
			require.NoError(t, s.Put(ctx, models.CacheEntry{Key: k, Payload: json.RawMessage(`{}`), StoredAt: time.Now()}))
		}

		keys, err := s.Keys(ctx)
		require.NoError(t, err)
		sort.Strings(keys)
		assert.Equal(t, want, keys)
	})
}
