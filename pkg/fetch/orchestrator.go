// Package fetch resolves a catalog URL through the cache, falling back to
// the upstream API and repopulating the cache on success.
package fetch

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/pario-ai/larder/pkg/cache"
	"github.com/pario-ai/larder/pkg/expiry"
	"github.com/pario-ai/larder/pkg/models"
	"github.com/pario-ai/larder/pkg/upstream"
)

// Messages sent to clients when a request cannot be served.
const (
	MsgFetchFailed = "Failed to fetch data."
	MsgUnavailable = "Error fetching data from network or cache."
)

// Fetcher retrieves a JSON document from the upstream API.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (*upstream.Result, error)
}

// Sweeper accepts a request to prune expired entries. Request must not block.
type Sweeper interface {
	Request()
}

// Orchestrator serves lookups from a Store and fills misses from a Fetcher.
type Orchestrator struct {
	store   cache.Store
	policy  expiry.Policy
	fetcher Fetcher
	sweeper Sweeper
	log     zerolog.Logger
	flight  singleflight.Group

	hits     atomic.Int64
	misses   atomic.Int64
	expired  atomic.Int64
	fetches  atomic.Int64
	failures atomic.Int64
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithSweeper sets the sweeper notified after each cache write.
func WithSweeper(s Sweeper) Option {
	return func(o *Orchestrator) { o.sweeper = s }
}

// WithLogger sets the orchestrator's logger.
func WithLogger(l zerolog.Logger) Option {
	return func(o *Orchestrator) { o.log = l.With().Str("component", "fetch").Logger() }
}

// New creates an Orchestrator.
func New(store cache.Store, policy expiry.Policy, fetcher Fetcher, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		store:   store,
		policy:  policy,
		fetcher: fetcher,
		log:     zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Lookup returns the fresh entry stored under url. An expired entry is
// deleted and reported as a miss.
func (o *Orchestrator) Lookup(ctx context.Context, url string) (models.CacheEntry, bool, error) {
	entry, ok, err := o.store.Get(ctx, url)
	if err != nil || !ok {
		return models.CacheEntry{}, false, err
	}
	cutoff := o.policy.Cutoff()
	if entry.StoredAt.After(cutoff) {
		return entry, true, nil
	}

	o.expired.Add(1)
	if _, err := o.store.DeleteIfStoredBefore(ctx, url, cutoff); err != nil {
		o.log.Warn().Err(err).Str("url", url).Msg("delete expired entry")
	}
	return models.CacheEntry{}, false, nil
}

// Resolve answers a request for url with a response tagged kind. Fresh cache
// entries are returned without touching the network. On a miss the body is
// fetched, validated for kind, stored and a sweep is requested. Failures
// produce an error response and leave the cache untouched.
func (o *Orchestrator) Resolve(ctx context.Context, url string, kind models.ResponseKind) models.Response {
	entry, ok, err := o.Lookup(ctx, url)
	if err != nil {
		o.log.Error().Err(err).Str("url", url).Msg("cache lookup failed")
		return models.ErrorResponse(MsgUnavailable)
	}
	if ok {
		o.hits.Add(1)
		o.log.Debug().Str("url", url).Dur("age", entry.Age(o.policy.Now())).Msg("cache hit")
		return models.Response{Kind: kind, Data: entry.Payload, Cached: true}
	}
	o.misses.Add(1)

	// The shared fetch outlives any single caller; the upstream client's
	// timeout bounds it. Each caller still stops waiting on its own ctx.
	ch := o.flight.DoChan(url, func() (any, error) {
		return o.fetchAndStore(context.WithoutCancel(ctx), url, kind)
	})
	select {
	case <-ctx.Done():
		o.log.Warn().Err(ctx.Err()).Str("url", url).Msg("caller gave up waiting for fetch")
		return models.ErrorResponse(MsgFetchFailed)
	case res := <-ch:
		if res.Err != nil {
			o.log.Warn().Err(res.Err).Str("url", url).Msg("fetch failed")
			return models.ErrorResponse(MsgFetchFailed)
		}
		if res.Shared {
			o.log.Debug().Str("url", url).Msg("joined in-flight fetch")
		}
		return models.Response{Kind: kind, Data: res.Val.(json.RawMessage)}
	}
}

func (o *Orchestrator) fetchAndStore(ctx context.Context, url string, kind models.ResponseKind) (json.RawMessage, error) {
	o.fetches.Add(1)
	res, err := o.fetcher.Fetch(ctx, url)
	if err != nil {
		o.failures.Add(1)
		return nil, err
	}
	if err := validate(res.Body, kind); err != nil {
		o.failures.Add(1)
		return nil, err
	}

	storedAt := res.ReceivedAt
	if storedAt.IsZero() {
		storedAt = o.policy.Now()
	}
	err = o.store.Put(ctx, models.CacheEntry{Key: url, Payload: res.Body, StoredAt: storedAt})
	if err != nil {
		o.log.Error().Err(err).Str("url", url).Msg("cache write failed")
	} else if o.sweeper != nil {
		o.sweeper.Request()
	}
	return res.Body, nil
}

var errNullBody = errors.New("empty JSON document")

// validate checks that body decodes as the payload shape for kind.
func validate(body json.RawMessage, kind models.ResponseKind) error {
	if bytes.Equal(bytes.TrimSpace(body), []byte("null")) {
		return errNullBody
	}
	var err error
	switch kind {
	case models.ResponseList:
		var list models.RecipeList
		err = json.Unmarshal(body, &list)
	case models.ResponseDetail:
		var detail models.RecipeDetail
		err = json.Unmarshal(body, &detail)
	default:
		var v any
		err = json.Unmarshal(body, &v)
	}
	if err != nil {
		return fmt.Errorf("decode %s payload: %w", kind, err)
	}
	return nil
}

// Stats returns the request-path counters. Store contents are not included.
func (o *Orchestrator) Stats() models.CacheStats {
	return models.CacheStats{
		Hits:          o.hits.Load(),
		Misses:        o.misses.Load(),
		Expired:       o.expired.Load(),
		Fetches:       o.fetches.Load(),
		FetchFailures: o.failures.Load(),
	}
}
