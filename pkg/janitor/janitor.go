// Package janitor evicts expired cache entries in the background.
package janitor

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"github.com/sourcegraph/conc/pool"

	"github.com/pario-ai/larder/pkg/cache"
	"github.com/pario-ai/larder/pkg/expiry"
)

// Defaults for the sweep loop.
const (
	DefaultInterval    = time.Hour
	DefaultConcurrency = 4
)

// Result summarizes one sweep.
type Result struct {
	Scanned int `json:"scanned"`
	Evicted int `json:"evicted"`
	Failed  int `json:"failed"`
}

// Stats are cumulative counters across all sweeps.
type Stats struct {
	Sweeps    int64 `json:"sweeps"`
	Evictions int64 `json:"evictions"`
	Failures  int64 `json:"failures"`
}

// Janitor sweeps a Store for expired entries. Sweep requests are coalesced:
// any number of Request calls made while a sweep is pending produce one sweep.
type Janitor struct {
	store       cache.Store
	policy      expiry.Policy
	log         zerolog.Logger
	interval    time.Duration
	concurrency int
	notify      func(Result)

	requests  chan struct{}
	done      chan struct{}
	wg        sync.WaitGroup
	startOnce sync.Once
	closeOnce sync.Once

	sweeps    atomic.Int64
	evictions atomic.Int64
	failures  atomic.Int64
}

// Option configures a Janitor.
type Option func(*Janitor)

// WithInterval sets the periodic sweep interval. Zero disables periodic sweeps.
func WithInterval(d time.Duration) Option {
	return func(j *Janitor) { j.interval = d }
}

// WithConcurrency bounds how many keys are checked at once.
func WithConcurrency(n int) Option {
	return func(j *Janitor) {
		if n > 0 {
			j.concurrency = n
		}
	}
}

// WithLogger sets the janitor's logger.
func WithLogger(l zerolog.Logger) Option {
	return func(j *Janitor) { j.log = l.With().Str("component", "janitor").Logger() }
}

// WithNotify registers fn to be called after every background sweep.
func WithNotify(fn func(Result)) Option {
	return func(j *Janitor) { j.notify = fn }
}

// New creates a Janitor. Call Start to run the background loop.
func New(store cache.Store, policy expiry.Policy, opts ...Option) *Janitor {
	j := &Janitor{
		store:       store,
		policy:      policy,
		log:         zerolog.Nop(),
		interval:    DefaultInterval,
		concurrency: DefaultConcurrency,
		requests:    make(chan struct{}, 1),
		done:        make(chan struct{}),
	}
	for _, opt := range opts {
		opt(j)
	}
	return j
}

// Start launches the sweep loop. Calling it more than once has no effect.
func (j *Janitor) Start() {
	j.startOnce.Do(func() {
		j.wg.Add(1)
		go j.loop()
	})
}

// Request asks for a sweep and returns immediately.
func (j *Janitor) Request() {
	select {
	case j.requests <- struct{}{}:
	default:
	}
}

// Close stops the loop and waits for an in-progress sweep to finish. A
// sweep still queued when Close is called runs before the loop exits.
func (j *Janitor) Close() {
	j.closeOnce.Do(func() {
		close(j.done)
	})
	j.wg.Wait()
}

func (j *Janitor) loop() {
	defer j.wg.Done()

	var tick <-chan time.Time
	if j.interval > 0 {
		ticker := time.NewTicker(j.interval)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		select {
		case <-j.done:
			select {
			case <-j.requests:
				j.run()
			default:
			}
			return
		case <-j.requests:
			j.run()
		case <-tick:
			j.run()
		}
	}
}

func (j *Janitor) run() {
	res, err := j.Sweep(context.Background())
	if err != nil {
		j.log.Warn().Err(err).Msg("sweep aborted")
		return
	}
	if res.Evicted > 0 || res.Failed > 0 {
		j.log.Info().Int("scanned", res.Scanned).Int("evicted", res.Evicted).Int("failed", res.Failed).Msg("sweep finished")
	}
	if j.notify != nil {
		j.notify(res)
	}
}

// Sweep checks every stored key and deletes the entries that are expired
// when re-read. Per-key failures are logged and counted; only a failure to
// enumerate keys is returned.
func (j *Janitor) Sweep(ctx context.Context) (Result, error) {
	keys, err := j.store.Keys(ctx)
	if err != nil {
		j.failures.Add(1)
		return Result{}, fmt.Errorf("list cache keys: %w", err)
	}
	j.sweeps.Add(1)

	var evicted, failed atomic.Int64
	p := pool.New().WithMaxGoroutines(j.concurrency)
	for _, key := range keys {
		p.Go(func() {
			ok, err := j.evictIfExpired(ctx, key)
			switch {
			case err != nil:
				failed.Add(1)
				j.log.Warn().Err(err).Str("url", key).Msg("evict failed")
			case ok:
				evicted.Add(1)
			}
		})
	}
	p.Wait()

	res := Result{Scanned: len(keys), Evicted: int(evicted.Load()), Failed: int(failed.Load())}
	j.evictions.Add(int64(res.Evicted))
	j.failures.Add(int64(res.Failed))
	return res, nil
}

// evictIfExpired re-reads key so an entry rewritten since Keys was called is
// judged on its current timestamp. The delete is conditional on the same
// cutoff, so a Put landing after the read survives.
func (j *Janitor) evictIfExpired(ctx context.Context, key string) (bool, error) {
	entry, ok, err := j.store.Get(ctx, key)
	if err != nil {
		return false, err
	}
	cutoff := j.policy.Cutoff()
	if !ok || entry.StoredAt.After(cutoff) {
		return false, nil
	}
	return j.store.DeleteIfStoredBefore(ctx, key, cutoff)
}

// Stats returns cumulative sweep counters.
func (j *Janitor) Stats() Stats {
	return Stats{
		Sweeps:    j.sweeps.Load(),
		Evictions: j.evictions.Load(),
		Failures:  j.failures.Load(),
	}
}
