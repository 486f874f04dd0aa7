// Package worker assembles the caching worker from configuration.
package worker

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"

	"github.com/pario-ai/larder/pkg/cache"
	"github.com/pario-ai/larder/pkg/cache/memory"
	"github.com/pario-ai/larder/pkg/cache/sqlite"
	"github.com/pario-ai/larder/pkg/config"
	"github.com/pario-ai/larder/pkg/expiry"
	"github.com/pario-ai/larder/pkg/fetch"
	"github.com/pario-ai/larder/pkg/janitor"
	"github.com/pario-ai/larder/pkg/models"
	"github.com/pario-ai/larder/pkg/router"
	"github.com/pario-ai/larder/pkg/upstream"
)

// ErrUnsupported is returned by maintenance operations the backend lacks.
var ErrUnsupported = errors.New("operation not supported by cache backend")

// Store is what the worker needs from a cache backend.
type Store interface {
	cache.Store
	Close() error
}

// Worker owns the cache store and every component built on it.
type Worker struct {
	Store        Store
	Policy       expiry.Policy
	Upstream     *upstream.Client
	Janitor      *janitor.Janitor
	Orchestrator *fetch.Orchestrator
	Router       *router.Router

	log zerolog.Logger
}

type options struct {
	now        func() time.Time
	store      Store
	httpClient *http.Client
}

// Option adjusts how a Worker is built.
type Option func(*options)

// WithClock makes every component read time from now.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// WithStore uses s instead of opening the configured backend.
func WithStore(s Store) Option {
	return func(o *options) { o.store = s }
}

// WithHTTPClient sets the client used for upstream requests.
func WithHTTPClient(c *http.Client) Option {
	return func(o *options) { o.httpClient = c }
}

// New opens the cache store and wires the components around it. The
// janitor loop is not started; call Start.
func New(cfg *config.Config, logger zerolog.Logger, opts ...Option) (*Worker, error) {
	o := options{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}

	store := o.store
	if store == nil {
		var err error
		store, err = OpenStore(cfg)
		if err != nil {
			return nil, err
		}
	}

	policy := expiry.WithClock(cfg.TTL(), o.now)
	client := upstream.New(upstream.Options{
		Timeout:      cfg.Upstream.Timeout,
		CacheControl: cfg.Upstream.CacheControl,
		UserAgent:    cfg.Upstream.UserAgent,
		RateLimit:    cfg.Upstream.RateLimit,
		Burst:        cfg.Upstream.Burst,
		HTTPClient:   o.httpClient,
		Now:          o.now,
	})
	jan := janitor.New(store, policy,
		janitor.WithInterval(cfg.Janitor.Interval),
		janitor.WithConcurrency(cfg.Janitor.Concurrency),
		janitor.WithLogger(logger),
	)
	orch := fetch.New(store, policy, client,
		fetch.WithSweeper(jan),
		fetch.WithLogger(logger),
	)

	return &Worker{
		Store:        store,
		Policy:       policy,
		Upstream:     client,
		Janitor:      jan,
		Orchestrator: orch,
		Router:       router.New(router.Endpoints{Prefix: cfg.APIURLPrefix}, orch, logger),
		log:          logger,
	}, nil
}

// OpenStore opens the cache backend named in cfg.
func OpenStore(cfg *config.Config) (Store, error) {
	switch cfg.Cache.Backend {
	case config.BackendMemory:
		return memory.New(), nil
	case config.BackendSQLite, "":
		if dir := filepath.Dir(cfg.DBPath); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("create data dir: %w", err)
			}
		}
		s, err := sqlite.New(cfg.DBPath, cfg.Cache.Name, sqlite.WithCompression(cfg.Cache.Compress))
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unknown cache backend %q", cfg.Cache.Backend)
	}
}

// Start launches background eviction.
func (w *Worker) Start() {
	w.Janitor.Start()
}

// Handle answers a typed request.
func (w *Worker) Handle(ctx context.Context, req models.Request) *models.Response {
	return w.Router.Handle(ctx, req)
}

// Sweep runs one eviction pass immediately.
func (w *Worker) Sweep(ctx context.Context) (janitor.Result, error) {
	return w.Janitor.Sweep(ctx)
}

// Stats combines store contents with request and sweep counters.
func (w *Worker) Stats(ctx context.Context) (models.CacheStats, error) {
	stats := w.Orchestrator.Stats()
	js := w.Janitor.Stats()
	stats.Sweeps = js.Sweeps
	stats.Evictions = js.Evictions

	st, ok := w.Store.(cache.Statter)
	if !ok {
		return stats, nil
	}
	ss, err := st.Stats(ctx)
	if err != nil {
		return stats, err
	}
	stats.StoreStats = ss
	return stats, nil
}

// List describes every stored entry, oldest first.
func (w *Worker) List(ctx context.Context) ([]models.EntryInfo, error) {
	l, ok := w.Store.(cache.Lister)
	if !ok {
		return nil, ErrUnsupported
	}
	return l.List(ctx)
}

// Clear removes every stored entry and returns how many were removed.
func (w *Worker) Clear(ctx context.Context) (int64, error) {
	c, ok := w.Store.(cache.Clearer)
	if !ok {
		return 0, ErrUnsupported
	}
	return c.Clear(ctx)
}

// Close stops the janitor and closes the store.
func (w *Worker) Close() error {
	w.Janitor.Close()
	if err := w.Store.Close(); err != nil {
		return fmt.Errorf("close cache store: %w", err)
	}
	return nil
}
