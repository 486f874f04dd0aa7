package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/klauspost/compress/zstd"
	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"

	"github.com/pario-ai/larder/pkg/cache"
	"github.com/pario-ai/larder/pkg/models"
)

//go:embed migrations/*.sql
var migrations embed.FS

const (
	encodingIdentity = "identity"
	encodingZstd     = "zstd"
)

// Store is a named response cache backed by SQLite. Several named stores
// can share one database file.
type Store struct {
	db       *sql.DB
	name     string
	compress bool
	enc      *zstd.Encoder
	dec      *zstd.Decoder
}

// Option configures a Store.
type Option func(*Store)

// WithCompression stores new payloads zstd-compressed. Rows written either
// way stay readable.
func WithCompression(on bool) Option {
	return func(s *Store) { s.compress = on }
}

// New opens the cache database at dbPath, applies migrations and returns
// the store called name.
func New(dbPath, name string, opts ...Option) (*Store, error) {
	db, err := sql.Open("sqlite", dsn(dbPath))
	if err != nil {
		return nil, fmt.Errorf("open cache db: %w", err)
	}
	// One connection serializes writers; SQLite allows a single writer anyway.
	db.SetMaxOpenConns(1)

	if err := migrate(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate cache db: %w", err)
	}

	s := &Store{db: db, name: name}
	for _, opt := range opts {
		opt(s)
	}

	s.dec, err = zstd.NewReader(nil)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create zstd decoder: %w", err)
	}
	if s.compress {
		s.enc, err = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
		if err != nil {
			s.dec.Close()
			db.Close()
			return nil, fmt.Errorf("create zstd encoder: %w", err)
		}
	}
	return s, nil
}

func dsn(path string) string {
	if path == ":memory:" {
		return path
	}
	return path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
}

func migrate(db *sql.DB) error {
	fsys, err := fs.Sub(migrations, "migrations")
	if err != nil {
		return err
	}
	provider, err := goose.NewProvider(goose.DialectSQLite3, db, fsys)
	if err != nil {
		return err
	}
	_, err = provider.Up(context.Background())
	return err
}

// Name returns the cache name this store reads and writes.
func (s *Store) Name() string {
	return s.name
}

// Get returns the entry stored under key without judging its age.
func (s *Store) Get(ctx context.Context, key string) (models.CacheEntry, bool, error) {
	var payload []byte
	var encoding string
	var storedAt int64

	err := s.db.QueryRowContext(ctx,
		`SELECT payload, encoding, stored_at FROM cache_entries WHERE cache_name = ? AND url = ?`,
		s.name, key,
	).Scan(&payload, &encoding, &storedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return models.CacheEntry{}, false, nil
	}
	if err != nil {
		return models.CacheEntry{}, false, fmt.Errorf("cache get: %w", err)
	}

	body, err := s.decode(payload, encoding)
	if err != nil {
		return models.CacheEntry{}, false, fmt.Errorf("cache get %s: %w", key, err)
	}
	return models.CacheEntry{
		Key:      key,
		Payload:  body,
		StoredAt: time.UnixMilli(storedAt).UTC(),
	}, true, nil
}

// Put stores entry, replacing whatever was stored under the same key.
func (s *Store) Put(ctx context.Context, entry models.CacheEntry) error {
	payload, encoding := s.encode(entry.Payload)
	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO cache_entries (cache_name, url, payload, encoding, size_bytes, stored_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		s.name, entry.Key, payload, encoding, len(entry.Payload), entry.StoredAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("cache put: %w", err)
	}
	return nil
}

// Delete removes key if present.
func (s *Store) Delete(ctx context.Context, key string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM cache_entries WHERE cache_name = ? AND url = ?`, s.name, key)
	if err != nil {
		return fmt.Errorf("cache delete: %w", err)
	}
	return nil
}

// DeleteIfStoredBefore removes key if its stored_at is at or before cutoff.
func (s *Store) DeleteIfStoredBefore(ctx context.Context, key string, cutoff time.Time) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM cache_entries WHERE cache_name = ? AND url = ? AND stored_at <= ?`,
		s.name, key, cutoff.UnixMilli())
	if err != nil {
		return false, fmt.Errorf("cache conditional delete: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("cache conditional delete: %w", err)
	}
	return n > 0, nil
}

// Keys lists every key in this store.
func (s *Store) Keys(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT url FROM cache_entries WHERE cache_name = ?`, s.name)
	if err != nil {
		return nil, fmt.Errorf("cache keys: %w", err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, fmt.Errorf("scan cache key: %w", err)
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

// List describes every entry, oldest first.
func (s *Store) List(ctx context.Context) ([]models.EntryInfo, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT url, size_bytes, stored_at FROM cache_entries WHERE cache_name = ? ORDER BY stored_at, url`, s.name)
	if err != nil {
		return nil, fmt.Errorf("cache list: %w", err)
	}
	defer rows.Close()

	var infos []models.EntryInfo
	for rows.Next() {
		var info models.EntryInfo
		var storedAt int64
		if err := rows.Scan(&info.Key, &info.Bytes, &storedAt); err != nil {
			return nil, fmt.Errorf("scan cache entry: %w", err)
		}
		info.StoredAt = time.UnixMilli(storedAt).UTC()
		infos = append(infos, info)
	}
	return infos, rows.Err()
}

// Stats returns entry count, payload size and the stored_at range.
func (s *Store) Stats(ctx context.Context) (models.StoreStats, error) {
	var count, size int64
	var oldest, newest sql.NullInt64
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*), COALESCE(SUM(size_bytes), 0), MIN(stored_at), MAX(stored_at)
		 FROM cache_entries WHERE cache_name = ?`, s.name,
	).Scan(&count, &size, &oldest, &newest)
	if err != nil {
		return models.StoreStats{}, fmt.Errorf("cache stats: %w", err)
	}

	stats := models.StoreStats{Entries: count, Bytes: size}
	if oldest.Valid {
		stats.Oldest = time.UnixMilli(oldest.Int64).UTC()
	}
	if newest.Valid {
		stats.Newest = time.UnixMilli(newest.Int64).UTC()
	}
	return stats, nil
}

// Clear removes every entry in this store.
func (s *Store) Clear(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM cache_entries WHERE cache_name = ?`, s.name)
	if err != nil {
		return 0, fmt.Errorf("cache clear: %w", err)
	}
	return res.RowsAffected()
}

// Close releases the database connection.
func (s *Store) Close() error {
	if s.enc != nil {
		_ = s.enc.Close()
	}
	s.dec.Close()
	return s.db.Close()
}

func (s *Store) encode(payload []byte) ([]byte, string) {
	if s.enc == nil {
		return payload, encodingIdentity
	}
	return s.enc.EncodeAll(payload, make([]byte, 0, len(payload)/2)), encodingZstd
}

func (s *Store) decode(payload []byte, encoding string) ([]byte, error) {
	switch encoding {
	case encodingIdentity, "":
		return payload, nil
	case encodingZstd:
		out, err := s.dec.DecodeAll(payload, nil)
		if err != nil {
			return nil, fmt.Errorf("decompress payload: %w", err)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("unknown payload encoding %q", encoding)
	}
}

var (
	_ cache.Store   = (*Store)(nil)
	_ cache.Statter = (*Store)(nil)
	_ cache.Clearer = (*Store)(nil)
	_ cache.Lister  = (*Store)(nil)
)
