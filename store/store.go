// Package store persists encoded documents in SQLite, with an in-memory
// read-through cache in front.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	gocache "github.com/patrickmn/go-cache"
	"github.com/tliron/commonlog"
	_ "modernc.org/sqlite"
)

// ErrNotFound indicates the requested document doesn't exist.
var ErrNotFound = errors.New("store: document not found")

// DefaultCacheTTL is how long a read document stays cached.
const DefaultCacheTTL = 5 * time.Minute

// Document is one encoded table as stored: its wire format and bytes.
type Document struct {
	ID      string
	Format  string
	Data    []byte
	Created time.Time
}

// Store handles SQLite storage for documents.
type Store struct {
	db    *sql.DB
	path  string
	cache *gocache.Cache
	log   commonlog.Logger
	mu    sync.Mutex
}

// Option configures a Store.
type Option func(*config)

type config struct {
	cacheTTL time.Duration
}

// WithCacheTTL sets how long documents stay cached. Zero or less disables
// expiry.
func WithCacheTTL(d time.Duration) Option {
	return func(c *config) { c.cacheTTL = d }
}

// Open opens (creating if needed) the database at path.
func Open(path string, opts ...Option) (*Store, error) {
	cfg := config{cacheTTL: DefaultCacheTTL}
	for _, opt := range opts {
		opt(&cfg)
	}

	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("store: creating directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("store: opening database: %w", err)
	}

	// Set busy timeout for concurrent access
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: setting busy timeout: %w", err)
	}

	_, err = db.Exec(`CREATE TABLE IF NOT EXISTS documents (
		id         TEXT PRIMARY KEY,
		format     TEXT NOT NULL,
		data       BLOB NOT NULL,
		created_at INTEGER NOT NULL
	)`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("store: creating table: %w", err)
	}

	ttl := cfg.cacheTTL
	if ttl <= 0 {
		ttl = gocache.NoExpiration
	}
	cleanup := 2 * ttl
	if ttl == gocache.NoExpiration {
		cleanup = 0
	}

	return &Store{
		db:    db,
		path:  path,
		cache: gocache.New(ttl, cleanup),
		log:   commonlog.GetLogger("knot.store"),
	}, nil
}

// Path returns the database file path.
func (s *Store) Path() string { return s.path }

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Put saves doc, replacing any document with the same ID. An empty ID is
// replaced by a fresh UUID. It returns the ID used.
func (s *Store) Put(ctx context.Context, doc Document) (string, error) {
	if doc.ID == "" {
		doc.ID = uuid.NewString()
	}
	if doc.Created.IsZero() {
		doc.Created = time.Now().UTC()
	}
	data := make([]byte, len(doc.Data))
	copy(data, doc.Data)
	doc.Data = data

	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx,
		"INSERT OR REPLACE INTO documents (id, format, data, created_at) VALUES (?, ?, ?, ?)",
		doc.ID, doc.Format, doc.Data, doc.Created.UnixNano(),
	)
	if err != nil {
		return "", fmt.Errorf("store: saving document: %w", err)
	}
	s.cache.SetDefault(doc.ID, doc)
	s.log.Debugf("saved document %s (%s, %d bytes)", doc.ID, doc.Format, len(doc.Data))
	return doc.ID, nil
}

// Get returns the document stored under id.
func (s *Store) Get(ctx context.Context, id string) (Document, error) {
	if v, found := s.cache.Get(id); found {
		if doc, ok := v.(Document); ok {
			return doc, nil
		}
	}

	var (
		doc     = Document{ID: id}
		created int64
	)
	err := s.db.QueryRowContext(ctx,
		"SELECT format, data, created_at FROM documents WHERE id = ?", id,
	).Scan(&doc.Format, &doc.Data, &created)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Document{}, fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return Document{}, fmt.Errorf("store: querying document: %w", err)
	}
	doc.Created = time.Unix(0, created).UTC()
	s.cache.SetDefault(id, doc)
	return doc, nil
}

// Delete removes a document. Deleting a missing document is not an error.
func (s *Store) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.db.ExecContext(ctx, "DELETE FROM documents WHERE id = ?", id); err != nil {
		return fmt.Errorf("store: deleting document: %w", err)
	}
	s.cache.Delete(id)
	return nil
}

// List returns document IDs, oldest first. A non-empty format restricts the
// result to documents in that format.
func (s *Store) List(ctx context.Context, format string) ([]string, error) {
	query := "SELECT id FROM documents ORDER BY created_at, id"
	args := []any{}
	if format != "" {
		query = "SELECT id FROM documents WHERE format = ? ORDER BY created_at, id"
		args = append(args, format)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("store: listing documents: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("store: scanning id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
