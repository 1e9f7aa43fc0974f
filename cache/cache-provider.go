package cache

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"time"

	_ "github.com/glebarez/go-sqlite"
)

// Provider is an interface for a cache storage provider.
// It stores and retrieves []byte values, which represent backend payloads.
// Entries never expire: once put, a key stays until it is overwritten.
//
// Implementations must be thread-safe!
// A Get started after a Put for the same key has returned must observe that Put.
type Provider interface {
	// Get returns the stored value for the given key, if it exists.
	// It also returns a boolean indicating whether retrieval was successful.
	// A missing key is not an error.
	Get(ctx context.Context, key string) ([]byte, bool, error)
	// Put stores the given value under the given key, replacing any previous value.
	Put(ctx context.Context, key string, value []byte) error
	// Keys calls the given callback for each stored key.
	Keys(ctx context.Context, cb func(string)) error
	// Close releases the resources held by the provider.
	Close() error
}

type MemCache struct {
	mutex *sync.RWMutex
	db    map[string][]byte
}

func NewMemCache() MemCache {
	return MemCache{
		mutex: &sync.RWMutex{},
		db:    make(map[string][]byte),
	}
}

func (m MemCache) Get(_ context.Context, key string) ([]byte, bool, error) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	value, ok := m.db[key]
	return value, ok, nil
}

func (m MemCache) Put(_ context.Context, key string, value []byte) error {
	// copy so later mutations by the caller do not leak into the cache
	stored := make([]byte, len(value))
	copy(stored, value)
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.db[key] = stored
	return nil
}

func (m MemCache) Keys(_ context.Context, cb func(string)) error {
	m.mutex.RLock()
	keys := make([]string, 0, len(m.db))
	for key := range m.db {
		keys = append(keys, key)
	}
	m.mutex.RUnlock()
	// callback runs outside the lock so it may call back into the cache
	for _, key := range keys {
		cb(key)
	}
	return nil
}

func (m MemCache) Close() error {
	return nil
}

type SQLiteCache struct {
	db         *sql.DB
	writeMutex *sync.Mutex
}

// NewSQLiteCache opens (or creates) a cache with the given filename as the db.
// If file name is empty, a new in-memory db is opened.
func NewSQLiteCache(filename string) (SQLiteCache, error) {
	if filename == "" {
		filename = "file::memory:?cache=shared"
	}
	db, err := sql.Open("sqlite", filename)
	if err != nil {
		return SQLiteCache{}, err
	}
	_, err = db.Exec(`CREATE TABLE IF NOT EXISTS cache (
		key TEXT PRIMARY KEY,
		stored_at INTEGER,
		bytes BLOB
	)`)
	if err != nil {
		db.Close()
		return SQLiteCache{}, err
	}
	_, err = db.Exec("PRAGMA journal_mode=WAL")
	if err != nil {
		db.Close()
		return SQLiteCache{}, err
	}
	return SQLiteCache{
		db:         db,
		writeMutex: &sync.Mutex{},
	}, nil
}

func (s SQLiteCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	var bytes []byte
	err := s.db.QueryRowContext(ctx, "SELECT bytes FROM cache WHERE key = ?", key).Scan(&bytes)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return bytes, true, nil
}

func (s SQLiteCache) Put(ctx context.Context, key string, value []byte) error {
	s.writeMutex.Lock()
	defer s.writeMutex.Unlock()
	_, err := s.db.ExecContext(ctx,
		"INSERT OR REPLACE INTO cache (key, stored_at, bytes) VALUES (?, ?, ?)",
		key, time.Now().Unix(), value)
	return err
}

func (s SQLiteCache) Keys(ctx context.Context, cb func(string)) error {
	rows, err := s.db.QueryContext(ctx, "SELECT key FROM cache")
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return err
		}
		cb(key)
	}
	return rows.Err()
}

func (s SQLiteCache) Close() error {
	return s.db.Close()
}
