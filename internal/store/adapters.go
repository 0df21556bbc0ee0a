package store

import (
	"database/sql"
	"errors"
	"time"
)

// FingerprintAdapter exposes Store's content-fingerprint table through a
// hash-keyed upsert/lookup API, for tracking repeated result payloads.
type FingerprintAdapter struct {
	store *Store
}

// NewFingerprintAdapter creates a new FingerprintAdapter wrapping the
// given Store.
func NewFingerprintAdapter(s *Store) *FingerprintAdapter {
	return &FingerprintAdapter{store: s}
}

// UpsertFingerprint records a content hash occurrence.
func (a *FingerprintAdapter) UpsertFingerprint(hash string, resultSize int) error {
	return a.store.UpsertContentFingerprint(&ContentFingerprint{
		Hash:       hash,
		ResultSize: int64(resultSize),
	})
}

// GetFingerprint retrieves the hit count and last seen time for a
// fingerprint. Returns zero values if the fingerprint does not exist.
func (a *FingerprintAdapter) GetFingerprint(hash string) (hitCount int, lastSeen time.Time, err error) {
	f, err := a.store.GetContentFingerprint(hash)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, time.Time{}, nil
		}
		return 0, time.Time{}, err
	}
	t, _ := time.Parse(time.RFC3339, f.LastSeen)
	return int(f.HitCount), t, nil
}

// QueryCacheOverflow adapts Store to querycache.Overflow: the disk tier
// consulted when an entry has aged out of the in-memory LRU.
type QueryCacheOverflow struct {
	store *Store
}

// NewQueryCacheOverflow creates a QueryCacheOverflow wrapping the given
// Store.
func NewQueryCacheOverflow(s *Store) *QueryCacheOverflow {
	return &QueryCacheOverflow{store: s}
}

// Get retrieves a cached result body and row count by key.
func (a *QueryCacheOverflow) Get(key string) ([]byte, int, time.Time, error) {
	c, err := a.store.GetCache(key)
	if err != nil {
		return nil, 0, time.Time{}, err
	}
	expiresAt, _ := time.Parse(time.RFC3339, c.ExpiresAt)
	if err := a.store.IncrementHitCount(key); err != nil {
		return nil, 0, time.Time{}, err
	}
	return c.ResultBody, int(c.RowCount), expiresAt, nil
}

// Set persists a cached result body under key.
func (a *QueryCacheOverflow) Set(key, queryHash string, result []byte, rowCount int, expiresAt time.Time) error {
	return a.store.SetCache(&CacheEntry{
		Key:        key,
		QueryHash:  queryHash,
		ResultBody: result,
		RowCount:   int64(rowCount),
		CreatedAt:  time.Now().UTC().Format(time.RFC3339),
		ExpiresAt:  expiresAt.Format(time.RFC3339),
	})
}

// DeleteExpired removes all expired entries from the overflow store.
func (a *QueryCacheOverflow) DeleteExpired() error {
	_, err := a.store.DeleteExpired()
	return err
}
