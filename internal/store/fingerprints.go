package store

import (
	"database/sql"
	"fmt"
	"time"
)

// ContentFingerprint tracks how often a distinct cached result payload
// (identified by its content hash) recurs across different query cache
// keys, independent of how long the cache key itself lives.
type ContentFingerprint struct {
	Hash       string
	ResultSize int64
	FirstSeen  string
	LastSeen   string
	HitCount   int64
}

// UpsertContentFingerprint inserts a new fingerprint or, if the hash
// already exists, increments its hit_count and updates last_seen.
func (s *Store) UpsertContentFingerprint(f *ContentFingerprint) error {
	now := time.Now().UTC().Format(time.RFC3339)
	if f.FirstSeen == "" {
		f.FirstSeen = now
	}
	if f.LastSeen == "" {
		f.LastSeen = now
	}

	_, err := s.writer.Exec(`
		INSERT INTO content_fingerprints (hash, result_size, first_seen, last_seen, hit_count)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(hash) DO UPDATE SET
			last_seen = excluded.last_seen,
			hit_count = content_fingerprints.hit_count + 1`,
		f.Hash, f.ResultSize, f.FirstSeen, f.LastSeen, f.HitCount,
	)
	if err != nil {
		return fmt.Errorf("store: upsert content fingerprint: %w", err)
	}
	return nil
}

// GetContentFingerprint retrieves a fingerprint by its hash.
// Returns sql.ErrNoRows (wrapped) if not found.
func (s *Store) GetContentFingerprint(hash string) (*ContentFingerprint, error) {
	f := &ContentFingerprint{}
	err := s.reader.QueryRow(`
		SELECT hash, result_size, first_seen, last_seen, hit_count
		FROM content_fingerprints WHERE hash = ?`, hash,
	).Scan(
		&f.Hash, &f.ResultSize, &f.FirstSeen, &f.LastSeen, &f.HitCount,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("store: get content fingerprint %s: %w", hash, err)
		}
		return nil, fmt.Errorf("store: get content fingerprint %s: %w", hash, err)
	}
	return f, nil
}

// ListContentFingerprints returns all fingerprints ordered by hit_count
// descending, used by the admin debug mux to surface the most-repeated
// cached payloads.
func (s *Store) ListContentFingerprints() ([]*ContentFingerprint, error) {
	rows, err := s.reader.Query(`
		SELECT hash, result_size, first_seen, last_seen, hit_count
		FROM content_fingerprints
		ORDER BY hit_count DESC`)
	if err != nil {
		return nil, fmt.Errorf("store: list content fingerprints: %w", err)
	}
	defer rows.Close()

	var results []*ContentFingerprint
	for rows.Next() {
		f := &ContentFingerprint{}
		if err := rows.Scan(
			&f.Hash, &f.ResultSize, &f.FirstSeen, &f.LastSeen, &f.HitCount,
		); err != nil {
			return nil, fmt.Errorf("store: scan content fingerprint row: %w", err)
		}
		results = append(results, f)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: list content fingerprints iteration: %w", err)
	}
	return results, nil
}
