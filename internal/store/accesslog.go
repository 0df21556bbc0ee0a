package store

import (
	"database/sql"
	"fmt"
	"time"
)

// AccessLogEntry represents a single served HTTP request, persisted for
// the admin debug mux and for longer-lived request-rate analysis than
// the in-memory metrics collector retains.
type AccessLogEntry struct {
	ID           string
	Timestamp    string
	Method       string
	Path         string
	ClientIP     string
	StatusCode   int
	LatencyMs    int64
	CacheHit     bool
	ErrorMessage string
}

// AccessLogStats holds aggregate statistics for a range of requests.
type AccessLogStats struct {
	TotalRequests int64
	CacheHits     int64
	CacheMisses   int64
	AvgLatencyMs  float64
}

// InsertAccessLog stores a new access log record. The caller is
// responsible for providing a unique ID (typically a UUID).
func (s *Store) InsertAccessLog(e *AccessLogEntry) error {
	cacheHitInt := 0
	if e.CacheHit {
		cacheHitInt = 1
	}

	_, err := s.writer.Exec(`
		INSERT INTO access_log (
			id, timestamp, method, path, client_ip,
			status_code, latency_ms, cache_hit, error_message
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.Timestamp, e.Method, e.Path, e.ClientIP,
		e.StatusCode, e.LatencyMs, cacheHitInt, e.ErrorMessage,
	)
	if err != nil {
		return fmt.Errorf("store: insert access log: %w", err)
	}
	return nil
}

// GetAccessLog retrieves a single access log entry by its ID.
// Returns sql.ErrNoRows (wrapped) if it does not exist.
func (s *Store) GetAccessLog(id string) (*AccessLogEntry, error) {
	e := &AccessLogEntry{}
	var cacheHitInt int

	err := s.reader.QueryRow(`
		SELECT id, timestamp, method, path, client_ip,
		       status_code, latency_ms, cache_hit, error_message
		FROM access_log WHERE id = ?`, id,
	).Scan(
		&e.ID, &e.Timestamp, &e.Method, &e.Path, &e.ClientIP,
		&e.StatusCode, &e.LatencyMs, &cacheHitInt, &e.ErrorMessage,
	)
	if err != nil {
		return nil, fmt.Errorf("store: get access log %s: %w", id, err)
	}

	e.CacheHit = cacheHitInt != 0
	return e, nil
}

// ListAccessLog returns a page of entries ordered by timestamp descending.
func (s *Store) ListAccessLog(limit, offset int) ([]*AccessLogEntry, error) {
	rows, err := s.reader.Query(`
		SELECT id, timestamp, method, path, client_ip,
		       status_code, latency_ms, cache_hit, error_message
		FROM access_log
		ORDER BY timestamp DESC
		LIMIT ? OFFSET ?`, limit, offset,
	)
	if err != nil {
		return nil, fmt.Errorf("store: list access log: %w", err)
	}
	defer rows.Close()

	var results []*AccessLogEntry
	for rows.Next() {
		e := &AccessLogEntry{}
		var cacheHitInt int
		if err := rows.Scan(
			&e.ID, &e.Timestamp, &e.Method, &e.Path, &e.ClientIP,
			&e.StatusCode, &e.LatencyMs, &cacheHitInt, &e.ErrorMessage,
		); err != nil {
			return nil, fmt.Errorf("store: scan access log row: %w", err)
		}
		e.CacheHit = cacheHitInt != 0
		results = append(results, e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: list access log iteration: %w", err)
	}
	return results, nil
}

// GetAccessLogStats computes aggregate statistics for all entries whose
// timestamp is >= since.
func (s *Store) GetAccessLogStats(since time.Time) (*AccessLogStats, error) {
	sinceStr := since.UTC().Format(time.RFC3339)
	stats := &AccessLogStats{}

	err := s.reader.QueryRow(`
		SELECT
			COUNT(*),
			COALESCE(SUM(CASE WHEN cache_hit = 1 THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN cache_hit = 0 THEN 1 ELSE 0 END), 0),
			COALESCE(AVG(latency_ms), 0.0)
		FROM access_log
		WHERE timestamp >= ?`, sinceStr,
	).Scan(
		&stats.TotalRequests,
		&stats.CacheHits,
		&stats.CacheMisses,
		&stats.AvgLatencyMs,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return stats, nil
		}
		return nil, fmt.Errorf("store: get access log stats: %w", err)
	}

	return stats, nil
}
