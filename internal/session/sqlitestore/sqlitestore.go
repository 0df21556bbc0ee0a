// Package sqlitestore is the durable session.Store backend: a
// modernc.org/sqlite database with a single serialized writer connection
// and a pooled reader connection, surviving process restarts.
package sqlitestore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/allaspectsdev/webcore/internal/session"
)

// Store is a SQLite-backed session.Store. It uses the same two-connection
// pattern as the rest of this module's durable storage: a single writer
// (MaxOpenConns=1) for serialized writes, and a reader pool for
// concurrent reads, both in WAL mode.
type Store struct {
	writer *sql.DB
	reader *sql.DB
	path   string

	fingerprintMode session.FingerprintMode
	closeOnce       sync.Once
}

var _ session.Store = (*Store)(nil)

// Open creates or opens a session database at path.
func Open(path string, fingerprintMode session.FingerprintMode) (*Store, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("sqlitestore: create directory %s: %w", dir, err)
	}

	writerDSN := path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(ON)"
	writer, err := sql.Open("sqlite", writerDSN)
	if err != nil {
		return nil, fmt.Errorf("sqlitestore: open writer: %w", err)
	}
	writer.SetMaxOpenConns(1)
	writer.SetMaxIdleConns(1)
	writer.SetConnMaxLifetime(0)
	if err := writer.Ping(); err != nil {
		writer.Close()
		return nil, fmt.Errorf("sqlitestore: ping writer: %w", err)
	}

	readerDSN := path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(ON)&_pragma=query_only(ON)"
	reader, err := sql.Open("sqlite", readerDSN)
	if err != nil {
		writer.Close()
		return nil, fmt.Errorf("sqlitestore: open reader: %w", err)
	}
	reader.SetMaxOpenConns(4)
	reader.SetMaxIdleConns(4)
	reader.SetConnMaxLifetime(0)
	if err := reader.Ping(); err != nil {
		writer.Close()
		reader.Close()
		return nil, fmt.Errorf("sqlitestore: ping reader: %w", err)
	}

	s := &Store{writer: writer, reader: reader, path: path, fingerprintMode: fingerprintMode}
	if err := s.migrate(); err != nil {
		s.Close()
		return nil, fmt.Errorf("sqlitestore: migrate: %w", err)
	}
	return s, nil
}

func (s *Store) migrate() error {
	_, err := s.writer.Exec(`
		CREATE TABLE IF NOT EXISTS sessions (
			id               TEXT PRIMARY KEY,
			fingerprint_ip   TEXT NOT NULL,
			fingerprint_ua   TEXT NOT NULL,
			created_at       INTEGER NOT NULL,
			last_accessed    INTEGER NOT NULL,
			absolute_timeout INTEGER NOT NULL,
			values_json      TEXT NOT NULL,
			expires_at       INTEGER NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_sessions_expires_at ON sessions(expires_at);
	`)
	return err
}

// Close closes both connections. Safe to call more than once.
func (s *Store) Close() error {
	var firstErr error
	s.closeOnce.Do(func() {
		if err := s.writer.Close(); err != nil {
			firstErr = err
		}
		if err := s.reader.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	})
	return firstErr
}

func (s *Store) BackendName() string { return "sqlite" }

func (s *Store) Get(ctx context.Context, id string, fp *session.Fingerprint) (*session.Data, error) {
	row := s.reader.QueryRowContext(ctx, `
		SELECT fingerprint_ip, fingerprint_ua, created_at, last_accessed, absolute_timeout, values_json, expires_at
		FROM sessions WHERE id = ?`, id)

	var ip, ua, valuesJSON string
	var createdAt, lastAccessed, absoluteTimeout, expiresAt int64
	err := row.Scan(&ip, &ua, &createdAt, &lastAccessed, &absoluteTimeout, &valuesJSON, &expiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("sqlitestore: get %s: %w", id, err)
	}

	if time.Now().Unix() > expiresAt {
		_ = s.Delete(ctx, id)
		return nil, nil
	}

	data := &session.Data{
		Fingerprint:     session.Fingerprint{IP: ip, UserAgentHash: ua},
		CreatedAt:       createdAt,
		LastAccessed:    lastAccessed,
		AbsoluteTimeout: absoluteTimeout,
	}
	if err := json.Unmarshal([]byte(valuesJSON), &data.Values); err != nil {
		return nil, fmt.Errorf("sqlitestore: decode values for %s: %w", id, err)
	}

	if fp != nil && !data.Fingerprint.Matches(*fp, s.fingerprintMode) {
		_ = s.Delete(ctx, id)
		return nil, nil
	}

	return data, nil
}

func (s *Store) Set(ctx context.Context, id string, data *session.Data, ttl time.Duration) error {
	valuesJSON, err := json.Marshal(data.Values)
	if err != nil {
		return fmt.Errorf("sqlitestore: encode values for %s: %w", id, err)
	}

	_, err = s.writer.ExecContext(ctx, `
		INSERT INTO sessions (id, fingerprint_ip, fingerprint_ua, created_at, last_accessed, absolute_timeout, values_json, expires_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			fingerprint_ip   = excluded.fingerprint_ip,
			fingerprint_ua   = excluded.fingerprint_ua,
			last_accessed    = excluded.last_accessed,
			absolute_timeout = excluded.absolute_timeout,
			values_json      = excluded.values_json,
			expires_at       = excluded.expires_at`,
		id, data.Fingerprint.IP, data.Fingerprint.UserAgentHash,
		data.CreatedAt, data.LastAccessed, data.AbsoluteTimeout, string(valuesJSON),
		time.Now().Add(ttl).Unix(),
	)
	if err != nil {
		return fmt.Errorf("sqlitestore: set %s: %w", id, err)
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, id string) error {
	if _, err := s.writer.ExecContext(ctx, `DELETE FROM sessions WHERE id = ?`, id); err != nil {
		return fmt.Errorf("sqlitestore: delete %s: %w", id, err)
	}
	return nil
}

func (s *Store) Exists(ctx context.Context, id string) (bool, error) {
	var expiresAt int64
	err := s.reader.QueryRowContext(ctx, `SELECT expires_at FROM sessions WHERE id = ?`, id).Scan(&expiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("sqlitestore: exists %s: %w", id, err)
	}
	return time.Now().Unix() <= expiresAt, nil
}

func (s *Store) CleanupExpired(ctx context.Context) (int, error) {
	result, err := s.writer.ExecContext(ctx, `DELETE FROM sessions WHERE expires_at < ?`, time.Now().Unix())
	if err != nil {
		return 0, fmt.Errorf("sqlitestore: cleanup expired: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("sqlitestore: cleanup rows affected: %w", err)
	}
	return int(n), nil
}

func (s *Store) Stats(ctx context.Context) (session.Stats, error) {
	now := time.Now().Unix()

	var active, expired int
	if err := s.reader.QueryRowContext(ctx, `SELECT COUNT(*) FROM sessions WHERE expires_at >= ?`, now).Scan(&active); err != nil {
		return session.Stats{}, fmt.Errorf("sqlitestore: stats active: %w", err)
	}
	if err := s.reader.QueryRowContext(ctx, `SELECT COUNT(*) FROM sessions WHERE expires_at < ?`, now).Scan(&expired); err != nil {
		return session.Stats{}, fmt.Errorf("sqlitestore: stats expired: %w", err)
	}

	return session.Stats{BackendName: s.BackendName(), ActiveCount: active, ExpiredCount: expired}, nil
}

// Path returns the filesystem path of the database.
func (s *Store) Path() string { return s.path }
