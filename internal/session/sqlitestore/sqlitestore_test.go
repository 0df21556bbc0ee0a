package sqlitestore

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/allaspectsdev/webcore/internal/session"
)

func TestStore_SetGetDelete(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sessions.db")
	s, err := Open(path, session.FingerprintSoft)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer s.Close()

	data := &session.Data{
		Fingerprint: session.Fingerprint{IP: "203.0.113.1", UserAgentHash: "abc"},
		CreatedAt:   time.Now().Unix(),
		Values:      map[string]string{"user_id": "7"},
	}

	if err := s.Set(context.Background(), "sess-1", data, time.Minute); err != nil {
		t.Fatalf("set: %v", err)
	}

	got, err := s.Get(context.Background(), "sess-1", nil)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got == nil || got.Values["user_id"] != "7" {
		t.Fatalf("expected persisted value, got %+v", got)
	}

	if err := s.Delete(context.Background(), "sess-1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	exists, _ := s.Exists(context.Background(), "sess-1")
	if exists {
		t.Fatal("expected deleted session to be gone")
	}
}

func TestStore_FingerprintMismatchDeletes(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sessions.db")
	s, err := Open(path, session.FingerprintStrict)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer s.Close()

	data := &session.Data{
		Fingerprint: session.Fingerprint{IP: "203.0.113.1", UserAgentHash: "abc"},
		Values:      map[string]string{},
	}
	s.Set(context.Background(), "sess-1", data, time.Minute)

	mismatched := session.Fingerprint{IP: "198.51.100.1", UserAgentHash: "xyz"}
	got, err := s.Get(context.Background(), "sess-1", &mismatched)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got != nil {
		t.Fatal("expected fingerprint mismatch to reject the session")
	}

	exists, _ := s.Exists(context.Background(), "sess-1")
	if exists {
		t.Fatal("expected mismatched session to be deleted")
	}
}

func TestStore_CleanupExpired(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sessions.db")
	s, err := Open(path, session.FingerprintSoft)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer s.Close()

	data := &session.Data{Values: map[string]string{}}
	s.Set(context.Background(), "sess-1", data, -time.Second)

	removed, err := s.CleanupExpired(context.Background())
	if err != nil {
		t.Fatalf("cleanup: %v", err)
	}
	if removed != 1 {
		t.Fatalf("expected 1 removed, got %d", removed)
	}
}
