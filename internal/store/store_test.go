package store

import (
	"path/filepath"
	"sync"
	"testing"
	"time"
)

func openCoreTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	st, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	return st
}

func TestOpen_Close(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")
	st, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	if st.Path() != path {
		t.Errorf("Path: got %q, want %q", st.Path(), path)
	}
	if st.Writer() == nil {
		t.Error("Writer is nil")
	}
	if st.Reader() == nil {
		t.Error("Reader is nil")
	}

	if err := st.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
}

func TestOpen_CreatesDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "deep", "test.db")
	st, err := Open(path)
	if err != nil {
		t.Fatalf("Open with nested dir: %v", err)
	}
	st.Close()
}

func TestPing(t *testing.T) {
	st := openCoreTestStore(t)
	if err := st.Ping(); err != nil {
		t.Fatalf("Ping: %v", err)
	}
}

func TestInsertAccessLog_GetAccessLog(t *testing.T) {
	st := openCoreTestStore(t)

	e := &AccessLogEntry{
		ID:         "req-001",
		Timestamp:  time.Now().UTC().Format(time.RFC3339),
		Method:     "GET",
		Path:       "/api/widgets",
		ClientIP:   "10.0.0.1",
		StatusCode: 200,
		LatencyMs:  42,
		CacheHit:   false,
	}

	if err := st.InsertAccessLog(e); err != nil {
		t.Fatalf("InsertAccessLog: %v", err)
	}

	got, err := st.GetAccessLog("req-001")
	if err != nil {
		t.Fatalf("GetAccessLog: %v", err)
	}

	if got.ID != e.ID {
		t.Errorf("ID: got %q, want %q", got.ID, e.ID)
	}
	if got.Path != e.Path {
		t.Errorf("Path: got %q, want %q", got.Path, e.Path)
	}
	if got.StatusCode != e.StatusCode {
		t.Errorf("StatusCode: got %d, want %d", got.StatusCode, e.StatusCode)
	}
	if got.CacheHit != e.CacheHit {
		t.Errorf("CacheHit: got %v, want %v", got.CacheHit, e.CacheHit)
	}
}

func TestGetAccessLog_NotFound(t *testing.T) {
	st := openCoreTestStore(t)

	_, err := st.GetAccessLog("nonexistent")
	if err == nil {
		t.Fatal("expected error for nonexistent entry")
	}
}

func TestListAccessLog(t *testing.T) {
	st := openCoreTestStore(t)

	for i := 0; i < 5; i++ {
		e := &AccessLogEntry{
			ID:         "list-" + time.Now().Format("150405.000000") + string(rune('0'+i)),
			Timestamp:  time.Now().UTC().Format(time.RFC3339),
			Method:     "GET",
			Path:       "/api/widgets",
			StatusCode: 200,
		}
		if err := st.InsertAccessLog(e); err != nil {
			t.Fatalf("InsertAccessLog %d: %v", i, err)
		}
	}

	results, err := st.ListAccessLog(3, 0)
	if err != nil {
		t.Fatalf("ListAccessLog: %v", err)
	}
	if len(results) != 3 {
		t.Errorf("ListAccessLog(3, 0): got %d results, want 3", len(results))
	}

	results, err = st.ListAccessLog(10, 3)
	if err != nil {
		t.Fatalf("ListAccessLog offset: %v", err)
	}
	if len(results) != 2 {
		t.Errorf("ListAccessLog(10, 3): got %d results, want 2", len(results))
	}
}

func TestGetAccessLogStats(t *testing.T) {
	st := openCoreTestStore(t)

	now := time.Now().UTC()
	for i := 0; i < 3; i++ {
		e := &AccessLogEntry{
			ID:         "stats-" + string(rune('a'+i)),
			Timestamp:  now.Format(time.RFC3339),
			Method:     "GET",
			Path:       "/api/widgets",
			StatusCode: 200,
			LatencyMs:  10,
			CacheHit:   i == 0, // first one is a cache hit
		}
		if err := st.InsertAccessLog(e); err != nil {
			t.Fatalf("InsertAccessLog: %v", err)
		}
	}

	stats, err := st.GetAccessLogStats(now.Add(-1 * time.Hour))
	if err != nil {
		t.Fatalf("GetAccessLogStats: %v", err)
	}

	if stats.TotalRequests != 3 {
		t.Errorf("TotalRequests: got %d, want 3", stats.TotalRequests)
	}
	if stats.CacheHits != 1 {
		t.Errorf("CacheHits: got %d, want 1", stats.CacheHits)
	}
	if stats.CacheMisses != 2 {
		t.Errorf("CacheMisses: got %d, want 2", stats.CacheMisses)
	}
}

func TestPrune(t *testing.T) {
	st := openCoreTestStore(t)

	oldTime := time.Now().UTC().AddDate(0, 0, -60).Format(time.RFC3339)
	newTime := time.Now().UTC().Format(time.RFC3339)

	for i, ts := range []string{oldTime, oldTime, newTime} {
		e := &AccessLogEntry{
			ID:         "prune-" + string(rune('a'+i)),
			Timestamp:  ts,
			Method:     "GET",
			Path:       "/api/widgets",
			StatusCode: 200,
		}
		if err := st.InsertAccessLog(e); err != nil {
			t.Fatalf("InsertAccessLog: %v", err)
		}
	}

	pruned, err := st.Prune(30) // retain 30 days
	if err != nil {
		t.Fatalf("Prune: %v", err)
	}

	if pruned < 2 {
		t.Errorf("Prune: got %d rows deleted, want at least 2", pruned)
	}

	remaining, err := st.ListAccessLog(100, 0)
	if err != nil {
		t.Fatalf("ListAccessLog after prune: %v", err)
	}
	if len(remaining) != 1 {
		t.Errorf("after prune: got %d entries, want 1", len(remaining))
	}
}

func TestConcurrentReadWrite(t *testing.T) {
	st := openCoreTestStore(t)

	var wg sync.WaitGroup

	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			e := &AccessLogEntry{
				ID:         "conc-" + string(rune('a'+n)),
				Timestamp:  time.Now().UTC().Format(time.RFC3339),
				Method:     "GET",
				Path:       "/api/widgets",
				StatusCode: 200,
			}
			if err := st.InsertAccessLog(e); err != nil {
				t.Errorf("concurrent InsertAccessLog %d: %v", n, err)
			}
		}(i)
	}

	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = st.ListAccessLog(10, 0)
		}()
	}

	wg.Wait()
}

func TestWALMode(t *testing.T) {
	st := openCoreTestStore(t)

	var mode string
	err := st.Writer().QueryRow("PRAGMA journal_mode").Scan(&mode)
	if err != nil {
		t.Fatalf("PRAGMA journal_mode: %v", err)
	}
	if mode != "wal" {
		t.Errorf("journal_mode: got %q, want %q", mode, "wal")
	}
}

func TestMigrations(t *testing.T) {
	st := openCoreTestStore(t)

	var version int
	err := st.Writer().QueryRow("SELECT MAX(version) FROM migrations").Scan(&version)
	if err != nil {
		t.Fatalf("query migration version: %v", err)
	}

	expected := len(migrations)
	if version != expected {
		t.Errorf("migration version: got %d, want %d", version, expected)
	}
}

func TestInsertAccessLog_CacheHitFlag(t *testing.T) {
	st := openCoreTestStore(t)

	e := &AccessLogEntry{
		ID:         "cache-flag-test",
		Timestamp:  time.Now().UTC().Format(time.RFC3339),
		Method:     "GET",
		Path:       "/api/widgets",
		StatusCode: 200,
		CacheHit:   true,
	}
	if err := st.InsertAccessLog(e); err != nil {
		t.Fatalf("InsertAccessLog: %v", err)
	}

	got, err := st.GetAccessLog("cache-flag-test")
	if err != nil {
		t.Fatalf("GetAccessLog: %v", err)
	}
	if !got.CacheHit {
		t.Error("CacheHit: got false, want true")
	}
}
