package admin

import (
	"net/http/httptest"
	"testing"

	"github.com/allaspectsdev/webcore/internal/httpcache"
	"github.com/allaspectsdev/webcore/internal/pipeline"
	"github.com/allaspectsdev/webcore/internal/querycache"
	"github.com/allaspectsdev/webcore/internal/session"
)

func newTestServer(authEnabled bool, authToken string) *Server {
	deps := Deps{
		HTTPCache:  httpcache.New(httpcache.DefaultConfig()),
		QueryCache: querycache.New(querycache.DefaultConfig()),
		Sessions:   session.NewManager(session.NewMemoryStore(session.FingerprintDisabled), session.DefaultConfig()),
		Chain:      pipeline.NewChain(),
	}
	return NewServer(deps, ":0", authEnabled, authToken)
}

func TestHandleHealth(t *testing.T) {
	s := newTestServer(false, "")
	req := httptest.NewRequest("GET", "/health", nil)
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)

	if rec.Code != 200 {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
}

func TestHandleCache(t *testing.T) {
	s := newTestServer(false, "")
	req := httptest.NewRequest("GET", "/debug/cache", nil)
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)

	if rec.Code != 200 {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
}

func TestHandleSessions(t *testing.T) {
	s := newTestServer(false, "")
	req := httptest.NewRequest("GET", "/debug/sessions", nil)
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)

	if rec.Code != 200 {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
}

func TestHandleMiddleware(t *testing.T) {
	s := newTestServer(false, "")
	req := httptest.NewRequest("GET", "/debug/middleware", nil)
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)

	if rec.Code != 200 {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
}

func TestRequireAuth_MissingToken(t *testing.T) {
	s := newTestServer(true, "secret")
	req := httptest.NewRequest("GET", "/debug/cache", nil)
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)

	if rec.Code != 401 {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}

func TestRequireAuth_ValidToken(t *testing.T) {
	s := newTestServer(true, "secret")
	req := httptest.NewRequest("GET", "/debug/cache", nil)
	req.Header.Set("Authorization", "Bearer secret")
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)

	if rec.Code != 200 {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
}
