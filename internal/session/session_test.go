package session

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func newRequest(ip, ua string) *http.Request {
	r := httptest.NewRequest("GET", "/", nil)
	r.RemoteAddr = ip + ":12345"
	r.Header.Set("User-Agent", ua)
	return r
}

func TestFingerprint_SoftModeAcceptsSameSubnet(t *testing.T) {
	a := NewFingerprint(newRequest("203.0.113.10", "test-agent"))
	b := NewFingerprint(newRequest("203.0.113.99", "test-agent"))
	if !a.Matches(b, FingerprintSoft) {
		t.Fatal("expected soft mode to accept addresses in the same /24")
	}
}

func TestFingerprint_SoftModeRejectsDifferentSubnet(t *testing.T) {
	a := NewFingerprint(newRequest("203.0.113.10", "test-agent"))
	b := NewFingerprint(newRequest("198.51.100.10", "test-agent"))
	if a.Matches(b, FingerprintSoft) {
		t.Fatal("expected soft mode to reject addresses in different subnets")
	}
}

func TestFingerprint_StrictModeRejectsAnyIPChange(t *testing.T) {
	a := NewFingerprint(newRequest("203.0.113.10", "test-agent"))
	b := NewFingerprint(newRequest("203.0.113.11", "test-agent"))
	if a.Matches(b, FingerprintStrict) {
		t.Fatal("expected strict mode to reject any IP change")
	}
}

func TestFingerprint_DisabledAlwaysMatches(t *testing.T) {
	a := NewFingerprint(newRequest("203.0.113.10", "agent-a"))
	b := NewFingerprint(newRequest("198.51.100.1", "agent-b"))
	if !a.Matches(b, FingerprintDisabled) {
		t.Fatal("expected disabled mode to always match")
	}
}

func TestManager_CreateLoadSave(t *testing.T) {
	store := NewMemoryStore(FingerprintSoft)
	cfg := DefaultConfig()
	cfg.SaveStrategy = SaveImmediate
	mgr := NewManager(store, cfg)

	req := newRequest("203.0.113.10", "test-agent")
	s, err := mgr.Create(context.Background(), req)
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	loaded, err := mgr.Load(context.Background(), s.ID(), req)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if loaded == nil {
		t.Fatal("expected session to load")
	}

	loaded.Set("user_id", "42")
	if err := mgr.Save(context.Background(), loaded); err != nil {
		t.Fatalf("save: %v", err)
	}

	reloaded, err := mgr.Load(context.Background(), s.ID(), req)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if v, ok := reloaded.Get("user_id"); !ok || v != "42" {
		t.Fatalf("expected user_id=42 to persist, got %q, %v", v, ok)
	}
}

func TestManager_LoadRejectsFingerprintMismatch(t *testing.T) {
	store := NewMemoryStore(FingerprintStrict)
	cfg := DefaultConfig()
	mgr := NewManager(store, cfg)

	createReq := newRequest("203.0.113.10", "test-agent")
	s, _ := mgr.Create(context.Background(), createReq)

	otherReq := newRequest("198.51.100.1", "different-agent")
	loaded, err := mgr.Load(context.Background(), s.ID(), otherReq)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if loaded != nil {
		t.Fatal("expected fingerprint mismatch to reject the session")
	}

	exists, _ := store.Exists(context.Background(), s.ID())
	if exists {
		t.Fatal("expected rejected session to be deleted from the store")
	}
}

func TestManager_RotateIssuesNewID(t *testing.T) {
	store := NewMemoryStore(FingerprintSoft)
	mgr := NewManager(store, DefaultConfig())

	req := newRequest("203.0.113.10", "test-agent")
	s, _ := mgr.Create(context.Background(), req)
	oldID := s.ID()

	rotated, err := mgr.Rotate(context.Background(), s, req)
	if err != nil {
		t.Fatalf("rotate: %v", err)
	}
	if rotated.ID() == oldID {
		t.Fatal("expected a new session id after rotation")
	}

	exists, _ := store.Exists(context.Background(), oldID)
	if exists {
		t.Fatal("expected old session id to be deleted after rotation")
	}
}

func TestManager_CreateCookieAttributeOrder(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Domain = "example.com"
	mgr := NewManager(NewMemoryStore(FingerprintSoft), cfg)

	rendered := mgr.CreateCookie("abc123")

	want := "webcore_sid=abc123; Path=/; Domain=example.com; Secure; HttpOnly; SameSite=Lax; Max-Age=900"
	if rendered != want {
		t.Fatalf("attribute order/format mismatch:\n got:  %q\n want: %q", rendered, want)
	}
}

func TestManager_CreateCookie_OmitsUnsetDomainAndUnconfiguredAttributes(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Secure = false
	cfg.HTTPOnly = false
	mgr := NewManager(NewMemoryStore(FingerprintSoft), cfg)

	rendered := mgr.CreateCookie("abc123")

	want := "webcore_sid=abc123; Path=/; SameSite=Lax; Max-Age=900"
	if rendered != want {
		t.Fatalf("got %q, want %q", rendered, want)
	}
}

func TestManager_CreateDestroyCookie_GoldenString(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Domain = "example.com"
	mgr := NewManager(NewMemoryStore(FingerprintSoft), cfg)

	rendered := mgr.CreateDestroyCookie()

	want := "webcore_sid=; Path=/; Domain=example.com; Max-Age=0; Expires=Thu, 01 Jan 1970 00:00:00 GMT"
	if rendered != want {
		t.Fatalf("got %q, want %q", rendered, want)
	}
}

func TestManager_DestroySessionRemovesFromStore(t *testing.T) {
	store := NewMemoryStore(FingerprintSoft)
	mgr := NewManager(store, DefaultConfig())

	req := newRequest("203.0.113.10", "test-agent")
	s, _ := mgr.Create(context.Background(), req)

	if err := mgr.Destroy(context.Background(), s.ID()); err != nil {
		t.Fatalf("destroy: %v", err)
	}
	exists, _ := store.Exists(context.Background(), s.ID())
	if exists {
		t.Fatal("expected destroyed session to be gone")
	}
}

func TestManager_IdleTimeoutExpiresSession(t *testing.T) {
	store := NewMemoryStore(FingerprintSoft)
	cfg := DefaultConfig()
	cfg.IdleTimeout = time.Millisecond
	mgr := NewManager(store, cfg)

	req := newRequest("203.0.113.10", "test-agent")
	s, _ := mgr.Create(context.Background(), req)

	time.Sleep(5 * time.Millisecond)

	loaded, err := mgr.Load(context.Background(), s.ID(), req)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if loaded != nil {
		t.Fatal("expected idle-expired session to load as nil")
	}
}
