package httpcache

import (
	"net/http"
	"testing"
	"time"
)

func testCache() *Cache {
	cfg := DefaultConfig()
	cfg.DefaultTTL = time.Minute
	return New(cfg)
}

func TestCache_StoreAndGet(t *testing.T) {
	c := testCache()
	key := c.GenerateCacheKey("GET", "/widgets", http.Header{})
	c.Store(key, 200, "application/json", []byte(`{"ok":true}`), nil)

	entry, ok := c.Get(key)
	if !ok {
		t.Fatal("expected cached entry")
	}
	if entry.StatusCode != 200 {
		t.Fatalf("expected status 200, got %d", entry.StatusCode)
	}
}

func TestCache_ShouldCacheRejectsUncacheableStatus(t *testing.T) {
	c := testCache()
	if c.ShouldCache(500, "application/json") {
		t.Fatal("expected 500 responses not to be cacheable")
	}
}

func TestCache_ShouldCacheRejectsUncacheableContentType(t *testing.T) {
	c := testCache()
	if c.ShouldCache(200, "application/octet-stream") {
		t.Fatal("expected unlisted content type not to be cacheable")
	}
}

func TestCache_GenerateCacheKeyVariesByVaryHeader(t *testing.T) {
	c := testCache()
	h1 := http.Header{"Accept": []string{"application/json"}}
	h2 := http.Header{"Accept": []string{"text/html"}}

	k1 := c.GenerateCacheKey("GET", "/widgets", h1)
	k2 := c.GenerateCacheKey("GET", "/widgets", h2)
	if k1 == k2 {
		t.Fatal("expected different Accept headers to produce different keys")
	}
}

func TestCache_EvaluateConditional_ETagMatch(t *testing.T) {
	c := testCache()
	key := c.GenerateCacheKey("GET", "/widgets", http.Header{})
	c.Store(key, 200, "application/json", []byte("body"), nil)

	entry, _ := c.Get(key)
	result := c.EvaluateConditional(key, entry.ETag, "")
	if result != NotModified {
		t.Fatalf("expected NotModified, got %v", result)
	}
}

func TestCache_EvaluateConditional_ETagMismatch(t *testing.T) {
	c := testCache()
	key := c.GenerateCacheKey("GET", "/widgets", http.Header{})
	c.Store(key, 200, "application/json", []byte("body"), nil)

	result := c.EvaluateConditional(key, `"stale-etag"`, "")
	if result != Modified {
		t.Fatalf("expected Modified, got %v", result)
	}
}

func TestCache_EvaluateConditional_AbsentWhenNotCached(t *testing.T) {
	c := testCache()
	result := c.EvaluateConditional("missing-key", "", "")
	if result != Absent {
		t.Fatalf("expected Absent, got %v", result)
	}
}

func TestCache_EvaluateConditional_LastModifiedNotYetStale(t *testing.T) {
	c := testCache()
	key := c.GenerateCacheKey("GET", "/widgets", http.Header{})
	c.Store(key, 200, "application/json", []byte("body"), nil)

	future := time.Now().Add(time.Hour).UTC().Format(http.TimeFormat)
	result := c.EvaluateConditional(key, "", future)
	if result != NotModified {
		t.Fatalf("expected NotModified when If-Modified-Since is in the future, got %v", result)
	}
}
