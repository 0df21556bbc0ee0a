// Package httpcache layers HTTP response semantics (ETags, Last-Modified,
// conditional requests, Cache-Control) on top of internal/cache's generic
// LRUCache.
package httpcache

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/allaspectsdev/webcore/internal/cache"
)

// Entry is a cached HTTP response body plus the metadata needed to
// regenerate conditional-request headers on every hit.
type Entry struct {
	Body         []byte
	StatusCode   int
	ContentType  string
	Headers      map[string]string
	ETag         string
	LastModified time.Time
	CreatedAt    time.Time
	ExpiresAt    time.Time
}

func newEntry(statusCode int, contentType string, body []byte, headers map[string]string, ttl time.Duration) *Entry {
	now := time.Now()
	e := &Entry{
		StatusCode:  statusCode,
		ContentType: contentType,
		Body:        body,
		Headers:     headers,
		CreatedAt:   now,
		ExpiresAt:   now.Add(ttl),
		LastModified: now,
	}
	e.ETag = computeETag(body)
	return e
}

// computeETag derives a strong (no W/ prefix), content-derived ETag from
// the response body: the first 16 hex characters of its SHA-256 digest,
// quoted.
func computeETag(body []byte) string {
	sum := sha256.Sum256(body)
	return fmt.Sprintf(`"%s"`, hex.EncodeToString(sum[:])[:16])
}

// Config controls which responses are cached and how.
type Config struct {
	MaxEntries                int
	DefaultTTL                time.Duration
	VaryHeaders               []string
	CacheableContentTypes     []string
	CacheableStatusCodes      []int
	EnableETags               bool
	EnableLastModified        bool
	EnableConditionalRequests bool
}

// DefaultConfig matches the reference implementation's defaults.
func DefaultConfig() Config {
	return Config{
		MaxEntries: 1000,
		DefaultTTL: 5 * time.Minute,
		VaryHeaders: []string{"Accept", "Accept-Encoding", "Authorization"},
		CacheableContentTypes: []string{
			"application/json", "text/html", "text/plain", "text/css",
			"application/javascript", "image/png", "image/jpeg", "image/svg+xml",
		},
		CacheableStatusCodes:      []int{200, 203, 300, 301, 302, 304, 404, 410},
		EnableETags:               true,
		EnableLastModified:        true,
		EnableConditionalRequests: true,
	}
}

// Cache is a response cache keyed by method+path+vary-headers.
type Cache struct {
	entries *cache.LRUCache[string, *Entry]
	cfg     Config
}

// New builds a Cache from cfg.
func New(cfg Config) *Cache {
	return &Cache{
		entries: cache.NewLRUCache[string, *Entry](cfg.MaxEntries, cfg.DefaultTTL),
		cfg:     cfg,
	}
}

// GenerateCacheKey builds a cache key from the request method, path, and
// the configured Vary headers' values, so two requests that would receive
// different representations never collide.
func (c *Cache) GenerateCacheKey(method, path string, headers http.Header) string {
	var b strings.Builder
	b.WriteString(strings.ToUpper(method))
	b.WriteByte(' ')
	b.WriteString(path)

	vary := append([]string(nil), c.cfg.VaryHeaders...)
	sort.Strings(vary)
	for _, h := range vary {
		b.WriteByte('\x00')
		b.WriteString(h)
		b.WriteByte('=')
		b.WriteString(headers.Get(h))
	}

	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}

// ShouldCache reports whether a response with the given status code and
// content type is eligible for caching under cfg.
func (c *Cache) ShouldCache(statusCode int, contentType string) bool {
	statusOK := false
	for _, s := range c.cfg.CacheableStatusCodes {
		if s == statusCode {
			statusOK = true
			break
		}
	}
	if !statusOK {
		return false
	}

	if len(c.cfg.CacheableContentTypes) == 0 {
		return true
	}
	base, _, _ := strings.Cut(contentType, ";")
	base = strings.TrimSpace(base)
	for _, ct := range c.cfg.CacheableContentTypes {
		if strings.EqualFold(ct, base) {
			return true
		}
	}
	return false
}

// Store caches a response under key if it is eligible per ShouldCache.
func (c *Cache) Store(key string, statusCode int, contentType string, body []byte, headers map[string]string) {
	if !c.ShouldCache(statusCode, contentType) {
		return
	}
	c.entries.Set(key, newEntry(statusCode, contentType, body, headers, c.cfg.DefaultTTL))
}

// Get returns the cached entry for key, if present and unexpired.
func (c *Cache) Get(key string) (*Entry, bool) {
	return c.entries.Get(key)
}

// Stats exposes the underlying LRUCache's stats.
func (c *Cache) Stats() cache.Stats {
	return c.entries.Stats()
}

// ConditionalResult is the outcome of evaluating a conditional request
// (If-None-Match / If-Modified-Since) against a cached Entry.
type ConditionalResult int

const (
	// Absent means there is no cached entry to condition against; the
	// caller should proceed with a normal (non-cached) response.
	Absent ConditionalResult = iota
	// NotModified means the client's cached copy is still valid: reply
	// 304 with no body.
	NotModified
	// Modified means a cached entry exists but the client's validators
	// are stale (or absent): reply with the full cached body.
	Modified
)

// EvaluateConditional checks an incoming request's validators against a
// cached entry. If-None-Match takes precedence over If-Modified-Since,
// matching the HTTP/1.1 conditional-request precedence rules.
func (c *Cache) EvaluateConditional(key string, ifNoneMatch, ifModifiedSince string) ConditionalResult {
	if !c.cfg.EnableConditionalRequests {
		return Absent
	}

	entry, ok := c.entries.Get(key)
	if !ok {
		return Absent
	}

	if c.cfg.EnableETags && ifNoneMatch != "" {
		for _, candidate := range strings.Split(ifNoneMatch, ",") {
			if strings.TrimSpace(candidate) == entry.ETag || strings.TrimSpace(candidate) == "*" {
				return NotModified
			}
		}
		return Modified
	}

	if c.cfg.EnableLastModified && ifModifiedSince != "" {
		t, err := http.ParseTime(ifModifiedSince)
		if err == nil && !entry.LastModified.Truncate(time.Second).After(t) {
			return NotModified
		}
		return Modified
	}

	return Modified
}

// ApplyHeaders writes the cache-control, ETag, and Last-Modified headers
// for entry into w, in the order a real server would emit them.
func (c *Cache) ApplyHeaders(w http.Header, entry *Entry) {
	if c.cfg.EnableETags {
		w.Set("ETag", entry.ETag)
	}
	if c.cfg.EnableLastModified {
		w.Set("Last-Modified", entry.LastModified.UTC().Format(http.TimeFormat))
	}
	maxAge := int(time.Until(entry.ExpiresAt).Seconds())
	if maxAge < 0 {
		maxAge = 0
	}
	w.Set("Cache-Control", fmt.Sprintf("public, max-age=%d", maxAge))
	for k, v := range entry.Headers {
		w.Set(k, v)
	}
}
