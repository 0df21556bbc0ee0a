package httpcache

import (
	"context"
	"net/http"

	"github.com/allaspectsdev/webcore/internal/pipeline"
	"github.com/allaspectsdev/webcore/internal/webctx"
)

// scratch keys the middleware uses on webctx.Context's per-request data
// map to pass state between its inbound and outbound phases.
const (
	keyCacheKey = "httpcache.key"
	keyHit      = "httpcache.hit"
)

// Capture is satisfied by a ResponseWriter that records the status,
// headers, and body written through it, so the outbound phase can store
// what the route handler actually produced. The HTTP entry point is
// expected to wrap the real ResponseWriter with one before constructing
// the request's webctx.Context.
type Capture interface {
	http.ResponseWriter
	CapturedStatus() int
	CapturedBody() []byte
}

// Middleware is a pipeline.Middleware that serves GET/HEAD requests from
// Cache when a fresh entry exists, and stores eligible responses on the
// way out. It relies on the dispatcher passing a Capture-backed
// ResponseWriter so the outbound phase can see the bytes the handler
// wrote.
type Middleware struct {
	cache    *Cache
	priority int
	capture  func(rc *webctx.Context) (Capture, bool)
}

// NewMiddleware wraps cache as a pipeline slot running at priority.
// capture extracts the request's Capture-backed ResponseWriter from rc;
// the dispatcher is expected to have stashed it in rc's scratch map.
func NewMiddleware(cache *Cache, priority int, capture func(rc *webctx.Context) (Capture, bool)) *Middleware {
	return &Middleware{cache: cache, priority: priority, capture: capture}
}

func (m *Middleware) Name() string  { return "response_cache" }
func (m *Middleware) Priority() int { return m.priority }
func (m *Middleware) Enabled() bool { return true }

// ProcessRequest checks for a cached, fresh representation of this
// request and replays it (honoring conditional validators) instead of
// letting the route handler run.
func (m *Middleware) ProcessRequest(_ context.Context, rc *webctx.Context) (pipeline.Result, error) {
	if rc.Request.Method != http.MethodGet && rc.Request.Method != http.MethodHead {
		return pipeline.Continue, nil
	}

	key := m.cache.GenerateCacheKey(rc.Request.Method, rc.Request.URL.Path, rc.Request.Header)
	rc.Set(keyCacheKey, key)

	switch m.cache.EvaluateConditional(key, rc.Request.Header.Get("If-None-Match"), rc.Request.Header.Get("If-Modified-Since")) {
	case NotModified:
		entry, _ := m.cache.Get(key)
		m.cache.ApplyHeaders(rc.Header(), entry)
		rc.NotModified()
		rc.Set(keyHit, true)
		return pipeline.Capture, nil
	case Modified:
		entry, ok := m.cache.Get(key)
		if ok {
			m.cache.ApplyHeaders(rc.Header(), entry)
			rc.WriteRaw(entry.StatusCode, entry.ContentType, entry.Body)
			rc.Set(keyHit, true)
			return pipeline.Capture, nil
		}
	}

	return pipeline.Continue, nil
}

// ProcessResponse stores the response the handler wrote, reading it back
// from the Capture-backed ResponseWriter, unless this request was
// already served from cache.
func (m *Middleware) ProcessResponse(_ context.Context, rc *webctx.Context) (pipeline.Result, error) {
	if hit, _ := rc.Get(keyHit); hit == true {
		return pipeline.Continue, nil
	}
	if rc.Request.Method != http.MethodGet && rc.Request.Method != http.MethodHead {
		return pipeline.Continue, nil
	}

	key, ok := rc.Get(keyCacheKey)
	if !ok {
		return pipeline.Continue, nil
	}

	capw, ok := m.capture(rc)
	if !ok {
		return pipeline.Continue, nil
	}

	headers := make(map[string]string, len(capw.Header()))
	for k := range capw.Header() {
		headers[k] = capw.Header().Get(k)
	}

	m.cache.Store(key.(string), capw.CapturedStatus(), capw.Header().Get("Content-Type"), capw.CapturedBody(), headers)
	return pipeline.Continue, nil
}
