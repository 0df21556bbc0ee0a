package testutil

import (
	"net/http"
	"net/http/httptest"
	"time"

	"github.com/allaspectsdev/webcore/internal/session"
	"github.com/allaspectsdev/webcore/internal/webctx"
)

// SampleJSONBody returns a small JSON document suitable for exercising
// the response cache and the Context.JSON path.
func SampleJSONBody() []byte {
	return []byte(`{"id":1,"name":"widget","tags":["a","b"]}`)
}

// SampleHTTPRequest builds an httptest request for path, with remoteAddr
// and a couple of representative headers set.
func SampleHTTPRequest(method, path, remoteAddr string) *http.Request {
	req := httptest.NewRequest(method, path, nil)
	req.RemoteAddr = remoteAddr
	req.Header.Set("User-Agent", "webcore-test/1.0")
	req.Header.Set("Accept", "application/json")
	return req
}

// NewTestRequestContext wraps an httptest request/response pair in a
// webctx.Context, as the router does for a live request.
func NewTestRequestContext(method, path, remoteAddr string) (*webctx.Context, *httptest.ResponseRecorder) {
	req := SampleHTTPRequest(method, path, remoteAddr)
	rec := httptest.NewRecorder()
	return webctx.New(rec, req, "test-request-id"), rec
}

// SampleFingerprint returns a fingerprint matching the request built by
// SampleHTTPRequest, for session tests that need a consistent baseline.
func SampleFingerprint() session.Fingerprint {
	req := SampleHTTPRequest(http.MethodGet, "/", "203.0.113.7:54321")
	return session.NewFingerprint(req)
}

// SampleSession creates a fresh session with a generated ID and the
// fingerprint from SampleFingerprint, with a 30 minute idle timeout and
// a 24 hour absolute timeout.
func SampleSession() *session.Session {
	id := session.GenerateSecureID(32)
	return session.NewSession(id, SampleFingerprint(), 30*time.Minute, 24*time.Hour)
}
