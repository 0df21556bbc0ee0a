// Package server wires the radix-trie router, the middleware chain, and
// the per-request Context into a single http.Handler: the core's HTTP
// entry point.
package server

import (
	"bytes"
	"context"
	"net/http"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/allaspectsdev/webcore/internal/httpcache"
	"github.com/allaspectsdev/webcore/internal/pipeline"
	"github.com/allaspectsdev/webcore/internal/router"
	"github.com/allaspectsdev/webcore/internal/webctx"
)

// Handler is a route handler operating on the request's Context rather
// than the raw ResponseWriter/Request pair.
type Handler func(ctx context.Context, rc *webctx.Context)

// captureWriter records the status, headers, and body a handler writes,
// while still passing every write through to the real ResponseWriter.
// internal/httpcache's response-cache middleware reads it back in the
// outbound phase to populate the cache.
type captureWriter struct {
	http.ResponseWriter
	status      int
	body        bytes.Buffer
	wroteHeader bool
}

func newCaptureWriter(w http.ResponseWriter) *captureWriter {
	return &captureWriter{ResponseWriter: w}
}

func (c *captureWriter) WriteHeader(status int) {
	if !c.wroteHeader {
		c.status = status
		c.wroteHeader = true
	}
	c.ResponseWriter.WriteHeader(status)
}

func (c *captureWriter) Write(b []byte) (int, error) {
	if !c.wroteHeader {
		c.status = http.StatusOK
		c.wroteHeader = true
	}
	c.body.Write(b)
	return c.ResponseWriter.Write(b)
}

func (c *captureWriter) CapturedStatus() int { return c.status }
func (c *captureWriter) CapturedBody() []byte { return c.body.Bytes() }

type contextKey int

const rcContextKey contextKey = iota

// FromContext returns the webctx.Context stashed by Server.ServeHTTP, for
// handlers reached indirectly (e.g. via further stdlib middleware) that
// only have a context.Context in hand.
func FromContext(ctx context.Context) (*webctx.Context, bool) {
	rc, ok := ctx.Value(rcContextKey).(*webctx.Context)
	return rc, ok
}

const captureScratchKey = "server.capture"

// CaptureFromContext is the extraction function internal/httpcache's
// response-cache middleware uses to read back the captured response.
func CaptureFromContext(rc *webctx.Context) (httpcache.Capture, bool) {
	v, ok := rc.Get(captureScratchKey)
	if !ok {
		return nil, false
	}
	cw, ok := v.(*captureWriter)
	return cw, ok
}

// Server is the core HTTP entry point: a Trie for route matching, a
// Chain for inbound/outbound middleware, and the per-request Context
// that glues them together.
type Server struct {
	Trie  *router.Trie
	Chain *pipeline.Chain
}

// New builds a Server over an empty route Trie. Call Handle to register
// routes, then pass the Server itself (which implements http.Handler) to
// an http.Server.
func New(chain *pipeline.Chain) *Server {
	return &Server{Trie: router.New(), Chain: chain}
}

// Handle registers h to serve method+path.
func (s *Server) Handle(method, path string, h Handler) {
	s.Trie.Add(method, path, func(w http.ResponseWriter, r *http.Request) {
		rc, ok := FromContext(r.Context())
		if !ok {
			http.Error(w, "internal error: missing request context", http.StatusInternalServerError)
			return
		}
		h(r.Context(), rc)
	})
}

// ServeHTTP implements http.Handler: it builds the request's Context,
// runs the inbound middleware phase, dispatches to the matched route (if
// any middleware didn't already respond), and finally runs the outbound
// phase.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	requestID := r.Header.Get("X-Request-ID")
	if requestID == "" {
		requestID = uuid.NewString()
	}

	cw := newCaptureWriter(w)
	rc := webctx.New(cw, r, requestID)
	rc.Set(captureScratchKey, cw)

	ctx := context.WithValue(r.Context(), rcContextKey, rc)

	match := s.Trie.Match(r.Method, r.URL.Path)
	rc.Params = match.Params

	outcome, err := s.Chain.ProcessRequest(ctx, rc)
	if err != nil {
		log.Error().Err(err).Str("request_id", requestID).Msg("server: inbound middleware failed")
		if !rc.Responded() {
			rc.InternalServerError("")
		}
	}

	if !outcome.Stopped && !rc.Responded() {
		switch {
		case match.Handler != nil:
			match.Handler(cw, r.WithContext(ctx))
		case match.MatchedPath:
			rc.WriteRaw(http.StatusMethodNotAllowed, "text/plain; charset=utf-8", []byte("Method Not Allowed"))
		default:
			rc.NotFound("")
		}
	}

	if perr := s.Chain.ProcessResponse(ctx, rc, outcome.RanUpTo); perr != nil {
		log.Error().Err(perr).Str("request_id", requestID).Msg("server: outbound middleware failed")
	}
}
