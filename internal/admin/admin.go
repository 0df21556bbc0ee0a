// Package admin serves a small, read-only HTTP mux exposing the core's
// own Stats() methods as JSON, for operator visibility into cache
// occupancy, session counts, and middleware timings. It is deliberately
// thin: an external collaborator, not part of the request-serving core.
package admin

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"

	"github.com/allaspectsdev/webcore/internal/httpcache"
	"github.com/allaspectsdev/webcore/internal/metrics"
	"github.com/allaspectsdev/webcore/internal/pipeline"
	"github.com/allaspectsdev/webcore/internal/querycache"
	"github.com/allaspectsdev/webcore/internal/session"
	"github.com/allaspectsdev/webcore/web"
)

// Server is the admin HTTP server. It binds a chi router to the
// configured address and provides graceful shutdown support.
type Server struct {
	router      chi.Router
	httpCache   *httpcache.Cache
	queryCache  *querycache.Cache
	sessions    *session.Manager
	chain       *pipeline.Chain
	collector   *metrics.Collector
	authToken   string
	authEnabled bool
	addr        string
	httpSrv     *http.Server
}

// Deps bundles the core components the debug endpoints introspect. Any
// field may be nil; the corresponding endpoint reports an empty result
// rather than failing.
type Deps struct {
	HTTPCache  *httpcache.Cache
	QueryCache *querycache.Cache
	Sessions   *session.Manager
	Chain      *pipeline.Chain
	Collector  *metrics.Collector
}

// NewServer creates a new admin Server bound to addr. If authEnabled is
// true, every request must carry "Authorization: Bearer <authToken>".
func NewServer(deps Deps, addr string, authEnabled bool, authToken string) *Server {
	s := &Server{
		httpCache:   deps.HTTPCache,
		queryCache:  deps.QueryCache,
		sessions:    deps.Sessions,
		chain:       deps.Chain,
		collector:   deps.Collector,
		authToken:   authToken,
		authEnabled: authEnabled,
		addr:        addr,
	}

	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	if authEnabled {
		r.Use(s.requireAuth)
	}

	r.Get("/debug/cache", s.handleCache)
	r.Get("/debug/sessions", s.handleSessions)
	r.Get("/debug/middleware", s.handleMiddleware)
	r.Get("/health", s.handleHealth)
	if s.collector != nil {
		r.Get("/metrics", metrics.PrometheusHandler(s.collector))
	}

	r.Handle("/static/*", http.StripPrefix("/static/", http.FileServer(http.FS(web.StaticFS()))))
	r.Get("/", s.handleIndex)

	s.router = r
	s.httpSrv = &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

// Router returns the underlying chi.Router, useful for testing or
// additional route mounting by the caller.
func (s *Server) Router() chi.Router {
	return s.router
}

// Start begins listening for HTTP connections on the configured
// address. It blocks until the server is shut down or encounters a
// fatal error.
func (s *Server) Start() error {
	if err := s.httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("admin server: %w", err)
	}
	return nil
}

// Shutdown gracefully stops the server, waiting for in-flight requests
// to complete within ctx's deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpSrv.Shutdown(ctx)
}

func (s *Server) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		want := "Bearer " + s.authToken
		if got := r.Header.Get("Authorization"); got == "" || got != want {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleIndex(w http.ResponseWriter, _ *http.Request) {
	page, err := web.Assets.ReadFile("templates/debug_index.html")
	if err != nil {
		log.Error().Err(err).Msg("admin: failed to read debug index template")
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "template not found"})
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(page)
}

func (s *Server) handleCache(w http.ResponseWriter, _ *http.Request) {
	out := map[string]interface{}{}
	if s.httpCache != nil {
		out["http"] = s.httpCache.Stats()
	}
	if s.queryCache != nil {
		out["query"] = s.queryCache.Stats()
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleSessions(w http.ResponseWriter, r *http.Request) {
	if s.sessions == nil {
		writeJSON(w, http.StatusOK, session.Stats{})
		return
	}
	stats, err := s.sessions.Stats(r.Context())
	if err != nil {
		log.Error().Err(err).Msg("admin: failed to read session stats")
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "session store error"})
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) handleMiddleware(w http.ResponseWriter, _ *http.Request) {
	if s.chain == nil {
		writeJSON(w, http.StatusOK, []interface{}{})
		return
	}

	type slot struct {
		Name       string `json:"name"`
		Priority   int    `json:"priority"`
		Enabled    bool   `json:"enabled"`
		LastTiming string `json:"last_timing"`
	}

	timings := s.chain.Timings()
	slots := make([]slot, 0, len(s.chain.Middlewares()))
	for _, m := range s.chain.Middlewares() {
		d := timings[m.Name()]
		slots = append(slots, slot{
			Name:       m.Name(),
			Priority:   m.Priority(),
			Enabled:    m.Enabled(),
			LastTiming: d.String(),
		})
	}
	writeJSON(w, http.StatusOK, slots)
}

// writeJSON serializes v as JSON and writes it to w with the given
// status code.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		log.Error().Err(err).Msg("admin: failed to write JSON response")
	}
}
