package session

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/allaspectsdev/webcore/internal/pipeline"
	"github.com/allaspectsdev/webcore/internal/webctx"
)

// Middleware is a pipeline.Middleware that attaches a Session to every
// request's Context: loading it from the session cookie inbound, and
// saving it (plus writing Set-Cookie on creation or rotation) outbound.
type Middleware struct {
	manager  *Manager
	priority int
}

// NewMiddleware wraps manager as a pipeline slot running at priority.
func NewMiddleware(manager *Manager, priority int) *Middleware {
	return &Middleware{manager: manager, priority: priority}
}

func (m *Middleware) Name() string   { return "session" }
func (m *Middleware) Priority() int  { return m.priority }
func (m *Middleware) Enabled() bool  { return m.manager.cfg.Enabled }

// ProcessRequest loads the session named by the configured cookie, or
// starts a fresh one if absent, expired, or fingerprint-rejected.
func (m *Middleware) ProcessRequest(ctx context.Context, rc *webctx.Context) (pipeline.Result, error) {
	var sess *Session

	if cookie, err := rc.Request.Cookie(m.manager.cfg.CookieName); err == nil && cookie.Value != "" {
		loaded, lerr := m.manager.Load(ctx, cookie.Value, rc.Request)
		if lerr != nil {
			log.Error().Err(lerr).Msg("session middleware: load failed")
		}
		sess = loaded
	}

	isNew := false
	if sess == nil {
		created, err := m.manager.Create(ctx, rc.Request)
		if err != nil {
			return pipeline.Continue, err
		}
		sess = created
		isNew = true
	}

	rc.Session = sess
	rc.Set("session.new", isNew)
	return pipeline.Continue, nil
}

// ProcessResponse persists the session per the configured save strategy
// and, for a newly-created session, writes the Set-Cookie header.
func (m *Middleware) ProcessResponse(ctx context.Context, rc *webctx.Context) (pipeline.Result, error) {
	if rc.Session == nil {
		return pipeline.Continue, nil
	}

	var saveErr error
	if m.manager.cfg.SaveStrategy == SaveEndOfRequest {
		saveErr = m.manager.ForceSave(ctx, rc.Session)
	} else {
		saveErr = m.manager.Save(ctx, rc.Session)
	}
	if saveErr != nil {
		log.Error().Err(saveErr).Msg("session middleware: save failed")
	}

	if isNew, _ := rc.Get("session.new"); isNew == true {
		rc.Header().Add("Set-Cookie", m.manager.CreateCookie(rc.Session.ID()))
	}

	return pipeline.Continue, nil
}
