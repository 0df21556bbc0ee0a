package session

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// SaveStrategyKind selects when a dirty session actually gets written to
// the Store.
type SaveStrategyKind int

const (
	// SaveImmediate writes on every Save call.
	SaveImmediate SaveStrategyKind = iota
	// SaveBatched accumulates dirty sessions and flushes them on a
	// ticker; the last write for a given session id wins.
	SaveBatched
	// SaveEndOfRequest defers the write to an explicit ForceSave call,
	// typically made by the outbound middleware phase.
	SaveEndOfRequest
)

// SameSite mirrors http.SameSite for config decoding convenience.
type SameSite = http.SameSite

// Config configures a Manager and the cookies it issues.
type Config struct {
	CookieName string
	Secure     bool
	HTTPOnly   bool
	SameSite   SameSite
	Domain     string
	Path       string

	IdleTimeout     time.Duration
	AbsoluteTimeout time.Duration

	RotationOnPrivilege bool
	FingerprintMode     FingerprintMode
	SecureIDLength      int

	SaveStrategy  SaveStrategyKind
	BatchInterval time.Duration

	ExemptRoutes []string
	Enabled      bool
}

// DefaultConfig matches the reference implementation's defaults.
func DefaultConfig() Config {
	return Config{
		CookieName: "webcore_sid",
		Secure:     true,
		HTTPOnly:   true,
		SameSite:   http.SameSiteLaxMode,
		Path:       "/",

		IdleTimeout:     15 * time.Minute,
		AbsoluteTimeout: 8 * time.Hour,

		RotationOnPrivilege: true,
		FingerprintMode:     FingerprintSoft,
		SecureIDLength:      32,

		SaveStrategy: SaveEndOfRequest,
		Enabled:      true,
	}
}

type pendingSave struct {
	data Data
}

// Manager ties a Store, a Config, and a save strategy together into the
// session lifecycle: create, load, save, rotate, destroy.
type Manager struct {
	store  Store
	cfg    Config
	mu     sync.Mutex
	pending map[string]pendingSave
	stopBatch chan struct{}
}

// NewManager builds a Manager. If cfg.SaveStrategy is SaveBatched, a
// background goroutine is started immediately; call Close to stop it.
func NewManager(store Store, cfg Config) *Manager {
	m := &Manager{
		store:   store,
		cfg:     cfg,
		pending: make(map[string]pendingSave),
	}
	if cfg.SaveStrategy == SaveBatched {
		m.stopBatch = make(chan struct{})
		go m.backgroundSaveLoop(cfg.BatchInterval)
	}
	return m
}

// Close stops the batched-save background loop, if one is running.
func (m *Manager) Close() {
	if m.stopBatch != nil {
		close(m.stopBatch)
	}
}

// Stats returns the backing Store's current occupancy.
func (m *Manager) Stats(ctx context.Context) (Stats, error) {
	return m.store.Stats(ctx)
}

func (m *Manager) backgroundSaveLoop(delay time.Duration) {
	if delay <= 0 {
		delay = time.Second
	}
	ticker := time.NewTicker(delay)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.flushPending()
		case <-m.stopBatch:
			return
		}
	}
}

func (m *Manager) flushPending() {
	m.mu.Lock()
	batch := m.pending
	m.pending = make(map[string]pendingSave)
	m.mu.Unlock()

	for id, p := range batch {
		data := p.data
		if err := m.store.Set(context.Background(), id, &data, m.cfg.IdleTimeout); err != nil {
			log.Error().Err(err).Str("session_id", id).Msg("session: batched save failed")
		}
	}
}

// Create starts a brand-new session for request r and persists it
// immediately.
func (m *Manager) Create(ctx context.Context, r *http.Request) (*Session, error) {
	id := GenerateSecureID(m.cfg.SecureIDLength)
	fp := NewFingerprint(r)
	s := NewSession(id, fp, m.cfg.IdleTimeout, m.cfg.AbsoluteTimeout)

	data := s.ToData()
	if err := m.store.Set(ctx, id, &data, m.cfg.IdleTimeout); err != nil {
		return nil, fmt.Errorf("session: create: %w", err)
	}
	return s, nil
}

// Load fetches and validates a session by id, enforcing fingerprint,
// absolute timeout, and idle timeout. It returns (nil, nil) if the
// session does not exist or has expired/been rejected.
func (m *Manager) Load(ctx context.Context, id string, r *http.Request) (*Session, error) {
	fp := NewFingerprint(r)

	data, err := m.store.Get(ctx, id, &fp)
	if err != nil {
		return nil, fmt.Errorf("session: load: %w", err)
	}
	if data == nil {
		return nil, nil
	}

	now := time.Now().Unix()
	if now > data.AbsoluteTimeout {
		_ = m.store.Delete(ctx, id)
		log.Info().Str("session_id", id).Msg("session: expired (absolute timeout)")
		return nil, nil
	}
	if now-data.LastAccessed > int64(m.cfg.IdleTimeout.Seconds()) {
		_ = m.store.Delete(ctx, id)
		log.Info().Str("session_id", id).Msg("session: expired (idle timeout)")
		return nil, nil
	}

	s := FromData(id, *data)
	s.Touch()
	return s, nil
}

// Save persists a dirty session according to the configured
// SaveStrategy. A clean session is a no-op.
func (m *Manager) Save(ctx context.Context, s *Session) error {
	if !s.IsDirty() {
		return nil
	}
	data := s.ToData()

	switch m.cfg.SaveStrategy {
	case SaveImmediate:
		if err := m.store.Set(ctx, s.ID(), &data, m.cfg.IdleTimeout); err != nil {
			return fmt.Errorf("session: save: %w", err)
		}
		s.MarkClean()
	case SaveBatched:
		m.mu.Lock()
		m.pending[s.ID()] = pendingSave{data: data}
		m.mu.Unlock()
		s.MarkClean()
	case SaveEndOfRequest:
		// left dirty; ForceSave is expected at end of request.
	}
	return nil
}

// ForceSave unconditionally writes the session, regardless of its dirty
// flag or the configured strategy. Intended to be called by the outbound
// middleware phase under SaveEndOfRequest.
func (m *Manager) ForceSave(ctx context.Context, s *Session) error {
	data := s.ToData()
	if err := m.store.Set(ctx, s.ID(), &data, m.cfg.IdleTimeout); err != nil {
		return fmt.Errorf("session: force save: %w", err)
	}
	s.MarkClean()
	return nil
}

// Rotate issues a new session id carrying the same data, deleting the
// old id. Used after a privilege change (e.g. login) to defeat session
// fixation.
func (m *Manager) Rotate(ctx context.Context, s *Session, r *http.Request) (*Session, error) {
	oldID := s.ID()
	newID := GenerateSecureID(m.cfg.SecureIDLength)

	data := s.ToData()
	data.Fingerprint = NewFingerprint(r)

	if err := m.store.Set(ctx, newID, &data, m.cfg.IdleTimeout); err != nil {
		return nil, fmt.Errorf("session: rotate: %w", err)
	}
	if err := m.store.Delete(ctx, oldID); err != nil {
		return nil, fmt.Errorf("session: rotate: delete old: %w", err)
	}

	log.Info().Str("old_session_id", oldID).Str("new_session_id", newID).Msg("session: rotated")
	return FromData(newID, data), nil
}

// Destroy deletes a session, removing any pending batched save for it.
func (m *Manager) Destroy(ctx context.Context, id string) error {
	if err := m.store.Delete(ctx, id); err != nil {
		return fmt.Errorf("session: destroy: %w", err)
	}
	m.mu.Lock()
	delete(m.pending, id)
	m.mu.Unlock()
	return nil
}

// sameSiteString renders a SameSite value the way a Set-Cookie header
// expects it: Strict, Lax, or None.
func sameSiteString(s SameSite) string {
	switch s {
	case http.SameSiteStrictMode:
		return "Strict"
	case http.SameSiteNoneMode:
		return "None"
	default:
		return "Lax"
	}
}

// CreateCookie builds the Set-Cookie header value for sessionID,
// emitting attributes in a fixed order: Path, Domain (if set), Secure
// (if configured), HttpOnly (if configured), SameSite, Max-Age. The
// string is built by hand rather than via http.Cookie.String, which
// serializes attributes in its own fixed order and would not match.
func (m *Manager) CreateCookie(sessionID string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s=%s", m.cfg.CookieName, sessionID)
	fmt.Fprintf(&b, "; Path=%s", m.cfg.Path)
	if m.cfg.Domain != "" {
		fmt.Fprintf(&b, "; Domain=%s", m.cfg.Domain)
	}
	if m.cfg.Secure {
		b.WriteString("; Secure")
	}
	if m.cfg.HTTPOnly {
		b.WriteString("; HttpOnly")
	}
	fmt.Fprintf(&b, "; SameSite=%s", sameSiteString(m.cfg.SameSite))
	fmt.Fprintf(&b, "; Max-Age=%d", int(m.cfg.IdleTimeout.Seconds()))
	return b.String()
}

// CreateDestroyCookie builds a Set-Cookie header value that expires the
// session cookie immediately, in the same attribute order as CreateCookie.
func (m *Manager) CreateDestroyCookie() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s=", m.cfg.CookieName)
	fmt.Fprintf(&b, "; Path=%s", m.cfg.Path)
	if m.cfg.Domain != "" {
		fmt.Fprintf(&b, "; Domain=%s", m.cfg.Domain)
	}
	b.WriteString("; Max-Age=0")
	b.WriteString("; Expires=Thu, 01 Jan 1970 00:00:00 GMT")
	return b.String()
}
