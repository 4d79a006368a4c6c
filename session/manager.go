package session

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/MrEthical07/zuauth/internal"
)

// Mode selects where session state lives.
type Mode string

const (
	// ModeRedis keeps the session in Redis; the cookie carries a signed token
	// naming it.
	ModeRedis Mode = "redis"
	// ModeSealed encrypts the whole session into the cookie.
	ModeSealed Mode = "sealed"
)

// maxCookieValue keeps a sealed cookie inside the common 4 KiB browser limit.
const maxCookieValue = 4000

var ErrCookieTooLarge = errors.New("sealed session exceeds cookie size limit")

// TokenCodec signs and verifies the session reference carried by the cookie
// in [ModeRedis].
type TokenCodec interface {
	Issue(sessionID string, expiresAt time.Time) (string, error)
	Parse(token string) (string, error)
}

// Config controls cookie and backend behavior.
type Config struct {
	Mode       Mode
	CookieName string
	Password   string
	// PreviousPasswords still open sealed cookies; nothing is sealed with them.
	PreviousPasswords []string
	TTL               time.Duration
	Secure            bool
}

// Manager loads, saves and destroys the per-request session.
type Manager struct {
	cfg    Config
	store  *Store
	tokens TokenCodec
	sealer *Sealer
}

// NewManager validates cfg and wires the backend for its mode. store and
// tokens are required in [ModeRedis] and ignored in [ModeSealed].
func NewManager(cfg Config, store *Store, tokens TokenCodec) (*Manager, error) {
	if strings.TrimSpace(cfg.CookieName) == "" {
		return nil, errors.New("session cookie name is required")
	}
	if cfg.TTL <= 0 {
		return nil, errors.New("session ttl must be positive")
	}
	ring, err := DeriveKeyring(cfg.Password, cfg.PreviousPasswords)
	if err != nil {
		return nil, err
	}

	m := &Manager{cfg: cfg}
	switch cfg.Mode {
	case ModeRedis, "":
		m.cfg.Mode = ModeRedis
		if store == nil {
			return nil, errors.New("redis session mode requires a store")
		}
		if tokens == nil {
			return nil, errors.New("redis session mode requires a token codec")
		}
		m.store = store
		m.tokens = tokens
	case ModeSealed:
		retired := make([][32]byte, 0, len(ring)-1)
		for _, k := range ring[1:] {
			retired = append(retired, k.Sealing)
		}
		sealer, err := NewSealer(ring[0].Sealing, retired...)
		if err != nil {
			return nil, err
		}
		m.sealer = sealer
	default:
		return nil, errors.New("unsupported session mode")
	}

	return m, nil
}

func (m *Manager) Mode() Mode {
	return m.cfg.Mode
}

// New returns an empty session with a fresh identifier.
func (m *Manager) New() (*Session, error) {
	sid, err := internal.NewSessionID()
	if err != nil {
		return nil, err
	}
	return &Session{
		SessionID: sid.String(),
		CreatedAt: time.Now().Unix(),
	}, nil
}

// Load returns the session referenced by the request cookie. A missing,
// tampered or expired cookie yields a fresh empty session; only backend
// failures are returned as errors.
func (m *Manager) Load(r *http.Request) (*Session, error) {
	cookie, err := r.Cookie(m.cfg.CookieName)
	if err != nil || cookie.Value == "" {
		return m.New()
	}

	if m.cfg.Mode == ModeSealed {
		sess, err := m.sealer.Open(cookie.Value)
		if err != nil {
			return m.New()
		}
		return sess, nil
	}

	sid, err := m.tokens.Parse(cookie.Value)
	if err != nil {
		return m.New()
	}
	if _, err := internal.ParseSessionID(sid); err != nil {
		return m.New()
	}
	sess, err := m.store.Get(r.Context(), sid)
	if err != nil {
		if errors.Is(err, ErrRedisUnavailable) {
			return nil, err
		}
		return m.New()
	}
	return sess, nil
}

// Save persists sess and writes its cookie. It returns only after the
// backend acknowledged the write.
func (m *Manager) Save(ctx context.Context, w http.ResponseWriter, sess *Session) error {
	if sess == nil || sess.SessionID == "" {
		return errors.New("session id required")
	}

	now := time.Now()
	if sess.CreatedAt == 0 {
		sess.CreatedAt = now.Unix()
	}
	expiresAt := now.Add(m.cfg.TTL)
	sess.ExpiresAt = expiresAt.Unix()

	var value string
	switch m.cfg.Mode {
	case ModeSealed:
		sealed, err := m.sealer.Seal(sess)
		if err != nil {
			return err
		}
		if len(sealed) > maxCookieValue {
			return ErrCookieTooLarge
		}
		value = sealed
	default:
		if err := m.store.Save(ctx, sess, m.cfg.TTL); err != nil {
			return err
		}
		token, err := m.tokens.Issue(sess.SessionID, expiresAt)
		if err != nil {
			return err
		}
		value = token
	}

	http.SetCookie(w, m.cookie(value, int(m.cfg.TTL/time.Second), expiresAt))
	return nil
}

// Forget deletes the backend record for sessionID without touching any
// cookie. Sealed sessions have no record, so it is a no-op there.
func (m *Manager) Forget(ctx context.Context, sessionID string) error {
	if m.cfg.Mode != ModeRedis || sessionID == "" {
		return nil
	}
	return m.store.Delete(ctx, sessionID)
}

// Destroy removes the backend record, clears sess in place and expires the
// cookie.
func (m *Manager) Destroy(ctx context.Context, w http.ResponseWriter, sess *Session) error {
	if sess != nil {
		if m.cfg.Mode == ModeRedis && sess.SessionID != "" {
			if err := m.store.Delete(ctx, sess.SessionID); err != nil {
				return err
			}
		}
		sess.Nonce = ""
		sess.User = ""
	}

	http.SetCookie(w, m.cookie("", -1, time.Unix(0, 0)))
	return nil
}

// Ping reports backend health. Sealed sessions have no backend.
func (m *Manager) Ping(ctx context.Context) error {
	if m.cfg.Mode == ModeSealed {
		return nil
	}
	return m.store.Ping(ctx)
}

func (m *Manager) cookie(value string, maxAge int, expires time.Time) *http.Cookie {
	return &http.Cookie{
		Name:     m.cfg.CookieName,
		Value:    value,
		Path:     "/",
		Expires:  expires,
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   m.cfg.Secure,
		SameSite: http.SameSiteLaxMode,
	}
}
