package zuauth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/MrEthical07/zuauth/internal"
	"github.com/MrEthical07/zuauth/session"
)

// Config is the complete engine configuration. Start from [DefaultConfig]
// or one of the presets and override fields before passing it to
// [Builder.WithConfig].
type Config struct {
	Session  SessionConfig
	Auth     AuthConfig
	Replay   ReplayConfig
	Security SecurityConfig
	Audit    AuditConfig
	Metrics  MetricsConfig
}

/*
====================================
SESSION CONFIG
====================================
*/

// SessionConfig controls the session cookie and its backend.
type SessionConfig struct {
	// Mode is "redis" (default) or "sealed".
	Mode       session.Mode
	CookieName string
	// Password seeds every session key. At least 32 characters.
	Password string
	// PreviousPasswords are retired passwords. Cookies made under them are
	// still accepted and re-issued under Password on the next save.
	PreviousPasswords []string
	TTL               time.Duration
	RedisPrefix       string
	// Issuer and Audience are stamped on session tokens in redis mode.
	Issuer   string
	Audience string
}

/*
====================================
AUTH CONFIG
====================================
*/

// DisclosurePolicy selects what becomes the session user and what an
// authenticate response reveals.
type DisclosurePolicy uint8

const (
	// DisclosureAnonymous keys the session by nullifier hash and answers with
	// ticket id and attendee semaphore id.
	DisclosureAnonymous DisclosurePolicy = iota
	// DisclosureRevealedEmail keys the session by attendee email and answers
	// with that email.
	DisclosureRevealedEmail
)

func (p DisclosurePolicy) String() string {
	switch p {
	case DisclosureAnonymous:
		return "anonymous"
	case DisclosureRevealedEmail:
		return "revealed-email"
	default:
		return fmt.Sprintf("DisclosurePolicy(%d)", uint8(p))
	}
}

// ParseDisclosurePolicy accepts the names returned by String.
func ParseDisclosurePolicy(s string) (DisclosurePolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "anonymous":
		return DisclosureAnonymous, nil
	case "revealed-email", "email":
		return DisclosureRevealedEmail, nil
	default:
		return 0, fmt.Errorf("unknown disclosure policy %q", s)
	}
}

// AuthConfig controls proof acceptance.
type AuthConfig struct {
	Disclosure DisclosurePolicy
	// SupportedEvents is the event id allowlist. Empty accepts any event.
	SupportedEvents []string
	// RequireTrustedSigner rejects proofs not signed by TrustedSigner.
	RequireTrustedSigner bool
	TrustedSigner        [2]string
	NonceSize            int
}

/*
====================================
REPLAY CONFIG
====================================
*/

// ReplayConfig controls the nullifier store.
type ReplayConfig struct {
	RedisPrefix string
	// Retention bounds how long nullifiers are kept. Zero keeps them forever.
	Retention time.Duration
	// InMemory uses a process-local store instead of Redis.
	InMemory bool
}

/*
====================================
SECURITY CONFIG
====================================
*/

// SecurityConfig holds deployment hardening switches.
type SecurityConfig struct {
	// ProductionMode marks cookies Secure.
	ProductionMode bool

	EnableNonceThrottle bool
	MaxNonceRequests    int
	NonceWindow         time.Duration
	EnableAuthThrottle  bool
	MaxAuthAttempts     int
	AuthWindow          time.Duration
}

type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

/*
====================================
DEFAULT CONFIG
====================================
*/

func defaultConfig() Config {
	return Config{
		Session: SessionConfig{
			Mode:        session.ModeRedis,
			CookieName:  "zuauth_session",
			TTL:         14 * 24 * time.Hour,
			RedisPrefix: "azs",
			Issuer:      "zuauth",
		},
		Auth: AuthConfig{
			Disclosure: DisclosureAnonymous,
			NonceSize:  internal.MinNonceSize,
		},
		Replay: ReplayConfig{
			RedisPrefix: "azn",
		},
		Security: SecurityConfig{
			ProductionMode:      false,
			EnableNonceThrottle: true,
			MaxNonceRequests:    30,
			NonceWindow:         time.Minute,
			EnableAuthThrottle:  true,
			MaxAuthAttempts:     10,
			AuthWindow:          10 * time.Minute,
		},
		Audit: AuditConfig{
			Enabled:    false,
			BufferSize: 1024,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled:                 false,
			EnableLatencyHistograms: false,
		},
	}
}

// DefaultConfig returns the anonymous-disclosure configuration without a
// session password; callers must set Session.Password.
func DefaultConfig() Config {
	return defaultConfig()
}

// AnonymousConfig keys sessions by nullifier hash and reveals only ticket id
// and semaphore id.
func AnonymousConfig() Config {
	cfg := defaultConfig()
	cfg.Auth.Disclosure = DisclosureAnonymous
	return cfg
}

// RevealedEmailConfig keys sessions by the revealed attendee email.
func RevealedEmailConfig() Config {
	cfg := defaultConfig()
	cfg.Auth.Disclosure = DisclosureRevealedEmail
	return cfg
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.Auth.SupportedEvents = cloneStrings(cfg.Auth.SupportedEvents)
	out.Session.PreviousPasswords = cloneStrings(cfg.Session.PreviousPasswords)
	return out
}

func cloneStrings(in []string) []string {
	if len(in) == 0 {
		return nil
	}
	out := make([]string, len(in))
	copy(out, in)
	return out
}

/*
====================================
VALIDATION
====================================
*/

// Validate describes the validate operation and its observable behavior.
//
// Validate returns the first configuration error it finds. It does not
// mutate c.
func (c *Config) Validate() error {
	// Session
	switch c.Session.Mode {
	case session.ModeRedis, session.ModeSealed:
	default:
		return errors.New("Session Mode must be redis or sealed")
	}
	if strings.TrimSpace(c.Session.CookieName) == "" {
		return errors.New("Session CookieName must be set")
	}
	if len(c.Session.Password) < session.MinPasswordLength {
		return errors.New("Session Password must be at least 32 characters")
	}
	for _, pw := range c.Session.PreviousPasswords {
		if len(pw) < session.MinPasswordLength {
			return errors.New("Session PreviousPasswords must each be at least 32 characters")
		}
		if pw == c.Session.Password {
			return errors.New("Session PreviousPasswords must not repeat Password")
		}
	}
	if c.Session.TTL <= 0 {
		return errors.New("Session TTL must be > 0")
	}
	if c.Session.Mode == session.ModeRedis && c.Session.RedisPrefix == "" {
		return errors.New("Session RedisPrefix must be set in redis mode")
	}

	// Auth
	switch c.Auth.Disclosure {
	case DisclosureAnonymous, DisclosureRevealedEmail:
	default:
		return errors.New("Auth Disclosure is invalid")
	}
	if c.Auth.NonceSize < internal.MinNonceSize {
		return fmt.Errorf("Auth NonceSize must be >= %d", internal.MinNonceSize)
	}
	for _, id := range c.Auth.SupportedEvents {
		if strings.TrimSpace(id) == "" {
			return errors.New("Auth SupportedEvents must not contain empty ids")
		}
	}
	if c.Auth.RequireTrustedSigner {
		if c.Auth.TrustedSigner[0] == "" || c.Auth.TrustedSigner[1] == "" {
			return errors.New("Auth RequireTrustedSigner requires TrustedSigner")
		}
	}

	// Replay
	if c.Replay.Retention < 0 {
		return errors.New("Replay Retention must be >= 0")
	}
	if !c.Replay.InMemory && c.Replay.RedisPrefix == "" {
		return errors.New("Replay RedisPrefix must be set")
	}
	if !c.Replay.InMemory && c.Replay.RedisPrefix == c.Session.RedisPrefix {
		return errors.New("Replay RedisPrefix must differ from Session RedisPrefix")
	}

	// Security
	if c.Security.EnableNonceThrottle {
		if c.Security.MaxNonceRequests <= 0 {
			return errors.New("Security MaxNonceRequests must be > 0")
		}
		if c.Security.NonceWindow <= 0 {
			return errors.New("Security NonceWindow must be > 0")
		}
	}
	if c.Security.EnableAuthThrottle {
		if c.Security.MaxAuthAttempts <= 0 {
			return errors.New("Security MaxAuthAttempts must be > 0")
		}
		if c.Security.AuthWindow <= 0 {
			return errors.New("Security AuthWindow must be > 0")
		}
	}

	// Audit
	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("Audit BufferSize must be > 0 when enabled")
	}

	// Metrics
	if c.Metrics.EnableLatencyHistograms && !c.Metrics.Enabled {
		return errors.New("Metrics EnableLatencyHistograms requires Metrics Enabled")
	}

	return nil
}
