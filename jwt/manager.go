package jwt

import (
	"crypto/ed25519"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// SigningMethod selects the session token signature algorithm.
type SigningMethod string

const (
	MethodEd25519 SigningMethod = "ed25519"
	// MethodHS256 is the default; its key is derived from the cookie password.
	MethodHS256 SigningMethod = "hs256"
)

// minHMACKey is the shortest accepted HS256 secret.
const minHMACKey = 32

var (
	errMissingKid = errors.New("missing kid")
	errUnknownKid = errors.New("unknown kid")
)

// Config describes how session tokens are signed and verified.
//
// VerifyKeys holds every key a token may be signed with, by kid. With
// password rotation it carries the current key and the retired ones, and
// KeyID names the current one.
type Config struct {
	SigningMethod SigningMethod
	PrivateKey    []byte
	PublicKey     []byte
	Issuer        string
	Audience      string
	Leeway        time.Duration
	MaxFutureIAT  time.Duration
	KeyID         string
	VerifyKeys    map[string][]byte
}

// Manager issues and parses the signed token that names a server-side
// session in the session cookie.
type Manager struct {
	config Config
	method jwt.SigningMethod
	keys   keyring
}

// keyring holds parsed key material so Parse never decodes PEM.
type keyring struct {
	sign    any
	verify  any
	byKid   map[string]any
	current string
}

// resolve returns the verification key for a token header.
func (k *keyring) resolve(header map[string]any) (any, error) {
	kid, _ := header["kid"].(string)
	switch {
	case len(k.byKid) > 0:
		if kid == "" {
			return nil, errMissingKid
		}
		key, ok := k.byKid[kid]
		if !ok {
			return nil, errUnknownKid
		}
		return key, nil
	case k.current != "":
		if kid == "" {
			return nil, errMissingKid
		}
		if kid != k.current {
			return nil, errUnknownKid
		}
	}
	if k.verify == nil {
		return nil, errors.New("no verification key configured")
	}
	return k.verify, nil
}

// NewManager describes the newmanager operation and its observable behavior.
//
// NewManager validates key material for the configured method and returns an
// error for unusable configurations. The returned Manager is safe for
// concurrent use.
func NewManager(cfg Config) (*Manager, error) {
	if cfg.SigningMethod == "" {
		cfg.SigningMethod = MethodHS256
	}
	if cfg.Leeway < 0 || cfg.Leeway > 2*time.Minute {
		return nil, errors.New("invalid leeway configuration")
	}
	if cfg.MaxFutureIAT == 0 {
		cfg.MaxFutureIAT = 10 * time.Minute
	}
	if cfg.MaxFutureIAT < 0 || cfg.MaxFutureIAT > 24*time.Hour {
		return nil, errors.New("invalid MaxFutureIAT configuration")
	}
	cfg.KeyID = strings.TrimSpace(cfg.KeyID)

	m := &Manager{config: cfg}
	var (
		decode func(kid string, key []byte) (any, error)
		err    error
	)
	switch cfg.SigningMethod {
	case MethodHS256:
		if len(cfg.PrivateKey) < minHMACKey {
			return nil, errors.New("hs256 requires a key of at least 32 bytes")
		}
		m.method = jwt.SigningMethodHS256
		m.keys.sign = cfg.PrivateKey
		m.keys.verify = cfg.PrivateKey
		decode = func(kid string, key []byte) (any, error) {
			if len(key) < minHMACKey {
				return nil, fmt.Errorf("hs256 verify key for kid %q is shorter than 32 bytes", kid)
			}
			return key, nil
		}
	case MethodEd25519:
		m.method = jwt.SigningMethodEdDSA
		if len(cfg.VerifyKeys) == 0 && len(cfg.PublicKey) == 0 {
			return nil, errors.New("ed25519 requires public key or verify key set")
		}
		if len(cfg.PrivateKey) > 0 {
			if m.keys.sign, err = parseEdPrivateKey(cfg.PrivateKey); err != nil {
				return nil, err
			}
		}
		if len(cfg.PublicKey) > 0 {
			if m.keys.verify, err = parseEdPublicKey(cfg.PublicKey); err != nil {
				return nil, err
			}
		}
		decode = func(kid string, key []byte) (any, error) {
			pub, err := parseEdPublicKey(key)
			if err != nil {
				return nil, fmt.Errorf("invalid ed25519 verify key for kid %q: %w", kid, err)
			}
			return pub, nil
		}
	default:
		return nil, errors.New("unsupported signing method")
	}

	if len(cfg.VerifyKeys) > 0 {
		m.keys.byKid = make(map[string]any, len(cfg.VerifyKeys))
		for kid, raw := range cfg.VerifyKeys {
			if strings.TrimSpace(kid) == "" {
				return nil, errors.New("verify key map contains empty kid")
			}
			key, err := decode(kid, raw)
			if err != nil {
				return nil, err
			}
			m.keys.byKid[kid] = key
		}
		if cfg.KeyID != "" {
			if _, ok := m.keys.byKid[cfg.KeyID]; !ok {
				return nil, errors.New("KeyID is not present in VerifyKeys")
			}
		}
	}
	m.keys.current = cfg.KeyID

	return m, nil
}

// Issue signs a token naming sessionID that expires at expiresAt.
func (j *Manager) Issue(sessionID string, expiresAt time.Time) (string, error) {
	if sessionID == "" {
		return "", errors.New("session id required")
	}
	if j.keys.sign == nil {
		return "", errors.New("no signing key configured")
	}
	now := time.Now()
	if !expiresAt.After(now) {
		return "", errors.New("token expiry must be in the future")
	}

	claims := SessionClaims{
		SID: sessionID,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    j.config.Issuer,
		},
	}
	if j.config.Audience != "" {
		claims.Audience = jwt.ClaimStrings{j.config.Audience}
	}

	token := jwt.NewWithClaims(j.method, claims)
	if j.keys.current != "" {
		token.Header["kid"] = j.keys.current
	}
	return token.SignedString(j.keys.sign)
}

// SessionClaims is the payload of a session token.
type SessionClaims struct {
	SID string `json:"sid"`
	jwt.RegisteredClaims
}

// Parse verifies tokenStr and returns the session id it names.
func (j *Manager) Parse(tokenStr string) (string, error) {
	claims, err := j.ParseClaims(tokenStr)
	if err != nil {
		return "", err
	}
	return claims.SID, nil
}

// ParseClaims verifies signature, algorithm, expiry, issuer and audience.
func (j *Manager) ParseClaims(tokenStr string) (*SessionClaims, error) {
	options := []jwt.ParserOption{
		jwt.WithValidMethods([]string{j.method.Alg()}),
		jwt.WithExpirationRequired(),
	}
	if j.config.Leeway > 0 {
		options = append(options, jwt.WithLeeway(j.config.Leeway))
	}
	if j.config.Issuer != "" {
		options = append(options, jwt.WithIssuer(j.config.Issuer))
	}
	if j.config.Audience != "" {
		options = append(options, jwt.WithAudience(j.config.Audience))
	}

	claims := &SessionClaims{}
	token, err := jwt.NewParser(options...).ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (any, error) {
		if t.Method.Alg() != j.method.Alg() {
			return nil, fmt.Errorf("unexpected signing algorithm: %s", t.Method.Alg())
		}
		return j.keys.resolve(t.Header)
	})
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, jwt.ErrTokenInvalidClaims
	}
	if claims.SID == "" {
		return nil, errors.New("token missing session id")
	}
	if claims.IssuedAt != nil && claims.IssuedAt.Time.After(time.Now().Add(j.config.MaxFutureIAT)) {
		return nil, errors.New("token iat too far in the future")
	}

	return claims, nil
}

// parseEdPrivateKey accepts a raw 64-byte key or PEM.
func parseEdPrivateKey(key []byte) (ed25519.PrivateKey, error) {
	if len(key) == ed25519.PrivateKeySize {
		return ed25519.PrivateKey(key), nil
	}
	parsed, err := jwt.ParseEdPrivateKeyFromPEM(key)
	if err != nil {
		return nil, errors.New("invalid ed25519 private key")
	}
	edKey, ok := parsed.(ed25519.PrivateKey)
	if !ok {
		return nil, errors.New("invalid ed25519 private key type")
	}
	return edKey, nil
}

// parseEdPublicKey accepts a raw 32-byte key or PEM.
func parseEdPublicKey(key []byte) (ed25519.PublicKey, error) {
	if len(key) == ed25519.PublicKeySize {
		return ed25519.PublicKey(key), nil
	}
	parsed, err := jwt.ParseEdPublicKeyFromPEM(key)
	if err != nil {
		return nil, errors.New("invalid ed25519 public key")
	}
	edKey, ok := parsed.(ed25519.PublicKey)
	if !ok {
		return nil, errors.New("invalid ed25519 public key type")
	}
	return edKey, nil
}
