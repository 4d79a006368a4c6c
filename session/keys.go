package session

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"

	"golang.org/x/crypto/hkdf"
)

// MinPasswordLength is the shortest accepted cookie password.
const MinPasswordLength = 32

var (
	ErrWeakPassword      = errors.New("session password must be at least 32 characters")
	ErrDuplicatePassword = errors.New("session password repeated in rotation list")
)

const (
	keySalt        = "zuauth/session"
	signingKeyInfo = "cookie-token-hs256"
	sealingKeyInfo = "cookie-seal-xchacha20poly1305"
	keyIDInfo      = "cookie-key-id"
)

// Keys are the per-purpose secrets derived from the configured password.
type Keys struct {
	// ID names the password generation in token headers. It reveals nothing
	// about the password.
	ID      string
	Signing []byte
	Sealing [32]byte
}

// DeriveKeys expands password into independent signing and sealing keys with
// HKDF-SHA256. The same password always yields the same keys.
func DeriveKeys(password string) (Keys, error) {
	var keys Keys
	if len(password) < MinPasswordLength {
		return keys, ErrWeakPassword
	}

	keys.Signing = make([]byte, 32)
	if _, err := io.ReadFull(hkdf.New(sha256.New, []byte(password), []byte(keySalt), []byte(signingKeyInfo)), keys.Signing); err != nil {
		return Keys{}, err
	}
	if _, err := io.ReadFull(hkdf.New(sha256.New, []byte(password), []byte(keySalt), []byte(sealingKeyInfo)), keys.Sealing[:]); err != nil {
		return Keys{}, err
	}
	id := make([]byte, 6)
	if _, err := io.ReadFull(hkdf.New(sha256.New, []byte(password), []byte(keySalt), []byte(keyIDInfo)), id); err != nil {
		return Keys{}, err
	}
	keys.ID = hex.EncodeToString(id)

	return keys, nil
}

// DeriveKeyring derives keys for the current password followed by every
// retired one. Retired passwords only ever verify or open.
func DeriveKeyring(current string, previous []string) ([]Keys, error) {
	ring := make([]Keys, 0, 1+len(previous))
	seen := make(map[string]struct{}, 1+len(previous))
	for _, pw := range append([]string{current}, previous...) {
		keys, err := DeriveKeys(pw)
		if err != nil {
			return nil, err
		}
		if _, dup := seen[keys.ID]; dup {
			return nil, ErrDuplicatePassword
		}
		seen[keys.ID] = struct{}{}
		ring = append(ring, keys)
	}
	return ring, nil
}
