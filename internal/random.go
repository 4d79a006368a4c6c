package internal

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"math/big"
)

// MinNonceSize is the smallest accepted challenge size in bytes.
const MinNonceSize = 30

var sidEncoding = base64.RawURLEncoding

// SessionID is 128 random bits, rendered base64url without padding.
type SessionID [16]byte

func NewSessionID() (SessionID, error) {
	var sid SessionID
	if _, err := rand.Read(sid[:]); err != nil {
		return SessionID{}, fmt.Errorf("session id: %w", err)
	}
	return sid, nil
}

func (s SessionID) String() string {
	return sidEncoding.EncodeToString(s[:])
}

// ParseSessionID accepts only the exact encoding produced by String.
func ParseSessionID(text string) (SessionID, error) {
	var sid SessionID
	if sidEncoding.EncodedLen(len(sid)) != len(text) {
		return sid, errors.New("session id has wrong length")
	}
	n, err := sidEncoding.Decode(sid[:], []byte(text))
	if err != nil || n != len(sid) {
		return SessionID{}, errors.New("session id is not base64url")
	}
	if sid.String() != text {
		return SessionID{}, errors.New("session id is not canonical")
	}
	return sid, nil
}

// NewNonce draws size random bytes and renders them as an unsigned decimal
// integer, the form a proof watermark carries.
func NewNonce(size int) (string, error) {
	if size < MinNonceSize {
		return "", fmt.Errorf("nonce size %d below minimum %d", size, MinNonceSize)
	}
	buf := make([]byte, size)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("nonce: %w", err)
	}
	return new(big.Int).SetBytes(buf).String(), nil
}
