package session

import (
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"time"

	"golang.org/x/crypto/chacha20poly1305"
)

// ErrSealInvalid covers every way a sealed cookie can fail to open.
var ErrSealInvalid = errors.New("sealed session invalid")

const sealAAD = "zuauth-session-v1"

// Sealer encrypts whole sessions into cookie values with XChaCha20-Poly1305.
// It seals with the current key and opens with the current or any retired
// key.
type Sealer struct {
	aead    cipher.AEAD
	retired []cipher.AEAD
}

func NewSealer(key [32]byte, retired ...[32]byte) (*Sealer, error) {
	aead, err := chacha20poly1305.NewX(key[:])
	if err != nil {
		return nil, err
	}
	s := &Sealer{aead: aead}
	for _, k := range retired {
		old, err := chacha20poly1305.NewX(k[:])
		if err != nil {
			return nil, err
		}
		s.retired = append(s.retired, old)
	}
	return s, nil
}

// Seal returns base64url(nonce || ciphertext).
func (s *Sealer) Seal(sess *Session) (string, error) {
	plain, err := Encode(sess)
	if err != nil {
		return "", err
	}

	nonce := make([]byte, s.aead.NonceSize(), s.aead.NonceSize()+len(plain)+s.aead.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return "", err
	}
	sealed := s.aead.Seal(nonce, nonce, plain, []byte(sealAAD))

	return base64.RawURLEncoding.EncodeToString(sealed), nil
}

// Open reverses Seal and rejects expired sessions.
func (s *Sealer) Open(value string) (*Session, error) {
	raw, err := base64.RawURLEncoding.DecodeString(value)
	if err != nil {
		return nil, ErrSealInvalid
	}
	if len(raw) < s.aead.NonceSize()+s.aead.Overhead() {
		return nil, ErrSealInvalid
	}

	nonce, ciphertext := raw[:s.aead.NonceSize()], raw[s.aead.NonceSize():]
	plain, err := s.aead.Open(nil, nonce, ciphertext, []byte(sealAAD))
	for i := 0; err != nil && i < len(s.retired); i++ {
		plain, err = s.retired[i].Open(nil, nonce, ciphertext, []byte(sealAAD))
	}
	if err != nil {
		return nil, ErrSealInvalid
	}

	sess, err := Decode(plain)
	if err != nil {
		return nil, ErrSealInvalid
	}
	if sess.ExpiresAt > 0 && sess.ExpiresAt <= time.Now().Unix() {
		return nil, ErrSessionNotFound
	}
	return sess, nil
}
