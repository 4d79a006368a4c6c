package pcd

import (
	"errors"
	"math/big"
	"strings"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
)

var ErrNotFieldElement = errors.New("value is not a BN254 scalar field element")

// ParseHexField parses a hex field element with or without a 0x prefix,
// case-insensitively and tolerating leading zeros.
func ParseHexField(s string) (fr.Element, error) {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	return parseField(s, 16)
}

// ParseDecimalField parses the canonical decimal form of a field element:
// ASCII digits only, no sign, whitespace or leading zeros. Claim values are
// compared and stored as text, so every element has exactly one spelling.
func ParseDecimalField(s string) (fr.Element, error) {
	if !IsCanonicalDecimal(s) {
		return fr.Element{}, ErrNotFieldElement
	}
	return parseField(s, 10)
}

// IsCanonicalDecimal reports whether s is the shortest base-10 rendering of
// a non-negative integer.
func IsCanonicalDecimal(s string) bool {
	if s == "" || (len(s) > 1 && s[0] == '0') {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

func parseField(s string, base int) (fr.Element, error) {
	var e fr.Element
	if s == "" || strings.HasPrefix(s, "-") || strings.HasPrefix(s, "+") {
		return e, ErrNotFieldElement
	}
	v, ok := new(big.Int).SetString(s, base)
	if !ok {
		return e, ErrNotFieldElement
	}
	if v.Cmp(fr.Modulus()) >= 0 {
		return e, ErrNotFieldElement
	}
	e.SetBigInt(v)
	return e, nil
}

// SignerKey is an issuer public key in canonical field form.
type SignerKey [2]fr.Element

// ParseSigner canonicalizes the hex coordinates of an issuer public key.
func ParseSigner(signer [2]string) (SignerKey, error) {
	var key SignerKey
	for i := range signer {
		e, err := ParseHexField(signer[i])
		if err != nil {
			return SignerKey{}, err
		}
		key[i] = e
	}
	return key, nil
}

func (k SignerKey) Equal(other SignerKey) bool {
	return k[0].Equal(&other[0]) && k[1].Equal(&other[1])
}

// Hex returns the key as lowercase, unpadded hex coordinates.
func (k SignerKey) Hex() [2]string {
	var out [2]string
	for i := range k {
		out[i] = k[i].BigInt(new(big.Int)).Text(16)
	}
	return out
}
