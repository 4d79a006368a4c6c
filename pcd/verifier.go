package pcd

import (
	"context"
	"errors"
	"fmt"
	"sort"
)

var (
	// ErrMalformed means the payload could not be decoded as a known PCD.
	ErrMalformed = errors.New("pcd malformed")
	// ErrVerificationFailed means the proof did not verify.
	ErrVerificationFailed = errors.New("pcd verification failed")
	// ErrUntrustedSigner means the proof verified but names an unexpected issuer.
	ErrUntrustedSigner = errors.New("pcd signer not trusted")
)

// Verifier turns a serialized proof into a verified [Claim].
type Verifier struct {
	defaultType string
	packages    map[string]Package
	trusted     *SignerKey
}

// NewVerifier registers packages by name. The first package handles
// payloads that do not name a type.
func NewVerifier(def Package, more ...Package) (*Verifier, error) {
	if def == nil {
		return nil, errors.New("pcd verifier requires a package")
	}
	v := &Verifier{
		defaultType: def.Name(),
		packages:    make(map[string]Package, 1+len(more)),
	}
	for _, p := range append([]Package{def}, more...) {
		if p == nil {
			return nil, errors.New("nil pcd package")
		}
		if _, dup := v.packages[p.Name()]; dup {
			return nil, fmt.Errorf("duplicate pcd package %q", p.Name())
		}
		v.packages[p.Name()] = p
	}
	return v, nil
}

// RequireSigner makes Verify reject claims whose signer differs from signer.
func (v *Verifier) RequireSigner(signer [2]string) error {
	key, err := ParseSigner(signer)
	if err != nil {
		return fmt.Errorf("trusted signer: %w", err)
	}
	v.trusted = &key
	return nil
}

// TrustedSigner returns the configured issuer key, if any.
func (v *Verifier) TrustedSigner() (SignerKey, bool) {
	if v.trusted == nil {
		return SignerKey{}, false
	}
	return *v.trusted, true
}

// DefaultType is the PCD type used when a payload names none.
func (v *Verifier) DefaultType() string {
	return v.defaultType
}

// Types lists the registered package names, sorted.
func (v *Verifier) Types() []string {
	types := make([]string, 0, len(v.packages))
	for name := range v.packages {
		types = append(types, name)
	}
	sort.Strings(types)
	return types
}

// Verify deserializes and checks a proof. Errors wrap [ErrMalformed],
// [ErrVerificationFailed] or [ErrUntrustedSigner]; only the last one comes
// with a non-nil claim.
func (v *Verifier) Verify(ctx context.Context, pcdType, serialized string) (*Claim, error) {
	if pcdType == "" {
		pcdType = v.defaultType
	}
	pkg, ok := v.packages[pcdType]
	if !ok {
		return nil, fmt.Errorf("%w: unknown type %q", ErrMalformed, pcdType)
	}

	p, err := pkg.Deserialize(serialized)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	valid, err := pkg.Verify(ctx, p)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, fmt.Errorf("%w: %v", ErrVerificationFailed, err)
	}
	if !valid {
		return nil, ErrVerificationFailed
	}

	claim := p.Claim()
	if v.trusted != nil {
		signer, err := ParseSigner(claim.Signer)
		if err != nil || !signer.Equal(*v.trusted) {
			return &claim, ErrUntrustedSigner
		}
	}
	return &claim, nil
}
