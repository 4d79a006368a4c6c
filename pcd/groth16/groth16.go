// Package groth16 verifies Groth16 proofs over BN254 in the JSON formats
// written by snarkjs.
package groth16

import (
	"encoding/json"
	"math/big"

	"github.com/consensys/gnark-crypto/ecc/bn254"
	"github.com/consensys/gnark-crypto/ecc/bn254/fp"
	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	"github.com/pkg/errors"
)

var (
	ErrInvalidPoint     = errors.New("groth16: invalid curve point")
	ErrInputOutOfRange  = errors.New("groth16: public input not in scalar field")
	ErrInputCount       = errors.New("groth16: wrong number of public inputs")
	ErrProofRejected    = errors.New("groth16: pairing check failed")
	ErrUnsupportedCurve = errors.New("groth16: unsupported curve")
)

// VerifyingKey is a parsed Groth16 verifying key.
type VerifyingKey struct {
	Alpha bn254.G1Affine
	Beta  bn254.G2Affine
	Gamma bn254.G2Affine
	Delta bn254.G2Affine
	IC    []bn254.G1Affine
}

// NumPublic is the number of public inputs the key expects.
func (vk *VerifyingKey) NumPublic() int {
	return len(vk.IC) - 1
}

type Proof struct {
	A bn254.G1Affine
	B bn254.G2Affine
	C bn254.G1Affine
}

// SnarkVerifyingKey is the verification_key.json layout.
type SnarkVerifyingKey struct {
	Protocol string     `json:"protocol"`
	Curve    string     `json:"curve"`
	NPublic  int        `json:"nPublic"`
	Alpha1   []string   `json:"vk_alpha_1"`
	Beta2    [][]string `json:"vk_beta_2"`
	Gamma2   [][]string `json:"vk_gamma_2"`
	Delta2   [][]string `json:"vk_delta_2"`
	IC       [][]string `json:"IC"`
}

// SnarkProof is the proof.json layout.
type SnarkProof struct {
	PiA      []string   `json:"pi_a"`
	PiB      [][]string `json:"pi_b"`
	PiC      []string   `json:"pi_c"`
	Protocol string     `json:"protocol"`
	Curve    string     `json:"curve,omitempty"`
}

// ParseVerifyingKeyJSON decodes a snarkjs verification key.
func ParseVerifyingKeyJSON(data []byte) (*VerifyingKey, error) {
	var raw SnarkVerifyingKey
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, errors.Wrap(err, "groth16: decode verifying key")
	}
	return raw.Key()
}

// Key validates and converts the JSON form.
func (raw SnarkVerifyingKey) Key() (*VerifyingKey, error) {
	if raw.Protocol != "" && raw.Protocol != "groth16" {
		return nil, errors.Errorf("groth16: unexpected protocol %q", raw.Protocol)
	}
	if err := checkCurve(raw.Curve); err != nil {
		return nil, err
	}
	if len(raw.IC) == 0 {
		return nil, errors.New("groth16: verifying key has no IC points")
	}
	if raw.NPublic != 0 && raw.NPublic != len(raw.IC)-1 {
		return nil, errors.Errorf("groth16: nPublic %d does not match %d IC points", raw.NPublic, len(raw.IC))
	}

	vk := &VerifyingKey{IC: make([]bn254.G1Affine, len(raw.IC))}
	var err error
	if vk.Alpha, err = parseG1(raw.Alpha1); err != nil {
		return nil, errors.Wrap(err, "vk_alpha_1")
	}
	if vk.Beta, err = parseG2(raw.Beta2); err != nil {
		return nil, errors.Wrap(err, "vk_beta_2")
	}
	if vk.Gamma, err = parseG2(raw.Gamma2); err != nil {
		return nil, errors.Wrap(err, "vk_gamma_2")
	}
	if vk.Delta, err = parseG2(raw.Delta2); err != nil {
		return nil, errors.Wrap(err, "vk_delta_2")
	}
	for i := range raw.IC {
		if vk.IC[i], err = parseG1(raw.IC[i]); err != nil {
			return nil, errors.Wrapf(err, "IC[%d]", i)
		}
	}
	return vk, nil
}

// ParseProofJSON decodes a snarkjs proof.
func ParseProofJSON(data []byte) (*Proof, error) {
	var raw SnarkProof
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, errors.Wrap(err, "groth16: decode proof")
	}
	return raw.Proof()
}

// Proof validates and converts the JSON form.
func (raw SnarkProof) Proof() (*Proof, error) {
	if raw.Protocol != "" && raw.Protocol != "groth16" {
		return nil, errors.Errorf("groth16: unexpected protocol %q", raw.Protocol)
	}
	if err := checkCurve(raw.Curve); err != nil {
		return nil, err
	}

	p := &Proof{}
	var err error
	if p.A, err = parseG1(raw.PiA); err != nil {
		return nil, errors.Wrap(err, "pi_a")
	}
	if p.B, err = parseG2(raw.PiB); err != nil {
		return nil, errors.Wrap(err, "pi_b")
	}
	if p.C, err = parseG1(raw.PiC); err != nil {
		return nil, errors.Wrap(err, "pi_c")
	}
	return p, nil
}

// Verify checks proof against vk and the public inputs, in circuit order.
// A proof that is well formed but wrong returns [ErrProofRejected].
func Verify(vk *VerifyingKey, proof *Proof, inputs []*big.Int) error {
	if vk == nil || proof == nil {
		return errors.New("groth16: nil key or proof")
	}
	if len(inputs) != vk.NumPublic() {
		return errors.Wrapf(ErrInputCount, "got %d, want %d", len(inputs), vk.NumPublic())
	}

	// vk_x = IC[0] + sum(inputs[i] * IC[i+1])
	var acc bn254.G1Jac
	acc.FromAffine(&vk.IC[0])
	modulus := fr.Modulus()
	for i, in := range inputs {
		if in == nil || in.Sign() < 0 || in.Cmp(modulus) >= 0 {
			return errors.Wrapf(ErrInputOutOfRange, "input %d", i)
		}
		if in.Sign() == 0 {
			continue
		}
		var term bn254.G1Affine
		term.ScalarMultiplication(&vk.IC[i+1], in)
		acc.AddMixed(&term)
	}
	var vkX bn254.G1Affine
	vkX.FromJacobian(&acc)

	var negA bn254.G1Affine
	negA.Neg(&proof.A)

	ok, err := bn254.PairingCheck(
		[]bn254.G1Affine{negA, vk.Alpha, vkX, proof.C},
		[]bn254.G2Affine{proof.B, vk.Beta, vk.Gamma, vk.Delta},
	)
	if err != nil {
		return errors.Wrap(err, "groth16: pairing")
	}
	if !ok {
		return ErrProofRejected
	}
	return nil
}

// EncodeVerifyingKey renders vk in snarkjs form.
func EncodeVerifyingKey(vk *VerifyingKey) SnarkVerifyingKey {
	out := SnarkVerifyingKey{
		Protocol: "groth16",
		Curve:    "bn128",
		NPublic:  vk.NumPublic(),
		Alpha1:   encodeG1(&vk.Alpha),
		Beta2:    encodeG2(&vk.Beta),
		Gamma2:   encodeG2(&vk.Gamma),
		Delta2:   encodeG2(&vk.Delta),
		IC:       make([][]string, len(vk.IC)),
	}
	for i := range vk.IC {
		out.IC[i] = encodeG1(&vk.IC[i])
	}
	return out
}

// EncodeProof renders p in snarkjs form.
func EncodeProof(p *Proof) SnarkProof {
	return SnarkProof{
		PiA:      encodeG1(&p.A),
		PiB:      encodeG2(&p.B),
		PiC:      encodeG1(&p.C),
		Protocol: "groth16",
		Curve:    "bn128",
	}
}

func checkCurve(curve string) error {
	switch curve {
	case "", "bn128", "bn254":
		return nil
	default:
		return errors.Wrapf(ErrUnsupportedCurve, "%q", curve)
	}
}

func parseFp(s string) (fp.Element, error) {
	var e fp.Element
	v, ok := new(big.Int).SetString(s, 10)
	if !ok || v.Sign() < 0 || v.Cmp(fp.Modulus()) >= 0 {
		return e, errors.Wrapf(ErrInvalidPoint, "coordinate %q", s)
	}
	e.SetBigInt(v)
	return e, nil
}

// parseG1 accepts projective [x, y, "1"] only; the identity is never a
// valid key or proof element.
func parseG1(coords []string) (bn254.G1Affine, error) {
	var p bn254.G1Affine
	if len(coords) != 3 || coords[2] != "1" {
		return p, errors.Wrap(ErrInvalidPoint, "g1 must be [x, y, \"1\"]")
	}
	var err error
	if p.X, err = parseFp(coords[0]); err != nil {
		return p, err
	}
	if p.Y, err = parseFp(coords[1]); err != nil {
		return p, err
	}
	if p.IsInfinity() || !p.IsOnCurve() || !p.IsInSubGroup() {
		return p, errors.Wrap(ErrInvalidPoint, "g1 not on curve")
	}
	return p, nil
}

func parseG2(coords [][]string) (bn254.G2Affine, error) {
	var p bn254.G2Affine
	if len(coords) != 3 || len(coords[0]) != 2 || len(coords[1]) != 2 ||
		len(coords[2]) != 2 || coords[2][0] != "1" || coords[2][1] != "0" {
		return p, errors.Wrap(ErrInvalidPoint, "g2 must be [[x0, x1], [y0, y1], [\"1\", \"0\"]]")
	}
	var err error
	if p.X.A0, err = parseFp(coords[0][0]); err != nil {
		return p, err
	}
	if p.X.A1, err = parseFp(coords[0][1]); err != nil {
		return p, err
	}
	if p.Y.A0, err = parseFp(coords[1][0]); err != nil {
		return p, err
	}
	if p.Y.A1, err = parseFp(coords[1][1]); err != nil {
		return p, err
	}
	if p.IsInfinity() || !p.IsOnCurve() || !p.IsInSubGroup() {
		return p, errors.Wrap(ErrInvalidPoint, "g2 not on curve")
	}
	return p, nil
}

func fpString(e *fp.Element) string {
	return e.BigInt(new(big.Int)).String()
}

func encodeG1(p *bn254.G1Affine) []string {
	return []string{fpString(&p.X), fpString(&p.Y), "1"}
}

func encodeG2(p *bn254.G2Affine) [][]string {
	return [][]string{
		{fpString(&p.X.A0), fpString(&p.X.A1)},
		{fpString(&p.Y.A0), fpString(&p.Y.A1)},
		{"1", "0"},
	}
}
