// Package groth16test builds verifying keys together with their trapdoor so
// tests can produce valid Groth16 proofs for arbitrary public inputs without
// a circuit.
package groth16test

import (
	"math/big"

	"github.com/consensys/gnark-crypto/ecc/bn254"
	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	"github.com/pkg/errors"

	"github.com/MrEthical07/zuauth/pcd/groth16"
)

// Trapdoor is the setup secret behind a verifying key.
type Trapdoor struct {
	alpha, beta, gamma, delta fr.Element
	ic                        []fr.Element
}

// NewKey returns a random verifying key for nPublic inputs.
func NewKey(nPublic int) (*groth16.VerifyingKey, *Trapdoor, error) {
	if nPublic < 0 {
		return nil, nil, errors.New("groth16test: negative input count")
	}

	td := &Trapdoor{ic: make([]fr.Element, nPublic+1)}
	for _, e := range []*fr.Element{&td.alpha, &td.beta, &td.gamma, &td.delta} {
		if err := randomNonZero(e); err != nil {
			return nil, nil, err
		}
	}
	for i := range td.ic {
		if err := randomNonZero(&td.ic[i]); err != nil {
			return nil, nil, err
		}
	}

	_, _, g1, g2 := bn254.Generators()
	vk := &groth16.VerifyingKey{IC: make([]bn254.G1Affine, len(td.ic))}
	vk.Alpha.ScalarMultiplication(&g1, bigOf(&td.alpha))
	vk.Beta.ScalarMultiplication(&g2, bigOf(&td.beta))
	vk.Gamma.ScalarMultiplication(&g2, bigOf(&td.gamma))
	vk.Delta.ScalarMultiplication(&g2, bigOf(&td.delta))
	for i := range td.ic {
		vk.IC[i].ScalarMultiplication(&g1, bigOf(&td.ic[i]))
	}
	return vk, td, nil
}

// Prove returns a proof that verifies against the trapdoor's key for inputs.
func (td *Trapdoor) Prove(inputs []*big.Int) (*groth16.Proof, error) {
	if len(inputs) != len(td.ic)-1 {
		return nil, errors.Errorf("groth16test: got %d inputs, want %d", len(inputs), len(td.ic)-1)
	}

	// x = ic0 + sum(s_i * ic_i)
	x := td.ic[0]
	for i, in := range inputs {
		if in == nil || in.Sign() < 0 || in.Cmp(fr.Modulus()) >= 0 {
			return nil, errors.Errorf("groth16test: input %d out of range", i)
		}
		var s, term fr.Element
		s.SetBigInt(in)
		term.Mul(&s, &td.ic[i+1])
		x.Add(&x, &term)
	}

	var a, b fr.Element
	if err := randomNonZero(&a); err != nil {
		return nil, err
	}
	if err := randomNonZero(&b); err != nil {
		return nil, err
	}

	// c = (a*b - alpha*beta - x*gamma) / delta
	var c, t fr.Element
	c.Mul(&a, &b)
	t.Mul(&td.alpha, &td.beta)
	c.Sub(&c, &t)
	t.Mul(&x, &td.gamma)
	c.Sub(&c, &t)
	t.Inverse(&td.delta)
	c.Mul(&c, &t)

	_, _, g1, g2 := bn254.Generators()
	p := &groth16.Proof{}
	p.A.ScalarMultiplication(&g1, bigOf(&a))
	p.B.ScalarMultiplication(&g2, bigOf(&b))
	p.C.ScalarMultiplication(&g1, bigOf(&c))
	return p, nil
}

func randomNonZero(e *fr.Element) error {
	for {
		if _, err := e.SetRandom(); err != nil {
			return errors.Wrap(err, "groth16test: random scalar")
		}
		if !e.IsZero() {
			return nil
		}
	}
}

func bigOf(e *fr.Element) *big.Int {
	return e.BigInt(new(big.Int))
}
