package groth16_test

import (
	"encoding/json"
	"math/big"
	"testing"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MrEthical07/zuauth/pcd/groth16"
	"github.com/MrEthical07/zuauth/pcd/groth16/groth16test"
)

func testInputs() []*big.Int {
	return []*big.Int{big.NewInt(7), big.NewInt(0), new(big.Int).Sub(fr.Modulus(), big.NewInt(1))}
}

func TestVerifyAcceptsValidProof(t *testing.T) {
	vk, td, err := groth16test.NewKey(3)
	require.NoError(t, err)

	proof, err := td.Prove(testInputs())
	require.NoError(t, err)

	assert.NoError(t, groth16.Verify(vk, proof, testInputs()))
}

func TestVerifyRejectsWrongInputs(t *testing.T) {
	vk, td, err := groth16test.NewKey(3)
	require.NoError(t, err)
	proof, err := td.Prove(testInputs())
	require.NoError(t, err)

	wrong := testInputs()
	wrong[0] = big.NewInt(8)
	assert.ErrorIs(t, groth16.Verify(vk, proof, wrong), groth16.ErrProofRejected)

	assert.ErrorIs(t, groth16.Verify(vk, proof, wrong[:2]), groth16.ErrInputCount)

	outOfRange := testInputs()
	outOfRange[1] = fr.Modulus()
	assert.ErrorIs(t, groth16.Verify(vk, proof, outOfRange), groth16.ErrInputOutOfRange)
}

func TestVerifyRejectsProofForOtherKey(t *testing.T) {
	vk, _, err := groth16test.NewKey(3)
	require.NoError(t, err)
	_, other, err := groth16test.NewKey(3)
	require.NoError(t, err)

	proof, err := other.Prove(testInputs())
	require.NoError(t, err)
	assert.ErrorIs(t, groth16.Verify(vk, proof, testInputs()), groth16.ErrProofRejected)
}

func TestSnarkJSONRoundTrip(t *testing.T) {
	vk, td, err := groth16test.NewKey(2)
	require.NoError(t, err)
	proof, err := td.Prove([]*big.Int{big.NewInt(1), big.NewInt(2)})
	require.NoError(t, err)

	vkJSON, err := json.Marshal(groth16.EncodeVerifyingKey(vk))
	require.NoError(t, err)
	proofJSON, err := json.Marshal(groth16.EncodeProof(proof))
	require.NoError(t, err)

	parsedVK, err := groth16.ParseVerifyingKeyJSON(vkJSON)
	require.NoError(t, err)
	parsedProof, err := groth16.ParseProofJSON(proofJSON)
	require.NoError(t, err)

	assert.Equal(t, 2, parsedVK.NumPublic())
	assert.NoError(t, groth16.Verify(parsedVK, parsedProof, []*big.Int{big.NewInt(1), big.NewInt(2)}))
}

func TestParseRejectsBadPoints(t *testing.T) {
	vk, td, err := groth16test.NewKey(1)
	require.NoError(t, err)
	proof, err := td.Prove([]*big.Int{big.NewInt(5)})
	require.NoError(t, err)
	raw := groth16.EncodeProof(proof)

	offCurve := raw
	offCurve.PiA = []string{raw.PiA[0], "1", "1"}
	_, err = offCurve.Proof()
	assert.ErrorIs(t, err, groth16.ErrInvalidPoint)

	notAffine := raw
	notAffine.PiC = []string{raw.PiC[0], raw.PiC[1], "2"}
	_, err = notAffine.Proof()
	assert.ErrorIs(t, err, groth16.ErrInvalidPoint)

	tooLarge := raw
	tooLarge.PiB = [][]string{{raw.PiB[0][0], "21888242871839275222246405745257275088696311157297823662689037894645226208584"}, raw.PiB[1], raw.PiB[2]}
	_, err = tooLarge.Proof()
	assert.ErrorIs(t, err, groth16.ErrInvalidPoint)

	wrongCurve := raw
	wrongCurve.Curve = "bls12381"
	_, err = wrongCurve.Proof()
	assert.ErrorIs(t, err, groth16.ErrUnsupportedCurve)

	rawVK := groth16.EncodeVerifyingKey(vk)
	rawVK.NPublic = 4
	_, err = rawVK.Key()
	assert.Error(t, err)

	_, err = groth16.ParseProofJSON([]byte("{"))
	assert.Error(t, err)
}
