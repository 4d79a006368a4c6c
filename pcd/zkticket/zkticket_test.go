package zkticket_test

import (
	"context"
	"encoding/json"
	"math/big"
	"strings"
	"testing"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MrEthical07/zuauth/pcd/groth16/groth16test"
	"github.com/MrEthical07/zuauth/pcd/zkticket"
	"github.com/MrEthical07/zuauth/pcd/zkticket/zktickettest"
)

const nonce = "1234567890123456789012345678901234567890"

func newIssuer(t *testing.T) *zktickettest.Issuer {
	t.Helper()
	issuer, err := zktickettest.NewIssuer()
	require.NoError(t, err)
	return issuer
}

func TestVerifyValidTicket(t *testing.T) {
	issuer := newIssuer(t)
	eventID := uuid.NewString()
	ticket := zktickettest.NewTicket(eventID)

	serialized, err := issuer.Prove(zktickettest.TicketClaim(ticket, nonce, []string{eventID}))
	require.NoError(t, err)

	p, err := issuer.Package().Deserialize(serialized)
	require.NoError(t, err)
	ok, err := issuer.Package().Verify(context.Background(), p)
	require.NoError(t, err)
	assert.True(t, ok)

	claim := p.Claim()
	assert.Equal(t, nonce, claim.Watermark)
	assert.Equal(t, ticket.TicketID, claim.PartialTicket.TicketID)
	assert.Equal(t, eventID, claim.PartialTicket.EventID)
	assert.Equal(t, ticket.AttendeeEmail, claim.PartialTicket.AttendeeEmail)
	assert.Equal(t, []string{eventID}, claim.ValidEventIDs)
	assert.Equal(t, issuer.Signer, claim.Signer)
	assert.NotEmpty(t, claim.NullifierHash)
}

func TestVerifyRejectsAlteredClaim(t *testing.T) {
	issuer := newIssuer(t)
	ticket := zktickettest.NewTicket(uuid.NewString())
	serialized, err := issuer.Prove(zktickettest.TicketClaim(ticket, nonce, nil))
	require.NoError(t, err)

	mutations := map[string]func(c *zkticket.Claim){
		"watermark": func(c *zkticket.Claim) { c.Watermark = "42" },
		"event":     func(c *zkticket.Claim) { c.PartialTicket.EventID = uuid.NewString() },
		"email":     func(c *zkticket.Claim) { c.PartialTicket.AttendeeEmail = "mallory@example.com" },
		"nullifier": func(c *zkticket.Claim) { c.NullifierHash = "" },
		"events":    func(c *zkticket.Claim) { c.ValidEventIDs = []string{ticket.EventID} },
	}
	for name, mutate := range mutations {
		t.Run(name, func(t *testing.T) {
			var raw map[string]json.RawMessage
			require.NoError(t, json.Unmarshal([]byte(serialized), &raw))
			var claim zkticket.Claim
			require.NoError(t, json.Unmarshal(raw["claim"], &claim))
			mutate(&claim)
			encoded, err := json.Marshal(claim)
			require.NoError(t, err)
			raw["claim"] = encoded
			forged, err := json.Marshal(raw)
			require.NoError(t, err)

			p, err := issuer.Package().Deserialize(string(forged))
			require.NoError(t, err)
			ok, err := issuer.Package().Verify(context.Background(), p)
			require.NoError(t, err)
			assert.False(t, ok)
		})
	}
}

func TestDeserializeRejectsNonCanonicalSpellings(t *testing.T) {
	issuer := newIssuer(t)
	ticket := zktickettest.NewTicket(uuid.NewString())
	serialized, err := issuer.Prove(zktickettest.TicketClaim(ticket, nonce, []string{ticket.EventID}))
	require.NoError(t, err)

	mutations := map[string]func(c *zkticket.Claim){
		"nullifier leading zero":  func(c *zkticket.Claim) { c.NullifierHash = "0" + c.NullifierHash },
		"nullifier double zero":   func(c *zkticket.Claim) { c.NullifierHash = "00" + c.NullifierHash },
		"nullifier leading space": func(c *zkticket.Claim) { c.NullifierHash = " " + c.NullifierHash },
		"nullifier plus sign":     func(c *zkticket.Claim) { c.NullifierHash = "+" + c.NullifierHash },
		"watermark leading zero":  func(c *zkticket.Claim) { c.Watermark = "0" + c.Watermark },
		"external nullifier":      func(c *zkticket.Claim) { c.ExternalNullifier = c.ExternalNullifier + " " },
		"semaphore id":            func(c *zkticket.Claim) { c.PartialTicket.AttendeeSemaphoreID = "0" + c.PartialTicket.AttendeeSemaphoreID },
		"uppercase ticket id":     func(c *zkticket.Claim) { c.PartialTicket.TicketID = strings.ToUpper(c.PartialTicket.TicketID) },
		"braced event id":         func(c *zkticket.Claim) { c.PartialTicket.EventID = "{" + c.PartialTicket.EventID + "}" },
		"urn valid event id":      func(c *zkticket.Claim) { c.ValidEventIDs = []string{"urn:uuid:" + c.ValidEventIDs[0]} },
	}
	for name, mutate := range mutations {
		t.Run(name, func(t *testing.T) {
			var raw map[string]json.RawMessage
			require.NoError(t, json.Unmarshal([]byte(serialized), &raw))
			var claim zkticket.Claim
			require.NoError(t, json.Unmarshal(raw["claim"], &claim))
			mutate(&claim)
			encoded, err := json.Marshal(claim)
			require.NoError(t, err)
			raw["claim"] = encoded
			forged, err := json.Marshal(raw)
			require.NoError(t, err)

			_, err = issuer.Package().Deserialize(string(forged))
			assert.ErrorIs(t, err, zkticket.ErrNonCanonicalClaim)
		})
	}

	p, err := issuer.Package().Deserialize(serialized)
	require.NoError(t, err, "the prover's own spelling stays accepted")
	ok, err := issuer.Package().Verify(context.Background(), p)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestVerifyRejectsProofFromOtherKey(t *testing.T) {
	issuer := newIssuer(t)
	other := newIssuer(t)
	ticket := zktickettest.NewTicket(uuid.NewString())

	serialized, err := other.Prove(zktickettest.TicketClaim(ticket, nonce, nil))
	require.NoError(t, err)
	p, err := issuer.Package().Deserialize(serialized)
	require.NoError(t, err)
	ok, err := issuer.Package().Verify(context.Background(), p)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestVerifyRejectsSignerOffCurve(t *testing.T) {
	issuer := newIssuer(t)
	claim := zktickettest.TicketClaim(zktickettest.NewTicket(uuid.NewString()), nonce, nil)
	claim.Signer = [2]string{"1", "2"}

	serialized, err := issuer.Prove(claim)
	require.NoError(t, err)
	p, err := issuer.Package().Deserialize(serialized)
	require.NoError(t, err)
	ok, err := issuer.Package().Verify(context.Background(), p)
	require.NoError(t, err)
	assert.False(t, ok, "proof over an off-curve signer must not verify")
}

func TestDeserializeMalformed(t *testing.T) {
	issuer := newIssuer(t)
	for _, in := range []string{"", "not json", `{"claim":{}}`, `{"claim":{"watermark":"1"}}`} {
		_, err := issuer.Package().Deserialize(in)
		assert.Error(t, err, "input %q", in)
	}
}

func TestPublicSignalsLayout(t *testing.T) {
	id := "00000000-0000-0000-0000-000000000010"
	negOne := new(big.Int).Sub(fr.Modulus(), big.NewInt(1))

	signals, err := zkticket.PublicSignals(zkticket.Claim{
		PartialTicket: zkticket.PartialTicket{TicketID: id, AttendeeEmail: "a@b.c"},
		Watermark:     "99",
		Signer:        [2]string{"0x0A", "b"},
	})
	require.NoError(t, err)
	require.Len(t, signals, zkticket.NumPublicSignals)

	assert.Equal(t, "16", signals[0].String(), "uuid maps to its 128-bit integer")
	assert.Equal(t, negOne, signals[1], "unrevealed event id is the sentinel")
	assert.Equal(t, zkticket.SnarkMessageHash("a@b.c"), signals[9])
	assert.Equal(t, "10", signals[12].String())
	assert.Equal(t, "11", signals[13].String())
	assert.Equal(t, negOne, signals[14], "empty event list is padded")
	assert.Equal(t, "0", signals[14+zkticket.MaxValidEventIDs].String(), "event list disabled")
	assert.Equal(t, "99", signals[len(signals)-1].String())
	assert.True(t, zkticket.SnarkMessageHash("x").BitLen() <= 248)
}

func TestPublicSignalsRejectsOutOfField(t *testing.T) {
	base := zkticket.Claim{Watermark: "1", Signer: [2]string{"1", "1"}}

	tooBig := base
	tooBig.Watermark = fr.Modulus().String()
	_, err := zkticket.PublicSignals(tooBig)
	assert.Error(t, err)

	tooMany := base
	tooMany.ValidEventIDs = strings.Split(strings.Repeat(uuid.NewString()+",", 21), ",")[:21]
	_, err = zkticket.PublicSignals(tooMany)
	assert.Error(t, err)

	badUUID := base
	badUUID.PartialTicket.EventID = "not-a-uuid"
	_, err = zkticket.PublicSignals(badUUID)
	assert.Error(t, err)
}

func TestNewPackageChecksKeySize(t *testing.T) {
	vk, _, err := groth16test.NewKey(3)
	require.NoError(t, err)
	_, err = zkticket.NewPackage(vk)
	assert.Error(t, err)
}

func TestRandomSignerIsOnCurve(t *testing.T) {
	signer, err := zktickettest.RandomSigner()
	require.NoError(t, err)
	y, ok := new(big.Int).SetString(signer[1], 16)
	require.True(t, ok)
	var ye fr.Element
	ye.SetBigInt(y)
	_, ok = zkticket.PointForY(ye)
	assert.True(t, ok)
}
