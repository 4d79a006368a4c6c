// Package zktickettest issues valid ticket proofs for tests: it owns a
// verifying key trapdoor and a Baby Jubjub signer key.
package zktickettest

import (
	"fmt"
	"math/big"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	"github.com/google/uuid"

	"github.com/MrEthical07/zuauth/pcd/groth16"
	"github.com/MrEthical07/zuauth/pcd/groth16/groth16test"
	"github.com/MrEthical07/zuauth/pcd/zkticket"
)

// Issuer signs tickets and proves claims about them.
type Issuer struct {
	VerifyingKey *groth16.VerifyingKey
	Signer       [2]string

	trapdoor *groth16test.Trapdoor
	pkg      *zkticket.Package
}

// NewIssuer creates a verifying key for the ticket circuit and a signer.
func NewIssuer() (*Issuer, error) {
	vk, td, err := groth16test.NewKey(zkticket.NumPublicSignals)
	if err != nil {
		return nil, err
	}
	pkg, err := zkticket.NewPackage(vk)
	if err != nil {
		return nil, err
	}
	signer, err := RandomSigner()
	if err != nil {
		return nil, err
	}
	return &Issuer{
		VerifyingKey: vk,
		Signer:       signer,
		trapdoor:     td,
		pkg:          pkg,
	}, nil
}

// Package returns a verifier for proofs made by this issuer.
func (i *Issuer) Package() *zkticket.Package {
	return i.pkg
}

// Prove returns the serialized PCD for claim. An empty signer is filled
// with the issuer's key.
func (i *Issuer) Prove(claim zkticket.Claim) (string, error) {
	if claim.Signer == ([2]string{}) {
		claim.Signer = i.Signer
	}
	signals, err := zkticket.PublicSignals(claim)
	if err != nil {
		return "", err
	}
	proof, err := i.trapdoor.Prove(signals)
	if err != nil {
		return "", err
	}
	return zkticket.Serialize(zkticket.New(uuid.NewString(), claim, groth16.EncodeProof(proof)))
}

// Ticket describes a ticket holder for TicketClaim.
type Ticket struct {
	TicketID            string
	EventID             string
	ProductID           string
	AttendeeEmail       string
	AttendeeSemaphoreID string
}

// NewTicket returns a ticket with fresh identifiers for eventID.
func NewTicket(eventID string) Ticket {
	return Ticket{
		TicketID:            uuid.NewString(),
		EventID:             eventID,
		ProductID:           uuid.NewString(),
		AttendeeEmail:       "attendee@example.com",
		AttendeeSemaphoreID: "12345678901234567890",
	}
}

// TicketClaim builds the claim a Zupass client produces for nonce, revealing
// ticket id, event id, product id, email and semaphore id. The nullifier is
// derived from the ticket and the nonce.
func TicketClaim(t Ticket, nonce string, validEventIDs []string) zkticket.Claim {
	return zkticket.Claim{
		PartialTicket: zkticket.PartialTicket{
			TicketID:            t.TicketID,
			EventID:             t.EventID,
			ProductID:           t.ProductID,
			AttendeeEmail:       t.AttendeeEmail,
			AttendeeSemaphoreID: t.AttendeeSemaphoreID,
		},
		Watermark:         nonce,
		ValidEventIDs:     validEventIDs,
		ExternalNullifier: nonce,
		NullifierHash:     Nullifier(t.AttendeeSemaphoreID, nonce),
	}
}

// Nullifier is a deterministic stand-in for the circuit's nullifier hash.
func Nullifier(semaphoreID, externalNullifier string) string {
	h := zkticket.SnarkMessageHash(semaphoreID + ":" + externalNullifier)
	return h.String()
}

// RandomSigner returns a random point on Baby Jubjub as hex coordinates.
func RandomSigner() ([2]string, error) {
	for {
		var y fr.Element
		if _, err := y.SetRandom(); err != nil {
			return [2]string{}, fmt.Errorf("zktickettest: random: %w", err)
		}
		x, ok := zkticket.PointForY(y)
		if !ok {
			continue
		}
		return [2]string{
			x.BigInt(new(big.Int)).Text(16),
			y.BigInt(new(big.Int)).Text(16),
		}, nil
	}
}
