// Package zkticket implements the Zupass zero-knowledge EdDSA event ticket
// PCD: its serialized JSON form, the public signals of its circuit, and
// proof verification against a Groth16 verifying key.
package zkticket

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	"github.com/google/uuid"
	"golang.org/x/crypto/sha3"

	"github.com/MrEthical07/zuauth/pcd"
	"github.com/MrEthical07/zuauth/pcd/groth16"
)

// PCDType is the registered name of this PCD.
const PCDType = "zk-eddsa-event-ticket-pcd"

// MaxValidEventIDs is the size of the circuit's event list input.
const MaxValidEventIDs = 20

// NumPublicSignals is the public signal count of the ticket circuit: twelve
// outputs, the signer, the padded event list, its enable flag, the external
// nullifier and the watermark.
const NumPublicSignals = 12 + 2 + MaxValidEventIDs + 1 + 1 + 1

// staticExternalNullifier stands in for a missing external nullifier.
const staticExternalNullifier = "dummy-nullifier-for-eddsa-event-ticket-pcds"

// PartialTicket lists every ticket field the circuit can reveal.
type PartialTicket struct {
	TicketID            string `json:"ticketId,omitempty"`
	EventID             string `json:"eventId,omitempty"`
	ProductID           string `json:"productId,omitempty"`
	TimestampConsumed   *int64 `json:"timestampConsumed,omitempty"`
	TimestampSigned     *int64 `json:"timestampSigned,omitempty"`
	AttendeeSemaphoreID string `json:"attendeeSemaphoreId,omitempty"`
	IsConsumed          *bool  `json:"isConsumed,omitempty"`
	IsRevoked           *bool  `json:"isRevoked,omitempty"`
	TicketCategory      *int64 `json:"ticketCategory,omitempty"`
	AttendeeEmail       string `json:"attendeeEmail,omitempty"`
	AttendeeName        string `json:"attendeeName,omitempty"`
}

type Claim struct {
	PartialTicket     PartialTicket `json:"partialTicket"`
	Watermark         string        `json:"watermark"`
	Signer            [2]string     `json:"signer"`
	ValidEventIDs     []string      `json:"validEventIds,omitempty"`
	NullifierHash     string        `json:"nullifierHash,omitempty"`
	ExternalNullifier string        `json:"externalNullifier,omitempty"`
}

// PCD is a deserialized ticket proof.
type PCD struct {
	id    string
	claim Claim
	proof groth16.SnarkProof
}

func New(id string, claim Claim, proof groth16.SnarkProof) *PCD {
	return &PCD{id: id, claim: claim, proof: proof}
}

func (p *PCD) ID() string {
	return p.id
}

func (p *PCD) TicketClaim() Claim {
	return p.claim
}

func (p *PCD) Proof() groth16.SnarkProof {
	return p.proof
}

// Claim converts to the engine-facing claim.
func (p *PCD) Claim() pcd.Claim {
	c := pcd.Claim{
		Watermark:         p.claim.Watermark,
		NullifierHash:     p.claim.NullifierHash,
		ExternalNullifier: p.claim.ExternalNullifier,
		Signer:            p.claim.Signer,
		PartialTicket: pcd.PartialTicket{
			TicketID:            p.claim.PartialTicket.TicketID,
			EventID:             p.claim.PartialTicket.EventID,
			ProductID:           p.claim.PartialTicket.ProductID,
			AttendeeEmail:       p.claim.PartialTicket.AttendeeEmail,
			AttendeeSemaphoreID: p.claim.PartialTicket.AttendeeSemaphoreID,
		},
	}
	if p.claim.ValidEventIDs != nil {
		c.ValidEventIDs = append([]string{}, p.claim.ValidEventIDs...)
	}
	return c
}

type serialized struct {
	ID    string             `json:"id"`
	Claim Claim              `json:"claim"`
	Proof groth16.SnarkProof `json:"proof"`
}

// Package verifies ticket proofs against one verifying key.
type Package struct {
	vk *groth16.VerifyingKey
}

func NewPackage(vk *groth16.VerifyingKey) (*Package, error) {
	if vk == nil {
		return nil, errors.New("zkticket: verifying key required")
	}
	if vk.NumPublic() != NumPublicSignals {
		return nil, fmt.Errorf("zkticket: verifying key has %d public inputs, want %d", vk.NumPublic(), NumPublicSignals)
	}
	return &Package{vk: vk}, nil
}

func (p *Package) Name() string {
	return PCDType
}

// Serialize renders the JSON form accepted by Deserialize.
func Serialize(p *PCD) (string, error) {
	raw, err := json.Marshal(serialized{ID: p.id, Claim: p.claim, Proof: p.proof})
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

func (p *Package) Deserialize(s string) (pcd.PCD, error) {
	var raw serialized
	if err := json.Unmarshal([]byte(s), &raw); err != nil {
		return nil, fmt.Errorf("zkticket: decode: %w", err)
	}
	if raw.Claim.Watermark == "" {
		return nil, errors.New("zkticket: claim has no watermark")
	}
	if len(raw.Proof.PiA) == 0 {
		return nil, errors.New("zkticket: missing proof")
	}
	if err := raw.Claim.checkCanonical(); err != nil {
		return nil, err
	}
	return New(raw.ID, raw.Claim, raw.Proof), nil
}

// ErrNonCanonicalClaim rejects claims spelling a number or uuid in any form
// other than the one the proof is recomputed from.
var ErrNonCanonicalClaim = errors.New("zkticket: claim field is not in canonical form")

func (c Claim) checkCanonical() error {
	decimals := map[string]string{
		"watermark":           c.Watermark,
		"nullifierHash":       c.NullifierHash,
		"externalNullifier":   c.ExternalNullifier,
		"attendeeSemaphoreId": c.PartialTicket.AttendeeSemaphoreID,
	}
	for name, v := range decimals {
		if v != "" && !pcd.IsCanonicalDecimal(v) {
			return fmt.Errorf("%w: %s", ErrNonCanonicalClaim, name)
		}
	}

	uuids := []string{c.PartialTicket.TicketID, c.PartialTicket.EventID, c.PartialTicket.ProductID}
	uuids = append(uuids, c.ValidEventIDs...)
	for _, v := range uuids {
		if v != "" && !isCanonicalUUID(v) {
			return fmt.Errorf("%w: uuid %q", ErrNonCanonicalClaim, v)
		}
	}
	return nil
}

func isCanonicalUUID(s string) bool {
	id, err := uuid.Parse(s)
	return err == nil && id.String() == s
}

// Verify recomputes the public signals from the claim and checks the proof.
// Claims that cannot be encoded as field elements are rejected, not errors.
func (p *Package) Verify(ctx context.Context, in pcd.PCD) (bool, error) {
	ticket, ok := in.(*PCD)
	if !ok {
		return false, fmt.Errorf("zkticket: unexpected pcd type %T", in)
	}
	if err := ctx.Err(); err != nil {
		return false, err
	}

	signer, err := pcd.ParseSigner(ticket.claim.Signer)
	if err != nil || !onBabyJubJub(&signer[0], &signer[1]) {
		return false, nil
	}

	signals, err := PublicSignals(ticket.claim)
	if err != nil {
		return false, nil
	}

	proof, err := ticket.proof.Proof()
	if err != nil {
		return false, nil
	}

	if err := groth16.Verify(p.vk, proof, signals); err != nil {
		if errors.Is(err, groth16.ErrProofRejected) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// PublicSignals lays out the circuit's public signals for c.
func PublicSignals(c Claim) ([]*big.Int, error) {
	t := c.PartialTicket
	out := make([]*big.Int, 0, NumPublicSignals)
	negOne := new(big.Int).Sub(fr.Modulus(), big.NewInt(1))

	push := func(v *big.Int, err error) error {
		if err != nil {
			return err
		}
		if v == nil {
			v = negOne
		}
		out = append(out, v)
		return nil
	}

	steps := []func() (*big.Int, error){
		func() (*big.Int, error) { return optionalUUID(t.TicketID) },
		func() (*big.Int, error) { return optionalUUID(t.EventID) },
		func() (*big.Int, error) { return optionalUUID(t.ProductID) },
		func() (*big.Int, error) { return optionalInt(t.TimestampConsumed), nil },
		func() (*big.Int, error) { return optionalInt(t.TimestampSigned), nil },
		func() (*big.Int, error) { return optionalDecimal(t.AttendeeSemaphoreID) },
		func() (*big.Int, error) { return optionalBool(t.IsConsumed), nil },
		func() (*big.Int, error) { return optionalBool(t.IsRevoked), nil },
		func() (*big.Int, error) { return optionalInt(t.TicketCategory), nil },
		func() (*big.Int, error) { return optionalHash(t.AttendeeEmail), nil },
		func() (*big.Int, error) { return optionalHash(t.AttendeeName), nil },
		func() (*big.Int, error) { return optionalDecimal(c.NullifierHash) },
	}
	for _, step := range steps {
		if err := push(step()); err != nil {
			return nil, err
		}
	}

	for i := range c.Signer {
		e, err := pcd.ParseHexField(c.Signer[i])
		if err != nil {
			return nil, fmt.Errorf("signer[%d]: %w", i, err)
		}
		out = append(out, e.BigInt(new(big.Int)))
	}

	if len(c.ValidEventIDs) > MaxValidEventIDs {
		return nil, fmt.Errorf("zkticket: at most %d valid event ids", MaxValidEventIDs)
	}
	for i := 0; i < MaxValidEventIDs; i++ {
		if i >= len(c.ValidEventIDs) {
			out = append(out, negOne)
			continue
		}
		v, err := uuidToBig(c.ValidEventIDs[i])
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	if c.ValidEventIDs != nil {
		out = append(out, big.NewInt(1))
	} else {
		out = append(out, big.NewInt(0))
	}

	externalNullifier := SnarkMessageHash(staticExternalNullifier)
	if c.ExternalNullifier != "" {
		v, err := decimalToBig(c.ExternalNullifier)
		if err != nil {
			return nil, fmt.Errorf("externalNullifier: %w", err)
		}
		externalNullifier = v
	}
	out = append(out, externalNullifier)

	watermark, err := decimalToBig(c.Watermark)
	if err != nil {
		return nil, fmt.Errorf("watermark: %w", err)
	}
	out = append(out, watermark)

	return out, nil
}

// SnarkMessageHash is keccak256(s) shifted right by 8 bits so it fits the
// scalar field.
func SnarkMessageHash(s string) *big.Int {
	h := sha3.NewLegacyKeccak256()
	h.Write([]byte(s))
	v := new(big.Int).SetBytes(h.Sum(nil))
	return v.Rsh(v, 8)
}

func uuidToBig(s string) (*big.Int, error) {
	id, err := uuid.Parse(s)
	if err != nil {
		return nil, fmt.Errorf("zkticket: invalid uuid %q: %w", s, err)
	}
	if id.String() != s {
		return nil, fmt.Errorf("%w: uuid %q", ErrNonCanonicalClaim, s)
	}
	return new(big.Int).SetBytes(id[:]), nil
}

func decimalToBig(s string) (*big.Int, error) {
	e, err := pcd.ParseDecimalField(s)
	if err != nil {
		return nil, err
	}
	return e.BigInt(new(big.Int)), nil
}

func optionalUUID(s string) (*big.Int, error) {
	if s == "" {
		return nil, nil
	}
	return uuidToBig(s)
}

func optionalDecimal(s string) (*big.Int, error) {
	if s == "" {
		return nil, nil
	}
	return decimalToBig(s)
}

func optionalInt(v *int64) *big.Int {
	if v == nil || *v < 0 {
		return nil
	}
	return big.NewInt(*v)
}

func optionalBool(v *bool) *big.Int {
	if v == nil {
		return nil
	}
	if *v {
		return big.NewInt(1)
	}
	return big.NewInt(0)
}

func optionalHash(s string) *big.Int {
	if s == "" {
		return nil
	}
	return SnarkMessageHash(s)
}
