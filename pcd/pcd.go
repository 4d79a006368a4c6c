package pcd

import "context"

// PartialTicket holds the ticket fields a proof chose to reveal. An empty
// string means the field was not revealed.
type PartialTicket struct {
	TicketID            string `json:"ticketId,omitempty"`
	EventID             string `json:"eventId,omitempty"`
	ProductID           string `json:"productId,omitempty"`
	AttendeeEmail       string `json:"attendeeEmail,omitempty"`
	AttendeeSemaphoreID string `json:"attendeeSemaphoreId,omitempty"`
}

// Claim is the publicly verifiable statement carried by a ticket proof.
//
// Watermark and ExternalNullifier are decimal strings. Signer holds the two
// hex field elements of the ticket issuer's public key. ValidEventIDs is nil
// when the proof carries no event list.
type Claim struct {
	Watermark         string
	NullifierHash     string
	ExternalNullifier string
	Signer            [2]string
	PartialTicket     PartialTicket
	ValidEventIDs     []string
}

// PCD is a deserialized proof-carrying data object.
type PCD interface {
	ID() string
	Claim() Claim
}

// Package knows one PCD type: how to decode its serialized form and how to
// check its proof.
type Package interface {
	Name() string
	Deserialize(serialized string) (PCD, error)
	// Verify reports whether the proof is valid for the PCD's claim. A false
	// result with a nil error is an ordinary rejection.
	Verify(ctx context.Context, p PCD) (bool, error)
}
