package zuauth

import (
	"io"
	"log/slog"

	internalaudit "github.com/MrEthical07/zuauth/internal/audit"
	"github.com/MrEthical07/zuauth/session"
)

// Session is the per-browser handshake state: the pending nonce and, once a
// proof has been accepted, the authenticated user.
type Session = session.Session

// AuthInput is the body of an authenticate request.
type AuthInput struct {
	// PCD is the serialized proof.
	PCD string `json:"pcd"`
	// Type names the PCD package. Empty selects the default ticket type.
	Type string `json:"type,omitempty"`
}

// AuthResult is returned by [Engine.Authenticate]. Which ticket fields are
// set depends on the configured [DisclosurePolicy].
type AuthResult struct {
	User       string
	Disclosure DisclosurePolicy

	TicketID            string
	AttendeeSemaphoreID string
	AttendeeEmail       string
}

// AnonymousTicket is the response body under [DisclosureAnonymous].
type AnonymousTicket struct {
	TicketID            string `json:"ticketId"`
	AttendeeSemaphoreID string `json:"attendeeSemaphoreId"`
}

// RevealedTicket is the response body under [DisclosureRevealedEmail].
type RevealedTicket struct {
	AttendeeEmail string `json:"attendeeEmail"`
}

// Response returns the JSON body sent back to the client.
func (r *AuthResult) Response() any {
	if r.Disclosure == DisclosureRevealedEmail {
		return RevealedTicket{AttendeeEmail: r.AttendeeEmail}
	}
	return AnonymousTicket{
		TicketID:            r.TicketID,
		AttendeeSemaphoreID: r.AttendeeSemaphoreID,
	}
}

// AuditEvent is a structured audit record emitted by the engine.
type AuditEvent = internalaudit.Event

// AuditSink receives [AuditEvent] values from the engine's audit dispatcher.
type AuditSink = internalaudit.Sink

// NoOpSink is an [AuditSink] that silently discards all events.
type NoOpSink = internalaudit.NoOpSink

// ChannelSink is a buffered channel-based [AuditSink].
type ChannelSink = internalaudit.ChannelSink

// JSONWriterSink is an [AuditSink] that writes JSON-encoded events to an
// [io.Writer].
type JSONWriterSink = internalaudit.JSONWriterSink

// SlogSink is an [AuditSink] that logs events through a [slog.Logger].
type SlogSink = internalaudit.SlogSink

// NewChannelSink creates a [ChannelSink] with the given buffer capacity.
func NewChannelSink(buffer int) *ChannelSink {
	return internalaudit.NewChannelSink(buffer)
}

// NewJSONWriterSink creates a [JSONWriterSink] that writes to w.
func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	return internalaudit.NewJSONWriterSink(w)
}

// NewSlogSink creates a [SlogSink]. A nil logger uses [slog.Default].
func NewSlogSink(logger *slog.Logger) *SlogSink {
	return internalaudit.NewSlogSink(logger)
}
