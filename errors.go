package zuauth

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

var (
	// ErrMissingPayload is returned when a request carries no proof.
	ErrMissingPayload = errors.New("missing pcd payload")
	// ErrInvalidProof is returned when a proof fails cryptographic verification.
	ErrInvalidProof = errors.New("invalid pcd proof")
	// ErrMalformedProof is an [ErrInvalidProof] whose payload could not be decoded.
	ErrMalformedProof = fmt.Errorf("%w: malformed payload", ErrInvalidProof)
	// ErrEmailNotRevealed is an [ErrInvalidProof] that withholds the attendee
	// email under a revealed-email disclosure policy.
	ErrEmailNotRevealed = fmt.Errorf("%w: attendee email not revealed", ErrInvalidProof)
	// ErrUntrustedSigner is returned when the ticket issuer key is not the trusted one.
	ErrUntrustedSigner = errors.New("untrusted pcd signer")
	// ErrNonceMismatch is returned when the proof watermark differs from the session nonce.
	ErrNonceMismatch = errors.New("pcd watermark does not match nonce")
	// ErrMissingNullifier is returned when the proof reveals no nullifier hash.
	ErrMissingNullifier = errors.New("pcd nullifier not defined")
	// ErrReplayedProof is returned when the nullifier was already accepted.
	ErrReplayedProof = errors.New("pcd already used")
	// ErrUnsupportedEvent is returned when the ticket is for an event outside the allowlist.
	ErrUnsupportedEvent = errors.New("pcd event not supported")
	// ErrInternal wraps unexpected failures.
	ErrInternal = errors.New("internal error")
	// ErrUnauthenticated is returned when a session has no authenticated user.
	ErrUnauthenticated = errors.New("not authenticated")
	// ErrRateLimited is returned when a client exceeds a request budget.
	ErrRateLimited = errors.New("rate limited")
	// ErrEngineNotReady is returned by a nil or partially built Engine.
	ErrEngineNotReady = errors.New("engine not initialized")
)

// HTTPStatus maps an engine error to its response status code.
func HTTPStatus(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrMissingPayload),
		errors.Is(err, ErrMalformedProof),
		errors.Is(err, ErrUnsupportedEvent):
		return http.StatusBadRequest
	case errors.Is(err, ErrInvalidProof),
		errors.Is(err, ErrUntrustedSigner),
		errors.Is(err, ErrNonceMismatch),
		errors.Is(err, ErrMissingNullifier),
		errors.Is(err, ErrReplayedProof),
		errors.Is(err, ErrUnauthenticated):
		return http.StatusUnauthorized
	case errors.Is(err, ErrRateLimited):
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// Reason returns the human-readable text sent to clients for err. Internal
// errors carry their detail.
func Reason(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrMissingPayload):
		return "No PCD specified"
	case errors.Is(err, ErrMalformedProof):
		return "invalid payload"
	case errors.Is(err, ErrEmailNotRevealed):
		return "attendee email not revealed"
	case errors.Is(err, ErrInvalidProof):
		return "ZK ticket PCD is not valid"
	case errors.Is(err, ErrUntrustedSigner):
		return "PCD signer is not trusted"
	case errors.Is(err, ErrNonceMismatch):
		return "PCD watermark doesn't match"
	case errors.Is(err, ErrMissingNullifier):
		return "PCD ticket nullifier has not been defined"
	case errors.Is(err, ErrReplayedProof):
		return "PCD ticket has already been used"
	case errors.Is(err, ErrUnsupportedEvent):
		return "PCD ticket is not for a supported event"
	case errors.Is(err, ErrUnauthenticated):
		return "Not authenticated"
	case errors.Is(err, ErrRateLimited):
		return "Too many requests"
	default:
		return "Unknown error: " + strings.TrimPrefix(err.Error(), ErrInternal.Error()+": ")
	}
}
