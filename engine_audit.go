package zuauth

import (
	"context"
	"errors"
	"time"

	"github.com/MrEthical07/zuauth/internal/audit"
	"github.com/MrEthical07/zuauth/session"
)

const (
	auditEventNonceIssued  = audit.EventNonceIssued
	auditEventAuthSuccess  = audit.EventAuthSuccess
	auditEventAuthRejected = audit.EventAuthRejected
	auditEventLogout       = audit.EventLogout
	auditEventRateLimited  = audit.EventRateLimited
)

// AuditErrorCode is the stable reason code carried by rejected audit events.
type AuditErrorCode string

const (
	auditErrMissingPayload   AuditErrorCode = "missing_payload"
	auditErrMalformedProof   AuditErrorCode = "malformed_proof"
	auditErrEmailNotRevealed AuditErrorCode = "email_not_revealed"
	auditErrInvalidProof     AuditErrorCode = "invalid_proof"
	auditErrUntrustedSigner  AuditErrorCode = "untrusted_signer"
	auditErrNonceMismatch    AuditErrorCode = "nonce_mismatch"
	auditErrMissingNullifier AuditErrorCode = "missing_nullifier"
	auditErrReplayedProof    AuditErrorCode = "replayed_proof"
	auditErrUnsupportedEvent AuditErrorCode = "unsupported_event"
	auditErrRateLimited      AuditErrorCode = "rate_limited"
	auditErrInternal         AuditErrorCode = "internal_error"
)

func (e *Engine) emitAudit(
	ctx context.Context,
	eventType string,
	success bool,
	sessionID string,
	user string,
	nullifier string,
	err error,
	metadataBuilder func() map[string]string,
) {
	if e == nil || e.audit == nil {
		return
	}

	var metadata map[string]string
	if metadataBuilder != nil {
		metadata = metadataBuilder()
	}

	event := AuditEvent{
		Timestamp: time.Now().UTC(),
		EventType: eventType,
		SessionID: sessionID,
		User:      user,
		Nullifier: nullifier,
		IP:        clientIPFromContext(ctx),
		Success:   success,
		Metadata:  metadata,
	}
	if code := auditErrorCode(err); code != "" {
		event.Reason = string(code)
	}
	if ua := userAgentFromContext(ctx); ua != "" {
		if event.Metadata == nil {
			event.Metadata = make(map[string]string, 1)
		}
		event.Metadata["user_agent"] = ua
	}

	e.audit.Emit(ctx, event)
}

// flowAudit adapts emitAudit to the flow callback shape.
func (e *Engine) flowAudit(ctx context.Context, eventType string, success bool, sess *session.Session, nullifier string, err error) {
	var sid, user string
	if sess != nil {
		sid, user = sess.SessionID, sess.User
	}
	var metadata func() map[string]string
	if eventType == auditEventAuthSuccess {
		metadata = func() map[string]string {
			return map[string]string{
				"disclosure": e.config.Auth.Disclosure.String(),
			}
		}
	}
	e.emitAudit(ctx, eventType, success, sid, user, nullifier, err, metadata)
}

// emitRateLimit logs a throttled request. The audit record is emitted by
// the flow itself.
func (e *Engine) emitRateLimit(ctx context.Context, scope string) {
	e.logger.Warn("rate limit hit", "scope", scope, "ip", clientIPFromContext(ctx))
}

func auditErrorCode(err error) AuditErrorCode {
	if err == nil {
		return ""
	}

	switch {
	case errors.Is(err, ErrMissingPayload):
		return auditErrMissingPayload
	case errors.Is(err, ErrMalformedProof):
		return auditErrMalformedProof
	case errors.Is(err, ErrEmailNotRevealed):
		return auditErrEmailNotRevealed
	case errors.Is(err, ErrInvalidProof):
		return auditErrInvalidProof
	case errors.Is(err, ErrUntrustedSigner):
		return auditErrUntrustedSigner
	case errors.Is(err, ErrNonceMismatch):
		return auditErrNonceMismatch
	case errors.Is(err, ErrMissingNullifier):
		return auditErrMissingNullifier
	case errors.Is(err, ErrReplayedProof):
		return auditErrReplayedProof
	case errors.Is(err, ErrUnsupportedEvent):
		return auditErrUnsupportedEvent
	case errors.Is(err, ErrRateLimited):
		return auditErrRateLimited
	default:
		return auditErrInternal
	}
}
