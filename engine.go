package zuauth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/MrEthical07/zuauth/internal"
	"github.com/MrEthical07/zuauth/internal/audit"
	internalflows "github.com/MrEthical07/zuauth/internal/flows"
	"github.com/MrEthical07/zuauth/internal/rate"
	"github.com/MrEthical07/zuauth/pcd"
	"github.com/MrEthical07/zuauth/session"
	"github.com/redis/go-redis/v9"
)

// Engine runs the nonce / proof / session handshake.
//
// Engine instances are built once by [Builder.Build] and are safe for
// concurrent use.
type Engine struct {
	config      Config
	redis       redis.UniversalClient
	sessions    *session.Manager
	verifier    *pcd.Verifier
	nullifiers  NullifierStore
	rateLimiter *rate.Limiter
	audit       *audit.Dispatcher
	metrics     *Metrics
	logger      *slog.Logger
}

// Close describes the close operation and its observable behavior.
//
// Close drains pending audit events. The Redis client is owned by the caller
// and stays open.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	e.audit.Close()
}

// AuditDropped reports how many audit events were dropped on a full buffer.
func (e *Engine) AuditDropped() uint64 {
	if e == nil {
		return 0
	}
	return e.audit.Dropped()
}

// AuditDroppedByType breaks AuditDropped down by event type. Logins and
// logouts never appear: they wait for buffer room instead of dropping.
func (e *Engine) AuditDroppedByType() map[string]uint64 {
	if e == nil {
		return map[string]uint64{}
	}
	return e.audit.DroppedByType()
}

// MetricsSnapshot describes the metricssnapshot operation and its observable behavior.
//
// MetricsSnapshot returns empty maps when metrics are disabled.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return e.metrics.Snapshot()
}

// Config returns a copy of the engine configuration.
func (e *Engine) Config() Config {
	return cloneConfig(e.config)
}

// Logger returns the engine logger.
func (e *Engine) Logger() *slog.Logger {
	if e == nil || e.logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return e.logger
}

// Ping checks the session and replay backends.
func (e *Engine) Ping(ctx context.Context) error {
	if e == nil || e.sessions == nil {
		return ErrEngineNotReady
	}
	if err := e.sessions.Ping(ctx); err != nil {
		return err
	}
	if e.redis != nil {
		if err := e.redis.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("%w: %v", session.ErrRedisUnavailable, err)
		}
	}
	return nil
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Inc(id)
}

func (e *Engine) metricObserve(id MetricID, d time.Duration) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Observe(id, d)
}

// LoadSession returns the session named by the request cookie, or a fresh
// empty one. Only backend failures are errors.
func (e *Engine) LoadSession(r *http.Request) (*Session, error) {
	if e == nil || e.sessions == nil {
		return nil, ErrEngineNotReady
	}
	sess, err := e.sessions.Load(r)
	if err != nil {
		e.logger.Error("session load failed", "error", err)
		return nil, fmt.Errorf("%w: %v", ErrInternal, err)
	}
	return sess, nil
}

// IssueNonce describes the issuenonce operation and its observable behavior.
//
// IssueNonce stores a fresh challenge on sess, persists sess and writes its
// cookie to w before returning the nonce as a decimal string. A nonce issued
// earlier for the same session can no longer be used.
func (e *Engine) IssueNonce(ctx context.Context, w http.ResponseWriter, sess *Session) (string, error) {
	if e == nil || e.sessions == nil {
		return "", ErrEngineNotReady
	}
	return internalflows.RunIssueNonce(ctx, sess, e.nonceFlowDeps(w))
}

// Authenticate describes the authenticate operation and its observable behavior.
//
// Authenticate verifies the submitted proof against the pending nonce of
// sess. On success the nullifier is recorded, sess carries the derived user
// and the session cookie has been written to w. Every failure is terminal
// and leaves sess and the replay store untouched; use [HTTPStatus] and
// [Reason] to render it.
func (e *Engine) Authenticate(ctx context.Context, w http.ResponseWriter, sess *Session, in AuthInput) (*AuthResult, error) {
	if e == nil || e.sessions == nil {
		return nil, ErrEngineNotReady
	}
	res, err := internalflows.RunAuthenticate(ctx, sess, internalflows.AuthenticateInput{
		PCD:  in.PCD,
		Type: in.Type,
	}, e.authenticateFlowDeps(w))
	if err != nil {
		return nil, err
	}
	return &AuthResult{
		User:                res.User,
		Disclosure:          e.config.Auth.Disclosure,
		TicketID:            res.TicketID,
		AttendeeSemaphoreID: res.AttendeeSemaphoreID,
		AttendeeEmail:       res.AttendeeEmail,
	}, nil
}

// Logout destroys sess and expires its cookie.
func (e *Engine) Logout(ctx context.Context, w http.ResponseWriter, sess *Session) error {
	if e == nil || e.sessions == nil {
		return ErrEngineNotReady
	}
	return internalflows.RunLogout(ctx, sess, internalflows.LogoutDeps{
		DestroySession: func(ctx context.Context, s *session.Session) error {
			return e.sessions.Destroy(ctx, w, s)
		},
		MetricInc:      e.flowMetricInc,
		EmitAudit:      e.flowAudit,
		LogoutMetric:   int(MetricLogout),
		LogoutEvent:    auditEventLogout,
		EngineNotReady: ErrEngineNotReady,
		Internal:       ErrInternal,
	})
}

// CurrentUser returns the authenticated user of sess, or
// [ErrUnauthenticated].
func (e *Engine) CurrentUser(sess *Session) (string, error) {
	return internalflows.RunCurrentUser(sess, ErrUnauthenticated)
}

func (e *Engine) nonceFlowDeps(w http.ResponseWriter) internalflows.NonceDeps {
	return internalflows.NonceDeps{
		NonceSize:           e.config.Auth.NonceSize,
		ClientIPFromContext: clientIPFromContext,
		CheckNonceRate: func(ctx context.Context, ip string) error {
			return mapRateError(e.rateLimiter.CheckNonce(ctx, ip))
		},
		NewNonce: internal.NewNonce,
		SaveSession: func(ctx context.Context, s *session.Session) error {
			return e.sessions.Save(ctx, w, s)
		},
		MetricInc:     e.flowMetricInc,
		EmitAudit:     e.flowAudit,
		EmitRateLimit: e.emitRateLimit,
		Warn:          e.logger.Warn,
		Metrics: internalflows.NonceMetrics{
			NonceIssued: int(MetricNonceIssued),
			RateLimited: int(MetricRateLimitHit),
		},
		Events: internalflows.NonceEvents{
			NonceIssued: auditEventNonceIssued,
			RateLimited: auditEventRateLimited,
		},
		Errors: internalflows.NonceErrors{
			EngineNotReady: ErrEngineNotReady,
			RateLimited:    ErrRateLimited,
			Internal:       ErrInternal,
		},
	}
}

func (e *Engine) authenticateFlowDeps(w http.ResponseWriter) internalflows.AuthenticateDeps {
	var supported map[string]struct{}
	if len(e.config.Auth.SupportedEvents) > 0 {
		supported = make(map[string]struct{}, len(e.config.Auth.SupportedEvents))
		for _, id := range e.config.Auth.SupportedEvents {
			supported[id] = struct{}{}
		}
	}

	return internalflows.AuthenticateDeps{
		RevealEmail:         e.config.Auth.Disclosure == DisclosureRevealedEmail,
		SupportedEvents:     supported,
		ClientIPFromContext: clientIPFromContext,
		Now:                 time.Now,
		CheckAuthRate: func(ctx context.Context, ip string) error {
			return mapRateError(e.rateLimiter.CheckAuthenticate(ctx, ip))
		},
		IncrementAuthRate: func(ctx context.Context, ip string) error {
			return mapRateError(e.rateLimiter.IncrementAuthenticate(ctx, ip))
		},
		ResetAuthRate: func(ctx context.Context, ip string) error {
			return e.rateLimiter.ResetAuthenticate(ctx, ip)
		},
		Verify:           e.verifier.Verify,
		NullifierSeen:    e.nullifiers.Has,
		ClaimNullifier:   e.nullifiers.Claim,
		ReleaseNullifier: e.nullifiers.Release,
		SaveSession: func(ctx context.Context, s *session.Session) error {
			return e.sessions.Save(ctx, w, s)
		},
		NewSessionID: func() (string, error) {
			sid, err := internal.NewSessionID()
			return sid.String(), err
		},
		ForgetSession: e.sessions.Forget,
		MetricInc:     e.flowMetricInc,
		Observe: func(id int, d time.Duration) {
			e.metricObserve(MetricID(id), d)
		},
		EmitAudit:     e.flowAudit,
		EmitRateLimit: e.emitRateLimit,
		Warn:          e.logger.Warn,
		Error:         e.logger.Error,
		Metrics: internalflows.AuthenticateMetrics{
			Success:           int(MetricAuthSuccess),
			MissingPayload:    int(MetricAuthMissingPayload),
			InvalidProof:      int(MetricAuthInvalidProof),
			UntrustedSigner:   int(MetricAuthUntrustedSigner),
			NonceMismatch:     int(MetricAuthNonceMismatch),
			MissingNullifier:  int(MetricAuthMissingNullifier),
			ReplayDetected:    int(MetricReplayDetected),
			UnsupportedEvent:  int(MetricAuthUnsupportedEvent),
			InternalError:     int(MetricAuthInternalError),
			NullifierReleased: int(MetricNullifierReleased),
			RateLimited:       int(MetricRateLimitHit),
			VerifyLatency:     int(MetricVerifyLatency),
		},
		Events: internalflows.AuthenticateEvents{
			Success:     auditEventAuthSuccess,
			Rejected:    auditEventAuthRejected,
			RateLimited: auditEventRateLimited,
		},
		Errors: internalflows.AuthenticateErrors{
			EngineNotReady:   ErrEngineNotReady,
			MissingPayload:   ErrMissingPayload,
			InvalidProof:     ErrInvalidProof,
			MalformedProof:   ErrMalformedProof,
			EmailNotRevealed: ErrEmailNotRevealed,
			UntrustedSigner:  ErrUntrustedSigner,
			NonceMismatch:    ErrNonceMismatch,
			MissingNullifier: ErrMissingNullifier,
			ReplayedProof:    ErrReplayedProof,
			UnsupportedEvent: ErrUnsupportedEvent,
			Internal:         ErrInternal,
			RateLimited:      ErrRateLimited,
		},
	}
}

func (e *Engine) flowMetricInc(id int) {
	e.metricInc(MetricID(id))
}

func mapRateError(err error) error {
	if errors.Is(err, rate.ErrRateLimited) {
		return ErrRateLimited
	}
	return err
}
