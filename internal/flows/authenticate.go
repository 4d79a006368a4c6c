package flows

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/MrEthical07/zuauth/internal/stores"
	"github.com/MrEthical07/zuauth/pcd"
	"github.com/MrEthical07/zuauth/session"
)

// AuthenticateInput is the flow-local authenticate request.
type AuthenticateInput struct {
	PCD  string
	Type string
}

// AuthenticateResult is the flow-local authenticate response. Only the
// fields allowed by the disclosure policy are set.
type AuthenticateResult struct {
	User                string
	NullifierHash       string
	TicketID            string
	AttendeeSemaphoreID string
	AttendeeEmail       string
}

// AuthenticateMetrics carries metric IDs needed by the authenticate flow.
type AuthenticateMetrics struct {
	Success           int
	MissingPayload    int
	InvalidProof      int
	UntrustedSigner   int
	NonceMismatch     int
	MissingNullifier  int
	ReplayDetected    int
	UnsupportedEvent  int
	InternalError     int
	NullifierReleased int
	RateLimited       int
	VerifyLatency     int
}

// AuthenticateEvents carries audit event names used by the authenticate flow.
type AuthenticateEvents struct {
	Success     string
	Rejected    string
	RateLimited string
}

// AuthenticateErrors carries host-level sentinel errors used by the
// authenticate flow.
type AuthenticateErrors struct {
	EngineNotReady   error
	MissingPayload   error
	InvalidProof     error
	MalformedProof   error
	EmailNotRevealed error
	UntrustedSigner  error
	NonceMismatch    error
	MissingNullifier error
	ReplayedProof    error
	UnsupportedEvent error
	Internal         error
	RateLimited      error
}

// AuthenticateDeps captures authenticate dependencies.
type AuthenticateDeps struct {
	// RevealEmail selects the revealed-email disclosure policy; otherwise the
	// session user is the nullifier hash.
	RevealEmail bool
	// SupportedEvents is the event allowlist. Empty accepts every event.
	SupportedEvents map[string]struct{}

	ClientIPFromContext func(context.Context) string
	Now                 func() time.Time

	CheckAuthRate     func(context.Context, string) error
	IncrementAuthRate func(context.Context, string) error
	ResetAuthRate     func(context.Context, string) error

	Verify func(ctx context.Context, pcdType, serialized string) (*pcd.Claim, error)

	NullifierSeen    func(context.Context, string) (bool, error)
	ClaimNullifier   func(context.Context, string, *stores.NullifierRecord) (bool, error)
	ReleaseNullifier func(context.Context, string, string) error

	SaveSession func(context.Context, *session.Session) error
	// NewSessionID, when set, gives the logged-in session a fresh id so a
	// cookie planted before login never names an authenticated session.
	NewSessionID func() (string, error)
	// ForgetSession drops the pre-login record once the renamed session is
	// saved.
	ForgetSession func(context.Context, string) error

	MetricInc     func(int)
	Observe       func(int, time.Duration)
	EmitAudit     func(context.Context, string, bool, *session.Session, string, error)
	EmitRateLimit func(context.Context, string)
	Warn          func(string, ...any)
	Error         func(string, ...any)

	Metrics AuthenticateMetrics
	Events  AuthenticateEvents
	Errors  AuthenticateErrors
}

func (deps *AuthenticateDeps) fill() {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.MetricInc == nil {
		deps.MetricInc = func(int) {}
	}
	if deps.Observe == nil {
		deps.Observe = func(int, time.Duration) {}
	}
	if deps.EmitAudit == nil {
		deps.EmitAudit = func(context.Context, string, bool, *session.Session, string, error) {}
	}
	if deps.EmitRateLimit == nil {
		deps.EmitRateLimit = func(context.Context, string) {}
	}
	if deps.Warn == nil {
		deps.Warn = func(string, ...any) {}
	}
	if deps.Error == nil {
		deps.Error = func(string, ...any) {}
	}
	if deps.ClientIPFromContext == nil {
		deps.ClientIPFromContext = func(context.Context) string { return "" }
	}
}

// RunAuthenticate checks a submitted ticket proof against the session's
// pending nonce and, on success, claims its nullifier and logs the session
// in.
//
// Checks run in a fixed order and stop at the first failure: payload,
// proof, signer, watermark, nullifier presence, nullifier reuse, event
// allowlist. A successful login moves the session to a fresh id. A rejected request mutates neither the session nor the
// nullifier store. A panic anywhere in the pipeline is reported as an
// internal error.
func RunAuthenticate(ctx context.Context, sess *session.Session, in AuthenticateInput, deps AuthenticateDeps) (result *AuthenticateResult, err error) {
	deps.fill()
	if sess == nil ||
		deps.Verify == nil ||
		deps.NullifierSeen == nil ||
		deps.ClaimNullifier == nil ||
		deps.SaveSession == nil {
		return nil, deps.Errors.EngineNotReady
	}

	defer func() {
		if r := recover(); r != nil {
			deps.MetricInc(deps.Metrics.InternalError)
			deps.Error("authenticate panic", "panic", r)
			result = nil
			err = fmt.Errorf("%w: %v", deps.Errors.Internal, r)
		}
	}()

	ip := deps.ClientIPFromContext(ctx)

	if deps.CheckAuthRate != nil {
		if rerr := deps.CheckAuthRate(ctx, ip); rerr != nil {
			return nil, deps.rateLimited(ctx, sess, rerr)
		}
	}

	reject := func(metric int, nullifier string, cause error) (*AuthenticateResult, error) {
		deps.MetricInc(metric)
		deps.Warn("authenticate rejected", "reason", cause.Error(), "session_id", sess.SessionID)
		deps.EmitAudit(ctx, deps.Events.Rejected, false, sess, nullifier, cause)
		if deps.IncrementAuthRate != nil {
			if rerr := deps.IncrementAuthRate(ctx, ip); rerr != nil && !isRateLimited(rerr, deps.Errors.RateLimited) {
				deps.Warn("authenticate rate increment failed", "error", rerr)
			}
		}
		return nil, cause
	}

	// 1. payload
	if in.PCD == "" {
		return reject(deps.Metrics.MissingPayload, "", deps.Errors.MissingPayload)
	}

	// 2-3. proof and signer
	started := deps.Now()
	claim, verr := deps.Verify(ctx, in.Type, in.PCD)
	deps.Observe(deps.Metrics.VerifyLatency, deps.Now().Sub(started))
	if verr != nil {
		switch {
		case errors.Is(verr, pcd.ErrMalformed):
			return reject(deps.Metrics.InvalidProof, "", fmt.Errorf("%w: %v", deps.Errors.MalformedProof, verr))
		case errors.Is(verr, pcd.ErrVerificationFailed):
			return reject(deps.Metrics.InvalidProof, "", fmt.Errorf("%w: %v", deps.Errors.InvalidProof, verr))
		case errors.Is(verr, pcd.ErrUntrustedSigner):
			return reject(deps.Metrics.UntrustedSigner, "", deps.Errors.UntrustedSigner)
		default:
			return nil, deps.internal(ctx, sess, "", verr)
		}
	}
	if claim == nil {
		return nil, deps.internal(ctx, sess, "", errors.New("verifier returned no claim"))
	}

	// 4. watermark
	if sess.Nonce == "" || claim.Watermark != sess.Nonce {
		return reject(deps.Metrics.NonceMismatch, "", deps.Errors.NonceMismatch)
	}

	// 5. nullifier defined
	nullifier := claim.NullifierHash
	if nullifier == "" {
		return reject(deps.Metrics.MissingNullifier, "", deps.Errors.MissingNullifier)
	}

	// 6. nullifier unused
	seen, serr := deps.NullifierSeen(ctx, nullifier)
	if serr != nil {
		return nil, deps.internal(ctx, sess, nullifier, serr)
	}
	if seen {
		return reject(deps.Metrics.ReplayDetected, nullifier, deps.Errors.ReplayedProof)
	}

	// 7. event allowlist
	if !eventSupported(claim, deps.SupportedEvents) {
		return reject(deps.Metrics.UnsupportedEvent, nullifier, deps.Errors.UnsupportedEvent)
	}

	user := nullifier
	if deps.RevealEmail {
		user = claim.PartialTicket.AttendeeEmail
		if user == "" {
			return reject(deps.Metrics.InvalidProof, nullifier, deps.Errors.EmailNotRevealed)
		}
	}

	updated := sess.Clone()
	updated.User = user
	if deps.NewSessionID != nil {
		sid, ierr := deps.NewSessionID()
		if ierr != nil {
			return nil, deps.internal(ctx, sess, nullifier, ierr)
		}
		updated.SessionID = sid
	}

	won, cerr := deps.ClaimNullifier(ctx, nullifier, &stores.NullifierRecord{
		SessionID:  updated.SessionID,
		AcceptedAt: deps.Now().Unix(),
	})
	if cerr != nil {
		return nil, deps.internal(ctx, sess, nullifier, cerr)
	}
	if !won {
		return reject(deps.Metrics.ReplayDetected, nullifier, deps.Errors.ReplayedProof)
	}

	if err := deps.SaveSession(ctx, updated); err != nil {
		if deps.ReleaseNullifier != nil {
			if rerr := deps.ReleaseNullifier(ctx, nullifier, updated.SessionID); rerr != nil {
				deps.Error("nullifier release failed", "error", rerr, "nullifier", nullifier)
			} else {
				deps.MetricInc(deps.Metrics.NullifierReleased)
			}
		}
		return nil, deps.internal(ctx, sess, nullifier, err)
	}

	// The old record never held a user, so a failed delete leaves nothing
	// to hijack.
	if updated.SessionID != sess.SessionID && deps.ForgetSession != nil {
		if ferr := deps.ForgetSession(ctx, sess.SessionID); ferr != nil {
			deps.Warn("pre-login session cleanup failed", "error", ferr, "session_id", sess.SessionID)
		}
	}
	*sess = *updated

	if deps.ResetAuthRate != nil {
		if rerr := deps.ResetAuthRate(ctx, ip); rerr != nil {
			deps.Warn("authenticate rate reset failed", "error", rerr)
		}
	}

	deps.MetricInc(deps.Metrics.Success)
	deps.EmitAudit(ctx, deps.Events.Success, true, sess, nullifier, nil)

	out := &AuthenticateResult{
		User:          user,
		NullifierHash: nullifier,
	}
	if deps.RevealEmail {
		out.AttendeeEmail = claim.PartialTicket.AttendeeEmail
	} else {
		out.TicketID = claim.PartialTicket.TicketID
		out.AttendeeSemaphoreID = claim.PartialTicket.AttendeeSemaphoreID
	}
	return out, nil
}

func (deps *AuthenticateDeps) rateLimited(ctx context.Context, sess *session.Session, cause error) error {
	if !isRateLimited(cause, deps.Errors.RateLimited) {
		return deps.internal(ctx, sess, "", cause)
	}
	deps.MetricInc(deps.Metrics.RateLimited)
	deps.EmitAudit(ctx, deps.Events.RateLimited, false, sess, "", deps.Errors.RateLimited)
	deps.EmitRateLimit(ctx, "authenticate")
	return deps.Errors.RateLimited
}

func (deps *AuthenticateDeps) internal(ctx context.Context, sess *session.Session, nullifier string, cause error) error {
	deps.MetricInc(deps.Metrics.InternalError)
	deps.Error("authenticate failed", "error", cause, "session_id", sess.SessionID)
	err := fmt.Errorf("%w: %v", deps.Errors.Internal, cause)
	deps.EmitAudit(ctx, deps.Events.Rejected, false, sess, nullifier, err)
	return err
}

// eventSupported applies the allowlist: the revealed event id must be
// listed, or, without one, every entry of the valid event list must be.
func eventSupported(claim *pcd.Claim, allowed map[string]struct{}) bool {
	if len(allowed) == 0 {
		return true
	}
	if id := claim.PartialTicket.EventID; id != "" {
		_, ok := allowed[id]
		return ok
	}
	if len(claim.ValidEventIDs) == 0 {
		return false
	}
	for _, id := range claim.ValidEventIDs {
		if _, ok := allowed[id]; !ok {
			return false
		}
	}
	return true
}
