package flows

import (
	"context"
	"fmt"

	"github.com/MrEthical07/zuauth/session"
)

// NonceMetrics carries metric IDs needed by the nonce flow.
type NonceMetrics struct {
	NonceIssued int
	RateLimited int
}

// NonceEvents carries audit event names used by the nonce flow.
type NonceEvents struct {
	NonceIssued string
	RateLimited string
}

// NonceErrors carries host-level sentinel errors used by the nonce flow.
type NonceErrors struct {
	EngineNotReady error
	RateLimited    error
	Internal       error
}

// NonceDeps captures nonce issuance dependencies.
type NonceDeps struct {
	NonceSize int

	ClientIPFromContext func(context.Context) string
	CheckNonceRate      func(context.Context, string) error
	NewNonce            func(int) (string, error)
	SaveSession         func(context.Context, *session.Session) error

	MetricInc     func(int)
	EmitAudit     func(context.Context, string, bool, *session.Session, string, error)
	EmitRateLimit func(context.Context, string)
	Warn          func(string, ...any)

	Metrics NonceMetrics
	Events  NonceEvents
	Errors  NonceErrors
}

func (deps *NonceDeps) fill() {
	if deps.MetricInc == nil {
		deps.MetricInc = func(int) {}
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
	if deps.ClientIPFromContext == nil {
		deps.ClientIPFromContext = func(context.Context) string { return "" }
	}
}

// RunIssueNonce generates a fresh challenge, stores it on sess and persists
// sess. Any earlier pending nonce is overwritten. On failure sess is left
// unchanged.
func RunIssueNonce(ctx context.Context, sess *session.Session, deps NonceDeps) (string, error) {
	deps.fill()
	if sess == nil || deps.NewNonce == nil || deps.SaveSession == nil {
		return "", deps.Errors.EngineNotReady
	}

	if deps.CheckNonceRate != nil {
		if err := deps.CheckNonceRate(ctx, deps.ClientIPFromContext(ctx)); err != nil {
			if !isRateLimited(err, deps.Errors.RateLimited) {
				deps.Warn("nonce rate check failed", "error", err)
				return "", fmt.Errorf("%w: %v", deps.Errors.Internal, err)
			}
			deps.MetricInc(deps.Metrics.RateLimited)
			deps.EmitAudit(ctx, deps.Events.RateLimited, false, sess, "", deps.Errors.RateLimited)
			deps.EmitRateLimit(ctx, "nonce")
			return "", deps.Errors.RateLimited
		}
	}

	nonce, err := deps.NewNonce(deps.NonceSize)
	if err != nil {
		return "", fmt.Errorf("%w: %v", deps.Errors.Internal, err)
	}

	previous := sess.Nonce
	sess.Nonce = nonce
	if err := deps.SaveSession(ctx, sess); err != nil {
		sess.Nonce = previous
		return "", fmt.Errorf("%w: %v", deps.Errors.Internal, err)
	}

	deps.MetricInc(deps.Metrics.NonceIssued)
	deps.EmitAudit(ctx, deps.Events.NonceIssued, true, sess, "", nil)
	return nonce, nil
}
