package flows

import (
	"context"
	"fmt"

	"github.com/MrEthical07/zuauth/session"
)

// LogoutDeps captures logout flow dependencies.
type LogoutDeps struct {
	DestroySession func(context.Context, *session.Session) error

	MetricInc func(int)
	EmitAudit func(context.Context, string, bool, *session.Session, string, error)

	LogoutMetric int
	LogoutEvent  string

	EngineNotReady error
	Internal       error
}

// RunLogout destroys sess. Nullifiers accepted for the session stay claimed,
// so the same proof cannot log in again after logout.
func RunLogout(ctx context.Context, sess *session.Session, deps LogoutDeps) error {
	if sess == nil || deps.DestroySession == nil {
		return deps.EngineNotReady
	}
	if deps.MetricInc == nil {
		deps.MetricInc = func(int) {}
	}
	if deps.EmitAudit == nil {
		deps.EmitAudit = func(context.Context, string, bool, *session.Session, string, error) {}
	}

	// Snapshot for the audit record; Destroy clears the user in place.
	before := sess.Clone()
	if err := deps.DestroySession(ctx, sess); err != nil {
		return fmt.Errorf("%w: %v", deps.Internal, err)
	}

	deps.MetricInc(deps.LogoutMetric)
	deps.EmitAudit(ctx, deps.LogoutEvent, true, before, "", nil)
	return nil
}

// RunCurrentUser returns the authenticated user of sess or unauthenticated.
func RunCurrentUser(sess *session.Session, unauthenticated error) (string, error) {
	if sess == nil || !sess.Authenticated() {
		return "", unauthenticated
	}
	return sess.User, nil
}
