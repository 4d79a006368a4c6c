package flows

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/MrEthical07/zuauth/internal/stores"
	"github.com/MrEthical07/zuauth/pcd"
	"github.com/MrEthical07/zuauth/session"
)

var (
	errNotReady     = errors.New("not ready")
	errMissing      = errors.New("missing")
	errInvalid      = errors.New("invalid")
	errMalformed    = fmt.Errorf("%w: malformed", errInvalid)
	errNoEmail      = fmt.Errorf("%w: no email", errInvalid)
	errUntrusted    = errors.New("untrusted")
	errNonce        = errors.New("nonce")
	errNoNullifier  = errors.New("no nullifier")
	errReplay       = errors.New("replay")
	errEvent        = errors.New("event")
	errInternal     = errors.New("internal")
	errRateLimited  = errors.New("rate limited")
	errUnauthorized = errors.New("unauthenticated")
)

type authHarness struct {
	claim     *pcd.Claim
	verifyErr error
	store     *stores.MemoryNullifierStore
	saved     []*session.Session
	saveErr   error
	metrics   map[int]int
	verified  int
}

const (
	mSuccess = iota + 1
	mMissing
	mInvalid
	mUntrusted
	mNonce
	mNoNullifier
	mReplay
	mEvent
	mInternal
	mReleased
	mRate
	mLatency
)

func newAuthHarness(nonce string) *authHarness {
	return &authHarness{
		claim: &pcd.Claim{
			Watermark:     nonce,
			NullifierHash: "777",
			PartialTicket: pcd.PartialTicket{
				TicketID:            "t-1",
				EventID:             "A",
				AttendeeEmail:       "alice@example.com",
				AttendeeSemaphoreID: "42",
			},
		},
		store:   stores.NewMemoryNullifierStore(),
		metrics: map[int]int{},
	}
}

func (h *authHarness) deps() AuthenticateDeps {
	return AuthenticateDeps{
		Verify: func(_ context.Context, _, _ string) (*pcd.Claim, error) {
			h.verified++
			if h.verifyErr != nil {
				if errors.Is(h.verifyErr, pcd.ErrUntrustedSigner) {
					return h.claim, h.verifyErr
				}
				return nil, h.verifyErr
			}
			c := *h.claim
			return &c, nil
		},
		NullifierSeen:    h.store.Has,
		ClaimNullifier:   h.store.Claim,
		ReleaseNullifier: h.store.Release,
		SaveSession: func(_ context.Context, s *session.Session) error {
			if h.saveErr != nil {
				return h.saveErr
			}
			h.saved = append(h.saved, s.Clone())
			return nil
		},
		MetricInc: func(id int) { h.metrics[id]++ },
		Metrics: AuthenticateMetrics{
			Success:           mSuccess,
			MissingPayload:    mMissing,
			InvalidProof:      mInvalid,
			UntrustedSigner:   mUntrusted,
			NonceMismatch:     mNonce,
			MissingNullifier:  mNoNullifier,
			ReplayDetected:    mReplay,
			UnsupportedEvent:  mEvent,
			InternalError:     mInternal,
			NullifierReleased: mReleased,
			RateLimited:       mRate,
			VerifyLatency:     mLatency,
		},
		Errors: AuthenticateErrors{
			EngineNotReady:   errNotReady,
			MissingPayload:   errMissing,
			InvalidProof:     errInvalid,
			MalformedProof:   errMalformed,
			EmailNotRevealed: errNoEmail,
			UntrustedSigner:  errUntrusted,
			NonceMismatch:    errNonce,
			MissingNullifier: errNoNullifier,
			ReplayedProof:    errReplay,
			UnsupportedEvent: errEvent,
			Internal:         errInternal,
			RateLimited:      errRateLimited,
		},
	}
}

func pendingSession(nonce string) *session.Session {
	return &session.Session{SessionID: "sid-1", Nonce: nonce}
}

func TestAuthenticateAnonymousSuccess(t *testing.T) {
	h := newAuthHarness("123")
	sess := pendingSession("123")

	res, err := RunAuthenticate(context.Background(), sess, AuthenticateInput{PCD: "x"}, h.deps())
	if err != nil {
		t.Fatalf("authenticate: %v", err)
	}
	if res.User != "777" || sess.User != "777" {
		t.Fatalf("expected nullifier as user, got result=%q session=%q", res.User, sess.User)
	}
	if res.TicketID != "t-1" || res.AttendeeSemaphoreID != "42" || res.AttendeeEmail != "" {
		t.Fatalf("unexpected disclosure %+v", res)
	}
	if len(h.saved) != 1 || h.saved[0].User != "777" {
		t.Fatalf("expected one save with user set, got %+v", h.saved)
	}
	if h.metrics[mSuccess] != 1 {
		t.Fatalf("expected success metric, got %v", h.metrics)
	}
	if has, _ := h.store.Has(context.Background(), "777"); !has {
		t.Fatal("expected nullifier claimed")
	}
}

func TestAuthenticateRevealedEmail(t *testing.T) {
	h := newAuthHarness("123")
	deps := h.deps()
	deps.RevealEmail = true

	res, err := RunAuthenticate(context.Background(), pendingSession("123"), AuthenticateInput{PCD: "x"}, deps)
	if err != nil {
		t.Fatalf("authenticate: %v", err)
	}
	if res.User != "alice@example.com" || res.AttendeeEmail != "alice@example.com" || res.TicketID != "" {
		t.Fatalf("unexpected result %+v", res)
	}

	h = newAuthHarness("123")
	h.claim.PartialTicket.AttendeeEmail = ""
	deps = h.deps()
	deps.RevealEmail = true
	sess := pendingSession("123")
	if _, err := RunAuthenticate(context.Background(), sess, AuthenticateInput{PCD: "x"}, deps); !errors.Is(err, errNoEmail) {
		t.Fatalf("expected email-not-revealed, got %v", err)
	}
	if sess.User != "" || h.store.Len() != 0 {
		t.Fatal("rejection must not mutate session or store")
	}
}

func TestAuthenticateRejections(t *testing.T) {
	cases := []struct {
		name   string
		input  string
		nonce  string
		mutate func(h *authHarness)
		want   error
		metric int
	}{
		{name: "missing payload", input: "", nonce: "123", want: errMissing, metric: mMissing},
		{name: "malformed", input: "x", nonce: "123", mutate: func(h *authHarness) {
			h.verifyErr = fmt.Errorf("%w: bad json", pcd.ErrMalformed)
		}, want: errMalformed, metric: mInvalid},
		{name: "invalid proof", input: "x", nonce: "123", mutate: func(h *authHarness) {
			h.verifyErr = pcd.ErrVerificationFailed
		}, want: errInvalid, metric: mInvalid},
		{name: "untrusted signer", input: "x", nonce: "123", mutate: func(h *authHarness) {
			h.verifyErr = pcd.ErrUntrustedSigner
		}, want: errUntrusted, metric: mUntrusted},
		{name: "nonce mismatch", input: "x", nonce: "124", want: errNonce, metric: mNonce},
		{name: "no pending nonce", input: "x", nonce: "", mutate: func(h *authHarness) {
			h.claim.Watermark = ""
		}, want: errNonce, metric: mNonce},
		{name: "missing nullifier", input: "x", nonce: "123", mutate: func(h *authHarness) {
			h.claim.NullifierHash = ""
		}, want: errNoNullifier, metric: mNoNullifier},
		{name: "replayed", input: "x", nonce: "123", mutate: func(h *authHarness) {
			h.store.Claim(context.Background(), "777", &stores.NullifierRecord{SessionID: "other"})
		}, want: errReplay, metric: mReplay},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := newAuthHarness("123")
			if tc.mutate != nil {
				tc.mutate(h)
			}
			sess := pendingSession(tc.nonce)
			before := sess.Clone()

			_, err := RunAuthenticate(context.Background(), sess, AuthenticateInput{PCD: tc.input}, h.deps())
			if !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
			if h.metrics[tc.metric] != 1 {
				t.Fatalf("expected metric %d incremented, got %v", tc.metric, h.metrics)
			}
			if *sess != *before || len(h.saved) != 0 {
				t.Fatal("rejection must not mutate the session")
			}
		})
	}
}

func TestAuthenticateUntrustedSignerCheckedBeforeNonceAndNullifier(t *testing.T) {
	h := newAuthHarness("999")
	h.verifyErr = pcd.ErrUntrustedSigner
	h.claim.NullifierHash = ""
	h.store.Claim(context.Background(), "777", nil)

	_, err := RunAuthenticate(context.Background(), pendingSession("123"), AuthenticateInput{PCD: "x"}, h.deps())
	if !errors.Is(err, errUntrusted) {
		t.Fatalf("expected untrusted signer first, got %v", err)
	}
}

func TestAuthenticateEventAllowlist(t *testing.T) {
	allowed := map[string]struct{}{"A": {}, "B": {}}
	cases := []struct {
		name     string
		eventID  string
		valid    []string
		accepted bool
	}{
		{name: "event in list", eventID: "A", accepted: true},
		{name: "event outside list", eventID: "C"},
		{name: "valid ids partly outside", valid: []string{"A", "C"}},
		{name: "valid ids inside", valid: []string{"A", "B"}, accepted: true},
		{name: "nothing revealed"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := newAuthHarness("123")
			h.claim.PartialTicket.EventID = tc.eventID
			h.claim.ValidEventIDs = tc.valid
			deps := h.deps()
			deps.SupportedEvents = allowed

			_, err := RunAuthenticate(context.Background(), pendingSession("123"), AuthenticateInput{PCD: "x"}, deps)
			if tc.accepted && err != nil {
				t.Fatalf("expected acceptance, got %v", err)
			}
			if !tc.accepted {
				if !errors.Is(err, errEvent) {
					t.Fatalf("expected unsupported event, got %v", err)
				}
				if h.store.Len() != 0 {
					t.Fatal("unsupported event must not claim the nullifier")
				}
			}
		})
	}
}

func TestAuthenticateReleasesNullifierWhenSaveFails(t *testing.T) {
	h := newAuthHarness("123")
	h.saveErr = errors.New("redis down")
	sess := pendingSession("123")

	_, err := RunAuthenticate(context.Background(), sess, AuthenticateInput{PCD: "x"}, h.deps())
	if !errors.Is(err, errInternal) {
		t.Fatalf("expected internal error, got %v", err)
	}
	if sess.User != "" {
		t.Fatal("session must not be authenticated after a failed save")
	}
	if h.store.Len() != 0 {
		t.Fatal("expected nullifier released after failed save")
	}
	if h.metrics[mReleased] != 1 {
		t.Fatalf("expected release metric, got %v", h.metrics)
	}
}

func TestAuthenticateRenewsSessionID(t *testing.T) {
	tests := []struct {
		name      string
		saveErr   error
		forgetErr error
		wantErr   error
	}{
		{name: "renamed and old record dropped"},
		{name: "cleanup failure still logs in", forgetErr: errors.New("redis down")},
		{name: "save failure releases claim made under new id", saveErr: errors.New("redis down"), wantErr: errInternal},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			h := newAuthHarness("123")
			h.saveErr = tc.saveErr
			sess := pendingSession("123")

			var forgotten []string
			deps := h.deps()
			deps.NewSessionID = func() (string, error) { return "sid-2", nil }
			deps.ForgetSession = func(_ context.Context, sid string) error {
				forgotten = append(forgotten, sid)
				return tc.forgetErr
			}

			_, err := RunAuthenticate(context.Background(), sess, AuthenticateInput{PCD: "x"}, deps)
			if tc.wantErr != nil {
				if !errors.Is(err, tc.wantErr) {
					t.Fatalf("expected %v, got %v", tc.wantErr, err)
				}
				if sess.SessionID != "sid-1" || sess.User != "" {
					t.Fatalf("failed login must leave the session alone, got %+v", sess)
				}
				if h.store.Len() != 0 || len(forgotten) != 0 {
					t.Fatalf("expected claim released and no cleanup, store=%d forgotten=%v", h.store.Len(), forgotten)
				}
				return
			}
			if err != nil {
				t.Fatalf("authenticate: %v", err)
			}
			if sess.SessionID != "sid-2" || sess.User != "777" {
				t.Fatalf("expected logged in under sid-2, got %+v", sess)
			}
			if len(h.saved) != 1 || h.saved[0].SessionID != "sid-2" {
				t.Fatalf("expected one save under sid-2, got %+v", h.saved)
			}
			if len(forgotten) != 1 || forgotten[0] != "sid-1" {
				t.Fatalf("expected sid-1 forgotten, got %v", forgotten)
			}
		})
	}
}

func TestAuthenticateSessionIDFailureClaimsNothing(t *testing.T) {
	h := newAuthHarness("123")
	deps := h.deps()
	deps.NewSessionID = func() (string, error) { return "", errors.New("entropy") }

	_, err := RunAuthenticate(context.Background(), pendingSession("123"), AuthenticateInput{PCD: "x"}, deps)
	if !errors.Is(err, errInternal) {
		t.Fatalf("expected internal error, got %v", err)
	}
	if h.store.Len() != 0 {
		t.Fatal("nullifier must not be claimed without a session id")
	}
}

func TestAuthenticateRecoversPanic(t *testing.T) {
	h := newAuthHarness("123")
	deps := h.deps()
	deps.Verify = func(context.Context, string, string) (*pcd.Claim, error) {
		panic("boom")
	}

	_, err := RunAuthenticate(context.Background(), pendingSession("123"), AuthenticateInput{PCD: "x"}, deps)
	if !errors.Is(err, errInternal) {
		t.Fatalf("expected internal error, got %v", err)
	}
	if h.metrics[mInternal] != 1 {
		t.Fatalf("expected internal metric, got %v", h.metrics)
	}
}

func TestAuthenticateRateLimited(t *testing.T) {
	h := newAuthHarness("123")
	deps := h.deps()
	deps.CheckAuthRate = func(context.Context, string) error { return errRateLimited }

	_, err := RunAuthenticate(context.Background(), pendingSession("123"), AuthenticateInput{PCD: "x"}, deps)
	if !errors.Is(err, errRateLimited) {
		t.Fatalf("expected rate limited, got %v", err)
	}
	if h.verified != 0 {
		t.Fatal("rate limited request must not reach the verifier")
	}
}

func TestAuthenticateNotReady(t *testing.T) {
	_, err := RunAuthenticate(context.Background(), pendingSession("1"), AuthenticateInput{PCD: "x"}, AuthenticateDeps{
		Errors: AuthenticateErrors{EngineNotReady: errNotReady},
	})
	if !errors.Is(err, errNotReady) {
		t.Fatalf("expected not ready, got %v", err)
	}
}

func TestIssueNonceOverwritesAndRollsBack(t *testing.T) {
	sess := &session.Session{SessionID: "sid", Nonce: "old"}
	calls := 0
	deps := NonceDeps{
		NonceSize: 30,
		NewNonce: func(int) (string, error) {
			calls++
			return fmt.Sprintf("n%d", calls), nil
		},
		SaveSession: func(context.Context, *session.Session) error { return nil },
		Errors:      NonceErrors{EngineNotReady: errNotReady, RateLimited: errRateLimited, Internal: errInternal},
	}

	nonce, err := RunIssueNonce(context.Background(), sess, deps)
	if err != nil || nonce != "n1" || sess.Nonce != "n1" {
		t.Fatalf("unexpected nonce=%q session=%q err=%v", nonce, sess.Nonce, err)
	}

	deps.SaveSession = func(context.Context, *session.Session) error { return errors.New("down") }
	if _, err := RunIssueNonce(context.Background(), sess, deps); !errors.Is(err, errInternal) {
		t.Fatalf("expected internal error, got %v", err)
	}
	if sess.Nonce != "n1" {
		t.Fatalf("failed save must keep previous nonce, got %q", sess.Nonce)
	}
}

func TestLogoutAndCurrentUser(t *testing.T) {
	sess := &session.Session{SessionID: "sid", User: "777"}
	if user, err := RunCurrentUser(sess, errUnauthorized); err != nil || user != "777" {
		t.Fatalf("unexpected user=%q err=%v", user, err)
	}

	var audited *session.Session
	err := RunLogout(context.Background(), sess, LogoutDeps{
		DestroySession: func(_ context.Context, s *session.Session) error {
			s.User = ""
			s.Nonce = ""
			return nil
		},
		EmitAudit: func(_ context.Context, _ string, _ bool, s *session.Session, _ string, _ error) {
			audited = s
		},
		EngineNotReady: errNotReady,
		Internal:       errInternal,
	})
	if err != nil {
		t.Fatalf("logout: %v", err)
	}
	if audited == nil || audited.User != "777" {
		t.Fatalf("expected audit to see the logged out user, got %+v", audited)
	}
	if _, err := RunCurrentUser(sess, errUnauthorized); !errors.Is(err, errUnauthorized) {
		t.Fatalf("expected unauthenticated after logout, got %v", err)
	}
}
