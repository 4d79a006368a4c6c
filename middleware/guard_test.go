package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/MrEthical07/zuauth"
	"github.com/MrEthical07/zuauth/pcd/zkticket/zktickettest"
	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

func newGuardEngine(t *testing.T) (*zuauth.Engine, *zktickettest.Issuer) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis start: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	issuer, err := zktickettest.NewIssuer()
	if err != nil {
		t.Fatalf("issuer: %v", err)
	}

	cfg := zuauth.DefaultConfig()
	cfg.Session.Password = strings.Repeat("k", 32)
	engine, err := zuauth.New().WithConfig(cfg).WithRedis(rdb).WithVerifyingKey(issuer.VerifyingKey).Build()
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	t.Cleanup(func() {
		engine.Close()
		rdb.Close()
		mr.Close()
	})
	return engine, issuer
}

// loggedInCookies runs the handshake directly against the engine and returns
// the resulting session cookies.
func loggedInCookies(t *testing.T, engine *zuauth.Engine, issuer *zktickettest.Issuer) ([]*http.Cookie, string) {
	t.Helper()
	ctx := context.Background()

	sess, err := engine.LoadSession(httptest.NewRequest(http.MethodGet, "/", nil))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	rec := httptest.NewRecorder()
	nonce, err := engine.IssueNonce(ctx, rec, sess)
	if err != nil {
		t.Fatalf("nonce: %v", err)
	}

	ticket := zktickettest.NewTicket(uuid.NewString())
	serialized, err := issuer.Prove(zktickettest.TicketClaim(ticket, nonce, nil))
	if err != nil {
		t.Fatalf("prove: %v", err)
	}
	rec = httptest.NewRecorder()
	res, err := engine.Authenticate(ctx, rec, sess, zuauth.AuthInput{PCD: serialized})
	if err != nil {
		t.Fatalf("authenticate: %v", err)
	}
	return rec.Result().Cookies(), res.User
}

func TestRequireUserRejectsAnonymous(t *testing.T) {
	engine, _ := newGuardEngine(t)

	called := false
	h := RequireUser(engine)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		called = true
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/auth/user", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
	if called {
		t.Fatal("handler must not run without a user")
	}
}

func TestRequireUserInjectsUser(t *testing.T) {
	engine, issuer := newGuardEngine(t)
	cookies, wantUser := loggedInCookies(t, engine, issuer)

	var gotUser string
	var gotIP string
	h := RequireUser(engine)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUser, _ = UserFromContext(r.Context())
		sess, ok := SessionFromContext(r.Context())
		if !ok || sess.User != gotUser {
			t.Errorf("expected session in context with user %q", gotUser)
		}
		gotIP = ClientIP(r)
		w.WriteHeader(http.StatusNoContent)
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/auth/user", nil)
	req.RemoteAddr = "198.51.100.7:51234"
	for _, c := range cookies {
		req.AddCookie(c)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rec.Code)
	}
	if gotUser != wantUser {
		t.Fatalf("expected user %q, got %q", wantUser, gotUser)
	}
	if gotIP != "198.51.100.7" {
		t.Fatalf("expected client ip without port, got %q", gotIP)
	}
}

func TestLoadSessionNilEngine(t *testing.T) {
	h := LoadSession(nil)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		t.Fatal("handler must not run")
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
}

func TestRecoverWritesUnknownError(t *testing.T) {
	h := Recover(slog.New(slog.DiscardHandler))(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "Unknown error: boom") {
		t.Fatalf("unexpected body %q", rec.Body.String())
	}
}

func TestRecoverKeepsStartedResponse(t *testing.T) {
	h := Recover(nil)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusAccepted)
		panic("late")
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected original status, got %d", rec.Code)
	}
	if strings.Contains(rec.Body.String(), "Unknown error") {
		t.Fatal("must not append an error body to a started response")
	}
}
