//go:build integration
// +build integration

package test

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/MrEthical07/zuauth"
	"github.com/MrEthical07/zuauth/pcd/zkticket/zktickettest"
	"github.com/MrEthical07/zuauth/session"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

const integrationEvent = "5de90d09-22db-40ca-b3ae-d934573def8b"

func newIntegrationStore(t *testing.T) (*session.Store, *redis.Client, func()) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis run failed: %v", err)
	}

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	store := session.NewStore(rdb, "azs")

	return store, rdb, func() {
		_ = rdb.Close()
		mr.Close()
	}
}

func makeSession(sessionID, nonce, user string) *session.Session {
	now := time.Now()
	return &session.Session{
		SessionID: sessionID,
		Nonce:     nonce,
		User:      user,
		CreatedAt: now.Unix(),
		ExpiresAt: now.Add(time.Hour).Unix(),
	}
}

// newIntegrationEngine builds an engine on rdb with throttles off, trusting
// a fresh test issuer.
func newIntegrationEngine(t *testing.T, rdb redis.UniversalClient) (*zuauth.Engine, *zktickettest.Issuer) {
	t.Helper()

	issuer, err := zktickettest.NewIssuer()
	if err != nil {
		t.Fatalf("issuer: %v", err)
	}

	cfg := zuauth.AnonymousConfig()
	cfg.Session.Password = "integration-password-integration-pw"
	cfg.Auth.SupportedEvents = []string{integrationEvent}
	cfg.Auth.RequireTrustedSigner = true
	cfg.Auth.TrustedSigner = issuer.Signer
	cfg.Security.EnableNonceThrottle = false
	cfg.Security.EnableAuthThrottle = false

	engine, err := zuauth.New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithVerifyingKey(issuer.VerifyingKey).
		Build()
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	t.Cleanup(engine.Close)
	return engine, issuer
}

// pendingSession returns a fresh session holding a nonce and a proof bound to
// that nonce.
func pendingSession(t *testing.T, engine *zuauth.Engine, issuer *zktickettest.Issuer) (*zuauth.Session, zuauth.AuthInput) {
	t.Helper()

	sess, err := engine.LoadSession(httptest.NewRequest("GET", "/", nil))
	if err != nil {
		t.Fatalf("load session: %v", err)
	}
	nonce, err := engine.IssueNonce(context.Background(), httptest.NewRecorder(), sess)
	if err != nil {
		t.Fatalf("issue nonce: %v", err)
	}
	claim := zktickettest.TicketClaim(zktickettest.NewTicket(integrationEvent), nonce, []string{integrationEvent})
	serialized, err := issuer.Prove(claim)
	if err != nil {
		t.Fatalf("prove: %v", err)
	}
	return sess, zuauth.AuthInput{PCD: serialized}
}

func newStoreOn(rdb redis.UniversalClient) *session.Store {
	return session.NewStore(rdb, "azs")
}
