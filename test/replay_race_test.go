//go:build integration
// +build integration

package test

import (
	"context"
	"errors"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/MrEthical07/zuauth"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func TestReplayRaceSingleWinner(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis run failed: %v", err)
	}
	defer mr.Close()
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	engine, issuer := newIntegrationEngine(t, rdb)
	sess, in := pendingSession(t, engine, issuer)

	const workers = 16
	start := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(workers)

	results := make(chan error, workers)
	for i := 0; i < workers; i++ {
		go func(s *zuauth.Session) {
			defer wg.Done()
			<-start
			_, err := engine.Authenticate(context.Background(), httptest.NewRecorder(), s, in)
			results <- err
		}(sess.Clone())
	}

	close(start)
	wg.Wait()
	close(results)

	success := 0
	for err := range results {
		switch {
		case err == nil:
			success++
		case errors.Is(err, zuauth.ErrReplayedProof):
		default:
			t.Fatalf("unexpected authenticate error: %v", err)
		}
	}

	if success != 1 {
		t.Fatalf("expected exactly one winner, got %d", success)
	}
}

// Two engines sharing one Redis form one replay domain.
func TestReplayAcrossEnginesSharingRedis(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis run failed: %v", err)
	}
	defer mr.Close()
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	engine, issuer := newIntegrationEngine(t, rdb)
	sess, in := pendingSession(t, engine, issuer)
	if _, err := engine.Authenticate(context.Background(), httptest.NewRecorder(), sess.Clone(), in); err != nil {
		t.Fatalf("first authenticate: %v", err)
	}

	cfg := engine.Config()
	peer, err := zuauth.New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithVerifyingKey(issuer.VerifyingKey).
		Build()
	if err != nil {
		t.Fatalf("build peer: %v", err)
	}
	defer peer.Close()

	if _, err := peer.Authenticate(context.Background(), httptest.NewRecorder(), sess.Clone(), in); !errors.Is(err, zuauth.ErrReplayedProof) {
		t.Fatalf("expected ErrReplayedProof on peer, got %v", err)
	}
}
