package stores

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newNullifierStoreTest(t *testing.T, retention time.Duration) (*RedisNullifierStore, *miniredis.Miniredis, func()) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis start: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	store := NewRedisNullifierStore(rdb, "azn", retention)
	return store, mr, func() {
		rdb.Close()
		mr.Close()
	}
}

func TestRedisNullifierClaimOnce(t *testing.T) {
	store, mr, done := newNullifierStoreTest(t, 0)
	defer done()
	ctx := context.Background()

	has, err := store.Has(ctx, "123")
	if err != nil {
		t.Fatalf("has: %v", err)
	}
	if has {
		t.Fatal("expected fresh nullifier to be absent")
	}

	ok, err := store.Claim(ctx, "123", &NullifierRecord{SessionID: "sid-a", AcceptedAt: 1700000000})
	if err != nil {
		t.Fatalf("first claim: %v", err)
	}
	if !ok {
		t.Fatal("expected first claim to win")
	}

	ok, err = store.Claim(ctx, "123", &NullifierRecord{SessionID: "sid-b"})
	if err != nil {
		t.Fatalf("second claim: %v", err)
	}
	if ok {
		t.Fatal("expected second claim to lose")
	}

	has, err = store.Has(ctx, "123")
	if err != nil || !has {
		t.Fatalf("expected nullifier present, has=%v err=%v", has, err)
	}

	if ttl := mr.TTL("azn:123"); ttl != 0 {
		t.Fatalf("expected no expiry on nullifier, got %v", ttl)
	}

	rec, err := store.Get(ctx, "123")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if rec.SessionID != "sid-a" || rec.AcceptedAt != 1700000000 {
		t.Fatalf("unexpected record %+v", rec)
	}
}

func TestRedisNullifierRetention(t *testing.T) {
	store, mr, done := newNullifierStoreTest(t, time.Hour)
	defer done()

	if _, err := store.Claim(context.Background(), "42", nil); err != nil {
		t.Fatalf("claim: %v", err)
	}
	if ttl := mr.TTL("azn:42"); ttl != time.Hour {
		t.Fatalf("expected 1h retention, got %v", ttl)
	}
}

func TestRedisNullifierReleaseOnlyOwnClaim(t *testing.T) {
	store, _, done := newNullifierStoreTest(t, 0)
	defer done()
	ctx := context.Background()

	if _, err := store.Claim(ctx, "7", &NullifierRecord{SessionID: "owner"}); err != nil {
		t.Fatalf("claim: %v", err)
	}
	if err := store.Release(ctx, "7", "intruder"); err != nil {
		t.Fatalf("release by other: %v", err)
	}
	if has, _ := store.Has(ctx, "7"); !has {
		t.Fatal("release by non-owner must not drop the nullifier")
	}
	if err := store.Release(ctx, "7", "owner"); err != nil {
		t.Fatalf("release by owner: %v", err)
	}
	if has, _ := store.Has(ctx, "7"); has {
		t.Fatal("expected nullifier released")
	}
	if err := store.Release(ctx, "7", "owner"); err != nil {
		t.Fatalf("release is idempotent, got %v", err)
	}
}

func TestRedisNullifierConcurrentClaimSingleWinner(t *testing.T) {
	store, _, done := newNullifierStoreTest(t, 0)
	defer done()
	assertSingleWinner(t, store)
}

func TestMemoryNullifierConcurrentClaimSingleWinner(t *testing.T) {
	store := NewMemoryNullifierStore()
	assertSingleWinner(t, store)
	if store.Len() != 1 {
		t.Fatalf("expected one record, got %d", store.Len())
	}
}

func TestNullifierRejectsEmpty(t *testing.T) {
	store, _, done := newNullifierStoreTest(t, 0)
	defer done()
	stores := []NullifierStore{store, NewMemoryNullifierStore()}
	for _, s := range stores {
		if _, err := s.Claim(context.Background(), "", nil); !errors.Is(err, ErrNullifierInvalid) {
			t.Fatalf("expected ErrNullifierInvalid, got %v", err)
		}
		if _, err := s.Has(context.Background(), ""); !errors.Is(err, ErrNullifierInvalid) {
			t.Fatalf("expected ErrNullifierInvalid, got %v", err)
		}
	}
}

func TestRedisNullifierBackendDown(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis start: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()
	store := NewRedisNullifierStore(rdb, "", 0)
	mr.Close()

	if _, err := store.Claim(context.Background(), "1", nil); !errors.Is(err, ErrNullifierBackend) {
		t.Fatalf("expected ErrNullifierBackend, got %v", err)
	}
}

func TestNullifierRecordDecodeRejectsGarbage(t *testing.T) {
	if _, err := decodeNullifierRecord([]byte{9}); err == nil {
		t.Fatal("expected version error")
	}
	if _, err := decodeNullifierRecord([]byte{1, 0, 0}); err == nil {
		t.Fatal("expected truncation error")
	}
}

func assertSingleWinner(t *testing.T, store NullifierStore) {
	t.Helper()

	const n = 16
	var wg sync.WaitGroup
	wg.Add(n)
	results := make(chan bool, n)
	for i := 0; i < n; i++ {
		go func() {
			defer wg.Done()
			ok, err := store.Claim(context.Background(), "999", &NullifierRecord{SessionID: "s"})
			if err != nil {
				t.Errorf("claim: %v", err)
				return
			}
			results <- ok
		}()
	}
	wg.Wait()
	close(results)

	wins := 0
	for ok := range results {
		if ok {
			wins++
		}
	}
	if wins != 1 {
		t.Fatalf("expected exactly one winning claim, got %d", wins)
	}
}
