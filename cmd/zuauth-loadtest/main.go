package main

import (
	"context"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"sort"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/MrEthical07/zuauth/internal"
	"github.com/MrEthical07/zuauth/internal/stores"
	"github.com/MrEthical07/zuauth/session"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func main() {
	var (
		sessions    = flag.Int("sessions", 100000, "number of sessions to seed")
		concurrency = flag.Int("concurrency", 256, "number of concurrent workers")
		ops         = flag.Int("ops", 200000, "operations per phase (load + claim)")
		nullifiers  = flag.Int("nullifiers", 50000, "distinct nullifiers contended in the claim phase")
		redisAddr   = flag.String("redis-addr", "", "redis address; if empty, REDIS_ADDR env or miniredis is used")
		prefix      = flag.String("prefix", "azs", "session key prefix")
	)
	flag.Parse()

	if *sessions <= 0 || *concurrency <= 0 || *ops <= 0 || *nullifiers <= 0 {
		fmt.Fprintln(os.Stderr, "sessions, concurrency, ops and nullifiers must be > 0")
		os.Exit(2)
	}

	ctx := context.Background()

	addr := *redisAddr
	if addr == "" {
		addr = os.Getenv("REDIS_ADDR")
	}

	var (
		cleanup func()
		client  redis.UniversalClient
	)
	if addr == "" {
		mr, err := miniredis.Run()
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to start miniredis: %v\n", err)
			os.Exit(1)
		}
		addr = mr.Addr()
		client = redis.NewUniversalClient(&redis.UniversalOptions{
			Addrs: []string{addr},
		})
		cleanup = func() {
			_ = client.Close()
			mr.Close()
		}
		fmt.Printf("using miniredis at %s\n", addr)
	} else {
		client = redis.NewUniversalClient(&redis.UniversalOptions{
			Addrs: []string{addr},
		})
		cleanup = func() { _ = client.Close() }
		fmt.Printf("using redis at %s\n", addr)
	}
	defer cleanup()

	store := session.NewStore(client, *prefix)
	guard := stores.NewRedisNullifierStore(client, *prefix+"-lt-n", 0)

	sids := make([]string, *sessions)
	fmt.Printf("seeding %d sessions...\n", *sessions)
	startSeed := time.Now()
	for i := range sids {
		sess, err := buildSession()
		if err != nil {
			fmt.Fprintf(os.Stderr, "session id: %v\n", err)
			os.Exit(1)
		}
		if err := store.Save(ctx, sess, 24*time.Hour); err != nil {
			fmt.Fprintf(os.Stderr, "save failed: %v\n", err)
			os.Exit(1)
		}
		sids[i] = sess.SessionID
	}
	fmt.Printf("seeded in %s\n", time.Since(startSeed).Round(time.Millisecond))

	loadStats := runLoadPhase(ctx, store, sids, *ops, *concurrency)
	claimStats, wins := runClaimPhase(ctx, guard, sids, *nullifiers, *ops, *concurrency)

	fmt.Println("---- results ----")
	printStats("load", loadStats)
	printStats("claim", claimStats)
	fmt.Printf("claim: accepted=%d distinct=%d\n", wins, *nullifiers)
	if wins > int64(*nullifiers) {
		fmt.Fprintln(os.Stderr, "replay guard accepted a nullifier twice")
		os.Exit(1)
	}
}

func runLoadPhase(ctx context.Context, store *session.Store, sids []string, ops, concurrency int) phaseStats {
	return runPhase(ops, concurrency, 7919, func(r *rand.Rand, _ int) error {
		_, err := store.Get(ctx, sids[r.Intn(len(sids))])
		return err
	})
}

// runClaimPhase has every worker race for a small pool of nullifiers, the way
// concurrent submissions of the same proof would.
func runClaimPhase(ctx context.Context, guard *stores.RedisNullifierStore, sids []string, distinct, ops, concurrency int) (phaseStats, int64) {
	var wins int64
	stats := runPhase(ops, concurrency, 6151, func(r *rand.Rand, _ int) error {
		n := strconv.Itoa(r.Intn(distinct) + 1)
		ok, err := guard.Claim(ctx, n, &stores.NullifierRecord{
			SessionID:  sids[r.Intn(len(sids))],
			AcceptedAt: time.Now().Unix(),
		})
		if ok {
			atomic.AddInt64(&wins, 1)
		}
		return err
	})
	return stats, wins
}

func runPhase(ops, concurrency int, seed int64, op func(r *rand.Rand, i int) error) phaseStats {
	var (
		wg        sync.WaitGroup
		cursor    int64
		failures  int64
		latencies = make([]time.Duration, 0, ops)
		mu        sync.Mutex
	)

	start := time.Now()
	for w := 0; w < concurrency; w++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			r := rand.New(rand.NewSource(time.Now().UnixNano() + int64(worker)*seed))
			for {
				i := int(atomic.AddInt64(&cursor, 1)) - 1
				if i >= ops {
					return
				}
				t0 := time.Now()
				err := op(r, i)
				d := time.Since(t0)
				if err != nil {
					atomic.AddInt64(&failures, 1)
				}
				mu.Lock()
				latencies = append(latencies, d)
				mu.Unlock()
			}
		}(w)
	}
	wg.Wait()
	return computeStats(time.Since(start), latencies, failures)
}

type phaseStats struct {
	total    time.Duration
	ops      int
	failures int64
	p50      time.Duration
	p95      time.Duration
	p99      time.Duration
	opsPerS  float64
}

func computeStats(total time.Duration, samples []time.Duration, failures int64) phaseStats {
	if len(samples) == 0 {
		return phaseStats{total: total}
	}
	sort.Slice(samples, func(i, j int) bool { return samples[i] < samples[j] })
	return phaseStats{
		total:    total,
		ops:      len(samples),
		failures: failures,
		p50:      percentile(samples, 50),
		p95:      percentile(samples, 95),
		p99:      percentile(samples, 99),
		opsPerS:  float64(len(samples)) / total.Seconds(),
	}
}

func percentile(samples []time.Duration, p int) time.Duration {
	if len(samples) == 0 {
		return 0
	}
	if p <= 0 {
		return samples[0]
	}
	if p >= 100 {
		return samples[len(samples)-1]
	}
	idx := (len(samples) - 1) * p / 100
	return samples[idx]
}

func printStats(name string, s phaseStats) {
	fmt.Printf("%s: ops=%d failures=%d total=%s ops/sec=%.0f p50=%s p95=%s p99=%s\n",
		name,
		s.ops,
		s.failures,
		s.total.Round(time.Millisecond),
		s.opsPerS,
		s.p50.Round(time.Microsecond),
		s.p95.Round(time.Microsecond),
		s.p99.Round(time.Microsecond),
	)
}

func buildSession() (*session.Session, error) {
	sid, err := internal.NewSessionID()
	if err != nil {
		return nil, err
	}
	nonce, err := internal.NewNonce(internal.MinNonceSize)
	if err != nil {
		return nil, err
	}
	now := time.Now()
	return &session.Session{
		SessionID: sid.String(),
		Nonce:     nonce,
		CreatedAt: now.Unix(),
		ExpiresAt: now.Add(24 * time.Hour).Unix(),
	}, nil
}
