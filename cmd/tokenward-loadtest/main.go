// Command tokenward-loadtest measures the two Redis-bound hot paths of the
// engine under concurrency: abuse-policy consumption and credential rotation.
// It seeds credential families, then runs a consume phase and a rotate phase
// and prints throughput plus latency percentiles for each.
//
// With no -redis-addr flag and no REDIS_ADDR env it starts an embedded
// miniredis, which measures script and client overhead rather than a real
// network round-trip.
package main

import (
	"context"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/tokenward/tokenward/credential"
	"github.com/tokenward/tokenward/internal"
	"github.com/tokenward/tokenward/internal/rate"
)

type familyState struct {
	id     string
	secret [32]byte
	mu     sync.Mutex
}

func main() {
	var (
		families    = flag.Int("families", 50000, "number of credential families to seed")
		concurrency = flag.Int("concurrency", 256, "number of concurrent workers")
		ops         = flag.Int("ops", 200000, "operations per phase (consume + rotate)")
		redisAddr   = flag.String("redis-addr", "", "redis address; if empty, REDIS_ADDR env or miniredis is used")
		prefix      = flag.String("prefix", "tw", "credential key prefix")
	)
	flag.Parse()

	if *families <= 0 || *concurrency <= 0 || *ops <= 0 {
		fmt.Fprintln(os.Stderr, "families, concurrency, and ops must be > 0")
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

	store := credential.NewStore(client, *prefix, 24*time.Hour)
	limiter := rate.New(client)

	states := make([]*familyState, *families)
	fmt.Printf("seeding %d credential families...\n", *families)
	startSeed := time.Now()
	for i := 0; i < *families; i++ {
		cid, err := internal.NewCredentialID()
		if err != nil {
			fmt.Fprintf(os.Stderr, "id generation failed: %v\n", err)
			os.Exit(1)
		}
		secret, err := internal.NewCredentialSecret()
		if err != nil {
			fmt.Fprintf(os.Stderr, "secret generation failed: %v\n", err)
			os.Exit(1)
		}
		cred := &credential.Credential{
			ID:        cid.String(),
			SubjectID: fmt.Sprintf("sub-%d", i),
			TenantID:  "default",
			FamilyID:  uuid.NewString(),
			Digest:    internal.HashCredentialSecret(secret),
		}
		if err := store.Issue(ctx, cred); err != nil {
			fmt.Fprintf(os.Stderr, "issue failed: %v\n", err)
			os.Exit(1)
		}
		states[i] = &familyState{id: cred.ID, secret: secret}
	}
	fmt.Printf("seeded in %s\n", time.Since(startSeed).Round(time.Millisecond))

	consumeStats := runConsumePhase(ctx, limiter, *ops, *concurrency)
	rotateStats := runRotatePhase(ctx, store, states, *ops, *concurrency)

	fmt.Println("---- results ----")
	printStats("consume", consumeStats)
	printStats("rotate", rotateStats)
}

func runConsumePhase(ctx context.Context, limiter *rate.Limiter, ops, concurrency int) phaseStats {
	policy := rate.Policy{
		Name:     "loadtest_ip",
		Points:   int64(ops) * 2,
		Window:   time.Hour,
		Block:    0,
		FailMode: rate.FailClosed,
	}

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
			r := rand.New(rand.NewSource(time.Now().UnixNano() + int64(worker)*7919))
			for {
				i := int(atomic.AddInt64(&cursor, 1)) - 1
				if i >= ops {
					return
				}
				key := fmt.Sprintf("10.0.%d.%d", r.Intn(256), r.Intn(256))
				t0 := time.Now()
				_, err := limiter.Consume(ctx, policy, key)
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
	total := time.Since(start)
	return computeStats(total, latencies, failures)
}

func runRotatePhase(ctx context.Context, store *credential.Store, states []*familyState, ops, concurrency int) phaseStats {
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
			r := rand.New(rand.NewSource(time.Now().UnixNano() + int64(worker)*6151))
			for {
				i := int(atomic.AddInt64(&cursor, 1)) - 1
				if i >= ops {
					return
				}
				state := states[r.Intn(len(states))]

				state.mu.Lock()
				childID, err := internal.NewCredentialID()
				if err != nil {
					atomic.AddInt64(&failures, 1)
					state.mu.Unlock()
					continue
				}
				childSecret, err := internal.NewCredentialSecret()
				if err != nil {
					atomic.AddInt64(&failures, 1)
					state.mu.Unlock()
					continue
				}
				t0 := time.Now()
				_, err = store.Rotate(
					ctx,
					"default",
					state.id,
					internal.HashCredentialSecret(state.secret),
					childID.String(),
					internal.HashCredentialSecret(childSecret),
					credential.Meta{},
				)
				d := time.Since(t0)
				if err == nil {
					state.id = childID.String()
					state.secret = childSecret
				} else {
					atomic.AddInt64(&failures, 1)
				}
				state.mu.Unlock()

				mu.Lock()
				latencies = append(latencies, d)
				mu.Unlock()
			}
		}(w)
	}
	wg.Wait()
	total := time.Since(start)
	return computeStats(total, latencies, failures)
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
