// Command goguard-loadtest hammers the sliding-window limiter from many
// goroutines and checks that exactly limit requests per identity get through.
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

	"github.com/MrEthical07/goGuard/ratelimit"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func main() {
	var (
		identities  = flag.Int("identities", 1000, "number of distinct callers")
		limit       = flag.Int("limit", 50, "requests allowed per identity per window")
		overshoot   = flag.Int("overshoot", 3, "attempts per identity as a multiple of limit")
		concurrency = flag.Int("concurrency", 256, "number of concurrent workers")
		window      = flag.Duration("window", time.Minute, "sliding window length")
		backend     = flag.String("backend", "redis", "limiter backend: redis|local")
		redisAddr   = flag.String("redis-addr", "", "redis address; if empty, REDIS_ADDR env or miniredis is used")
		prefix      = flag.String("prefix", "gg-loadtest", "redis key prefix")
	)
	flag.Parse()

	if *identities <= 0 || *limit <= 0 || *overshoot <= 0 || *concurrency <= 0 {
		fmt.Fprintln(os.Stderr, "identities, limit, overshoot, and concurrency must be > 0")
		os.Exit(2)
	}

	ctx := context.Background()

	var limiter ratelimit.Limiter
	switch *backend {
	case "local":
		limiter = ratelimit.NewSlidingWindow()
		fmt.Println("using in-process sliding window")
	case "redis":
		client, cleanup, err := openRedis(*redisAddr)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		defer cleanup()
		limiter = ratelimit.NewRedisSlidingWindow(client, *prefix)
	default:
		fmt.Fprintf(os.Stderr, "unknown backend %q\n", *backend)
		os.Exit(2)
	}

	ops := *identities * *limit * *overshoot
	stats, allowed := run(ctx, limiter, *identities, *limit, *window, ops, *concurrency)

	fmt.Println("---- results ----")
	printStats("check", stats)

	exact := true
	for i, n := range allowed {
		if n != int64(*limit) {
			fmt.Printf("identity %d: allowed %d, want %d\n", i, n, *limit)
			exact = false
		}
	}
	if !exact {
		os.Exit(1)
	}
	fmt.Printf("ok: every identity admitted exactly %d of %d attempts\n", *limit, *limit**overshoot)
}

func openRedis(addr string) (redis.UniversalClient, func(), error) {
	if addr == "" {
		addr = os.Getenv("REDIS_ADDR")
	}
	if addr != "" {
		client := redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{addr}})
		fmt.Printf("using redis at %s\n", addr)
		return client, func() { _ = client.Close() }, nil
	}

	mr, err := miniredis.Run()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to start miniredis: %w", err)
	}
	client := redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{mr.Addr()}})
	fmt.Printf("using miniredis at %s\n", mr.Addr())
	return client, func() {
		_ = client.Close()
		mr.Close()
	}, nil
}

// run spreads ops attempts over the identities so each gets the same number
// of tries, and returns latency stats plus per-identity admissions.
func run(ctx context.Context, limiter ratelimit.Limiter, identities, limit int, window time.Duration, ops, concurrency int) (phaseStats, []int64) {
	var (
		wg        sync.WaitGroup
		cursor    int64
		failures  int64
		allowed   = make([]int64, identities)
		latencies = make([]time.Duration, 0, ops)
		mu        sync.Mutex
	)

	order := rand.New(rand.NewSource(time.Now().UnixNano())).Perm(ops)

	start := time.Now()
	for w := 0; w < concurrency; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				i := int(atomic.AddInt64(&cursor, 1)) - 1
				if i >= ops {
					return
				}
				idx := order[i] % identities
				t0 := time.Now()
				d, err := limiter.Check(ctx, fmt.Sprintf("id-%d", idx), "loadtest", limit, window)
				elapsed := time.Since(t0)
				switch {
				case err != nil:
					atomic.AddInt64(&failures, 1)
				case d.Allowed:
					atomic.AddInt64(&allowed[idx], 1)
				}
				mu.Lock()
				latencies = append(latencies, elapsed)
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	return computeStats(time.Since(start), latencies, failures), allowed
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
	return samples[(len(samples)-1)*p/100]
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
