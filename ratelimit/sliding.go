package ratelimit

import (
	"context"
	"hash/maphash"
	"sync"
	"time"
)

const shardCount = 64

type bucket struct {
	hits   []time.Time
	window time.Duration
}

type shard struct {
	mu      sync.Mutex
	buckets map[string]*bucket
}

// SlidingWindow is an in-process sliding-window limiter. Buckets are spread over
// fixed shards so unrelated keys do not contend on one mutex. The zero value is
// not usable; construct with NewSlidingWindow.
type SlidingWindow struct {
	seed   maphash.Seed
	now    func() time.Time
	shards [shardCount]shard
}

// Option configures a SlidingWindow.
type Option func(*SlidingWindow)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *SlidingWindow) {
		if now != nil {
			s.now = now
		}
	}
}

// NewSlidingWindow returns an empty in-process limiter.
func NewSlidingWindow(opts ...Option) *SlidingWindow {
	s := &SlidingWindow{
		seed: maphash.MakeSeed(),
		now:  time.Now,
	}
	for i := range s.shards {
		s.shards[i].buckets = make(map[string]*bucket)
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *SlidingWindow) shardFor(key string) *shard {
	return &s.shards[maphash.String(s.seed, key)%shardCount]
}

// Check implements Limiter. It never returns an error other than ErrInvalidPolicy.
func (s *SlidingWindow) Check(_ context.Context, identity, class string, limit int, window time.Duration) (Decision, error) {
	if err := validatePolicy(limit, window); err != nil {
		return Decision{}, err
	}

	key := bucketKey(identity, class)
	sh := s.shardFor(key)

	sh.mu.Lock()
	defer sh.mu.Unlock()

	now := s.now()
	b := sh.buckets[key]
	if b == nil {
		b = &bucket{hits: make([]time.Time, 0, limit)}
		sh.buckets[key] = b
	}
	b.window = window
	b.evict(now.Add(-window))

	if len(b.hits) < limit {
		b.hits = append(b.hits, now)
		return Decision{
			Allowed:   true,
			Limit:     limit,
			Remaining: limit - len(b.hits),
		}, nil
	}

	return Decision{
		Allowed:    false,
		Limit:      limit,
		Remaining:  0,
		RetryAfter: window - now.Sub(b.hits[0]),
	}, nil
}

// evict drops hits at or before cutoff, compacting in place. cutoff itself is
// outside the window.
func (b *bucket) evict(cutoff time.Time) {
	k := 0
	for k < len(b.hits) && !b.hits[k].After(cutoff) {
		k++
	}
	if k == 0 {
		return
	}
	n := copy(b.hits, b.hits[k:])
	b.hits = b.hits[:n]
}

// Sweep removes buckets whose every hit has left its window and returns how many
// were removed.
func (s *SlidingWindow) Sweep() int {
	now := s.now()
	removed := 0
	for i := range s.shards {
		sh := &s.shards[i]
		sh.mu.Lock()
		for key, b := range sh.buckets {
			b.evict(now.Add(-b.window))
			if len(b.hits) == 0 {
				delete(sh.buckets, key)
				removed++
			}
		}
		sh.mu.Unlock()
	}
	return removed
}

// Len returns the number of tracked buckets.
func (s *SlidingWindow) Len() int {
	total := 0
	for i := range s.shards {
		sh := &s.shards[i]
		sh.mu.Lock()
		total += len(sh.buckets)
		sh.mu.Unlock()
	}
	return total
}

// Run sweeps idle buckets every interval until ctx is done.
func (s *SlidingWindow) Run(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			s.Sweep()
		}
	}
}
