package ratelimit

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// slidingWindowScript mirrors SlidingWindow.Check. ZREMRANGEBYSCORE is
// inclusive, so a hit scored exactly now-window is evicted.
const slidingWindowScript = `
local key = KEYS[1]
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local limit = tonumber(ARGV[3])
local member = ARGV[4]

redis.call('ZREMRANGEBYSCORE', key, '-inf', now - window)
local count = redis.call('ZCARD', key)
if count < limit then
  redis.call('ZADD', key, now, member)
  redis.call('PEXPIRE', key, window)
  return {1, limit - count - 1, 0}
end

local retry = window
local oldest = redis.call('ZRANGE', key, 0, 0, 'WITHSCORES')
if oldest[2] then
  retry = window - (now - tonumber(oldest[2]))
end
return {0, 0, retry}
`

var slidingWindowLua = redis.NewScript(slidingWindowScript)

// RedisSlidingWindow runs the sliding-window algorithm inside Redis so replicas
// share one history per bucket. Timestamps are millisecond precision.
type RedisSlidingWindow struct {
	redis  redis.UniversalClient
	prefix string
	now    func() time.Time
}

// NewRedisSlidingWindow returns a limiter storing buckets under prefix. An empty
// prefix defaults to "rl".
func NewRedisSlidingWindow(client redis.UniversalClient, prefix string) *RedisSlidingWindow {
	if prefix == "" {
		prefix = "rl"
	}
	return &RedisSlidingWindow{redis: client, prefix: prefix, now: time.Now}
}

// WithClock overrides the time source and returns l.
func (l *RedisSlidingWindow) WithClock(now func() time.Time) *RedisSlidingWindow {
	if now != nil {
		l.now = now
	}
	return l
}

// Check implements Limiter.
func (l *RedisSlidingWindow) Check(ctx context.Context, identity, class string, limit int, window time.Duration) (Decision, error) {
	if err := validatePolicy(limit, window); err != nil {
		return Decision{}, err
	}
	if l == nil || l.redis == nil {
		return Decision{}, fmt.Errorf("%w: nil client", ErrBackendUnavailable)
	}

	nowMs := l.now().UnixMilli()
	windowMs := window.Milliseconds()
	if windowMs <= 0 {
		windowMs = 1
	}
	member := strconv.FormatInt(nowMs, 10) + "-" + uuid.NewString()

	res, err := slidingWindowLua.Run(ctx, l.redis,
		[]string{l.prefix + ":" + bucketKey(identity, class)},
		nowMs, windowMs, limit, member,
	).Int64Slice()
	if err != nil {
		return Decision{}, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	if len(res) != 3 {
		return Decision{}, fmt.Errorf("%w: unexpected script reply %v", ErrBackendUnavailable, res)
	}

	return Decision{
		Allowed:    res[0] == 1,
		Limit:      limit,
		Remaining:  int(res[1]),
		RetryAfter: time.Duration(res[2]) * time.Millisecond,
	}, nil
}
