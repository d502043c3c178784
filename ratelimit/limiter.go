package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"
)

var (
	// ErrInvalidPolicy is returned when limit or window is not positive.
	ErrInvalidPolicy = errors.New("invalid rate limit policy")
	// ErrBackendUnavailable wraps failures of a shared limiter backend.
	ErrBackendUnavailable = errors.New("rate limit backend unavailable")
)

// Decision is the outcome of a single Check.
type Decision struct {
	Allowed    bool
	Limit      int
	Remaining  int
	RetryAfter time.Duration
}

// RetryAfterSeconds rounds RetryAfter up to whole seconds, minimum 1, for the
// Retry-After response header.
func (d Decision) RetryAfterSeconds() int {
	if d.RetryAfter <= 0 {
		return 1
	}
	secs := int((d.RetryAfter + time.Second - 1) / time.Second)
	if secs < 1 {
		secs = 1
	}
	return secs
}

// Limiter admits or denies one request for (identity, class) under a policy of
// limit requests per window.
type Limiter interface {
	Check(ctx context.Context, identity, class string, limit int, window time.Duration) (Decision, error)
}

func validatePolicy(limit int, window time.Duration) error {
	if limit <= 0 || window <= 0 {
		return fmt.Errorf("%w: limit=%d window=%s", ErrInvalidPolicy, limit, window)
	}
	return nil
}

// bucketKey length-prefixes class so a ':' in either part (IPv6 identities,
// arbitrary class names) cannot make two buckets share a key.
func bucketKey(identity, class string) string {
	return strconv.Itoa(len(class)) + ":" + class + ":" + identity
}
