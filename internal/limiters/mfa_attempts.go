package limiters

import (
	"context"
	"errors"
	"time"

	"github.com/MrEthical07/goGuard/internal/rate"
	"github.com/redis/go-redis/v9"
)

const (
	defaultMFAMaxAttempts = 5
	defaultMFAWindow      = 5 * time.Minute
)

var (
	ErrMFAAttemptsExceeded = errors.New("mfa attempts exceeded")
	ErrMFAUnavailable      = errors.New("mfa limiter unavailable")
)

// MFAAttemptConfig holds thresholds for failed MFA verifications.
type MFAAttemptConfig struct {
	MaxAttempts int
	Window      time.Duration
}

// MFAAttemptLimiter counts failed verifications per user in a fixed window.
// A nil limiter admits everything.
type MFAAttemptLimiter struct {
	counter     *rate.Counter
	maxAttempts int64
	window      time.Duration
}

// NewMFAAttemptLimiter returns a limiter over client. Zero-value fields in cfg
// fall back to 5 attempts per 5 minutes.
func NewMFAAttemptLimiter(client redis.UniversalClient, cfg MFAAttemptConfig) *MFAAttemptLimiter {
	if client == nil {
		return nil
	}
	max := cfg.MaxAttempts
	if max <= 0 {
		max = defaultMFAMaxAttempts
	}
	window := cfg.Window
	if window <= 0 {
		window = defaultMFAWindow
	}
	return &MFAAttemptLimiter{
		counter:     rate.NewCounter(client),
		maxAttempts: int64(max),
		window:      window,
	}
}

func (l *MFAAttemptLimiter) key(userID string) string {
	return "mfa:att:" + userID
}

// Check returns ErrMFAAttemptsExceeded once the user has used up the window.
func (l *MFAAttemptLimiter) Check(ctx context.Context, userID string) error {
	if l == nil {
		return nil
	}
	count, err := l.counter.Get(ctx, l.key(userID))
	if err != nil {
		return errors.Join(ErrMFAUnavailable, err)
	}
	if count >= l.maxAttempts {
		return ErrMFAAttemptsExceeded
	}
	return nil
}

// RecordFailure counts one failed verification.
func (l *MFAAttemptLimiter) RecordFailure(ctx context.Context, userID string) error {
	if l == nil {
		return nil
	}
	count, err := l.counter.Incr(ctx, l.key(userID), l.window)
	if err != nil {
		return errors.Join(ErrMFAUnavailable, err)
	}
	if count >= l.maxAttempts {
		return ErrMFAAttemptsExceeded
	}
	return nil
}

// Reset clears the failure count after a successful verification.
func (l *MFAAttemptLimiter) Reset(ctx context.Context, userID string) error {
	if l == nil {
		return nil
	}
	if err := l.counter.Reset(ctx, l.key(userID)); err != nil {
		return errors.Join(ErrMFAUnavailable, err)
	}
	return nil
}
