package session

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore keeps encoded descriptors under <prefix>:<sessionID>.
type RedisStore struct {
	redis   redis.UniversalClient
	prefix  string
	sliding time.Duration
}

// NewRedisStore creates a store. An empty prefix defaults to "gs".
func NewRedisStore(client redis.UniversalClient, prefix string) *RedisStore {
	if prefix == "" {
		prefix = "gs"
	}
	return &RedisStore{redis: client, prefix: prefix}
}

// WithSlidingTTL makes every successful Get extend the key's expiry to ttl.
func (s *RedisStore) WithSlidingTTL(ttl time.Duration) *RedisStore {
	s.sliding = ttl
	return s
}

func (s *RedisStore) key(sessionID string) string {
	return s.prefix + ":" + sessionID
}

// Save stores d under sessionID for ttl.
func (s *RedisStore) Save(ctx context.Context, sessionID string, d *Descriptor, ttl time.Duration) error {
	if sessionID == "" {
		return errors.New("empty session id")
	}
	data, err := Encode(d)
	if err != nil {
		return err
	}
	if err := s.redis.Set(ctx, s.key(sessionID), data, ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

// Get returns the descriptor for sessionID, or (nil, nil) when it does not
// exist. A blob that does not decode is deleted and reported as ErrCorrupt.
func (s *RedisStore) Get(ctx context.Context, sessionID string) (*Descriptor, error) {
	key := s.key(sessionID)

	data, err := s.redis.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	d, err := Decode(data)
	if err != nil {
		if delErr := s.redis.Del(ctx, key).Err(); delErr != nil {
			return nil, fmt.Errorf("%w: %v", ErrUnavailable, delErr)
		}
		return nil, err
	}

	if s.sliding > 0 {
		if err := s.redis.Expire(ctx, key, s.sliding).Err(); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
	}

	return d, nil
}

// Delete removes sessionID. Deleting a missing session is not an error.
func (s *RedisStore) Delete(ctx context.Context, sessionID string) error {
	if err := s.redis.Del(ctx, s.key(sessionID)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

// Ping measures a round trip to Redis.
func (s *RedisStore) Ping(ctx context.Context) (time.Duration, error) {
	start := time.Now()
	if err := s.redis.Ping(ctx).Err(); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return time.Since(start), nil
}

// RedisResolver reads an opaque session id from a cookie and looks it up in a
// [RedisStore].
type RedisResolver struct {
	store      *RedisStore
	cookieName string
}

// NewRedisResolver creates a resolver over store. cookieName defaults to
// "goguard_session".
func NewRedisResolver(store *RedisStore, cookieName string) *RedisResolver {
	if cookieName == "" {
		cookieName = "goguard_session"
	}
	return &RedisResolver{store: store, cookieName: cookieName}
}

// CookieName is the cookie holding the session id.
func (r *RedisResolver) CookieName() string {
	return r.cookieName
}

// Resolve implements [Resolver]. A corrupt stored session counts as no session.
func (r *RedisResolver) Resolve(ctx context.Context, req *http.Request) (*Descriptor, error) {
	cookie, err := req.Cookie(r.cookieName)
	if err != nil || cookie.Value == "" {
		return nil, nil
	}

	d, err := r.store.Get(ctx, cookie.Value)
	if errors.Is(err, ErrCorrupt) {
		return nil, nil
	}
	return d, err
}
