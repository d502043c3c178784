package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	goGuard "github.com/MrEthical07/goGuard"
	"github.com/MrEthical07/goGuard/secretbox"
	"github.com/redis/go-redis/v9"
)

var (
	// ErrBackend wraps Redis failures.
	ErrBackend = errors.New("redis store backend unavailable")
	// ErrDuplicateKey is returned by InsertKey when the hash is already indexed.
	ErrDuplicateKey = errors.New("duplicate client key hash")
	// ErrCorruptRecord is returned when a stored hash cannot be parsed.
	ErrCorruptRecord = errors.New("corrupt stored record")
)

const replaceCodesScript = `
if redis.call("EXISTS", KEYS[1]) == 0 then
  return 0
end
redis.call("DEL", KEYS[2])
if #ARGV > 0 then
  redis.call("SADD", KEYS[2], unpack(ARGV))
end
return 1
`

const advanceCounterScript = `
local cur = redis.call("HGET", KEYS[1], "last_counter")
if not cur then
  return 0
end
if tonumber(ARGV[1]) <= tonumber(cur) then
  return 0
end
redis.call("HSET", KEYS[1], "last_counter", ARGV[1])
return 1
`

const disableScript = `
if redis.call("EXISTS", KEYS[1]) == 0 then
  return 0
end
redis.call("HSET", KEYS[1], "enabled", "0", "disabled_at", ARGV[1])
redis.call("DEL", KEYS[2])
return 1
`

const insertKeyScript = `
if redis.call("SETNX", KEYS[2], ARGV[1]) == 0 then
  return 0
end
redis.call("HSET", KEYS[1], unpack(ARGV, 3))
redis.call("SADD", KEYS[3], ARGV[1])
return 1
`

const recordUsageScript = `
if redis.call("HGET", KEYS[1], "active") ~= "1" then
  return 0
end
redis.call("HINCRBY", KEYS[1], "usage", 1)
redis.call("HSET", KEYS[1], "last_used", ARGV[1])
return 1
`

const deactivateScript = `
if redis.call("HGET", KEYS[1], "tenant") ~= ARGV[1] then
  return 0
end
if redis.call("HGET", KEYS[1], "active") ~= "1" then
  return 0
end
redis.call("HSET", KEYS[1], "active", "0")
return 1
`

var (
	replaceCodesLua   = redis.NewScript(replaceCodesScript)
	advanceCounterLua = redis.NewScript(advanceCounterScript)
	disableLua        = redis.NewScript(disableScript)
	insertKeyLua      = redis.NewScript(insertKeyScript)
	recordUsageLua    = redis.NewScript(recordUsageScript)
	deactivateLua     = redis.NewScript(deactivateScript)
)

// Store is a Redis-backed MFA and client-key store.
type Store struct {
	redis  redis.UniversalClient
	prefix string
	sealer secretbox.Sealer
	now    func() time.Time
}

// Option customizes a Store.
type Option func(*Store)

// WithPrefix sets the key prefix. Defaults to "gg".
func WithPrefix(prefix string) Option {
	return func(s *Store) {
		if prefix != "" {
			s.prefix = prefix
		}
	}
}

// WithClock overrides the clock used for disabled_at.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// New creates a store. sealer must not be nil; pass secretbox.Plaintext{} to
// store secrets unsealed on purpose.
func New(client redis.UniversalClient, sealer secretbox.Sealer, opts ...Option) (*Store, error) {
	if client == nil {
		return nil, errors.New("redisstore: nil redis client")
	}
	if sealer == nil {
		return nil, errors.New("redisstore: nil sealer")
	}
	s := &Store{
		redis:  client,
		prefix: "gg",
		sealer: sealer,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// SealsSecrets reports whether MFA secrets are encrypted at rest.
func (s *Store) SealsSecrets() bool {
	_, plain := s.sealer.(secretbox.Plaintext)
	return !plain
}

func (s *Store) mfaKey(userID string) string        { return s.prefix + ":mfa:" + userID }
func (s *Store) codesKey(userID string) string      { return s.prefix + ":mfa:" + userID + ":codes" }
func (s *Store) recordKey(keyID string) string      { return s.prefix + ":key:" + keyID }
func (s *Store) hashIndexKey(hash string) string    { return s.prefix + ":keyhash:" + hash }
func (s *Store) tenantKeysKey(tenant string) string { return s.prefix + ":tenant:" + tenant + ":keys" }

func backend(err error) error {
	return fmt.Errorf("%w: %v", ErrBackend, err)
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "0"
	}
	return strconv.FormatInt(t.UnixMilli(), 10)
}

func parseTime(v string) (time.Time, error) {
	ms, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return time.Time{}, err
	}
	if ms == 0 {
		return time.Time{}, nil
	}
	return time.UnixMilli(ms).UTC(), nil
}

func formatBool(b bool) string {
	if b {
		return "1"
	}
	return "0"
}

// ---- MFA ----

func (s *Store) GetMFA(ctx context.Context, userID string) (*goGuard.MFARecord, error) {
	var fields *redis.MapStringStringCmd
	var codes *redis.StringSliceCmd
	_, err := s.redis.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		fields = pipe.HGetAll(ctx, s.mfaKey(userID))
		codes = pipe.SMembers(ctx, s.codesKey(userID))
		return nil
	})
	if err != nil {
		return nil, backend(err)
	}

	m := fields.Val()
	if len(m) == 0 {
		return nil, nil
	}

	secret, err := s.sealer.Open(m["secret"], userID)
	if err != nil {
		return nil, fmt.Errorf("open secret for %s: %w", userID, err)
	}

	rec := &goGuard.MFARecord{
		UserID:      userID,
		TenantID:    m["tenant"],
		Secret:      string(secret),
		Enabled:     m["enabled"] == "1",
		BackupCodes: codes.Val(),
	}
	if rec.EnrolledAt, err = parseTime(m["enrolled_at"]); err != nil {
		return nil, fmt.Errorf("%w: enrolled_at: %v", ErrCorruptRecord, err)
	}
	if rec.DisabledAt, err = parseTime(m["disabled_at"]); err != nil {
		return nil, fmt.Errorf("%w: disabled_at: %v", ErrCorruptRecord, err)
	}
	if rec.LastUsedCounter, err = strconv.ParseInt(m["last_counter"], 10, 64); err != nil {
		return nil, fmt.Errorf("%w: last_counter: %v", ErrCorruptRecord, err)
	}
	return rec, nil
}

func (s *Store) SaveMFA(ctx context.Context, record goGuard.MFARecord) error {
	sealed, err := s.sealer.Seal([]byte(record.Secret), record.UserID)
	if err != nil {
		return fmt.Errorf("seal secret: %w", err)
	}

	mfaKey := s.mfaKey(record.UserID)
	codesKey := s.codesKey(record.UserID)
	_, err = s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, mfaKey, codesKey)
		pipe.HSet(ctx, mfaKey,
			"tenant", record.TenantID,
			"secret", sealed,
			"enabled", formatBool(record.Enabled),
			"enrolled_at", formatTime(record.EnrolledAt),
			"disabled_at", formatTime(record.DisabledAt),
			"last_counter", strconv.FormatInt(record.LastUsedCounter, 10),
		)
		if len(record.BackupCodes) > 0 {
			members := make([]interface{}, len(record.BackupCodes))
			for i, c := range record.BackupCodes {
				members[i] = c
			}
			pipe.SAdd(ctx, codesKey, members...)
		}
		return nil
	})
	if err != nil {
		return backend(err)
	}
	return nil
}

func (s *Store) ReplaceBackupCodes(ctx context.Context, userID string, digests []string) error {
	args := make([]interface{}, len(digests))
	for i, d := range digests {
		args[i] = d
	}
	if err := replaceCodesLua.Run(ctx, s.redis, []string{s.mfaKey(userID), s.codesKey(userID)}, args...).Err(); err != nil {
		return backend(err)
	}
	return nil
}

// ConsumeBackupCode relies on SREM reporting exactly one remover.
func (s *Store) ConsumeBackupCode(ctx context.Context, userID, digest string) (bool, error) {
	n, err := s.redis.SRem(ctx, s.codesKey(userID), digest).Result()
	if err != nil {
		return false, backend(err)
	}
	return n == 1, nil
}

func (s *Store) UpdateLastUsedCounter(ctx context.Context, userID string, counter int64) (bool, error) {
	n, err := advanceCounterLua.Run(ctx, s.redis, []string{s.mfaKey(userID)}, counter).Int()
	if err != nil {
		return false, backend(err)
	}
	return n == 1, nil
}

func (s *Store) DisableMFA(ctx context.Context, userID string) error {
	err := disableLua.Run(ctx, s.redis,
		[]string{s.mfaKey(userID), s.codesKey(userID)},
		formatTime(s.now()),
	).Err()
	if err != nil {
		return backend(err)
	}
	return nil
}

// ---- client keys ----

func (s *Store) InsertKey(ctx context.Context, record goGuard.KeyRecord) error {
	domains, err := json.Marshal(record.Domains)
	if err != nil {
		return err
	}
	routes, err := json.Marshal(record.AllowedRoutes)
	if err != nil {
		return err
	}

	args := []interface{}{
		record.ID, record.Hash,
		"id", record.ID,
		"tenant", record.TenantID,
		"name", record.Name,
		"prefix", record.Prefix,
		"hash", record.Hash,
		"domains", string(domains),
		"routes", string(routes),
		"rpm", record.RateLimitPerMinute,
		"active", formatBool(record.Active),
		"expires_at", formatTime(record.ExpiresAt),
		"usage", record.UsageCount,
		"last_used", formatTime(record.LastUsedAt),
		"created_at", formatTime(record.CreatedAt),
	}
	keys := []string{
		s.recordKey(record.ID),
		s.hashIndexKey(record.Hash),
		s.tenantKeysKey(record.TenantID),
	}
	n, err := insertKeyLua.Run(ctx, s.redis, keys, args...).Int()
	if err != nil {
		return backend(err)
	}
	if n == 0 {
		return ErrDuplicateKey
	}
	return nil
}

func (s *Store) GetKeyByHash(ctx context.Context, hash string) (*goGuard.KeyRecord, error) {
	id, err := s.redis.Get(ctx, s.hashIndexKey(hash)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, backend(err)
	}
	return s.loadKey(ctx, id)
}

func (s *Store) loadKey(ctx context.Context, id string) (*goGuard.KeyRecord, error) {
	m, err := s.redis.HGetAll(ctx, s.recordKey(id)).Result()
	if err != nil {
		return nil, backend(err)
	}
	if len(m) == 0 {
		return nil, nil
	}
	return decodeKey(m)
}

func decodeKey(m map[string]string) (*goGuard.KeyRecord, error) {
	rec := &goGuard.KeyRecord{
		ID:       m["id"],
		TenantID: m["tenant"],
		Name:     m["name"],
		Prefix:   m["prefix"],
		Hash:     m["hash"],
		Active:   m["active"] == "1",
	}
	var err error
	if err = json.Unmarshal([]byte(m["domains"]), &rec.Domains); err != nil {
		return nil, fmt.Errorf("%w: domains: %v", ErrCorruptRecord, err)
	}
	if err = json.Unmarshal([]byte(m["routes"]), &rec.AllowedRoutes); err != nil {
		return nil, fmt.Errorf("%w: routes: %v", ErrCorruptRecord, err)
	}
	if rec.RateLimitPerMinute, err = strconv.Atoi(m["rpm"]); err != nil {
		return nil, fmt.Errorf("%w: rpm: %v", ErrCorruptRecord, err)
	}
	if rec.UsageCount, err = strconv.ParseInt(m["usage"], 10, 64); err != nil {
		return nil, fmt.Errorf("%w: usage: %v", ErrCorruptRecord, err)
	}
	if rec.ExpiresAt, err = parseTime(m["expires_at"]); err != nil {
		return nil, fmt.Errorf("%w: expires_at: %v", ErrCorruptRecord, err)
	}
	if rec.LastUsedAt, err = parseTime(m["last_used"]); err != nil {
		return nil, fmt.Errorf("%w: last_used: %v", ErrCorruptRecord, err)
	}
	if rec.CreatedAt, err = parseTime(m["created_at"]); err != nil {
		return nil, fmt.Errorf("%w: created_at: %v", ErrCorruptRecord, err)
	}
	return rec, nil
}

func (s *Store) RecordKeyUsage(ctx context.Context, keyID string, at time.Time) (*goGuard.KeyRecord, error) {
	n, err := recordUsageLua.Run(ctx, s.redis, []string{s.recordKey(keyID)}, formatTime(at)).Int()
	if err != nil {
		return nil, backend(err)
	}
	if n == 0 {
		return nil, nil
	}
	return s.loadKey(ctx, keyID)
}

func (s *Store) DeactivateKey(ctx context.Context, keyID, tenantID string) (bool, error) {
	n, err := deactivateLua.Run(ctx, s.redis, []string{s.recordKey(keyID)}, tenantID).Int()
	if err != nil {
		return false, backend(err)
	}
	return n == 1, nil
}

// ListKeys returns the tenant's keys oldest first.
func (s *Store) ListKeys(ctx context.Context, tenantID string) ([]goGuard.KeyRecord, error) {
	ids, err := s.redis.SMembers(ctx, s.tenantKeysKey(tenantID)).Result()
	if err != nil {
		return nil, backend(err)
	}

	cmds := make([]*redis.MapStringStringCmd, len(ids))
	if len(ids) > 0 {
		_, err = s.redis.Pipelined(ctx, func(pipe redis.Pipeliner) error {
			for i, id := range ids {
				cmds[i] = pipe.HGetAll(ctx, s.recordKey(id))
			}
			return nil
		})
		if err != nil {
			return nil, backend(err)
		}
	}

	out := make([]goGuard.KeyRecord, 0, len(ids))
	for _, cmd := range cmds {
		m := cmd.Val()
		if len(m) == 0 {
			continue
		}
		rec, err := decodeKey(m)
		if err != nil {
			return nil, err
		}
		out = append(out, *rec)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}
