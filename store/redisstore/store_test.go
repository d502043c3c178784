package redisstore

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	goGuard "github.com/MrEthical07/goGuard"
	"github.com/MrEthical07/goGuard/secretbox"
	"github.com/MrEthical07/goGuard/store/storetest"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testBox(t *testing.T) *secretbox.Box {
	t.Helper()
	box, err := secretbox.New([]byte(strings.Repeat("k", secretbox.KeySize)))
	require.NoError(t, err)
	return box
}

func newTestStore(t *testing.T, sealer secretbox.Sealer) (*Store, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	s, err := New(rdb, sealer, WithPrefix("test"), WithClock(func() time.Time { return storetest.Now }))
	require.NoError(t, err)
	return s, mr
}

func TestMFAStoreContract(t *testing.T) {
	storetest.RunMFAStore(t, func(t *testing.T) goGuard.MFAStore {
		s, _ := newTestStore(t, testBox(t))
		return s
	})
}

func TestKeyStoreContract(t *testing.T) {
	storetest.RunKeyStore(t, func(t *testing.T) goGuard.KeyStore {
		s, _ := newTestStore(t, testBox(t))
		return s
	})
}

func TestNewRequiresClientAndSealer(t *testing.T) {
	_, err := New(nil, secretbox.Plaintext{})
	assert.Error(t, err)

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()
	_, err = New(rdb, nil)
	assert.Error(t, err)
}

func TestSecretIsSealedAtRest(t *testing.T) {
	s, mr := newTestStore(t, testBox(t))
	rec := storetest.MFARecord("u-1")
	require.NoError(t, s.SaveMFA(context.Background(), rec))

	raw := mr.HGet("test:mfa:u-1", "secret")
	assert.NotContains(t, raw, rec.Secret)
	assert.True(t, strings.HasPrefix(raw, "xc1|"))
	assert.True(t, s.SealsSecrets())

	got, err := s.GetMFA(context.Background(), "u-1")
	require.NoError(t, err)
	assert.Equal(t, rec.Secret, got.Secret)
}

func TestSealedSecretIsBoundToUser(t *testing.T) {
	s, mr := newTestStore(t, testBox(t))
	ctx := context.Background()
	require.NoError(t, s.SaveMFA(ctx, storetest.MFARecord("u-1")))
	require.NoError(t, s.SaveMFA(ctx, storetest.MFARecord("u-2")))

	mr.HSet("test:mfa:u-2", "secret", mr.HGet("test:mfa:u-1", "secret"))

	_, err := s.GetMFA(ctx, "u-2")
	assert.ErrorIs(t, err, secretbox.ErrDecryptionFailed)
}

func TestPlaintextSealerIsReported(t *testing.T) {
	s, _ := newTestStore(t, secretbox.Plaintext{})
	assert.False(t, s.SealsSecrets())
}

func TestDuplicateHashRejected(t *testing.T) {
	s, _ := newTestStore(t, testBox(t))
	ctx := context.Background()
	rec := storetest.KeyRecord("tenant-a")
	require.NoError(t, s.InsertKey(ctx, rec))

	dup := storetest.KeyRecord("tenant-a")
	dup.Hash = rec.Hash
	assert.ErrorIs(t, s.InsertKey(ctx, dup), ErrDuplicateKey)
}

func TestReplaceBackupCodesIgnoresUnknownUser(t *testing.T) {
	s, mr := newTestStore(t, testBox(t))
	require.NoError(t, s.ReplaceBackupCodes(context.Background(), "ghost", []string{"d1"}))
	assert.False(t, mr.Exists("test:mfa:ghost:codes"))
}

func TestCorruptKeyRecord(t *testing.T) {
	s, mr := newTestStore(t, testBox(t))
	ctx := context.Background()
	rec := storetest.KeyRecord("tenant-a")
	require.NoError(t, s.InsertKey(ctx, rec))

	mr.HSet("test:key:"+rec.ID, "rpm", "lots")
	_, err := s.GetKeyByHash(ctx, rec.Hash)
	assert.ErrorIs(t, err, ErrCorruptRecord)
}

func TestBackendFailure(t *testing.T) {
	s, mr := newTestStore(t, testBox(t))
	mr.Close()

	_, err := s.GetMFA(context.Background(), "u-1")
	assert.True(t, errors.Is(err, ErrBackend), "got %v", err)
	_, err = s.ConsumeBackupCode(context.Background(), "u-1", "d")
	assert.ErrorIs(t, err, ErrBackend)
}

func TestEngineDetectsSealedStore(t *testing.T) {
	s, mr := newTestStore(t, testBox(t))
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	engine, err := goGuard.New().WithRedis(rdb).WithMFAStore(s).WithKeyStore(s).Build()
	require.NoError(t, err)
	defer engine.Close()

	report := engine.SecurityReport()
	assert.True(t, report.SecretsSealed)
	assert.True(t, report.RateLimiterDurable)
	assert.NotContains(t, report.Warnings, "mfa secrets are not sealed at rest")
}
