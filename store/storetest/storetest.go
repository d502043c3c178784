// Package storetest is the shared contract suite for goGuard store adapters.
package storetest

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	goGuard "github.com/MrEthical07/goGuard"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Now is the fixed instant the suite stamps records with. Adapters that round
// timestamps must keep at least millisecond precision.
var Now = time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC)

// MFARecord returns a populated enabled record for userID.
func MFARecord(userID string) goGuard.MFARecord {
	return goGuard.MFARecord{
		UserID:          userID,
		TenantID:        "tenant-1",
		Secret:          "JBSWY3DPEHPK3PXPJBSWY3DPEHPK3PXP",
		Enabled:         true,
		EnrolledAt:      Now,
		BackupCodes:     []string{"digest-a", "digest-b", "digest-c"},
		LastUsedCounter: 100,
	}
}

// KeyRecord returns an active key for tenantID with a unique id and hash.
func KeyRecord(tenantID string) goGuard.KeyRecord {
	id := uuid.NewString()
	return goGuard.KeyRecord{
		ID:                 id,
		TenantID:           tenantID,
		Name:               "checkout widget",
		Prefix:             "ck_test_",
		Hash:               "hash-" + id,
		Domains:            []string{"shop.example.com"},
		AllowedRoutes:      []string{"/api/public"},
		RateLimitPerMinute: 60,
		Active:             true,
		CreatedAt:          Now,
	}
}

// RunMFAStore exercises the goGuard.MFAStore contract against a fresh store.
func RunMFAStore(t *testing.T, newStore func(t *testing.T) goGuard.MFAStore) {
	t.Run("get unknown user", func(t *testing.T) {
		s := newStore(t)
		rec, err := s.GetMFA(context.Background(), "nobody")
		require.NoError(t, err)
		assert.Nil(t, rec)
	})

	t.Run("save and get", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		want := MFARecord("u-save")
		require.NoError(t, s.SaveMFA(ctx, want))

		got, err := s.GetMFA(ctx, "u-save")
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, want.UserID, got.UserID)
		assert.Equal(t, want.TenantID, got.TenantID)
		assert.Equal(t, want.Secret, got.Secret)
		assert.True(t, got.Enabled)
		assert.True(t, want.EnrolledAt.Equal(got.EnrolledAt))
		assert.ElementsMatch(t, want.BackupCodes, got.BackupCodes)
		assert.Equal(t, want.LastUsedCounter, got.LastUsedCounter)
	})

	t.Run("save overwrites", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		first := MFARecord("u-over")
		require.NoError(t, s.SaveMFA(ctx, first))

		second := MFARecord("u-over")
		second.Secret = "KRUGS4ZANFZSAYJAORSXG5A="
		second.BackupCodes = []string{"digest-z"}
		second.LastUsedCounter = 7
		require.NoError(t, s.SaveMFA(ctx, second))

		got, err := s.GetMFA(ctx, "u-over")
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, second.Secret, got.Secret)
		assert.Equal(t, []string{"digest-z"}, got.BackupCodes)
		assert.Equal(t, int64(7), got.LastUsedCounter)
	})

	t.Run("consume backup code once", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		require.NoError(t, s.SaveMFA(ctx, MFARecord("u-consume")))

		ok, err := s.ConsumeBackupCode(ctx, "u-consume", "digest-b")
		require.NoError(t, err)
		assert.True(t, ok)

		ok, err = s.ConsumeBackupCode(ctx, "u-consume", "digest-b")
		require.NoError(t, err)
		assert.False(t, ok)

		ok, err = s.ConsumeBackupCode(ctx, "u-consume", "digest-unknown")
		require.NoError(t, err)
		assert.False(t, ok)

		ok, err = s.ConsumeBackupCode(ctx, "nobody", "digest-a")
		require.NoError(t, err)
		assert.False(t, ok)

		got, err := s.GetMFA(ctx, "u-consume")
		require.NoError(t, err)
		assert.ElementsMatch(t, []string{"digest-a", "digest-c"}, got.BackupCodes)
	})

	t.Run("concurrent consume has one winner", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		require.NoError(t, s.SaveMFA(ctx, MFARecord("u-race")))

		var wins atomic.Int32
		var wg sync.WaitGroup
		for i := 0; i < 16; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				ok, err := s.ConsumeBackupCode(ctx, "u-race", "digest-a")
				if err == nil && ok {
					wins.Add(1)
				}
			}()
		}
		wg.Wait()
		assert.Equal(t, int32(1), wins.Load())
	})

	t.Run("replace backup codes", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		require.NoError(t, s.SaveMFA(ctx, MFARecord("u-replace")))
		require.NoError(t, s.ReplaceBackupCodes(ctx, "u-replace", []string{"n1", "n2"}))

		got, err := s.GetMFA(ctx, "u-replace")
		require.NoError(t, err)
		assert.ElementsMatch(t, []string{"n1", "n2"}, got.BackupCodes)

		ok, err := s.ConsumeBackupCode(ctx, "u-replace", "digest-a")
		require.NoError(t, err)
		assert.False(t, ok, "old set must be gone")
	})

	t.Run("last used counter only moves forward", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		require.NoError(t, s.SaveMFA(ctx, MFARecord("u-counter")))

		ok, err := s.UpdateLastUsedCounter(ctx, "u-counter", 100)
		require.NoError(t, err)
		assert.False(t, ok, "equal counter is a replay")

		ok, err = s.UpdateLastUsedCounter(ctx, "u-counter", 99)
		require.NoError(t, err)
		assert.False(t, ok)

		ok, err = s.UpdateLastUsedCounter(ctx, "u-counter", 101)
		require.NoError(t, err)
		assert.True(t, ok)

		ok, err = s.UpdateLastUsedCounter(ctx, "nobody", 5)
		require.NoError(t, err)
		assert.False(t, ok)

		got, err := s.GetMFA(ctx, "u-counter")
		require.NoError(t, err)
		assert.Equal(t, int64(101), got.LastUsedCounter)
	})

	t.Run("disable", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		require.NoError(t, s.SaveMFA(ctx, MFARecord("u-disable")))
		require.NoError(t, s.DisableMFA(ctx, "u-disable"))
		require.NoError(t, s.DisableMFA(ctx, "nobody"))

		got, err := s.GetMFA(ctx, "u-disable")
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.False(t, got.Enabled)
		assert.Empty(t, got.BackupCodes)
		assert.False(t, got.DisabledAt.IsZero())
	})
}

// RunKeyStore exercises the goGuard.KeyStore contract against a fresh store.
func RunKeyStore(t *testing.T, newStore func(t *testing.T) goGuard.KeyStore) {
	t.Run("insert and get by hash", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		want := KeyRecord("tenant-a")
		want.ExpiresAt = Now.Add(24 * time.Hour)
		require.NoError(t, s.InsertKey(ctx, want))

		got, err := s.GetKeyByHash(ctx, want.Hash)
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, want.ID, got.ID)
		assert.Equal(t, want.TenantID, got.TenantID)
		assert.Equal(t, want.Name, got.Name)
		assert.Equal(t, want.Prefix, got.Prefix)
		assert.Equal(t, want.Hash, got.Hash)
		assert.Equal(t, want.Domains, got.Domains)
		assert.Equal(t, want.AllowedRoutes, got.AllowedRoutes)
		assert.Equal(t, want.RateLimitPerMinute, got.RateLimitPerMinute)
		assert.True(t, got.Active)
		assert.True(t, want.ExpiresAt.Equal(got.ExpiresAt))
		assert.True(t, want.CreatedAt.Equal(got.CreatedAt))

		missing, err := s.GetKeyByHash(ctx, "hash-missing")
		require.NoError(t, err)
		assert.Nil(t, missing)
	})

	t.Run("record usage", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		rec := KeyRecord("tenant-a")
		require.NoError(t, s.InsertKey(ctx, rec))

		at := Now.Add(time.Minute)
		got, err := s.RecordKeyUsage(ctx, rec.ID, at)
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, int64(1), got.UsageCount)
		assert.True(t, at.Equal(got.LastUsedAt))

		missing, err := s.RecordKeyUsage(ctx, "no-such-id", at)
		require.NoError(t, err)
		assert.Nil(t, missing)
	})

	t.Run("concurrent usage is not lost", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		rec := KeyRecord("tenant-a")
		require.NoError(t, s.InsertKey(ctx, rec))

		var wg sync.WaitGroup
		for i := 0; i < 20; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, _ = s.RecordKeyUsage(ctx, rec.ID, Now)
			}()
		}
		wg.Wait()

		got, err := s.GetKeyByHash(ctx, rec.Hash)
		require.NoError(t, err)
		assert.Equal(t, int64(20), got.UsageCount)
	})

	t.Run("deactivate is tenant scoped", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		rec := KeyRecord("tenant-a")
		require.NoError(t, s.InsertKey(ctx, rec))

		ok, err := s.DeactivateKey(ctx, rec.ID, "tenant-b")
		require.NoError(t, err)
		assert.False(t, ok)

		ok, err = s.DeactivateKey(ctx, rec.ID, "tenant-a")
		require.NoError(t, err)
		assert.True(t, ok)

		ok, err = s.DeactivateKey(ctx, rec.ID, "tenant-a")
		require.NoError(t, err)
		assert.False(t, ok, "already inactive")

		got, err := s.GetKeyByHash(ctx, rec.Hash)
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.False(t, got.Active)

		used, err := s.RecordKeyUsage(ctx, rec.ID, Now)
		require.NoError(t, err)
		assert.Nil(t, used, "inactive keys are not counted")
	})

	t.Run("list keys", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		a1 := KeyRecord("tenant-list")
		a2 := KeyRecord("tenant-list")
		a2.CreatedAt = Now.Add(time.Second)
		other := KeyRecord("tenant-other")
		for _, rec := range []goGuard.KeyRecord{a2, other, a1} {
			require.NoError(t, s.InsertKey(ctx, rec))
		}
		_, err := s.DeactivateKey(ctx, a1.ID, "tenant-list")
		require.NoError(t, err)

		keys, err := s.ListKeys(ctx, "tenant-list")
		require.NoError(t, err)
		require.Len(t, keys, 2)
		assert.Equal(t, a1.ID, keys[0].ID)
		assert.False(t, keys[0].Active)
		assert.Equal(t, a2.ID, keys[1].ID)

		empty, err := s.ListKeys(ctx, "tenant-none")
		require.NoError(t, err)
		assert.Empty(t, empty)
	})
}
