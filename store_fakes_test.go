package goGuard

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

var errFakeStoreDown = errors.New("fake store down")

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2026, 3, 14, 9, 26, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// fakeMFAStore is an in-memory MFAStore. hang makes every call wait for its
// context; fail makes every call return errFakeStoreDown.
type fakeMFAStore struct {
	mu      sync.Mutex
	records map[string]MFARecord
	hang    bool
	fail    bool
}

func newFakeMFAStore() *fakeMFAStore {
	return &fakeMFAStore{records: make(map[string]MFARecord)}
}

func (s *fakeMFAStore) gate(ctx context.Context) error {
	s.mu.Lock()
	hang, fail := s.hang, s.fail
	s.mu.Unlock()
	if hang {
		<-ctx.Done()
		return ctx.Err()
	}
	if fail {
		return errFakeStoreDown
	}
	return nil
}

func (s *fakeMFAStore) GetMFA(ctx context.Context, userID string) (*MFARecord, error) {
	if err := s.gate(ctx); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[userID]
	if !ok {
		return nil, nil
	}
	rec.BackupCodes = append([]string(nil), rec.BackupCodes...)
	return &rec, nil
}

func (s *fakeMFAStore) SaveMFA(ctx context.Context, record MFARecord) error {
	if err := s.gate(ctx); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	record.BackupCodes = append([]string(nil), record.BackupCodes...)
	s.records[record.UserID] = record
	return nil
}

func (s *fakeMFAStore) ReplaceBackupCodes(ctx context.Context, userID string, digests []string) error {
	if err := s.gate(ctx); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	rec := s.records[userID]
	rec.BackupCodes = append([]string(nil), digests...)
	s.records[userID] = rec
	return nil
}

func (s *fakeMFAStore) ConsumeBackupCode(ctx context.Context, userID, digest string) (bool, error) {
	if err := s.gate(ctx); err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[userID]
	if !ok {
		return false, nil
	}
	for i, d := range rec.BackupCodes {
		if d == digest {
			rec.BackupCodes = append(rec.BackupCodes[:i:i], rec.BackupCodes[i+1:]...)
			s.records[userID] = rec
			return true, nil
		}
	}
	return false, nil
}

func (s *fakeMFAStore) UpdateLastUsedCounter(ctx context.Context, userID string, counter int64) (bool, error) {
	if err := s.gate(ctx); err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[userID]
	if !ok || counter <= rec.LastUsedCounter {
		return false, nil
	}
	rec.LastUsedCounter = counter
	s.records[userID] = rec
	return true, nil
}

func (s *fakeMFAStore) DisableMFA(ctx context.Context, userID string) error {
	if err := s.gate(ctx); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[userID]
	if !ok {
		return nil
	}
	rec.Enabled = false
	rec.BackupCodes = nil
	s.records[userID] = rec
	return nil
}

func (s *fakeMFAStore) setHang(v bool) {
	s.mu.Lock()
	s.hang = v
	s.mu.Unlock()
}

func (s *fakeMFAStore) record(userID string) (MFARecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[userID]
	return rec, ok
}

type fakeKeyStore struct {
	mu   sync.Mutex
	keys map[string]KeyRecord
	fail bool
}

func newFakeKeyStore() *fakeKeyStore {
	return &fakeKeyStore{keys: make(map[string]KeyRecord)}
}

func (s *fakeKeyStore) InsertKey(_ context.Context, record KeyRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail {
		return errFakeStoreDown
	}
	s.keys[record.ID] = record
	return nil
}

func (s *fakeKeyStore) GetKeyByHash(_ context.Context, hash string) (*KeyRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail {
		return nil, errFakeStoreDown
	}
	for _, k := range s.keys {
		if k.Hash == hash {
			return &k, nil
		}
	}
	return nil, nil
}

func (s *fakeKeyStore) RecordKeyUsage(_ context.Context, keyID string, at time.Time) (*KeyRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail {
		return nil, errFakeStoreDown
	}
	k, ok := s.keys[keyID]
	if !ok || !k.Active {
		return nil, nil
	}
	k.UsageCount++
	k.LastUsedAt = at
	s.keys[keyID] = k
	return &k, nil
}

func (s *fakeKeyStore) DeactivateKey(_ context.Context, keyID, tenantID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail {
		return false, errFakeStoreDown
	}
	k, ok := s.keys[keyID]
	if !ok || k.TenantID != tenantID || !k.Active {
		return false, nil
	}
	k.Active = false
	s.keys[keyID] = k
	return true, nil
}

func (s *fakeKeyStore) ListKeys(_ context.Context, tenantID string) ([]KeyRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail {
		return nil, errFakeStoreDown
	}
	var out []KeyRecord
	for _, k := range s.keys {
		if k.TenantID == tenantID {
			out = append(out, k)
		}
	}
	return out, nil
}

func (s *fakeKeyStore) setFail(v bool) {
	s.mu.Lock()
	s.fail = v
	s.mu.Unlock()
}

func (s *fakeKeyStore) key(id string) KeyRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.keys[id]
}

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run failed: %v", err)
	}

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return mr, client
}

type testEngine struct {
	*Engine
	clock *testClock
	mfa   *fakeMFAStore
	keys  *fakeKeyStore
	sink  *ChannelSink
	redis *miniredis.Miniredis
}

// newTestEngineWith builds an engine over fake stores, a fixed clock and
// miniredis. mutate may adjust the config before Build.
func newTestEngineWith(t *testing.T, mutate func(*Config)) *testEngine {
	t.Helper()

	cfg := DefaultConfig()
	cfg.Audit.Enabled = true
	cfg.Audit.BufferSize = 256
	cfg.Audit.DropIfFull = false
	cfg.Metrics.Enabled = true
	cfg.RateLimit.SweepInterval = 0
	if mutate != nil {
		mutate(&cfg)
	}

	mr, rdb := newTestRedis(t)
	te := &testEngine{
		clock: newTestClock(),
		mfa:   newFakeMFAStore(),
		keys:  newFakeKeyStore(),
		sink:  NewChannelSink(256),
		redis: mr,
	}

	engine, err := New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithMFAStore(te.mfa).
		WithKeyStore(te.keys).
		WithAuditSink(te.sink).
		WithClock(te.clock.Now).
		Build()
	if err != nil {
		mr.Close()
		t.Fatalf("Build failed: %v", err)
	}
	te.Engine = engine

	t.Cleanup(func() {
		engine.Close()
		_ = rdb.Close()
		mr.Close()
	})
	return te
}

func newTestEngine(t *testing.T) *testEngine {
	t.Helper()
	return newTestEngineWith(t, nil)
}

// currentCode returns the TOTP code for secret at the engine clock.
func (te *testEngine) currentCode(t *testing.T, secret string, offset int) string {
	t.Helper()
	at := te.clock.Now().Add(time.Duration(offset*te.config.TOTP.Period) * time.Second)
	code, err := te.totp.GenerateCode(secret, at)
	if err != nil {
		t.Fatalf("GenerateCode failed: %v", err)
	}
	return code
}

// drainAudit closes the dispatcher and returns every delivered event. Call it
// once, after the operations under test.
func (te *testEngine) drainAudit() []AuditEvent {
	te.Engine.audit.Close()
	var out []AuditEvent
	for {
		select {
		case ev := <-te.sink.Events():
			out = append(out, ev)
		default:
			return out
		}
	}
}
