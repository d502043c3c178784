// Package memory is an in-process goGuard store. State is lost on restart.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	goGuard "github.com/MrEthical07/goGuard"
)

// Store implements goGuard.MFAStore and goGuard.KeyStore behind one mutex.
type Store struct {
	mu     sync.RWMutex
	mfa    map[string]goGuard.MFARecord
	keys   map[string]goGuard.KeyRecord
	byHash map[string]string
}

// New returns an empty store.
func New() *Store {
	return &Store{
		mfa:    make(map[string]goGuard.MFARecord),
		keys:   make(map[string]goGuard.KeyRecord),
		byHash: make(map[string]string),
	}
}

func cloneMFA(rec goGuard.MFARecord) goGuard.MFARecord {
	rec.BackupCodes = append([]string(nil), rec.BackupCodes...)
	return rec
}

func cloneKey(rec goGuard.KeyRecord) goGuard.KeyRecord {
	rec.Domains = append([]string(nil), rec.Domains...)
	rec.AllowedRoutes = append([]string(nil), rec.AllowedRoutes...)
	return rec
}

func (s *Store) GetMFA(_ context.Context, userID string) (*goGuard.MFARecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.mfa[userID]
	if !ok {
		return nil, nil
	}
	cp := cloneMFA(rec)
	return &cp, nil
}

func (s *Store) SaveMFA(_ context.Context, record goGuard.MFARecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mfa[record.UserID] = cloneMFA(record)
	return nil
}

func (s *Store) ReplaceBackupCodes(_ context.Context, userID string, digests []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.mfa[userID]
	if !ok {
		return nil
	}
	rec.BackupCodes = append([]string(nil), digests...)
	s.mfa[userID] = rec
	return nil
}

func (s *Store) ConsumeBackupCode(_ context.Context, userID, digest string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.mfa[userID]
	if !ok {
		return false, nil
	}
	for i, d := range rec.BackupCodes {
		if d == digest {
			rec.BackupCodes = append(rec.BackupCodes[:i:i], rec.BackupCodes[i+1:]...)
			s.mfa[userID] = rec
			return true, nil
		}
	}
	return false, nil
}

func (s *Store) UpdateLastUsedCounter(_ context.Context, userID string, counter int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.mfa[userID]
	if !ok || counter <= rec.LastUsedCounter {
		return false, nil
	}
	rec.LastUsedCounter = counter
	s.mfa[userID] = rec
	return true, nil
}

// DisableMFA clears the backup codes and flips Enabled off. The secret is
// kept until the next enrollment overwrites it.
func (s *Store) DisableMFA(_ context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.mfa[userID]
	if !ok {
		return nil
	}
	rec.Enabled = false
	rec.DisabledAt = time.Now().UTC()
	rec.BackupCodes = nil
	s.mfa[userID] = rec
	return nil
}

func (s *Store) InsertKey(_ context.Context, record goGuard.KeyRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, dup := s.byHash[record.Hash]; dup {
		return ErrDuplicateKey
	}
	s.keys[record.ID] = cloneKey(record)
	s.byHash[record.Hash] = record.ID
	return nil
}

func (s *Store) GetKeyByHash(_ context.Context, hash string) (*goGuard.KeyRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byHash[hash]
	if !ok {
		return nil, nil
	}
	cp := cloneKey(s.keys[id])
	return &cp, nil
}

func (s *Store) RecordKeyUsage(_ context.Context, keyID string, at time.Time) (*goGuard.KeyRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.keys[keyID]
	if !ok || !rec.Active {
		return nil, nil
	}
	rec.UsageCount++
	rec.LastUsedAt = at
	s.keys[keyID] = rec
	cp := cloneKey(rec)
	return &cp, nil
}

func (s *Store) DeactivateKey(_ context.Context, keyID, tenantID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.keys[keyID]
	if !ok || rec.TenantID != tenantID || !rec.Active {
		return false, nil
	}
	rec.Active = false
	s.keys[keyID] = rec
	return true, nil
}

// ListKeys returns the tenant's keys oldest first.
func (s *Store) ListKeys(_ context.Context, tenantID string) ([]goGuard.KeyRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]goGuard.KeyRecord, 0)
	for _, rec := range s.keys {
		if rec.TenantID == tenantID {
			out = append(out, cloneKey(rec))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}
