package memory

import (
	"context"
	"errors"
	"testing"

	goGuard "github.com/MrEthical07/goGuard"
	"github.com/MrEthical07/goGuard/store/storetest"
)

func TestMFAStoreContract(t *testing.T) {
	storetest.RunMFAStore(t, func(*testing.T) goGuard.MFAStore { return New() })
}

func TestKeyStoreContract(t *testing.T) {
	storetest.RunKeyStore(t, func(*testing.T) goGuard.KeyStore { return New() })
}

func TestInsertKeyRejectsDuplicateHash(t *testing.T) {
	s := New()
	rec := storetest.KeyRecord("tenant-a")
	if err := s.InsertKey(context.Background(), rec); err != nil {
		t.Fatalf("insert: %v", err)
	}
	dup := storetest.KeyRecord("tenant-a")
	dup.Hash = rec.Hash
	if err := s.InsertKey(context.Background(), dup); !errors.Is(err, ErrDuplicateKey) {
		t.Fatalf("expected ErrDuplicateKey, got %v", err)
	}
}

func TestReturnedRecordsAreCopies(t *testing.T) {
	s := New()
	ctx := context.Background()
	if err := s.SaveMFA(ctx, storetest.MFARecord("u-1")); err != nil {
		t.Fatalf("save: %v", err)
	}
	got, _ := s.GetMFA(ctx, "u-1")
	got.BackupCodes[0] = "tampered"

	again, _ := s.GetMFA(ctx, "u-1")
	if again.BackupCodes[0] == "tampered" {
		t.Fatal("caller mutation leaked into the store")
	}
}

func TestEngineOverMemoryStore(t *testing.T) {
	s := New()
	engine, err := goGuard.New().WithMFAStore(s).WithKeyStore(s).Build()
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	defer engine.Close()

	created, err := engine.CreateKey(context.Background(), "tenant-a", "server", goGuard.KeyOptions{})
	if err != nil {
		t.Fatalf("create key: %v", err)
	}
	rec, err := engine.VerifyKey(context.Background(), created.PlaintextKey)
	if err != nil || rec == nil {
		t.Fatalf("verify key: (%v, %v)", rec, err)
	}
	if rec.UsageCount != 1 {
		t.Fatalf("expected usage count 1, got %d", rec.UsageCount)
	}
}
