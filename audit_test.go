package goGuard

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"
)

type countingSink struct {
	count atomic.Int64
}

func (s *countingSink) Emit(context.Context, AuditEvent) {
	s.count.Add(1)
}

func (s *countingSink) Count() int64 {
	return s.count.Load()
}

func TestAuditDisabledNoSinkCalls(t *testing.T) {
	sink := &countingSink{}
	engine, err := New().
		WithKeyStore(newFakeKeyStore()).
		WithAuditSink(sink).
		Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	_, _ = engine.VerifyKey(context.Background(), "ck_test_bad")
	engine.EmitAudit(context.Background(), AuditEvent{EventType: "custom"})
	engine.Close()

	if sink.Count() != 0 {
		t.Fatalf("expected no audit sink calls when disabled, got %d", sink.Count())
	}
}

func TestEmitAuditFillsRequestContext(t *testing.T) {
	te := newTestEngine(t)

	ctx := WithClientIP(context.Background(), "198.51.100.33")
	ctx = WithTenantID(ctx, "44")
	ctx = WithRequestPath(ctx, "/dashboard/billing")
	ctx = WithKeyID(ctx, "key-7")
	te.EmitAudit(ctx, AuditEvent{EventType: "session_stale", Error: string(AuditErrSessionStale)})

	events := te.drainAudit()
	if len(events) != 1 {
		t.Fatalf("expected one event, got %d", len(events))
	}
	ev := events[0]
	if ev.IP != "198.51.100.33" || ev.TenantID != "44" || ev.Path != "/dashboard/billing" || ev.KeyID != "key-7" {
		t.Fatalf("context fields not filled: %+v", ev)
	}
	if !ev.Timestamp.Equal(te.clock.Now().UTC()) {
		t.Fatalf("expected engine clock timestamp, got %s", ev.Timestamp)
	}
}

func TestEmitAuditKeepsExplicitFields(t *testing.T) {
	te := newTestEngine(t)
	at := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	ctx := WithClientIP(context.Background(), "10.0.0.1")
	te.EmitAudit(ctx, AuditEvent{EventType: "x", IP: "192.0.2.1", Timestamp: at})

	ev := te.drainAudit()[0]
	if ev.IP != "192.0.2.1" || !ev.Timestamp.Equal(at) {
		t.Fatalf("explicit fields overwritten: %+v", ev)
	}
}

func TestCreateKeyAuditCarriesKeyIDNotPlaintext(t *testing.T) {
	te := newTestEngine(t)
	created := createTestKey(t, te, KeyOptions{})

	events := eventsOfType(te.drainAudit(), auditEventKeyCreated)
	if len(events) != 1 {
		t.Fatalf("expected one created event, got %d", len(events))
	}
	ev := events[0]
	if ev.KeyID != created.ID {
		t.Fatalf("expected key id %q, got %q", created.ID, ev.KeyID)
	}
	if _, ok := ev.Metadata["key_id"]; ok {
		t.Fatal("expected key_id lifted out of metadata")
	}
	for _, v := range ev.Metadata {
		if v == created.PlaintextKey {
			t.Fatal("plaintext key leaked in audit metadata")
		}
	}
}

func TestAuditCodeMapping(t *testing.T) {
	tests := []struct {
		err  error
		want AuditErrorCode
	}{
		{err: nil, want: ""},
		{err: ErrInvalidVerificationToken, want: AuditErrInvalidToken},
		{err: ErrWeakSecret, want: AuditErrWeakSecret},
		{err: fmt.Errorf("%w: detail", ErrKeyDomainNotAllowed), want: AuditErrDomainNotAllowed},
		{err: ErrRateLimitExceeded, want: AuditErrRateLimited},
		{err: ErrSessionStale, want: AuditErrSessionStale},
		{err: ErrTenantAssociationMissing, want: AuditErrTenantMissing},
		{err: context.DeadlineExceeded, want: AuditErrUnavailable},
		{err: ErrInvalidKeyOptions, want: AuditErrInvalidRequest},
		{err: errors.New("boom"), want: AuditErrInternal},
	}
	for _, tc := range tests {
		if got := AuditCode(tc.err); got != tc.want {
			t.Fatalf("AuditCode(%v) = %q, want %q", tc.err, got, tc.want)
		}
	}
}
