package otp

import (
	"errors"
	"strings"
	"testing"
	"time"

	pqotp "github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
)

func newTestGenerator(t *testing.T, cfg Config) *Generator {
	t.Helper()
	g, err := New(cfg)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return g
}

func TestTOTPRFC6238VectorsSHA256(t *testing.T) {
	g := newTestGenerator(t, Config{Digits: 8, Period: 30, Algorithm: "SHA256"})
	secret := Encode([]byte("12345678901234567890123456789012"))

	cases := []struct {
		ts   int64
		code string
	}{
		{59, "46119246"},
		{1111111109, "68084774"},
		{1111111111, "67062674"},
		{1234567890, "91819424"},
		{2000000000, "90698825"},
		{20000000000, "77737706"},
	}
	for _, tc := range cases {
		got, err := g.GenerateCode(secret, time.Unix(tc.ts, 0))
		if err != nil {
			t.Fatalf("GenerateCode failed at t=%d: %v", tc.ts, err)
		}
		if got != tc.code {
			t.Fatalf("t=%d: got %s want %s", tc.ts, got, tc.code)
		}
	}
}

func TestTOTPSixDigitDefaultTruncatesRFCVector(t *testing.T) {
	g := newTestGenerator(t, DefaultConfig())
	secret := Encode([]byte("12345678901234567890123456789012"))

	got, err := g.GenerateCode(secret, time.Unix(59, 0))
	if err != nil {
		t.Fatalf("GenerateCode failed: %v", err)
	}
	if got != "119246" {
		t.Fatalf("expected 119246, got %s", got)
	}
}

func TestTOTPMatchesReferenceImplementation(t *testing.T) {
	g := newTestGenerator(t, DefaultConfig())
	secret, err := g.GenerateSecret()
	if err != nil {
		t.Fatalf("GenerateSecret failed: %v", err)
	}

	for _, ts := range []int64{0, 59, 1_700_000_000, 1_700_000_029, 2_000_000_000} {
		at := time.Unix(ts, 0)
		ours, err := g.GenerateCode(secret, at)
		if err != nil {
			t.Fatalf("GenerateCode failed: %v", err)
		}
		ref, err := totp.GenerateCodeCustom(secret, at, totp.ValidateOpts{
			Period:    30,
			Digits:    pqotp.DigitsSix,
			Algorithm: pqotp.AlgorithmSHA256,
		})
		if err != nil {
			t.Fatalf("reference GenerateCodeCustom failed: %v", err)
		}
		if ours != ref {
			t.Fatalf("t=%d: got %s, reference %s", ts, ours, ref)
		}
	}
}

func TestTOTPWindowToleratesOneStepOnly(t *testing.T) {
	g := newTestGenerator(t, DefaultConfig())
	secret := Encode([]byte("goguard-window-test-secret!!"))
	now := time.Unix(1_700_000_010, 0)

	for _, offset := range []int64{-1, 0, 1} {
		code, err := g.GenerateCode(secret, now.Add(time.Duration(offset)*30*time.Second))
		if err != nil {
			t.Fatalf("GenerateCode failed: %v", err)
		}
		ok, counter, err := g.VerifyCode(code, secret, now)
		if err != nil || !ok {
			t.Fatalf("offset %d: expected accept, ok=%v err=%v", offset, ok, err)
		}
		if counter != g.Counter(now)+offset {
			t.Fatalf("offset %d: matched counter %d", offset, counter)
		}
	}

	for _, offset := range []int64{-2, 2} {
		code, err := g.GenerateCode(secret, now.Add(time.Duration(offset)*30*time.Second))
		if err != nil {
			t.Fatalf("GenerateCode failed: %v", err)
		}
		if ok, _, _ := g.VerifyCode(code, secret, now); ok {
			t.Fatalf("offset %d: expected reject", offset)
		}
	}
}

func TestTOTPVerifyRejectsMalformedTokensWithoutError(t *testing.T) {
	g := newTestGenerator(t, DefaultConfig())
	secret, _ := g.GenerateSecret()

	for _, token := range []string{"", "12345", "1234567", "abcdef", "12 456"} {
		ok, _, err := g.VerifyCode(token, secret, time.Now())
		if ok || err != nil {
			t.Fatalf("token %q: expected (false, nil), got (%v, %v)", token, ok, err)
		}
	}
}

func TestTOTPVerifySurfacesEncodingErrors(t *testing.T) {
	g := newTestGenerator(t, DefaultConfig())
	_, _, err := g.VerifyCode("123456", "NOT-BASE32!", time.Now())
	if !errors.Is(err, ErrInvalidEncoding) {
		t.Fatalf("expected ErrInvalidEncoding, got %v", err)
	}
}

func TestTOTPGenerateSecretLength(t *testing.T) {
	g := newTestGenerator(t, DefaultConfig())
	secret, err := g.GenerateSecret()
	if err != nil {
		t.Fatalf("GenerateSecret failed: %v", err)
	}
	if len(secret) != 32 {
		t.Fatalf("expected 32 base32 characters, got %d", len(secret))
	}
	raw, err := Decode(secret)
	if err != nil || len(raw) != SecretBytes {
		t.Fatalf("expected %d decoded bytes, got %d (%v)", SecretBytes, len(raw), err)
	}
}

func TestCheckSecretEnforcesMinimumLength(t *testing.T) {
	full := Encode(make([]byte, SecretBytes))
	if err := CheckSecret(full); err != nil {
		t.Fatalf("expected %d byte secret to pass, got %v", SecretBytes, err)
	}
	if err := CheckSecret(Encode(make([]byte, SecretBytes-1))); !errors.Is(err, ErrWeakSecret) {
		t.Fatalf("expected ErrWeakSecret for %d bytes, got %v", SecretBytes-1, err)
	}
	if err := CheckSecret("AAAAAAAA"); !errors.Is(err, ErrWeakSecret) {
		t.Fatalf("expected ErrWeakSecret for 5 bytes, got %v", err)
	}
	if err := CheckSecret("not base32!"); !errors.Is(err, ErrInvalidEncoding) {
		t.Fatalf("expected ErrInvalidEncoding, got %v", err)
	}
	if err := CheckSecret(""); !errors.Is(err, ErrEmptySecret) {
		t.Fatalf("expected ErrEmptySecret, got %v", err)
	}
}

func TestTOTPProvisioningURIFormat(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Issuer = "Acme"
	g := newTestGenerator(t, cfg)

	got := g.ProvisioningURI("JBSWY3DPEHPK3PXP", "alice@example.com")
	want := "otpauth://totp/Acme:alice%40example.com?secret=JBSWY3DPEHPK3PXP&issuer=Acme&algorithm=SHA256&digits=6&period=30"
	if got != want {
		t.Fatalf("unexpected uri\n got: %s\nwant: %s", got, want)
	}

	cfg.Issuer = "Acme Studio"
	g = newTestGenerator(t, cfg)
	got = g.ProvisioningURI("JBSWY3DPEHPK3PXP", "bob")
	if !strings.HasPrefix(got, "otpauth://totp/Acme%20Studio:bob?") || !strings.Contains(got, "&issuer=Acme%20Studio&") {
		t.Fatalf("expected %%20-escaped issuer, got %s", got)
	}
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	bad := []Config{
		{Digits: 5},
		{Digits: 9},
		{Period: -1},
		{Window: -1},
		{Algorithm: "MD5"},
	}
	for _, cfg := range bad {
		if _, err := New(cfg); err == nil {
			t.Fatalf("expected error for %+v", cfg)
		}
	}
}
