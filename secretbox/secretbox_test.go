package secretbox

import (
	"bytes"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"strings"
	"testing"
)

func testKey() []byte {
	k := make([]byte, KeySize)
	for i := range k {
		k[i] = byte(i * 7)
	}
	return k
}

func TestBoxSealOpenRoundTrip(t *testing.T) {
	box, err := New(testKey())
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	secret := []byte("JBSWY3DPEHPK3PXPJBSWY3DPEHPK3PXP")

	sealed, err := box.Seal(secret, "user-1")
	if err != nil {
		t.Fatalf("Seal failed: %v", err)
	}
	if !strings.HasPrefix(sealed, "xc1|") {
		t.Fatalf("unexpected sealed format %q", sealed)
	}
	if strings.Contains(sealed, string(secret)) {
		t.Fatal("sealed value leaks plaintext")
	}

	got, err := box.Open(sealed, "user-1")
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if !bytes.Equal(got, secret) {
		t.Fatal("round trip mismatch")
	}
}

func TestBoxSealUsesFreshNonce(t *testing.T) {
	box, _ := New(testKey())
	a, _ := box.Seal([]byte("same"), "u")
	b, _ := box.Seal([]byte("same"), "u")
	if a == b {
		t.Fatal("expected distinct ciphertexts for repeated Seal")
	}
}

func TestBoxOpenRejectsWrongAssociatedData(t *testing.T) {
	box, _ := New(testKey())
	sealed, _ := box.Seal([]byte("secret"), "user-1")
	if _, err := box.Open(sealed, "user-2"); !errors.Is(err, ErrDecryptionFailed) {
		t.Fatalf("expected ErrDecryptionFailed, got %v", err)
	}
}

func TestBoxOpenRejectsTampering(t *testing.T) {
	box, _ := New(testKey())
	sealed, _ := box.Seal([]byte("secret"), "u")
	parts := strings.Split(sealed, "|")
	ct, _ := base64.StdEncoding.DecodeString(parts[2])
	ct[0] ^= 0xff
	tampered := parts[0] + "|" + parts[1] + "|" + base64.StdEncoding.EncodeToString(ct)

	if _, err := box.Open(tampered, "u"); !errors.Is(err, ErrDecryptionFailed) {
		t.Fatalf("expected ErrDecryptionFailed, got %v", err)
	}
	if _, err := box.Open("garbage", "u"); !errors.Is(err, ErrMalformed) {
		t.Fatalf("expected ErrMalformed, got %v", err)
	}
}

func TestParseKeyFormats(t *testing.T) {
	raw := testKey()
	for _, in := range []string{
		base64.StdEncoding.EncodeToString(raw),
		base64.RawStdEncoding.EncodeToString(raw),
		hex.EncodeToString(raw),
	} {
		got, err := ParseKey(in)
		if err != nil || !bytes.Equal(got, raw) {
			t.Fatalf("ParseKey(%q) = %x, %v", in, got, err)
		}
	}
	if _, err := ParseKey("short"); !errors.Is(err, ErrInvalidKey) {
		t.Fatalf("expected ErrInvalidKey, got %v", err)
	}
	if _, err := New([]byte("short")); !errors.Is(err, ErrInvalidKey) {
		t.Fatalf("expected ErrInvalidKey from New, got %v", err)
	}
}

func TestPlaintextSealer(t *testing.T) {
	var p Plaintext
	sealed, err := p.Seal([]byte("abc"), "")
	if err != nil {
		t.Fatalf("Seal failed: %v", err)
	}
	got, err := p.Open(sealed, "")
	if err != nil || string(got) != "abc" {
		t.Fatalf("Open = %q, %v", got, err)
	}
}
