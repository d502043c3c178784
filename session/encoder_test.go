package session

import (
	"errors"
	"testing"
	"time"

	"github.com/MrEthical07/goGuard/permission"
)

func testDescriptor() *Descriptor {
	return &Descriptor{
		UserID:     "u-1",
		Email:      "owner@example.com",
		TenantID:   "t-1",
		TenantName: "Northside Garage",
		Role:       permission.RoleOwner,
		IssuedAt:   time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC),
	}
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	want := testDescriptor()
	data, err := Encode(want)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	got, err := Decode(data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if *got != *want {
		t.Fatalf("round trip mismatch: got %+v want %+v", got, want)
	}
}

func TestEncodeRejectsInvalidInput(t *testing.T) {
	d := testDescriptor()
	d.Role = permission.RoleNone
	if _, err := Encode(d); !errors.Is(err, permission.ErrUnknownRole) {
		t.Fatalf("expected ErrUnknownRole, got %v", err)
	}

	d = testDescriptor()
	long := make([]byte, 256)
	for i := range long {
		long[i] = 'a'
	}
	d.Email = string(long)
	if _, err := Encode(d); err == nil {
		t.Fatal("expected over-long email to be rejected")
	}
}

func TestDecodeRejectsMalformed(t *testing.T) {
	valid, err := Encode(testDescriptor())
	if err != nil {
		t.Fatalf("encode: %v", err)
	}

	cases := map[string][]byte{
		"empty":         {},
		"wrong version": append([]byte{9}, valid[1:]...),
		"truncated":     valid[:len(valid)-3],
		"trailing":      append(append([]byte(nil), valid...), 0),
		"bad role":      func() []byte { b := append([]byte(nil), valid...); b[len(b)-9] = 42; return b }(),
	}
	for name, data := range cases {
		if _, err := Decode(data); !errors.Is(err, ErrCorrupt) {
			t.Fatalf("%s: expected ErrCorrupt, got %v", name, err)
		}
	}
}

// FuzzDescriptorDecode feeds arbitrary bytes to the decoder. It must never
// panic and anything it accepts must re-encode to the same bytes.
func FuzzDescriptorDecode(f *testing.F) {
	if encoded, err := Encode(testDescriptor()); err == nil {
		f.Add(encoded)
		f.Add(encoded[:10])
	}
	f.Add([]byte{})
	f.Add([]byte{descriptorFormatVersion})
	f.Add([]byte{255, 255, 255})

	f.Fuzz(func(t *testing.T, data []byte) {
		d, err := Decode(data)
		if err != nil {
			return
		}
		again, err := Encode(d)
		if err != nil {
			t.Fatalf("re-encode of accepted blob failed: %v", err)
		}
		if string(again) != string(data) {
			t.Fatalf("re-encode mismatch")
		}
	})
}
