package otp

import (
	"bytes"
	"crypto/rand"
	"encoding/base32"
	"errors"
	"strings"
	"testing"
)

func TestBase32RFC4648Vectors(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"", ""},
		{"f", "MY"},
		{"fo", "MZXQ"},
		{"foo", "MZXW6"},
		{"foob", "MZXW6YQ"},
		{"fooba", "MZXW6YTB"},
		{"foobar", "MZXW6YTBOI"},
	}
	for _, tc := range cases {
		if got := Encode([]byte(tc.in)); got != tc.want {
			t.Fatalf("Encode(%q) = %q, want %q", tc.in, got, tc.want)
		}
		dec, err := Decode(tc.want)
		if err != nil {
			t.Fatalf("Decode(%q) failed: %v", tc.want, err)
		}
		if string(dec) != tc.in {
			t.Fatalf("Decode(%q) = %q, want %q", tc.want, dec, tc.in)
		}
	}
}

func TestBase32RoundTripAllLengths(t *testing.T) {
	stdlib := base32.StdEncoding.WithPadding(base32.NoPadding)
	for n := 0; n <= 64; n++ {
		src := make([]byte, n)
		if _, err := rand.Read(src); err != nil {
			t.Fatalf("rand.Read failed: %v", err)
		}
		enc := Encode(src)
		if want := stdlib.EncodeToString(src); enc != want {
			t.Fatalf("len %d: Encode mismatch with stdlib: got %q want %q", n, enc, want)
		}
		dec, err := Decode(enc)
		if err != nil {
			t.Fatalf("len %d: Decode failed: %v", n, err)
		}
		if !bytes.Equal(dec, src) {
			t.Fatalf("len %d: round trip mismatch", n)
		}
	}
}

func TestBase32DecodeIsCaseInsensitiveAndStripsPadding(t *testing.T) {
	got, err := Decode("mzxw6ytboi======")
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if string(got) != "foobar" {
		t.Fatalf("expected foobar, got %q", got)
	}

	mixed, err := Decode("MzXw6YtBoI")
	if err != nil || string(mixed) != "foobar" {
		t.Fatalf("mixed-case decode failed: %q %v", mixed, err)
	}
}

func TestBase32DecodeRejectsCharactersOutsideAlphabet(t *testing.T) {
	for _, in := range []string{"MZXW1", "MZXW8", "MZ XW", "MZXW6!", "MZ=XW"} {
		if _, err := Decode(in); !errors.Is(err, ErrInvalidEncoding) {
			t.Fatalf("Decode(%q): expected ErrInvalidEncoding, got %v", in, err)
		}
	}
}

func TestBase32EncodeUsesOnlyAlphabet(t *testing.T) {
	src := make([]byte, 257)
	for i := range src {
		src[i] = byte(i)
	}
	for _, c := range Encode(src) {
		if !strings.ContainsRune(base32Alphabet, c) {
			t.Fatalf("unexpected character %q in encoding", c)
		}
	}
}
