package otp

import (
	"errors"
	"fmt"
	"strings"
)

const base32Alphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ234567"

// ErrInvalidEncoding is returned when a base32 string contains a character outside
// the RFC 4648 alphabet.
var ErrInvalidEncoding = errors.New("invalid base32 encoding")

var base32DecodeMap = func() [256]byte {
	var m [256]byte
	for i := range m {
		m[i] = 0xff
	}
	for i := 0; i < len(base32Alphabet); i++ {
		c := base32Alphabet[i]
		m[c] = byte(i)
		if c >= 'A' && c <= 'Z' {
			m[c+('a'-'A')] = byte(i)
		}
	}
	return m
}()

// Encode returns the unpadded RFC 4648 base32 form of src. A trailing partial
// group is zero-filled on its low bits.
func Encode(src []byte) string {
	if len(src) == 0 {
		return ""
	}

	out := make([]byte, 0, (len(src)*8+4)/5)
	var (
		buf  uint32
		bits uint
	)
	for _, b := range src {
		buf = buf<<8 | uint32(b)
		bits += 8
		for bits >= 5 {
			bits -= 5
			out = append(out, base32Alphabet[(buf>>bits)&0x1f])
		}
		buf &= (1 << bits) - 1
	}
	if bits > 0 {
		out = append(out, base32Alphabet[(buf<<(5-bits))&0x1f])
	}
	return string(out)
}

// Decode parses an RFC 4648 base32 string. Decoding is case-insensitive and
// trailing '=' padding is stripped. Leftover bits that do not form a whole byte
// are discarded.
func Decode(s string) ([]byte, error) {
	s = strings.TrimRight(s, "=")
	if s == "" {
		return []byte{}, nil
	}

	out := make([]byte, 0, len(s)*5/8)
	var (
		buf  uint32
		bits uint
	)
	for i := 0; i < len(s); i++ {
		v := base32DecodeMap[s[i]]
		if v == 0xff {
			return nil, fmt.Errorf("%w: illegal character %q at offset %d", ErrInvalidEncoding, s[i], i)
		}
		buf = buf<<5 | uint32(v)
		bits += 5
		if bits >= 8 {
			bits -= 8
			out = append(out, byte(buf>>bits))
			buf &= (1 << bits) - 1
		}
	}
	return out, nil
}
