// Package secretbox seals small secrets (TOTP seeds) for storage at rest.
//
// Sealed values have the form
//
//	xc1|base64(nonce)|base64(ciphertext)
//
// using XChaCha20-Poly1305 with a 32-byte key. The optional associated data binds a
// ciphertext to its owner (the user id) so sealed secrets cannot be swapped between
// rows.
package secretbox

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/chacha20poly1305"
)

const (
	versionTag = "xc1"
	sep        = "|"
)

// KeySize is the required key length in bytes.
const KeySize = chacha20poly1305.KeySize

var (
	ErrInvalidKey       = errors.New("secretbox: invalid key")
	ErrMalformed        = errors.New("secretbox: malformed sealed value")
	ErrDecryptionFailed = errors.New("secretbox: decryption failed")
)

// Sealer encrypts and decrypts secrets bound to associated data.
type Sealer interface {
	Seal(plaintext []byte, associated string) (string, error)
	Open(sealed string, associated string) ([]byte, error)
}

// Box is an XChaCha20-Poly1305 Sealer.
type Box struct {
	key [KeySize]byte
}

// New returns a Box for a raw 32-byte key.
func New(key []byte) (*Box, error) {
	if len(key) != KeySize {
		return nil, fmt.Errorf("%w: %d bytes (requires %d)", ErrInvalidKey, len(key), KeySize)
	}
	b := &Box{}
	copy(b.key[:], key)
	return b, nil
}

// ParseKey accepts a 32-byte key as standard base64, unpadded base64, or hex.
func ParseKey(s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, fmt.Errorf("%w: empty", ErrInvalidKey)
	}
	if b, err := base64.StdEncoding.DecodeString(s); err == nil && len(b) == KeySize {
		return b, nil
	}
	if b, err := base64.RawStdEncoding.DecodeString(s); err == nil && len(b) == KeySize {
		return b, nil
	}
	if len(s) == 2*KeySize {
		if b, err := hex.DecodeString(s); err == nil {
			return b, nil
		}
	}
	return nil, fmt.Errorf("%w: expected %d bytes as base64 or hex", ErrInvalidKey, KeySize)
}

// NewFromString parses key with ParseKey and returns a Box.
func NewFromString(key string) (*Box, error) {
	raw, err := ParseKey(key)
	if err != nil {
		return nil, err
	}
	return New(raw)
}

// Seal encrypts plaintext under a fresh random nonce.
func (b *Box) Seal(plaintext []byte, associated string) (string, error) {
	aead, err := chacha20poly1305.NewX(b.key[:])
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}
	nonce := make([]byte, chacha20poly1305.NonceSizeX)
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("secretbox: nonce: %w", err)
	}
	ct := aead.Seal(nil, nonce, plaintext, []byte(associated))
	return versionTag + sep +
		base64.StdEncoding.EncodeToString(nonce) + sep +
		base64.StdEncoding.EncodeToString(ct), nil
}

// Open reverses Seal. Any tampering or associated-data mismatch yields
// ErrDecryptionFailed.
func (b *Box) Open(sealed string, associated string) ([]byte, error) {
	parts := strings.Split(sealed, sep)
	if len(parts) != 3 || parts[0] != versionTag {
		return nil, ErrMalformed
	}
	nonce, err := base64.StdEncoding.DecodeString(parts[1])
	if err != nil || len(nonce) != chacha20poly1305.NonceSizeX {
		return nil, ErrMalformed
	}
	ct, err := base64.StdEncoding.DecodeString(parts[2])
	if err != nil {
		return nil, ErrMalformed
	}
	aead, err := chacha20poly1305.NewX(b.key[:])
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}
	pt, err := aead.Open(nil, nonce, ct, []byte(associated))
	if err != nil {
		return nil, ErrDecryptionFailed
	}
	return pt, nil
}

// Plaintext is a Sealer that stores values unencrypted. It exists so adapters
// state explicitly that no at-rest protection is applied (tests, local dev).
type Plaintext struct{}

func (Plaintext) Seal(plaintext []byte, _ string) (string, error) {
	return "plain" + sep + base64.StdEncoding.EncodeToString(plaintext), nil
}

func (Plaintext) Open(sealed string, _ string) ([]byte, error) {
	rest, ok := strings.CutPrefix(sealed, "plain"+sep)
	if !ok {
		return nil, ErrMalformed
	}
	pt, err := base64.StdEncoding.DecodeString(rest)
	if err != nil {
		return nil, ErrMalformed
	}
	return pt, nil
}
