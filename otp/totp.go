package otp

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/sha512"
	"crypto/subtle"
	"encoding/binary"
	"errors"
	"fmt"
	"hash"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// SecretBytes is the length of a generated TOTP secret before encoding.
const SecretBytes = 20

var (
	// ErrUnsupportedAlgorithm is returned for HMAC algorithms other than SHA1, SHA256, SHA512.
	ErrUnsupportedAlgorithm = errors.New("unsupported totp algorithm")
	// ErrEmptySecret is returned when a TOTP secret decodes to zero bytes.
	ErrEmptySecret = errors.New("empty totp secret")
	// ErrWeakSecret is returned by CheckSecret when a secret decodes to fewer
	// than SecretBytes bytes.
	ErrWeakSecret = errors.New("totp secret too short")
)

// Config controls TOTP derivation. Zero values fall back to [DefaultConfig].
type Config struct {
	Issuer    string
	Digits    int
	Period    int
	Window    int
	Algorithm string
}

// DefaultConfig returns HMAC-SHA256, 6 digits, a 30 second period, and a
// verification window of one step on either side.
func DefaultConfig() Config {
	return Config{
		Digits:    6,
		Period:    30,
		Window:    1,
		Algorithm: "SHA256",
	}
}

// Generator derives and verifies time-based codes for a fixed configuration.
// It holds no mutable state and is safe for concurrent use.
type Generator struct {
	cfg Config
}

// New validates cfg and returns a [Generator].
func New(cfg Config) (*Generator, error) {
	def := DefaultConfig()
	if cfg.Digits == 0 {
		cfg.Digits = def.Digits
	}
	if cfg.Period == 0 {
		cfg.Period = def.Period
	}
	if cfg.Algorithm == "" {
		cfg.Algorithm = def.Algorithm
	}
	cfg.Algorithm = strings.ToUpper(cfg.Algorithm)

	if cfg.Digits < 6 || cfg.Digits > 8 {
		return nil, fmt.Errorf("totp digits must be between 6 and 8, got %d", cfg.Digits)
	}
	if cfg.Period <= 0 {
		return nil, errors.New("totp period must be > 0")
	}
	if cfg.Window < 0 {
		return nil, errors.New("totp window must be >= 0")
	}
	if _, err := hmacFunc(cfg.Algorithm); err != nil {
		return nil, err
	}
	return &Generator{cfg: cfg}, nil
}

// Config returns the effective configuration.
func (g *Generator) Config() Config {
	return g.cfg
}

// GenerateSecret returns SecretBytes of CSPRNG output encoded as base32.
func (g *Generator) GenerateSecret() (string, error) {
	raw := make([]byte, SecretBytes)
	if _, err := rand.Read(raw); err != nil {
		return "", err
	}
	return Encode(raw), nil
}

// Counter returns the time step containing t.
func (g *Generator) Counter(t time.Time) int64 {
	return t.Unix() / int64(g.cfg.Period)
}

// GenerateCode derives the code for the time step containing t.
func (g *Generator) GenerateCode(secret string, t time.Time) (string, error) {
	key, err := decodeSecret(secret)
	if err != nil {
		return "", err
	}
	return hotpCode(key, g.Counter(t), g.cfg.Digits, g.cfg.Algorithm)
}

// VerifyCode checks token against the configured window around now and reports
// the matched counter. Malformed tokens fail without error; an undecodable secret
// returns ErrInvalidEncoding.
func (g *Generator) VerifyCode(token, secret string, now time.Time) (bool, int64, error) {
	return g.VerifyCodeWindow(token, secret, now, g.cfg.Window)
}

// VerifyCodeWindow is VerifyCode with an explicit window.
func (g *Generator) VerifyCodeWindow(token, secret string, now time.Time, window int) (bool, int64, error) {
	key, err := decodeSecret(secret)
	if err != nil {
		return false, 0, err
	}

	trimmed := strings.TrimSpace(token)
	if len(trimmed) != g.cfg.Digits || !isNumeric(trimmed) {
		return false, 0, nil
	}
	if window < 0 {
		window = 0
	}

	base := g.Counter(now)
	matched := int64(-1)
	for step := -window; step <= window; step++ {
		counter := base + int64(step)
		if counter < 0 {
			continue
		}
		generated, err := hotpCode(key, counter, g.cfg.Digits, g.cfg.Algorithm)
		if err != nil {
			return false, 0, err
		}
		// every step is evaluated so timing does not reveal which one matched
		if subtle.ConstantTimeCompare([]byte(generated), []byte(trimmed)) == 1 && matched < 0 {
			matched = counter
		}
	}
	if matched < 0 {
		return false, 0, nil
	}
	return true, matched, nil
}

// ProvisioningURI builds the otpauth URI consumed by authenticator apps:
//
//	otpauth://totp/{issuer}:{label}?secret=..&issuer=..&algorithm=..&digits=..&period=..
func (g *Generator) ProvisioningURI(secret, accountLabel string) string {
	issuer := escapeComponent(g.cfg.Issuer)

	var b strings.Builder
	b.Grow(96 + len(secret) + len(accountLabel) + 2*len(issuer))
	b.WriteString("otpauth://totp/")
	b.WriteString(issuer)
	b.WriteByte(':')
	b.WriteString(escapeComponent(accountLabel))
	b.WriteString("?secret=")
	b.WriteString(escapeComponent(secret))
	b.WriteString("&issuer=")
	b.WriteString(issuer)
	b.WriteString("&algorithm=")
	b.WriteString(g.cfg.Algorithm)
	b.WriteString("&digits=")
	b.WriteString(strconv.Itoa(g.cfg.Digits))
	b.WriteString("&period=")
	b.WriteString(strconv.Itoa(g.cfg.Period))
	return b.String()
}

// CheckSecret reports whether secret is usable for a new enrollment: valid
// base32 decoding to at least SecretBytes bytes.
func CheckSecret(secret string) error {
	key, err := decodeSecret(secret)
	if err != nil {
		return err
	}
	if len(key) < SecretBytes {
		return fmt.Errorf("%w: %d bytes, need %d", ErrWeakSecret, len(key), SecretBytes)
	}
	return nil
}

func decodeSecret(secret string) ([]byte, error) {
	key, err := Decode(strings.TrimSpace(secret))
	if err != nil {
		return nil, err
	}
	if len(key) == 0 {
		return nil, ErrEmptySecret
	}
	return key, nil
}

func hotpCode(key []byte, counter int64, digits int, algorithm string) (string, error) {
	var msg [8]byte
	binary.BigEndian.PutUint64(msg[:], uint64(counter))

	hf, err := hmacFunc(algorithm)
	if err != nil {
		return "", err
	}
	mac := hmac.New(hf, key)
	_, _ = mac.Write(msg[:])
	sum := mac.Sum(nil)

	offset := sum[len(sum)-1] & 0x0f
	bin := (int(sum[offset])&0x7f)<<24 |
		(int(sum[offset+1])&0xff)<<16 |
		(int(sum[offset+2])&0xff)<<8 |
		(int(sum[offset+3]) & 0xff)

	mod := 1
	for i := 0; i < digits; i++ {
		mod *= 10
	}
	return fmt.Sprintf("%0*d", digits, bin%mod), nil
}

func hmacFunc(algorithm string) (func() hash.Hash, error) {
	switch strings.ToUpper(algorithm) {
	case "SHA1":
		return sha1.New, nil
	case "SHA256":
		return sha256.New, nil
	case "SHA512":
		return sha512.New, nil
	default:
		return nil, ErrUnsupportedAlgorithm
	}
}

func isNumeric(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return s != ""
}

// escapeComponent percent-encodes everything outside the unreserved set, with
// spaces as %20 rather than '+'.
func escapeComponent(s string) string {
	return strings.ReplaceAll(url.QueryEscape(s), "+", "%20")
}
