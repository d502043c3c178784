package session

import (
	"context"
	"crypto/ed25519"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/MrEthical07/goGuard/permission"
	"github.com/golang-jwt/jwt/v5"
)

// SigningMethod selects the JWS algorithm of access tokens.
type SigningMethod string

const (
	// MethodEd25519 signs with EdDSA over Ed25519 keys.
	MethodEd25519 SigningMethod = "ed25519"
	// MethodHS256 signs with HMAC-SHA256 over a shared secret.
	MethodHS256 SigningMethod = "hs256"
)

// ErrInvalidToken is returned by [JWTResolver.Parse] for tokens that fail
// verification or carry unusable claims.
var ErrInvalidToken = errors.New("invalid session token")

// JWTConfig configures a [JWTResolver].
type JWTConfig struct {
	SigningMethod SigningMethod
	// PrivateKey is the HS256 secret, or the Ed25519 private key when the
	// resolver also issues tokens (dev and tests).
	PrivateKey []byte
	PublicKey  []byte
	Issuer     string
	Audience   string
	Leeway     time.Duration
	KeyID      string
	VerifyKeys map[string][]byte
	// CookieName, when set, is read if no Authorization header is present.
	CookieName string
	Clock      func() time.Time
}

// Claims are the access-token claims the resolver understands. Subject is the
// user id and IssuedAt drives session freshness.
type Claims struct {
	Email      string `json:"email,omitempty"`
	TenantID   string `json:"tid,omitempty"`
	TenantName string `json:"tname,omitempty"`
	Role       string `json:"role"`
	jwt.RegisteredClaims
}

// JWTResolver verifies access tokens issued by the identity provider.
type JWTResolver struct {
	config JWTConfig
}

// NewJWTResolver validates cfg and returns a resolver.
func NewJWTResolver(cfg JWTConfig) (*JWTResolver, error) {
	if cfg.Leeway < 0 || cfg.Leeway > 2*time.Minute {
		return nil, errors.New("invalid leeway configuration")
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	cfg.KeyID = strings.TrimSpace(cfg.KeyID)

	switch cfg.SigningMethod {
	case MethodHS256:
		if len(cfg.PrivateKey) < 32 {
			return nil, errors.New("hs256 requires a secret of at least 32 bytes")
		}
	case MethodEd25519:
		if len(cfg.PrivateKey) > 0 {
			if _, err := parseEdPrivateKey(cfg.PrivateKey); err != nil {
				return nil, err
			}
		}
		if len(cfg.PublicKey) > 0 {
			if _, err := parseEdPublicKey(cfg.PublicKey); err != nil {
				return nil, err
			}
		}
		if len(cfg.VerifyKeys) == 0 && len(cfg.PublicKey) == 0 {
			return nil, errors.New("ed25519 requires public key or verify key set")
		}
		for kid, key := range cfg.VerifyKeys {
			if strings.TrimSpace(kid) == "" {
				return nil, errors.New("verify key map contains empty kid")
			}
			if _, err := parseEdPublicKey(key); err != nil {
				return nil, fmt.Errorf("invalid ed25519 verify key for kid %q: %w", kid, err)
			}
		}
	default:
		return nil, errors.New("unsupported signing method")
	}
	if cfg.KeyID != "" && len(cfg.VerifyKeys) > 0 {
		if _, ok := cfg.VerifyKeys[cfg.KeyID]; !ok {
			return nil, errors.New("KeyID is not present in VerifyKeys")
		}
	}

	return &JWTResolver{config: cfg}, nil
}

// Resolve implements [Resolver]. A missing or invalid token is no session;
// token verification never produces a backend error.
func (j *JWTResolver) Resolve(_ context.Context, r *http.Request) (*Descriptor, error) {
	token := j.tokenFrom(r)
	if token == "" {
		return nil, nil
	}
	d, err := j.Parse(token)
	if err != nil {
		return nil, nil
	}
	return d, nil
}

func (j *JWTResolver) tokenFrom(r *http.Request) string {
	if token, ok := bearerToken(r.Header.Get("Authorization")); ok {
		return token
	}
	if j.config.CookieName != "" {
		if c, err := r.Cookie(j.config.CookieName); err == nil {
			return c.Value
		}
	}
	return ""
}

// Issue signs a token for d valid for ttl. It needs a private key; identity
// providers use it in development and tests only.
func (j *JWTResolver) Issue(d Descriptor, ttl time.Duration) (string, error) {
	if ttl <= 0 {
		return "", errors.New("invalid TTL")
	}
	if d.UserID == "" || !d.Role.Valid() {
		return "", ErrInvalidToken
	}
	issuedAt := d.IssuedAt
	if issuedAt.IsZero() {
		issuedAt = j.config.Clock()
	}

	claims := Claims{
		Email:      d.Email,
		TenantID:   d.TenantID,
		TenantName: d.TenantName,
		Role:       d.Role.String(),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   d.UserID,
			Issuer:    j.config.Issuer,
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(issuedAt.Add(ttl)),
		},
	}
	if j.config.Audience != "" {
		claims.Audience = jwt.ClaimStrings{j.config.Audience}
	}

	token := jwt.NewWithClaims(j.method(), claims)
	if j.config.KeyID != "" {
		token.Header["kid"] = j.config.KeyID
	}

	signKey, err := j.signKey()
	if err != nil {
		return "", err
	}
	return token.SignedString(signKey)
}

// Parse verifies token and converts its claims. All failures wrap
// ErrInvalidToken.
func (j *JWTResolver) Parse(token string) (*Descriptor, error) {
	options := []jwt.ParserOption{
		jwt.WithValidMethods([]string{j.method().Alg()}),
		jwt.WithIssuedAt(),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(j.config.Clock),
	}
	if j.config.Leeway > 0 {
		options = append(options, jwt.WithLeeway(j.config.Leeway))
	}
	if j.config.Issuer != "" {
		options = append(options, jwt.WithIssuer(j.config.Issuer))
	}
	if j.config.Audience != "" {
		options = append(options, jwt.WithAudience(j.config.Audience))
	}

	parsed, err := jwt.NewParser(options...).ParseWithClaims(token, &Claims{}, j.keyFunc)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, ErrInvalidToken
	}
	if claims.Subject == "" || claims.IssuedAt == nil {
		return nil, fmt.Errorf("%w: missing sub or iat", ErrInvalidToken)
	}
	role, err := permission.ParseRole(claims.Role)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	return &Descriptor{
		UserID:     claims.Subject,
		Email:      claims.Email,
		TenantID:   claims.TenantID,
		TenantName: claims.TenantName,
		Role:       role,
		IssuedAt:   claims.IssuedAt.Time.UTC(),
	}, nil
}

func (j *JWTResolver) keyFunc(t *jwt.Token) (interface{}, error) {
	if t.Method.Alg() != j.method().Alg() {
		return nil, fmt.Errorf("unexpected signing algorithm: %s", t.Method.Alg())
	}

	if len(j.config.VerifyKeys) > 0 {
		kid, _ := t.Header["kid"].(string)
		if kid == "" {
			return nil, errors.New("missing kid")
		}
		key, ok := j.config.VerifyKeys[kid]
		if !ok {
			return nil, errors.New("unknown kid")
		}
		return j.verifyKeyFromBytes(key)
	}

	if j.config.KeyID != "" {
		kid, _ := t.Header["kid"].(string)
		if kid != j.config.KeyID {
			return nil, errors.New("unknown kid")
		}
	}

	return j.verifyKey()
}

func (j *JWTResolver) method() jwt.SigningMethod {
	if j.config.SigningMethod == MethodHS256 {
		return jwt.SigningMethodHS256
	}
	return jwt.SigningMethodEdDSA
}

func (j *JWTResolver) signKey() (interface{}, error) {
	if j.config.SigningMethod == MethodHS256 {
		return j.config.PrivateKey, nil
	}
	if len(j.config.PrivateKey) == 0 {
		return nil, errors.New("no private key configured")
	}
	return parseEdPrivateKey(j.config.PrivateKey)
}

func (j *JWTResolver) verifyKey() (interface{}, error) {
	if j.config.SigningMethod == MethodHS256 {
		return j.config.PrivateKey, nil
	}
	return parseEdPublicKey(j.config.PublicKey)
}

func (j *JWTResolver) verifyKeyFromBytes(key []byte) (interface{}, error) {
	if j.config.SigningMethod == MethodHS256 {
		return key, nil
	}
	return parseEdPublicKey(key)
}

func parseEdPrivateKey(key []byte) (ed25519.PrivateKey, error) {
	if len(key) == ed25519.PrivateKeySize {
		return ed25519.PrivateKey(key), nil
	}
	parsed, err := jwt.ParseEdPrivateKeyFromPEM(key)
	if err != nil {
		return nil, errors.New("invalid ed25519 private key")
	}
	edKey, ok := parsed.(ed25519.PrivateKey)
	if !ok {
		return nil, errors.New("invalid ed25519 private key type")
	}
	return edKey, nil
}

func parseEdPublicKey(key []byte) (ed25519.PublicKey, error) {
	if len(key) == ed25519.PublicKeySize {
		return ed25519.PublicKey(key), nil
	}
	parsed, err := jwt.ParseEdPublicKeyFromPEM(key)
	if err != nil {
		return nil, errors.New("invalid ed25519 public key")
	}
	edKey, ok := parsed.(ed25519.PublicKey)
	if !ok {
		return nil, errors.New("invalid ed25519 public key type")
	}
	return edKey, nil
}

func bearerToken(value string) (string, bool) {
	const bearer = "Bearer "
	if !strings.HasPrefix(value, bearer) {
		return "", false
	}
	token := strings.TrimSpace(value[len(bearer):])
	return token, token != ""
}
