// Package auth implements the token codec (signed, expiring {sub, type, exp}
// claims) and the one-way hashing of refresh tokens for storage.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/gophauth/internal/common"
	"github.com/golang-jwt/jwt/v5"
)

// TokenType separates access tokens from refresh tokens so that one can
// never be accepted in place of the other.
type TokenType string

const (
	TokenTypeAccess  TokenType = "access"
	TokenTypeRefresh TokenType = "refresh"
)

// Claims are the signed token contents. Subject is the user ID.
type Claims struct {
	Type TokenType `json:"type"`
	jwt.RegisteredClaims
}

// Codec signs and verifies tokens with a single HMAC secret. It is immutable
// after construction and safe for concurrent use.
type Codec struct {
	secret []byte
	method jwt.SigningMethod
	leeway time.Duration
	now    func() time.Time
}

// CodecOption customizes a Codec.
type CodecOption func(*Codec)

// WithClock overrides the time source used for exp/iat.
func WithClock(now func() time.Time) CodecOption {
	return func(c *Codec) { c.now = now }
}

// WithLeeway tolerates clock skew of d when checking exp.
func WithLeeway(d time.Duration) CodecOption {
	return func(c *Codec) { c.leeway = d }
}

// NewCodec builds a Codec for one of HS256, HS384 or HS512.
func NewCodec(secret []byte, algorithm string, opts ...CodecOption) (*Codec, error) {
	if len(secret) == 0 {
		return nil, errors.New("empty signing secret")
	}
	method, ok := jwt.GetSigningMethod(algorithm).(*jwt.SigningMethodHMAC)
	if !ok {
		return nil, fmt.Errorf("unsupported signing algorithm %q", algorithm)
	}

	c := &Codec{
		secret: append([]byte(nil), secret...),
		method: method,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.leeway < 0 {
		return nil, errors.New("negative leeway")
	}
	return c, nil
}

// Issue signs {sub, type, iat, exp=now+ttl}. The same inputs at the same
// instant yield the same token.
func (c *Codec) Issue(subject string, typ TokenType, ttl time.Duration) (string, error) {
	return c.IssueWithID(subject, typ, ttl, "")
}

// IssueWithID is Issue with a jti claim. Refresh tokens carry a random jti so
// every issued token, and therefore every stored hash, is unique.
func (c *Codec) IssueWithID(subject string, typ TokenType, ttl time.Duration, id string) (string, error) {
	if subject == "" {
		return "", errors.New("empty subject")
	}
	now := c.now()
	claims := Claims{
		Type: typ,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			ID:        id,
		},
	}
	return jwt.NewWithClaims(c.method, claims).SignedString(c.secret)
}

// Verify checks signature, algorithm, exp and type. Expired tokens of the
// expected type fail with common.ErrTokenExpired; every other failure is
// common.ErrInvalidToken.
func (c *Codec) Verify(token string, expected TokenType) (*Claims, error) {
	claims, err := c.parse(token, jwt.WithExpirationRequired(), jwt.WithLeeway(c.leeway))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) && claims != nil && claims.Type == expected {
			return nil, common.ErrTokenExpired
		}
		return nil, fmt.Errorf("%w: %v", common.ErrInvalidToken, err)
	}
	if err := checkClaims(claims, expected); err != nil {
		return nil, err
	}
	return claims, nil
}

// VerifyIgnoringExpiry checks signature, algorithm and type but leaves exp to
// the caller. Used by refresh rotation, where a revoked token must be
// reported as reuse even after it expired.
func (c *Codec) VerifyIgnoringExpiry(token string, expected TokenType) (*Claims, error) {
	claims, err := c.parse(token, jwt.WithoutClaimsValidation())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrInvalidToken, err)
	}
	if err := checkClaims(claims, expected); err != nil {
		return nil, err
	}
	if claims.ExpiresAt == nil {
		return nil, fmt.Errorf("%w: missing exp", common.ErrInvalidToken)
	}
	return claims, nil
}

// Expired reports whether claims are past exp at the codec's current time.
func (c *Codec) Expired(claims *Claims) bool {
	if claims.ExpiresAt == nil {
		return true
	}
	return !c.now().Before(claims.ExpiresAt.Add(c.leeway))
}

func (c *Codec) parse(token string, opts ...jwt.ParserOption) (*Claims, error) {
	opts = append(opts,
		jwt.WithValidMethods([]string{c.method.Alg()}),
		jwt.WithTimeFunc(c.now),
	)
	claims := &Claims{}
	parsed, err := jwt.NewParser(opts...).ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		if t.Method.Alg() != c.method.Alg() {
			return nil, fmt.Errorf("unexpected signing algorithm: %s", t.Method.Alg())
		}
		return c.secret, nil
	})
	if err != nil {
		return claims, err
	}
	if !parsed.Valid {
		return claims, errors.New("token is not valid")
	}
	return claims, nil
}

func checkClaims(claims *Claims, expected TokenType) error {
	if claims.Type != expected {
		return fmt.Errorf("%w: token type %q, want %q", common.ErrInvalidToken, claims.Type, expected)
	}
	if claims.Subject == "" {
		return fmt.Errorf("%w: missing subject", common.ErrInvalidToken)
	}
	return nil
}
