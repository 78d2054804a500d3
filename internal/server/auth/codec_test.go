package auth

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/dmitrijs2005/gophauth/internal/common"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func newTestCodec(t *testing.T, secret string, opts ...CodecOption) *Codec {
	t.Helper()
	c, err := NewCodec([]byte(secret), "HS256", opts...)
	require.NoError(t, err)
	return c
}

func TestNewCodec_Validation(t *testing.T) {
	_, err := NewCodec(nil, "HS256")
	assert.Error(t, err)

	_, err = NewCodec([]byte("k"), "RS256")
	assert.Error(t, err)

	_, err = NewCodec([]byte("k"), "none")
	assert.Error(t, err)

	_, err = NewCodec([]byte("k"), "HS256", WithLeeway(-time.Second))
	assert.Error(t, err)

	for _, alg := range []string{"HS256", "HS384", "HS512"} {
		_, err := NewCodec([]byte("k"), alg)
		assert.NoError(t, err, alg)
	}
}

func TestIssueAndVerify_RoundTrip(t *testing.T) {
	t.Parallel()

	c := newTestCodec(t, "super-secret")

	for _, subject := range []string{"user-123", "3f1c0f8e-7d3e-4a51-9a0b-2f3c4d5e6f70", "x"} {
		for _, ttl := range []time.Duration{time.Second, 15 * time.Minute, 7 * 24 * time.Hour} {
			tok, err := c.Issue(subject, TokenTypeAccess, ttl)
			require.NoError(t, err)

			claims, err := c.Verify(tok, TokenTypeAccess)
			require.NoError(t, err)
			assert.Equal(t, subject, claims.Subject)
			assert.Equal(t, TokenTypeAccess, claims.Type)

			_, err = c.Verify(tok, TokenTypeRefresh)
			assert.ErrorIs(t, err, common.ErrInvalidToken)
		}
	}
}

func TestVerify_RefreshNotAcceptedAsAccess(t *testing.T) {
	c := newTestCodec(t, "k")

	tok, err := c.IssueWithID("u1", TokenTypeRefresh, time.Hour, "jti-1")
	require.NoError(t, err)

	_, err = c.Verify(tok, TokenTypeAccess)
	assert.ErrorIs(t, err, common.ErrInvalidToken)

	claims, err := c.Verify(tok, TokenTypeRefresh)
	require.NoError(t, err)
	assert.Equal(t, "jti-1", claims.ID)
}

func TestIssue_Deterministic(t *testing.T) {
	now := time.Date(2026, 10, 14, 9, 30, 0, 0, time.UTC)
	a := newTestCodec(t, "k", WithClock(fixedClock(now)))
	b := newTestCodec(t, "k", WithClock(fixedClock(now)))

	t1, err := a.Issue("u1", TokenTypeAccess, time.Minute)
	require.NoError(t, err)
	t2, err := b.Issue("u1", TokenTypeAccess, time.Minute)
	require.NoError(t, err)
	assert.Equal(t, t1, t2)

	other := newTestCodec(t, "other", WithClock(fixedClock(now)))
	t3, err := other.Issue("u1", TokenTypeAccess, time.Minute)
	require.NoError(t, err)
	assert.NotEqual(t, t1, t3)
}

func TestVerify_Expired(t *testing.T) {
	t.Parallel()

	c := newTestCodec(t, "secret")

	tok, err := c.Issue("u1", TokenTypeAccess, -1*time.Second)
	require.NoError(t, err)

	_, err = c.Verify(tok, TokenTypeAccess)
	assert.ErrorIs(t, err, common.ErrTokenExpired)

	// wrong type wins over expiry
	_, err = c.Verify(tok, TokenTypeRefresh)
	assert.ErrorIs(t, err, common.ErrInvalidToken)
}

func TestVerify_LeewayAcceptsSmallSkew(t *testing.T) {
	issued := time.Date(2026, 10, 14, 9, 0, 0, 0, time.UTC)
	now := issued
	clock := func() time.Time { return now }

	c := newTestCodec(t, "k", WithClock(clock), WithLeeway(5*time.Second))
	tok, err := c.Issue("u1", TokenTypeAccess, time.Minute)
	require.NoError(t, err)

	now = issued.Add(time.Minute + 3*time.Second)
	_, err = c.Verify(tok, TokenTypeAccess)
	assert.NoError(t, err)

	now = issued.Add(time.Minute + 6*time.Second)
	_, err = c.Verify(tok, TokenTypeAccess)
	assert.ErrorIs(t, err, common.ErrTokenExpired)
}

func TestVerify_WrongSecret(t *testing.T) {
	t.Parallel()

	tok, err := newTestCodec(t, "right-secret").Issue("u2", TokenTypeAccess, time.Hour)
	require.NoError(t, err)

	_, err = newTestCodec(t, "wrong-secret").Verify(tok, TokenTypeAccess)
	assert.ErrorIs(t, err, common.ErrInvalidToken)
}

func TestVerify_MalformedString(t *testing.T) {
	t.Parallel()

	c := newTestCodec(t, "k")
	for _, tok := range []string{"", "not.a.jwt", "abc", strings.Repeat("a.", 3)} {
		_, err := c.Verify(tok, TokenTypeAccess)
		assert.ErrorIs(t, err, common.ErrInvalidToken, tok)
	}
}

func TestVerify_RejectsOtherAlgorithms(t *testing.T) {
	c := newTestCodec(t, "k")

	// Same secret, different HMAC size.
	hs512, err := jwt.NewWithClaims(jwt.SigningMethodHS512, Claims{
		Type:             TokenTypeAccess,
		RegisteredClaims: jwt.RegisteredClaims{Subject: "u1", ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour))},
	}).SignedString([]byte("k"))
	require.NoError(t, err)

	_, err = c.Verify(hs512, TokenTypeAccess)
	assert.ErrorIs(t, err, common.ErrInvalidToken)

	unsigned, err := jwt.NewWithClaims(jwt.SigningMethodNone, Claims{
		Type:             TokenTypeAccess,
		RegisteredClaims: jwt.RegisteredClaims{Subject: "u1", ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour))},
	}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	_, err = c.Verify(unsigned, TokenTypeAccess)
	assert.ErrorIs(t, err, common.ErrInvalidToken)
}

func TestVerify_MissingSubjectOrExp(t *testing.T) {
	c := newTestCodec(t, "k")

	noSub, err := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		Type:             TokenTypeAccess,
		RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour))},
	}).SignedString([]byte("k"))
	require.NoError(t, err)
	_, err = c.Verify(noSub, TokenTypeAccess)
	assert.ErrorIs(t, err, common.ErrInvalidToken)

	noExp, err := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		Type:             TokenTypeRefresh,
		RegisteredClaims: jwt.RegisteredClaims{Subject: "u1"},
	}).SignedString([]byte("k"))
	require.NoError(t, err)
	_, err = c.Verify(noExp, TokenTypeRefresh)
	assert.ErrorIs(t, err, common.ErrInvalidToken)
	_, err = c.VerifyIgnoringExpiry(noExp, TokenTypeRefresh)
	assert.ErrorIs(t, err, common.ErrInvalidToken)
}

func TestVerifyIgnoringExpiry(t *testing.T) {
	issued := time.Date(2026, 10, 14, 9, 0, 0, 0, time.UTC)
	now := issued
	c := newTestCodec(t, "k", WithClock(func() time.Time { return now }))

	tok, err := c.IssueWithID("u1", TokenTypeRefresh, time.Hour, "j")
	require.NoError(t, err)

	now = issued.Add(2 * time.Hour)

	claims, err := c.VerifyIgnoringExpiry(tok, TokenTypeRefresh)
	require.NoError(t, err)
	assert.Equal(t, "u1", claims.Subject)
	assert.True(t, c.Expired(claims))

	_, err = c.VerifyIgnoringExpiry(tok, TokenTypeAccess)
	assert.ErrorIs(t, err, common.ErrInvalidToken)

	_, err = newTestCodec(t, "other").VerifyIgnoringExpiry(tok, TokenTypeRefresh)
	assert.True(t, errors.Is(err, common.ErrInvalidToken))
}
