package auth

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestIssuer(t *testing.T, secret string, ttl time.Duration) *TokenIssuer {
	t.Helper()
	issuer, err := NewTokenIssuer(TokenConfig{Secret: secret, TTL: ttl, Issuer: "todo-api"})
	require.NoError(t, err)
	return issuer
}

func TestIssueAndVerify(t *testing.T) {
	t.Parallel()
	issuer := newTestIssuer(t, "super-secret", time.Hour)

	tok, err := issuer.Issue("user-123")
	require.NoError(t, err)

	claims, err := issuer.Verify(tok)
	require.NoError(t, err)
	assert.Equal(t, "user-123", claims.Subject)
	assert.Equal(t, AccessAuth, claims.Access)
	assert.Equal(t, "todo-api", claims.Issuer)
	assert.NotEmpty(t, claims.ID)
}

func TestIssueProducesDistinctTokens(t *testing.T) {
	t.Parallel()
	issuer := newTestIssuer(t, "secret", time.Hour)

	first, err := issuer.Issue("u1")
	require.NoError(t, err)
	second, err := issuer.Issue("u1")
	require.NoError(t, err)

	assert.NotEqual(t, first, second)
}

func TestVerifyExpired(t *testing.T) {
	t.Parallel()
	issuer := newTestIssuer(t, "secret", time.Hour)
	issuer.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }

	tok, err := issuer.Issue("u1")
	require.NoError(t, err)

	issuer.now = time.Now
	_, err = issuer.Verify(tok)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestVerifyWrongSecret(t *testing.T) {
	t.Parallel()
	tok, err := newTestIssuer(t, "right-secret", time.Hour).Issue("u2")
	require.NoError(t, err)

	_, err = newTestIssuer(t, "wrong-secret", time.Hour).Verify(tok)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestVerifyWrongIssuer(t *testing.T) {
	t.Parallel()
	other, err := NewTokenIssuer(TokenConfig{Secret: "secret", TTL: time.Hour, Issuer: "someone-else"})
	require.NoError(t, err)
	tok, err := other.Issue("u3")
	require.NoError(t, err)

	_, err = newTestIssuer(t, "secret", time.Hour).Verify(tok)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestVerifyRejectsForeignScope(t *testing.T) {
	t.Parallel()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "u4",
			Issuer:    "todo-api",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
		Access: "reset-password",
	})
	tok, err := token.SignedString([]byte("secret"))
	require.NoError(t, err)

	_, err = newTestIssuer(t, "secret", time.Hour).Verify(tok)
	assert.True(t, errors.Is(err, ErrInvalidToken))
}

func TestVerifyRejectsMissingExpiry(t *testing.T) {
	t.Parallel()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{Subject: "u5", Issuer: "todo-api"},
		Access:           AccessAuth,
	})
	tok, err := token.SignedString([]byte("secret"))
	require.NoError(t, err)

	_, err = newTestIssuer(t, "secret", time.Hour).Verify(tok)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestVerifyMalformed(t *testing.T) {
	t.Parallel()
	issuer := newTestIssuer(t, "k", time.Hour)

	for _, raw := range []string{"", "not.a.jwt", strings.Repeat("a", 40)} {
		_, err := issuer.Verify(raw)
		assert.ErrorIs(t, err, ErrInvalidToken, "token %q", raw)
	}
}

func TestNewTokenIssuerRequiresSecretAndTTL(t *testing.T) {
	_, err := NewTokenIssuer(TokenConfig{TTL: time.Hour})
	assert.Error(t, err)
	_, err = NewTokenIssuer(TokenConfig{Secret: "s"})
	assert.Error(t, err)
}
