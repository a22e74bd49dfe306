package auth

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func signToken(t *testing.T, secret string, sub string, expiry time.Time) string {
	t.Helper()
	claims := jwt.MapClaims{"sub": sub}
	if !expiry.IsZero() {
		claims["exp"] = expiry.Unix()
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	require.NoError(t, err)
	return signed
}

func TestJWTVerifier_Verify(t *testing.T) {
	v := NewJWTVerifier("s3cret")

	t.Run("valid token returns user id", func(t *testing.T) {
		tok := signToken(t, "s3cret", "42", time.Now().Add(time.Hour))
		uid, err := v.Verify(tok)
		require.NoError(t, err)
		assert.Equal(t, int64(42), uid)
	})

	t.Run("expired token fails", func(t *testing.T) {
		tok := signToken(t, "s3cret", "42", time.Now().Add(-time.Hour))
		_, err := v.Verify(tok)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("wrong secret fails", func(t *testing.T) {
		tok := signToken(t, "other-secret", "42", time.Now().Add(time.Hour))
		_, err := v.Verify(tok)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("malformed token fails", func(t *testing.T) {
		_, err := v.Verify("not-a-jwt")
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("non-numeric subject fails", func(t *testing.T) {
		tok := signToken(t, "s3cret", "not-a-number", time.Now().Add(time.Hour))
		_, err := v.Verify(tok)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})
}

func TestExtractToken(t *testing.T) {
	t.Run("query parameter takes precedence", func(t *testing.T) {
		u, _ := url.Parse("/ws/?token=from-query")
		r := &http.Request{URL: u, Header: http.Header{"Authorization": {"Bearer from-header"}}}
		assert.Equal(t, "from-query", ExtractToken(r))
	})

	t.Run("falls back to header", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodGet, "/ws/", nil)
		r.Header.Set("Authorization", "Bearer from-header")
		assert.Equal(t, "from-header", ExtractToken(r))
	})

	t.Run("absent yields empty string", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodGet, "/ws/", nil)
		assert.Equal(t, "", ExtractToken(r))
	})

	t.Run("non-bearer auth header is ignored", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodGet, "/ws/", nil)
		r.Header.Set("Authorization", "Basic dXNlcjpwYXNz")
		assert.Equal(t, "", ExtractToken(r))
	})
}
