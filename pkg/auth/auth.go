// Package auth implements the Auth Adapter (C3): verifying a bearer token
// and extracting it from an inbound WebSocket upgrade request.
package auth

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/golang-jwt/jwt/v4"
)

// ErrInvalidToken covers every way a token can fail verification: missing,
// malformed, expired, or wrong signature. The Session Actor treats all of
// these the same way (close 4001) per spec.md §4.5.
var ErrInvalidToken = errors.New("auth: invalid token")

// Verifier validates a bearer token and returns the caller's user id.
type Verifier interface {
	Verify(token string) (userID int64, err error)
}

// JWTVerifier validates HS256 JWTs whose "sub" claim is the stringified
// user id, matching the external token issuer described in spec.md §6.2.
type JWTVerifier struct {
	secret []byte
}

func NewJWTVerifier(secret string) *JWTVerifier {
	return &JWTVerifier{secret: []byte(secret)}
}

func (v *JWTVerifier) Verify(token string) (int64, error) {
	claims := jwt.MapClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return v.secret, nil
	})
	if err != nil || !parsed.Valid {
		return 0, ErrInvalidToken
	}

	sub, ok := claims["sub"].(string)
	if !ok {
		return 0, ErrInvalidToken
	}
	userID, err := strconv.ParseInt(sub, 10, 64)
	if err != nil {
		return 0, ErrInvalidToken
	}
	return userID, nil
}

// ExtractToken finds the bearer token on an inbound request, checking the
// "token" query parameter first and the Authorization header second, per
// spec.md §4.3. Returns "" if neither is present.
func ExtractToken(r *http.Request) string {
	if t := r.URL.Query().Get("token"); t != "" {
		return t
	}
	auth := r.Header.Get("Authorization")
	if strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimPrefix(auth, "Bearer ")
	}
	return ""
}
