// Package auth issues and checks the server's bearer tokens and password
// hashes.
package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/dmitrijs2005/peerlearn/internal/common"
)

// Token types carried in the "type" claim. An access token is never
// accepted where a refresh token is expected and vice versa.
const (
	TypeAccess  = "access"
	TypeRefresh = "refresh"
)

// Claims are the registered claims plus the token type. Subject holds the
// user's email.
type Claims struct {
	jwt.RegisteredClaims
	Type string `json:"type"`
}

func GenerateToken(email, tokenType string, secretKey []byte, validityDuration time.Duration) (string, error) {
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   email,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(validityDuration)),
			// two tokens minted in the same second must still differ
			ID: uuid.NewString(),
		},
		Type: tokenType,
	})

	tokenString, err := token.SignedString(secretKey)
	if err != nil {
		return "", err
	}

	return tokenString, nil
}

// GetEmailFromToken validates tokenString and returns its subject. The token
// must be HS256-signed with secretKey, unexpired and of tokenType.
func GetEmailFromToken(tokenString, tokenType string, secretKey []byte) (string, error) {
	claims := &Claims{}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		return secretKey, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return "", common.ErrTokenExpired
		}
		return "", common.ErrInvalidToken
	}

	if !token.Valid || claims.Subject == "" || claims.Type != tokenType {
		return "", common.ErrInvalidToken
	}

	return claims.Subject, nil
}
