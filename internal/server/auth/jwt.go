// Package auth issues and verifies the HS256 access tokens that carry the
// actor id of intake writers.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/intakekeeper/internal/common"
	"github.com/golang-jwt/jwt/v5"
)

// Claims are the registered claims plus the acting caseworker.
type Claims struct {
	jwt.RegisteredClaims
	ActorID string `json:"actor_id"`
}

// IssueAccessToken signs a token for actorID valid for validity.
func IssueAccessToken(actorID string, secretKey []byte, validity time.Duration) (string, error) {
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   actorID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(validity)),
		},
		ActorID: actorID,
	})
	return token.SignedString(secretKey)
}

// ActorIDFromToken verifies the token and returns its actor id. Expired
// tokens yield common.ErrTokenExpired, anything else common.ErrInvalidToken.
func ActorIDFromToken(tokenString string, secretKey []byte) (string, error) {
	claims := &Claims{}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		return secretKey, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if errors.Is(err, jwt.ErrTokenExpired) {
		return "", common.ErrTokenExpired
	}
	if err != nil {
		return "", fmt.Errorf("%w: %v", common.ErrInvalidToken, err)
	}
	if !token.Valid || claims.ActorID == "" {
		return "", common.ErrInvalidToken
	}

	return claims.ActorID, nil
}
