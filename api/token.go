package api

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v4"
)

// SignHMACToken mints an HS256 token accepted by NewHMACAuth with the same secret.
// Empty audience or issuer leave the claim out.
func SignHMACToken(secret []byte, userID, audience, issuer string, ttl time.Duration) (string, error) {
	if len(secret) == 0 {
		return "", errors.New("secret must be set")
	}
	if userID == "" {
		return "", errors.New("user id must be set")
	}
	now := time.Now()
	claims := jwt.MapClaims{
		"sub": userID,
		"iat": now.Unix(),
		"exp": now.Add(ttl).Unix(),
	}
	if audience != "" {
		claims["aud"] = audience
	}
	if issuer != "" {
		claims["iss"] = issuer
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
}
