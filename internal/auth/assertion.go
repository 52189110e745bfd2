// Package auth mints service-account assertions and exchanges them for
// OAuth2 access tokens using the JWT-bearer grant.
package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/tinywideclouds/go-push-dispatcher/pkg/dispatch"
)

const (
	// MessagingScope is the scope the token endpoint grants for FCM sends.
	MessagingScope = "https://www.googleapis.com/auth/firebase.messaging"

	// AssertionLifetime is fixed; the exchange must complete inside it.
	AssertionLifetime = 3600 * time.Second
)

// SignAssertion builds the RS256 JWT for identity at instant now.
// The result is header.claims.signature, each segment raw base64url.
func SignAssertion(identity dispatch.ServiceIdentity, now time.Time) (string, error) {
	key, err := ParsePrivateKey(identity.PrivateKey)
	if err != nil {
		return "", err
	}

	audience := identity.TokenURI
	if audience == "" {
		audience = dispatch.DefaultTokenURI
	}

	iat := now.Unix()
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, jwt.MapClaims{
		"iss":   identity.ClientEmail,
		"scope": MessagingScope,
		"aud":   audience,
		"iat":   iat,
		"exp":   iat + int64(AssertionLifetime/time.Second),
	})

	signed, err := token.SignedString(key)
	if err != nil {
		return "", fmt.Errorf("failed to sign assertion: %w", err)
	}
	return signed, nil
}
