package iam

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Claims is the unverified payload of an access token.
type Claims struct {
	Subject   string
	Issuer    string
	ExpiresAt time.Time // zero when the token carries no exp
	IssuedAt  time.Time
	Raw       jwt.MapClaims
}

// Expired reports whether the token's exp lies before now.
func (c Claims) Expired(now time.Time) bool {
	return !c.ExpiresAt.IsZero() && c.ExpiresAt.Before(now)
}

// DecodeClaims reads the claims of a JWT access token without checking its
// signature. It is meant for display only; the identity service remains the
// authority on validity.
func DecodeClaims(token string) (Claims, error) {
	raw := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, raw); err != nil {
		return Claims{}, fmt.Errorf("access token is not a JWT: %w", err)
	}

	claims := Claims{Raw: raw}
	claims.Subject, _ = raw.GetSubject()
	claims.Issuer, _ = raw.GetIssuer()
	if exp, err := raw.GetExpirationTime(); err == nil && exp != nil {
		claims.ExpiresAt = exp.Time
	}
	if iat, err := raw.GetIssuedAt(); err == nil && iat != nil {
		claims.IssuedAt = iat.Time
	}
	return claims, nil
}
