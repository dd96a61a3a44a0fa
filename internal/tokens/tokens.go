package tokens

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Helpers for reading payload data out of provider-issued JWTs without
// verifying them. The agent never validates signatures itself: trusted
// claims come from the OIDC verifier, these helpers only feed refresh
// scheduling and diagnostics.

// UnverifiedClaims decodes the claim set of a raw JWT without checking
// the signature.
func UnverifiedClaims(raw string) (map[string]interface{}, error) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(raw, claims); err != nil {
		return nil, fmt.Errorf("parse token: %w", err)
	}
	return claims, nil
}

// ExpiryOf returns the `exp` claim of a raw JWT as a time.Time.
func ExpiryOf(raw string) (time.Time, error) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(raw, claims); err != nil {
		return time.Time{}, fmt.Errorf("parse token: %w", err)
	}
	exp, err := claims.GetExpirationTime()
	if err != nil {
		return time.Time{}, fmt.Errorf("read exp claim: %w", err)
	}
	if exp == nil {
		return time.Time{}, fmt.Errorf("exp claim not present")
	}
	return exp.Time, nil
}
