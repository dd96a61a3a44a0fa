package tokens

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func signedToken(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	jt := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	raw, err := jt.SignedString([]byte("test-secret-32-bytes-should-be-long"))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return raw
}

func TestUnverifiedClaims(t *testing.T) {
	raw := signedToken(t, jwt.MapClaims{
		"sub":   "user-1",
		"email": "a@x.com",
		"exp":   time.Now().Add(time.Hour).Unix(),
	})

	claims, err := UnverifiedClaims(raw)
	if err != nil {
		t.Fatalf("UnverifiedClaims error: %v", err)
	}
	if claims["sub"] != "user-1" {
		t.Fatalf("unexpected sub: %v", claims["sub"])
	}
	if claims["email"] != "a@x.com" {
		t.Fatalf("unexpected email: %v", claims["email"])
	}
}

func TestUnverifiedClaims_Malformed(t *testing.T) {
	if _, err := UnverifiedClaims("not.a.jwt"); err == nil {
		t.Fatalf("expected error for malformed token")
	}
	if _, err := UnverifiedClaims(""); err == nil {
		t.Fatalf("expected error for empty token")
	}
}

func TestExpiryOf(t *testing.T) {
	want := time.Now().Add(30 * time.Minute).Truncate(time.Second)
	raw := signedToken(t, jwt.MapClaims{"sub": "u1", "exp": want.Unix()})

	got, err := ExpiryOf(raw)
	if err != nil {
		t.Fatalf("ExpiryOf error: %v", err)
	}
	if !got.Equal(want) {
		t.Fatalf("ExpiryOf = %v, want %v", got, want)
	}
}

func TestExpiryOf_MissingExp(t *testing.T) {
	raw := signedToken(t, jwt.MapClaims{"sub": "u1"})
	if _, err := ExpiryOf(raw); err == nil {
		t.Fatalf("expected error when exp claim absent")
	}
}
