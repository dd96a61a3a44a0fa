package oidc

import (
	"context"
	"encoding/json"

	"github.com/ikahadi647-afk/authbridge/internal/tokens"
	"github.com/ikahadi647-afk/authbridge/pkg/middleware"
)

// insecureToken exposes claims decoded from a JWT payload without any
// signature check.
type insecureToken struct {
	claims map[string]interface{}
}

func (t *insecureToken) Claims(v interface{}) error {
	b, err := json.Marshal(t.claims)
	if err != nil {
		return err
	}
	return json.Unmarshal(b, v)
}

// InsecureVerifier accepts any well-formed JWT and returns its payload
// claims. Only intended for local/integration runs under the explicit
// ALLOW_INSECURE_TOKEN opt-in; never wire it against a real provider.
type InsecureVerifier struct{}

func NewInsecureVerifier() *InsecureVerifier { return &InsecureVerifier{} }

func (v *InsecureVerifier) Verify(ctx context.Context, raw string) (middleware.Token, error) {
	claims, err := tokens.UnverifiedClaims(raw)
	if err != nil {
		return nil, err
	}
	return &insecureToken{claims: claims}, nil
}
