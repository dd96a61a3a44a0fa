package provider

import (
	"context"
	"fmt"
	"time"
)

// ChangeEvent is the kind of auth state transition reported by the provider.
type ChangeEvent string

const (
	EventSignedIn       ChangeEvent = "signed_in"
	EventSignedOut      ChangeEvent = "signed_out"
	EventTokenRefreshed ChangeEvent = "token_refreshed"
)

// SessionUser is the provider-owned user record attached to a session.
// Metadata is free-form; consumers read full_name, company_name, role and
// permissions out of it and must tolerate any of them being absent.
type SessionUser struct {
	ID       string                 `json:"id"`
	Email    string                 `json:"email"`
	Metadata map[string]interface{} `json:"metadata"`
}

// Session is the provider's record of an active login.
type Session struct {
	AccessToken      string       `json:"accessToken"`
	RefreshToken     string       `json:"refreshToken"`
	IDToken          string       `json:"idToken"`
	ExpiresAt        time.Time    `json:"expiresAt"`
	RefreshExpiresAt time.Time    `json:"refreshExpiresAt,omitempty"`
	User             *SessionUser `json:"user"`
}

// Listener receives change events. The session is nil for signed_out.
type Listener func(event ChangeEvent, s *Session)

// Subscription is a disposable registration handle. Unsubscribe is
// idempotent.
type Subscription interface {
	Unsubscribe()
}

// Client is the surface the agent consumes from an external auth provider.
// Implementations delegate all credential handling to the provider; the
// agent never validates passwords or mints tokens itself.
type Client interface {
	// CurrentSession returns the active session, or nil when signed out.
	CurrentSession(ctx context.Context) (*Session, error)
	// OnAuthChange registers a listener for subsequent session changes.
	OnAuthChange(fn Listener) Subscription
	// SignInWithPassword delegates a credential sign-in to the provider.
	// Failures are returned (typically as *AuthError), never panicked.
	SignInWithPassword(ctx context.Context, email, password string) error
	// SignOut ends the provider session and always clears local session
	// state, even when the provider call fails.
	SignOut(ctx context.Context) error
}

// SessionStore persists the client's session between agent runs (the
// browser-localStorage analog). Implementations live in internal/sessions.
type SessionStore interface {
	Save(ctx context.Context, s *Session) error
	Load(ctx context.Context) (*Session, error)
	Clear(ctx context.Context) error
}

// AuthError is the provider-defined sign-in failure, surfaced to callers
// unchanged. Code and Description carry the provider's own error fields.
type AuthError struct {
	Status      int
	Code        string
	Description string
}

func (e *AuthError) Error() string {
	if e.Description == "" {
		return fmt.Sprintf("provider: %s (status %d)", e.Code, e.Status)
	}
	return fmt.Sprintf("provider: %s: %s (status %d)", e.Code, e.Description, e.Status)
}

// Expired reports whether the session's access token has passed its expiry.
// Sessions without a known expiry are treated as still valid.
func (s *Session) Expired(now time.Time) bool {
	if s == nil {
		return true
	}
	return !s.ExpiresAt.IsZero() && now.After(s.ExpiresAt)
}
