package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/ikahadi647-afk/authbridge/internal/tokens"
	"github.com/ikahadi647-afk/authbridge/pkg/logger"
	"github.com/ikahadi647-afk/authbridge/pkg/middleware"
)

const defaultRefreshSkew = 30 * time.Second

// Options configures a KeycloakClient.
type Options struct {
	URL          string // provider base URL, e.g. https://id.example.com
	Realm        string
	ClientID     string
	ClientSecret string

	// Verifier validates ID tokens (OIDC discovery). When nil,
	// AllowUnverified must be set; the client then trusts token payloads
	// without signature checks (integration mode only).
	Verifier        middleware.Verifier
	AllowUnverified bool

	// Store persists the session between agent runs. Optional.
	Store SessionStore

	// HTTPClient overrides the default 15s-timeout client.
	HTTPClient *http.Client

	// RefreshSkew is how long before access-token expiry the refresh
	// grant runs. Default 30s.
	RefreshSkew time.Duration
}

// KeycloakClient implements Client against a Keycloak-compatible provider
// using the resource-owner password grant, the refresh grant and RP
// logout. All authentication happens on the provider side; this client
// only moves tokens and reshapes verified claims into a SessionUser.
type KeycloakClient struct {
	tokenURL  string
	logoutURL string

	clientID        string
	clientSecret    string
	verifier        middleware.Verifier
	allowUnverified bool
	store           SessionStore
	httpc           *http.Client
	refreshSkew     time.Duration

	em  *emitter
	log *logger.Prefixed

	mu           sync.Mutex
	cur          *Session
	refreshTimer *time.Timer
	closed       bool
}

// NewKeycloakClient validates the options and returns a ready client. No
// network calls happen until the first operation.
func NewKeycloakClient(opts Options) (*KeycloakClient, error) {
	if opts.URL == "" || opts.Realm == "" || opts.ClientID == "" {
		return nil, fmt.Errorf("provider config missing (url, realm and client_id are required)")
	}
	if opts.Verifier == nil && !opts.AllowUnverified {
		return nil, fmt.Errorf("no ID token verifier configured and unverified mode not enabled")
	}
	issuer := strings.TrimRight(opts.URL, "/") + "/realms/" + opts.Realm
	httpc := opts.HTTPClient
	if httpc == nil {
		httpc = &http.Client{Timeout: 15 * time.Second}
	}
	skew := opts.RefreshSkew
	if skew <= 0 {
		skew = defaultRefreshSkew
	}
	return &KeycloakClient{
		tokenURL:        issuer + "/protocol/openid-connect/token",
		logoutURL:       issuer + "/protocol/openid-connect/logout",
		clientID:        opts.ClientID,
		clientSecret:    opts.ClientSecret,
		verifier:        opts.Verifier,
		allowUnverified: opts.AllowUnverified,
		store:           opts.Store,
		httpc:           httpc,
		refreshSkew:     skew,
		em:              newEmitter(),
		log:             logger.Component("provider"),
	}, nil
}

// OnAuthChange registers a listener for session change events.
func (c *KeycloakClient) OnAuthChange(fn Listener) Subscription {
	return c.em.subscribe(fn)
}

// CurrentSession returns the in-memory session when one is active,
// otherwise restores from the session store, renewing through the
// provider when the stored access token has already expired.
func (c *KeycloakClient) CurrentSession(ctx context.Context) (*Session, error) {
	c.mu.Lock()
	if c.cur != nil {
		s := *c.cur
		c.mu.Unlock()
		return &s, nil
	}
	c.mu.Unlock()

	if c.store == nil {
		return nil, nil
	}
	stored, err := c.store.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load stored session: %w", err)
	}
	if stored == nil {
		return nil, nil
	}
	if !stored.Expired(time.Now()) {
		c.adopt(stored)
		return stored, nil
	}
	if stored.RefreshToken == "" {
		_ = c.store.Clear(ctx)
		return nil, nil
	}
	renewed, err := c.exchangeRefresh(ctx, stored.RefreshToken)
	if err != nil {
		// a dead refresh token means the stored session is unusable
		_ = c.store.Clear(ctx)
		return nil, fmt.Errorf("refresh stored session: %w", err)
	}
	c.adopt(renewed)
	c.persist(ctx, renewed)
	c.em.emit(EventTokenRefreshed, renewed)
	return renewed, nil
}

// SignInWithPassword runs the password grant and establishes the session.
// Provider failures come back as *AuthError.
func (c *KeycloakClient) SignInWithPassword(ctx context.Context, email, password string) error {
	form := url.Values{}
	form.Set("grant_type", "password")
	form.Set("client_id", c.clientID)
	if c.clientSecret != "" {
		form.Set("client_secret", c.clientSecret)
	}
	form.Set("scope", "openid")
	form.Set("username", email)
	form.Set("password", password)

	tr, err := c.postToken(ctx, form)
	if err != nil {
		return err
	}
	sess, err := c.sessionFromTokens(ctx, tr)
	if err != nil {
		return fmt.Errorf("build session: %w", err)
	}
	c.adopt(sess)
	c.persist(ctx, sess)
	c.em.emit(EventSignedIn, sess)
	c.log.Infof("signed in as %s", sess.User.Email)
	return nil
}

// SignOut performs RP logout and clears local session state
// unconditionally: the signed_out event fires even when the provider
// call fails.
func (c *KeycloakClient) SignOut(ctx context.Context) error {
	c.mu.Lock()
	sess := c.cur
	c.cur = nil
	c.stopRefreshLocked()
	c.mu.Unlock()

	var err error
	if sess != nil && sess.RefreshToken != "" {
		err = c.revoke(ctx, sess.RefreshToken)
	}
	if c.store != nil {
		if cerr := c.store.Clear(ctx); cerr != nil {
			c.log.Warnf("clearing stored session: %v", cerr)
		}
	}
	c.em.emit(EventSignedOut, nil)
	if err != nil {
		return fmt.Errorf("provider logout: %w", err)
	}
	return nil
}

// Close stops the refresh timer. It does not end the provider session.
func (c *KeycloakClient) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	c.stopRefreshLocked()
}

// adopt installs the session as current and schedules its refresh.
func (c *KeycloakClient) adopt(s *Session) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cur = s
	c.scheduleRefreshLocked()
}

func (c *KeycloakClient) persist(ctx context.Context, s *Session) {
	if c.store == nil {
		return
	}
	if err := c.store.Save(ctx, s); err != nil {
		c.log.Warnf("persisting session: %v", err)
	}
}

func (c *KeycloakClient) stopRefreshLocked() {
	if c.refreshTimer != nil {
		c.refreshTimer.Stop()
		c.refreshTimer = nil
	}
}

func (c *KeycloakClient) scheduleRefreshLocked() {
	c.stopRefreshLocked()
	if c.closed || c.cur == nil || c.cur.RefreshToken == "" || c.cur.ExpiresAt.IsZero() {
		return
	}
	d := time.Until(c.cur.ExpiresAt) - c.refreshSkew
	if d < time.Second {
		d = time.Second
	}
	c.refreshTimer = time.AfterFunc(d, c.autoRefresh)
}

// autoRefresh renews the session shortly before expiry. One quick retry
// covers transient provider hiccups; a second failure drops the session
// (the provider would reject the stale token anyway).
func (c *KeycloakClient) autoRefresh() {
	c.mu.Lock()
	if c.closed || c.cur == nil {
		c.mu.Unlock()
		return
	}
	refresh := c.cur.RefreshToken
	c.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	renewed, err := c.exchangeRefresh(ctx, refresh)
	if err != nil {
		time.Sleep(2 * time.Second)
		renewed, err = c.exchangeRefresh(ctx, refresh)
	}
	if err != nil {
		c.log.Warnf("token refresh failed, dropping session: %v", err)
		c.mu.Lock()
		c.cur = nil
		c.stopRefreshLocked()
		c.mu.Unlock()
		if c.store != nil {
			_ = c.store.Clear(ctx)
		}
		c.em.emit(EventSignedOut, nil)
		return
	}
	c.adopt(renewed)
	c.persist(ctx, renewed)
	c.em.emit(EventTokenRefreshed, renewed)
}

func (c *KeycloakClient) exchangeRefresh(ctx context.Context, refreshToken string) (*Session, error) {
	form := url.Values{}
	form.Set("grant_type", "refresh_token")
	form.Set("client_id", c.clientID)
	if c.clientSecret != "" {
		form.Set("client_secret", c.clientSecret)
	}
	form.Set("refresh_token", refreshToken)

	tr, err := c.postToken(ctx, form)
	if err != nil {
		return nil, err
	}
	sess, err := c.sessionFromTokens(ctx, tr)
	if err != nil {
		return nil, fmt.Errorf("build session: %w", err)
	}
	return sess, nil
}

type tokenResponse struct {
	AccessToken      string `json:"access_token"`
	ExpiresIn        int    `json:"expires_in"`
	RefreshExpiresIn int    `json:"refresh_expires_in"`
	RefreshToken     string `json:"refresh_token"`
	IDToken          string `json:"id_token"`
}

func (c *KeycloakClient) postToken(ctx context.Context, form url.Values) (*tokenResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	resp, err := c.httpc.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		return nil, parseAuthError(resp.StatusCode, body)
	}
	var tr tokenResponse
	if err := json.Unmarshal(body, &tr); err != nil {
		return nil, fmt.Errorf("decode token response: %w", err)
	}
	return &tr, nil
}

func (c *KeycloakClient) revoke(ctx context.Context, refreshToken string) error {
	form := url.Values{}
	form.Set("client_id", c.clientID)
	if c.clientSecret != "" {
		form.Set("client_secret", c.clientSecret)
	}
	form.Set("refresh_token", refreshToken)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.logoutURL, strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	resp, err := c.httpc.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("logout endpoint returned %d: %s", resp.StatusCode, strings.TrimSpace(string(b)))
	}
	return nil
}

func (c *KeycloakClient) sessionFromTokens(ctx context.Context, tr *tokenResponse) (*Session, error) {
	now := time.Now().UTC()
	sess := &Session{
		AccessToken:  tr.AccessToken,
		RefreshToken: tr.RefreshToken,
		IDToken:      tr.IDToken,
	}
	if tr.ExpiresIn > 0 {
		sess.ExpiresAt = now.Add(time.Duration(tr.ExpiresIn) * time.Second)
	} else if exp, err := tokens.ExpiryOf(tr.AccessToken); err == nil {
		sess.ExpiresAt = exp
	}
	if tr.RefreshExpiresIn > 0 {
		sess.RefreshExpiresAt = now.Add(time.Duration(tr.RefreshExpiresIn) * time.Second)
	}

	raw := tr.IDToken
	if raw == "" {
		// providers omit id_token without the openid scope; the access
		// token carries the same identity claims
		raw = tr.AccessToken
	}
	claims, err := c.claims(ctx, raw)
	if err != nil {
		return nil, err
	}
	u := sessionUserFromClaims(claims)
	if u.ID == "" {
		return nil, fmt.Errorf("token missing sub claim")
	}
	sess.User = u
	return sess, nil
}

func (c *KeycloakClient) claims(ctx context.Context, raw string) (map[string]interface{}, error) {
	if c.verifier != nil {
		tok, err := c.verifier.Verify(ctx, raw)
		if err != nil {
			return nil, fmt.Errorf("verify token: %w", err)
		}
		var claims map[string]interface{}
		if err := tok.Claims(&claims); err != nil {
			return nil, fmt.Errorf("extract claims: %w", err)
		}
		return claims, nil
	}
	return tokens.UnverifiedClaims(raw)
}

// sessionUserFromClaims reshapes verified claims into the provider user
// record. Providers that bundle profile fields under a user_metadata
// claim keep that map as-is; otherwise the known profile claims are
// collected, normalizing the standard OIDC names.
func sessionUserFromClaims(claims map[string]interface{}) *SessionUser {
	sub, _ := claims["sub"].(string)
	email, _ := claims["email"].(string)

	meta, ok := claims["user_metadata"].(map[string]interface{})
	if !ok {
		meta = map[string]interface{}{}
		if v, ok := claims["full_name"]; ok {
			meta["full_name"] = v
		} else if v, ok := claims["name"]; ok {
			meta["full_name"] = v
		}
		for _, k := range []string{"company_name", "role", "permissions"} {
			if v, ok := claims[k]; ok {
				meta[k] = v
			}
		}
		if v, ok := claims["avatar_url"]; ok {
			meta["avatar_url"] = v
		} else if v, ok := claims["picture"]; ok {
			meta["avatar_url"] = v
		}
	}
	return &SessionUser{ID: sub, Email: email, Metadata: meta}
}

func parseAuthError(status int, body []byte) *AuthError {
	var ke struct {
		Code        string `json:"error"`
		Description string `json:"error_description"`
	}
	if err := json.Unmarshal(body, &ke); err == nil && ke.Code != "" {
		return &AuthError{Status: status, Code: ke.Code, Description: ke.Description}
	}
	return &AuthError{Status: status, Code: "unexpected_response", Description: strings.TrimSpace(string(body))}
}
