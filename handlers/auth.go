package handlers

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/ikahadi647-afk/authbridge/internal/authstate"
	"github.com/ikahadi647-afk/authbridge/internal/models"
	"github.com/ikahadi647-afk/authbridge/internal/provider"
	"github.com/ikahadi647-afk/authbridge/internal/sessions"
	"github.com/ikahadi647-afk/authbridge/internal/storage"
	"github.com/ikahadi647-afk/authbridge/internal/tokens"
	"github.com/ikahadi647-afk/authbridge/pkg/logger"
)

// LoginRequest carries the credential pass-through. The agent never
// checks the password itself; it goes straight to the provider.
type LoginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// SessionResponse is the snapshot shape served to UI consumers. The
// camelCase fields match the UI's session model.
type SessionResponse struct {
	User          *models.User          `json:"user"`
	SessionUser   *provider.SessionUser `json:"sessionUser"`
	Authenticated bool                  `json:"authenticated"`
	Loading       bool                  `json:"loading"`
	AvatarURL     string                `json:"avatarUrl,omitempty"`
}

// AuthHandler holds dependencies
type AuthHandler struct {
	bridge  *authstate.Bridge
	avatars *storage.AvatarCache // nil when object storage is not configured
}

func NewAuthHandler(b *authstate.Bridge, avatars *storage.AvatarCache) *AuthHandler {
	return &AuthHandler{bridge: b, avatars: avatars}
}

// Register routes under /auth
func (h *AuthHandler) Register(rg *gin.RouterGroup) {
	a := rg.Group("/auth")
	a.POST("/login", h.Login)
	a.POST("/logout", h.Logout)
}

// RegisterAPI registers the session surface on an /api/v1 group, so the
// caller can attach bearer enforcement to the group in remote-UI mode.
func (h *AuthHandler) RegisterAPI(rg *gin.RouterGroup) {
	rg.GET("/session", h.Session)
	rg.GET("/session/events", h.Events)
	rg.GET("/avatar", h.Avatar)
}

// Session returns the current auth state snapshot.
func (h *AuthHandler) Session(c *gin.Context) {
	c.JSON(http.StatusOK, h.payload(c, h.bridge.Snapshot()))
}

// Login passes the credentials to the provider through the bridge. The
// provider's own error code and description are surfaced on failure.
func (h *AuthHandler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.bridge.SignIn(c.Request.Context(), req.Email, req.Password); err != nil {
		var authErr *provider.AuthError
		if errors.As(err, &authErr) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": authErr.Code, "details": authErr.Description})
			return
		}
		c.JSON(http.StatusBadGateway, gin.H{"error": "provider unreachable", "details": err.Error()})
		return
	}

	c.JSON(http.StatusOK, h.payload(c, h.bridge.Snapshot()))
}

// Logout signs out through the bridge. The response is always 200 with
// the cleared snapshot: local state drops even when the provider call
// fails, so the UI can rely on the outcome.
func (h *AuthHandler) Logout(c *gin.Context) {
	// If the client supplied a Bearer token, revoke it for its remaining
	// lifetime so remote-UI calls cannot reuse it after sign-out.
	if auth := c.GetHeader("Authorization"); auth != "" {
		var at string
		if n, _ := fmt.Sscanf(auth, "Bearer %s", &at); n == 1 {
			if exp, err := tokens.ExpiryOf(at); err == nil {
				if ttl := time.Until(exp); ttl > 0 {
					if err := sessions.RevokeAccessToken(c.Request.Context(), at, ttl); err != nil {
						logger.Warnf("revoke access token: %v", err)
					}
				}
			}
		}
	}

	if err := h.bridge.SignOut(c.Request.Context()); err != nil {
		logger.Warnf("provider sign-out failed: %v", err)
	}

	c.JSON(http.StatusOK, h.payload(c, h.bridge.Snapshot()))
}

// Events streams snapshots as server-sent events. The bridge
// subscription is released when the client disconnects.
func (h *AuthHandler) Events(c *gin.Context) {
	ch := make(chan authstate.State, 8)
	sub := h.bridge.Subscribe(func(st authstate.State) {
		select {
		case ch <- st:
		default:
			// slow consumer: drop, the next snapshot carries full state
		}
	})
	defer sub.Unsubscribe()

	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")

	ctx := c.Request.Context()
	keepalive := time.NewTicker(25 * time.Second)
	defer keepalive.Stop()

	c.Stream(func(w io.Writer) bool {
		select {
		case st := <-ch:
			c.SSEvent("session", h.payload(c, st))
			return true
		case <-keepalive.C:
			c.SSEvent("ping", time.Now().Unix())
			return true
		case <-ctx.Done():
			return false
		}
	})
}

// Avatar streams the cached avatar of the signed-in user for UIs that
// cannot reach the object store directly.
func (h *AuthHandler) Avatar(c *gin.Context) {
	if h.avatars == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "avatar cache not configured"})
		return
	}
	u := h.bridge.User()
	if u == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "not signed in"})
		return
	}
	rc, err := h.avatars.Open(c.Request.Context(), u.ID)
	if err != nil {
		if errors.Is(err, storage.ErrNoAvatar) {
			c.JSON(http.StatusNotFound, gin.H{"error": "no avatar cached"})
			return
		}
		logger.Warnf("avatar read: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "avatar read failed"})
		return
	}
	defer rc.Close()
	c.Status(http.StatusOK)
	_, _ = io.Copy(c.Writer, rc)
}

func (h *AuthHandler) payload(c *gin.Context, st authstate.State) SessionResponse {
	resp := SessionResponse{
		User:          st.User,
		SessionUser:   st.SessionUser,
		Authenticated: st.Authenticated,
		Loading:       st.Loading,
	}
	if h.avatars != nil && st.User != nil {
		if u, ok := h.avatars.AvatarURL(c.Request.Context(), st.User.ID); ok {
			resp.AvatarURL = u
		}
	}
	return resp
}
