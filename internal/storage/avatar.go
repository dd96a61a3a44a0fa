// Package storage mirrors provider avatar images into object storage,
// so local UI surfaces can load them without reaching out to the
// provider on every render.
package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/ikahadi647-afk/authbridge/internal/authstate"
	"github.com/ikahadi647-afk/authbridge/internal/provider"
	"github.com/ikahadi647-afk/authbridge/pkg/logger"
)

const (
	metaAvatarURL  = "avatar_url"
	fetchTimeout   = 10 * time.Second
	maxAvatarBytes = 5 << 20
	presignExpiry  = 15 * time.Minute
)

// ErrNoAvatar is returned when no avatar has been cached for a user.
var ErrNoAvatar = errors.New("no cached avatar")

// AvatarCache observes the auth bridge and copies the avatar advertised
// in session metadata into the object store on sign-in. Fetches run in
// the background; cache misses simply mean "not cached yet".
type AvatarCache struct {
	store ObjectStore
	http  *http.Client
	log   *logger.Prefixed

	mu       sync.Mutex
	attached bool
	closed   bool
	sub      provider.Subscription
	sources  map[string]string // user ID -> avatar URL already mirrored
	keys     map[string]string // user ID -> object key
}

func NewAvatarCache(store ObjectStore) *AvatarCache {
	return &AvatarCache{
		store:   store,
		http:    &http.Client{Timeout: fetchTimeout},
		log:     logger.Component("avatars"),
		sources: make(map[string]string),
		keys:    make(map[string]string),
	}
}

// Attach subscribes the cache to the bridge. Call Close to detach.
// Subscribe delivers the current snapshot into onState before returning,
// so the mutex must not be held across it.
func (c *AvatarCache) Attach(b *authstate.Bridge) {
	c.mu.Lock()
	if c.attached || c.closed {
		c.mu.Unlock()
		return
	}
	c.attached = true
	c.mu.Unlock()

	sub := b.Subscribe(c.onState)

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		sub.Unsubscribe()
		return
	}
	c.sub = sub
	c.mu.Unlock()
}

func (c *AvatarCache) onState(st authstate.State) {
	if st.Loading || st.SessionUser == nil {
		return
	}
	id := st.SessionUser.ID
	src, _ := st.SessionUser.Metadata[metaAvatarURL].(string)
	if src == "" {
		return
	}
	c.mu.Lock()
	mirrored := c.sources[id] == src
	c.mu.Unlock()
	if mirrored {
		return
	}
	go c.mirror(id, src)
}

func (c *AvatarCache) mirror(id, src string) {
	ctx, cancel := context.WithTimeout(context.Background(), fetchTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, src, nil)
	if err != nil {
		c.log.Warnf("avatar fetch for %s: %v", id, err)
		return
	}
	resp, err := c.http.Do(req)
	if err != nil {
		c.log.Warnf("avatar fetch for %s: %v", id, err)
		return
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		c.log.Warnf("avatar fetch for %s: status %d", id, resp.StatusCode)
		return
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxAvatarBytes))
	if err != nil {
		c.log.Warnf("avatar fetch for %s: %v", id, err)
		return
	}
	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	key := "avatars/" + id
	if err := c.store.UploadFile(ctx, key, bytes.NewReader(body), int64(len(body)), contentType); err != nil {
		c.log.Warnf("avatar upload for %s: %v", id, err)
		return
	}

	c.mu.Lock()
	c.sources[id] = src
	c.keys[id] = key
	c.mu.Unlock()
	c.log.Debugf("cached avatar for %s (%d bytes)", id, len(body))
}

// AvatarURL returns a presigned GET URL for the user's cached avatar
// and false when none is cached.
func (c *AvatarCache) AvatarURL(ctx context.Context, userID string) (string, bool) {
	c.mu.Lock()
	key, ok := c.keys[userID]
	c.mu.Unlock()
	if !ok {
		return "", false
	}
	u, err := c.store.GetPresignedURL(ctx, key, presignExpiry)
	if err != nil {
		c.log.Warnf("avatar presign for %s: %v", userID, err)
		return "", false
	}
	return u, true
}

// Open streams the cached avatar for UIs that cannot reach the object
// store directly. Returns ErrNoAvatar when nothing is cached.
func (c *AvatarCache) Open(ctx context.Context, userID string) (io.ReadCloser, error) {
	c.mu.Lock()
	key, ok := c.keys[userID]
	c.mu.Unlock()
	if !ok {
		return nil, ErrNoAvatar
	}
	rc, err := c.store.DownloadFile(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("avatar download for %s: %w", userID, err)
	}
	return rc, nil
}

// Close detaches the cache from the bridge.
func (c *AvatarCache) Close() {
	c.mu.Lock()
	c.closed = true
	sub := c.sub
	c.sub = nil
	c.mu.Unlock()
	if sub != nil {
		sub.Unsubscribe()
	}
}
