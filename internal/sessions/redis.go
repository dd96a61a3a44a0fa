package sessions

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ikahadi647-afk/authbridge/internal/provider"
)

const defaultSessionTTL = 30 * 24 * time.Hour

// RedisStore persists the session as JSON under a single key with a TTL
// bound to the session's refresh horizon, so a restarted agent can pick
// the login back up without another password prompt.
type RedisStore struct {
	client *redis.Client
	key    string
	ttl    time.Duration
}

// NewRedisStore creates a Redis-backed session store. Key may be empty
// (a default is used); ttl caps retention when the provider reports no
// refresh expiry.
func NewRedisStore(client *redis.Client, key string, ttl time.Duration) *RedisStore {
	if key == "" {
		key = "authbridge:session"
	}
	if ttl <= 0 {
		ttl = defaultSessionTTL
	}
	return &RedisStore{client: client, key: key, ttl: ttl}
}

func (r *RedisStore) Save(ctx context.Context, s *provider.Session) error {
	b, err := json.Marshal(s)
	if err != nil {
		return err
	}
	exp := r.ttl
	if !s.RefreshExpiresAt.IsZero() {
		exp = time.Until(s.RefreshExpiresAt)
		if exp <= 0 {
			// never store a session that can no longer be refreshed
			exp = time.Second
		}
	}
	return r.client.Set(ctx, r.key, b, exp).Err()
}

func (r *RedisStore) Load(ctx context.Context) (*provider.Session, error) {
	b, err := r.client.Get(ctx, r.key).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, err
	}
	var s provider.Session
	if err := json.Unmarshal(b, &s); err != nil {
		return nil, err
	}
	// stale from the stored value's perspective: treat as missing
	if !s.RefreshExpiresAt.IsZero() && time.Now().UTC().After(s.RefreshExpiresAt) {
		_ = r.client.Del(ctx, r.key).Err()
		return nil, nil
	}
	return &s, nil
}

func (r *RedisStore) Clear(ctx context.Context) error {
	return r.client.Del(ctx, r.key).Err()
}
