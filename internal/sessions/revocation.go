package sessions

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// package-level Redis client used for the access-token revocation cache
// (optional). After a sign-out the dropped access token stays revoked
// until its natural expiry, so remote-UI calls reusing it are rejected.
var revocationClient *redis.Client

// SetRevocationClient configures the Redis client used for revocation
// checks. Safe to call with nil to disable the feature.
func SetRevocationClient(c *redis.Client) {
	revocationClient = c
}

// RevokeAccessToken marks the token revoked for the given TTL. A no-op
// returning nil when no Redis client is configured.
func RevokeAccessToken(ctx context.Context, token string, ttl time.Duration) error {
	if revocationClient == nil || token == "" {
		return nil
	}
	key := "authbridge:revoked:" + token
	return revocationClient.Set(ctx, key, "1", ttl).Err()
}

// IsAccessTokenRevoked reports whether the token sits in the revocation
// cache. Returns (false, nil) when no Redis client is configured.
func IsAccessTokenRevoked(ctx context.Context, token string) (bool, error) {
	if revocationClient == nil {
		return false, nil
	}
	key := "authbridge:revoked:" + token
	exists, err := revocationClient.Exists(ctx, key).Result()
	if err != nil {
		return false, err
	}
	return exists > 0, nil
}
