package sessions

import (
	"context"
	"testing"
	"time"

	mr "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/ikahadi647-afk/authbridge/internal/provider"
)

func testSession(refreshHorizon time.Duration) *provider.Session {
	s := &provider.Session{
		AccessToken:  "at-1",
		RefreshToken: "rt-1",
		ExpiresAt:    time.Now().UTC().Add(5 * time.Minute),
		User: &provider.SessionUser{
			ID:    "u1",
			Email: "a@x.com",
			Metadata: map[string]interface{}{
				"full_name": "Alice Adams",
			},
		},
	}
	if refreshHorizon != 0 {
		s.RefreshExpiresAt = time.Now().UTC().Add(refreshHorizon)
	}
	return s
}

func TestRedisStore_SaveLoadClear(t *testing.T) {
	m, err := mr.Run()
	require.NoError(t, err)
	defer m.Close()

	client := redis.NewClient(&redis.Options{Addr: m.Addr()})
	store := NewRedisStore(client, "test:session", 0)

	ctx := context.Background()
	require.NoError(t, store.Save(ctx, testSession(time.Hour)))

	got, err := store.Load(ctx)
	require.NoError(t, err)
	require.NotNil(t, got)
	require.Equal(t, "rt-1", got.RefreshToken)
	require.NotNil(t, got.User)
	require.Equal(t, "u1", got.User.ID)
	require.Equal(t, "Alice Adams", got.User.Metadata["full_name"])

	require.NoError(t, store.Clear(ctx))
	got2, err := store.Load(ctx)
	require.NoError(t, err)
	require.Nil(t, got2)
}

func TestRedisStore_EmptyKeyIsMissing(t *testing.T) {
	m, err := mr.Run()
	require.NoError(t, err)
	defer m.Close()

	client := redis.NewClient(&redis.Options{Addr: m.Addr()})
	store := NewRedisStore(client, "", 0)

	got, err := store.Load(context.Background())
	require.NoError(t, err)
	require.Nil(t, got)
}

func TestRedisStore_TTLFollowsRefreshHorizon(t *testing.T) {
	m, err := mr.Run()
	require.NoError(t, err)
	defer m.Close()

	client := redis.NewClient(&redis.Options{Addr: m.Addr()})
	store := NewRedisStore(client, "test:session", 0)

	ctx := context.Background()
	require.NoError(t, store.Save(ctx, testSession(time.Second)))

	// visible immediately
	got, err := store.Load(ctx)
	require.NoError(t, err)
	require.NotNil(t, got)

	// advance miniredis clock past the refresh horizon
	m.FastForward(2 * time.Second)

	got2, err := store.Load(ctx)
	require.NoError(t, err)
	require.Nil(t, got2)
}

func TestMemoryStore_RoundTrip(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	got, err := store.Load(ctx)
	require.NoError(t, err)
	require.Nil(t, got)

	s := testSession(time.Hour)
	require.NoError(t, store.Save(ctx, s))

	got, err = store.Load(ctx)
	require.NoError(t, err)
	require.Equal(t, s, got)

	require.NoError(t, store.Clear(ctx))
	got, err = store.Load(ctx)
	require.NoError(t, err)
	require.Nil(t, got)
}
