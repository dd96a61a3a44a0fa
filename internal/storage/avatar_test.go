package storage

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ikahadi647-afk/authbridge/internal/authstate"
	"github.com/ikahadi647-afk/authbridge/internal/provider"
)

type memStore struct {
	mu       sync.Mutex
	objects  map[string][]byte
	types    map[string]string
	uploaded chan string
}

func newMemStore() *memStore {
	return &memStore{
		objects:  make(map[string][]byte),
		types:    make(map[string]string),
		uploaded: make(chan string, 8),
	}
}

func (m *memStore) UploadFile(ctx context.Context, key string, reader io.Reader, size int64, contentType string) error {
	data, err := io.ReadAll(reader)
	if err != nil {
		return err
	}
	m.mu.Lock()
	m.objects[key] = data
	m.types[key] = contentType
	m.mu.Unlock()
	m.uploaded <- key
	return nil
}

func (m *memStore) DownloadFile(ctx context.Context, key string) (io.ReadCloser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.objects[key]
	if !ok {
		return nil, errors.New("object not found")
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (m *memStore) GetPresignedURL(ctx context.Context, key string, expires time.Duration) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.objects[key]; !ok {
		return "", errors.New("object not found")
	}
	return "https://store.local/" + key + "?sig=test", nil
}

func awaitUpload(t *testing.T, store *memStore) string {
	t.Helper()
	select {
	case key := <-store.uploaded:
		return key
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for avatar upload")
		return ""
	}
}

func stateWithAvatar(id, email, avatarURL string) authstate.State {
	meta := map[string]interface{}{}
	if avatarURL != "" {
		meta[metaAvatarURL] = avatarURL
	}
	su := &provider.SessionUser{ID: id, Email: email, Metadata: meta}
	return authstate.State{
		User:          authstate.MapSessionUser(su),
		SessionUser:   su,
		Authenticated: true,
	}
}

func TestAvatarCacheMirrorsOnSignIn(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		w.Write([]byte("png-bytes"))
	}))
	defer srv.Close()

	store := newMemStore()
	cache := NewAvatarCache(store)
	defer cache.Close()

	cache.onState(stateWithAvatar("u1", "a@x.com", srv.URL))
	key := awaitUpload(t, store)
	if key != "avatars/u1" {
		t.Fatalf("unexpected object key: %s", key)
	}

	store.mu.Lock()
	data, contentType := store.objects[key], store.types[key]
	store.mu.Unlock()
	if string(data) != "png-bytes" || contentType != "image/png" {
		t.Fatalf("stored object wrong: %q %q", data, contentType)
	}

	u, ok := cache.AvatarURL(context.Background(), "u1")
	if !ok || u == "" {
		t.Fatalf("expected presigned URL, got %q %v", u, ok)
	}

	rc, err := cache.Open(context.Background(), "u1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer rc.Close()
	got, _ := io.ReadAll(rc)
	if string(got) != "png-bytes" {
		t.Fatalf("streamed avatar wrong: %q", got)
	}
}

func TestAvatarCacheSkipsSessionsWithoutAvatar(t *testing.T) {
	store := newMemStore()
	cache := NewAvatarCache(store)
	defer cache.Close()

	cache.onState(stateWithAvatar("u1", "a@x.com", ""))
	cache.onState(authstate.State{Loading: true})
	cache.onState(authstate.State{}) // signed out

	time.Sleep(20 * time.Millisecond)
	store.mu.Lock()
	defer store.mu.Unlock()
	if len(store.objects) != 0 {
		t.Fatalf("unexpected uploads: %v", store.objects)
	}
}

func TestAvatarCacheDoesNotRefetchSameSource(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.Write([]byte("img"))
	}))
	defer srv.Close()

	store := newMemStore()
	cache := NewAvatarCache(store)
	defer cache.Close()

	cache.onState(stateWithAvatar("u1", "a@x.com", srv.URL))
	awaitUpload(t, store)
	cache.onState(stateWithAvatar("u1", "a@x.com", srv.URL))
	time.Sleep(20 * time.Millisecond)

	if n := atomic.LoadInt32(&hits); n != 1 {
		t.Fatalf("expected a single fetch, got %d", n)
	}
}

func TestAvatarCacheFetchFailureLeavesNoEntry(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusNotFound)
	}))
	defer srv.Close()

	store := newMemStore()
	cache := NewAvatarCache(store)
	defer cache.Close()

	cache.onState(stateWithAvatar("u1", "a@x.com", srv.URL))
	time.Sleep(50 * time.Millisecond)

	if _, ok := cache.AvatarURL(context.Background(), "u1"); ok {
		t.Fatal("failed fetch must not register an avatar")
	}
	if _, err := cache.Open(context.Background(), "u1"); !errors.Is(err, ErrNoAvatar) {
		t.Fatalf("expected ErrNoAvatar, got %v", err)
	}
}

func TestAvatarCacheAttachObservesBridge(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("img"))
	}))
	defer srv.Close()

	prov := &stubProvider{}
	bridge := authstate.New(prov)
	defer bridge.Close()
	bridge.Start(context.Background())

	store := newMemStore()
	cache := NewAvatarCache(store)
	defer cache.Close()
	cache.Attach(bridge)

	prov.emit(provider.EventSignedIn, &provider.Session{
		User: &provider.SessionUser{ID: "u9", Email: "z@x.com", Metadata: map[string]interface{}{
			metaAvatarURL: srv.URL,
		}},
	})

	if key := awaitUpload(t, store); key != "avatars/u9" {
		t.Fatalf("unexpected object key: %s", key)
	}
}

type stubProvider struct {
	mu sync.Mutex
	fn provider.Listener
}

func (s *stubProvider) CurrentSession(ctx context.Context) (*provider.Session, error) {
	return nil, nil
}

func (s *stubProvider) OnAuthChange(fn provider.Listener) provider.Subscription {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fn = fn
	return stubSub{}
}

func (s *stubProvider) SignInWithPassword(ctx context.Context, email, password string) error {
	return nil
}

func (s *stubProvider) SignOut(ctx context.Context) error { return nil }

func (s *stubProvider) emit(ev provider.ChangeEvent, sess *provider.Session) {
	s.mu.Lock()
	fn := s.fn
	s.mu.Unlock()
	if fn != nil {
		fn(ev, sess)
	}
}

type stubSub struct{}

func (stubSub) Unsubscribe() {}
