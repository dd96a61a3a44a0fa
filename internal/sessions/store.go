// Package sessions persists the provider client's session blob between
// agent runs, the agent-side analog of browser local storage. The auth
// state bridge never reads these stores; only the provider client does.
package sessions

import (
	"context"
	"sync"

	"github.com/ikahadi647-afk/authbridge/internal/provider"
)

// MemoryStore keeps the session for the lifetime of the process. Used
// when no Redis is configured.
type MemoryStore struct {
	mu sync.RWMutex
	s  *provider.Session
}

func NewMemoryStore() *MemoryStore { return &MemoryStore{} }

func (m *MemoryStore) Save(ctx context.Context, s *provider.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.s = s
	return nil
}

func (m *MemoryStore) Load(ctx context.Context) (*provider.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.s, nil
}

func (m *MemoryStore) Clear(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.s = nil
	return nil
}
