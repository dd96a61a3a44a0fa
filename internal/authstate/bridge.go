// Package authstate keeps the agent's view of "who is signed in". A
// Bridge subscribes to provider auth changes, restores any persisted
// session at startup and republishes the mapped application user to
// local consumers (HTTP facade, directory recorder, avatar cache).
package authstate

import (
	"context"
	"sync"

	"github.com/ikahadi647-afk/authbridge/internal/models"
	"github.com/ikahadi647-afk/authbridge/internal/provider"
	"github.com/ikahadi647-afk/authbridge/pkg/logger"
	"github.com/ikahadi647-afk/authbridge/pkg/metrics"
)

// State is the snapshot republished to consumers. Exactly one of the
// authenticated/loading combinations a UI needs: while Loading is true
// the other fields are provisional.
type State struct {
	User          *models.User          `json:"user"`
	SessionUser   *provider.SessionUser `json:"sessionUser"`
	Authenticated bool                  `json:"authenticated"`
	Loading       bool                  `json:"loading"`
}

// Bridge reshapes provider sessions into application user state. All
// methods are safe for concurrent use. State updates follow last write
// wins: the startup fetch and the change listener may race, and
// whichever lands later is the state consumers see.
type Bridge struct {
	client provider.Client
	log    *logger.Prefixed

	// pubMu serializes state mutation with subscriber delivery, so
	// subscribers always see snapshots in state order.
	pubMu sync.Mutex

	mu            sync.Mutex
	user          *models.User
	sessionUser   *provider.SessionUser
	loading       bool
	firstResolved bool
	closed        bool
	sub           provider.Subscription

	nextSubID   int
	subscribers map[int]func(State)
}

// New builds a Bridge in the loading state. Nothing happens until Start.
func New(client provider.Client) *Bridge {
	return &Bridge{
		client:      client,
		log:         logger.Component("authstate"),
		loading:     true,
		subscribers: make(map[int]func(State)),
	}
}

// Start registers the change listener and kicks off the startup session
// fetch in the background. Calling Start more than once is a no-op.
func (b *Bridge) Start(ctx context.Context) {
	b.mu.Lock()
	if b.closed || b.sub != nil {
		b.mu.Unlock()
		return
	}
	b.sub = b.client.OnAuthChange(b.onChange)
	b.mu.Unlock()

	go b.restore(ctx)
}

// restore performs the startup fetch. A fetch error is deliberately
// indistinguishable from "no session" for consumers; it is only logged
// and counted so operators can tell the two apart.
func (b *Bridge) restore(ctx context.Context) {
	sess, err := b.client.CurrentSession(ctx)
	switch {
	case err != nil:
		b.log.Debugf("startup session fetch failed: %v", err)
		metrics.SessionRestores.WithLabelValues("error").Inc()
		sess = nil
	case sess != nil:
		metrics.SessionRestores.WithLabelValues("restored").Inc()
	default:
		metrics.SessionRestores.WithLabelValues("none").Inc()
	}
	b.apply(sessionUserOf(sess), true)
}

func (b *Bridge) onChange(ev provider.ChangeEvent, sess *provider.Session) {
	metrics.AuthStateChanges.WithLabelValues(string(ev)).Inc()
	b.log.Debugf("auth change: %s", ev)
	b.apply(sessionUserOf(sess), true)
}

// apply installs the new session user (nil clears) and notifies
// subscribers. resolve marks the first settlement of the startup phase;
// only the first resolving update flips loading off.
func (b *Bridge) apply(su *provider.SessionUser, resolve bool) {
	b.pubMu.Lock()
	defer b.pubMu.Unlock()

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.sessionUser = su
	b.user = MapSessionUser(su)
	if resolve && !b.firstResolved {
		b.firstResolved = true
		b.loading = false
	}
	st := b.snapshotLocked()
	subs := b.subscriberListLocked()
	b.mu.Unlock()

	for _, fn := range subs {
		fn(st)
	}
}

func (b *Bridge) setLoading(v bool) {
	b.pubMu.Lock()
	defer b.pubMu.Unlock()

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.loading = v
	st := b.snapshotLocked()
	subs := b.subscriberListLocked()
	b.mu.Unlock()

	for _, fn := range subs {
		fn(st)
	}
}

// SignIn exchanges the credentials through the provider. State itself
// arrives via the change listener; SignIn only toggles loading around
// the call and reports the provider's verdict.
func (b *Bridge) SignIn(ctx context.Context, email, password string) error {
	b.setLoading(true)
	err := b.client.SignInWithPassword(ctx, email, password)
	b.setLoading(false)
	if err != nil {
		metrics.SignInAttempts.WithLabelValues("error").Inc()
		b.log.Infof("sign-in failed for %s: %v", email, err)
		return err
	}
	metrics.SignInAttempts.WithLabelValues("ok").Inc()
	return nil
}

// SignOut delegates to the provider and clears local state regardless of
// the outcome, so a dead provider can never pin a stale identity on the
// agent. The provider error is returned for logging only.
func (b *Bridge) SignOut(ctx context.Context) error {
	b.setLoading(true)
	err := b.client.SignOut(ctx)
	b.apply(nil, false)
	b.setLoading(false)
	if err != nil {
		b.log.Infof("provider sign-out failed: %v", err)
	}
	return err
}

// Close releases the provider subscription and freezes state. Updates
// that land after Close, including a late startup fetch, are dropped.
func (b *Bridge) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	sub := b.sub
	b.sub = nil
	b.subscribers = nil
	b.mu.Unlock()

	if sub != nil {
		sub.Unsubscribe()
	}
}

// User returns the mapped application user, nil when signed out.
func (b *Bridge) User() *models.User {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.user
}

// SessionUser returns the raw provider user, nil when signed out.
func (b *Bridge) SessionUser() *provider.SessionUser {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.sessionUser
}

func (b *Bridge) IsAuthenticated() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.user != nil
}

func (b *Bridge) IsLoading() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.loading
}

// Snapshot returns the current state.
func (b *Bridge) Snapshot() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.snapshotLocked()
}

func (b *Bridge) snapshotLocked() State {
	return State{
		User:          b.user,
		SessionUser:   b.sessionUser,
		Authenticated: b.user != nil,
		Loading:       b.loading,
	}
}

// Subscribe registers fn for state snapshots and delivers the current
// one synchronously before returning, so consumers need no separate
// initial read. Deliveries are serialized in state order. fn must not
// call back into methods that publish state (SignIn, SignOut, Subscribe);
// Unsubscribe and the accessors are safe from inside the callback.
func (b *Bridge) Subscribe(fn func(State)) provider.Subscription {
	b.pubMu.Lock()
	defer b.pubMu.Unlock()

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return noopSub{}
	}
	id := b.nextSubID
	b.nextSubID++
	b.subscribers[id] = fn
	st := b.snapshotLocked()
	b.mu.Unlock()

	fn(st)
	return &bridgeSub{b: b, id: id}
}

func (b *Bridge) subscriberListLocked() []func(State) {
	if len(b.subscribers) == 0 {
		return nil
	}
	out := make([]func(State), 0, len(b.subscribers))
	for _, fn := range b.subscribers {
		out = append(out, fn)
	}
	return out
}

func (b *Bridge) unsubscribe(id int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.subscribers != nil {
		delete(b.subscribers, id)
	}
}

type bridgeSub struct {
	b    *Bridge
	id   int
	once sync.Once
}

func (s *bridgeSub) Unsubscribe() {
	s.once.Do(func() { s.b.unsubscribe(s.id) })
}

type noopSub struct{}

func (noopSub) Unsubscribe() {}

func sessionUserOf(s *provider.Session) *provider.SessionUser {
	if s == nil {
		return nil
	}
	return s.User
}
