// Package directory keeps a local roster of every user who has signed
// in through the agent: who they were, when they were first and last
// seen. It observes the auth bridge rather than the provider directly,
// so the roster always holds the mapped application user.
package directory

import (
	"context"
	"sync"
	"time"

	"github.com/ikahadi647-afk/authbridge/internal/authstate"
	"github.com/ikahadi647-afk/authbridge/internal/models"
	"github.com/ikahadi647-afk/authbridge/internal/provider"
	"github.com/ikahadi647-afk/authbridge/pkg/logger"
)

const upsertTimeout = 5 * time.Second

type update struct {
	user        *models.User // non-nil: upsert into the roster
	signedOutID string       // non-empty: stamp a sign-out
}

// Recorder subscribes to bridge state and writes roster updates through
// a single worker, so a slow repository never blocks state delivery.
type Recorder struct {
	repo Repository
	log  *logger.Prefixed

	mu       sync.Mutex
	lastID   string
	attached bool
	sub      provider.Subscription
	closed   bool

	ch   chan update
	done chan struct{}
	once sync.Once
}

func NewRecorder(repo Repository) *Recorder {
	r := &Recorder{
		repo: repo,
		log:  logger.Component("directory"),
		ch:   make(chan update, 16),
		done: make(chan struct{}),
	}
	go r.loop()
	return r
}

// Attach subscribes the recorder to the bridge. Call Close to detach.
// Subscribe delivers the current snapshot into onState before returning,
// so the mutex must not be held across it.
func (r *Recorder) Attach(b *authstate.Bridge) {
	r.mu.Lock()
	if r.attached || r.closed {
		r.mu.Unlock()
		return
	}
	r.attached = true
	r.mu.Unlock()

	sub := b.Subscribe(r.onState)

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		sub.Unsubscribe()
		return
	}
	r.sub = sub
	r.mu.Unlock()
}

// onState runs inside bridge delivery; the send is held under the mutex
// so Close can never close the channel out from under it.
func (r *Recorder) onState(st authstate.State) {
	if st.Loading {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	var up update
	switch {
	case st.User != nil:
		up.user = st.User
		r.lastID = st.User.ID
	case r.lastID != "":
		up.signedOutID = r.lastID
		r.lastID = ""
	default:
		return
	}

	select {
	case r.ch <- up:
	default:
		r.log.Warnf("roster queue full, dropping update")
	}
}

func (r *Recorder) loop() {
	defer close(r.done)
	for up := range r.ch {
		ctx, cancel := context.WithTimeout(context.Background(), upsertTimeout)
		if up.user != nil {
			if _, err := r.repo.Upsert(ctx, up.user); err != nil {
				r.log.Warnf("roster upsert for %s: %v", up.user.ID, err)
			} else {
				r.log.Debugf("roster updated: %s", up.user.ID)
			}
		} else if up.signedOutID != "" {
			if err := r.repo.MarkSignedOut(ctx, up.signedOutID); err != nil {
				r.log.Warnf("roster sign-out stamp for %s: %v", up.signedOutID, err)
			}
		}
		cancel()
	}
}

// Close detaches from the bridge and drains pending writes.
func (r *Recorder) Close() {
	r.once.Do(func() {
		r.mu.Lock()
		r.closed = true
		sub := r.sub
		r.sub = nil
		r.mu.Unlock()
		if sub != nil {
			sub.Unsubscribe()
		}
		close(r.ch)
		<-r.done
	})
}
