package provider

import "sync"

// emitter is a small listener registry shared by client implementations.
// Listeners are invoked outside the lock so a listener may unsubscribe
// itself (or register new listeners) from inside the callback.
type emitter struct {
	mu        sync.Mutex
	nextID    int
	listeners map[int]Listener
}

func newEmitter() *emitter {
	return &emitter{listeners: make(map[int]Listener)}
}

func (e *emitter) subscribe(fn Listener) Subscription {
	e.mu.Lock()
	defer e.mu.Unlock()
	id := e.nextID
	e.nextID++
	e.listeners[id] = fn
	return &emitterSub{e: e, id: id}
}

func (e *emitter) emit(ev ChangeEvent, s *Session) {
	e.mu.Lock()
	fns := make([]Listener, 0, len(e.listeners))
	for _, fn := range e.listeners {
		fns = append(fns, fn)
	}
	e.mu.Unlock()
	for _, fn := range fns {
		fn(ev, s)
	}
}

type emitterSub struct {
	e    *emitter
	once sync.Once
	id   int
}

func (s *emitterSub) Unsubscribe() {
	s.once.Do(func() {
		s.e.mu.Lock()
		delete(s.e.listeners, s.id)
		s.e.mu.Unlock()
	})
}
