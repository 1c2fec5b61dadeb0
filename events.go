package authflow

import "sync"

// AuthEventKind enumerates the provider's state-change notifications.
type AuthEventKind string

const (
	AuthEventSignedIn       AuthEventKind = "SIGNED_IN"
	AuthEventSignedOut      AuthEventKind = "SIGNED_OUT"
	AuthEventUserUpdated    AuthEventKind = "USER_UPDATED"
	AuthEventTokenRefreshed AuthEventKind = "TOKEN_REFRESHED"
)

// AuthEvent is one notification on the provider's event stream. Session is
// nil for SIGNED_OUT.
type AuthEvent struct {
	Kind    AuthEventKind
	Session Session
}

// Unsubscribe removes a subscription. Calling it more than once is safe and
// the second call is a no-op; implementations must honor this contract.
type Unsubscribe func()

// AuthEventSource is the observable stream of auth state changes. Handlers
// run on the emitter's goroutine and must not call back into the provider
// synchronously; use a Scheduler to defer.
type AuthEventSource interface {
	OnAuthEvent(fn func(AuthEvent)) Unsubscribe
}

// AuthEventEmitter is a small fan-out helper providers embed to satisfy
// AuthEventSource. Delivery is in subscription order.
type AuthEventEmitter struct {
	mu   sync.Mutex
	seq  int
	subs map[int]func(AuthEvent)
	keys []int
}

func (e *AuthEventEmitter) OnAuthEvent(fn func(AuthEvent)) Unsubscribe {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.subs == nil {
		e.subs = make(map[int]func(AuthEvent))
	}

	id := e.seq
	e.seq++
	e.subs[id] = fn
	e.keys = append(e.keys, id)

	var once sync.Once
	return func() {
		once.Do(func() {
			e.mu.Lock()
			defer e.mu.Unlock()
			delete(e.subs, id)
		})
	}
}

// Emit delivers the event to every live subscriber, outside the lock.
func (e *AuthEventEmitter) Emit(evt AuthEvent) {
	e.mu.Lock()
	handlers := make([]func(AuthEvent), 0, len(e.subs))
	for _, id := range e.keys {
		if fn, ok := e.subs[id]; ok {
			handlers = append(handlers, fn)
		}
	}
	e.mu.Unlock()

	for _, fn := range handlers {
		fn(evt)
	}
}

// deferredScheduler is the default Scheduler: deferred fns run off the
// caller's stack, one at a time, in submission order.
type deferredScheduler struct {
	mu      sync.Mutex
	queue   []func()
	running bool
}

func (d *deferredScheduler) Defer(fn func()) {
	if fn == nil {
		return
	}

	d.mu.Lock()
	d.queue = append(d.queue, fn)
	if d.running {
		d.mu.Unlock()
		return
	}
	d.running = true
	d.mu.Unlock()

	go d.drain()
}

func (d *deferredScheduler) drain() {
	for {
		d.mu.Lock()
		if len(d.queue) == 0 {
			d.running = false
			d.mu.Unlock()
			return
		}
		fn := d.queue[0]
		d.queue = d.queue[1:]
		d.mu.Unlock()

		fn()
	}
}

// NewDeferredScheduler returns the default next-tick scheduler.
func NewDeferredScheduler() Scheduler {
	return &deferredScheduler{}
}
