package authflow

import (
	"context"
	"errors"
	"sync"
)

// AuthEventListener bridges the identity provider's push notifications into
// the session store. The event subscription is installed before the initial
// session snapshot is consumed, so a SIGNED_IN racing the first fetch is
// queued and replayed rather than lost.
type AuthEventListener struct {
	provider  IdentityProvider
	store     *SessionStore
	decider   *Decider
	scheduler Scheduler
	notifier  Notifier
	logger    Logger
	sink      ActivitySink

	mu          sync.Mutex
	started     bool
	stopped     bool
	initialDone bool
	pending     []AuthEvent
	unsub       Unsubscribe
}

// NewAuthEventListener wires a listener to a provider and store.
func NewAuthEventListener(provider IdentityProvider, store *SessionStore) *AuthEventListener {
	return &AuthEventListener{
		provider:  provider,
		store:     store,
		scheduler: NewDeferredScheduler(),
		notifier:  noopNotifier{},
		logger:    defLogger{},
		sink:      noopActivitySink{},
	}
}

func (l *AuthEventListener) WithDecider(decider *Decider) *AuthEventListener {
	l.decider = decider
	return l
}

func (l *AuthEventListener) WithScheduler(scheduler Scheduler) *AuthEventListener {
	if scheduler != nil {
		l.scheduler = scheduler
	}
	return l
}

func (l *AuthEventListener) WithNotifier(notifier Notifier) *AuthEventListener {
	l.notifier = normalizeNotifier(notifier)
	return l
}

func (l *AuthEventListener) WithLogger(logger Logger) *AuthEventListener {
	if logger != nil {
		l.logger = logger
	}
	return l
}

func (l *AuthEventListener) WithActivitySink(sink ActivitySink) *AuthEventListener {
	l.sink = normalizeActivitySink(sink)
	return l
}

// Start subscribes to the provider, performs the one blocking fetch of the
// current session, and flips loading off. On fetch failure the visitor still
// lands on a login-capable view: the error surfaces as a destructive
// notification, never a frozen loading state.
func (l *AuthEventListener) Start(ctx context.Context) {
	l.mu.Lock()
	if l.started || l.stopped {
		l.mu.Unlock()
		return
	}
	l.started = true
	l.mu.Unlock()

	// Subscription first: events arriving mid-fetch are queued below.
	unsub := l.provider.OnAuthEvent(l.handle)

	l.mu.Lock()
	l.unsub = unsub
	l.mu.Unlock()

	session, err := l.provider.CurrentSession(ctx)
	if err != nil && !errors.Is(err, ErrNoSession) {
		l.logger.Error("initial session fetch failed: %v", err)
		l.notifier.Destructive("We could not restore your session. Please sign in again.")
		session = nil
	}

	l.store.SetSession(session)
	l.store.SetLoading(false)

	l.mu.Lock()
	l.initialDone = true
	pending := l.pending
	l.pending = nil
	l.mu.Unlock()

	for _, evt := range pending {
		l.apply(evt)
	}
}

func (l *AuthEventListener) handle(evt AuthEvent) {
	l.mu.Lock()
	if l.stopped {
		l.mu.Unlock()
		return
	}
	if !l.initialDone {
		l.pending = append(l.pending, evt)
		l.mu.Unlock()
		return
	}
	l.mu.Unlock()

	l.apply(evt)
}

func (l *AuthEventListener) apply(evt AuthEvent) {
	switch evt.Kind {
	case AuthEventSignedOut:
		l.store.SetSession(nil)
		l.recordActivity(ActivityEventSessionEnded, "")
		if l.decider != nil {
			l.decider.RedirectToLogin()
		}

	case AuthEventSignedIn:
		l.store.SetSession(evt.Session)
		l.recordActivity(ActivityEventSessionStarted, sessionUserID(evt.Session))
		if l.decider != nil {
			// Never navigate from inside the provider callback; the
			// provider contract forbids further auth calls there.
			l.scheduler.Defer(func() {
				l.decider.Apply(context.Background())
			})
		}

	case AuthEventUserUpdated, AuthEventTokenRefreshed:
		l.store.SetSession(evt.Session)

	default:
		l.logger.Warn("ignoring unknown auth event kind: %s", evt.Kind)
	}
}

// Stop unsubscribes from the provider. Safe to call more than once.
func (l *AuthEventListener) Stop() {
	l.mu.Lock()
	if l.stopped {
		l.mu.Unlock()
		return
	}
	l.stopped = true
	unsub := l.unsub
	l.pending = nil
	l.mu.Unlock()

	if unsub != nil {
		unsub()
	}
}

func (l *AuthEventListener) recordActivity(kind ActivityEventType, userID string) {
	if err := l.sink.Record(context.Background(), NewActivityEvent(kind, userID, nil)); err != nil {
		l.logger.Warn("activity sink error: %v", err)
	}
}

func sessionUserID(s Session) string {
	if s == nil {
		return ""
	}
	return s.GetUserID()
}
