package authflow

import "sync"

// StoreState is an immutable snapshot of the session store.
type StoreState struct {
	Session Session
	User    *User
	Profile *Profile
	Loading bool
}

// Authenticated reports whether a session is currently held.
func (s StoreState) Authenticated() bool {
	return s.Session != nil
}

// SessionStore is the single holder of {session, user, profile, loading}.
// It is written by the auth event listener and the profile loader, read
// everywhere else. Every provider event overwrites the session wholesale,
// never merges. The source environment was single threaded; here an RWMutex
// keeps concurrent readers safe.
type SessionStore struct {
	mu       sync.RWMutex
	state    StoreState
	seq      int
	keys     []int
	subs     map[int]func(StoreState)
	disposed bool
	logger   Logger
}

// NewSessionStore creates a store in its loading state; rendering is gated
// until the first session check resolves.
func NewSessionStore() *SessionStore {
	return &SessionStore{
		state:  StoreState{Loading: true},
		subs:   make(map[int]func(StoreState)),
		logger: defLogger{},
	}
}

func (s *SessionStore) WithLogger(logger Logger) *SessionStore {
	if logger != nil {
		s.logger = logger
	}
	return s
}

// SetSession replaces the session and derives the user from it. A nil
// session clears the profile synchronously, in the same critical section.
func (s *SessionStore) SetSession(session Session) {
	s.mu.Lock()
	if s.disposed {
		s.mu.Unlock()
		return
	}

	s.state.Session = session
	s.state.User = userFromSession(session)
	if session == nil {
		s.state.Profile = nil
	}
	state := s.state
	handlers := s.handlersLocked()
	s.mu.Unlock()

	s.notify(handlers, state)
}

// SetProfile records the loaded profile. It never implies a session change.
func (s *SessionStore) SetProfile(profile *Profile) {
	s.mu.Lock()
	if s.disposed {
		s.mu.Unlock()
		return
	}

	s.state.Profile = profile
	state := s.state
	handlers := s.handlersLocked()
	s.mu.Unlock()

	s.notify(handlers, state)
}

// SetLoading gates rendering until the first session check resolves.
func (s *SessionStore) SetLoading(loading bool) {
	s.mu.Lock()
	if s.disposed || s.state.Loading == loading {
		s.mu.Unlock()
		return
	}

	s.state.Loading = loading
	state := s.state
	handlers := s.handlersLocked()
	s.mu.Unlock()

	s.notify(handlers, state)
}

// Snapshot returns the current state.
func (s *SessionStore) Snapshot() StoreState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Subscribe registers an observer for state changes. Observers run outside
// the store's lock, in subscription order. The returned Unsubscribe is safe
// to call more than once.
func (s *SessionStore) Subscribe(fn func(StoreState)) Unsubscribe {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.disposed || fn == nil {
		return func() {}
	}

	id := s.seq
	s.seq++
	s.subs[id] = fn
	s.keys = append(s.keys, id)

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			delete(s.subs, id)
		})
	}
}

// Dispose tears the store down: state cleared, subscribers dropped. Safe to
// call more than once.
func (s *SessionStore) Dispose() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.disposed {
		return
	}
	s.disposed = true
	s.state = StoreState{}
	s.subs = map[int]func(StoreState){}
	s.keys = nil
}

func (s *SessionStore) handlersLocked() []func(StoreState) {
	handlers := make([]func(StoreState), 0, len(s.subs))
	for _, id := range s.keys {
		if fn, ok := s.subs[id]; ok {
			handlers = append(handlers, fn)
		}
	}
	return handlers
}

func (s *SessionStore) notify(handlers []func(StoreState), state StoreState) {
	for _, fn := range handlers {
		fn(state)
	}
}
