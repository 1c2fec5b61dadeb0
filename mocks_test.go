package authflow_test

import (
	"context"
	"sync"
	"time"

	authflow "github.com/DoyenceGroup/go-authflow"
	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
	"github.com/uptrace/bun"
)

// MockIdentityProvider implements authflow.IdentityProvider. The embedded
// emitter gives tests a real event stream to push through.
type MockIdentityProvider struct {
	mock.Mock
	authflow.AuthEventEmitter
}

func (m *MockIdentityProvider) CurrentSession(ctx context.Context) (authflow.Session, error) {
	args := m.Called(ctx)
	if s := args.Get(0); s != nil {
		return s.(authflow.Session), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockIdentityProvider) SignInWithPassword(ctx context.Context, email, password string) (authflow.Session, error) {
	args := m.Called(ctx, email, password)
	if s := args.Get(0); s != nil {
		return s.(authflow.Session), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockIdentityProvider) SignUp(ctx context.Context, payload authflow.SignUpPayload) error {
	args := m.Called(ctx, payload)
	return args.Error(0)
}

func (m *MockIdentityProvider) SignOut(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *MockIdentityProvider) VerifyOneTimeCode(ctx context.Context, email, code string) (authflow.Session, error) {
	args := m.Called(ctx, email, code)
	if s := args.Get(0); s != nil {
		return s.(authflow.Session), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockIdentityProvider) ResendOneTimeCode(ctx context.Context, email string) error {
	args := m.Called(ctx, email)
	return args.Error(0)
}

func (m *MockIdentityProvider) ExchangeFragment(ctx context.Context, fragment string) (authflow.Session, error) {
	args := m.Called(ctx, fragment)
	if s := args.Get(0); s != nil {
		return s.(authflow.Session), args.Error(1)
	}
	return nil, args.Error(1)
}

// MockProfiles implements authflow.Profiles for the methods the loader and
// commands touch; the embedded repository interface covers the rest.
type MockProfiles struct {
	mock.Mock
	repository.Repository[*authflow.Profile]
}

func (m *MockProfiles) GetByUserID(ctx context.Context, userID uuid.UUID, criteria ...repository.SelectCriteria) (*authflow.Profile, error) {
	args := m.Called(ctx, userID, criteria)
	if p := args.Get(0); p != nil {
		return p.(*authflow.Profile), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockProfiles) GetByUserIDTx(ctx context.Context, tx bun.IDB, userID uuid.UUID, criteria ...repository.SelectCriteria) (*authflow.Profile, error) {
	args := m.Called(ctx, tx, userID, criteria)
	if p := args.Get(0); p != nil {
		return p.(*authflow.Profile), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockProfiles) GetOrCreate(ctx context.Context, record *authflow.Profile) (*authflow.Profile, error) {
	args := m.Called(ctx, record)
	if p := args.Get(0); p != nil {
		return p.(*authflow.Profile), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockProfiles) GetOrCreateTx(ctx context.Context, tx bun.IDB, record *authflow.Profile) (*authflow.Profile, error) {
	args := m.Called(ctx, tx, record)
	if p := args.Get(0); p != nil {
		return p.(*authflow.Profile), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockProfiles) MarkCompleted(ctx context.Context, userID uuid.UUID) (*authflow.Profile, error) {
	args := m.Called(ctx, userID)
	if p := args.Get(0); p != nil {
		return p.(*authflow.Profile), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockProfiles) MarkCompletedTx(ctx context.Context, tx bun.IDB, userID uuid.UUID) (*authflow.Profile, error) {
	args := m.Called(ctx, tx, userID)
	if p := args.Get(0); p != nil {
		return p.(*authflow.Profile), args.Error(1)
	}
	return nil, args.Error(1)
}

// fakeNavigator records redirects and serves a settable location.
type fakeNavigator struct {
	mu        sync.Mutex
	location  authflow.Location
	redirects []redirectCall
}

type redirectCall struct {
	path    string
	replace bool
}

func (n *fakeNavigator) Location() authflow.Location {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.location
}

func (n *fakeNavigator) Redirect(path string, replace bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.redirects = append(n.redirects, redirectCall{path: path, replace: replace})
	n.location = authflow.Location{Path: path}
}

func (n *fakeNavigator) setLocation(loc authflow.Location) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.location = loc
}

func (n *fakeNavigator) calls() []redirectCall {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]redirectCall, len(n.redirects))
	copy(out, n.redirects)
	return out
}

// recordingNotifier counts toast-style notifications.
type recordingNotifier struct {
	mu          sync.Mutex
	infos       []string
	destructive []string
}

func (n *recordingNotifier) Info(message string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.infos = append(n.infos, message)
}

func (n *recordingNotifier) Destructive(message string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.destructive = append(n.destructive, message)
}

func (n *recordingNotifier) destructiveCount() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.destructive)
}

// manualScheduler queues deferred fns until Flush, making the next-tick
// boundary observable.
type manualScheduler struct {
	mu    sync.Mutex
	queue []func()
}

func (s *manualScheduler) Defer(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queue = append(s.queue, fn)
}

func (s *manualScheduler) Flush() {
	for {
		s.mu.Lock()
		if len(s.queue) == 0 {
			s.mu.Unlock()
			return
		}
		fn := s.queue[0]
		s.queue = s.queue[1:]
		s.mu.Unlock()
		fn()
	}
}

// fakeInputSource drives the inactivity monitor.
type fakeInputSource struct {
	mu       sync.Mutex
	handlers []func(authflow.InputEvent)
}

func (s *fakeInputSource) OnInputEvent(fn func(authflow.InputEvent)) authflow.Unsubscribe {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers = append(s.handlers, fn)
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.handlers = nil
	}
}

func (s *fakeInputSource) emit(kind authflow.InputEventKind) {
	s.mu.Lock()
	handlers := make([]func(authflow.InputEvent), len(s.handlers))
	copy(handlers, s.handlers)
	s.mu.Unlock()

	for _, fn := range handlers {
		fn(authflow.InputEvent{Kind: kind})
	}
}

// capturingSink collects activity events.
type capturingSink struct {
	mu     sync.Mutex
	events []authflow.ActivityEvent
}

func (c *capturingSink) Record(ctx context.Context, evt authflow.ActivityEvent) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, evt)
	return nil
}

func (c *capturingSink) byType(kind authflow.ActivityEventType) []authflow.ActivityEvent {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []authflow.ActivityEvent
	for _, evt := range c.events {
		if evt.EventType == kind {
			out = append(out, evt)
		}
	}
	return out
}

// countingTerminator counts forced sign-outs.
type countingTerminator struct {
	mu    sync.Mutex
	calls int
}

func (t *countingTerminator) SignOut(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.calls++
	return nil
}

func (t *countingTerminator) count() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.calls
}

func newTestSession(userID string) *authflow.SessionObject {
	now := time.Now()
	exp := now.Add(time.Hour)
	return &authflow.SessionObject{
		UserID:         userID,
		Email:          "test@example.com",
		Issuer:         "test-issuer",
		IssuedAt:       &now,
		ExpirationDate: &exp,
	}
}
