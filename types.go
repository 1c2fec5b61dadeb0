package authflow

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

type Logger interface {
	Debug(format string, args ...any)
	Info(format string, args ...any)
	Warn(format string, args ...any)
	Error(format string, args ...any)
}

// Session holds attributes that are part of an auth session
type Session interface {
	GetUserID() string
	GetUserUUID() (uuid.UUID, error)
	GetEmail() string
	GetIssuer() string
	GetIssuedAt() *time.Time
	GetExpiration() *time.Time
	GetData() map[string]any
}

// User is the identity provider's view of an authenticated visitor, derived
// from the session. It is immutable from the application's perspective.
type User struct {
	ID       string
	Email    string
	Metadata map[string]any
}

// SignUpPayload carries the fields collected by the registration form. First
// and last name are hints stored in the provider's metadata bag; the profile
// row is the source of truth once onboarding completes.
type SignUpPayload struct {
	Email     string
	Password  string
	FirstName string
	LastName  string
}

// IdentityProvider is the opaque capability the lifecycle is built around.
// The core never implements auth itself; it orchestrates these operations
// and mirrors the provider's event stream into the session store.
type IdentityProvider interface {
	AuthEventSource

	CurrentSession(ctx context.Context) (Session, error)
	SignInWithPassword(ctx context.Context, email, password string) (Session, error)
	SignUp(ctx context.Context, payload SignUpPayload) error
	SignOut(ctx context.Context) error
	VerifyOneTimeCode(ctx context.Context, email, code string) (Session, error)
	ResendOneTimeCode(ctx context.Context, email string) error

	// ExchangeFragment redeems a magic-link redirect fragment
	// (access_token=...&type=signup) for a session.
	ExchangeFragment(ctx context.Context, fragment string) (Session, error)
}

// SessionTerminator is the slice of IdentityProvider the inactivity monitor
// needs.
type SessionTerminator interface {
	SignOut(ctx context.Context) error
}

// Location is the navigator's view of the current address.
type Location struct {
	Path     string
	Fragment string
}

// Navigator is the routing surface consumed by the decider. Redirect with
// replace=true must not grow history.
type Navigator interface {
	Location() Location
	Redirect(path string, replace bool)
}

// Notifier surfaces user-facing messages. Destructive is the error variant.
type Notifier interface {
	Info(message string)
	Destructive(message string)
}

// Scheduler defers work to a later tick. The listener uses it so signed-in
// handling never runs inside the provider's own callback; providers forbid
// re-entrant auth calls from there.
type Scheduler interface {
	Defer(fn func())
}

type defLogger struct{}

func (d defLogger) Error(format string, args ...any) {
	fmt.Printf("[ERR] AUTHFLOW "+newline(format), args...)
}

func (d defLogger) Warn(format string, args ...any) {
	fmt.Printf("[WRN] AUTHFLOW "+newline(format), args...)
}

func (d defLogger) Info(format string, args ...any) {
	fmt.Printf("[INF] AUTHFLOW "+newline(format), args...)
}

func (d defLogger) Debug(format string, args ...any) {
	fmt.Printf("[DBG] AUTHFLOW "+newline(format), args...)
}

func newline(s string) string {
	if len(s) > 0 && s[len(s)-1] != '\n' {
		s += "\n"
	}
	return s
}

type noopNotifier struct{}

func (noopNotifier) Info(string)        {}
func (noopNotifier) Destructive(string) {}

func normalizeNotifier(n Notifier) Notifier {
	if n == nil {
		return noopNotifier{}
	}
	return n
}
