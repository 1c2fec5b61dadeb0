package authflow

import (
	"context"
	"net/url"
	"strings"
	"sync"
)

// RouteState is the tagged union the decider resolves to.
type RouteState string

const (
	RouteNeedsLogin        RouteState = "needs-login"
	RouteNeedsProfileSetup RouteState = "needs-profile-setup"
	RouteDashboard         RouteState = "dashboard"
)

// DecisionInput is everything Decide looks at.
type DecisionInput struct {
	HasSession bool
	Profile    *Profile
}

// Decide maps auth/profile state to a target route. Pure; the priority order
// is fixed:
//  1. no session: needs-login
//  2. session but profile missing, or both name fields empty: profile setup
//  3. session, profile, completed flag set: dashboard
//  4. session, profile, not completed: profile setup
//
// The both-names-empty guard outranks profile_completed so inconsistent rows
// never reach the dashboard.
func Decide(in DecisionInput) RouteState {
	if !in.HasSession {
		return RouteNeedsLogin
	}

	if in.Profile == nil || !in.Profile.HasName() {
		return RouteNeedsProfileSetup
	}

	if in.Profile.ProfileCompleted {
		return RouteDashboard
	}

	return RouteNeedsProfileSetup
}

// Routes is the path table the decider redirects across.
type Routes struct {
	Login        string
	Register     string
	Logout       string
	VerifyCode   string
	ProfileSetup string
	Dashboard    string
}

// DefaultRoutes returns the stock path table.
func DefaultRoutes() Routes {
	return Routes{
		Login:        "/login",
		Register:     "/register",
		Logout:       "/logout",
		VerifyCode:   "/verify-code",
		ProfileSetup: "/profile-setup",
		Dashboard:    "/dashboard",
	}
}

// Decider applies Decide's result to the navigator, redirecting with replace
// semantics whenever the computed state differs from the state implied by
// the current path. It also owns the magic-link fragment exchange.
type Decider struct {
	provider IdentityProvider
	store    *SessionStore
	nav      Navigator
	notifier Notifier
	logger   Logger
	sink     ActivitySink
	routes   Routes

	mu               sync.Mutex
	fragmentHandled  map[string]bool
	exchangeInFlight bool
}

// NewDecider builds a decider over the provider, store and navigator.
func NewDecider(provider IdentityProvider, store *SessionStore, nav Navigator) *Decider {
	return &Decider{
		provider:        provider,
		store:           store,
		nav:             nav,
		notifier:        noopNotifier{},
		logger:          defLogger{},
		sink:            noopActivitySink{},
		routes:          DefaultRoutes(),
		fragmentHandled: map[string]bool{},
	}
}

func (d *Decider) WithNotifier(notifier Notifier) *Decider {
	d.notifier = normalizeNotifier(notifier)
	return d
}

func (d *Decider) WithLogger(logger Logger) *Decider {
	if logger != nil {
		d.logger = logger
	}
	return d
}

func (d *Decider) WithActivitySink(sink ActivitySink) *Decider {
	d.sink = normalizeActivitySink(sink)
	return d
}

func (d *Decider) WithRoutes(routes Routes) *Decider {
	d.routes = routes
	return d
}

// Apply runs one full decision pass: fragment exchange first (once per
// fragment, so a failed exchange cannot loop), then the transition rules.
func (d *Decider) Apply(ctx context.Context) {
	loc := d.nav.Location()

	if fragment, ok := magicLinkFragment(loc.Fragment); ok {
		if d.exchangeOnce(ctx, fragment) {
			// exchangeOnce redirected with the fragment cleared; the
			// follow-up pass runs against the clean location.
			return
		}
	}

	state := Decide(d.decisionInput())
	d.redirect(state, loc.Path)
}

// RedirectToLogin forces the needs-login route, used on signed-out events.
func (d *Decider) RedirectToLogin() {
	d.redirect(RouteNeedsLogin, d.nav.Location().Path)
}

// PathFor maps a route state to its target path.
func (d *Decider) PathFor(state RouteState) string {
	switch state {
	case RouteNeedsLogin:
		return d.routes.Login
	case RouteNeedsProfileSetup:
		return d.routes.ProfileSetup
	default:
		return d.routes.Dashboard
	}
}

// impliedState maps the current path back to the state it represents. The
// auth forms and the verify-code screen all imply needs-login, which is what
// bounces an authenticated visitor off /login and /register.
func (d *Decider) impliedState(path string) (RouteState, bool) {
	switch path {
	case d.routes.Login, d.routes.Register, d.routes.VerifyCode:
		return RouteNeedsLogin, true
	case d.routes.ProfileSetup:
		return RouteNeedsProfileSetup, true
	case d.routes.Dashboard:
		return RouteDashboard, true
	default:
		return "", false
	}
}

func (d *Decider) decisionInput() DecisionInput {
	snapshot := d.store.Snapshot()
	return DecisionInput{
		HasSession: snapshot.Authenticated(),
		Profile:    snapshot.Profile,
	}
}

func (d *Decider) redirect(state RouteState, currentPath string) {
	if implied, known := d.impliedState(currentPath); known && implied == state {
		return
	}

	target := d.PathFor(state)
	if target == currentPath {
		return
	}

	// Replace semantics: route corrections never grow browser history.
	d.nav.Redirect(target, true)
	d.recordRedirect(state, target)
}

// exchangeOnce redeems the magic-link fragment exactly once. Reports whether
// a redirect was issued; the caller stops its pass in that case.
func (d *Decider) exchangeOnce(ctx context.Context, fragment string) bool {
	d.mu.Lock()
	if d.fragmentHandled[fragment] || d.exchangeInFlight {
		d.mu.Unlock()
		return false
	}
	d.fragmentHandled[fragment] = true
	d.exchangeInFlight = true
	d.mu.Unlock()

	defer func() {
		d.mu.Lock()
		d.exchangeInFlight = false
		d.mu.Unlock()
	}()

	session, err := d.provider.ExchangeFragment(ctx, fragment)
	if err != nil {
		d.logger.Error("magic-link exchange failed: %v", err)
		d.notifier.Destructive("Your sign-in link is invalid or has expired. Please sign in again.")
		d.nav.Redirect(d.routes.Login, true)
		d.recordRedirect(RouteNeedsLogin, d.routes.Login)
		return true
	}

	d.store.SetSession(session)

	state := Decide(d.decisionInput())
	target := d.PathFor(state)
	d.nav.Redirect(target, true)
	d.recordRedirect(state, target)
	return true
}

func (d *Decider) recordRedirect(state RouteState, target string) {
	snapshot := d.store.Snapshot()
	userID := ""
	if snapshot.User != nil {
		userID = snapshot.User.ID
	}
	err := d.sink.Record(context.Background(), NewActivityEvent(ActivityEventRedirectApplied, userID, map[string]any{
		"state":  string(state),
		"target": target,
	}))
	if err != nil {
		d.logger.Warn("activity sink error: %v", err)
	}
}

// magicLinkFragment reports whether the location fragment carries an access
// token delivered by a magic-link or OTP redirect.
func magicLinkFragment(fragment string) (string, bool) {
	fragment = strings.TrimPrefix(fragment, "#")
	if fragment == "" {
		return "", false
	}

	values, err := url.ParseQuery(fragment)
	if err != nil {
		return "", false
	}

	if values.Get("access_token") == "" {
		return "", false
	}

	return fragment, true
}
