package authflow

import (
	"context"
	"strings"
	"sync"

	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"
	"github.com/nyaruka/phonenumbers"
)

// ProfileLoader fetches exactly one profile row per user id and normalizes
// it into a fixed-shape record: trimmed names, E.164 phone, a defaulted
// role, and a non-nil metadata bag, so downstream consumers can rely on
// field presence.
type ProfileLoader struct {
	repo     Profiles
	store    *SessionStore
	notifier Notifier
	logger   Logger
	sink     ActivitySink
	region   string

	mu         sync.Mutex
	lastUserID string
	unsub      Unsubscribe
	stopped    bool
}

// NewProfileLoader wires a loader to the profiles repository and the store.
func NewProfileLoader(repo Profiles, store *SessionStore) *ProfileLoader {
	return &ProfileLoader{
		repo:     repo,
		store:    store,
		notifier: noopNotifier{},
		logger:   defLogger{},
		sink:     noopActivitySink{},
		region:   "US",
	}
}

func (l *ProfileLoader) WithNotifier(notifier Notifier) *ProfileLoader {
	l.notifier = normalizeNotifier(notifier)
	return l
}

func (l *ProfileLoader) WithLogger(logger Logger) *ProfileLoader {
	if logger != nil {
		l.logger = logger
	}
	return l
}

func (l *ProfileLoader) WithActivitySink(sink ActivitySink) *ProfileLoader {
	l.sink = normalizeActivitySink(sink)
	return l
}

// WithDefaultRegion sets the region used when normalizing national phone
// numbers to E.164.
func (l *ProfileLoader) WithDefaultRegion(region string) *ProfileLoader {
	if region != "" {
		l.region = region
	}
	return l
}

// Load fetches and normalizes the profile for userID. An empty id yields
// (nil, nil). A missing row also yields (nil, nil): the decider routes that
// visitor to profile setup, it is not a fault.
func (l *ProfileLoader) Load(ctx context.Context, userID string) (*Profile, error) {
	if userID == "" {
		return nil, nil
	}

	uid, err := uuid.Parse(userID)
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryValidation, "user id is not a valid uuid")
	}

	row, err := l.repo.GetByUserID(ctx, uid)
	if err != nil {
		if goerrors.IsNotFound(err) {
			l.logger.Warn("no profile row for user %s", userID)
			return nil, nil
		}
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to fetch profile row")
	}

	l.normalize(row)

	if err := ValidateProfileRow(row); err != nil {
		return nil, err
	}

	return row, nil
}

// Watch re-runs the load whenever the store's user id changes: new sign-in,
// or sign-out clearing it back to empty. Returns the unsubscribe handle.
func (l *ProfileLoader) Watch(ctx context.Context) Unsubscribe {
	unsub := l.store.Subscribe(func(state StoreState) {
		l.onState(ctx, state)
	})

	l.mu.Lock()
	l.unsub = unsub
	l.mu.Unlock()

	return unsub
}

// Stop detaches the loader from the store. In-flight loads finish but no
// longer write their result. Safe to call more than once.
func (l *ProfileLoader) Stop() {
	l.mu.Lock()
	if l.stopped {
		l.mu.Unlock()
		return
	}
	l.stopped = true
	unsub := l.unsub
	l.unsub = nil
	l.mu.Unlock()

	if unsub != nil {
		unsub()
	}
}

func (l *ProfileLoader) onState(ctx context.Context, state StoreState) {
	userID := ""
	if state.User != nil {
		userID = state.User.ID
	}

	l.mu.Lock()
	if l.stopped || userID == l.lastUserID {
		l.mu.Unlock()
		return
	}
	l.lastUserID = userID
	l.mu.Unlock()

	if userID == "" {
		// SetSession(nil) already cleared the profile synchronously.
		return
	}

	go l.refresh(ctx, userID)
}

// refresh performs one load. On failure the prior profile value is left
// untouched; flashing the visitor out of a view they were already in is
// worse than serving a stale profile until the next trigger.
func (l *ProfileLoader) refresh(ctx context.Context, userID string) {
	profile, err := l.Load(ctx, userID)
	if err != nil {
		l.logger.Error("profile load failed for user %s: %v", userID, err)
		l.notifier.Destructive("We could not load your profile. Please try again.")
		if sinkErr := l.sink.Record(ctx, NewActivityEvent(ActivityEventProfileLoadError, userID, map[string]any{
			"error": err.Error(),
		})); sinkErr != nil {
			l.logger.Warn("activity sink error: %v", sinkErr)
		}
		return
	}

	l.mu.Lock()
	stale := l.stopped || l.lastUserID != userID
	l.mu.Unlock()
	if stale {
		return
	}

	l.store.SetProfile(profile)
}

func (l *ProfileLoader) normalize(p *Profile) {
	if p == nil {
		return
	}

	p.FirstName = strings.TrimSpace(p.FirstName)
	p.LastName = strings.TrimSpace(p.LastName)

	if p.Role == "" {
		p.Role = RoleMember
	}

	if p.Metadata == nil {
		p.Metadata = map[string]any{}
	}

	p.Phone = l.normalizePhone(p.Phone)
}

// normalizePhone formats to E.164 when the number parses; otherwise the raw
// value is kept so nothing is silently dropped.
func (l *ProfileLoader) normalizePhone(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}

	parsed, err := phonenumbers.Parse(raw, l.region)
	if err != nil || !phonenumbers.IsValidNumber(parsed) {
		return raw
	}

	return phonenumbers.Format(parsed, phonenumbers.E164)
}
