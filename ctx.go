package authflow

import (
	"context"
)

var sessionCtxKey = &contextKey{"session"}
var userCtxKey = &contextKey{"user"}
var profileCtxKey = &contextKey{"profile"}

type contextKey struct {
	name string
}

// WithSessionContext sets the Session in the given context
func WithSessionContext(ctx context.Context, session Session) context.Context {
	return context.WithValue(ctx, sessionCtxKey, session)
}

// SessionFromContext finds the session from the context.
func SessionFromContext(ctx context.Context) (Session, bool) {
	raw, ok := ctx.Value(sessionCtxKey).(Session)
	if !ok || raw == nil {
		return nil, false
	}
	return raw, true
}

// WithUserContext sets the User in the given context
func WithUserContext(ctx context.Context, user *User) context.Context {
	return context.WithValue(ctx, userCtxKey, user)
}

// UserFromContext finds the user from the context.
func UserFromContext(ctx context.Context) (*User, bool) {
	raw, ok := ctx.Value(userCtxKey).(*User)
	if !ok || raw == nil {
		return nil, false
	}
	return raw, ok
}

// WithProfileContext sets the Profile in the given context
func WithProfileContext(ctx context.Context, profile *Profile) context.Context {
	return context.WithValue(ctx, profileCtxKey, profile)
}

// ProfileFromContext finds the profile from the context.
func ProfileFromContext(ctx context.Context) (*Profile, bool) {
	raw, ok := ctx.Value(profileCtxKey).(*Profile)
	if !ok || raw == nil {
		return nil, false
	}
	return raw, ok
}
