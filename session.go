package authflow

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

var _ Session = &SessionObject{}

// SessionObject is the provider-issued token bundle cached by the store for
// the lifetime of a browser context.
type SessionObject struct {
	UserID         string         `json:"user_id,omitempty"`
	Email          string         `json:"email,omitempty"`
	Issuer         string         `json:"issuer,omitempty"`
	IssuedAt       *time.Time     `json:"issued_at,omitempty"`
	ExpirationDate *time.Time     `json:"expiration_date,omitempty"`
	AccessToken    string         `json:"access_token,omitempty"`
	Data           map[string]any `json:"data,omitempty"`
}

func (s *SessionObject) GetUserID() string {
	return s.UserID
}

func (s *SessionObject) GetUserUUID() (uuid.UUID, error) {
	return uuid.Parse(s.UserID)
}

func (s *SessionObject) GetEmail() string {
	return s.Email
}

func (s *SessionObject) GetIssuer() string {
	return s.Issuer
}

func (s *SessionObject) GetIssuedAt() *time.Time {
	return s.IssuedAt
}

func (s *SessionObject) GetExpiration() *time.Time {
	return s.ExpirationDate
}

func (s *SessionObject) GetData() map[string]any {
	return s.Data
}

// IsExpired reports whether the session's expiry has passed at the given time.
func (s *SessionObject) IsExpired(now time.Time) bool {
	if s.ExpirationDate == nil {
		return false
	}
	return now.After(*s.ExpirationDate)
}

func (s SessionObject) String() string {
	issuedAt := "<nil>"
	if s.IssuedAt != nil {
		issuedAt = s.IssuedAt.Format(time.RFC1123)
	}
	return fmt.Sprintf(
		"user=%s email=%s iss=%s iat=%s",
		s.UserID,
		s.Email,
		s.Issuer,
		issuedAt,
	)
}

// userFromSession derives the immutable User view held by the store.
func userFromSession(s Session) *User {
	if s == nil {
		return nil
	}
	return &User{
		ID:       s.GetUserID(),
		Email:    s.GetEmail(),
		Metadata: s.GetData(),
	}
}

// sessionFromClaims rebuilds a SessionObject from validated token claims.
func sessionFromClaims(claims *SessionClaims, token string) *SessionObject {
	if claims == nil {
		return nil
	}

	obj := &SessionObject{
		UserID:      claims.UserID(),
		Email:       claims.Email,
		Issuer:      claims.RegisteredClaims.Issuer,
		AccessToken: token,
		Data:        claims.Metadata,
	}

	if claims.RegisteredClaims.IssuedAt != nil {
		iat := claims.RegisteredClaims.IssuedAt.Time
		obj.IssuedAt = &iat
	}

	if claims.RegisteredClaims.ExpiresAt != nil {
		exp := claims.RegisteredClaims.ExpiresAt.Time
		obj.ExpirationDate = &exp
	}

	return obj
}
