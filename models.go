package authflow

import (
	"fmt"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// MemberRole is the profile's role inside its company
type MemberRole = string

const (
	// RoleMember is a regular team member
	RoleMember MemberRole = "member"
	// RoleEstimator can author and send estimates
	RoleEstimator MemberRole = "estimator"
	// RoleAdmin manages the company's team
	RoleAdmin MemberRole = "admin"
	// RoleOwner owns the company account
	RoleOwner MemberRole = "owner"
)

// IsValidRole checks the role against the predefined set
func IsValidRole(r MemberRole) bool {
	switch r {
	case RoleMember, RoleEstimator, RoleAdmin, RoleOwner:
		return true
	default:
		return false
	}
}

// Profile is the first-party record keyed 1:1 by user id. Rows are never
// hard-deleted; sign-out leaves them in place.
type Profile struct {
	bun.BaseModel    `bun:"table:profiles,alias:prf"`
	UserID           uuid.UUID      `bun:"user_id,pk,type:uuid" json:"user_id,omitempty"`
	FirstName        string         `bun:"first_name" json:"first_name"`
	LastName         string         `bun:"last_name" json:"last_name"`
	Phone            string         `bun:"phone_number" json:"phone_number"`
	Role             MemberRole     `bun:"member_role,notnull" json:"member_role"`
	CompanyID        *uuid.UUID     `bun:"company_id,nullzero,type:uuid" json:"company_id"`
	Company          *Company       `bun:"rel:belongs-to,join:company_id=id" json:"company,omitempty"`
	ProfileCompleted bool           `bun:"profile_completed,notnull" json:"profile_completed"`
	AvatarURL        string         `bun:"avatar_url" json:"avatar_url"`
	LogoURL          string         `bun:"logo_url" json:"logo_url"`
	Metadata         map[string]any `bun:"metadata" json:"metadata,omitempty"`
	CreatedAt        *time.Time     `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
	UpdatedAt        *time.Time     `bun:"updated_at,nullzero,default:current_timestamp" json:"updated_at,omitempty"`
	DeletedAt        *time.Time     `bun:"deleted_at,soft_delete,nullzero" json:"deleted_at,omitempty"`
}

// HasName reports whether at least one name field is set. Profiles with both
// names empty route to profile setup regardless of the completed flag.
func (p *Profile) HasName() bool {
	if p == nil {
		return false
	}
	return strings.TrimSpace(p.FirstName) != "" || strings.TrimSpace(p.LastName) != ""
}

// FullName joins the name fields for display.
func (p *Profile) FullName() string {
	if p == nil {
		return ""
	}
	return strings.TrimSpace(strings.TrimSpace(p.FirstName) + " " + strings.TrimSpace(p.LastName))
}

// Company is the tenant record a profile may link to.
type Company struct {
	bun.BaseModel `bun:"table:companies,alias:cmp"`
	ID            uuid.UUID  `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	Name          string     `bun:"name,notnull" json:"name,omitempty"`
	Email         string     `bun:"email" json:"email,omitempty"`
	Phone         string     `bun:"phone_number" json:"phone_number,omitempty"`
	Address       string     `bun:"address" json:"address,omitempty"`
	LogoURL       string     `bun:"logo_url" json:"logo_url,omitempty"`
	CreatedAt     *time.Time `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
	UpdatedAt     *time.Time `bun:"updated_at,nullzero,default:current_timestamp" json:"updated_at,omitempty"`
	DeletedAt     *time.Time `bun:"deleted_at,soft_delete,nullzero" json:"deleted_at,omitempty"`
}

// CompanyMember links a user to a company with a role.
type CompanyMember struct {
	bun.BaseModel `bun:"table:company_members,alias:cmb"`
	ID            uuid.UUID  `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	CompanyID     uuid.UUID  `bun:"company_id,notnull,type:uuid" json:"company_id,omitempty"`
	Company       *Company   `bun:"rel:belongs-to,join:company_id=id" json:"company,omitempty"`
	UserID        uuid.UUID  `bun:"user_id,notnull,type:uuid" json:"user_id,omitempty"`
	Role          MemberRole `bun:"member_role,notnull" json:"member_role,omitempty"`
	CreatedAt     *time.Time `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
	UpdatedAt     *time.Time `bun:"updated_at,nullzero,default:current_timestamp" json:"updated_at,omitempty"`
	DeletedAt     *time.Time `bun:"deleted_at,soft_delete,nullzero" json:"deleted_at,omitempty"`
}

// Account is the reference identity provider's own record, the "User" the
// application never mutates directly.
type Account struct {
	bun.BaseModel `bun:"table:accounts,alias:acc"`
	ID            uuid.UUID      `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	Email         string         `bun:"email,notnull,unique" json:"email,omitempty"`
	PasswordHash  string         `bun:"password_hash" json:"-"`
	EmailVerified bool           `bun:"is_email_verified" json:"is_email_verified,omitempty"`
	Metadata      map[string]any `bun:"metadata" json:"metadata,omitempty"`
	LoggedInAt    *time.Time     `bun:"loggedin_at" json:"loggedin_at,omitempty"`
	CreatedAt     *time.Time     `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
	UpdatedAt     *time.Time     `bun:"updated_at,nullzero,default:current_timestamp" json:"updated_at,omitempty"`
	DeletedAt     *time.Time     `bun:"deleted_at,soft_delete,nullzero" json:"deleted_at,omitempty"`
}

// ValidateProfileRow is the schema check at the datastore boundary: malformed
// rows fail fast with a typed error instead of propagating silently.
func ValidateProfileRow(p *Profile) error {
	if p == nil || p.UserID == uuid.Nil {
		return ErrMalformedProfile
	}

	if !IsValidRole(p.Role) {
		return goerrors.Wrap(
			fmt.Errorf("unknown member role %q", p.Role),
			ErrMalformedProfile.Category,
			ErrMalformedProfile.Message,
		).WithTextCode(textCodeMalformedProfile)
	}

	err := validation.ValidateStruct(p,
		validation.Field(&p.AvatarURL, is.URL),
		validation.Field(&p.LogoURL, is.URL),
	)
	if err != nil {
		return goerrors.Wrap(err, ErrMalformedProfile.Category, ErrMalformedProfile.Message).
			WithTextCode(textCodeMalformedProfile)
	}

	return nil
}

// IsMalformedProfileError checks for the datastore boundary validation error.
func IsMalformedProfileError(err error) bool {
	if err == nil {
		return false
	}
	if goerrors.Is(err, ErrMalformedProfile) {
		return true
	}
	var rich *goerrors.Error
	if goerrors.As(err, &rich) {
		return rich.TextCode == textCodeMalformedProfile
	}
	return false
}
