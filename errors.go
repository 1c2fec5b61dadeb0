package authflow

import (
	"errors"
	"strings"

	goerrors "github.com/goliatone/go-errors"
)

const (
	textCodeInvalidCredentials = "INVALID_CREDENTIALS"
	textCodeCodeExpired        = "ONE_TIME_CODE_EXPIRED"
	textCodeCodeInvalid        = "ONE_TIME_CODE_INVALID"
	textCodeMalformedProfile   = "MALFORMED_PROFILE_ROW"
	textCodeProviderFailure    = "IDENTITY_PROVIDER_FAILURE"
)

// ErrInvalidCredentials is returned for a bad email/password pair. It is
// user-facing and always surfaced through the notifier, never thrown raw.
var ErrInvalidCredentials = goerrors.New("invalid email or password", goerrors.CategoryAuth).
	WithTextCode(textCodeInvalidCredentials).
	WithCode(goerrors.CodeUnauthorized)

// ErrCodeExpired is returned when a one-time code is redeemed past its TTL.
var ErrCodeExpired = goerrors.New("one-time code has expired", goerrors.CategoryAuth).
	WithTextCode(textCodeCodeExpired).
	WithCode(goerrors.CodeUnauthorized)

// ErrCodeInvalid is returned for an unknown or already redeemed code.
var ErrCodeInvalid = goerrors.New("one-time code is invalid", goerrors.CategoryAuth).
	WithTextCode(textCodeCodeInvalid).
	WithCode(goerrors.CodeUnauthorized)

// ErrMalformedProfile is returned when a profile row fails validation at the
// datastore boundary.
var ErrMalformedProfile = goerrors.New("profile row failed validation", goerrors.CategoryValidation).
	WithTextCode(textCodeMalformedProfile).
	WithCode(goerrors.CodeBadRequest)

// ErrNoSession is the error when no current session exists
var ErrNoSession = errors.New("no current session")

// ErrProfileNotFound is the error we return for missing profile rows
var ErrProfileNotFound = errors.New("profile not found")

// ErrAccountNotFound is the error we return for unknown accounts
var ErrAccountNotFound = errors.New("account not found")

// ErrMismatchedHashAndPassword is returned when a password comparison fails
var ErrMismatchedHashAndPassword = errors.New("mismatched hash and password")

// ErrNoEmptyString guards hashing and token helpers against empty input
var ErrNoEmptyString = errors.New("value should not be an empty string")

// ErrTokenExpired is returned for expired session tokens
var ErrTokenExpired = goerrors.New("session token is expired", goerrors.CategoryAuth).
	WithCode(goerrors.CodeUnauthorized)

// ErrTokenMalformed is returned for tokens we cannot parse or verify
var ErrTokenMalformed = goerrors.New("session token is malformed", goerrors.CategoryAuth).
	WithCode(goerrors.CodeUnauthorized)

// IsUserFacingAuthError reports whether err belongs to the credential/OTP
// category that should reach the visitor as a toast with its own message.
func IsUserFacingAuthError(err error) bool {
	if err == nil {
		return false
	}
	return goerrors.Is(err, ErrInvalidCredentials) ||
		goerrors.Is(err, ErrCodeExpired) ||
		goerrors.Is(err, ErrCodeInvalid)
}

// IsTokenExpiredError will check for expired tokens
func IsTokenExpiredError(err error) bool {
	if err == nil {
		return false
	}
	return goerrors.Is(err, ErrTokenExpired) ||
		strings.Contains(err.Error(), "token is expired")
}
