package authflow_test

import (
	"context"
	"sync"
	"testing"
	"time"

	authflow "github.com/DoyenceGroup/go-authflow"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type captureSender struct {
	mu     sync.Mutex
	emails []string
	codes  []string
}

func (s *captureSender) SendCode(ctx context.Context, email, code string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.emails = append(s.emails, email)
	s.codes = append(s.codes, code)
	return nil
}

func (s *captureSender) lastCode() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.codes) == 0 {
		return ""
	}
	return s.codes[len(s.codes)-1]
}

func (s *captureSender) sent() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.codes)
}

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Now()}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestProvider() (*authflow.LocalIdentityProvider, *memRepos, *captureSender, *testClock) {
	repos := newMemRepos()
	sender := &captureSender{}
	clock := newTestClock()
	provider := authflow.NewLocalIdentityProvider(repos, authflow.SimpleConfig{
		SigningKey: "test-signing-key",
		Issuer:     "test-issuer",
	}).WithCodeSender(sender).WithClock(clock.Now)
	return provider, repos, sender, clock
}

func signUpPayload() authflow.SignUpPayload {
	return authflow.SignUpPayload{
		Email:     "ada@example.com",
		Password:  "securePassword123!",
		FirstName: "Ada",
		LastName:  "Lovelace",
	}
}

func TestProviderSignUpSendsCode(t *testing.T) {
	t.Parallel()

	provider, repos, sender, _ := newTestProvider()
	ctx := context.Background()

	require.NoError(t, provider.SignUp(ctx, signUpPayload()))

	assert.Equal(t, 1, sender.sent())
	assert.Len(t, sender.lastCode(), 6)

	// Registration alone never establishes a session.
	_, err := provider.CurrentSession(ctx)
	assert.ErrorIs(t, err, authflow.ErrNoSession)

	account, err := repos.accounts.GetByEmail(ctx, "ada@example.com")
	require.NoError(t, err)
	assert.False(t, account.EmailVerified)
	assert.NotEmpty(t, account.PasswordHash)
	assert.NotEqual(t, "securePassword123!", account.PasswordHash)
}

func TestProviderSignUpValidation(t *testing.T) {
	t.Parallel()

	provider, _, _, _ := newTestProvider()
	ctx := context.Background()

	bad := signUpPayload()
	bad.Email = "not-an-email"
	assert.Error(t, provider.SignUp(ctx, bad))

	short := signUpPayload()
	short.Password = "short"
	assert.Error(t, provider.SignUp(ctx, short))
}

func TestProviderSignUpDuplicateEmail(t *testing.T) {
	t.Parallel()

	provider, _, _, _ := newTestProvider()
	ctx := context.Background()

	require.NoError(t, provider.SignUp(ctx, signUpPayload()))
	assert.Error(t, provider.SignUp(ctx, signUpPayload()))
}

func TestProviderVerifyOneTimeCode(t *testing.T) {
	t.Parallel()

	provider, repos, sender, _ := newTestProvider()
	ctx := context.Background()

	var kinds []authflow.AuthEventKind
	provider.OnAuthEvent(func(evt authflow.AuthEvent) {
		kinds = append(kinds, evt.Kind)
	})

	require.NoError(t, provider.SignUp(ctx, signUpPayload()))

	session, err := provider.VerifyOneTimeCode(ctx, "ada@example.com", sender.lastCode())
	require.NoError(t, err)
	require.NotNil(t, session)
	assert.Equal(t, "ada@example.com", session.GetEmail())
	assert.Equal(t, []authflow.AuthEventKind{authflow.AuthEventSignedIn}, kinds)

	account, err := repos.accounts.GetByEmail(ctx, "ada@example.com")
	require.NoError(t, err)
	assert.True(t, account.EmailVerified)

	// First authentication seeds the 1:1 profile row with the name hints.
	profile, err := repos.profiles.GetByUserID(ctx, account.ID)
	require.NoError(t, err)
	assert.Equal(t, "Ada", profile.FirstName)
	assert.Equal(t, "Lovelace", profile.LastName)
	assert.False(t, profile.ProfileCompleted)

	current, err := provider.CurrentSession(ctx)
	require.NoError(t, err)
	assert.Equal(t, session.GetUserID(), current.GetUserID())
}

func TestProviderOneTimeCodeIsSingleUse(t *testing.T) {
	t.Parallel()

	provider, _, sender, _ := newTestProvider()
	ctx := context.Background()

	require.NoError(t, provider.SignUp(ctx, signUpPayload()))
	code := sender.lastCode()

	_, err := provider.VerifyOneTimeCode(ctx, "ada@example.com", code)
	require.NoError(t, err)

	_, err = provider.VerifyOneTimeCode(ctx, "ada@example.com", code)
	assert.ErrorIs(t, err, authflow.ErrCodeInvalid)
}

func TestProviderOneTimeCodeExpires(t *testing.T) {
	t.Parallel()

	provider, _, sender, clock := newTestProvider()
	ctx := context.Background()

	require.NoError(t, provider.SignUp(ctx, signUpPayload()))
	code := sender.lastCode()

	clock.Advance(16 * time.Minute)

	_, err := provider.VerifyOneTimeCode(ctx, "ada@example.com", code)
	assert.ErrorIs(t, err, authflow.ErrCodeExpired)

	// The expired code is gone; retrying reports invalid, not expired.
	_, err = provider.VerifyOneTimeCode(ctx, "ada@example.com", code)
	assert.ErrorIs(t, err, authflow.ErrCodeInvalid)
}

func TestProviderWrongCode(t *testing.T) {
	t.Parallel()

	provider, _, _, _ := newTestProvider()
	ctx := context.Background()

	require.NoError(t, provider.SignUp(ctx, signUpPayload()))

	_, err := provider.VerifyOneTimeCode(ctx, "ada@example.com", "000000")
	assert.ErrorIs(t, err, authflow.ErrCodeInvalid)
}

func TestProviderResendReplacesPendingCode(t *testing.T) {
	t.Parallel()

	provider, _, sender, _ := newTestProvider()
	ctx := context.Background()

	require.NoError(t, provider.SignUp(ctx, signUpPayload()))
	require.NoError(t, provider.ResendOneTimeCode(ctx, "ada@example.com"))
	assert.Equal(t, 2, sender.sent())

	_, err := provider.VerifyOneTimeCode(ctx, "ada@example.com", sender.lastCode())
	assert.NoError(t, err)
}

func TestProviderResendUnknownAccount(t *testing.T) {
	t.Parallel()

	provider, _, _, _ := newTestProvider()

	err := provider.ResendOneTimeCode(context.Background(), "nobody@example.com")
	assert.ErrorIs(t, err, authflow.ErrAccountNotFound)
}

func TestProviderSignInWithPassword(t *testing.T) {
	t.Parallel()

	provider, repos, _, _ := newTestProvider()
	ctx := context.Background()

	require.NoError(t, provider.SignUp(ctx, signUpPayload()))

	session, err := provider.SignInWithPassword(ctx, "ada@example.com", "securePassword123!")
	require.NoError(t, err)
	require.NotNil(t, session)

	account, err := repos.accounts.GetByEmail(ctx, "ada@example.com")
	require.NoError(t, err)
	assert.Equal(t, 1, repos.accounts.signInCount(account.ID))
	assert.NotNil(t, account.LoggedInAt)
}

func TestProviderSignInRejectsBadCredentials(t *testing.T) {
	t.Parallel()

	provider, _, _, _ := newTestProvider()
	ctx := context.Background()

	require.NoError(t, provider.SignUp(ctx, signUpPayload()))

	_, err := provider.SignInWithPassword(ctx, "ada@example.com", "wrongPassword!")
	assert.ErrorIs(t, err, authflow.ErrInvalidCredentials)

	// Unknown address reads identically to a wrong password.
	_, err = provider.SignInWithPassword(ctx, "nobody@example.com", "securePassword123!")
	assert.ErrorIs(t, err, authflow.ErrInvalidCredentials)
}

func TestProviderSignOutEmitsOnce(t *testing.T) {
	t.Parallel()

	provider, _, _, _ := newTestProvider()
	ctx := context.Background()

	signedOut := 0
	provider.OnAuthEvent(func(evt authflow.AuthEvent) {
		if evt.Kind == authflow.AuthEventSignedOut {
			signedOut++
		}
	})

	require.NoError(t, provider.SignUp(ctx, signUpPayload()))
	_, err := provider.SignInWithPassword(ctx, "ada@example.com", "securePassword123!")
	require.NoError(t, err)

	require.NoError(t, provider.SignOut(ctx))
	require.NoError(t, provider.SignOut(ctx))

	assert.Equal(t, 1, signedOut, "sign-out without a session emits nothing")

	_, err = provider.CurrentSession(ctx)
	assert.ErrorIs(t, err, authflow.ErrNoSession)
}

func TestProviderCurrentSessionDropsExpired(t *testing.T) {
	t.Parallel()

	provider, _, _, clock := newTestProvider()
	ctx := context.Background()

	require.NoError(t, provider.SignUp(ctx, signUpPayload()))
	_, err := provider.SignInWithPassword(ctx, "ada@example.com", "securePassword123!")
	require.NoError(t, err)

	clock.Advance(25 * time.Hour)

	_, err = provider.CurrentSession(ctx)
	assert.ErrorIs(t, err, authflow.ErrNoSession)
}

func TestProviderExchangeFragment(t *testing.T) {
	t.Parallel()

	provider, _, _, _ := newTestProvider()
	ctx := context.Background()

	var kinds []authflow.AuthEventKind
	provider.OnAuthEvent(func(evt authflow.AuthEvent) {
		kinds = append(kinds, evt.Kind)
	})

	// Mint a token the way a magic-link email would carry it.
	tokens := authflow.NewTokenService([]byte("test-signing-key"), 24, "test-issuer", nil)
	token, err := tokens.Issue("123e4567-e89b-12d3-a456-426614174000", "ada@example.com", nil)
	require.NoError(t, err)

	session, err := provider.ExchangeFragment(ctx, "access_token="+token)
	require.NoError(t, err)
	assert.Equal(t, "123e4567-e89b-12d3-a456-426614174000", session.GetUserID())
	assert.Equal(t, []authflow.AuthEventKind{authflow.AuthEventSignedIn}, kinds)

	current, err := provider.CurrentSession(ctx)
	require.NoError(t, err)
	assert.Equal(t, session.GetUserID(), current.GetUserID())
}

func TestProviderExchangeFragmentRejectsBadInput(t *testing.T) {
	t.Parallel()

	provider, _, _, _ := newTestProvider()
	ctx := context.Background()

	_, err := provider.ExchangeFragment(ctx, "type=magiclink")
	assert.Error(t, err, "fragment without access token")

	_, err = provider.ExchangeFragment(ctx, "access_token=garbage")
	assert.Error(t, err, "token that fails validation")

	_, err = provider.CurrentSession(ctx)
	assert.ErrorIs(t, err, authflow.ErrNoSession, "failed exchange leaves no session behind")
}
