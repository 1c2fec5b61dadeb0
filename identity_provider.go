package authflow

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"fmt"
	"math/big"
	"net/url"
	"sync"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/hashid/pkg/hashid"
	"github.com/google/uuid"
)

// CodeSender delivers one-time codes, usually over email.
type CodeSender interface {
	SendCode(ctx context.Context, email, code string) error
}

// CodeSenderFunc adapts a function to the CodeSender interface.
type CodeSenderFunc func(ctx context.Context, email, code string) error

func (f CodeSenderFunc) SendCode(ctx context.Context, email, code string) error {
	if f == nil {
		return nil
	}
	return f(ctx, email, code)
}

type noopCodeSender struct{}

func (noopCodeSender) SendCode(context.Context, string, string) error { return nil }

type oneTimeCode struct {
	code      string
	accountID uuid.UUID
	expiresAt time.Time
}

// LocalIdentityProvider is the first-party implementation of the
// IdentityProvider capability: accounts in the data store, bcrypt passwords,
// HS256 session tokens, single-use one-time codes. It keeps at most one
// current session per instance, mirroring one browser context.
type LocalIdentityProvider struct {
	AuthEventEmitter

	repo    RepositoryManager
	tokens  TokenService
	sender  CodeSender
	logger  Logger
	sink    ActivitySink
	codeTTL time.Duration
	now     func() time.Time

	mu      sync.Mutex
	current *SessionObject
	codes   map[string]oneTimeCode
}

// NewLocalIdentityProvider builds a provider over the repositories.
func NewLocalIdentityProvider(repo RepositoryManager, cfg Config) *LocalIdentityProvider {
	return &LocalIdentityProvider{
		repo:    repo,
		tokens:  NewTokenService([]byte(cfg.GetSigningKey()), cfg.GetTokenExpiration(), cfg.GetIssuer(), defLogger{}),
		sender:  noopCodeSender{},
		logger:  defLogger{},
		sink:    noopActivitySink{},
		codeTTL: cfg.GetCodeExpiration(),
		now:     time.Now,
		codes:   map[string]oneTimeCode{},
	}
}

func (p *LocalIdentityProvider) WithCodeSender(sender CodeSender) *LocalIdentityProvider {
	if sender != nil {
		p.sender = sender
	}
	return p
}

func (p *LocalIdentityProvider) WithLogger(logger Logger) *LocalIdentityProvider {
	if logger != nil {
		p.logger = logger
	}
	return p
}

func (p *LocalIdentityProvider) WithActivitySink(sink ActivitySink) *LocalIdentityProvider {
	p.sink = normalizeActivitySink(sink)
	return p
}

// WithClock injects a custom clock (useful for tests).
func (p *LocalIdentityProvider) WithClock(clock func() time.Time) *LocalIdentityProvider {
	if clock != nil {
		p.now = clock
	}
	return p
}

// CurrentSession returns the session held for this browser context, or
// ErrNoSession. An expired session is dropped and reported as absent.
func (p *LocalIdentityProvider) CurrentSession(ctx context.Context) (Session, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.current == nil {
		return nil, ErrNoSession
	}

	if p.current.IsExpired(p.now()) {
		p.current = nil
		return nil, ErrNoSession
	}

	return p.current, nil
}

func (p *LocalIdentityProvider) SignInWithPassword(ctx context.Context, email, password string) (Session, error) {
	account, err := p.repo.Accounts().GetByEmail(ctx, email)
	if err != nil {
		if goerrors.IsNotFound(err) {
			return nil, ErrInvalidCredentials
		}
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to look up account").
			WithTextCode(textCodeProviderFailure)
	}

	if err := ComparePasswordAndHash(password, account.PasswordHash); err != nil {
		return nil, ErrInvalidCredentials
	}

	if err := p.ensureProfileRow(ctx, account); err != nil {
		return nil, err
	}

	if err := p.repo.Accounts().TrackSignIn(ctx, account.ID); err != nil {
		p.logger.Warn("failed to track sign-in for %s: %v", account.ID, err)
	}

	return p.establishSession(account)
}

// SignUp registers an account and sends a one-time code; the session is only
// established once the code is verified.
func (p *LocalIdentityProvider) SignUp(ctx context.Context, payload SignUpPayload) error {
	if err := validateSignUpPayload(payload); err != nil {
		return err
	}

	hash, err := HashPassword(payload.Password)
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to hash password")
	}

	account := &Account{
		Email:        normalizeEmail(payload.Email),
		PasswordHash: hash,
		Metadata: map[string]any{
			"first_name": payload.FirstName,
			"last_name":  payload.LastName,
		},
	}

	if id, err := hashid.NewUUID(account.Email); err == nil {
		account.ID = id
	}

	if account, err = p.repo.Accounts().Create(ctx, account); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryConflict, "could not create account")
	}

	return p.issueCode(ctx, account)
}

func (p *LocalIdentityProvider) SignOut(ctx context.Context) error {
	p.mu.Lock()
	had := p.current != nil
	p.current = nil
	p.mu.Unlock()

	if had {
		p.Emit(AuthEvent{Kind: AuthEventSignedOut})
	}
	return nil
}

// VerifyOneTimeCode redeems a code exactly once and establishes the session.
func (p *LocalIdentityProvider) VerifyOneTimeCode(ctx context.Context, email, code string) (Session, error) {
	email = normalizeEmail(email)

	p.mu.Lock()
	pending, ok := p.codes[email]
	if ok && p.now().After(pending.expiresAt) {
		delete(p.codes, email)
		p.mu.Unlock()
		p.recordCodeFailure(ctx, email, "expired")
		return nil, ErrCodeExpired
	}
	if !ok || subtle.ConstantTimeCompare([]byte(pending.code), []byte(code)) != 1 {
		p.mu.Unlock()
		p.recordCodeFailure(ctx, email, "invalid")
		return nil, ErrCodeInvalid
	}
	// Single use: gone before any side effect can fail.
	delete(p.codes, email)
	p.mu.Unlock()

	account, err := p.repo.Accounts().GetByEmail(ctx, email)
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to look up account").
			WithTextCode(textCodeProviderFailure)
	}

	if err := p.repo.Accounts().MarkVerified(ctx, account.ID); err != nil {
		p.logger.Warn("failed to mark account %s verified: %v", account.ID, err)
	}

	if err := p.ensureProfileRow(ctx, account); err != nil {
		return nil, err
	}

	if err := p.sink.Record(ctx, NewActivityEvent(ActivityEventCodeVerified, account.ID.String(), nil)); err != nil {
		p.logger.Warn("activity sink error: %v", err)
	}

	return p.establishSession(account)
}

// ResendOneTimeCode replaces any pending code for the address.
func (p *LocalIdentityProvider) ResendOneTimeCode(ctx context.Context, email string) error {
	account, err := p.repo.Accounts().GetByEmail(ctx, email)
	if err != nil {
		if goerrors.IsNotFound(err) {
			return ErrAccountNotFound
		}
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to look up account").
			WithTextCode(textCodeProviderFailure)
	}

	return p.issueCode(ctx, account)
}

// ExchangeFragment redeems a magic-link fragment for a session. The token in
// the fragment is validated like any other session token.
func (p *LocalIdentityProvider) ExchangeFragment(ctx context.Context, fragment string) (Session, error) {
	values, err := url.ParseQuery(fragment)
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryValidation, "malformed redirect fragment")
	}

	token := values.Get("access_token")
	if token == "" {
		return nil, goerrors.New("redirect fragment carries no access token", goerrors.CategoryValidation)
	}

	session, err := p.tokens.SessionFromToken(token)
	if err != nil {
		return nil, err
	}

	p.mu.Lock()
	p.current = session
	p.mu.Unlock()

	p.Emit(AuthEvent{Kind: AuthEventSignedIn, Session: session})
	return session, nil
}

func (p *LocalIdentityProvider) establishSession(account *Account) (Session, error) {
	token, err := p.tokens.Issue(account.ID.String(), account.Email, account.Metadata)
	if err != nil {
		return nil, err
	}

	session, err := p.tokens.SessionFromToken(token)
	if err != nil {
		return nil, err
	}

	p.mu.Lock()
	p.current = session
	p.mu.Unlock()

	p.Emit(AuthEvent{Kind: AuthEventSignedIn, Session: session})
	return session, nil
}

// ensureProfileRow creates the 1:1 profile on first authentication, seeding
// the name fields from the sign-up hints.
func (p *LocalIdentityProvider) ensureProfileRow(ctx context.Context, account *Account) error {
	profile := &Profile{
		UserID:    account.ID,
		FirstName: metadataString(account.Metadata, "first_name"),
		LastName:  metadataString(account.Metadata, "last_name"),
	}

	if _, err := p.repo.Profiles().GetOrCreate(ctx, profile); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to ensure profile row").
			WithTextCode(textCodeProviderFailure)
	}

	return nil
}

func (p *LocalIdentityProvider) issueCode(ctx context.Context, account *Account) error {
	code, err := generateOneTimeCode()
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to generate one-time code")
	}

	p.mu.Lock()
	p.codes[account.Email] = oneTimeCode{
		code:      code,
		accountID: account.ID,
		expiresAt: p.now().Add(p.codeTTL),
	}
	p.mu.Unlock()

	if err := p.sender.SendCode(ctx, account.Email, code); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to deliver one-time code")
	}

	return nil
}

func (p *LocalIdentityProvider) recordCodeFailure(ctx context.Context, email, reason string) {
	if err := p.sink.Record(ctx, NewActivityEvent(ActivityEventCodeFailure, "", map[string]any{
		"email":  email,
		"reason": reason,
	})); err != nil {
		p.logger.Warn("activity sink error: %v", err)
	}
}

func validateSignUpPayload(payload SignUpPayload) error {
	err := validation.ValidateStruct(&payload,
		validation.Field(&payload.Email, validation.Required, is.Email),
		validation.Field(&payload.Password, validation.Required, validation.Length(8, 128)),
	)
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryValidation, "invalid sign-up payload")
	}
	return nil
}

func generateOneTimeCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1_000_000))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%06d", n.Int64()), nil
}

func metadataString(m map[string]any, key string) string {
	if m == nil {
		return ""
	}
	if v, ok := m[key].(string); ok {
		return v
	}
	return ""
}
