package authflow_test

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"sync"
	"time"

	authflow "github.com/DoyenceGroup/go-authflow"
	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// memRepos is an in-memory RepositoryManager for provider and command
// tests. Transactions are pass-through; the fakes only model row state.
type memRepos struct {
	accounts  *memAccounts
	profiles  *memProfiles
	companies *memCompanies
	members   *memCompanyMembers
}

func newMemRepos() *memRepos {
	return &memRepos{
		accounts:  &memAccounts{rows: map[string]*authflow.Account{}},
		profiles:  &memProfiles{rows: map[uuid.UUID]*authflow.Profile{}},
		companies: &memCompanies{rows: map[uuid.UUID]*authflow.Company{}},
		members:   &memCompanyMembers{},
	}
}

func (m *memRepos) Validate() error { return nil }
func (m *memRepos) MustValidate()   {}

func (m *memRepos) RunInTx(ctx context.Context, opts *sql.TxOptions, f func(ctx context.Context, tx bun.Tx) error) error {
	return f(ctx, bun.Tx{})
}

func (m *memRepos) Accounts() authflow.Accounts             { return m.accounts }
func (m *memRepos) Profiles() authflow.Profiles             { return m.profiles }
func (m *memRepos) Companies() authflow.Companies           { return m.companies }
func (m *memRepos) CompanyMembers() authflow.CompanyMembers { return m.members }

type memAccounts struct {
	repository.Repository[*authflow.Account]

	mu      sync.Mutex
	rows    map[string]*authflow.Account
	signIns map[uuid.UUID]int
}

func accountKey(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func (a *memAccounts) Create(ctx context.Context, record *authflow.Account, criteria ...repository.InsertCriteria) (*authflow.Account, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	key := accountKey(record.Email)
	if _, exists := a.rows[key]; exists {
		return nil, errors.New("duplicate email")
	}

	if record.ID == uuid.Nil {
		record.ID = uuid.New()
	}
	a.rows[key] = record
	return record, nil
}

func (a *memAccounts) GetByEmail(ctx context.Context, email string) (*authflow.Account, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if account, ok := a.rows[accountKey(email)]; ok {
		return account, nil
	}
	return nil, repository.NewRecordNotFound()
}

func (a *memAccounts) GetByEmailTx(ctx context.Context, tx bun.IDB, email string) (*authflow.Account, error) {
	return a.GetByEmail(ctx, email)
}

func (a *memAccounts) MarkVerified(ctx context.Context, id uuid.UUID) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	for _, account := range a.rows {
		if account.ID == id {
			account.EmailVerified = true
			return nil
		}
	}
	return repository.NewRecordNotFound()
}

func (a *memAccounts) MarkVerifiedTx(ctx context.Context, tx bun.IDB, id uuid.UUID) error {
	return a.MarkVerified(ctx, id)
}

func (a *memAccounts) TrackSignIn(ctx context.Context, id uuid.UUID) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.signIns == nil {
		a.signIns = map[uuid.UUID]int{}
	}
	a.signIns[id]++

	for _, account := range a.rows {
		if account.ID == id {
			now := time.Now()
			account.LoggedInAt = &now
			return nil
		}
	}
	return repository.NewRecordNotFound()
}

func (a *memAccounts) signInCount(id uuid.UUID) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.signIns[id]
}

type memProfiles struct {
	repository.Repository[*authflow.Profile]

	mu   sync.Mutex
	rows map[uuid.UUID]*authflow.Profile
}

func (p *memProfiles) GetByUserID(ctx context.Context, userID uuid.UUID, criteria ...repository.SelectCriteria) (*authflow.Profile, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if row, ok := p.rows[userID]; ok {
		return row, nil
	}
	return nil, repository.NewRecordNotFound()
}

func (p *memProfiles) GetByUserIDTx(ctx context.Context, tx bun.IDB, userID uuid.UUID, criteria ...repository.SelectCriteria) (*authflow.Profile, error) {
	return p.GetByUserID(ctx, userID, criteria...)
}

func (p *memProfiles) GetOrCreate(ctx context.Context, record *authflow.Profile) (*authflow.Profile, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if row, ok := p.rows[record.UserID]; ok {
		return row, nil
	}

	if record.Role == "" {
		record.Role = authflow.RoleMember
	}
	p.rows[record.UserID] = record
	return record, nil
}

func (p *memProfiles) GetOrCreateTx(ctx context.Context, tx bun.IDB, record *authflow.Profile) (*authflow.Profile, error) {
	return p.GetOrCreate(ctx, record)
}

func (p *memProfiles) MarkCompleted(ctx context.Context, userID uuid.UUID) (*authflow.Profile, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	row, ok := p.rows[userID]
	if !ok {
		return nil, repository.NewRecordNotFound()
	}
	row.ProfileCompleted = true
	return row, nil
}

func (p *memProfiles) MarkCompletedTx(ctx context.Context, tx bun.IDB, userID uuid.UUID) (*authflow.Profile, error) {
	return p.MarkCompleted(ctx, userID)
}

func (p *memProfiles) UpdateTx(ctx context.Context, tx bun.IDB, record *authflow.Profile, criteria ...repository.UpdateCriteria) (*authflow.Profile, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, ok := p.rows[record.UserID]; !ok {
		return nil, repository.NewRecordNotFound()
	}
	p.rows[record.UserID] = record
	return record, nil
}

type memCompanies struct {
	repository.Repository[*authflow.Company]

	mu   sync.Mutex
	rows map[uuid.UUID]*authflow.Company
}

func (c *memCompanies) CreateTx(ctx context.Context, tx bun.IDB, record *authflow.Company, criteria ...repository.InsertCriteria) (*authflow.Company, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if record.ID == uuid.Nil {
		record.ID = uuid.New()
	}
	c.rows[record.ID] = record
	return record, nil
}

type memCompanyMembers struct {
	repository.Repository[*authflow.CompanyMember]

	mu   sync.Mutex
	rows []*authflow.CompanyMember
}

func (m *memCompanyMembers) ListByCompany(ctx context.Context, companyID uuid.UUID) ([]*authflow.CompanyMember, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []*authflow.CompanyMember
	for _, row := range m.rows {
		if row.CompanyID == companyID {
			out = append(out, row)
		}
	}
	return out, nil
}

func (m *memCompanyMembers) GetByUserID(ctx context.Context, userID uuid.UUID) (*authflow.CompanyMember, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, row := range m.rows {
		if row.UserID == userID {
			return row, nil
		}
	}
	return nil, repository.NewRecordNotFound()
}

func (m *memCompanyMembers) AddMemberTx(ctx context.Context, tx bun.IDB, companyID, userID uuid.UUID, role authflow.MemberRole) (*authflow.CompanyMember, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	member := &authflow.CompanyMember{
		ID:        uuid.New(),
		CompanyID: companyID,
		UserID:    userID,
		Role:      role,
	}
	m.rows = append(m.rows, member)
	return member, nil
}
