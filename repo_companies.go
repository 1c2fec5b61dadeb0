package authflow

import (
	"context"

	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// Companies is the data-store contract for tenant records.
type Companies interface {
	repository.Repository[*Company]
}

func NewCompaniesRepository(db *bun.DB) Companies {
	return repository.NewRepository[*Company](db, repository.ModelHandlers[*Company]{
		NewRecord: func() *Company { return &Company{} },
		GetID: func(c *Company) uuid.UUID {
			if c == nil {
				return uuid.Nil
			}
			return c.ID
		},
		SetID: func(c *Company, id uuid.UUID) {
			if c != nil {
				c.ID = id
			}
		},
		GetIdentifier: func() string {
			return "name"
		},
	})
}

// CompanyMembers is the data-store contract for company membership rows.
type CompanyMembers interface {
	repository.Repository[*CompanyMember]

	ListByCompany(ctx context.Context, companyID uuid.UUID) ([]*CompanyMember, error)
	GetByUserID(ctx context.Context, userID uuid.UUID) (*CompanyMember, error)
	AddMemberTx(ctx context.Context, tx bun.IDB, companyID, userID uuid.UUID, role MemberRole) (*CompanyMember, error)
}

type companyMembers struct {
	repository.Repository[*CompanyMember]
	db *bun.DB
}

var _ CompanyMembers = (*companyMembers)(nil)

func NewCompanyMembersRepository(db *bun.DB) CompanyMembers {
	repo := repository.NewRepository[*CompanyMember](db, repository.ModelHandlers[*CompanyMember]{
		NewRecord: func() *CompanyMember { return &CompanyMember{} },
		GetID: func(m *CompanyMember) uuid.UUID {
			if m == nil {
				return uuid.Nil
			}
			return m.ID
		},
		SetID: func(m *CompanyMember, id uuid.UUID) {
			if m != nil {
				m.ID = id
			}
		},
	})

	return &companyMembers{
		Repository: repo,
		db:         db,
	}
}

func (r *companyMembers) ListByCompany(ctx context.Context, companyID uuid.UUID) ([]*CompanyMember, error) {
	var records []*CompanyMember
	err := r.db.NewSelect().
		Model(&records).
		Where("?TableAlias.company_id = ?", companyID).
		Order("created_at ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return records, nil
}

func (r *companyMembers) GetByUserID(ctx context.Context, userID uuid.UUID) (*CompanyMember, error) {
	record := &CompanyMember{}
	err := r.db.NewSelect().
		Model(record).
		Where("?TableAlias.user_id = ?", userID).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if repository.IsRecordNotFound(err) {
			return nil, repository.NewRecordNotFound().
				WithMetadata(map[string]any{
					"user_id": userID.String(),
				})
		}
		return nil, err
	}
	return record, nil
}

func (r *companyMembers) AddMemberTx(ctx context.Context, tx bun.IDB, companyID, userID uuid.UUID, role MemberRole) (*CompanyMember, error) {
	if role == "" {
		role = RoleMember
	}
	record := &CompanyMember{
		CompanyID: companyID,
		UserID:    userID,
		Role:      role,
	}
	return r.Repository.CreateTx(ctx, tx, record)
}
