package authflow

import (
	"context"
	"time"

	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// Profiles is the data-store contract for profile rows.
type Profiles interface {
	repository.Repository[*Profile]

	GetByUserID(ctx context.Context, userID uuid.UUID, criteria ...repository.SelectCriteria) (*Profile, error)
	GetByUserIDTx(ctx context.Context, tx bun.IDB, userID uuid.UUID, criteria ...repository.SelectCriteria) (*Profile, error)
	GetOrCreate(ctx context.Context, record *Profile) (*Profile, error)
	GetOrCreateTx(ctx context.Context, tx bun.IDB, record *Profile) (*Profile, error)
	MarkCompleted(ctx context.Context, userID uuid.UUID) (*Profile, error)
	MarkCompletedTx(ctx context.Context, tx bun.IDB, userID uuid.UUID) (*Profile, error)
}

type profiles struct {
	repository.Repository[*Profile]
	db *bun.DB
}

var (
	_ Profiles                        = (*profiles)(nil)
	_ repository.Repository[*Profile] = (*profiles)(nil)
)

func NewProfilesRepository(db *bun.DB) Profiles {
	repo := repository.NewRepository[*Profile](db, repository.ModelHandlers[*Profile]{
		NewRecord: func() *Profile { return &Profile{} },
		GetID: func(p *Profile) uuid.UUID {
			if p == nil {
				return uuid.Nil
			}
			return p.UserID
		},
		SetID: func(p *Profile, id uuid.UUID) {
			if p != nil {
				p.UserID = id
			}
		},
		GetIdentifier: func() string {
			return "user_id"
		},
	})

	return &profiles{
		Repository: repo,
		db:         db,
	}
}

func (r *profiles) GetByUserID(ctx context.Context, userID uuid.UUID, criteria ...repository.SelectCriteria) (*Profile, error) {
	return r.GetByUserIDTx(ctx, r.db, userID, criteria...)
}

func (r *profiles) GetByUserIDTx(ctx context.Context, tx bun.IDB, userID uuid.UUID, criteria ...repository.SelectCriteria) (*Profile, error) {
	record := &Profile{}
	q := tx.NewSelect().Model(record)

	for _, c := range criteria {
		q.Apply(c)
	}

	err := q.
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

func (r *profiles) GetOrCreate(ctx context.Context, record *Profile) (*Profile, error) {
	return r.GetOrCreateTx(ctx, r.db, record)
}

// GetOrCreateTx backs the implicit row creation on first authentication.
func (r *profiles) GetOrCreateTx(ctx context.Context, tx bun.IDB, record *Profile) (*Profile, error) {
	existing, err := r.GetByUserIDTx(ctx, tx, record.UserID)
	if err == nil {
		return existing, nil
	}

	if !repository.IsRecordNotFound(err) {
		return nil, err
	}

	prepareProfileDefaults(record)
	return r.Repository.CreateTx(ctx, tx, record)
}

func (r *profiles) MarkCompleted(ctx context.Context, userID uuid.UUID) (*Profile, error) {
	return r.MarkCompletedTx(ctx, r.db, userID)
}

func (r *profiles) MarkCompletedTx(ctx context.Context, tx bun.IDB, userID uuid.UUID) (*Profile, error) {
	_, err := tx.NewRaw(`
		UPDATE "profiles" AS "prf"
		SET
			"profile_completed" = TRUE,
			"updated_at" = ?
		WHERE
			("prf".user_id = ?)
			AND "prf"."deleted_at" IS NULL;
	`, time.Now(), userID).Exec(ctx)
	if err != nil {
		return nil, err
	}

	return r.GetByUserIDTx(ctx, tx, userID)
}

func prepareProfileDefaults(p *Profile) {
	if p == nil {
		return
	}
	if p.Role == "" {
		p.Role = RoleMember
	}
	if p.Metadata == nil {
		p.Metadata = map[string]any{}
	}
}
