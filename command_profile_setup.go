package authflow

import (
	"context"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// ProfileSetupMessage carries the onboarding form submission.
type ProfileSetupMessage struct {
	UserID      uuid.UUID `json:"user_id"`
	FirstName   string    `json:"first_name"`
	LastName    string    `json:"last_name"`
	Phone       string    `json:"phone"`
	Role        string    `json:"role"`
	CompanyName string    `json:"company_name"`
	AvatarURL   string    `json:"avatar_url"`
	LogoURL     string    `json:"logo_url"`
}

func (e ProfileSetupMessage) Type() string { return "profile.setup" }

// ProfileSetupHandler completes onboarding in one transaction: profile
// fields, the completed flag, and optionally a new company plus the owner
// membership.
type ProfileSetupHandler struct {
	repo   RepositoryManager
	sink   ActivitySink
	logger Logger
}

func NewProfileSetupHandler(repo RepositoryManager) *ProfileSetupHandler {
	return &ProfileSetupHandler{
		repo:   repo,
		sink:   noopActivitySink{},
		logger: defLogger{},
	}
}

func (h *ProfileSetupHandler) WithActivitySink(sink ActivitySink) *ProfileSetupHandler {
	h.sink = normalizeActivitySink(sink)
	return h
}

func (h *ProfileSetupHandler) WithLogger(logger Logger) *ProfileSetupHandler {
	if logger != nil {
		h.logger = logger
	}
	return h
}

func (h *ProfileSetupHandler) Execute(ctx context.Context, event ProfileSetupMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during profile setup",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *ProfileSetupHandler) execute(ctx context.Context, event ProfileSetupMessage) error {
	if err := validateProfileSetup(event); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	err := h.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		profile, err := h.repo.Profiles().GetOrCreateTx(ctx, tx, &Profile{UserID: event.UserID})
		if err != nil {
			return goerrors.Wrap(err, goerrors.CategoryInternal, "could not load profile for setup")
		}

		profile.FirstName = strings.TrimSpace(event.FirstName)
		profile.LastName = strings.TrimSpace(event.LastName)
		profile.Phone = strings.TrimSpace(event.Phone)
		profile.AvatarURL = event.AvatarURL
		profile.LogoURL = event.LogoURL
		profile.ProfileCompleted = true
		if event.Role != "" {
			profile.Role = event.Role
		}

		if event.CompanyName != "" && profile.CompanyID == nil {
			company, err := h.repo.Companies().CreateTx(ctx, tx, &Company{
				Name:    strings.TrimSpace(event.CompanyName),
				LogoURL: event.LogoURL,
			})
			if err != nil {
				return goerrors.Wrap(err, goerrors.CategoryConflict, "could not create company")
			}

			profile.CompanyID = &company.ID
			profile.Role = RoleOwner

			if _, err := h.repo.CompanyMembers().AddMemberTx(ctx, tx, company.ID, event.UserID, RoleOwner); err != nil {
				return goerrors.Wrap(err, goerrors.CategoryConflict, "could not add company membership")
			}
		}

		if err := ValidateProfileRow(profile); err != nil {
			return err
		}

		if _, err := h.repo.Profiles().UpdateTx(ctx, tx, profile); err != nil {
			return goerrors.Wrap(err, goerrors.CategoryInternal, "could not persist profile")
		}

		return nil
	})

	if err != nil {
		var richErr *goerrors.Error
		if goerrors.As(err, &richErr) {
			return richErr
		}
		return goerrors.Wrap(err, goerrors.CategoryInternal, "profile setup transaction failed")
	}

	if sinkErr := h.sink.Record(ctx, NewActivityEvent(ActivityEventProfileCompleted, event.UserID.String(), nil)); sinkErr != nil {
		h.logger.Warn("activity sink error: %v", sinkErr)
	}

	return nil
}

// validateProfileSetup enforces the completion rule up front: onboarding
// cannot finish with both name fields empty.
func validateProfileSetup(event ProfileSetupMessage) error {
	if event.UserID == uuid.Nil {
		return goerrors.New("profile setup requires a user id", goerrors.CategoryValidation)
	}

	if strings.TrimSpace(event.FirstName) == "" && strings.TrimSpace(event.LastName) == "" {
		return goerrors.New("profile setup requires a name", goerrors.CategoryValidation)
	}

	err := validation.ValidateStruct(&event,
		validation.Field(&event.FirstName, validation.Length(0, 120)),
		validation.Field(&event.LastName, validation.Length(0, 120)),
		validation.Field(&event.CompanyName, validation.Length(0, 200)),
	)
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryValidation, "invalid profile setup payload")
	}

	return nil
}
