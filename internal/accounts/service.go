package accounts

import (
	"context"
	"fmt"
	"strings"

	"github.com/meridianpos/meridian/internal/shared"
)

// CreateInput carries fields for a new chart of accounts node.
type CreateInput struct {
	OrgID    int64
	Code     string
	Name     string
	Type     AccountType
	ParentID *int64
}

// UpdateInput relabels an account. Type changes are rejected once the account
// carries posted lines.
type UpdateInput struct {
	AccountID int64
	OrgID     int64
	Name      string
	Type      AccountType
	IsActive  bool
}

type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// Create validates and persists a new account.
func (s *Service) Create(ctx context.Context, in CreateInput) (Account, error) {
	in.Code = strings.TrimSpace(in.Code)
	in.Name = strings.TrimSpace(in.Name)
	if in.OrgID == 0 || in.Code == "" || in.Name == "" {
		return Account{}, fmt.Errorf("org, code and name are required: %w", shared.ErrValidation)
	}
	if !in.Type.Valid() {
		return Account{}, fmt.Errorf("unknown account type %q: %w", in.Type, shared.ErrValidation)
	}
	if in.ParentID != nil {
		if _, err := s.repo.Get(ctx, in.OrgID, *in.ParentID); err != nil {
			return Account{}, fmt.Errorf("parent account %d: %w", *in.ParentID, err)
		}
	}
	existing, err := s.repo.GetByCode(ctx, in.OrgID, in.Code)
	if err == nil && existing.ID != 0 {
		return Account{}, fmt.Errorf("account code %q already exists: %w", in.Code, shared.ErrValidation)
	}
	return s.repo.Insert(ctx, in)
}

// Update relabels an account, refusing type changes after use.
func (s *Service) Update(ctx context.Context, in UpdateInput) (Account, error) {
	account, err := s.repo.Get(ctx, in.OrgID, in.AccountID)
	if err != nil {
		return Account{}, err
	}
	if in.Type != "" && in.Type != account.Type {
		if !in.Type.Valid() {
			return Account{}, fmt.Errorf("unknown account type %q: %w", in.Type, shared.ErrValidation)
		}
		used, err := s.repo.HasJournalLines(ctx, in.AccountID)
		if err != nil {
			return Account{}, err
		}
		if used {
			return Account{}, fmt.Errorf("account %s has posted lines, type cannot change: %w", account.Code, shared.ErrInvalidState)
		}
		account.Type = in.Type
	}
	if name := strings.TrimSpace(in.Name); name != "" {
		account.Name = name
	}
	account.IsActive = in.IsActive
	return s.repo.Update(ctx, account)
}

// Get fetches one account scoped to the org.
func (s *Service) Get(ctx context.Context, orgID, accountID int64) (Account, error) {
	return s.repo.Get(ctx, orgID, accountID)
}

// List returns accounts ordered by code.
func (s *Service) List(ctx context.Context, orgID int64, filter ListFilter) ([]Account, error) {
	return s.repo.List(ctx, orgID, filter)
}
