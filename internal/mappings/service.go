package mappings

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/meridianpos/meridian/internal/shared"
)

type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// Upsert configures a GL role mapping for the org.
func (s *Service) Upsert(ctx context.Context, orgID int64, key string, accountID int64) (AccountMapping, error) {
	key = strings.ToUpper(strings.TrimSpace(key))
	if orgID == 0 || key == "" || accountID == 0 {
		return AccountMapping{}, fmt.Errorf("org, key and account are required: %w", shared.ErrValidation)
	}
	return s.repo.Upsert(ctx, orgID, key, accountID)
}

// UpsertMethod configures the cash/bank account receiving a payment method.
func (s *Service) UpsertMethod(ctx context.Context, orgID int64, method PaymentMethod, accountID int64) (AccountMapping, error) {
	if method == "" {
		return AccountMapping{}, fmt.Errorf("payment method is required: %w", shared.ErrValidation)
	}
	return s.Upsert(ctx, orgID, methodKeyPrefix+string(method), accountID)
}

// List returns all mappings for the org.
func (s *Service) List(ctx context.Context, orgID int64) ([]AccountMapping, error) {
	return s.repo.List(ctx, orgID)
}

// Delete removes a mapping.
func (s *Service) Delete(ctx context.Context, orgID int64, key string) error {
	return s.repo.Delete(ctx, orgID, strings.ToUpper(strings.TrimSpace(key)))
}

// Resolve returns the account configured for a GL role.
func (s *Service) Resolve(ctx context.Context, orgID int64, key string) (int64, error) {
	mapping, err := s.repo.Get(ctx, orgID, key)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return 0, &shared.MissingAccountMappingError{OrgID: orgID, Key: key}
		}
		return 0, err
	}
	return mapping.AccountID, nil
}

// ResolveMethod returns the cash/bank account for a payment method, falling
// back to a name-based heuristic over active asset accounts when unmapped.
func (s *Service) ResolveMethod(ctx context.Context, orgID int64, method PaymentMethod) (int64, error) {
	mapping, err := s.repo.Get(ctx, orgID, methodKeyPrefix+string(method))
	if err == nil {
		return mapping.AccountID, nil
	}
	if !errors.Is(err, shared.ErrNotFound) {
		return 0, err
	}
	for _, hint := range nameHints[method] {
		accountID, err := s.repo.FindAccountByNameHint(ctx, orgID, hint)
		if err == nil {
			return accountID, nil
		}
		if !errors.Is(err, shared.ErrNotFound) {
			return 0, err
		}
	}
	return 0, &shared.MissingAccountMappingError{OrgID: orgID, Key: methodKeyPrefix + string(method)}
}
