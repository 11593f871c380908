package periods

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/meridianpos/meridian/internal/shared"
)

// Authorizer resolves high-risk capabilities. Reopening a locked period
// undermines the lock guarantee, so it stays behind an explicit check owned by
// the surrounding authorization layer.
type Authorizer interface {
	CanReopenPeriods(ctx context.Context, orgID, userID int64) (bool, error)
}

// AuditPort records period lifecycle events.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// CreateInput describes a new fiscal period.
type CreateInput struct {
	OrgID    int64
	Name     string
	StartsAt time.Time
	EndsAt   time.Time
}

type Service struct {
	repo  Repository
	authz Authorizer
	audit AuditPort
	now   func() time.Time
}

func NewService(repo Repository, authz Authorizer, audit AuditPort) *Service {
	return &Service{repo: repo, authz: authz, audit: audit, now: time.Now}
}

// WithNow overrides the clock for testing.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// Create persists a new OPEN period after checking the org's ranges don't overlap.
func (s *Service) Create(ctx context.Context, in CreateInput) (Period, error) {
	if in.OrgID == 0 || in.Name == "" {
		return Period{}, fmt.Errorf("org and name are required: %w", shared.ErrValidation)
	}
	if !in.EndsAt.After(in.StartsAt) {
		return Period{}, fmt.Errorf("period end must follow start: %w", shared.ErrValidation)
	}
	overlap, err := s.repo.FindOverlapping(ctx, in.OrgID, in.StartsAt, in.EndsAt)
	if err != nil && !errors.Is(err, shared.ErrNotFound) {
		return Period{}, err
	}
	if err == nil {
		return Period{}, fmt.Errorf("period %q overlaps %s..%s: %w", overlap.Name,
			overlap.StartsAt.Format("2006-01-02"), overlap.EndsAt.Format("2006-01-02"), shared.ErrDuplicateOverlap)
	}
	return s.repo.Insert(ctx, in)
}

// Close transitions OPEN -> CLOSED.
func (s *Service) Close(ctx context.Context, orgID, periodID, userID int64) (Period, error) {
	return s.transition(ctx, orgID, periodID, userID, PeriodStatusClosed)
}

// Lock transitions OPEN or CLOSED -> LOCKED. Locked periods are immutable until
// explicitly reopened.
func (s *Service) Lock(ctx context.Context, orgID, periodID, userID int64) (Period, error) {
	return s.transition(ctx, orgID, periodID, userID, PeriodStatusLocked)
}

// Reopen transitions CLOSED or LOCKED -> OPEN. Gated by the reopen capability
// and always audited.
func (s *Service) Reopen(ctx context.Context, orgID, periodID, userID int64) (Period, error) {
	if s.authz != nil {
		allowed, err := s.authz.CanReopenPeriods(ctx, orgID, userID)
		if err != nil {
			return Period{}, err
		}
		if !allowed {
			return Period{}, fmt.Errorf("user %d may not reopen periods: %w", userID, shared.ErrForbidden)
		}
	}
	return s.transition(ctx, orgID, periodID, userID, PeriodStatusOpen)
}

func (s *Service) transition(ctx context.Context, orgID, periodID, userID int64, target PeriodStatus) (Period, error) {
	var period Period
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.GetForUpdate(ctx, orgID, periodID)
		if err != nil {
			return err
		}
		if !allowedTransition(current.Status, target) {
			return fmt.Errorf("period %q is %s: %w", current.Name, current.Status, shared.ErrInvalidState)
		}
		now := s.now()
		switch target {
		case PeriodStatusClosed:
			current.ClosedBy, current.ClosedAt = &userID, &now
		case PeriodStatusLocked:
			current.LockedBy, current.LockedAt = &userID, &now
		case PeriodStatusOpen:
			current.ClosedBy, current.ClosedAt = nil, nil
			current.LockedBy, current.LockedAt = nil, nil
		}
		current.Status = target
		period, err = tx.Update(ctx, current)
		return err
	})
	if err != nil {
		return Period{}, err
	}
	if s.audit != nil {
		_ = s.audit.Record(ctx, shared.AuditLog{
			OrgID:    orgID,
			ActorID:  userID,
			Action:   "period." + string(target),
			Entity:   "fiscal_period",
			EntityID: fmt.Sprintf("%d", period.ID),
			Meta:     map[string]any{"name": period.Name},
			At:       s.now(),
		})
	}
	return period, nil
}

func allowedTransition(from, to PeriodStatus) bool {
	switch to {
	case PeriodStatusClosed:
		return from == PeriodStatusOpen
	case PeriodStatusLocked:
		return from == PeriodStatusOpen || from == PeriodStatusClosed
	case PeriodStatusOpen:
		return from == PeriodStatusClosed || from == PeriodStatusLocked
	}
	return false
}

// Get fetches one period.
func (s *Service) Get(ctx context.Context, orgID, periodID int64) (Period, error) {
	return s.repo.Get(ctx, orgID, periodID)
}

// List returns the org's periods ordered by start date.
func (s *Service) List(ctx context.Context, orgID int64) ([]Period, error) {
	return s.repo.List(ctx, orgID)
}

// LockedPeriodFor returns the period covering date when that period is LOCKED.
// A date covered by no period at all is postable; periods are opt-in guard
// rails and only LOCKED is a hard barrier.
func (s *Service) LockedPeriodFor(ctx context.Context, orgID int64, date time.Time) (string, bool, error) {
	period, err := s.repo.FindByDate(ctx, orgID, date)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return "", false, nil
		}
		return "", false, err
	}
	return period.Name, period.Status == PeriodStatusLocked, nil
}

// IsLocked reports whether date falls inside a LOCKED period.
func (s *Service) IsLocked(ctx context.Context, orgID int64, date time.Time) (bool, error) {
	_, locked, err := s.LockedPeriodFor(ctx, orgID, date)
	return locked, err
}
