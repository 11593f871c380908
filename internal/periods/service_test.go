package periods

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/meridianpos/meridian/internal/shared"
)

type memoryPeriodRepo struct {
	periods map[int64]Period
	nextID  int64
}

func newMemoryPeriodRepo() *memoryPeriodRepo {
	return &memoryPeriodRepo{periods: make(map[int64]Period)}
}

func (r *memoryPeriodRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return fn(ctx, r)
}

func (r *memoryPeriodRepo) Insert(ctx context.Context, in CreateInput) (Period, error) {
	r.nextID++
	period := Period{ID: r.nextID, OrgID: in.OrgID, Name: in.Name, StartsAt: in.StartsAt, EndsAt: in.EndsAt, Status: PeriodStatusOpen}
	r.periods[period.ID] = period
	return period, nil
}

func (r *memoryPeriodRepo) Get(ctx context.Context, orgID, periodID int64) (Period, error) {
	period, ok := r.periods[periodID]
	if !ok || period.OrgID != orgID {
		return Period{}, fmt.Errorf("period: %w", shared.ErrNotFound)
	}
	return period, nil
}

func (r *memoryPeriodRepo) List(ctx context.Context, orgID int64) ([]Period, error) {
	var out []Period
	for _, period := range r.periods {
		if period.OrgID == orgID {
			out = append(out, period)
		}
	}
	return out, nil
}

func (r *memoryPeriodRepo) FindOverlapping(ctx context.Context, orgID int64, startsAt, endsAt time.Time) (Period, error) {
	for _, period := range r.periods {
		if period.OrgID == orgID && !period.StartsAt.After(endsAt) && !period.EndsAt.Before(startsAt) {
			return period, nil
		}
	}
	return Period{}, fmt.Errorf("period: %w", shared.ErrNotFound)
}

func (r *memoryPeriodRepo) FindByDate(ctx context.Context, orgID int64, date time.Time) (Period, error) {
	for _, period := range r.periods {
		if period.OrgID == orgID && period.Contains(date) {
			return period, nil
		}
	}
	return Period{}, fmt.Errorf("period: %w", shared.ErrNotFound)
}

func (r *memoryPeriodRepo) GetForUpdate(ctx context.Context, orgID, periodID int64) (Period, error) {
	return r.Get(ctx, orgID, periodID)
}

func (r *memoryPeriodRepo) Update(ctx context.Context, period Period) (Period, error) {
	r.periods[period.ID] = period
	return period, nil
}

type allowAll struct{}

func (allowAll) CanReopenPeriods(ctx context.Context, orgID, userID int64) (bool, error) {
	return true, nil
}

type denyAll struct{}

func (denyAll) CanReopenPeriods(ctx context.Context, orgID, userID int64) (bool, error) {
	return false, nil
}

func day(s string) time.Time {
	d, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return d
}

func TestCreatePeriodRejectsOverlap(t *testing.T) {
	svc := NewService(newMemoryPeriodRepo(), allowAll{}, nil)

	_, err := svc.Create(context.Background(), CreateInput{OrgID: 1, Name: "2026-01", StartsAt: day("2026-01-01"), EndsAt: day("2026-01-31")})
	require.NoError(t, err)

	_, err = svc.Create(context.Background(), CreateInput{OrgID: 1, Name: "overlap", StartsAt: day("2026-01-15"), EndsAt: day("2026-02-15")})
	require.ErrorIs(t, err, shared.ErrDuplicateOverlap)

	// Same range in another org is fine.
	_, err = svc.Create(context.Background(), CreateInput{OrgID: 2, Name: "2026-01", StartsAt: day("2026-01-01"), EndsAt: day("2026-01-31")})
	require.NoError(t, err)

	_, err = svc.Create(context.Background(), CreateInput{OrgID: 1, Name: "2026-02", StartsAt: day("2026-02-01"), EndsAt: day("2026-02-28")})
	require.NoError(t, err)
}

func TestPeriodLifecycle(t *testing.T) {
	repo := newMemoryPeriodRepo()
	svc := NewService(repo, allowAll{}, nil)

	period, err := svc.Create(context.Background(), CreateInput{OrgID: 1, Name: "2026-01", StartsAt: day("2026-01-01"), EndsAt: day("2026-01-31")})
	require.NoError(t, err)

	closed, err := svc.Close(context.Background(), 1, period.ID, 7)
	require.NoError(t, err)
	require.Equal(t, PeriodStatusClosed, closed.Status)
	require.NotNil(t, closed.ClosedBy)

	// Closing twice is an invalid transition.
	_, err = svc.Close(context.Background(), 1, period.ID, 7)
	require.ErrorIs(t, err, shared.ErrInvalidState)

	locked, err := svc.Lock(context.Background(), 1, period.ID, 7)
	require.NoError(t, err)
	require.Equal(t, PeriodStatusLocked, locked.Status)
	require.NotNil(t, locked.LockedAt)

	isLocked, err := svc.IsLocked(context.Background(), 1, day("2026-01-15"))
	require.NoError(t, err)
	require.True(t, isLocked)

	// No period covering the date means not locked.
	isLocked, err = svc.IsLocked(context.Background(), 1, day("2026-06-15"))
	require.NoError(t, err)
	require.False(t, isLocked)

	reopened, err := svc.Reopen(context.Background(), 1, period.ID, 7)
	require.NoError(t, err)
	require.Equal(t, PeriodStatusOpen, reopened.Status)
	require.Nil(t, reopened.LockedAt)

	isLocked, err = svc.IsLocked(context.Background(), 1, day("2026-01-15"))
	require.NoError(t, err)
	require.False(t, isLocked)
}

func TestReopenRequiresCapability(t *testing.T) {
	repo := newMemoryPeriodRepo()
	svc := NewService(repo, denyAll{}, nil)

	period, err := svc.Create(context.Background(), CreateInput{OrgID: 1, Name: "2026-01", StartsAt: day("2026-01-01"), EndsAt: day("2026-01-31")})
	require.NoError(t, err)
	_, err = svc.Lock(context.Background(), 1, period.ID, 7)
	require.NoError(t, err)

	_, err = svc.Reopen(context.Background(), 1, period.ID, 7)
	require.ErrorIs(t, err, shared.ErrForbidden)
}
