package periods

import "time"

// PeriodStatus enumerates valid fiscal period states.
type PeriodStatus string

const (
	PeriodStatusOpen   PeriodStatus = "OPEN"
	PeriodStatusClosed PeriodStatus = "CLOSED"
	PeriodStatusLocked PeriodStatus = "LOCKED"
)

// Period represents a fiscal period window. Periods for one org never overlap.
// CLOSED is a soft boundary for business workflows; only LOCKED is the hard
// mutation barrier the journal engine enforces.
type Period struct {
	ID        int64
	OrgID     int64
	Name      string
	StartsAt  time.Time
	EndsAt    time.Time
	Status    PeriodStatus
	ClosedBy  *int64
	ClosedAt  *time.Time
	LockedBy  *int64
	LockedAt  *time.Time
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Contains reports whether date falls inside the period window, inclusive.
func (p Period) Contains(date time.Time) bool {
	return !date.Before(p.StartsAt) && !date.After(p.EndsAt)
}
