package domain

import (
	"context"
	"time"
)

// CalendarService is the external collaborator used for interest
// scheduling. It is never consulted on the posting hot path.
type CalendarService interface {
	IsBusinessDay(ctx context.Context, date time.Time, jurisdiction string) (bool, error)
	NextBusinessDay(ctx context.Context, date time.Time, jurisdiction string) (time.Time, error)
	PreviousBusinessDay(ctx context.Context, date time.Time, jurisdiction string) (time.Time, error)
	AddBusinessDays(ctx context.Context, date time.Time, jurisdiction string, days int) (time.Time, error)
}

// PersonRegistry is the external identity-graph collaborator. The
// core stores only person ids; it never resolves names or profiles.
type PersonRegistry interface {
	Exists(ctx context.Context, personID PersonID) (bool, error)
}
