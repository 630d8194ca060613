// Package billing is the boundary to the external recurring-billing
// processor. The rest of the system only sees the narrow Client interface and
// the webhook-driven Processor; Stripe specifics stay in here.
package billing

import (
	"context"
	"errors"
	"time"
)

var ErrArrangementNotFound = errors.New("arrangement not found at billing processor")

type Price struct {
	ID              string
	LookupKey       string
	UnitAmountCents int64
	IntervalMonths  int
}

// SchedulePhase is one billing phase of an arrangement. Months 0 means the
// phase runs until cancelled (the standard recurring tail).
type SchedulePhase struct {
	PriceID string
	Months  int
}

type Client interface {
	CreateCustomer(ctx context.Context, memberID int, email, name string) (string, error)
	// CreateSchedule sets up a phased arrangement starting at startAt. The
	// metadata is attached to every phase so that events emitted by the
	// resulting subscription can be attributed back to the member.
	CreateSchedule(ctx context.Context, customerRef string, startAt time.Time, phases []SchedulePhase, metadata map[string]string) (string, error)
	// CancelSchedule releases a not-yet-started schedule and cancels any
	// subscription it already produced.
	CancelSchedule(ctx context.Context, scheduleID string) error
	CancelSubscription(ctx context.Context, subscriptionID string) error
	SetPauseCollection(ctx context.Context, subscriptionID string, paused bool) error
	GetPriceByLookupKey(ctx context.Context, lookupKey string) (*Price, error)
}
