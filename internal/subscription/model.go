// Package subscription drives the recurring-billing state machine for a
// member's access types. The actual arrangement lives at the billing
// processor; locally we only keep a reference (see member.SubscriptionRef)
// and derive the state from it.
package subscription

import (
	"time"

	"github.com/makerspace/makeradmin-sub000/internal/member"
	"github.com/makerspace/makeradmin-sub000/internal/span"
)

type State string

const (
	StateNone      State = "none"
	StateScheduled State = "scheduled"
	StateLive      State = "live"
	StatePaused    State = "paused"
)

// StateOf derives the externally visible state from a stored reference.
// No reference means no arrangement.
func StateOf(ref *member.SubscriptionRef) State {
	if ref == nil {
		return StateNone
	}
	switch ref.State {
	case member.StateScheduled:
		return StateScheduled
	case member.StateLive:
		if ref.Paused {
			return StatePaused
		}
		return StateLive
	}
	return StateNone
}

// Status is the member-facing view of one access type's arrangement.
type Status struct {
	AccessType span.AccessType `json:"access_type"`
	State      State           `json:"state"`
	ExternalID string          `json:"external_id,omitempty"`
	UpdatedAt  *time.Time      `json:"updated_at,omitempty"`
}

// StartResult reports what Start actually scheduled.
type StartResult struct {
	AccessType    span.AccessType `json:"access_type"`
	ScheduleID    string          `json:"schedule_id"`
	BillingStart  time.Time       `json:"billing_start"`
	BindingMonths int             `json:"binding_months"`
	WasCovered    bool            `json:"was_covered"`
}
