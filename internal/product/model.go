package product

import "time"

// ActionType is the closed set of fulfillment effects a product can carry.
type ActionType string

const (
	ActionAddMembershipDays ActionType = "add_membership_days"
	ActionAddLabaccessDays  ActionType = "add_labaccess_days"
)

func (t ActionType) Valid() bool {
	switch t {
	case ActionAddMembershipDays, ActionAddLabaccessDays:
		return true
	}
	return false
}

type Product struct {
	ID               int        `db:"id" json:"id"`
	Name             string     `db:"name" json:"name"`
	PriceCents       int64      `db:"price_cents" json:"price_cents"`
	SmallestMultiple int        `db:"smallest_multiple" json:"smallest_multiple"`
	DeletedAt        *time.Time `db:"deleted_at" json:"deleted_at,omitempty"`
	CreatedAt        time.Time  `db:"created_at" json:"created_at"`
}

// Action is a currently configured fulfillment rule. Transactions snapshot
// these rows at commit time; editing a rule afterwards never touches
// already-committed purchases.
type Action struct {
	ID        int        `db:"id" json:"id"`
	ProductID int        `db:"product_id" json:"product_id"`
	Type      ActionType `db:"action_type" json:"action_type"`
	ValueDays int        `db:"value_days" json:"value_days"`
}
