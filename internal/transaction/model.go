package transaction

import (
	"time"

	"github.com/makerspace/makeradmin-sub000/internal/product"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

type ActionStatus string

const (
	ActionPending   ActionStatus = "pending"
	ActionCompleted ActionStatus = "completed"
)

type Transaction struct {
	ID          int       `db:"id" json:"id"`
	MemberID    *int      `db:"member_id" json:"member_id,omitempty"`
	AmountCents int64     `db:"amount_cents" json:"amount_cents"`
	Status      Status    `db:"status" json:"status"`
	PaymentRef  *string   `db:"payment_ref" json:"payment_ref,omitempty"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
}

// Content is one distinct cart line, immutable once written.
type Content struct {
	ID            int   `db:"id" json:"id"`
	TransactionID int   `db:"transaction_id" json:"transaction_id"`
	ProductID     int   `db:"product_id" json:"product_id"`
	Count         int   `db:"count" json:"count"`
	AmountCents   int64 `db:"amount_cents" json:"amount_cents"`
}

// Action is a snapshotted fulfillment effect for one content row. The
// pending-to-completed transition is the unit of idempotency for shipping.
type Action struct {
	ID          int                `db:"id" json:"id"`
	ContentID   int                `db:"content_id" json:"content_id"`
	Type        product.ActionType `db:"action_type" json:"action_type"`
	ValueDays   int                `db:"value_days" json:"value_days"`
	Status      ActionStatus       `db:"status" json:"status"`
	CompletedAt *time.Time         `db:"completed_at" json:"completed_at,omitempty"`
}

type CartItem struct {
	ProductID int `json:"product_id" binding:"required" validate:"gt=0"`
	Count     int `json:"count" binding:"required" validate:"gt=0"`
}

// ActionSnapshot is a fulfillment effect computed at validation time, already
// multiplied by the purchased count and grouped per action type.
type ActionSnapshot struct {
	Type      product.ActionType `json:"action_type"`
	ValueDays int                `json:"value_days"`
}

type LineItem struct {
	ProductID   int              `json:"product_id"`
	Count       int              `json:"count"`
	AmountCents int64            `json:"amount_cents"`
	Actions     []ActionSnapshot `json:"actions"`
}

// Filter narrows a shipping sweep; both fields nil means all members.
type Filter struct {
	MemberID      *int `json:"member_id,omitempty"`
	TransactionID *int `json:"transaction_id,omitempty"`
}

// PendingActionRow joins a pending action with its completed transaction,
// carrying everything the shipper needs for one ledger extension.
type PendingActionRow struct {
	ActionID             int                `db:"action_id"`
	ActionType           product.ActionType `db:"action_type"`
	ValueDays            int                `db:"value_days"`
	TransactionID        int                `db:"transaction_id"`
	MemberID             int                `db:"member_id"`
	TransactionCreatedAt time.Time          `db:"transaction_created_at"`
}
