package member

import (
	"time"

	"github.com/makerspace/makeradmin-sub000/internal/span"
)

type Member struct {
	ID                   int        `db:"id" json:"id"`
	Email                string     `db:"email" json:"email"`
	Firstname            string     `db:"firstname" json:"firstname"`
	Phone                *string    `db:"phone" json:"phone,omitempty"`
	LabaccessAgreementAt *time.Time `db:"labaccess_agreement_at" json:"labaccess_agreement_at,omitempty"`
	BillingCustomerRef   *string    `db:"billing_customer_ref" json:"billing_customer_ref,omitempty"`
	BillingPaymentRef    *string    `db:"billing_payment_ref" json:"billing_payment_ref,omitempty"`
	DiscountPercent      int        `db:"discount_percent" json:"discount_percent"`
	CreatedAt            time.Time  `db:"created_at" json:"created_at"`
}

// CanReceiveLabaccess is the prerequisite gate for shipping labaccess days:
// the member must be reachable by phone and have signed the lab agreement.
func (m *Member) CanReceiveLabaccess() bool {
	return m.Phone != nil && *m.Phone != "" && m.LabaccessAgreementAt != nil
}

type RefState string

const (
	StateScheduled RefState = "scheduled"
	StateLive      RefState = "live"
)

// SubscriptionRef ties a member and access type to a recurring arrangement at
// the billing processor. A scheduled ref holds the schedule id; once billing
// begins the ref is replaced with the live subscription id. No row means no
// arrangement.
type SubscriptionRef struct {
	MemberID   int             `db:"member_id" json:"member_id"`
	AccessType span.AccessType `db:"access_type" json:"access_type"`
	State      RefState        `db:"state" json:"state"`
	ExternalID string          `db:"external_id" json:"external_id"`
	Paused     bool            `db:"paused" json:"paused"`
	CreatedAt  time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt  time.Time       `db:"updated_at" json:"updated_at"`
}
