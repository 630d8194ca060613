package member

import (
	"context"

	"github.com/makerspace/makeradmin-sub000/internal/span"
)

type Repository interface {
	GetMember(ctx context.Context, id int) (*Member, error)
	FindByBillingCustomerRef(ctx context.Context, ref string) (*Member, error)
	SetBillingCustomerRef(ctx context.Context, id int, ref string) error
	SetBillingPaymentRef(ctx context.Context, id int, ref string) error

	GetSubscriptionRef(ctx context.Context, memberID int, accessType span.AccessType) (*SubscriptionRef, error)
	ListSubscriptionRefs(ctx context.Context, memberID int) ([]SubscriptionRef, error)
	UpsertSubscriptionRef(ctx context.Context, ref *SubscriptionRef) error
	SetSubscriptionPaused(ctx context.Context, memberID int, accessType span.AccessType, paused bool) error
	ClearSubscriptionRef(ctx context.Context, memberID int, accessType span.AccessType) error
	// ClearSubscriptionRefIfMatches deletes the ref only when its external id
	// is one of the given candidates. Returns whether a row was removed, so a
	// stale delete for a superseded arrangement can be detected and ignored.
	ClearSubscriptionRefIfMatches(ctx context.Context, memberID int, accessType span.AccessType, externalIDs ...string) (bool, error)
}
