package transaction

import (
	"context"
	"time"

	"github.com/makerspace/makeradmin-sub000/internal/span"
)

type Repository interface {
	// Commit persists the transaction, its contents and action snapshots as
	// one atomic unit; no partial commit is ever observable.
	Commit(ctx context.Context, memberID *int, totalCents int64, paymentRef string, lines []LineItem) (*Transaction, error)
	Get(ctx context.Context, id int) (*Transaction, error)
	ListByMember(ctx context.Context, memberID int) ([]Transaction, error)
	// SetStatusIf performs the compare-and-set status transition. Returns
	// false when the row was not in the expected state.
	SetStatusIf(ctx context.Context, id int, from, to Status) (bool, error)
	ListPendingActions(ctx context.Context, filter Filter) ([]PendingActionRow, error)
	// ShipAction completes the action row and extends the span ledger in one
	// database transaction. Returns false without error when another shipper
	// already completed the action.
	ShipAction(ctx context.Context, actionID, memberID int, accessType span.AccessType, days int, earliestStart time.Time, reason string) (bool, time.Time, error)
}
