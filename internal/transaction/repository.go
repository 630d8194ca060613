package transaction

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/makerspace/makeradmin-sub000/internal/span"
)

var ErrTransactionNotFound = errors.New("transaction not found")

type repository struct {
	db *sqlx.DB
}

func NewRepository(db *sqlx.DB) Repository {
	return &repository{db: db}
}

func (r *repository) Commit(ctx context.Context, memberID *int, totalCents int64, paymentRef string, lines []LineItem) (*Transaction, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	trans := &Transaction{}
	err = tx.QueryRowxContext(ctx, `
		INSERT INTO transactions (member_id, amount_cents, status, payment_ref)
		VALUES ($1, $2, 'pending', $3)
		RETURNING id, member_id, amount_cents, status, payment_ref, created_at
	`, memberID, totalCents, paymentRef).StructScan(trans)
	if err != nil {
		return nil, err
	}

	for _, line := range lines {
		var contentID int
		err = tx.QueryRowxContext(ctx, `
			INSERT INTO transaction_contents (transaction_id, product_id, count, amount_cents)
			VALUES ($1, $2, $3, $4)
			RETURNING id
		`, trans.ID, line.ProductID, line.Count, line.AmountCents).Scan(&contentID)
		if err != nil {
			return nil, err
		}

		for _, action := range line.Actions {
			_, err = tx.ExecContext(ctx, `
				INSERT INTO transaction_actions (content_id, action_type, value_days, status)
				VALUES ($1, $2, $3, 'pending')
			`, contentID, action.Type, action.ValueDays)
			if err != nil {
				return nil, err
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return trans, nil
}

func (r *repository) Get(ctx context.Context, id int) (*Transaction, error) {
	var trans Transaction
	err := r.db.GetContext(ctx, &trans, `
		SELECT id, member_id, amount_cents, status, payment_ref, created_at
		FROM transactions
		WHERE id = $1
	`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrTransactionNotFound
	}
	if err != nil {
		return nil, err
	}
	return &trans, nil
}

func (r *repository) ListByMember(ctx context.Context, memberID int) ([]Transaction, error) {
	transactions := []Transaction{}
	err := r.db.SelectContext(ctx, &transactions, `
		SELECT id, member_id, amount_cents, status, payment_ref, created_at
		FROM transactions
		WHERE member_id = $1
		ORDER BY created_at DESC
	`, memberID)
	return transactions, err
}

func (r *repository) SetStatusIf(ctx context.Context, id int, from, to Status) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE transactions
		SET status = $3
		WHERE id = $1
		  AND status = $2
	`, id, from, to)
	if err != nil {
		return false, err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return rows > 0, nil
}

func (r *repository) ListPendingActions(ctx context.Context, filter Filter) ([]PendingActionRow, error) {
	query := `
		SELECT a.id AS action_id, a.action_type, a.value_days,
		       t.id AS transaction_id, t.member_id, t.created_at AS transaction_created_at
		FROM transaction_actions a
		JOIN transaction_contents c ON c.id = a.content_id
		JOIN transactions t ON t.id = c.transaction_id
		WHERE a.status = 'pending'
		  AND t.status = 'completed'
		  AND t.member_id IS NOT NULL
	`
	args := []interface{}{}
	if filter.MemberID != nil {
		args = append(args, *filter.MemberID)
		query += ` AND t.member_id = $1`
	}
	if filter.TransactionID != nil {
		args = append(args, *filter.TransactionID)
		if len(args) == 2 {
			query += ` AND t.id = $2`
		} else {
			query += ` AND t.id = $1`
		}
	}
	query += ` ORDER BY a.id`

	rows := []PendingActionRow{}
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, err
	}

	// The action_type column is written from the closed product enum; a value
	// outside it means corrupt data, not a shippable action.
	for _, row := range rows {
		if !row.ActionType.Valid() {
			return nil, fmt.Errorf("unknown action type %q on action %d", row.ActionType, row.ActionID)
		}
	}
	return rows, nil
}

func (r *repository) ShipAction(ctx context.Context, actionID, memberID int, accessType span.AccessType, days int, earliestStart time.Time, reason string) (bool, time.Time, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return false, time.Time{}, err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		UPDATE transaction_actions
		SET status = 'completed', completed_at = NOW()
		WHERE id = $1
		  AND status = 'pending'
	`, actionID)
	if err != nil {
		return false, time.Time{}, err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return false, time.Time{}, err
	}
	if rows == 0 {
		// Another shipper won the compare-and-set; nothing to do.
		return false, time.Time{}, nil
	}

	end, err := span.ExtendOrCreateTx(ctx, tx, memberID, accessType, days, earliestStart, reason)
	if err != nil {
		return false, time.Time{}, err
	}

	if err := tx.Commit(); err != nil {
		return false, time.Time{}, err
	}
	return true, end, nil
}
