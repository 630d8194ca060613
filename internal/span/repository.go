package span

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/makerspace/makeradmin-sub000/internal/db"
)

var ErrSpanNotFound = errors.New("span not found")

type repository struct {
	db *sqlx.DB
}

func NewRepository(db *sqlx.DB) Repository {
	return &repository{db: db}
}

func (r *repository) ListByMember(ctx context.Context, memberID int) ([]Span, error) {
	spans := []Span{}
	err := r.db.SelectContext(ctx, &spans, `
		SELECT id, member_id, type, startdate, enddate, creation_reason, deleted_at, deletion_reason, created_at
		FROM spans
		WHERE member_id = $1
		ORDER BY startdate, id
	`, memberID)
	return spans, err
}

func (r *repository) IsActive(ctx context.Context, memberID int, accessType AccessType, on time.Time) (bool, error) {
	return db.Exists(ctx, r.db, `
		SELECT EXISTS (
			SELECT 1
			FROM spans
			WHERE member_id = $1
			  AND type = $2
			  AND deleted_at IS NULL
			  AND startdate <= $3
			  AND enddate >= $3
		)
	`, memberID, accessType, Date(on))
}

func (r *repository) LatestEnd(ctx context.Context, memberID int, accessType AccessType) (*time.Time, error) {
	var end time.Time
	err := r.db.GetContext(ctx, &end, `
		SELECT MAX(enddate)
		FROM spans
		WHERE member_id = $1
		  AND type = $2
		  AND deleted_at IS NULL
		HAVING MAX(enddate) IS NOT NULL
	`, memberID, accessType)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &end, nil
}

func (r *repository) ExtendOrCreate(ctx context.Context, memberID int, accessType AccessType, days int, earliestStart time.Time, reason string) (time.Time, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return time.Time{}, err
	}
	defer tx.Rollback()

	end, err := ExtendOrCreateTx(ctx, tx, memberID, accessType, days, earliestStart, reason)
	if err != nil {
		return time.Time{}, err
	}

	if err := tx.Commit(); err != nil {
		return time.Time{}, err
	}
	return end, nil
}

// ExtendOrCreateTx runs the extend-or-create against an already open
// transaction so callers can tie the ledger write to their own atomic step
// (the fulfillment shipper completes the action row in the same transaction).
//
// Among non-deleted spans whose enddate has not passed earliestStart, the one
// with the greatest enddate is locked and pushed forward. Overlapping spans
// are left as separate rows. If no span qualifies a fresh one is inserted at
// earliestStart.
func ExtendOrCreateTx(ctx context.Context, tx *sqlx.Tx, memberID int, accessType AccessType, days int, earliestStart time.Time, reason string) (time.Time, error) {
	earliestStart = Date(earliestStart)

	var current struct {
		ID      int       `db:"id"`
		EndDate time.Time `db:"enddate"`
	}
	err := tx.GetContext(ctx, &current, `
		SELECT id, enddate
		FROM spans
		WHERE member_id = $1
		  AND type = $2
		  AND deleted_at IS NULL
		  AND enddate >= $3
		ORDER BY enddate DESC
		LIMIT 1
		FOR UPDATE
	`, memberID, accessType, earliestStart)

	switch {
	case err == nil:
		newEnd := current.EndDate.AddDate(0, 0, days)
		if _, err := tx.ExecContext(ctx, `
			UPDATE spans
			SET enddate = $1
			WHERE id = $2
		`, newEnd, current.ID); err != nil {
			return time.Time{}, err
		}
		return newEnd, nil

	case errors.Is(err, sql.ErrNoRows):
		newEnd := earliestStart.AddDate(0, 0, days)
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO spans (member_id, type, startdate, enddate, creation_reason)
			VALUES ($1, $2, $3, $4, $5)
		`, memberID, accessType, earliestStart, newEnd, reason); err != nil {
			return time.Time{}, err
		}
		return newEnd, nil

	default:
		return time.Time{}, err
	}
}

func (r *repository) SoftDelete(ctx context.Context, id int, reason string) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE spans
		SET deleted_at = NOW(), deletion_reason = $2
		WHERE id = $1
		  AND deleted_at IS NULL
	`, id, reason)
	if err != nil {
		return err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrSpanNotFound
	}
	return nil
}
