package member

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/makerspace/makeradmin-sub000/internal/span"
)

var ErrMemberNotFound = errors.New("member not found")

type repository struct {
	db *sqlx.DB
}

func NewRepository(db *sqlx.DB) Repository {
	return &repository{db: db}
}

const memberColumns = `id, email, firstname, phone, labaccess_agreement_at, billing_customer_ref, billing_payment_ref, discount_percent, created_at`

func (r *repository) GetMember(ctx context.Context, id int) (*Member, error) {
	var m Member
	err := r.db.GetContext(ctx, &m, `
		SELECT `+memberColumns+`
		FROM members
		WHERE id = $1
	`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrMemberNotFound
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func (r *repository) FindByBillingCustomerRef(ctx context.Context, ref string) (*Member, error) {
	var m Member
	err := r.db.GetContext(ctx, &m, `
		SELECT `+memberColumns+`
		FROM members
		WHERE billing_customer_ref = $1
	`, ref)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrMemberNotFound
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func (r *repository) SetBillingCustomerRef(ctx context.Context, id int, ref string) error {
	return r.updateRef(ctx, id, "billing_customer_ref", ref)
}

func (r *repository) SetBillingPaymentRef(ctx context.Context, id int, ref string) error {
	return r.updateRef(ctx, id, "billing_payment_ref", ref)
}

func (r *repository) updateRef(ctx context.Context, id int, column, ref string) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE members
		SET `+column+` = $1
		WHERE id = $2
	`, ref, id)
	if err != nil {
		return err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrMemberNotFound
	}
	return nil
}

func (r *repository) GetSubscriptionRef(ctx context.Context, memberID int, accessType span.AccessType) (*SubscriptionRef, error) {
	var ref SubscriptionRef
	err := r.db.GetContext(ctx, &ref, `
		SELECT member_id, access_type, state, external_id, paused, created_at, updated_at
		FROM subscription_refs
		WHERE member_id = $1
		  AND access_type = $2
	`, memberID, accessType)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &ref, nil
}

func (r *repository) ListSubscriptionRefs(ctx context.Context, memberID int) ([]SubscriptionRef, error) {
	refs := []SubscriptionRef{}
	err := r.db.SelectContext(ctx, &refs, `
		SELECT member_id, access_type, state, external_id, paused, created_at, updated_at
		FROM subscription_refs
		WHERE member_id = $1
		ORDER BY access_type
	`, memberID)
	return refs, err
}

// UpsertSubscriptionRef is deliberately last-write-wins: webhook-driven
// activation may race an admin restart, and the newest arrangement reference
// is the one that counts.
func (r *repository) UpsertSubscriptionRef(ctx context.Context, ref *SubscriptionRef) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO subscription_refs (member_id, access_type, state, external_id, paused)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (member_id, access_type)
		DO UPDATE SET state = EXCLUDED.state, external_id = EXCLUDED.external_id, paused = EXCLUDED.paused, updated_at = NOW()
	`, ref.MemberID, ref.AccessType, ref.State, ref.ExternalID, ref.Paused)
	return err
}

func (r *repository) SetSubscriptionPaused(ctx context.Context, memberID int, accessType span.AccessType, paused bool) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE subscription_refs
		SET paused = $3, updated_at = NOW()
		WHERE member_id = $1
		  AND access_type = $2
	`, memberID, accessType, paused)
	return err
}

func (r *repository) ClearSubscriptionRef(ctx context.Context, memberID int, accessType span.AccessType) error {
	_, err := r.db.ExecContext(ctx, `
		DELETE FROM subscription_refs
		WHERE member_id = $1
		  AND access_type = $2
	`, memberID, accessType)
	return err
}

func (r *repository) ClearSubscriptionRefIfMatches(ctx context.Context, memberID int, accessType span.AccessType, externalIDs ...string) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		DELETE FROM subscription_refs
		WHERE member_id = $1
		  AND access_type = $2
		  AND external_id = ANY($3)
	`, memberID, accessType, pq.Array(externalIDs))
	if err != nil {
		return false, err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return rows > 0, nil
}
