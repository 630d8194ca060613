package member

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/stretchr/testify/require"

	"github.com/makerspace/makeradmin-sub000/internal/span"
)

func setupMemberMock(t *testing.T) (Repository, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	sqlxDB := sqlx.NewDb(db, "sqlmock")
	repo := NewRepository(sqlxDB)

	closer := func() { sqlxDB.Close() }
	return repo, mock, closer
}

func memberRow(id int) *sqlmock.Rows {
	phone := "+46701234567"
	now := time.Now()
	return sqlmock.NewRows([]string{
		"id", "email", "firstname", "phone", "labaccess_agreement_at",
		"billing_customer_ref", "billing_payment_ref", "discount_percent", "created_at",
	}).AddRow(id, "maker@example.com", "Maker", phone, now, "cus_123", nil, 0, now)
}

func TestGetMember(t *testing.T) {
	repo, mock, close := setupMemberMock(t)
	defer close()

	mock.ExpectQuery(regexp.QuoteMeta(`FROM members`)).
		WithArgs(1).
		WillReturnRows(memberRow(1))

	m, err := repo.GetMember(context.Background(), 1)
	require.NoError(t, err)
	require.Equal(t, 1, m.ID)
	require.True(t, m.CanReceiveLabaccess())
}

func TestGetMemberNotFound(t *testing.T) {
	repo, mock, close := setupMemberMock(t)
	defer close()

	mock.ExpectQuery(regexp.QuoteMeta(`FROM members`)).
		WithArgs(42).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err := repo.GetMember(context.Background(), 42)
	require.ErrorIs(t, err, ErrMemberNotFound)
}

func TestGetSubscriptionRefNone(t *testing.T) {
	repo, mock, close := setupMemberMock(t)
	defer close()

	mock.ExpectQuery(regexp.QuoteMeta(`FROM subscription_refs`)).
		WithArgs(1, span.TypeMembership).
		WillReturnRows(sqlmock.NewRows([]string{"member_id"}))

	ref, err := repo.GetSubscriptionRef(context.Background(), 1, span.TypeMembership)
	require.NoError(t, err)
	require.Nil(t, ref)
}

func TestUpsertSubscriptionRef(t *testing.T) {
	repo, mock, close := setupMemberMock(t)
	defer close()

	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO subscription_refs`)).
		WithArgs(1, span.TypeMembership, StateScheduled, "sched_abc", false).
		WillReturnResult(sqlmock.NewResult(1, 1))

	err := repo.UpsertSubscriptionRef(context.Background(), &SubscriptionRef{
		MemberID:   1,
		AccessType: span.TypeMembership,
		State:      StateScheduled,
		ExternalID: "sched_abc",
	})
	require.NoError(t, err)
}

func TestClearSubscriptionRefIfMatchesStaleID(t *testing.T) {
	repo, mock, close := setupMemberMock(t)
	defer close()

	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM subscription_refs`)).
		WithArgs(1, span.TypeMembership, pq.Array([]string{"sub_old"})).
		WillReturnResult(sqlmock.NewResult(0, 0))

	removed, err := repo.ClearSubscriptionRefIfMatches(context.Background(), 1, span.TypeMembership, "sub_old")
	require.NoError(t, err)
	require.False(t, removed)
}

func TestClearSubscriptionRefIfMatchesCurrentID(t *testing.T) {
	repo, mock, close := setupMemberMock(t)
	defer close()

	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM subscription_refs`)).
		WithArgs(1, span.TypeLabaccess, pq.Array([]string{"sub_live", "sched_old"})).
		WillReturnResult(sqlmock.NewResult(0, 1))

	removed, err := repo.ClearSubscriptionRefIfMatches(context.Background(), 1, span.TypeLabaccess, "sub_live", "sched_old")
	require.NoError(t, err)
	require.True(t, removed)
}
