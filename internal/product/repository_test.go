package product

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"
)

func setupProductMock(t *testing.T) (Repository, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	sqlxDB := sqlx.NewDb(db, "sqlmock")
	repo := NewRepository(sqlxDB)

	closer := func() { sqlxDB.Close() }
	return repo, mock, closer
}

func TestGetProduct(t *testing.T) {
	repo, mock, close := setupProductMock(t)
	defer close()

	now := time.Now()
	mock.ExpectQuery(regexp.QuoteMeta(`FROM products`)).
		WithArgs(3).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "price_cents", "smallest_multiple", "deleted_at", "created_at"}).
			AddRow(3, "Base membership 1 year", 20000, 1, nil, now))

	p, err := repo.GetProduct(context.Background(), 3)
	require.NoError(t, err)
	require.Equal(t, int64(20000), p.PriceCents)
	require.Nil(t, p.DeletedAt)
}

func TestGetProductNotFound(t *testing.T) {
	repo, mock, close := setupProductMock(t)
	defer close()

	mock.ExpectQuery(regexp.QuoteMeta(`FROM products`)).
		WithArgs(99).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err := repo.GetProduct(context.Background(), 99)
	require.ErrorIs(t, err, ErrProductNotFound)
}

func TestGetProductActions(t *testing.T) {
	repo, mock, close := setupProductMock(t)
	defer close()

	mock.ExpectQuery(regexp.QuoteMeta(`FROM product_actions`)).
		WithArgs(3).
		WillReturnRows(sqlmock.NewRows([]string{"id", "product_id", "action_type", "value_days"}).
			AddRow(1, 3, "add_membership_days", 365))

	actions, err := repo.GetProductActions(context.Background(), 3)
	require.NoError(t, err)
	require.Len(t, actions, 1)
	require.Equal(t, ActionAddMembershipDays, actions[0].Type)
	require.Equal(t, 365, actions[0].ValueDays)
}
