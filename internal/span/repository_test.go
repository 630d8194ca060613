package span

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"
)

func setupSpanMock(t *testing.T) (Repository, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	sqlxDB := sqlx.NewDb(db, "sqlmock")
	repo := NewRepository(sqlxDB)

	closer := func() { sqlxDB.Close() }
	return repo, mock, closer
}

func TestIsActiveCoveringSpan(t *testing.T) {
	repo, mock, close := setupSpanMock(t)
	defer close()

	on := time.Date(2026, 3, 15, 14, 30, 0, 0, time.UTC)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT EXISTS`)).
		WithArgs(1, TypeLabaccess, Date(on)).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	active, err := repo.IsActive(context.Background(), 1, TypeLabaccess, on)
	require.NoError(t, err)
	require.True(t, active)
}

func TestLatestEndNoSpans(t *testing.T) {
	repo, mock, close := setupSpanMock(t)
	defer close()

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT MAX(enddate)`)).
		WithArgs(1, TypeMembership).
		WillReturnRows(sqlmock.NewRows([]string{"max"}))

	end, err := repo.LatestEnd(context.Background(), 1, TypeMembership)
	require.NoError(t, err)
	require.Nil(t, end)
}

func TestLatestEndReturnsMax(t *testing.T) {
	repo, mock, close := setupSpanMock(t)
	defer close()

	want := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT MAX(enddate)`)).
		WithArgs(1, TypeMembership).
		WillReturnRows(sqlmock.NewRows([]string{"max"}).AddRow(want))

	end, err := repo.LatestEnd(context.Background(), 1, TypeMembership)
	require.NoError(t, err)
	require.NotNil(t, end)
	require.Equal(t, want, *end)
}

func TestExtendOrCreateExtendsCoveringSpan(t *testing.T) {
	repo, mock, close := setupSpanMock(t)
	defer close()

	day0 := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	currentEnd := day0.AddDate(0, 0, 10)
	earliest := currentEnd

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT id, enddate`)).
		WithArgs(1, TypeLabaccess, earliest).
		WillReturnRows(sqlmock.NewRows([]string{"id", "enddate"}).AddRow(7, currentEnd))
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE spans`)).
		WithArgs(currentEnd.AddDate(0, 0, 5), 7).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	end, err := repo.ExtendOrCreate(context.Background(), 1, TypeLabaccess, 5, earliest, "test extension")
	require.NoError(t, err)
	require.Equal(t, day0.AddDate(0, 0, 15), end)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestExtendOrCreateInsertsWhenNoCoverage(t *testing.T) {
	repo, mock, close := setupSpanMock(t)
	defer close()

	today := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT id, enddate`)).
		WithArgs(2, TypeMembership, today).
		WillReturnRows(sqlmock.NewRows([]string{"id", "enddate"}))
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO spans`)).
		WithArgs(2, TypeMembership, today, today.AddDate(0, 0, 30), "webshop purchase").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	end, err := repo.ExtendOrCreate(context.Background(), 2, TypeMembership, 30, today, "webshop purchase")
	require.NoError(t, err)
	require.Equal(t, today.AddDate(0, 0, 30), end)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSoftDeleteMissingSpan(t *testing.T) {
	repo, mock, close := setupSpanMock(t)
	defer close()

	mock.ExpectExec(regexp.QuoteMeta(`UPDATE spans`)).
		WithArgs(99, "duplicate").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.SoftDelete(context.Background(), 99, "duplicate")
	require.ErrorIs(t, err, ErrSpanNotFound)
}
