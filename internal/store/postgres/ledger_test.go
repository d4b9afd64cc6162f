package postgres

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/STTM-NSU/paper-trading/internal/logger"
	"github.com/STTM-NSU/paper-trading/internal/model"
	"github.com/STTM-NSU/paper-trading/internal/store"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	_accountCols  = []string{"id", "cash_balance", "version", "created_at", "updated_at"}
	_positionCols = []string{"account_id", "symbol", "quantity", "average_cost", "updated_at"}
	_favoriteCols = []string{"account_id", "symbol", "name", "created_at"}
	_created      = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
)

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	require.NoError(t, err)
	t.Cleanup(func() {
		assert.NoError(t, mock.ExpectationsWereMet())
		_ = db.Close()
	})
	return New(sqlx.NewDb(db, "postgres"), logger.NewNopLogger()), mock
}

func expectLock(mock sqlmock.Sqlmock, cash string, version int64) {
	mock.ExpectBegin()
	mock.ExpectQuery(_lockAccount).
		WithArgs("acc-1").
		WillReturnRows(sqlmock.NewRows(_accountCols).AddRow("acc-1", cash, version, _created, _created))
}

func TestStore_WithAccountLock_Commit(t *testing.T) {
	s, mock := newMockStore(t)
	ctx := context.Background()

	expectLock(mock, "100", 3)
	mock.ExpectQuery(_queryPosition).
		WithArgs("acc-1", "AAPL").
		WillReturnRows(sqlmock.NewRows(_positionCols))
	mock.ExpectExec(_updateAccount).
		WithArgs("90", "acc-1", int64(3)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(_upsertPosition).
		WithArgs("acc-1", "AAPL", "1", "10").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := s.WithAccountLock(ctx, "acc-1", func(tx store.Tx) error {
		p, err := tx.Position(ctx, "AAPL")
		require.NoError(t, err)
		assert.Nil(t, p)

		acc := tx.Account()
		assert.True(t, acc.CashBalance.Equal(decimal.NewFromInt(100)))
		acc.CashBalance = decimal.NewFromInt(90)
		if err := tx.SaveAccount(ctx, acc); err != nil {
			return err
		}
		assert.Equal(t, int64(4), tx.Account().Version)

		return tx.SavePosition(ctx, model.Position{
			AccountID:   "acc-1",
			Symbol:      "AAPL",
			Quantity:    decimal.NewFromInt(1),
			AverageCost: decimal.NewFromInt(10),
		})
	})
	assert.NoError(t, err)
}

func TestStore_WithAccountLock_RollbackOnBusinessError(t *testing.T) {
	s, mock := newMockStore(t)
	ctx := context.Background()

	expectLock(mock, "100", 0)
	mock.ExpectQuery(_queryPosition).
		WithArgs("acc-1", "AAPL").
		WillReturnRows(sqlmock.NewRows(_positionCols).AddRow("acc-1", "AAPL", "3", "10", _created))
	mock.ExpectRollback()

	err := s.WithAccountLock(ctx, "acc-1", func(tx store.Tx) error {
		p, err := tx.Position(ctx, "AAPL")
		require.NoError(t, err)
		require.NotNil(t, p)
		assert.True(t, p.Quantity.Equal(decimal.NewFromInt(3)))
		return fmt.Errorf("%w: selling 5 of AAPL", model.ErrInsufficientShares)
	})
	assert.ErrorIs(t, err, model.ErrInsufficientShares)
}

func TestStore_WithAccountLock_VersionMismatch(t *testing.T) {
	s, mock := newMockStore(t)
	ctx := context.Background()

	expectLock(mock, "100", 7)
	mock.ExpectExec(_updateAccount).
		WithArgs("50", "acc-1", int64(7)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	err := s.WithAccountLock(ctx, "acc-1", func(tx store.Tx) error {
		acc := tx.Account()
		acc.CashBalance = decimal.NewFromInt(50)
		return tx.SaveAccount(ctx, acc)
	})
	assert.ErrorIs(t, err, store.ErrConflict)
}

func TestStore_WithAccountLock_SerializationFailureOnCommit(t *testing.T) {
	s, mock := newMockStore(t)

	expectLock(mock, "100", 0)
	mock.ExpectCommit().WillReturnError(&pq.Error{Code: _serializationFailure, Message: "could not serialize access"})

	err := s.WithAccountLock(context.Background(), "acc-1", func(store.Tx) error { return nil })
	assert.ErrorIs(t, err, store.ErrConflict)
}

func TestStore_WithAccountLock_UnknownAccount(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery(_lockAccount).WithArgs("acc-1").WillReturnRows(sqlmock.NewRows(_accountCols))
	mock.ExpectRollback()

	called := false
	err := s.WithAccountLock(context.Background(), "acc-1", func(store.Tx) error {
		called = true
		return nil
	})
	assert.ErrorIs(t, err, model.ErrAccountNotFound)
	assert.False(t, called)
}

func TestStore_DeletePositionAndAppendHistory(t *testing.T) {
	s, mock := newMockStore(t)
	ctx := context.Background()
	record := model.ValueHistoryRecord{
		ID:               uuid.New(),
		AccountID:        "acc-1",
		Timestamp:        _created,
		CashBalance:      decimal.NewFromInt(100),
		InvestmentsValue: decimal.NewFromInt(20),
		TotalValue:       decimal.NewFromInt(120),
		FailedSymbols:    []string{"DELISTED"},
	}

	expectLock(mock, "100", 1)
	mock.ExpectExec(_deletePosition).
		WithArgs("acc-1", "AAPL").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(_insertHistory).
		WithArgs(record.ID.String(), "acc-1", _created, "100", "20", "120", `{"DELISTED"}`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := s.WithAccountLock(ctx, "acc-1", func(tx store.Tx) error {
		if err := tx.DeletePosition(ctx, "AAPL"); err != nil {
			return err
		}
		return tx.AppendValueHistory(ctx, record)
	})
	assert.NoError(t, err)
}

func TestStore_CreateAccount(t *testing.T) {
	s, mock := newMockStore(t)
	ctx := context.Background()

	mock.ExpectExec(_insertAccount).
		WithArgs("acc-1", "1000").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(_queryAccount).
		WithArgs("acc-1").
		WillReturnRows(sqlmock.NewRows(_accountCols).AddRow("acc-1", "1000", int64(0), _created, _created))
	mock.ExpectExec(_insertAccount).
		WithArgs("acc-1", "5").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(_queryAccount).
		WithArgs("acc-1").
		WillReturnRows(sqlmock.NewRows(_accountCols).AddRow("acc-1", "1000", int64(0), _created, _created))

	acc, created, err := s.CreateAccount(ctx, model.Account{ID: "acc-1", CashBalance: decimal.NewFromInt(1000)})
	require.NoError(t, err)
	assert.True(t, created)
	assert.True(t, acc.CashBalance.Equal(decimal.NewFromInt(1000)))

	acc, created, err = s.CreateAccount(ctx, model.Account{ID: "acc-1", CashBalance: decimal.NewFromInt(5)})
	require.NoError(t, err)
	assert.False(t, created)
	assert.True(t, acc.CashBalance.Equal(decimal.NewFromInt(1000)))
}

func TestStore_Favorites(t *testing.T) {
	s, mock := newMockStore(t)
	ctx := context.Background()
	fav := model.Favorite{AccountID: "acc-1", Symbol: "TSLA", Name: "Tesla"}

	mock.ExpectExec(_insertFavorite).
		WithArgs("acc-1", "TSLA", "Tesla").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(_queryFavorite).
		WithArgs("acc-1", "TSLA").
		WillReturnRows(sqlmock.NewRows(_favoriteCols).AddRow("acc-1", "TSLA", "Tesla", _created))
	mock.ExpectExec(_insertFavorite).
		WithArgs("acc-404", "TSLA", "Tesla").
		WillReturnError(&pq.Error{Code: _foreignKeyViolation})
	mock.ExpectQuery(_queryFavorites).
		WithArgs("acc-1").
		WillReturnRows(sqlmock.NewRows(_favoriteCols))
	mock.ExpectExec(_deleteFavorite).
		WithArgs("acc-1", "TSLA").
		WillReturnResult(sqlmock.NewResult(0, 0))

	stored, added, err := s.AddFavorite(ctx, fav)
	require.NoError(t, err)
	assert.True(t, added)
	assert.Equal(t, _created, stored.CreatedAt)

	fav.AccountID = "acc-404"
	_, _, err = s.AddFavorite(ctx, fav)
	assert.ErrorIs(t, err, model.ErrAccountNotFound)

	favorites, err := s.ListFavorites(ctx, "acc-1")
	require.NoError(t, err)
	assert.NotNil(t, favorites)
	assert.Empty(t, favorites)

	removed, err := s.RemoveFavorite(ctx, "acc-1", "TSLA")
	require.NoError(t, err)
	assert.False(t, removed)
}
