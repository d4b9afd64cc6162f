// Package postgres implements store.Ledger on PostgreSQL.
//
// WithAccountLock takes a row lock on the account (SELECT ... FOR UPDATE) for
// the whole transaction; account updates additionally compare the version column.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/STTM-NSU/paper-trading/internal/logger"
	"github.com/STTM-NSU/paper-trading/internal/model"
	"github.com/STTM-NSU/paper-trading/internal/store"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
)

const (
	_serializationFailure = "40001"
	_deadlockDetected     = "40P01"
	_lockNotAvailable     = "55P03"
	_foreignKeyViolation  = "23503"
)

type Store struct {
	db     *sqlx.DB
	logger logger.Logger
}

func New(db *sqlx.DB, logger logger.Logger) *Store {
	return &Store{
		db:     db,
		logger: logger,
	}
}

var _ store.Ledger = (*Store)(nil)

func (s *Store) CreateAccount(ctx context.Context, account model.Account) (model.Account, bool, error) {
	res, err := s.db.ExecContext(ctx, _insertAccount, account.ID, account.CashBalance)
	if err != nil {
		return model.Account{}, false, fmt.Errorf("%w: can't insert account", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return model.Account{}, false, fmt.Errorf("%w: can't count inserted accounts", err)
	}

	stored, err := s.GetAccount(ctx, account.ID)
	if err != nil {
		return model.Account{}, false, err
	}
	return stored, affected == 1, nil
}

func (s *Store) GetAccount(ctx context.Context, accountID string) (model.Account, error) {
	var account model.Account
	if err := s.db.GetContext(ctx, &account, _queryAccount, accountID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Account{}, fmt.Errorf("%w: %s", model.ErrAccountNotFound, accountID)
		}
		return model.Account{}, fmt.Errorf("%w: can't query account", err)
	}
	return account, nil
}

func (s *Store) ListAccountIDs(ctx context.Context) ([]string, error) {
	var ids []string
	if err := s.db.SelectContext(ctx, &ids, _queryAccountIDs); err != nil {
		return nil, fmt.Errorf("%w: can't query account ids", err)
	}
	return ids, nil
}

func (s *Store) ListPositions(ctx context.Context, accountID string) ([]model.Position, error) {
	return selectPositions(ctx, s.db, accountID)
}

func (s *Store) ListValueHistory(ctx context.Context, accountID string, since time.Time) ([]model.ValueHistoryRecord, error) {
	var rows []historyRow
	if err := s.db.SelectContext(ctx, &rows, _queryHistory, accountID, since); err != nil {
		return nil, fmt.Errorf("%w: can't query value history", err)
	}

	records := make([]model.ValueHistoryRecord, 0, len(rows))
	for _, r := range rows {
		records = append(records, r.toModel())
	}
	return records, nil
}

func (s *Store) AddFavorite(ctx context.Context, favorite model.Favorite) (model.Favorite, bool, error) {
	res, err := s.db.ExecContext(ctx, _insertFavorite, favorite.AccountID, favorite.Symbol, favorite.Name)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == _foreignKeyViolation {
			return model.Favorite{}, false, fmt.Errorf("%w: %s", model.ErrAccountNotFound, favorite.AccountID)
		}
		return model.Favorite{}, false, fmt.Errorf("%w: can't insert favorite", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return model.Favorite{}, false, fmt.Errorf("%w: can't count inserted favorites", err)
	}

	var stored model.Favorite
	if err := s.db.GetContext(ctx, &stored, _queryFavorite, favorite.AccountID, favorite.Symbol); err != nil {
		return model.Favorite{}, false, fmt.Errorf("%w: can't query favorite", err)
	}
	return stored, affected == 1, nil
}

func (s *Store) RemoveFavorite(ctx context.Context, accountID, symbol string) (bool, error) {
	res, err := s.db.ExecContext(ctx, _deleteFavorite, accountID, symbol)
	if err != nil {
		return false, fmt.Errorf("%w: can't delete favorite", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("%w: can't count deleted favorites", err)
	}
	return affected > 0, nil
}

func (s *Store) ListFavorites(ctx context.Context, accountID string) ([]model.Favorite, error) {
	favorites := make([]model.Favorite, 0)
	if err := s.db.SelectContext(ctx, &favorites, _queryFavorites, accountID); err != nil {
		return nil, fmt.Errorf("%w: can't query favorites", err)
	}
	return favorites, nil
}

func (s *Store) WithAccountLock(ctx context.Context, accountID string, fn func(tx store.Tx) error) (err error) {
	sqlTx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: can't begin transaction", classify(err))
	}
	defer func() {
		if err == nil {
			return
		}
		if rbErr := sqlTx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			s.logger.Errorf("%s: can't rollback transaction for account %s", rbErr, accountID)
		}
	}()

	var account model.Account
	if err := sqlTx.GetContext(ctx, &account, _lockAccount, accountID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("%w: %s", model.ErrAccountNotFound, accountID)
		}
		return fmt.Errorf("%w: can't lock account", classify(err))
	}

	if err := fn(&tx{tx: sqlTx, account: account}); err != nil {
		return classify(err)
	}

	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("%w: can't commit transaction", classify(err))
	}
	return nil
}

// classify maps retryable PostgreSQL failures onto store.ErrConflict.
func classify(err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case _serializationFailure, _deadlockDetected, _lockNotAvailable:
			return fmt.Errorf("%w: %s", store.ErrConflict, pqErr.Message)
		}
	}
	return err
}

func selectPositions(ctx context.Context, q sqlx.QueryerContext, accountID string) ([]model.Position, error) {
	var positions []model.Position
	if err := sqlx.SelectContext(ctx, q, &positions, _queryPositions, accountID); err != nil {
		return nil, fmt.Errorf("%w: can't query positions", err)
	}
	return positions, nil
}

type tx struct {
	tx      *sqlx.Tx
	account model.Account
}

func (t *tx) Account() model.Account {
	return t.account
}

func (t *tx) Position(ctx context.Context, symbol string) (*model.Position, error) {
	var p model.Position
	if err := t.tx.GetContext(ctx, &p, _queryPosition, t.account.ID, symbol); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: can't query position", err)
	}
	return &p, nil
}

func (t *tx) Positions(ctx context.Context) ([]model.Position, error) {
	return selectPositions(ctx, t.tx, t.account.ID)
}

func (t *tx) SaveAccount(ctx context.Context, account model.Account) error {
	if account.ID != t.account.ID {
		return fmt.Errorf("account %s is not locked", account.ID)
	}
	if account.CashBalance.IsNegative() {
		return fmt.Errorf("negative cash balance %s for account %s", account.CashBalance, account.ID)
	}

	res, err := t.tx.ExecContext(ctx, _updateAccount, account.CashBalance, account.ID, account.Version)
	if err != nil {
		return fmt.Errorf("%w: can't update account", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%w: can't count updated accounts", err)
	}
	if affected != 1 {
		return fmt.Errorf("%w: account %s is no longer at version %d", store.ErrConflict, account.ID, account.Version)
	}

	account.Version++
	account.UpdatedAt = time.Now().UTC()
	t.account = account
	return nil
}

func (t *tx) SavePosition(ctx context.Context, position model.Position) error {
	if position.AccountID != t.account.ID {
		return fmt.Errorf("position of account %s saved under %s", position.AccountID, t.account.ID)
	}
	if !position.Quantity.IsPositive() {
		return fmt.Errorf("non-positive quantity %s for %s", position.Quantity, position.Symbol)
	}

	if _, err := t.tx.ExecContext(ctx, _upsertPosition,
		position.AccountID,
		position.Symbol,
		position.Quantity,
		position.AverageCost,
	); err != nil {
		return fmt.Errorf("%w: can't upsert position", err)
	}
	return nil
}

func (t *tx) DeletePosition(ctx context.Context, symbol string) error {
	if _, err := t.tx.ExecContext(ctx, _deletePosition, t.account.ID, symbol); err != nil {
		return fmt.Errorf("%w: can't delete position", err)
	}
	return nil
}

func (t *tx) AppendValueHistory(ctx context.Context, record model.ValueHistoryRecord) error {
	if record.AccountID != t.account.ID {
		return fmt.Errorf("history of account %s appended under %s", record.AccountID, t.account.ID)
	}

	row := newHistoryRow(record)
	if _, err := t.tx.ExecContext(ctx, _insertHistory,
		row.ID,
		row.AccountID,
		row.Timestamp,
		row.CashBalance,
		row.InvestmentsValue,
		row.TotalValue,
		row.FailedSymbols,
	); err != nil {
		return fmt.Errorf("%w: can't insert value history", err)
	}
	return nil
}

type historyRow struct {
	ID               uuid.UUID       `db:"id"`
	AccountID        string          `db:"account_id"`
	Timestamp        time.Time       `db:"ts"`
	CashBalance      decimal.Decimal `db:"cash_balance"`
	InvestmentsValue decimal.Decimal `db:"investments_value"`
	TotalValue       decimal.Decimal `db:"total_value"`
	FailedSymbols    pq.StringArray  `db:"failed_symbols"`
}

func newHistoryRow(r model.ValueHistoryRecord) historyRow {
	failed := pq.StringArray(r.FailedSymbols)
	if failed == nil {
		failed = pq.StringArray{}
	}
	return historyRow{
		ID:               r.ID,
		AccountID:        r.AccountID,
		Timestamp:        r.Timestamp,
		CashBalance:      r.CashBalance,
		InvestmentsValue: r.InvestmentsValue,
		TotalValue:       r.TotalValue,
		FailedSymbols:    failed,
	}
}

func (r historyRow) toModel() model.ValueHistoryRecord {
	var failed []string
	if len(r.FailedSymbols) > 0 {
		failed = []string(r.FailedSymbols)
	}
	return model.ValueHistoryRecord{
		ID:               r.ID,
		AccountID:        r.AccountID,
		Timestamp:        r.Timestamp,
		CashBalance:      r.CashBalance,
		InvestmentsValue: r.InvestmentsValue,
		TotalValue:       r.TotalValue,
		FailedSymbols:    failed,
	}
}
