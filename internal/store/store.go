// Package store defines the persistence contract of the ledger.
//
// Every write to an account's cash balance or positions happens inside
// Ledger.WithAccountLock, which serializes callers per account and applies all
// writes of the callback atomically or not at all.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/STTM-NSU/paper-trading/internal/model"
)

// ErrConflict reports a write that lost a race (version mismatch, serialization
// failure, deadlock). The whole locked operation may be retried.
var ErrConflict = errors.New("storage conflict")

type Ledger interface {
	// CreateAccount inserts account unless one with the same ID exists.
	// It returns the stored account and whether it was created by this call.
	CreateAccount(ctx context.Context, account model.Account) (model.Account, bool, error)
	GetAccount(ctx context.Context, accountID string) (model.Account, error)
	ListAccountIDs(ctx context.Context) ([]string, error)
	ListPositions(ctx context.Context, accountID string) ([]model.Position, error)
	// ListValueHistory returns records with Timestamp >= since, oldest first.
	ListValueHistory(ctx context.Context, accountID string, since time.Time) ([]model.ValueHistoryRecord, error)

	// AddFavorite stores favorite unless the account already watches the symbol.
	// It returns the stored favorite and whether it was added by this call.
	AddFavorite(ctx context.Context, favorite model.Favorite) (model.Favorite, bool, error)
	// RemoveFavorite reports whether a favorite was removed.
	RemoveFavorite(ctx context.Context, accountID, symbol string) (bool, error)
	// ListFavorites returns the newest favorites first.
	ListFavorites(ctx context.Context, accountID string) ([]model.Favorite, error)

	// WithAccountLock runs fn with exclusive access to the account and its positions.
	// Writes made through tx are committed only when fn returns nil.
	// model.ErrAccountNotFound is returned when the account does not exist.
	WithAccountLock(ctx context.Context, accountID string, fn func(tx Tx) error) error
}

type Tx interface {
	// Account is the locked account as loaded when the lock was taken.
	Account() model.Account
	Position(ctx context.Context, symbol string) (*model.Position, error) // nil when not held
	Positions(ctx context.Context) ([]model.Position, error)

	// SaveAccount persists the cash balance; the version must match the locked one.
	SaveAccount(ctx context.Context, account model.Account) error
	SavePosition(ctx context.Context, position model.Position) error
	DeletePosition(ctx context.Context, symbol string) error
	AppendValueHistory(ctx context.Context, record model.ValueHistoryRecord) error
}
