// Package memory is an in-process store.Ledger for single-instance runs and tests.
// Each account has its own lock; writes are staged and applied only on success.
package memory

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/STTM-NSU/paper-trading/internal/model"
	"github.com/STTM-NSU/paper-trading/internal/store"
)

type Store struct {
	mu        sync.Mutex // guards the maps below, never held while a callback runs
	locks     map[string]chan struct{}
	accounts  map[string]model.Account
	positions map[string]map[string]model.Position
	history   map[string][]model.ValueHistoryRecord
	favorites map[string]map[string]model.Favorite

	now func() time.Time
}

func New() *Store {
	return &Store{
		locks:     make(map[string]chan struct{}),
		accounts:  make(map[string]model.Account),
		positions: make(map[string]map[string]model.Position),
		history:   make(map[string][]model.ValueHistoryRecord),
		favorites: make(map[string]map[string]model.Favorite),
		now:       time.Now,
	}
}

var _ store.Ledger = (*Store)(nil)

func (s *Store) CreateAccount(_ context.Context, account model.Account) (model.Account, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.accounts[account.ID]; ok {
		return existing, false, nil
	}

	now := s.now().UTC()
	account.Version = 0
	account.CreatedAt = now
	account.UpdatedAt = now
	s.accounts[account.ID] = account
	s.locks[account.ID] = make(chan struct{}, 1)
	return account, true, nil
}

func (s *Store) GetAccount(_ context.Context, accountID string) (model.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	account, ok := s.accounts[accountID]
	if !ok {
		return model.Account{}, fmt.Errorf("%w: %s", model.ErrAccountNotFound, accountID)
	}
	return account, nil
}

func (s *Store) ListAccountIDs(_ context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return slices.Sorted(maps.Keys(s.accounts)), nil
}

func (s *Store) ListPositions(_ context.Context, accountID string) ([]model.Position, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return sortedPositions(s.positions[accountID]), nil
}

func (s *Store) ListValueHistory(_ context.Context, accountID string, since time.Time) ([]model.ValueHistoryRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	records := make([]model.ValueHistoryRecord, 0)
	for _, r := range s.history[accountID] {
		if !r.Timestamp.Before(since) {
			records = append(records, r)
		}
	}
	return records, nil
}

func (s *Store) AddFavorite(_ context.Context, favorite model.Favorite) (model.Favorite, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.accounts[favorite.AccountID]; !ok {
		return model.Favorite{}, false, fmt.Errorf("%w: %s", model.ErrAccountNotFound, favorite.AccountID)
	}
	watched := s.favorites[favorite.AccountID]
	if watched == nil {
		watched = make(map[string]model.Favorite)
		s.favorites[favorite.AccountID] = watched
	}
	if existing, ok := watched[favorite.Symbol]; ok {
		return existing, false, nil
	}

	favorite.CreatedAt = s.now().UTC()
	watched[favorite.Symbol] = favorite
	return favorite, true, nil
}

func (s *Store) RemoveFavorite(_ context.Context, accountID, symbol string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.favorites[accountID][symbol]; !ok {
		return false, nil
	}
	delete(s.favorites[accountID], symbol)
	return true, nil
}

func (s *Store) ListFavorites(_ context.Context, accountID string) ([]model.Favorite, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	favorites := slices.Collect(maps.Values(s.favorites[accountID]))
	slices.SortFunc(favorites, func(a, b model.Favorite) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(a.Symbol, b.Symbol)
	})
	if favorites == nil {
		favorites = []model.Favorite{}
	}
	return favorites, nil
}

func (s *Store) WithAccountLock(ctx context.Context, accountID string, fn func(tx store.Tx) error) error {
	s.mu.Lock()
	lock, ok := s.locks[accountID]
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", model.ErrAccountNotFound, accountID)
	}

	select {
	case lock <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}
	defer func() { <-lock }()

	s.mu.Lock()
	tx := &tx{
		account:   s.accounts[accountID],
		version:   s.accounts[accountID].Version,
		positions: maps.Clone(s.positions[accountID]),
		now:       s.now().UTC(),
	}
	s.mu.Unlock()
	if tx.positions == nil {
		tx.positions = make(map[string]model.Position)
	}

	if err := fn(tx); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.accounts[accountID].Version != tx.version {
		return fmt.Errorf("%w: account %s changed outside its lock", store.ErrConflict, accountID)
	}
	s.accounts[accountID] = tx.account
	if tx.positionsDirty {
		s.positions[accountID] = tx.positions
	}
	s.history[accountID] = append(s.history[accountID], tx.history...)

	return nil
}

func sortedPositions(m map[string]model.Position) []model.Position {
	positions := make([]model.Position, 0, len(m))
	for _, symbol := range slices.Sorted(maps.Keys(m)) {
		positions = append(positions, m[symbol])
	}
	return positions
}

type tx struct {
	account        model.Account
	version        int64 // version the lock was taken at
	positions      map[string]model.Position
	positionsDirty bool
	history        []model.ValueHistoryRecord
	now            time.Time
}

func (t *tx) Account() model.Account {
	return t.account
}

func (t *tx) Position(_ context.Context, symbol string) (*model.Position, error) {
	p, ok := t.positions[symbol]
	if !ok {
		return nil, nil
	}
	return &p, nil
}

func (t *tx) Positions(_ context.Context) ([]model.Position, error) {
	return sortedPositions(t.positions), nil
}

func (t *tx) SaveAccount(_ context.Context, account model.Account) error {
	if account.ID != t.account.ID {
		return fmt.Errorf("account %s is not locked", account.ID)
	}
	if account.Version != t.account.Version {
		return fmt.Errorf("%w: account %s version %d, locked at %d",
			store.ErrConflict, account.ID, account.Version, t.account.Version)
	}
	if account.CashBalance.IsNegative() {
		return fmt.Errorf("negative cash balance %s for account %s", account.CashBalance, account.ID)
	}

	account.Version++
	account.UpdatedAt = t.now
	t.account = account
	return nil
}

func (t *tx) SavePosition(_ context.Context, position model.Position) error {
	if position.AccountID != t.account.ID {
		return fmt.Errorf("position of account %s saved under %s", position.AccountID, t.account.ID)
	}
	if !position.Quantity.IsPositive() {
		return fmt.Errorf("non-positive quantity %s for %s", position.Quantity, position.Symbol)
	}

	position.UpdatedAt = t.now
	t.positions[position.Symbol] = position
	t.positionsDirty = true
	return nil
}

func (t *tx) DeletePosition(_ context.Context, symbol string) error {
	delete(t.positions, symbol)
	t.positionsDirty = true
	return nil
}

func (t *tx) AppendValueHistory(_ context.Context, record model.ValueHistoryRecord) error {
	if record.AccountID != t.account.ID {
		return fmt.Errorf("history of account %s appended under %s", record.AccountID, t.account.ID)
	}
	record.FailedSymbols = slices.Clone(record.FailedSymbols)
	t.history = append(t.history, record)
	return nil
}
