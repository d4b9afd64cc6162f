// Package snapshot values accounts at current quotes and appends the result to their history.
package snapshot

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/STTM-NSU/paper-trading/internal/config"
	"github.com/STTM-NSU/paper-trading/internal/logger"
	"github.com/STTM-NSU/paper-trading/internal/model"
	"github.com/STTM-NSU/paper-trading/internal/quote"
	"github.com/STTM-NSU/paper-trading/internal/store"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
)

type Snapshotter struct {
	store  store.Ledger
	quotes quote.Source
	cfg    config.SnapshotConfig

	logger logger.Logger

	now func() time.Time
}

func New(store store.Ledger, quotes quote.Source, cfg config.SnapshotConfig, logger logger.Logger) *Snapshotter {
	return &Snapshotter{
		store:  store,
		quotes: quotes,
		cfg:    cfg,
		logger: logger,
		now:    time.Now,
	}
}

type quotes struct {
	prices map[string]decimal.Decimal
	errs   map[string]error
}

func (s *Snapshotter) fetchQuotes(ctx context.Context, positions []model.Position) quotes {
	res := quotes{
		prices: make(map[string]decimal.Decimal, len(positions)),
		errs:   make(map[string]error),
	}

	var mu sync.Mutex
	var g errgroup.Group
	g.SetLimit(max(s.cfg.Parallelism, 1))
	for _, p := range positions {
		g.Go(func() error {
			q, err := s.quotes.GetQuote(ctx, p.Symbol)
			if err == nil && !q.Price.IsPositive() {
				err = fmt.Errorf("%w: non-positive price %s", model.ErrQuoteUnavailable, q.Price)
			}

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				res.errs[p.Symbol] = err
				return nil
			}
			res.prices[p.Symbol] = q.Price
			return nil
		})
	}
	_ = g.Wait()

	return res
}

// errPositionsChanged aborts a valuation when a symbol was opened after its quotes were fetched.
var errPositionsChanged = errors.New("positions changed while quoting")

const _snapshotAttempts = 2

// Snapshot appends one valuation of the account. Quotes are fetched before the
// account lock is taken; a position whose quote failed is valued at zero and
// listed in FailedSymbols. A position opened in between restarts the valuation.
func (s *Snapshotter) Snapshot(ctx context.Context, accountID string) (model.ValueHistoryRecord, error) {
	var err error
	for attempt := 1; attempt <= _snapshotAttempts; attempt++ {
		var record model.ValueHistoryRecord
		record, err = s.snapshot(ctx, accountID)
		if !errors.Is(err, errPositionsChanged) {
			return record, err
		}
		s.logger.Debugf("%s: account %s, attempt %d/%d", err, accountID, attempt, _snapshotAttempts)
	}
	return model.ValueHistoryRecord{}, fmt.Errorf("%w: %w", model.ErrConcurrentModification, err)
}

func (s *Snapshotter) snapshot(ctx context.Context, accountID string) (model.ValueHistoryRecord, error) {
	positions, err := s.store.ListPositions(ctx, accountID)
	if err != nil {
		return model.ValueHistoryRecord{}, fmt.Errorf("%w: can't list positions", err)
	}

	q := s.fetchQuotes(ctx, positions)
	if err := ctx.Err(); err != nil {
		return model.ValueHistoryRecord{}, err
	}

	var record model.ValueHistoryRecord
	err = s.store.WithAccountLock(ctx, accountID, func(tx store.Tx) error {
		account := tx.Account()
		held, err := tx.Positions(ctx)
		if err != nil {
			return fmt.Errorf("%w: can't load positions", err)
		}

		investments := decimal.Zero
		var failed []string
		for _, p := range held {
			price, ok := q.prices[p.Symbol]
			if !ok {
				reason, fetched := q.errs[p.Symbol]
				if !fetched {
					return fmt.Errorf("%w: %s", errPositionsChanged, p.Symbol)
				}
				s.logger.Warnf("%s: no quote for %s, valuing %s %s at 0", reason, p.Symbol, accountID, p.Quantity)
				failed = append(failed, p.Symbol)
				continue
			}
			investments = investments.Add(p.ValueAt(price))
		}

		record = model.ValueHistoryRecord{
			ID:               uuid.New(),
			AccountID:        account.ID,
			Timestamp:        s.now().UTC(),
			CashBalance:      account.CashBalance,
			InvestmentsValue: investments,
			TotalValue:       account.CashBalance.Add(investments),
			FailedSymbols:    failed,
		}
		if err := tx.AppendValueHistory(ctx, record); err != nil {
			return fmt.Errorf("%w: can't append value history", err)
		}
		return nil
	})
	if err != nil {
		return model.ValueHistoryRecord{}, err
	}

	s.logger.Debugf("account %s valued at %s (cash %s, investments %s)",
		accountID, record.TotalValue, record.CashBalance, record.InvestmentsValue)
	return record, nil
}

// SnapshotAll snapshots every account; one failing account does not stop the others.
func (s *Snapshotter) SnapshotAll(ctx context.Context) error {
	ids, err := s.store.ListAccountIDs(ctx)
	if err != nil {
		return fmt.Errorf("%w: can't list accounts", err)
	}

	var (
		mu   sync.Mutex
		errs []error
	)
	var g errgroup.Group
	g.SetLimit(max(s.cfg.Parallelism, 1))
	for _, id := range ids {
		g.Go(func() error {
			if _, err := s.Snapshot(ctx, id); err != nil {
				mu.Lock()
				errs = append(errs, fmt.Errorf("%w: can't snapshot account %s", err, id))
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()

	s.logger.Infof("snapshot of %d accounts done, %d failed", len(ids), len(errs))
	return errors.Join(errs...)
}

// Run snapshots all accounts every configured interval until ctx is done.
func (s *Snapshotter) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-time.After(s.cfg.Interval):
			if err := s.SnapshotAll(ctx); err != nil {
				s.logger.Errorf("%s: error snapshotting accounts", err)
			}
		}
	}
}

// History returns the account's records at or after since, oldest first.
func (s *Snapshotter) History(ctx context.Context, accountID string, since time.Time) ([]model.ValueHistoryRecord, error) {
	if _, err := s.store.GetAccount(ctx, accountID); err != nil {
		return nil, err
	}
	records, err := s.store.ListValueHistory(ctx, accountID, since)
	if err != nil {
		return nil, fmt.Errorf("%w: can't list value history", err)
	}
	return records, nil
}
