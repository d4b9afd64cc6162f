package snapshot

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/STTM-NSU/paper-trading/internal/config"
	"github.com/STTM-NSU/paper-trading/internal/logger"
	"github.com/STTM-NSU/paper-trading/internal/model"
	"github.com/STTM-NSU/paper-trading/internal/quote"
	"github.com/STTM-NSU/paper-trading/internal/store"
	"github.com/STTM-NSU/paper-trading/internal/store/memory"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

var _testConfig = config.SnapshotConfig{Enabled: true, Interval: 10 * time.Millisecond, Parallelism: 2}

var _prices = quote.SourceFunc(func(_ context.Context, symbol string) (model.Quote, error) {
	switch symbol {
	case "AAPL":
		return model.Quote{Symbol: symbol, Price: decimal.NewFromInt(10)}, nil
	case "MSFT":
		return model.Quote{Symbol: symbol, Price: decimal.NewFromInt(20)}, nil
	default:
		return model.Quote{}, model.ErrQuoteUnavailable
	}
})

func seed(t *testing.T, s *memory.Store, id string, cash int64, holdings map[string]int64) {
	t.Helper()
	ctx := context.Background()
	_, _, err := s.CreateAccount(ctx, model.Account{ID: id, CashBalance: decimal.NewFromInt(cash)})
	require.NoError(t, err)

	require.NoError(t, s.WithAccountLock(ctx, id, func(tx store.Tx) error {
		for symbol, qty := range holdings {
			if err := tx.SavePosition(ctx, model.Position{
				AccountID:   id,
				Symbol:      symbol,
				Quantity:    decimal.NewFromInt(qty),
				AverageCost: decimal.NewFromInt(1),
			}); err != nil {
				return err
			}
		}
		return nil
	}))
}

func TestSnapshot_PartialQuoteFailure(t *testing.T) {
	s := memory.New()
	seed(t, s, "acc-1", 100, map[string]int64{"AAPL": 2, "MSFT": 3, "DELISTED": 50})

	core, logs := observer.New(zapcore.WarnLevel)
	snap := New(s, _prices, _testConfig, logger.NewFromZap(zap.New(core)))

	record, err := snap.Snapshot(context.Background(), "acc-1")
	require.NoError(t, err)

	assert.True(t, record.CashBalance.Equal(decimal.NewFromInt(100)))
	assert.True(t, record.InvestmentsValue.Equal(decimal.NewFromInt(80)))
	assert.True(t, record.TotalValue.Equal(decimal.NewFromInt(180)))
	assert.Equal(t, []string{"DELISTED"}, record.FailedSymbols)

	warnings := logs.FilterMessageSnippet("DELISTED").All()
	require.Len(t, warnings, 1)
	assert.Equal(t, zapcore.WarnLevel, warnings[0].Level)

	history, err := s.ListValueHistory(context.Background(), "acc-1", time.Time{})
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, record.ID, history[0].ID)
}

func TestSnapshot_Idempotent(t *testing.T) {
	s := memory.New()
	seed(t, s, "acc-1", 5, map[string]int64{"AAPL": 1})
	snap := New(s, _prices, _testConfig, logger.NewNopLogger())
	ctx := context.Background()

	first, err := snap.Snapshot(ctx, "acc-1")
	require.NoError(t, err)
	second, err := snap.Snapshot(ctx, "acc-1")
	require.NoError(t, err)

	assert.True(t, first.TotalValue.Equal(second.TotalValue))
	assert.NotEqual(t, first.ID, second.ID)
	assert.Empty(t, first.FailedSymbols)
}

func TestSnapshot_UnknownAccount(t *testing.T) {
	snap := New(memory.New(), _prices, _testConfig, logger.NewNopLogger())
	_, err := snap.Snapshot(context.Background(), "nobody")
	assert.ErrorIs(t, err, model.ErrAccountNotFound)

	_, err = snap.History(context.Background(), "nobody", time.Time{})
	assert.ErrorIs(t, err, model.ErrAccountNotFound)
}

type failingLedger struct {
	*memory.Store
	failFor string
}

var errBroken = errors.New("broken disk")

func (f *failingLedger) WithAccountLock(ctx context.Context, accountID string, fn func(tx store.Tx) error) error {
	if accountID == f.failFor {
		return errBroken
	}
	return f.Store.WithAccountLock(ctx, accountID, fn)
}

func TestSnapshotAll_ContinuesPastFailures(t *testing.T) {
	s := memory.New()
	for _, id := range []string{"acc-1", "acc-2", "acc-3"} {
		seed(t, s, id, 10, map[string]int64{"MSFT": 1})
	}
	snap := New(&failingLedger{Store: s, failFor: "acc-2"}, _prices, _testConfig, logger.NewNopLogger())

	err := snap.SnapshotAll(context.Background())
	require.ErrorIs(t, err, errBroken)
	assert.Contains(t, err.Error(), "acc-2")

	for _, id := range []string{"acc-1", "acc-3"} {
		history, err := s.ListValueHistory(context.Background(), id, time.Time{})
		require.NoError(t, err)
		require.Len(t, history, 1, id)
		assert.True(t, history[0].TotalValue.Equal(decimal.NewFromInt(30)))
	}
}

func TestRun(t *testing.T) {
	s := memory.New()
	seed(t, s, "acc-1", 1, nil)
	snap := New(s, _prices, _testConfig, logger.NewNopLogger())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		snap.Run(ctx)
		close(done)
	}()

	assert.Eventually(t, func() bool {
		history, err := s.ListValueHistory(context.Background(), "acc-1", time.Time{})
		return err == nil && len(history) >= 2
	}, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not stop")
	}
}

func TestHistory_Since(t *testing.T) {
	s := memory.New()
	seed(t, s, "acc-1", 1, nil)
	snap := New(s, _prices, _testConfig, logger.NewNopLogger())

	now := time.Date(2025, 5, 10, 12, 0, 0, 0, time.UTC)
	for _, ts := range []time.Time{now.Add(-48 * time.Hour), now.Add(-time.Hour), now} {
		snap.now = func() time.Time { return ts }
		_, err := snap.Snapshot(context.Background(), "acc-1")
		require.NoError(t, err)
	}

	records, err := snap.History(context.Background(), "acc-1", now.Add(-24*time.Hour))
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, now.Add(-time.Hour), records[0].Timestamp)
	assert.Equal(t, now, records[1].Timestamp)
}

// staleListing hides positions from the first listings, as if they were
// bought right after the snapshotter listed them.
type staleListing struct {
	*memory.Store
	stale int
	calls int
}

func (l *staleListing) ListPositions(ctx context.Context, accountID string) ([]model.Position, error) {
	l.calls++
	if l.calls <= l.stale {
		return nil, nil
	}
	return l.Store.ListPositions(ctx, accountID)
}

func TestSnapshot_PositionOpenedWhileQuoting(t *testing.T) {
	s := memory.New()
	seed(t, s, "acc-1", 100, map[string]int64{"AAPL": 2})
	ledger := &staleListing{Store: s, stale: 1}

	core, logs := observer.New(zapcore.WarnLevel)
	snap := New(ledger, _prices, _testConfig, logger.NewFromZap(zap.New(core)))

	record, err := snap.Snapshot(context.Background(), "acc-1")
	require.NoError(t, err)
	assert.Equal(t, 2, ledger.calls)
	assert.Empty(t, record.FailedSymbols)
	assert.True(t, record.TotalValue.Equal(decimal.NewFromInt(120)))
	assert.Zero(t, logs.Len())

	history, err := s.ListValueHistory(context.Background(), "acc-1", time.Time{})
	require.NoError(t, err)
	assert.Len(t, history, 1)
}

func TestSnapshot_PositionsKeepChanging(t *testing.T) {
	s := memory.New()
	seed(t, s, "acc-1", 100, map[string]int64{"AAPL": 2})
	snap := New(&staleListing{Store: s, stale: 10}, _prices, _testConfig, logger.NewNopLogger())

	_, err := snap.Snapshot(context.Background(), "acc-1")
	assert.ErrorIs(t, err, model.ErrConcurrentModification)

	history, err := s.ListValueHistory(context.Background(), "acc-1", time.Time{})
	require.NoError(t, err)
	assert.Empty(t, history)
}
