package trade

import (
	"context"
	"fmt"

	"github.com/STTM-NSU/paper-trading/internal/model"
	"github.com/STTM-NSU/paper-trading/internal/store"
	"github.com/shopspring/decimal"
)

// OpenAccount creates the account with the configured seed balance.
// Opening an existing account returns it unchanged.
func (c *Coordinator) OpenAccount(ctx context.Context, accountID string) (model.Account, bool, error) {
	if err := checkAccountID(accountID); err != nil {
		return model.Account{}, false, err
	}

	account, created, err := c.store.CreateAccount(ctx, model.Account{
		ID:          accountID,
		CashBalance: c.cfg.SeedBalance,
	})
	if err != nil {
		return model.Account{}, false, fmt.Errorf("%w: can't create account", err)
	}
	if created {
		c.logger.Infof("account %s opened with %s", accountID, account.CashBalance)
	}
	return account, created, nil
}

func (c *Coordinator) Account(ctx context.Context, accountID string) (model.Account, error) {
	if err := checkAccountID(accountID); err != nil {
		return model.Account{}, err
	}
	return c.store.GetAccount(ctx, accountID)
}

func (c *Coordinator) Positions(ctx context.Context, accountID string) ([]model.Position, error) {
	if _, err := c.Account(ctx, accountID); err != nil {
		return nil, err
	}
	return c.store.ListPositions(ctx, accountID)
}

func (c *Coordinator) Deposit(ctx context.Context, accountID string, amount decimal.Decimal) (model.Account, error) {
	if err := model.CheckBounds("deposit", amount); err != nil {
		return model.Account{}, err
	}
	if !amount.IsPositive() {
		return model.Account{}, fmt.Errorf("%w: deposit must be positive, got %s", model.ErrInvalidInput, amount)
	}
	return c.updateCash(ctx, accountID, "deposit", func(balance decimal.Decimal) (decimal.Decimal, error) {
		return balance.Add(amount), nil
	})
}

func (c *Coordinator) Withdraw(ctx context.Context, accountID string, amount decimal.Decimal) (model.Account, error) {
	if err := model.CheckBounds("withdrawal", amount); err != nil {
		return model.Account{}, err
	}
	if !amount.IsPositive() {
		return model.Account{}, fmt.Errorf("%w: withdrawal must be positive, got %s", model.ErrInvalidInput, amount)
	}
	return c.updateCash(ctx, accountID, "withdraw", func(balance decimal.Decimal) (decimal.Decimal, error) {
		if amount.GreaterThan(balance) {
			return decimal.Zero, fmt.Errorf("%w: withdrawal %s exceeds balance %s", model.ErrInsufficientFunds, amount, balance)
		}
		return balance.Sub(amount), nil
	})
}

// SetBalance overwrites the cash balance; positions are not touched.
func (c *Coordinator) SetBalance(ctx context.Context, accountID string, balance decimal.Decimal) (model.Account, error) {
	if err := model.CheckBounds("balance", balance); err != nil {
		return model.Account{}, err
	}
	if balance.IsNegative() {
		return model.Account{}, fmt.Errorf("%w: balance must not be negative, got %s", model.ErrInvalidInput, balance)
	}
	return c.updateCash(ctx, accountID, "set balance", func(decimal.Decimal) (decimal.Decimal, error) {
		return balance, nil
	})
}

func (c *Coordinator) updateCash(
	ctx context.Context,
	accountID, op string,
	apply func(balance decimal.Decimal) (decimal.Decimal, error),
) (model.Account, error) {
	if err := checkAccountID(accountID); err != nil {
		return model.Account{}, err
	}

	var updated model.Account
	err := c.withAccount(ctx, accountID, func(tx store.Tx) error {
		account := tx.Account()
		balance, err := apply(account.CashBalance)
		if err != nil {
			return err
		}
		account.CashBalance = balance
		if err := tx.SaveAccount(ctx, account); err != nil {
			return fmt.Errorf("%w: can't save account", err)
		}
		updated = tx.Account()
		return nil
	})
	if err != nil {
		c.logger.Infof("%s: %s on account %s rejected", err, op, accountID)
		return model.Account{}, err
	}

	c.logger.Infof("%s on account %s, cash %s", op, accountID, updated.CashBalance)
	return updated, nil
}
