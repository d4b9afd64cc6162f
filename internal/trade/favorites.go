package trade

import (
	"context"
	"fmt"

	"github.com/STTM-NSU/paper-trading/internal/model"
)

// AddFavorite puts symbol on the account's watch list; adding it twice keeps the first entry.
func (c *Coordinator) AddFavorite(ctx context.Context, accountID, symbol, name string) (model.Favorite, bool, error) {
	if err := checkAccountID(accountID); err != nil {
		return model.Favorite{}, false, err
	}
	symbol, err := model.NormalizeSymbol(symbol)
	if err != nil {
		return model.Favorite{}, false, err
	}
	name, err = model.NormalizeFavoriteName(name, symbol)
	if err != nil {
		return model.Favorite{}, false, err
	}

	favorite, added, err := c.store.AddFavorite(ctx, model.Favorite{
		AccountID: accountID,
		Symbol:    symbol,
		Name:      name,
	})
	if err != nil {
		return model.Favorite{}, false, fmt.Errorf("%w: can't add favorite", err)
	}
	if added {
		c.logger.Infof("account %s watches %s", accountID, symbol)
	}
	return favorite, added, nil
}

// RemoveFavorite drops symbol from the watch list; removing an absent symbol is not an error.
func (c *Coordinator) RemoveFavorite(ctx context.Context, accountID, symbol string) error {
	if _, err := c.Account(ctx, accountID); err != nil {
		return err
	}
	symbol, err := model.NormalizeSymbol(symbol)
	if err != nil {
		return err
	}

	removed, err := c.store.RemoveFavorite(ctx, accountID, symbol)
	if err != nil {
		return fmt.Errorf("%w: can't remove favorite", err)
	}
	if removed {
		c.logger.Infof("account %s no longer watches %s", accountID, symbol)
	}
	return nil
}

func (c *Coordinator) Favorites(ctx context.Context, accountID string) ([]model.Favorite, error) {
	if _, err := c.Account(ctx, accountID); err != nil {
		return nil, err
	}
	return c.store.ListFavorites(ctx, accountID)
}
