package trade

import (
	"context"
	"strings"
	"testing"

	"github.com/STTM-NSU/paper-trading/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFavorites(t *testing.T) {
	c, _, _ := newCoordinator(t, 100)
	ctx := context.Background()

	fav, added, err := c.AddFavorite(ctx, "acc-1", " aapl ", "Apple Inc.")
	require.NoError(t, err)
	assert.True(t, added)
	assert.Equal(t, "AAPL", fav.Symbol)
	assert.Equal(t, "Apple Inc.", fav.Name)

	_, added, err = c.AddFavorite(ctx, "acc-1", "AAPL", "")
	require.NoError(t, err)
	assert.False(t, added)

	fav, _, err = c.AddFavorite(ctx, "acc-1", "msft", "  ")
	require.NoError(t, err)
	assert.Equal(t, "MSFT", fav.Name, "empty name falls back to the symbol")

	favorites, err := c.Favorites(ctx, "acc-1")
	require.NoError(t, err)
	assert.Len(t, favorites, 2)

	require.NoError(t, c.RemoveFavorite(ctx, "acc-1", "aapl"))
	require.NoError(t, c.RemoveFavorite(ctx, "acc-1", "AAPL"))

	favorites, err = c.Favorites(ctx, "acc-1")
	require.NoError(t, err)
	require.Len(t, favorites, 1)
	assert.Equal(t, "MSFT", favorites[0].Symbol)
}

func TestFavorites_Invalid(t *testing.T) {
	c, _, _ := newCoordinator(t, 100)
	ctx := context.Background()

	_, _, err := c.AddFavorite(ctx, "acc-1", "AA PL", "")
	assert.ErrorIs(t, err, model.ErrInvalidInput)
	_, _, err = c.AddFavorite(ctx, "acc-1", "AAPL", strings.Repeat("x", 201))
	assert.ErrorIs(t, err, model.ErrInvalidInput)
	assert.ErrorIs(t, c.RemoveFavorite(ctx, "acc-1", ""), model.ErrInvalidInput)

	_, _, err = c.AddFavorite(ctx, "acc-404", "AAPL", "")
	assert.ErrorIs(t, err, model.ErrAccountNotFound)
	assert.ErrorIs(t, c.RemoveFavorite(ctx, "acc-404", "AAPL"), model.ErrAccountNotFound)
	_, err = c.Favorites(ctx, "acc-404")
	assert.ErrorIs(t, err, model.ErrAccountNotFound)
}
