package model

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"
)

const _maxFavoriteNameLen = 200

// Favorite is a symbol an account watches without holding it.
type Favorite struct {
	AccountID string    `db:"account_id" json:"-"`
	Symbol    string    `db:"symbol" json:"symbol"`
	Name      string    `db:"name" json:"name"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// NormalizeFavoriteName trims a display name; an empty name falls back to the symbol.
func NormalizeFavoriteName(name, symbol string) (string, error) {
	name = strings.TrimSpace(name)
	if !utf8.ValidString(name) || utf8.RuneCountInString(name) > _maxFavoriteNameLen {
		return "", fmt.Errorf("%w: favorite name must be valid text of at most %d characters", ErrInvalidInput, _maxFavoriteNameLen)
	}
	if name == "" {
		return symbol, nil
	}
	return name, nil
}
