package model

import "errors"

var (
	ErrInvalidInput           = errors.New("invalid input")
	ErrInsufficientFunds      = errors.New("insufficient funds")
	ErrInsufficientShares     = errors.New("insufficient shares")
	ErrNoSuchPosition         = errors.New("no such position")
	ErrQuoteUnavailable       = errors.New("quote unavailable")
	ErrConcurrentModification = errors.New("concurrent modification")
	ErrAccountNotFound        = errors.New("account not found")
)
