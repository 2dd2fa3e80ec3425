package types

import "errors"

var (
	ErrValidation           = errors.New("validation failed")
	ErrInsufficientFunds    = errors.New("insufficient funds")
	ErrInsufficientHoldings = errors.New("insufficient holdings")
	ErrNotFound             = errors.New("not found")
	ErrNoPosition           = errors.New("no position held for asset")
	ErrPriceUnavailable     = errors.New("price unavailable")
	ErrInvalidState         = errors.New("invalid order state")

	// ErrOrderRejected is returned after a rejection has been persisted.
	ErrOrderRejected = errors.New("order rejected")

	ErrInvariantViolation = errors.New("balance invariant violated")
)
