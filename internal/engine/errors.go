package engine

import "errors"

// All engine errors are locally recoverable: mutators reject invalid input
// without touching state, and handlers translate these into HTTP responses.
var (
	ErrInvalidSnapshot      = errors.New("invalid snapshot: symbol required and price must be non-negative")
	ErrUnknownSymbol        = errors.New("unknown symbol: no snapshot seeded yet")
	ErrNotFound             = errors.New("instrument not found")
	ErrUnknownInstrument    = errors.New("unknown instrument")
	ErrInvalidQuantity      = errors.New("quantity must be a positive integer")
	ErrInvalidAmount        = errors.New("amount must be positive")
	ErrInsufficientFunds    = errors.New("insufficient funds")
	ErrInsufficientHoldings = errors.New("insufficient holdings")
	ErrFeedUnavailable      = errors.New("market data feed unavailable")
)
