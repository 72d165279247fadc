package models

import (
	"errors"
	"fmt"
)

// Validation failures surfaced by the trade service. Always
// recoverable; the caller turns them into user-actionable messages.
var (
	ErrInvalidQuantity      = errors.New("quantity must be a positive integer")
	ErrInsufficientFunds    = errors.New("insufficient cash balance for purchase")
	ErrInsufficientHoldings = errors.New("sell quantity exceeds held quantity")
)

// FetchError reports a failed quote fetch for a single symbol. A
// throttled provider response is a FetchError with Throttled set, so
// callers can distinguish rate limiting from a hard failure.
type FetchError struct {
	Symbol    string
	Reason    string
	Throttled bool
}

func (e *FetchError) Error() string {
	if e.Throttled {
		return fmt.Sprintf("quote fetch for %s throttled by provider: %s", e.Symbol, e.Reason)
	}
	return fmt.Sprintf("quote fetch for %s failed: %s", e.Symbol, e.Reason)
}

// PersistenceError wraps a ledger or balance store failure. The trade
// service guarantees no partial state change is visible when one is
// returned.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence failure during %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }
