package domain

import "errors"

var (
	// ErrCounterUnavailable marks a window-counter backend failure. The rate
	// limiter treats it as fail-open.
	ErrCounterUnavailable = errors.New("window counter store unavailable")

	// ErrLedgerUnavailable marks a quota-ledger backend failure, including
	// timeouts. The admission controller treats it as fail-closed.
	ErrLedgerUnavailable = errors.New("quota ledger unavailable")
)

func IsCounterUnavailable(err error) bool {
	return errors.Is(err, ErrCounterUnavailable)
}

func IsLedgerUnavailable(err error) bool {
	return errors.Is(err, ErrLedgerUnavailable)
}
