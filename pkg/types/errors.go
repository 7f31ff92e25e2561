package types

import "errors"

// Error classes surfaced to the CLI. Wrap them with fmt.Errorf("%w: ...")
// and test with errors.Is.
var (
	ErrConfiguration       = errors.New("configuration error")
	ErrNetwork             = errors.New("network error")
	ErrAggregator          = errors.New("aggregator error")
	ErrInsufficientGas     = errors.New("insufficient gas")
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrValidation          = errors.New("validation error")
	ErrTransactionFailed   = errors.New("transaction failed")
	ErrInvalidAmount       = errors.New("invalid amount")
)
