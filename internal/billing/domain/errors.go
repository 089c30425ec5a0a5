package billing

import "errors"

var (
	// ErrEmptyBillID is returned when a bill has no source-local id.
	ErrEmptyBillID = errors.New("billing: empty bill id")
	// ErrUnknownSource is returned when a bill source is not recognized.
	ErrUnknownSource = errors.New("billing: unknown source")
	// ErrInvalidAmount is returned when an amount cannot be parsed.
	ErrInvalidAmount = errors.New("billing: invalid amount")
	// ErrMalformedSnapshot is returned when a persisted snapshot cannot be decoded.
	ErrMalformedSnapshot = errors.New("billing: malformed snapshot")
)
