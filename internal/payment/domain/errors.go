package payment

import "errors"

var (
	// ErrEmptyReference is returned when a reference is empty.
	ErrEmptyReference = errors.New("payment: empty reference")
	// ErrUnknownStatus is returned for a status outside pending/success/failed.
	ErrUnknownStatus = errors.New("payment: unknown status")
	// ErrMalformedPayload is returned when a status or receipt document cannot be parsed.
	ErrMalformedPayload = errors.New("payment: malformed payload")
	// ErrMalformedBills is returned alongside a usable status record when
	// only its bills list cannot be parsed.
	ErrMalformedBills = errors.New("payment: malformed bills")
	// ErrReferenceMismatch is returned when a payload belongs to another reference.
	ErrReferenceMismatch = errors.New("payment: reference mismatch")
	// ErrInvalidPrefix is returned for a reference prefix outside [A-Z0-9]{2,8}.
	ErrInvalidPrefix = errors.New("payment: invalid reference prefix")
)
