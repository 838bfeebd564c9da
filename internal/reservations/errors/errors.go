package errors

import "errors"

var (
	ErrNotFound = errors.New("reservation not found")

	ErrInvalidID = errors.New("invalid reservation ID format")
)

// Rejection reasons whose exact text is part of the API contract.
const (
	ReasonOverlap  = "There are reservations already in this date range"
	ReasonMaxDays  = "User could only reserve for maximum 3 days"
	ReasonNotFound = "Cannot find the reservation"
	ReasonTimeout  = "Timeout, please try again."
	ReasonSystem   = "System error, please try again."
)

const unavailablePrefix = "The given dates are unavailable:"

// NotAvailableError is a business rejection: a recoverable, user-facing
// outcome returned as a value, never propagated as a fatal error. Its
// Error text is returned to callers verbatim.
type NotAvailableError struct {
	Reason string
}

func (e *NotAvailableError) Error() string {
	return unavailablePrefix + e.Reason
}

func NotAvailable(reason string) *NotAvailableError {
	return &NotAvailableError{Reason: reason}
}

// AsNotAvailable unwraps err looking for a business rejection.
func AsNotAvailable(err error) (*NotAvailableError, bool) {
	var na *NotAvailableError
	if errors.As(err, &na) {
		return na, true
	}
	return nil, false
}
