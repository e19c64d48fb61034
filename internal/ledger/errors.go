package ledger

import (
	"errors"
	"fmt"

	"github.com/congo-pay/pockets/internal/amount"
)

var (
	// ErrInvalidOwner is returned when the owner identity is empty.
	ErrInvalidOwner = errors.New("invalid owner")
	// ErrInvalidName is returned for pocket names that are empty, too long or padded with whitespace.
	ErrInvalidName = errors.New("invalid pocket name")
	// ErrDuplicateName is returned when a pocket with the same case-insensitive name exists.
	ErrDuplicateName = errors.New("duplicate pocket name")
	// ErrNotFound is returned when the referenced pocket does not exist.
	ErrNotFound = errors.New("pocket not found")
	// ErrInvalidAmount is returned for zero amounts on deposit, move and spend.
	ErrInvalidAmount = errors.New("invalid amount")
	// ErrInvalidDestination is returned when a spend has no destination.
	ErrInvalidDestination = errors.New("invalid destination")
	// ErrInsufficientFunds is returned when the source pocket cannot cover the amount.
	ErrInsufficientFunds = errors.New("insufficient funds")
	// ErrSameSource is returned when a move names the same pocket on both sides.
	ErrSameSource = errors.New("source and destination are the same pocket")
	// ErrNonZeroBalance is returned when deleting a pocket that still holds funds.
	ErrNonZeroBalance = errors.New("pocket balance is not zero")
	// ErrOverflow is returned when a balance or total would exceed the representable range.
	ErrOverflow = amount.ErrOverflow
	// ErrUnderflow is returned when a balance would become negative.
	ErrUnderflow = amount.ErrUnderflow
	// ErrStoreUnavailable wraps backend failures and timeouts. The operation was
	// not applied and may be retried by the caller.
	ErrStoreUnavailable = errors.New("store unavailable")
	// ErrInvariantViolation signals that pocket balances no longer sum to the
	// owner total. Mutations for the owner are refused until a replay succeeds.
	ErrInvariantViolation = errors.New("partition invariant violated")
	// ErrUnknownOperation is returned for an operation kind the engine does not know.
	ErrUnknownOperation = errors.New("unknown operation")
	// ErrUnknownEntry is returned when a log sequence number has no entry.
	ErrUnknownEntry = errors.New("log entry not found")
	// ErrInterrupted is the reason recorded for operations that never reached an
	// outcome before the process stopped.
	ErrInterrupted = errors.New("operation interrupted")
)

// reasons maps each sentinel to the code stored in rejected log entries. The
// order matters for errors.Is lookups on wrapped errors.
var reasons = []struct {
	err  error
	code string
}{
	{ErrInvariantViolation, "invariant_violation"},
	{ErrStoreUnavailable, "store_unavailable"},
	{ErrInterrupted, "interrupted"},
	{ErrInvalidOwner, "invalid_owner"},
	{ErrInvalidName, "invalid_name"},
	{ErrDuplicateName, "duplicate_name"},
	{ErrNotFound, "not_found"},
	{ErrInvalidAmount, "invalid_amount"},
	{ErrInvalidDestination, "invalid_destination"},
	{ErrInsufficientFunds, "insufficient_funds"},
	{ErrSameSource, "same_source"},
	{ErrNonZeroBalance, "non_zero_balance"},
	{ErrUnknownOperation, "unknown_operation"},
	{ErrOverflow, "overflow"},
	{ErrUnderflow, "underflow"},
}

// Reason returns the stable code for err, or "internal" for unknown errors.
func Reason(err error) string {
	for _, r := range reasons {
		if errors.Is(err, r.err) {
			return r.code
		}
	}
	return "internal"
}

// ErrorForReason maps a stored reason code back to its sentinel.
func ErrorForReason(code string) error {
	for _, r := range reasons {
		if r.code == code {
			return r.err
		}
	}
	return fmt.Errorf("unknown rejection reason %q", code)
}

// Error is a rejection with enough detail to render a precise message.
type Error struct {
	Kind   error
	Pocket string
	Amount amount.Amount
	Cause  error
}

func (e *Error) Error() string {
	msg := e.Kind.Error()
	if e.Pocket != "" {
		msg += fmt.Sprintf(": pocket %q", e.Pocket)
	}
	if !e.Amount.IsZero() {
		msg += fmt.Sprintf(", amount %s", e.Amount)
	}
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

// Unwrap exposes both the kind and the underlying cause to errors.Is.
func (e *Error) Unwrap() []error {
	if e.Cause == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Cause}
}

func reject(kind error, pocket string, amt amount.Amount) *Error {
	return &Error{Kind: kind, Pocket: pocket, Amount: amt}
}

func unavailable(cause error) *Error {
	return &Error{Kind: ErrStoreUnavailable, Cause: cause}
}
