// Package amount implements the non-negative integral quantity tracked by the
// ledger. Values are expressed in microSTX; conversion from decimal input
// happens at the boundary through ParseSTX and never rounds.
package amount

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"sync"

	"github.com/Rhymond/go-money"
	"github.com/shopspring/decimal"
)

const (
	// Currency is the code registered with go-money for display.
	Currency = "STX"
	// Decimals is the number of minor-unit digits in one STX.
	Decimals = 6
)

var (
	// ErrOverflow is returned when a sum exceeds the representable range.
	ErrOverflow = errors.New("amount overflow")
	// ErrUnderflow is returned when a subtraction would go below zero.
	ErrUnderflow = errors.New("amount underflow")
	// ErrNegative is returned when constructing an amount from a negative value.
	ErrNegative = errors.New("amount must not be negative")
	// ErrFractional is returned when decimal input does not map to a whole number of minor units.
	ErrFractional = errors.New("amount has more precision than the minor unit")
	// ErrMalformed is returned for input that is not a decimal number.
	ErrMalformed = errors.New("malformed amount")
)

// Amount is a non-negative quantity of minor units.
type Amount struct {
	v int64
}

// Zero is the zero amount.
var Zero = Amount{}

// Max is the largest representable amount.
var Max = Amount{v: math.MaxInt64}

// New wraps a minor-unit quantity, rejecting negative values.
func New(v int64) (Amount, error) {
	if v < 0 {
		return Amount{}, fmt.Errorf("%w: %d", ErrNegative, v)
	}
	return Amount{v: v}, nil
}

// MustNew is New for constants and tests; it panics on negative input.
func MustNew(v int64) Amount {
	a, err := New(v)
	if err != nil {
		panic(err)
	}
	return a
}

// Int64 returns the number of minor units.
func (a Amount) Int64() int64 { return a.v }

// IsZero reports whether a is zero.
func (a Amount) IsZero() bool { return a.v == 0 }

// Cmp returns -1, 0 or +1 depending on whether a is less than, equal to or greater than b.
func (a Amount) Cmp(b Amount) int {
	switch {
	case a.v < b.v:
		return -1
	case a.v > b.v:
		return 1
	default:
		return 0
	}
}

// Equal reports exact equality.
func (a Amount) Equal(b Amount) bool { return a.v == b.v }

// Less reports whether a < b.
func (a Amount) Less(b Amount) bool { return a.v < b.v }

// Add returns a+b or ErrOverflow.
func Add(a, b Amount) (Amount, error) {
	if a.v > math.MaxInt64-b.v {
		return Amount{}, ErrOverflow
	}
	return Amount{v: a.v + b.v}, nil
}

// Sub returns a-b or ErrUnderflow when b > a.
func Sub(a, b Amount) (Amount, error) {
	if b.v > a.v {
		return Amount{}, ErrUnderflow
	}
	return Amount{v: a.v - b.v}, nil
}

// Apply adds a signed delta to a, failing with ErrUnderflow or ErrOverflow.
func Apply(a Amount, delta int64) (Amount, error) {
	if delta >= 0 {
		return Add(a, Amount{v: delta})
	}
	if delta == math.MinInt64 {
		return Amount{}, ErrUnderflow
	}
	return Sub(a, Amount{v: -delta})
}

// Sum adds all amounts, failing with ErrOverflow.
func Sum(amounts ...Amount) (Amount, error) {
	total := Zero
	for _, a := range amounts {
		var err error
		if total, err = Add(total, a); err != nil {
			return Amount{}, err
		}
	}
	return total, nil
}

var (
	minorPerUnit = decimal.New(1, Decimals)
	maxDecimal   = decimal.NewFromInt(math.MaxInt64)
)

// ParseSTX converts a decimal STX string such as "1.5" into minor units. It
// fails closed: values with more than six fractional digits are rejected
// instead of rounded.
func ParseSTX(s string) (Amount, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Amount{}, fmt.Errorf("%w: %q", ErrMalformed, s)
	}
	return FromDecimal(d)
}

// FromDecimal converts a decimal STX quantity into minor units.
func FromDecimal(d decimal.Decimal) (Amount, error) {
	if d.IsNegative() {
		return Amount{}, fmt.Errorf("%w: %s", ErrNegative, d.String())
	}
	scaled := d.Mul(minorPerUnit)
	if !scaled.Equal(scaled.Truncate(0)) {
		return Amount{}, fmt.Errorf("%w: %s", ErrFractional, d.String())
	}
	if scaled.GreaterThan(maxDecimal) {
		return Amount{}, fmt.Errorf("%w: %s", ErrOverflow, d.String())
	}
	return Amount{v: scaled.IntPart()}, nil
}

// Decimal returns the amount expressed in whole STX.
func (a Amount) Decimal() decimal.Decimal {
	return decimal.New(a.v, -Decimals)
}

var registerOnce sync.Once

// Format renders the amount for display, e.g. "1.500000 STX".
func Format(a Amount) string {
	registerOnce.Do(func() {
		money.AddCurrency(Currency, Currency, "1 $", ".", "", Decimals)
	})
	return money.New(a.v, Currency).Display()
}

// String implements fmt.Stringer with the raw minor-unit count.
func (a Amount) String() string { return strconv.FormatInt(a.v, 10) }

// MarshalJSON encodes the amount as a JSON integer of minor units.
func (a Amount) MarshalJSON() ([]byte, error) {
	return []byte(strconv.FormatInt(a.v, 10)), nil
}

// UnmarshalJSON decodes a JSON integer and rejects negative values.
func (a *Amount) UnmarshalJSON(b []byte) error {
	var v int64
	if err := json.Unmarshal(b, &v); err != nil {
		return fmt.Errorf("%w: %s", ErrMalformed, string(b))
	}
	parsed, err := New(v)
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}
