package ledger

import (
	"fmt"

	"github.com/congo-pay/pockets/internal/amount"
)

// CheckPartition verifies that the pocket balances of l sum exactly to the
// owner total. A mismatch is an internal fault, never a user error.
func CheckPartition(l Ledger) error {
	sum := amount.Zero
	for _, p := range l.Pockets {
		var err error
		if sum, err = amount.Add(sum, p.Balance); err != nil {
			return &Error{Kind: ErrInvariantViolation, Pocket: p.Name, Cause: err}
		}
	}
	if !sum.Equal(l.Total) {
		return &Error{
			Kind:  ErrInvariantViolation,
			Cause: fmt.Errorf("pockets of %s sum to %s, total is %s", l.Owner, sum, l.Total),
		}
	}
	return nil
}
