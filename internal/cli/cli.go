// Package cli implements the pocketctl operator commands. Every command runs
// through the ledger engine against the configured backend, so the CLI and
// the API share one log.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"

	"github.com/google/subcommands"

	"github.com/congo-pay/pockets/internal/amount"
	"github.com/congo-pay/pockets/internal/ledger"
)

// Env carries what the commands share. It is filled by main from flags and
// configuration, and by tests with an in-memory engine.
type Env struct {
	Out    io.Writer
	Owner  func() string
	Open   func(ctx context.Context) (*ledger.Engine, func(), error)
	Secret func() ([]byte, error)
}

// Register the subcommands.
func Register(c *subcommands.Commander, env *Env) {
	c.Register(&createCmd{env: env}, "pockets")
	c.Register(&deleteCmd{env: env}, "pockets")
	c.Register(&balanceCmd{env: env}, "pockets")
	c.Register(&lsCmd{env: env}, "pockets")

	c.Register(&depositCmd{amountCmd{env: env}}, "operations")
	c.Register(&moveCmd{amountCmd{env: env}}, "operations")
	c.Register(&spendCmd{amountCmd: amountCmd{env: env}}, "operations")

	c.Register(&logCmd{env: env}, "operator")
	c.Register(&replayCmd{env: env}, "operator")
	c.Register(&tokenCmd{env: env}, "operator")
}

// run opens the engine for the configured owner and reports errors on Out.
func (e *Env) run(ctx context.Context, fn func(engine *ledger.Engine, owner string) error) subcommands.ExitStatus {
	engine, closeFn, err := e.Open(ctx)
	if err != nil {
		fmt.Fprintf(e.Out, "open ledger: %v\n", err)
		return subcommands.ExitFailure
	}
	defer closeFn()

	if err := fn(engine, e.Owner()); err != nil {
		fmt.Fprintf(e.Out, "error: %v\n", err)
		if reason := ledger.Reason(err); reason != "internal" {
			fmt.Fprintf(e.Out, "reason: %s\n", reason)
		}
		return subcommands.ExitFailure
	}
	return subcommands.ExitSuccess
}

// parseAmount reads an amount argument as decimal STX, or as microSTX when minor is set.
func parseAmount(arg string, minor bool) (amount.Amount, error) {
	if !minor {
		return amount.ParseSTX(arg)
	}
	v, err := strconv.ParseInt(arg, 10, 64)
	if err != nil {
		return amount.Zero, fmt.Errorf("%w: %q", amount.ErrMalformed, arg)
	}
	return amount.New(v)
}

var errUsage = errors.New("wrong number of arguments")

func (e *Env) printResult(res ledger.Result) {
	fmt.Fprintf(e.Out, "seq %d %s %s\n", res.Seq, res.Operation.Kind, res.Status)
	if res.Duplicate {
		fmt.Fprintln(e.Out, "(already applied)")
	}
	for _, b := range res.Balances {
		fmt.Fprintf(e.Out, "  %-32s %s\n", b.Name, amount.Format(b.Balance))
	}
	fmt.Fprintf(e.Out, "  %-32s %s\n", "total", amount.Format(res.Total))
}
