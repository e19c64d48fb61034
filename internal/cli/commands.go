package cli

import (
	"context"
	"flag"
	"fmt"
	"strings"
	"time"

	"github.com/google/subcommands"

	"github.com/congo-pay/pockets/internal/amount"
	"github.com/congo-pay/pockets/internal/auth"
	"github.com/congo-pay/pockets/internal/ledger"
)

type createCmd struct {
	env       *Env
	requestID string
}

func (*createCmd) Name() string     { return "create" }
func (*createCmd) Synopsis() string { return "create an empty pocket" }
func (*createCmd) Usage() string {
	return `create [-request-id <id>] <name>
	Creates an empty pocket for the owner. Names are unique per owner, ignoring case.
`
}
func (c *createCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.requestID, "request-id", "", "idempotency key recorded with the operation")
}
func (c *createCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if f.NArg() != 1 {
		fmt.Fprintln(c.env.Out, errUsage)
		return subcommands.ExitUsageError
	}
	return c.env.submit(ctx, ledger.Create(f.Arg(0)).WithRequestID(c.requestID))
}

type deleteCmd struct {
	env       *Env
	requestID string
}

func (*deleteCmd) Name() string     { return "delete" }
func (*deleteCmd) Synopsis() string { return "delete an empty pocket" }
func (*deleteCmd) Usage() string {
	return `delete [-request-id <id>] <name>
	Deletes a pocket. Only pockets with a zero balance can be deleted.
`
}
func (c *deleteCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.requestID, "request-id", "", "idempotency key recorded with the operation")
}
func (c *deleteCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if f.NArg() != 1 {
		fmt.Fprintln(c.env.Out, errUsage)
		return subcommands.ExitUsageError
	}
	return c.env.submit(ctx, ledger.Delete(f.Arg(0)).WithRequestID(c.requestID))
}

// amountCmd holds the flags shared by the commands that carry an amount.
type amountCmd struct {
	env       *Env
	minor     bool
	requestID string
}

func (c *amountCmd) SetFlags(f *flag.FlagSet) {
	f.BoolVar(&c.minor, "minor", false, "read the amount as integer microSTX instead of decimal STX")
	f.StringVar(&c.requestID, "request-id", "", "idempotency key recorded with the operation")
}

func (c *amountCmd) run(ctx context.Context, f *flag.FlagSet, args int, build func(amt amount.Amount) ledger.Operation) subcommands.ExitStatus {
	if f.NArg() != args {
		fmt.Fprintln(c.env.Out, errUsage)
		return subcommands.ExitUsageError
	}
	amt, err := parseAmount(f.Arg(args-1), c.minor)
	if err != nil {
		fmt.Fprintf(c.env.Out, "amount: %v\n", err)
		return subcommands.ExitUsageError
	}
	return c.env.submit(ctx, build(amt).WithRequestID(c.requestID))
}

type depositCmd struct{ amountCmd }

func (*depositCmd) Name() string     { return "deposit" }
func (*depositCmd) Synopsis() string { return "credit external funds to a pocket" }
func (*depositCmd) Usage() string {
	return `deposit [-minor] [-request-id <id>] <pocket> <amount>
	Credits funds arriving from outside the owner's account. The amount is decimal STX
	(for example 1.5) unless -minor is given.
`
}
func (c *depositCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	return c.run(ctx, f, 2, func(amt amount.Amount) ledger.Operation {
		return ledger.Deposit(f.Arg(0), amt)
	})
}

type moveCmd struct{ amountCmd }

func (*moveCmd) Name() string     { return "move" }
func (*moveCmd) Synopsis() string { return "move funds between two pockets" }
func (*moveCmd) Usage() string {
	return `move [-minor] [-request-id <id>] <from> <to> <amount>
	Moves funds between two pockets of the same owner. The total does not change.
`
}
func (c *moveCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	return c.run(ctx, f, 3, func(amt amount.Amount) ledger.Operation {
		return ledger.Move(f.Arg(0), f.Arg(1), amt)
	})
}

type spendCmd struct {
	amountCmd
	destination string
}

func (*spendCmd) Name() string     { return "spend" }
func (*spendCmd) Synopsis() string { return "send funds from a pocket to an external destination" }
func (*spendCmd) Usage() string {
	return `spend [-minor] [-request-id <id>] -to <destination> <pocket> <amount>
	Debits a pocket and the owner total.
`
}
func (c *spendCmd) SetFlags(f *flag.FlagSet) {
	c.amountCmd.SetFlags(f)
	f.StringVar(&c.destination, "to", "", "external destination address")
}
func (c *spendCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	return c.run(ctx, f, 2, func(amt amount.Amount) ledger.Operation {
		return ledger.Spend(f.Arg(0), amt, c.destination)
	})
}

func (e *Env) submit(ctx context.Context, op ledger.Operation) subcommands.ExitStatus {
	return e.run(ctx, func(engine *ledger.Engine, owner string) error {
		res, err := engine.Submit(ctx, owner, op)
		if err != nil {
			return err
		}
		e.printResult(res)
		return nil
	})
}

type balanceCmd struct{ env *Env }

func (*balanceCmd) Name() string     { return "balance" }
func (*balanceCmd) Synopsis() string { return "print the balance of one pocket" }
func (*balanceCmd) Usage() string {
	return `balance <pocket>
`
}
func (*balanceCmd) SetFlags(*flag.FlagSet) {}
func (c *balanceCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if f.NArg() != 1 {
		fmt.Fprintln(c.env.Out, errUsage)
		return subcommands.ExitUsageError
	}
	return c.env.run(ctx, func(engine *ledger.Engine, owner string) error {
		bal, err := engine.QueryBalance(ctx, owner, f.Arg(0))
		if err != nil {
			return err
		}
		fmt.Fprintln(c.env.Out, amount.Format(bal))
		return nil
	})
}

type lsCmd struct {
	env   *Env
	minor bool
}

func (*lsCmd) Name() string     { return "ls" }
func (*lsCmd) Synopsis() string { return "list the owner's pockets" }
func (*lsCmd) Usage() string {
	return `ls [-minor]
	Lists pockets in creation order followed by the owner total.
`
}
func (c *lsCmd) SetFlags(f *flag.FlagSet) {
	f.BoolVar(&c.minor, "minor", false, "print balances in microSTX")
}
func (c *lsCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	return c.env.run(ctx, func(engine *ledger.Engine, owner string) error {
		l, err := engine.Snapshot(ctx, owner)
		if err != nil {
			return err
		}
		show := amount.Format
		if c.minor {
			show = amount.Amount.String
		}
		for _, p := range l.Pockets {
			fmt.Fprintf(c.env.Out, "%-32s %s\n", p.Name, show(p.Balance))
		}
		fmt.Fprintf(c.env.Out, "%-32s %s\n", "total", show(l.Total))
		return nil
	})
}

type logCmd struct {
	env  *Env
	tail int
}

func (*logCmd) Name() string     { return "log" }
func (*logCmd) Synopsis() string { return "print the owner's operation log" }
func (*logCmd) Usage() string {
	return `log [-n <count>]
	Prints the resolved log, one line per sequence number.
`
}
func (c *logCmd) SetFlags(f *flag.FlagSet) {
	f.IntVar(&c.tail, "n", 0, "only print the last n entries")
}
func (c *logCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	return c.env.run(ctx, func(engine *ledger.Engine, owner string) error {
		entries, err := engine.Log(ctx, owner)
		if err != nil {
			return err
		}
		if c.tail > 0 && len(entries) > c.tail {
			entries = entries[len(entries)-c.tail:]
		}
		for _, entry := range entries {
			fmt.Fprintln(c.env.Out, describe(entry))
		}
		return nil
	})
}

func describe(entry ledger.LogEntry) string {
	op := entry.Operation
	var b strings.Builder
	fmt.Fprintf(&b, "%4d %-9s %-8s %s", entry.Seq, entry.Status, op.Kind, op.Pocket)
	if op.To != "" {
		fmt.Fprintf(&b, " -> %s", op.To)
	}
	if !op.Amount.IsZero() {
		fmt.Fprintf(&b, " %s", amount.Format(op.Amount))
	}
	if op.Destination != "" {
		fmt.Fprintf(&b, " to %s", op.Destination)
	}
	if entry.Reason != "" {
		fmt.Fprintf(&b, " (%s)", entry.Reason)
	}
	return b.String()
}

type replayCmd struct {
	env *Env
	all bool
}

func (*replayCmd) Name() string     { return "replay" }
func (*replayCmd) Synopsis() string { return "rebuild balances from the log and repair stored records" }
func (*replayCmd) Usage() string {
	return `replay [-all]
	Replays the owner's log, or every owner's log with -all, resolving interrupted
	operations and rewriting balance records that disagree with the log.
`
}
func (c *replayCmd) SetFlags(f *flag.FlagSet) {
	f.BoolVar(&c.all, "all", false, "replay every owner")
}
func (c *replayCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	return c.env.run(ctx, func(engine *ledger.Engine, owner string) error {
		if !c.all {
			rep, err := engine.Replay(ctx, owner)
			if err != nil {
				return err
			}
			c.report(owner, rep)
			return nil
		}
		out, err := engine.ReplayAll(ctx)
		for o, rep := range out {
			c.report(o, rep)
		}
		return err
	})
}

func (c *replayCmd) report(owner string, rep ledger.Recovery) {
	fmt.Fprintf(c.env.Out, "%s: %d entries, %d dangling, %d repaired, total %s\n",
		owner, rep.Replayed, len(rep.Dangling), rep.Repaired, amount.Format(rep.Ledger.Total))
}

type tokenCmd struct {
	env *Env
	ttl time.Duration
}

func (*tokenCmd) Name() string     { return "token" }
func (*tokenCmd) Synopsis() string { return "issue an API token for the owner" }
func (*tokenCmd) Usage() string {
	return `token [-ttl <duration>]
	Signs a bearer token for the owner with JWT_SECRET.
`
}
func (c *tokenCmd) SetFlags(f *flag.FlagSet) {
	f.DurationVar(&c.ttl, "ttl", 24*time.Hour, "token lifetime")
}
func (c *tokenCmd) Execute(context.Context, *flag.FlagSet, ...interface{}) subcommands.ExitStatus {
	secret, err := c.env.Secret()
	if err != nil {
		fmt.Fprintf(c.env.Out, "error: %v\n", err)
		return subcommands.ExitFailure
	}
	token, err := auth.SignOwnerToken(c.env.Owner(), secret, c.ttl)
	if err != nil {
		fmt.Fprintf(c.env.Out, "error: %v\n", err)
		return subcommands.ExitFailure
	}
	fmt.Fprintln(c.env.Out, token)
	return subcommands.ExitSuccess
}
