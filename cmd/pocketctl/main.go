package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path"

	"github.com/google/subcommands"

	"github.com/congo-pay/pockets/internal/cli"
	"github.com/congo-pay/pockets/internal/config"
	"github.com/congo-pay/pockets/internal/infra"
	"github.com/congo-pay/pockets/internal/ledger"
	"github.com/congo-pay/pockets/internal/logging"
)

var owner = flag.String("owner", os.Getenv("POCKETS_OWNER"), "owner wallet address the command acts on")

func main() {
	commander := subcommands.NewCommander(flag.CommandLine, path.Base(os.Args[0]))
	commander.Register(commander.HelpCommand(), "")
	commander.Register(commander.FlagsCommand(), "")
	commander.Register(commander.CommandsCommand(), "")

	cli.Register(commander, &cli.Env{
		Out:    os.Stdout,
		Owner:  func() string { return *owner },
		Open:   open,
		Secret: secret,
	})

	flag.Parse()
	os.Exit(int(commander.Execute(context.Background())))
}

// open connects to the configured backend. The engine rebuilds the owner from
// the log on first use.
func open(ctx context.Context) (*ledger.Engine, func(), error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	logger := logging.NewWithWriter(cfg.LogLevel, os.Stderr)

	res, err := infra.Open(ctx, cfg, logger)
	if err != nil {
		return nil, nil, err
	}
	engine := ledger.NewEngine(res.Backend,
		ledger.WithLogger(logger),
		ledger.WithStoreTimeout(cfg.StoreTimeout),
		ledger.WithReplayConcurrency(cfg.ReplayConcurrency),
	)
	return engine, func() { res.Close(logger) }, nil
}

func secret() ([]byte, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return []byte(cfg.JWTSecret), nil
}
