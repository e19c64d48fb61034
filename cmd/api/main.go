package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/congo-pay/pockets/internal/config"
	"github.com/congo-pay/pockets/internal/infra"
	"github.com/congo-pay/pockets/internal/ledger"
	"github.com/congo-pay/pockets/internal/logging"
	"github.com/congo-pay/pockets/internal/metrics"
	"github.com/congo-pay/pockets/internal/routes"
	"github.com/congo-pay/pockets/internal/server"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	logger := logging.New(cfg.LogLevel)

	ctx := context.Background()

	res, err := infra.Open(ctx, cfg, logger)
	if err != nil {
		logger.Error("open resources", "error", err)
		os.Exit(1)
	}
	defer res.Close(logger)

	engine := ledger.NewEngine(res.Backend,
		ledger.WithLogger(logger),
		ledger.WithStoreTimeout(cfg.StoreTimeout),
		ledger.WithRecorder(metrics.New(prometheus.DefaultRegisterer)),
		ledger.WithReplayConcurrency(cfg.ReplayConcurrency),
	)

	// Rebuild every owner from the log before accepting traffic.
	recovered, err := engine.ReplayAll(ctx)
	if err != nil {
		logger.Error("replay ledger", "error", err)
		os.Exit(1)
	}
	logger.Info("ledger replayed", "owners", len(recovered), "backend", cfg.StoreBackend)

	srv, err := server.New(routes.Deps{
		Cfg:    cfg,
		DB:     res.DB,
		Cache:  res.Cache,
		Logger: logger,
		Engine: engine,
	})
	if err != nil {
		logger.Error("build server", "error", err)
		os.Exit(1)
	}

	srvErrCh := make(chan error, 1)
	go func() {
		srvErrCh <- srv.Listen()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info("shutdown signal received", "signal", sig.String())
	case err := <-srvErrCh:
		if err != nil {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
		return
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownPeriod)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
		os.Exit(1)
	}

	logger.Info("server exited cleanly")
}
