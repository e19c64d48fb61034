package infra

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/congo-pay/pockets/internal/config"
	"github.com/congo-pay/pockets/internal/storage"
)

// Resources are the external connections shared by the API and the CLI.
type Resources struct {
	DB      *pgxpool.Pool
	Cache   *redis.Client
	Backend storage.Backend
}

// Open connects to whatever the configuration names and selects the ledger
// backend. Redis is connected whenever REDIS_URL is set, since the HTTP
// middleware uses it even when the ledger lives elsewhere.
func Open(ctx context.Context, cfg config.Config, logger *slog.Logger) (*Resources, error) {
	res := &Resources{}
	var err error

	if cfg.DatabaseURL != "" {
		if res.DB, err = connectPostgres(ctx, cfg); err != nil {
			return nil, err
		}
	}
	if cfg.RedisURL != "" {
		if res.Cache, err = connectRedis(ctx, cfg); err != nil {
			res.Close(logger)
			return nil, err
		}
	}

	switch cfg.StoreBackend {
	case config.BackendPostgres:
		pg := storage.NewPostgres(res.DB)
		if err := pg.EnsureSchema(ctx); err != nil {
			res.Close(logger)
			return nil, fmt.Errorf("ensure ledger schema: %w", err)
		}
		res.Backend = pg
	case config.BackendRedis:
		res.Backend = storage.NewRedis(res.Cache)
	default:
		logger.Warn("using in-memory ledger backend; balances are lost on restart")
		res.Backend = storage.NewMemory()
	}
	return res, nil
}

// Close releases every connection.
func (r *Resources) Close(logger *slog.Logger) {
	if r.Cache != nil {
		if err := r.Cache.Close(); err != nil {
			logger.Warn("close redis", slog.Any("error", err))
		}
	}
	if r.DB != nil {
		r.DB.Close()
	}
}

// connectPostgres opens the pool. Replay holds one connection per owner being
// rebuilt, so the pool is never smaller than the replay concurrency.
func connectPostgres(ctx context.Context, cfg config.Config) (*pgxpool.Pool, error) {
	pcfg, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse postgres config: %w", err)
	}
	if pcfg.MaxConns < int32(cfg.ReplayConcurrency) {
		pcfg.MaxConns = int32(cfg.ReplayConcurrency)
	}
	pcfg.ConnConfig.ConnectTimeout = cfg.StoreTimeout
	pcfg.ConnConfig.RuntimeParams["application_name"] = cfg.AppName

	pool, err := pgxpool.NewWithConfig(ctx, pcfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := ping(ctx, cfg.StoreTimeout, pool.Ping); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return pool, nil
}

// connectRedis opens the client with read and write deadlines matching the
// ledger store timeout.
func connectRedis(ctx context.Context, cfg config.Config) (*redis.Client, error) {
	opt, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	opt.ClientName = cfg.AppName
	opt.DialTimeout = cfg.StoreTimeout
	opt.ReadTimeout = cfg.StoreTimeout
	opt.WriteTimeout = cfg.StoreTimeout

	client := redis.NewClient(opt)
	err = ping(ctx, cfg.StoreTimeout, func(ctx context.Context) error {
		return client.Ping(ctx).Err()
	})
	if err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}

func ping(ctx context.Context, timeout time.Duration, fn func(context.Context) error) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return fn(ctx)
}
