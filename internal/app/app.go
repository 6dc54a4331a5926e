// Package app connects the storage backends and builds the reporting
// pipeline shared by the server and the CLI.
package app

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"

	"github.com/vnmchuo/datacap/config"
	"github.com/vnmchuo/datacap/internal/billing"
	"github.com/vnmchuo/datacap/internal/cache"
	"github.com/vnmchuo/datacap/internal/forecast"
	"github.com/vnmchuo/datacap/internal/report"
	"github.com/vnmchuo/datacap/internal/usage"
	"github.com/vnmchuo/datacap/pkg/ratelimit"
)

const serviceName = "datacap"

type App struct {
	Store   billing.Backend
	Redis   *redis.Client
	Cache   *cache.CycleCache
	Limiter *ratelimit.Limiter
	Agg     *usage.Aggregator
	Reports *report.Assembler

	closers []func()
}

// New opens the store and, when REDIS_ADDR is set, Redis. Redis is optional:
// without it cycles are always recomputed and exports are not throttled.
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*App, error) {
	store, closeStore, err := billing.Open(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	a := &App{Store: store, closers: []func(){closeStore}}

	var aggOpts []usage.Option
	aggOpts = append(aggOpts, usage.WithLogger(logger))

	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		if err := rdb.Ping(ctx).Err(); err != nil {
			_ = rdb.Close()
			a.Close()
			return nil, fmt.Errorf("failed to ping redis: %w", err)
		}
		logger.Info("Redis connected", zap.String("addr", cfg.RedisAddr))
		a.closers = append(a.closers, func() { _ = rdb.Close() })

		a.Redis = rdb
		a.Cache = cache.New(rdb, cfg.CacheTTL, logger)
		// Memory stores restart their IDs at 1, so cycles cached by an earlier
		// process would be served for unrelated clients.
		if cfg.StoreDriver == config.StoreDriverMemory {
			if err := a.Cache.Flush(ctx); err != nil {
				logger.Warn("failed to flush cycle cache for memory store", zap.Error(err))
			}
		}
		if cfg.ExportRateLimitPerMin > 0 {
			a.Limiter = ratelimit.NewLimiter(rdb, cfg.ExportRateLimitPerMin)
		}
		aggOpts = append(aggOpts, usage.WithCache(a.Cache))
	} else {
		logger.Info("REDIS_ADDR not set, cycle cache and export rate limiting disabled")
	}

	tracer := otel.GetTracerProvider().Tracer(serviceName)

	a.Agg = usage.NewAggregator(store, aggOpts...)
	walker := usage.NewWalker(a.Agg, usage.WalkerConfig{MaxLookbackYears: cfg.MaxLookbackYears})
	engine := forecast.NewEngine(a.Agg, forecast.WithTracer(tracer))
	a.Reports = report.NewAssembler(store, a.Agg, walker, engine,
		report.WithUpgradeThreshold(cfg.UpgradeThreshold),
		report.WithTracer(tracer),
		report.WithLogger(logger),
	)
	return a, nil
}

// Close releases connections in reverse order of opening.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
