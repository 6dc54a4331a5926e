// Package cache keeps computed billing cycles in Redis.
package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/vnmchuo/datacap/internal/cycle"
	"github.com/vnmchuo/datacap/internal/usage"
	"github.com/vnmchuo/datacap/pkg/metrics"
)

const keyPrefix = "usage:cycle:"

// CycleCache implements usage.Cache on Redis. Calls go through a circuit
// breaker so a failing Redis is skipped instead of slowing every request.
type CycleCache struct {
	rdb     *redis.Client
	ttl     time.Duration
	breaker *gobreaker.CircuitBreaker
	logger  *zap.Logger
}

func New(rdb *redis.Client, ttl time.Duration, logger *zap.Logger) *CycleCache {
	settings := gobreaker.Settings{
		Name:        "redis-cycle-cache",
		MaxRequests: 3,
		Interval:    5 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state change",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	}
	return &CycleCache{
		rdb:     rdb,
		ttl:     ttl,
		breaker: gobreaker.NewCircuitBreaker(settings),
		logger:  logger,
	}
}

// Key is the Redis key of one client's cycle.
func Key(clientID int64, c cycle.Cycle) string {
	return fmt.Sprintf("%s%d:%s", keyPrefix, clientID, c.Key())
}

func (c *CycleCache) Get(ctx context.Context, clientID int64, cyc cycle.Cycle) (*usage.CycleUsage, bool, error) {
	result, err := c.breaker.Execute(func() (interface{}, error) {
		var u usage.CycleUsage
		err := c.rdb.Get(ctx, Key(clientID, cyc)).Scan(&u)
		if errors.Is(err, redis.Nil) {
			// a miss is not a Redis failure
			return nil, nil
		}
		if err != nil {
			return nil, err
		}
		return &u, nil
	})
	if err != nil {
		metrics.CacheLookups.WithLabelValues("error").Inc()
		return nil, false, err
	}
	u, _ := result.(*usage.CycleUsage)
	if u == nil {
		metrics.CacheLookups.WithLabelValues("miss").Inc()
		return nil, false, nil
	}
	metrics.CacheLookups.WithLabelValues("hit").Inc()
	return u, true, nil
}

func (c *CycleCache) Put(ctx context.Context, u *usage.CycleUsage) error {
	_, err := c.breaker.Execute(func() (interface{}, error) {
		return nil, c.rdb.Set(ctx, Key(u.ClientID, u.Cycle), u, c.ttl).Err()
	})
	return err
}

// Invalidate drops the cached cycle that contains date.
func (c *CycleCache) Invalidate(ctx context.Context, clientID int64, date time.Time) error {
	key := Key(clientID, cycle.For(date))
	_, err := c.breaker.Execute(func() (interface{}, error) {
		return nil, c.rdb.Del(ctx, key).Err()
	})
	if err != nil {
		return fmt.Errorf("failed to invalidate %s: %w", key, err)
	}
	return nil
}

// Flush removes every cached cycle. Used after a bulk reload.
func (c *CycleCache) Flush(ctx context.Context) error {
	var cursor uint64
	removed := 0
	for {
		keys, next, err := c.rdb.Scan(ctx, cursor, keyPrefix+"*", 100).Result()
		if err != nil {
			return fmt.Errorf("failed to scan cache keys: %w", err)
		}
		if len(keys) > 0 {
			if err := c.rdb.Del(ctx, keys...).Err(); err != nil {
				return fmt.Errorf("failed to delete cache keys: %w", err)
			}
			removed += len(keys)
		}
		cursor = next
		if cursor == 0 {
			break
		}
	}
	c.logger.Info("cycle cache flushed", zap.Int("keys", removed))
	return nil
}

var _ usage.Cache = (*CycleCache)(nil)
