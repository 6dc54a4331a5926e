package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	extratelimit "github.com/vnmchuo/ratelimiter"
)

// Limiter is a thin wrapper around github.com/vnmchuo/ratelimiter that
// throttles report exports per client. A nil *Limiter allows everything.
type Limiter struct {
	store extratelimit.Limiter
}

func NewLimiter(rdb *redis.Client, exportsPerMinute int) *Limiter {
	store := extratelimit.NewRedisStore(rdb,
		extratelimit.WithLimit(exportsPerMinute),
		extratelimit.WithWindow(time.Minute),
	)
	return &Limiter{store: store}
}

func NewTestLimiter(store extratelimit.Limiter) *Limiter {
	return &Limiter{store: store}
}

func key(clientID int64) string {
	return fmt.Sprintf("ratelimit:export:client:%d", clientID)
}

// AllowExport consumes one export from the client's per-minute budget. The
// result carries the remaining budget; a nil *Limiter reports Allowed with a
// zero Limit.
func (l *Limiter) AllowExport(ctx context.Context, clientID int64) (*extratelimit.Result, error) {
	if l == nil {
		return &extratelimit.Result{Allowed: true}, nil
	}
	return l.store.Allow(ctx, key(clientID))
}
