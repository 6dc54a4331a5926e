package usage

import (
	"context"
	"fmt"
	"iter"
	"time"

	"github.com/vnmchuo/datacap/internal/cycle"
)

type WalkerConfig struct {
	// MaxLookbackYears bounds how far back Forward starts. 0 is unbounded.
	MaxLookbackYears int
	// Now defaults to time.Now.
	Now func() time.Time
}

type Walker struct {
	agg *Aggregator
	cfg WalkerConfig
}

func NewWalker(agg *Aggregator, cfg WalkerConfig) *Walker {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Walker{agg: agg, cfg: cfg}
}

// Forward yields every cycle that has usage, oldest first, from the client's
// earliest record up to the cycle containing today. Each call of the returned
// sequence starts over.
func (w *Walker) Forward(ctx context.Context, clientID int64) iter.Seq2[CycleUsage, error] {
	return func(yield func(CycleUsage, error) bool) {
		today := cycle.Today(w.cfg.Now())

		start, ok, err := w.agg.EarliestUsageDate(ctx, clientID)
		if err != nil {
			yield(CycleUsage{}, err)
			return
		}
		if !ok {
			return
		}
		if w.cfg.MaxLookbackYears > 0 {
			floor := cycle.For(today.AddDate(-w.cfg.MaxLookbackYears, 0, 0)).Start
			if start.Before(floor) {
				start = floor
			}
		}

		for c := cycle.For(start); !c.Start.After(today); c = c.Next() {
			if err := ctx.Err(); err != nil {
				yield(CycleUsage{}, err)
				return
			}
			u, err := w.agg.CycleUsage(ctx, clientID, c)
			if err != nil {
				yield(CycleUsage{}, err)
				return
			}
			if len(u.Points) == 0 {
				continue
			}
			if !yield(*u, nil) {
				return
			}
		}
	}
}

// Recent returns the n cycles ending with the current one, most recent first.
// Cycles without usage are included with a zero total.
func (w *Walker) Recent(ctx context.Context, clientID int64, n int) ([]CycleUsage, error) {
	if n <= 0 {
		return nil, fmt.Errorf("number of cycles must be positive, got %d", n)
	}
	out := make([]CycleUsage, 0, n)
	c := cycle.Current(w.cfg.Now())
	for i := 0; i < n; i++ {
		u, err := w.agg.CycleUsage(ctx, clientID, c)
		if err != nil {
			return nil, err
		}
		out = append(out, *u)
		c = c.Prev()
	}
	return out, nil
}
