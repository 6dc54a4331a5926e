// Package usage sums and lists stored usage over date ranges and walks a
// client's history one billing cycle at a time.
package usage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/vnmchuo/datacap/internal/billing"
	"github.com/vnmchuo/datacap/internal/cycle"
)

// Bounds used when a caller wants a client's whole history.
var (
	MinDate = cycle.Date(1900, time.January, 1)
	MaxDate = cycle.Date(9999, time.December, 31)
)

// Point is one stored usage entry. Same-day entries are kept apart.
type Point struct {
	Date    time.Time `json:"date"`
	UsageGB float64   `json:"usage_gb"`
}

// CycleUsage bundles the series and total of one cycle for one client.
type CycleUsage struct {
	ClientID int64       `json:"client_id"`
	Cycle    cycle.Cycle `json:"cycle"`
	Points   []Point     `json:"points"`
	Total    float64     `json:"total"`
}

// MarshalBinary implements encoding.BinaryMarshaler for Redis
func (u *CycleUsage) MarshalBinary() ([]byte, error) {
	return json.Marshal(u)
}

// UnmarshalBinary implements encoding.BinaryUnmarshaler for Redis
func (u *CycleUsage) UnmarshalBinary(data []byte) error {
	return json.Unmarshal(data, u)
}

// Cache stores computed cycles keyed by (client, cycle start).
type Cache interface {
	Get(ctx context.Context, clientID int64, c cycle.Cycle) (*CycleUsage, bool, error)
	Put(ctx context.Context, u *CycleUsage) error
}

type Aggregator struct {
	store  billing.Store
	cache  Cache
	logger *zap.Logger
}

type Option func(*Aggregator)

func WithCache(c Cache) Option {
	return func(a *Aggregator) { a.cache = c }
}

func WithLogger(l *zap.Logger) Option {
	return func(a *Aggregator) { a.logger = l }
}

func NewAggregator(store billing.Store, opts ...Option) *Aggregator {
	a := &Aggregator{store: store, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// TotalUsage sums usage over the inclusive range [start, end]; 0 when empty.
func (a *Aggregator) TotalUsage(ctx context.Context, clientID int64, start, end time.Time) (float64, error) {
	total, err := a.store.GetTotalUsage(ctx, clientID, cycle.Truncate(start), cycle.Truncate(end))
	if err != nil {
		return 0, fmt.Errorf("failed to total usage: %w", err)
	}
	return total, nil
}

// Series lists usage over [start, end] ascending by date. Duplicate dates are
// returned as separate points in storage order.
func (a *Aggregator) Series(ctx context.Context, clientID int64, start, end time.Time) ([]Point, error) {
	records, err := a.store.GetUsageRecords(ctx, clientID, cycle.Truncate(start), cycle.Truncate(end))
	if err != nil {
		return nil, fmt.Errorf("failed to load usage series: %w", err)
	}
	points := make([]Point, 0, len(records))
	for _, r := range records {
		points = append(points, Point{Date: cycle.Truncate(r.Date), UsageGB: r.UsageGB})
	}
	return points, nil
}

// History is the series over every stored date.
func (a *Aggregator) History(ctx context.Context, clientID int64) ([]Point, error) {
	return a.Series(ctx, clientID, MinDate, MaxDate)
}

// CycleUsage returns series and total for one cycle, via the cache when set.
// Cache failures fall back to the store.
func (a *Aggregator) CycleUsage(ctx context.Context, clientID int64, c cycle.Cycle) (*CycleUsage, error) {
	if a.cache != nil {
		cached, ok, err := a.cache.Get(ctx, clientID, c)
		if err != nil {
			a.logger.Warn("cycle cache read failed", zap.Int64("client_id", clientID), zap.String("cycle", c.Key()), zap.Error(err))
		} else if ok {
			return cached, nil
		}
	}

	points, err := a.Series(ctx, clientID, c.Start, c.End)
	if err != nil {
		return nil, err
	}
	u := &CycleUsage{ClientID: clientID, Cycle: c, Points: points, Total: Sum(points)}

	if a.cache != nil {
		if err := a.cache.Put(ctx, u); err != nil {
			a.logger.Warn("cycle cache write failed", zap.Int64("client_id", clientID), zap.String("cycle", c.Key()), zap.Error(err))
		}
	}
	return u, nil
}

// EarliestUsageDate is the first stored date for the client; clientID 0 looks
// across every client.
func (a *Aggregator) EarliestUsageDate(ctx context.Context, clientID int64) (time.Time, bool, error) {
	d, ok, err := a.store.GetEarliestUsageDate(ctx, clientID)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("failed to find earliest usage: %w", err)
	}
	if !ok {
		return time.Time{}, false, nil
	}
	return cycle.Truncate(d), true, nil
}

// Sum adds up the usage of every point.
func Sum(points []Point) float64 {
	var total float64
	for _, p := range points {
		total += p.UsageGB
	}
	return total
}

// UsagePercentage is total as a percentage of capGB, 0 for a non-positive cap.
func UsagePercentage(total, capGB float64) float64 {
	if capGB <= 0 {
		return 0
	}
	return total / capGB * 100
}
