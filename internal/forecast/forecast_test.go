package forecast

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vnmchuo/datacap/internal/billing"
	"github.com/vnmchuo/datacap/internal/cycle"
	"github.com/vnmchuo/datacap/internal/usage"
)

// Apr 13 - May 12 is 30 days long.
var thirtyDay = cycle.For(cycle.Date(2025, time.April, 20))

func day(n int) time.Time {
	return thirtyDay.Start.AddDate(0, 0, n-1)
}

func TestProject_Empty(t *testing.T) {
	assert.Equal(t, 0.0, Project(thirtyDay, nil))
}

func TestProject_SingleDay(t *testing.T) {
	points := []usage.Point{{Date: day(1), UsageGB: 10}}
	assert.Equal(t, 10.0, Project(thirtyDay, points))

	// Two records on the same day are one observation.
	points = []usage.Point{{Date: day(3), UsageGB: 4}, {Date: day(3), UsageGB: 6}}
	assert.Equal(t, 10.0, Project(thirtyDay, points))
}

func TestProject_LinearExtrapolation(t *testing.T) {
	require.Equal(t, 30, thirtyDay.Days())

	points := []usage.Point{
		{Date: day(1), UsageGB: 10},
		{Date: day(2), UsageGB: 10},
	}
	assert.InDelta(t, 300.0, Project(thirtyDay, points), 1e-9)
}

func TestProject_NeverBelowRecorded(t *testing.T) {
	// Heavy start then nothing: the fitted line can end below the running
	// total, which must win.
	points := []usage.Point{
		{Date: day(1), UsageGB: 100},
		{Date: day(20), UsageGB: 0},
		{Date: day(21), UsageGB: 0},
		{Date: day(22), UsageGB: 0},
	}
	got := Project(thirtyDay, points)
	assert.GreaterOrEqual(t, got, 100.0)
	assert.False(t, math.IsNaN(got) || math.IsInf(got, 0))
}

func TestProject_Monotonic(t *testing.T) {
	base := []usage.Point{
		{Date: day(1), UsageGB: 5},
		{Date: day(2), UsageGB: 7},
		{Date: day(4), UsageGB: 3},
	}
	before := Project(thirtyDay, base)

	more := append(append([]usage.Point{}, base...), usage.Point{Date: day(5), UsageGB: 12})
	after := Project(thirtyDay, more)

	assert.GreaterOrEqual(t, after, 5.0+7+3+12)
	assert.GreaterOrEqual(t, before, 15.0)
}

func TestProject_IgnoresPointsOutsideCycle(t *testing.T) {
	points := []usage.Point{
		{Date: thirtyDay.Start.AddDate(0, 0, -1), UsageGB: 1000},
		{Date: day(1), UsageGB: 10},
	}
	assert.Equal(t, 10.0, Project(thirtyDay, points))
}

func TestFitLine(t *testing.T) {
	slope, intercept, ok := FitLine([]Sample{{1, 3}, {2, 5}, {3, 7}})
	require.True(t, ok)
	assert.InDelta(t, 2.0, slope, 1e-9)
	assert.InDelta(t, 1.0, intercept, 1e-9)

	_, _, ok = FitLine([]Sample{{2, 3}, {2, 5}})
	assert.False(t, ok)

	_, _, ok = FitLine([]Sample{{1, 1}})
	assert.False(t, ok)
}

func TestCumulative(t *testing.T) {
	got := Cumulative(thirtyDay, []usage.Point{
		{Date: day(2), UsageGB: 1},
		{Date: day(1), UsageGB: 2},
		{Date: day(2), UsageGB: 3},
	})
	assert.Equal(t, []Sample{{1, 2}, {2, 6}}, got)
}

func TestEngine_Forecast(t *testing.T) {
	ctx := context.Background()
	store := billing.NewMemoryStore()
	c := &billing.Client{Name: "acme", MonthlyLimitGB: 500}
	require.NoError(t, store.CreateClient(ctx, c))
	require.NoError(t, store.AddUsage(ctx, &billing.UsageRecord{ClientID: c.ID, Date: day(1), UsageGB: 10}))
	require.NoError(t, store.AddUsage(ctx, &billing.UsageRecord{ClientID: c.ID, Date: day(2), UsageGB: 10}))
	// Previous cycle is not part of the projection.
	require.NoError(t, store.AddUsage(ctx, &billing.UsageRecord{ClientID: c.ID, Date: cycle.Date(2025, 4, 1), UsageGB: 999}))

	now := func() time.Time { return day(2).Add(9 * time.Hour) }
	engine := NewEngine(usage.NewAggregator(store), WithClock(now))

	got, err := engine.Forecast(ctx, c.ID)
	require.NoError(t, err)
	assert.InDelta(t, 300.0, got, 1e-9)

	empty, err := engine.Forecast(ctx, c.ID+100)
	require.NoError(t, err)
	assert.Equal(t, 0.0, empty)
}

func TestEngine_ForecastIsStable(t *testing.T) {
	ctx := context.Background()
	store := billing.NewMemoryStore()
	c := &billing.Client{Name: "acme", MonthlyLimitGB: 500}
	require.NoError(t, store.CreateClient(ctx, c))
	for i, gb := range []float64{4, 9, 1, 7} {
		require.NoError(t, store.AddUsage(ctx, &billing.UsageRecord{ClientID: c.ID, Date: day(i + 1), UsageGB: gb}))
	}

	agg := usage.NewAggregator(store)
	engine := NewEngine(agg, WithClock(func() time.Time { return day(5) }))

	first, err := engine.Forecast(ctx, c.ID)
	require.NoError(t, err)
	second, err := engine.Forecast(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, first, second)

	u, err := agg.CycleUsage(ctx, c.ID, thirtyDay)
	require.NoError(t, err)
	assert.Equal(t, first, engine.ForecastUsage(ctx, u))
	assert.Equal(t, Project(thirtyDay, u.Points), first)
}
