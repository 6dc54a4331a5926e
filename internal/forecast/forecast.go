// Package forecast projects a client's end-of-cycle usage from the cumulative
// usage observed so far in the cycle.
package forecast

import (
	"context"
	"math"
	"slices"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/vnmchuo/datacap/internal/cycle"
	"github.com/vnmchuo/datacap/internal/usage"
)

// Sample is one (x, y) observation for the line fit.
type Sample struct {
	X float64
	Y float64
}

// FitLine fits y = slope*x + intercept by ordinary least squares. ok is false
// when the x values do not vary.
func FitLine(samples []Sample) (slope, intercept float64, ok bool) {
	n := float64(len(samples))
	if n < 2 {
		return 0, 0, false
	}
	var sumX, sumY float64
	for _, s := range samples {
		sumX += s.X
		sumY += s.Y
	}
	meanX, meanY := sumX/n, sumY/n

	var sxx, sxy float64
	for _, s := range samples {
		dx := s.X - meanX
		sxx += dx * dx
		sxy += dx * (s.Y - meanY)
	}
	if sxx == 0 {
		return 0, 0, false
	}
	slope = sxy / sxx
	return slope, meanY - slope*meanX, true
}

// Cumulative merges same-day points and returns (day offset, running total)
// pairs in day order. Points outside c are ignored.
func Cumulative(c cycle.Cycle, points []usage.Point) []Sample {
	byDay := make(map[int]float64)
	var days []int
	for _, p := range points {
		if !c.Contains(p.Date) {
			continue
		}
		off := c.DayOffset(p.Date)
		if _, seen := byDay[off]; !seen {
			days = append(days, off)
		}
		byDay[off] += p.UsageGB
	}
	slices.Sort(days)

	samples := make([]Sample, 0, len(days))
	var running float64
	for _, d := range days {
		running += byDay[d]
		samples = append(samples, Sample{X: float64(d), Y: running})
	}
	return samples
}

// Project estimates total usage at the last day of c. The result is never
// below the usage already recorded and never negative.
func Project(c cycle.Cycle, points []usage.Point) float64 {
	samples := Cumulative(c, points)
	if len(samples) == 0 {
		return 0
	}
	last := samples[len(samples)-1].Y
	if len(samples) < 2 {
		return last
	}

	slope, intercept, ok := FitLine(samples)
	if !ok {
		return last
	}
	predicted := slope*float64(c.Days()) + intercept
	if math.IsNaN(predicted) || math.IsInf(predicted, 0) {
		return last
	}
	return math.Max(predicted, last)
}

type Engine struct {
	agg    *usage.Aggregator
	now    func() time.Time
	tracer trace.Tracer
}

type Option func(*Engine)

func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

func WithTracer(t trace.Tracer) Option {
	return func(e *Engine) { e.tracer = t }
}

func NewEngine(agg *usage.Aggregator, opts ...Option) *Engine {
	e := &Engine{
		agg:    agg,
		now:    time.Now,
		tracer: noop.NewTracerProvider().Tracer("forecast"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Forecast projects the client's usage at the end of the current cycle.
func (e *Engine) Forecast(ctx context.Context, clientID int64) (float64, error) {
	ctx, span := e.tracer.Start(ctx, "forecast.current_cycle")
	defer span.End()

	c := cycle.Current(e.now())
	u, err := e.agg.CycleUsage(ctx, clientID, c)
	if err != nil {
		span.RecordError(err)
		return 0, err
	}
	return e.project(span, u), nil
}

// ForecastUsage projects a cycle the caller has already read, so a view and
// its forecast always describe the same cycle.
func (e *Engine) ForecastUsage(ctx context.Context, u *usage.CycleUsage) float64 {
	_, span := e.tracer.Start(ctx, "forecast.cycle")
	defer span.End()
	return e.project(span, u)
}

func (e *Engine) project(span trace.Span, u *usage.CycleUsage) float64 {
	projected := Project(u.Cycle, u.Points)
	span.SetAttributes(
		attribute.Int64("client_id", u.ClientID),
		attribute.String("cycle", u.Cycle.Key()),
		attribute.Float64("forecast_gb", projected),
	)
	return projected
}
