// Package report builds the per-client views served by the API and the CLI:
// the in-progress cycle with its forecast, the full cycle history, and
// point-in-time summaries over the most recent cycles.
package report

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"

	"github.com/vnmchuo/datacap/internal/billing"
	"github.com/vnmchuo/datacap/internal/cycle"
	"github.com/vnmchuo/datacap/internal/forecast"
	"github.com/vnmchuo/datacap/internal/usage"
	"github.com/vnmchuo/datacap/pkg/metrics"
)

// DefaultUpgradeThreshold is the fraction of the cap above which an upgrade
// is recommended.
const DefaultUpgradeThreshold = 0.8

const pointLabelLayout = "Jan 02"

var (
	ErrInvalidMode   = errors.New("invalid report mode")
	ErrInvalidCycles = errors.New("number of cycles must be positive")
)

type Mode string

const (
	ModeSummary Mode = "summary"
	ModeUpgrade Mode = "upgrade"
)

// ParseMode accepts "summary", "upgrade" and "upgrade-check". Empty means
// summary.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "summary":
		return ModeSummary, nil
	case "upgrade", "upgrade-check":
		return ModeUpgrade, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidMode, s)
}

// ChartView is a cycle rendered as parallel label/value arrays.
type ChartView struct {
	CycleLabel string    `json:"cycle_label"`
	Labels     []string  `json:"labels"`
	Data       []float64 `json:"data"`
}

type CurrentView struct {
	ChartView
	Forecast        float64 `json:"forecast"`
	TotalUsage      float64 `json:"total_usage"`
	CapGB           float64 `json:"cap_gb"`
	UsagePercentage float64 `json:"usage_percentage"`
}

type HistoricalCycle struct {
	ChartView
	TotalUsage float64 `json:"total_usage"`
}

type CycleSummary struct {
	CycleLabel string    `json:"cycle_label"`
	Start      time.Time `json:"start"`
	End        time.Time `json:"end"`
	TotalUsage float64   `json:"total_usage"`
}

type PointInTime struct {
	ClientID       int64          `json:"client_id"`
	ClientName     string         `json:"client_name"`
	Mode           Mode           `json:"mode"`
	CapGB          float64        `json:"cap_gb"`
	Cycles         []CycleSummary `json:"cycles"`
	TotalUsage     float64        `json:"total_usage"`
	AverageUsage   float64        `json:"average_usage"`
	Recommendation string         `json:"recommendation,omitempty"`
}

type ClientSummary struct {
	ID              int64   `json:"id"`
	Name            string  `json:"name"`
	CurrentUsage    float64 `json:"current_usage"`
	CapGB           float64 `json:"cap_gb"`
	UsagePercentage float64 `json:"usage_percentage"`
}

type Assembler struct {
	store     billing.Store
	agg       *usage.Aggregator
	walker    *usage.Walker
	engine    *forecast.Engine
	threshold float64
	now       func() time.Time
	tracer    trace.Tracer
	logger    *zap.Logger
}

type Option func(*Assembler)

func WithUpgradeThreshold(th float64) Option {
	return func(a *Assembler) { a.threshold = th }
}

func WithClock(now func() time.Time) Option {
	return func(a *Assembler) { a.now = now }
}

func WithTracer(t trace.Tracer) Option {
	return func(a *Assembler) { a.tracer = t }
}

func WithLogger(l *zap.Logger) Option {
	return func(a *Assembler) { a.logger = l }
}

func NewAssembler(store billing.Store, agg *usage.Aggregator, walker *usage.Walker, engine *forecast.Engine, opts ...Option) *Assembler {
	a := &Assembler{
		store:     store,
		agg:       agg,
		walker:    walker,
		engine:    engine,
		threshold: DefaultUpgradeThreshold,
		now:       time.Now,
		tracer:    noop.NewTracerProvider().Tracer("report"),
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Client returns the client or billing.ErrClientNotFound.
func (a *Assembler) Client(ctx context.Context, clientID int64) (*billing.Client, error) {
	return a.store.GetClient(ctx, clientID)
}

// CurrentCycleView is the in-progress cycle with its forecast.
func (a *Assembler) CurrentCycleView(ctx context.Context, clientID int64) (*CurrentView, error) {
	ctx, span := a.tracer.Start(ctx, "report.current_cycle")
	defer span.End()
	span.SetAttributes(attribute.Int64("client_id", clientID))
	metrics.ReportRequests.WithLabelValues("current").Inc()

	client, err := a.store.GetClient(ctx, clientID)
	if err != nil {
		return nil, err
	}

	c := cycle.Current(a.now())
	u, err := a.agg.CycleUsage(ctx, clientID, c)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	projected := a.engine.ForecastUsage(ctx, u)

	metrics.UpdateCycleMetrics(clientID, u.Total, projected, client.MonthlyLimitGB)
	return &CurrentView{
		ChartView:       chart(u),
		Forecast:        projected,
		TotalUsage:      u.Total,
		CapGB:           client.MonthlyLimitGB,
		UsagePercentage: usage.UsagePercentage(u.Total, client.MonthlyLimitGB),
	}, nil
}

// HistoricalView lists every cycle with usage, oldest first. A client without
// usage gets an empty, non-nil slice.
func (a *Assembler) HistoricalView(ctx context.Context, clientID int64) ([]HistoricalCycle, error) {
	ctx, span := a.tracer.Start(ctx, "report.historical")
	defer span.End()
	span.SetAttributes(attribute.Int64("client_id", clientID))
	metrics.ReportRequests.WithLabelValues("historical").Inc()

	if _, err := a.store.GetClient(ctx, clientID); err != nil {
		return nil, err
	}

	out := []HistoricalCycle{}
	for u, err := range a.walker.Forward(ctx, clientID) {
		if err != nil {
			span.RecordError(err)
			return nil, err
		}
		out = append(out, HistoricalCycle{ChartView: chart(&u), TotalUsage: u.Total})
	}
	span.SetAttributes(attribute.Int("cycles", len(out)))
	return out, nil
}

// PointInTimeReport summarises the numCycles most recent cycles, current
// first. Empty cycles count as zero towards the average.
func (a *Assembler) PointInTimeReport(ctx context.Context, clientID int64, numCycles int, mode Mode) (*PointInTime, error) {
	ctx, span := a.tracer.Start(ctx, "report.point_in_time")
	defer span.End()
	span.SetAttributes(
		attribute.Int64("client_id", clientID),
		attribute.Int("cycles", numCycles),
		attribute.String("mode", string(mode)),
	)
	metrics.ReportRequests.WithLabelValues("point_in_time").Inc()

	if numCycles <= 0 {
		return nil, fmt.Errorf("%w, got %d", ErrInvalidCycles, numCycles)
	}
	if mode != ModeSummary && mode != ModeUpgrade {
		return nil, fmt.Errorf("%w: %q", ErrInvalidMode, mode)
	}

	client, err := a.store.GetClient(ctx, clientID)
	if err != nil {
		return nil, err
	}

	recent, err := a.walker.Recent(ctx, clientID, numCycles)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	r := &PointInTime{
		ClientID:   client.ID,
		ClientName: client.Name,
		Mode:       mode,
		CapGB:      client.MonthlyLimitGB,
		Cycles:     make([]CycleSummary, 0, len(recent)),
	}
	for _, u := range recent {
		r.Cycles = append(r.Cycles, CycleSummary{
			CycleLabel: u.Cycle.Label(),
			Start:      u.Cycle.Start,
			End:        u.Cycle.End,
			TotalUsage: u.Total,
		})
		r.TotalUsage += u.Total
	}
	r.AverageUsage = r.TotalUsage / float64(numCycles)

	if mode == ModeUpgrade && r.AverageUsage > a.threshold*client.MonthlyLimitGB {
		r.Recommendation = fmt.Sprintf(
			"Average usage of %.2f GB over the last %d cycles exceeds %.0f%% of the %.2f GB cap. Consider upgrading to a larger plan.",
			r.AverageUsage, numCycles, a.threshold*100, client.MonthlyLimitGB,
		)
		a.logger.Info("upgrade recommended",
			zap.Int64("client_id", clientID),
			zap.Float64("average_gb", r.AverageUsage),
			zap.Float64("cap_gb", client.MonthlyLimitGB),
		)
	}
	return r, nil
}

// ClientSummaries is the dashboard list: every client with its current-cycle
// usage, rounded to two decimals.
func (a *Assembler) ClientSummaries(ctx context.Context) ([]ClientSummary, error) {
	ctx, span := a.tracer.Start(ctx, "report.client_summaries")
	defer span.End()

	clients, err := a.store.ListClients(ctx)
	if err != nil {
		return nil, err
	}
	c := cycle.Current(a.now())

	out := make([]ClientSummary, 0, len(clients))
	for _, client := range clients {
		total, err := a.agg.TotalUsage(ctx, client.ID, c.Start, c.End)
		if err != nil {
			return nil, err
		}
		out = append(out, ClientSummary{
			ID:              client.ID,
			Name:            client.Name,
			CurrentUsage:    round2(total),
			CapGB:           client.MonthlyLimitGB,
			UsagePercentage: round2(usage.UsagePercentage(total, client.MonthlyLimitGB)),
		})
	}
	return out, nil
}

func chart(u *usage.CycleUsage) ChartView {
	v := ChartView{
		CycleLabel: u.Cycle.Label(),
		Labels:     make([]string, 0, len(u.Points)),
		Data:       make([]float64, 0, len(u.Points)),
	}
	for _, p := range u.Points {
		v.Labels = append(v.Labels, p.Date.Format(pointLabelLayout))
		v.Data = append(v.Data, p.UsageGB)
	}
	return v
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
