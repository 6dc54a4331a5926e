// Package ingest loads usage exports into the store. A wide sheet (Date plus
// one column per client) is reshaped to one record per client and day and
// swapped in for everything stored before.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/vnmchuo/datacap/internal/billing"
	"github.com/vnmchuo/datacap/pkg/metrics"
)

// Options selects the inputs of one run.
type Options struct {
	UsagePath string
	// CapsPath is optional.
	CapsPath string
	// Records dated before Since are skipped. Zero keeps everything.
	Since time.Time
}

type Summary struct {
	RunID          string
	RowsAccepted   int
	RowsDropped    int
	RowsFiltered   int
	BlankCells     int
	ClientsCreated int
	Errors         []RowError
	StartedAt      time.Time
	FinishedAt     time.Time
}

// Flusher drops derived data that a reload makes stale.
type Flusher interface {
	Flush(ctx context.Context) error
}

type Importer struct {
	store        billing.Store
	runs         billing.RunLog
	flusher      Flusher
	defaultCapGB float64
	now          func() time.Time
	logger       *zap.Logger
}

type Option func(*Importer)

func WithFlusher(f Flusher) Option {
	return func(im *Importer) { im.flusher = f }
}

func WithDefaultCap(gb float64) Option {
	return func(im *Importer) { im.defaultCapGB = gb }
}

func WithClock(now func() time.Time) Option {
	return func(im *Importer) { im.now = now }
}

func WithLogger(l *zap.Logger) Option {
	return func(im *Importer) { im.logger = l }
}

func NewImporter(store billing.Store, runs billing.RunLog, opts ...Option) *Importer {
	im := &Importer{
		store:        store,
		runs:         runs,
		defaultCapGB: billing.DefaultCapGB,
		now:          time.Now,
		logger:       zap.NewNop(),
	}
	for _, opt := range opts {
		opt(im)
	}
	return im
}

// Run parses every input, then replaces all stored clients and usage in one
// step. Nothing stored is touched if parsing fails or yields no records.
func (im *Importer) Run(ctx context.Context, opts Options) (*Summary, error) {
	run := &billing.IngestRun{
		ID:        uuid.New().String(),
		Source:    opts.UsagePath,
		Status:    billing.RunStatusRunning,
		StartedAt: im.now(),
	}
	log := im.logger.With(zap.String("run_id", run.ID), zap.String("source", opts.UsagePath))
	im.saveRun(ctx, run, log)

	summary, err := im.load(ctx, opts, log)
	if summary != nil {
		summary.RunID = run.ID
		summary.StartedAt = run.StartedAt
		run.RowsAccepted = summary.RowsAccepted
		run.RowsDropped = summary.RowsDropped
		run.ClientsCreated = summary.ClientsCreated
	}
	run.FinishedAt = im.now()
	if err != nil {
		run.Status = billing.RunStatusFailed
		run.Error = err.Error()
		im.saveRun(ctx, run, log)
		log.Error("ingest failed", zap.Error(err))
		return summary, err
	}
	run.Status = billing.RunStatusDone
	summary.FinishedAt = run.FinishedAt
	im.saveRun(ctx, run, log)

	metrics.RecordIngest(summary.RowsAccepted, summary.RowsDropped)
	log.Info("ingest complete",
		zap.Int("accepted", summary.RowsAccepted),
		zap.Int("dropped", summary.RowsDropped),
		zap.Int("filtered", summary.RowsFiltered),
		zap.Int("clients", summary.ClientsCreated),
	)
	return summary, nil
}

func (im *Importer) load(ctx context.Context, opts Options, log *zap.Logger) (*Summary, error) {
	wide, err := parseFile(opts.UsagePath, func(f *os.File) (*WideResult, error) {
		return ParseWide(f, im.now())
	})
	if err != nil {
		return nil, err
	}

	summary := &Summary{BlankCells: wide.Blank, Errors: wide.Errors}

	caps := map[string]float64{}
	if opts.CapsPath != "" {
		type capsResult struct {
			caps map[string]float64
			errs []RowError
		}
		res, err := parseFile(opts.CapsPath, func(f *os.File) (*capsResult, error) {
			c, errs, err := ParseCaps(f)
			if err != nil {
				return nil, err
			}
			return &capsResult{caps: c, errs: errs}, nil
		})
		if err != nil {
			return nil, err
		}
		caps = res.caps
		summary.Errors = append(summary.Errors, res.errs...)
	}

	for _, e := range summary.Errors {
		log.Warn("row dropped",
			zap.Int("row", e.Row),
			zap.String("column", e.Column),
			zap.String("code", e.Code),
			zap.String("value", e.Value),
			zap.String("reason", e.Message),
		)
	}
	summary.RowsDropped = len(summary.Errors)

	records := make([]billing.ImportRecord, 0, len(wide.Records))
	for _, r := range wide.Records {
		if !opts.Since.IsZero() && r.Date.Before(opts.Since) {
			summary.RowsFiltered++
			continue
		}
		records = append(records, r)
	}
	if len(records) == 0 {
		return summary, ErrNoRecords
	}

	// Only clients that keep at least one record are created.
	used := make(map[string]bool)
	for _, r := range records {
		used[r.ClientName] = true
	}
	var clients []*billing.Client
	for _, name := range wide.Clients {
		if !used[name] {
			continue
		}
		capGB, ok := caps[name]
		if !ok {
			capGB = im.defaultCapGB
		}
		clients = append(clients, &billing.Client{Name: name, MonthlyLimitGB: capGB})
	}
	for name := range caps {
		if !used[name] {
			log.Warn("cap given for client without usage", zap.String("client", name))
		}
	}

	if err := im.store.ReplaceAll(ctx, clients, records); err != nil {
		return summary, fmt.Errorf("failed to replace stored usage: %w", err)
	}
	summary.RowsAccepted = len(records)
	summary.ClientsCreated = len(clients)

	if im.flusher != nil {
		if err := im.flusher.Flush(ctx); err != nil {
			log.Warn("failed to flush cycle cache", zap.Error(err))
		}
	}
	return summary, nil
}

func (im *Importer) saveRun(ctx context.Context, run *billing.IngestRun, log *zap.Logger) {
	if im.runs == nil {
		return
	}
	if err := im.runs.SaveIngestRun(ctx, run); err != nil {
		log.Warn("failed to record ingest run", zap.Error(err))
	}
}

func parseFile[T any](path string, parse func(*os.File) (T, error)) (T, error) {
	var zero T
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return zero, fmt.Errorf("%w: %s", ErrMissingInput, path)
		}
		return zero, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	v, err := parse(f)
	if err != nil {
		return zero, fmt.Errorf("%s: %w", path, err)
	}
	return v, nil
}
