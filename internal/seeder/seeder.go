package seeder

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/vnmchuo/datacap/internal/billing"
	"github.com/vnmchuo/datacap/internal/cycle"
)

const (
	DemoClientName = "Demo Client"
	DemoCapGB      = 1000.0
)

// SeedDemoClient creates a demo client with two full past cycles and the
// current cycle filled up to today. It is a no-op when the client exists.
func SeedDemoClient(ctx context.Context, store billing.Store, now time.Time, logger *zap.Logger) {
	if _, err := store.GetClientByName(ctx, DemoClientName); err == nil {
		logger.Info("[Seeder] demo client already exists, skipping")
		return
	} else if !errors.Is(err, billing.ErrClientNotFound) {
		logger.Warn("[Seeder] failed to look up demo client", zap.Error(err))
		return
	}

	client := &billing.Client{Name: DemoClientName, MonthlyLimitGB: DemoCapGB}
	if err := store.CreateClient(ctx, client); err != nil {
		logger.Warn("[Seeder] demo client may already exist, skipping", zap.Error(err))
		return
	}

	today := cycle.Today(now)
	current := cycle.Current(now)
	start := current.Prev().Prev().Start

	records := 0
	for d := start; !d.After(today); d = d.AddDate(0, 0, 1) {
		// weekday traffic is heavier than weekends
		gb := 22.5 + float64(d.Day()%7)
		if wd := d.Weekday(); wd == time.Saturday || wd == time.Sunday {
			gb = 9.0 + float64(d.Day()%3)
		}
		if err := store.AddUsage(ctx, &billing.UsageRecord{ClientID: client.ID, Date: d, UsageGB: gb}); err != nil {
			logger.Warn("[Seeder] failed to add usage", zap.Time("date", d), zap.Error(err))
			return
		}
		records++
	}

	logger.Info("[Seeder] demo client created",
		zap.Int64("client_id", client.ID),
		zap.String("name", client.Name),
		zap.Int("records", records),
	)
}
