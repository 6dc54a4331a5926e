//go:build integration

package billing

import (
	"context"
	"errors"
	"os/exec"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

func dockerAvailable() bool {
	return exec.Command("docker", "info").Run() == nil
}

func setupPostgres(t *testing.T) *PostgresStore {
	t.Helper()
	if !dockerAvailable() {
		t.Skip("Docker is not available, skipping integration test")
	}
	ctx := context.Background()

	pgContainer, err := postgres.Run(ctx,
		"postgres:15-alpine",
		postgres.WithDatabase("datacap_test"),
		postgres.WithUsername("test"),
		postgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, pgContainer.Terminate(ctx))
	})

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	pool, err := pgxpool.New(ctx, connStr)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	store := NewPostgresStore(pool)
	require.NoError(t, store.Migrate(ctx))
	// idempotent
	require.NoError(t, store.Migrate(ctx))
	return store
}

func TestPostgresStore(t *testing.T) {
	store := setupPostgres(t)
	ctx := context.Background()

	t.Run("clients", func(t *testing.T) {
		c := &Client{Name: "acme", MonthlyLimitGB: 500}
		require.NoError(t, store.CreateClient(ctx, c))
		assert.NotZero(t, c.ID)

		err := store.CreateClient(ctx, &Client{Name: "acme", MonthlyLimitGB: 1})
		assert.ErrorIs(t, err, ErrClientExists)

		got, err := store.GetClientByName(ctx, "acme")
		require.NoError(t, err)
		assert.Equal(t, 500.0, got.MonthlyLimitGB)

		require.NoError(t, store.SetClientCap(ctx, c.ID, 800))
		got, err = store.GetClient(ctx, c.ID)
		require.NoError(t, err)
		assert.Equal(t, 800.0, got.MonthlyLimitGB)

		_, err = store.GetClient(ctx, 424242)
		assert.ErrorIs(t, err, ErrClientNotFound)
		assert.ErrorIs(t, store.SetClientCap(ctx, 424242, 1), ErrClientNotFound)
	})

	t.Run("usage", func(t *testing.T) {
		c, err := store.GetClientByName(ctx, "acme")
		require.NoError(t, err)

		for _, r := range []*UsageRecord{
			{ClientID: c.ID, Date: date(2025, 3, 15), UsageGB: 2},
			{ClientID: c.ID, Date: date(2025, 3, 13), UsageGB: 1},
			{ClientID: c.ID, Date: date(2025, 3, 15), UsageGB: 3},
			{ClientID: c.ID, Date: date(2025, 4, 13), UsageGB: 50},
		} {
			require.NoError(t, store.AddUsage(ctx, r))
		}

		records, err := store.GetUsageRecords(ctx, c.ID, date(2025, 3, 13), date(2025, 4, 12))
		require.NoError(t, err)
		require.Len(t, records, 3)
		assert.True(t, records[0].Date.Equal(date(2025, 3, 13)))
		assert.Equal(t, []float64{1, 2, 3}, []float64{records[0].UsageGB, records[1].UsageGB, records[2].UsageGB})

		total, err := store.GetTotalUsage(ctx, c.ID, date(2025, 3, 13), date(2025, 4, 12))
		require.NoError(t, err)
		assert.Equal(t, 6.0, total)

		total, err = store.GetTotalUsage(ctx, c.ID, date(2024, 1, 1), date(2024, 1, 31))
		require.NoError(t, err)
		assert.Equal(t, 0.0, total)

		earliest, ok, err := store.GetEarliestUsageDate(ctx, c.ID)
		require.NoError(t, err)
		require.True(t, ok)
		assert.True(t, earliest.Equal(date(2025, 3, 13)))

		_, ok, err = store.GetEarliestUsageDate(ctx, 424242)
		require.NoError(t, err)
		assert.False(t, ok)

		err = store.AddUsage(ctx, &UsageRecord{ClientID: 424242, Date: date(2025, 3, 1), UsageGB: 1})
		assert.ErrorIs(t, err, ErrClientNotFound)
	})

	t.Run("replace all", func(t *testing.T) {
		err := store.ReplaceAll(ctx, []*Client{{Name: "x"}}, []ImportRecord{{ClientName: "y", Date: date(2025, 3, 13), UsageGB: 1}})
		assert.True(t, errors.Is(err, ErrUnknownClient))
		_, err = store.GetClientByName(ctx, "acme")
		require.NoError(t, err, "invalid batch must not wipe existing data")

		clients := []*Client{{Name: "a", MonthlyLimitGB: 10}, {Name: "b", MonthlyLimitGB: 20}}
		records := []ImportRecord{
			{ClientName: "a", Date: date(2025, 3, 13), UsageGB: 1.5},
			{ClientName: "b", Date: date(2025, 3, 14), UsageGB: 2},
			{ClientName: "b", Date: date(2025, 3, 14), UsageGB: 3},
		}
		require.NoError(t, store.ReplaceAll(ctx, clients, records))

		all, err := store.ListClients(ctx)
		require.NoError(t, err)
		require.Len(t, all, 2)

		_, err = store.GetClientByName(ctx, "acme")
		assert.ErrorIs(t, err, ErrClientNotFound)

		total, err := store.GetTotalUsage(ctx, clients[1].ID, date(2025, 1, 1), date(2025, 12, 31))
		require.NoError(t, err)
		assert.Equal(t, 5.0, total)

		earliest, ok, err := store.GetEarliestUsageDate(ctx, 0)
		require.NoError(t, err)
		require.True(t, ok)
		assert.True(t, earliest.Equal(date(2025, 3, 13)))
	})

	t.Run("ingest runs", func(t *testing.T) {
		run := &IngestRun{
			ID:        "6f1c1f4e-3c2b-4d8e-9a57-0c4b2f7d9e11",
			Source:    "usage.csv",
			Status:    RunStatusRunning,
			StartedAt: time.Now(),
		}
		require.NoError(t, store.SaveIngestRun(ctx, run))
		run.Status = RunStatusDone
		run.RowsAccepted = 3
		run.FinishedAt = time.Now()
		require.NoError(t, store.SaveIngestRun(ctx, run))
	})
}
