package billing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
)

const uniqueViolation = "23505"

type DB interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Begin(ctx context.Context) (pgx.Tx, error)
}

type PostgresStore struct {
	db DB
}

func NewPostgresStore(db DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Migrate creates the schema if it does not exist yet.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetClient(ctx context.Context, id int64) (*Client, error) {
	query := `SELECT id, name, monthly_limit_gb FROM clients WHERE id = $1`

	var c Client
	err := s.db.QueryRow(ctx, query, id).Scan(&c.ID, &c.Name, &c.MonthlyLimitGB)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrClientNotFound
		}
		return nil, fmt.Errorf("failed to get client: %w", err)
	}
	return &c, nil
}

func (s *PostgresStore) GetClientByName(ctx context.Context, name string) (*Client, error) {
	query := `SELECT id, name, monthly_limit_gb FROM clients WHERE name = $1`

	var c Client
	err := s.db.QueryRow(ctx, query, name).Scan(&c.ID, &c.Name, &c.MonthlyLimitGB)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrClientNotFound
		}
		return nil, fmt.Errorf("failed to get client by name: %w", err)
	}
	return &c, nil
}

func (s *PostgresStore) ListClients(ctx context.Context) ([]*Client, error) {
	rows, err := s.db.Query(ctx, `SELECT id, name, monthly_limit_gb FROM clients ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query clients: %w", err)
	}
	defer rows.Close()

	var clients []*Client
	for rows.Next() {
		var c Client
		if err := rows.Scan(&c.ID, &c.Name, &c.MonthlyLimitGB); err != nil {
			return nil, fmt.Errorf("failed to scan client: %w", err)
		}
		clients = append(clients, &c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating clients: %w", err)
	}
	return clients, nil
}

func (s *PostgresStore) GetUsageRecords(ctx context.Context, clientID int64, from, to time.Time) ([]*UsageRecord, error) {
	query := `
		SELECT id, client_id, date, usage_gb
		FROM data_usage
		WHERE client_id = $1 AND date BETWEEN $2 AND $3
		ORDER BY date ASC, id ASC
	`
	rows, err := s.db.Query(ctx, query, clientID, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to query usage records: %w", err)
	}
	defer rows.Close()

	var records []*UsageRecord
	for rows.Next() {
		var r UsageRecord
		if err := rows.Scan(&r.ID, &r.ClientID, &r.Date, &r.UsageGB); err != nil {
			return nil, fmt.Errorf("failed to scan usage record: %w", err)
		}
		records = append(records, &r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating usage records: %w", err)
	}
	return records, nil
}

func (s *PostgresStore) GetTotalUsage(ctx context.Context, clientID int64, from, to time.Time) (float64, error) {
	query := `
		SELECT COALESCE(SUM(usage_gb), 0)
		FROM data_usage
		WHERE client_id = $1 AND date BETWEEN $2 AND $3
	`
	var total float64
	if err := s.db.QueryRow(ctx, query, clientID, from, to).Scan(&total); err != nil {
		return 0, fmt.Errorf("failed to get total usage: %w", err)
	}
	return total, nil
}

func (s *PostgresStore) GetEarliestUsageDate(ctx context.Context, clientID int64) (time.Time, bool, error) {
	query := `SELECT MIN(date) FROM data_usage WHERE $1::bigint = 0 OR client_id = $1`

	var d pgtype.Date
	if err := s.db.QueryRow(ctx, query, clientID).Scan(&d); err != nil {
		return time.Time{}, false, fmt.Errorf("failed to get earliest usage date: %w", err)
	}
	if !d.Valid {
		return time.Time{}, false, nil
	}
	return d.Time, true, nil
}

func (s *PostgresStore) CreateClient(ctx context.Context, c *Client) error {
	if c.Name == "" {
		return ErrEmptyClientName
	}
	query := `
		INSERT INTO clients (name, monthly_limit_gb)
		VALUES ($1, $2)
		RETURNING id
	`
	err := s.db.QueryRow(ctx, query, c.Name, c.MonthlyLimitGB).Scan(&c.ID)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return fmt.Errorf("%w: %s", ErrClientExists, c.Name)
		}
		return fmt.Errorf("failed to create client: %w", err)
	}
	return nil
}

func (s *PostgresStore) SetClientCap(ctx context.Context, id int64, capGB float64) error {
	tag, err := s.db.Exec(ctx, `UPDATE clients SET monthly_limit_gb = $2 WHERE id = $1`, id, capGB)
	if err != nil {
		return fmt.Errorf("failed to update client cap: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrClientNotFound
	}
	return nil
}

func (s *PostgresStore) AddUsage(ctx context.Context, rec *UsageRecord) error {
	if !ValidUsage(rec.UsageGB) {
		return ErrInvalidUsage
	}
	if _, err := s.GetClient(ctx, rec.ClientID); err != nil {
		return err
	}
	query := `
		INSERT INTO data_usage (client_id, date, usage_gb)
		VALUES ($1, $2, $3)
		RETURNING id
	`
	if err := s.db.QueryRow(ctx, query, rec.ClientID, rec.Date, rec.UsageGB).Scan(&rec.ID); err != nil {
		return fmt.Errorf("failed to add usage: %w", err)
	}
	return nil
}

func (s *PostgresStore) ReplaceAll(ctx context.Context, clients []*Client, records []ImportRecord) error {
	if _, err := validateBatch(clients, records); err != nil {
		return err
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin reload: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `DELETE FROM data_usage`); err != nil {
		return fmt.Errorf("failed to clear usage: %w", err)
	}
	if _, err := tx.Exec(ctx, `DELETE FROM clients`); err != nil {
		return fmt.Errorf("failed to clear clients: %w", err)
	}

	ids := make(map[string]int64, len(clients))
	for _, c := range clients {
		err := tx.QueryRow(ctx,
			`INSERT INTO clients (name, monthly_limit_gb) VALUES ($1, $2) RETURNING id`,
			c.Name, c.MonthlyLimitGB,
		).Scan(&c.ID)
		if err != nil {
			return fmt.Errorf("failed to insert client %s: %w", c.Name, err)
		}
		ids[c.Name] = c.ID
	}

	rows := make([][]any, 0, len(records))
	for _, r := range records {
		rows = append(rows, []any{ids[r.ClientName], r.Date, r.UsageGB})
	}
	_, err = tx.CopyFrom(ctx,
		pgx.Identifier{"data_usage"},
		[]string{"client_id", "date", "usage_gb"},
		pgx.CopyFromRows(rows),
	)
	if err != nil {
		return fmt.Errorf("failed to load usage records: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit reload: %w", err)
	}
	return nil
}

func (s *PostgresStore) SaveIngestRun(ctx context.Context, run *IngestRun) error {
	query := `
		INSERT INTO ingest_runs (id, source, status, rows_accepted, rows_dropped, clients_created, error, started_at, finished_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status,
			rows_accepted = EXCLUDED.rows_accepted,
			rows_dropped = EXCLUDED.rows_dropped,
			clients_created = EXCLUDED.clients_created,
			error = EXCLUDED.error,
			finished_at = EXCLUDED.finished_at
	`
	var finished *time.Time
	if !run.FinishedAt.IsZero() {
		finished = &run.FinishedAt
	}
	_, err := s.db.Exec(ctx, query,
		run.ID, run.Source, string(run.Status), run.RowsAccepted, run.RowsDropped,
		run.ClientsCreated, run.Error, run.StartedAt, finished,
	)
	if err != nil {
		return fmt.Errorf("failed to save ingest run: %w", err)
	}
	return nil
}
