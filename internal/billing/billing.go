package billing

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"
)

var (
	ErrClientNotFound  = errors.New("client not found")
	ErrClientExists    = errors.New("client already exists")
	ErrInvalidUsage    = errors.New("usage must be a finite, non-negative number")
	ErrUnknownClient   = errors.New("record references a client that is not part of the batch")
	ErrEmptyClientName = errors.New("client name is required")
)

// DefaultCapGB is the cap assigned to clients created without an explicit one.
const DefaultCapGB = 1000.0

type Client struct {
	ID             int64   `json:"id"`
	Name           string  `json:"name"`
	MonthlyLimitGB float64 `json:"monthly_limit_gb"`
}

// UsageRecord is one day's usage for a client. Several records may share a
// date; they are summed, never overwritten.
type UsageRecord struct {
	ID       int64     `json:"id"`
	ClientID int64     `json:"client_id"`
	Date     time.Time `json:"date"`
	UsageGB  float64   `json:"usage_gb"`
}

// ImportRecord is a long-form row produced by bulk ingestion, keyed by client
// name because client ids do not exist until the batch is loaded.
type ImportRecord struct {
	ClientName string
	Date       time.Time
	UsageGB    float64
}

// Store is the storage collaborator. clientID 0 passed to
// GetEarliestUsageDate means "any client".
type Store interface {
	GetClient(ctx context.Context, id int64) (*Client, error)
	GetClientByName(ctx context.Context, name string) (*Client, error)
	ListClients(ctx context.Context) ([]*Client, error)
	GetUsageRecords(ctx context.Context, clientID int64, from, to time.Time) ([]*UsageRecord, error)
	GetTotalUsage(ctx context.Context, clientID int64, from, to time.Time) (float64, error)
	GetEarliestUsageDate(ctx context.Context, clientID int64) (time.Time, bool, error)

	CreateClient(ctx context.Context, c *Client) error
	SetClientCap(ctx context.Context, id int64, capGB float64) error
	AddUsage(ctx context.Context, rec *UsageRecord) error

	// ReplaceAll atomically swaps every client and usage record for the given
	// batch. Nothing is removed unless the whole batch loads.
	ReplaceAll(ctx context.Context, clients []*Client, records []ImportRecord) error
}

// RunStatus is the lifecycle state of a bulk ingestion run.
type RunStatus string

const (
	RunStatusRunning RunStatus = "running"
	RunStatusDone    RunStatus = "done"
	RunStatusFailed  RunStatus = "failed"
)

type IngestRun struct {
	ID             string
	Source         string
	Status         RunStatus
	RowsAccepted   int
	RowsDropped    int
	ClientsCreated int
	Error          string
	StartedAt      time.Time
	FinishedAt     time.Time
}

// RunLog records bulk ingestion runs.
type RunLog interface {
	SaveIngestRun(ctx context.Context, run *IngestRun) error
}

// ValidUsage reports whether v may be stored as a usage amount.
func ValidUsage(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0) && v >= 0
}

// validateBatch checks a ReplaceAll batch before anything is deleted.
func validateBatch(clients []*Client, records []ImportRecord) (map[string]struct{}, error) {
	names := make(map[string]struct{}, len(clients))
	for _, c := range clients {
		if c.Name == "" {
			return nil, ErrEmptyClientName
		}
		if _, dup := names[c.Name]; dup {
			return nil, fmt.Errorf("%w: %s", ErrClientExists, c.Name)
		}
		names[c.Name] = struct{}{}
	}
	for _, r := range records {
		if _, ok := names[r.ClientName]; !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownClient, r.ClientName)
		}
		if !ValidUsage(r.UsageGB) {
			return nil, fmt.Errorf("%w: %s on %s", ErrInvalidUsage, r.ClientName, r.Date.Format("2006-01-02"))
		}
	}
	return names, nil
}
