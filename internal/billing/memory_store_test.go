package billing

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestMemoryStore_Clients(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	c := &Client{Name: "acme", MonthlyLimitGB: 500}
	if err := s.CreateClient(ctx, c); err != nil {
		t.Fatalf("CreateClient failed: %v", err)
	}
	if c.ID == 0 {
		t.Fatal("Expected client ID to be assigned")
	}

	if err := s.CreateClient(ctx, &Client{Name: "acme"}); !errors.Is(err, ErrClientExists) {
		t.Errorf("Expected ErrClientExists, got %v", err)
	}
	if err := s.CreateClient(ctx, &Client{}); !errors.Is(err, ErrEmptyClientName) {
		t.Errorf("Expected ErrEmptyClientName, got %v", err)
	}

	got, err := s.GetClient(ctx, c.ID)
	if err != nil {
		t.Fatalf("GetClient failed: %v", err)
	}
	if got.Name != "acme" || got.MonthlyLimitGB != 500 {
		t.Errorf("Expected acme/500, got %s/%v", got.Name, got.MonthlyLimitGB)
	}

	if _, err := s.GetClient(ctx, 99); !errors.Is(err, ErrClientNotFound) {
		t.Errorf("Expected ErrClientNotFound, got %v", err)
	}

	if err := s.SetClientCap(ctx, c.ID, 750); err != nil {
		t.Fatalf("SetClientCap failed: %v", err)
	}
	got, _ = s.GetClientByName(ctx, "acme")
	if got.MonthlyLimitGB != 750 {
		t.Errorf("Expected cap 750, got %v", got.MonthlyLimitGB)
	}
	if err := s.SetClientCap(ctx, 99, 1); !errors.Is(err, ErrClientNotFound) {
		t.Errorf("Expected ErrClientNotFound, got %v", err)
	}

	// returned clients are copies
	got.Name = "mutated"
	again, _ := s.GetClient(ctx, c.ID)
	if again.Name != "acme" {
		t.Errorf("Expected stored client to be unchanged, got %s", again.Name)
	}
}

func TestMemoryStore_Usage(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	c := &Client{Name: "acme", MonthlyLimitGB: 100}
	_ = s.CreateClient(ctx, c)

	for _, r := range []*UsageRecord{
		{ClientID: c.ID, Date: date(2025, 3, 15), UsageGB: 2},
		{ClientID: c.ID, Date: date(2025, 3, 13), UsageGB: 1},
		{ClientID: c.ID, Date: date(2025, 3, 15), UsageGB: 3},
		{ClientID: c.ID, Date: date(2025, 4, 13), UsageGB: 50},
	} {
		if err := s.AddUsage(ctx, r); err != nil {
			t.Fatalf("AddUsage failed: %v", err)
		}
	}

	records, err := s.GetUsageRecords(ctx, c.ID, date(2025, 3, 13), date(2025, 4, 12))
	if err != nil {
		t.Fatalf("GetUsageRecords failed: %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("Expected 3 records, got %d", len(records))
	}
	if records[0].UsageGB != 1 || records[1].UsageGB != 2 || records[2].UsageGB != 3 {
		t.Errorf("Expected records ordered by date then insertion, got %v %v %v", records[0].UsageGB, records[1].UsageGB, records[2].UsageGB)
	}

	total, _ := s.GetTotalUsage(ctx, c.ID, date(2025, 3, 13), date(2025, 4, 12))
	if total != 6 {
		t.Errorf("Expected total 6, got %v", total)
	}

	earliest, ok, _ := s.GetEarliestUsageDate(ctx, c.ID)
	if !ok || !earliest.Equal(date(2025, 3, 13)) {
		t.Errorf("Expected earliest 2025-03-13, got %v (%v)", earliest, ok)
	}
	if _, ok, _ := s.GetEarliestUsageDate(ctx, 99); ok {
		t.Error("Expected no earliest date for unknown client")
	}

	if err := s.AddUsage(ctx, &UsageRecord{ClientID: c.ID, Date: date(2025, 3, 1), UsageGB: -1}); !errors.Is(err, ErrInvalidUsage) {
		t.Errorf("Expected ErrInvalidUsage, got %v", err)
	}
	if err := s.AddUsage(ctx, &UsageRecord{ClientID: c.ID, Date: date(2025, 3, 1), UsageGB: math.NaN()}); !errors.Is(err, ErrInvalidUsage) {
		t.Errorf("Expected ErrInvalidUsage for NaN, got %v", err)
	}
	if err := s.AddUsage(ctx, &UsageRecord{ClientID: 99, Date: date(2025, 3, 1), UsageGB: 1}); !errors.Is(err, ErrClientNotFound) {
		t.Errorf("Expected ErrClientNotFound, got %v", err)
	}
}

func TestMemoryStore_ReplaceAll(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	_ = s.CreateClient(ctx, &Client{Name: "old", MonthlyLimitGB: 1})

	// invalid batches leave the store as it was
	bad := []struct {
		name    string
		clients []*Client
		records []ImportRecord
		want    error
	}{
		{"unknown client", []*Client{{Name: "a"}}, []ImportRecord{{ClientName: "b", Date: date(2025, 3, 13), UsageGB: 1}}, ErrUnknownClient},
		{"duplicate client", []*Client{{Name: "a"}, {Name: "a"}}, nil, ErrClientExists},
		{"negative usage", []*Client{{Name: "a"}}, []ImportRecord{{ClientName: "a", Date: date(2025, 3, 13), UsageGB: -2}}, ErrInvalidUsage},
	}
	for _, tc := range bad {
		if err := s.ReplaceAll(ctx, tc.clients, tc.records); !errors.Is(err, tc.want) {
			t.Errorf("%s: expected %v, got %v", tc.name, tc.want, err)
		}
		if _, err := s.GetClientByName(ctx, "old"); err != nil {
			t.Errorf("%s: expected existing client to survive, got %v", tc.name, err)
		}
	}

	clients := []*Client{{Name: "a", MonthlyLimitGB: 10}, {Name: "b", MonthlyLimitGB: 20}}
	records := []ImportRecord{
		{ClientName: "a", Date: date(2025, 3, 13), UsageGB: 1},
		{ClientName: "b", Date: date(2025, 3, 14), UsageGB: 2},
	}
	if err := s.ReplaceAll(ctx, clients, records); err != nil {
		t.Fatalf("ReplaceAll failed: %v", err)
	}

	all, _ := s.ListClients(ctx)
	if len(all) != 2 || all[0].Name != "a" || all[1].Name != "b" {
		t.Fatalf("Expected clients a and b, got %v", all)
	}
	if clients[1].ID == 0 {
		t.Error("Expected batch clients to receive IDs")
	}
	total, _ := s.GetTotalUsage(ctx, clients[1].ID, date(2025, 1, 1), date(2025, 12, 31))
	if total != 2 {
		t.Errorf("Expected b total 2, got %v", total)
	}
	earliest, ok, _ := s.GetEarliestUsageDate(ctx, 0)
	if !ok || !earliest.Equal(date(2025, 3, 13)) {
		t.Errorf("Expected global earliest 2025-03-13, got %v", earliest)
	}
}

func TestMemoryStore_IngestRuns(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	run := &IngestRun{ID: "run-1", Status: RunStatusRunning, StartedAt: time.Now()}
	_ = s.SaveIngestRun(ctx, run)
	run.Status = RunStatusDone
	run.RowsAccepted = 4
	_ = s.SaveIngestRun(ctx, run)

	got, ok := s.IngestRun("run-1")
	if !ok {
		t.Fatal("Expected run to be recorded")
	}
	if got.Status != RunStatusDone || got.RowsAccepted != 4 {
		t.Errorf("Expected done/4, got %s/%d", got.Status, got.RowsAccepted)
	}
}
