package billing

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/vnmchuo/datacap/internal/cycle"
)

// MemoryStore keeps clients and usage in process memory. It backs local demo
// runs (STORE_DRIVER=memory) and tests. Dates are stored as UTC calendar days,
// like the DATE column in Postgres.
type MemoryStore struct {
	mu      sync.RWMutex
	nextID  int64
	clients map[int64]*Client
	usage   []*UsageRecord
	runs    map[string]IngestRun
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		clients: make(map[int64]*Client),
		runs:    make(map[string]IngestRun),
	}
}

func (s *MemoryStore) GetClient(_ context.Context, id int64) (*Client, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.clients[id]
	if !ok {
		return nil, ErrClientNotFound
	}
	cp := *c
	return &cp, nil
}

func (s *MemoryStore) GetClientByName(_ context.Context, name string) (*Client, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, c := range s.clients {
		if c.Name == name {
			cp := *c
			return &cp, nil
		}
	}
	return nil, ErrClientNotFound
}

func (s *MemoryStore) ListClients(_ context.Context) ([]*Client, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	clients := make([]*Client, 0, len(s.clients))
	for _, c := range s.clients {
		cp := *c
		clients = append(clients, &cp)
	}
	sort.Slice(clients, func(i, j int) bool { return clients[i].ID < clients[j].ID })
	return clients, nil
}

func (s *MemoryStore) GetUsageRecords(_ context.Context, clientID int64, from, to time.Time) ([]*UsageRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var records []*UsageRecord
	for _, r := range s.usage {
		if r.ClientID != clientID || r.Date.Before(from) || r.Date.After(to) {
			continue
		}
		cp := *r
		records = append(records, &cp)
	}
	sort.SliceStable(records, func(i, j int) bool {
		if records[i].Date.Equal(records[j].Date) {
			return records[i].ID < records[j].ID
		}
		return records[i].Date.Before(records[j].Date)
	})
	return records, nil
}

func (s *MemoryStore) GetTotalUsage(ctx context.Context, clientID int64, from, to time.Time) (float64, error) {
	records, err := s.GetUsageRecords(ctx, clientID, from, to)
	if err != nil {
		return 0, err
	}
	var total float64
	for _, r := range records {
		total += r.UsageGB
	}
	return total, nil
}

func (s *MemoryStore) GetEarliestUsageDate(_ context.Context, clientID int64) (time.Time, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var earliest time.Time
	found := false
	for _, r := range s.usage {
		if clientID != 0 && r.ClientID != clientID {
			continue
		}
		if !found || r.Date.Before(earliest) {
			earliest = r.Date
			found = true
		}
	}
	return earliest, found, nil
}

func (s *MemoryStore) CreateClient(_ context.Context, c *Client) error {
	if c.Name == "" {
		return ErrEmptyClientName
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.clients {
		if existing.Name == c.Name {
			return fmt.Errorf("%w: %s", ErrClientExists, c.Name)
		}
	}
	s.nextID++
	c.ID = s.nextID
	cp := *c
	s.clients[c.ID] = &cp
	return nil
}

func (s *MemoryStore) SetClientCap(_ context.Context, id int64, capGB float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.clients[id]
	if !ok {
		return ErrClientNotFound
	}
	c.MonthlyLimitGB = capGB
	return nil
}

func (s *MemoryStore) AddUsage(_ context.Context, rec *UsageRecord) error {
	if !ValidUsage(rec.UsageGB) {
		return ErrInvalidUsage
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.clients[rec.ClientID]; !ok {
		return ErrClientNotFound
	}
	s.nextID++
	rec.ID = s.nextID
	rec.Date = cycle.Truncate(rec.Date)
	cp := *rec
	s.usage = append(s.usage, &cp)
	return nil
}

func (s *MemoryStore) ReplaceAll(_ context.Context, clients []*Client, records []ImportRecord) error {
	if _, err := validateBatch(clients, records); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.clients = make(map[int64]*Client, len(clients))
	s.usage = nil

	ids := make(map[string]int64, len(clients))
	for _, c := range clients {
		s.nextID++
		c.ID = s.nextID
		cp := *c
		s.clients[c.ID] = &cp
		ids[c.Name] = c.ID
	}
	for _, r := range records {
		s.nextID++
		s.usage = append(s.usage, &UsageRecord{
			ID:       s.nextID,
			ClientID: ids[r.ClientName],
			Date:     cycle.Truncate(r.Date),
			UsageGB:  r.UsageGB,
		})
	}
	return nil
}

func (s *MemoryStore) SaveIngestRun(_ context.Context, run *IngestRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runs[run.ID] = *run
	return nil
}

// IngestRun returns a recorded run by id.
func (s *MemoryStore) IngestRun(id string) (IngestRun, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	run, ok := s.runs[id]
	return run, ok
}
