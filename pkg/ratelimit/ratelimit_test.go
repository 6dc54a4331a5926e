package ratelimit

import (
	"context"
	"errors"
	"testing"

	extratelimit "github.com/vnmchuo/ratelimiter"
)

type mockStore struct {
	allowed   bool
	remaining int64
	err       error
	keys      []string
}

func (m *mockStore) AllowN(ctx context.Context, key string, n int) (*extratelimit.Result, error) {
	m.keys = append(m.keys, key)
	return &extratelimit.Result{Allowed: m.allowed}, m.err
}

func (m *mockStore) Allow(ctx context.Context, key string) (*extratelimit.Result, error) {
	m.keys = append(m.keys, key)
	if m.err != nil {
		return nil, m.err
	}
	return &extratelimit.Result{Allowed: m.allowed, Remaining: m.remaining, Limit: 5}, nil
}

func (m *mockStore) Status(ctx context.Context, key string) (*extratelimit.Result, error) {
	m.keys = append(m.keys, key)
	return &extratelimit.Result{Allowed: m.allowed}, m.err
}

func TestAllowExport(t *testing.T) {
	store := &mockStore{allowed: true, remaining: 4}
	l := NewTestLimiter(store)

	res, err := l.AllowExport(context.Background(), 42)
	if err != nil || !res.Allowed {
		t.Fatalf("Expected export to be allowed, got %v, %v", res, err)
	}
	if res.Remaining != 4 || res.Limit != 5 {
		t.Errorf("Expected 4 of 5 remaining, got %d of %d", res.Remaining, res.Limit)
	}
	if len(store.keys) != 1 || store.keys[0] != "ratelimit:export:client:42" {
		t.Errorf("Expected per-client key, got %v", store.keys)
	}

	store.allowed = false
	res, _ = l.AllowExport(context.Background(), 42)
	if res.Allowed {
		t.Error("Expected export to be denied")
	}
}

func TestAllowExport_StoreError(t *testing.T) {
	l := NewTestLimiter(&mockStore{allowed: true, err: errors.New("redis down")})

	res, err := l.AllowExport(context.Background(), 1)
	if err == nil || res != nil {
		t.Errorf("Expected error and no result, got %v, %v", res, err)
	}
}

func TestNilLimiterAllows(t *testing.T) {
	var l *Limiter

	res, err := l.AllowExport(context.Background(), 1)
	if err != nil || !res.Allowed {
		t.Errorf("Expected nil limiter to allow, got %v, %v", res, err)
	}
	if res.Limit != 0 {
		t.Errorf("Expected no limit from nil limiter, got %d", res.Limit)
	}
}
