package config

import (
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("POSTGRES_DSN", "postgres://localhost/datacap")
	t.Setenv("STORE_DRIVER", "postgres")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Port != "8080" {
		t.Errorf("Expected port 8080, got %s", cfg.Port)
	}
	if cfg.CacheTTL != time.Hour {
		t.Errorf("Expected cache TTL 1h, got %s", cfg.CacheTTL)
	}
	if cfg.MaxLookbackYears != 5 {
		t.Errorf("Expected lookback 5, got %d", cfg.MaxLookbackYears)
	}
	if cfg.UpgradeThreshold != 0.8 {
		t.Errorf("Expected upgrade threshold 0.8, got %v", cfg.UpgradeThreshold)
	}
	if cfg.DefaultCapGB != 1000 {
		t.Errorf("Expected default cap 1000, got %v", cfg.DefaultCapGB)
	}
	if cfg.OTELSampleRatio != 1 {
		t.Errorf("Expected sample ratio 1, got %v", cfg.OTELSampleRatio)
	}
}

func TestLoad_RequiresDSNForPostgres(t *testing.T) {
	t.Setenv("STORE_DRIVER", "postgres")
	t.Setenv("POSTGRES_DSN", "")

	if _, err := Load(); err == nil {
		t.Fatal("Expected error when POSTGRES_DSN is empty")
	}
}

func TestLoad_MemoryDriverNeedsNoDSN(t *testing.T) {
	t.Setenv("STORE_DRIVER", "memory")
	t.Setenv("POSTGRES_DSN", "")
	t.Setenv("MAX_LOOKBACK_YEARS", "0")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.MaxLookbackYears != 0 {
		t.Errorf("Expected unbounded lookback, got %d", cfg.MaxLookbackYears)
	}
}

func TestLoad_InvalidNumbers(t *testing.T) {
	t.Setenv("STORE_DRIVER", "memory")
	t.Setenv("UPGRADE_THRESHOLD", "lots")

	if _, err := Load(); err == nil {
		t.Fatal("Expected error for invalid UPGRADE_THRESHOLD")
	}
}

func TestLoad_SampleRatioOutOfRange(t *testing.T) {
	t.Setenv("STORE_DRIVER", "memory")
	t.Setenv("OTEL_SAMPLE_RATIO", "1.5")

	if _, err := Load(); err == nil {
		t.Fatal("Expected error for OTEL_SAMPLE_RATIO above 1")
	}
}

func TestSplitList(t *testing.T) {
	got := splitList(" http://a.example , ,http://b.example")
	if len(got) != 2 || got[0] != "http://a.example" || got[1] != "http://b.example" {
		t.Errorf("Expected two origins, got %v", got)
	}
}
