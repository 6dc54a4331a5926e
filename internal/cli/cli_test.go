package cli

import (
	"strings"
	"testing"
)

func TestFormatGB(t *testing.T) {
	tests := []struct {
		in   float64
		want string
	}{
		{0, "0.00 GB"},
		{12.345, "12.35 GB"},
		{1234.5, "1,234.50 GB"},
		{-2.5, "-2.50 GB"},
	}
	for _, tt := range tests {
		if got := FormatGB(tt.in); got != tt.want {
			t.Errorf("FormatGB(%v): expected %q, got %q", tt.in, tt.want, got)
		}
	}
}

func TestFormatNumber(t *testing.T) {
	if got := FormatNumber(1234567); got != "1,234,567" {
		t.Errorf("Expected 1,234,567, got %s", got)
	}
	if got := FormatNumber(999); got != "999" {
		t.Errorf("Expected 999, got %s", got)
	}
}

func TestRenderTable(t *testing.T) {
	out := RenderTable(Table{
		Title:   "Clients",
		Headers: []string{"Name", "Usage"},
		Rows:    [][]string{{"Acme", "1.00 GB"}, {"Beta Industries", "22.00 GB"}},
	})
	for _, want := range []string{"Clients", "Name", "Acme", "Beta Industries", "22.00 GB", "╭", "╯"} {
		if !strings.Contains(out, want) {
			t.Errorf("Expected table to contain %q:\n%s", want, out)
		}
	}
	if RenderTable(Table{}) != "" {
		t.Error("Expected empty table to render nothing")
	}
}

func TestRenderUsageBar(t *testing.T) {
	if !strings.Contains(RenderUsageBar(50, 100, 0.8, 10), "50.0%") {
		t.Error("Expected 50.0% in bar")
	}
	if !strings.Contains(RenderUsageBar(150, 100, 0.8, 10), "150.0%") {
		t.Error("Expected over-cap percentage in bar")
	}
	if RenderUsageBar(1, 0, 0.8, 10) != "" {
		t.Error("Expected no bar without a cap")
	}
}

func TestRenderSparkline(t *testing.T) {
	if got := RenderSparkline(nil); got != "" {
		t.Errorf("Expected empty sparkline, got %q", got)
	}
	if got := RenderSparkline([]float64{0, 5, 10}); !strings.Contains(got, "█") {
		t.Errorf("Expected peak block in %q", got)
	}
}
