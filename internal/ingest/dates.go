package ingest

import (
	"fmt"
	"strings"
	"time"

	"github.com/vnmchuo/datacap/internal/cycle"
)

var datedLayouts = []string{
	"2006-01-02",
	"2006/01/02",
	"1/2/2006",
	"2-Jan-2006",
	"2-Jan-06",
	"2 Jan 2006",
	"Jan 2, 2006",
	"January 2, 2006",
	"2006-01-02 15:04:05",
	time.RFC3339,
}

// Layouts without a year; the year is taken from now.
var yearlessLayouts = []string{
	"2-Jan",
	"2 Jan",
	"Jan 2",
	"2-January",
	"January 2",
}

// ParseDate reads a calendar date. Dates written without a year (e.g.
// "13-Mar") are placed in now's year. A yearless Feb 29 in a non-leap year is
// rejected rather than rolled into March.
func ParseDate(s string, now time.Time) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("empty date")
	}
	for _, layout := range datedLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return cycle.Truncate(t), nil
		}
	}
	for _, layout := range yearlessLayouts {
		t, err := time.Parse(layout, s)
		if err != nil {
			continue
		}
		d := cycle.Date(now.Year(), t.Month(), t.Day())
		if d.Day() != t.Day() {
			return time.Time{}, fmt.Errorf("%q does not exist in %d", s, now.Year())
		}
		return d, nil
	}
	return time.Time{}, fmt.Errorf("unrecognised date %q", s)
}
