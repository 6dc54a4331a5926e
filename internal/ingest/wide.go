package ingest

import (
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/vnmchuo/datacap/internal/billing"
)

const dateColumn = "Date"

// WideResult is a wide usage sheet reshaped to one record per (date, client).
type WideResult struct {
	Records []billing.ImportRecord
	// Clients in column order
	Clients []string
	Errors  []RowError
	// Blank cells are skipped without a diagnostic.
	Blank int
}

// ParseWide reads a sheet with a Date column and one usage column per client.
// Rows with an unreadable date, rows the CSV reader rejects and cells with an
// unreadable amount are dropped individually and reported in Errors.
func ParseWide(r io.Reader, now time.Time) (*WideResult, error) {
	t, err := readTable(r)
	if err != nil {
		return nil, err
	}
	dateIdx, ok := t.column(dateColumn)
	if !ok {
		return nil, ErrMissingDateColumn
	}

	res := &WideResult{}
	type clientCol struct {
		idx  int
		name string
	}
	var cols []clientCol
	seen := make(map[string]bool)
	for i, h := range t.header {
		if i == dateIdx || h == "" {
			continue
		}
		if seen[h] {
			res.Errors = append(res.Errors, RowError{Row: 1, Column: h, Code: CodeDuplicate, Message: "duplicate client column ignored"})
			continue
		}
		seen[h] = true
		cols = append(cols, clientCol{idx: i, name: h})
		res.Clients = append(res.Clients, h)
	}
	if len(cols) == 0 {
		return nil, ErrNoClientColumns
	}

	for _, rec := range t.rows {
		rowNum, row := rec.line, rec.cells
		if blankRow(row) {
			continue
		}
		rawDate := cell(row, dateIdx)
		date, err := ParseDate(rawDate, now)
		if err != nil {
			res.Errors = append(res.Errors, RowError{Row: rowNum, Column: dateColumn, Code: CodeInvalidDate, Message: err.Error(), Value: rawDate})
			continue
		}
		for _, col := range cols {
			raw := cell(row, col.idx)
			if raw == "" {
				res.Blank++
				continue
			}
			v, err := parseAmount(raw)
			if err != nil {
				res.Errors = append(res.Errors, RowError{Row: rowNum, Column: col.name, Code: CodeInvalidNumber, Message: "usage is not a number", Value: raw})
				continue
			}
			if !billing.ValidUsage(v) {
				res.Errors = append(res.Errors, RowError{Row: rowNum, Column: col.name, Code: CodeNegativeValue, Message: "usage must be finite and non-negative", Value: raw})
				continue
			}
			res.Records = append(res.Records, billing.ImportRecord{ClientName: col.name, Date: date, UsageGB: v})
		}
	}
	res.Errors = mergeRowErrors(res.Errors, t.malformed)
	return res, nil
}

// parseAmount accepts plain decimals with optional thousands separators.
func parseAmount(s string) (float64, error) {
	return strconv.ParseFloat(strings.ReplaceAll(s, ",", ""), 64)
}

func blankRow(row []string) bool {
	for _, v := range row {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}
