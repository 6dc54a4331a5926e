package ingest

import (
	"io"

	"github.com/vnmchuo/datacap/internal/billing"
)

// ParseCaps reads a client_name, cap_gb sheet. Invalid rows are dropped and
// reported; the first cap given for a client wins.
func ParseCaps(r io.Reader) (map[string]float64, []RowError, error) {
	t, err := readTable(r)
	if err != nil {
		return nil, nil, err
	}
	nameIdx, ok1 := t.column("client_name")
	capIdx, ok2 := t.column("cap_gb")
	if !ok1 || !ok2 {
		return nil, nil, ErrMissingCapColumns
	}

	caps := make(map[string]float64)
	var rowErrs []RowError
	for _, rec := range t.rows {
		rowNum, row := rec.line, rec.cells
		if blankRow(row) {
			continue
		}
		name := cell(row, nameIdx)
		if name == "" {
			rowErrs = append(rowErrs, RowError{Row: rowNum, Column: "client_name", Code: CodeEmptyName, Message: "client name is required"})
			continue
		}
		raw := cell(row, capIdx)
		v, err := parseAmount(raw)
		if err != nil {
			rowErrs = append(rowErrs, RowError{Row: rowNum, Column: "cap_gb", Code: CodeInvalidNumber, Message: "cap is not a number", Value: raw})
			continue
		}
		if !billing.ValidUsage(v) || v == 0 {
			rowErrs = append(rowErrs, RowError{Row: rowNum, Column: "cap_gb", Code: CodeNegativeValue, Message: "cap must be positive", Value: raw})
			continue
		}
		if _, dup := caps[name]; dup {
			rowErrs = append(rowErrs, RowError{Row: rowNum, Column: "client_name", Code: CodeDuplicate, Message: "cap already given for client", Value: name})
			continue
		}
		caps[name] = v
	}
	return caps, mergeRowErrors(rowErrs, t.malformed), nil
}
