package ingest

import (
	"cmp"
	"errors"
	"fmt"
	"slices"
)

// Row diagnostic codes
const (
	CodeInvalidDate   = "ERR_INGEST_INVALID_DATE"
	CodeInvalidNumber = "ERR_INGEST_INVALID_NUMBER"
	CodeNegativeValue = "ERR_INGEST_NEGATIVE_VALUE"
	CodeEmptyName     = "ERR_INGEST_EMPTY_NAME"
	CodeMalformedRow  = "ERR_INGEST_MALFORMED_ROW"
	CodeDuplicate     = "ERR_INGEST_DUPLICATE"
)

var (
	ErrMissingInput      = errors.New("input file not found")
	ErrEmptyFile         = errors.New("CSV file is empty")
	ErrMissingDateColumn = errors.New("CSV file must contain a 'Date' column")
	ErrMissingCapColumns = errors.New("caps CSV must contain 'client_name' and 'cap_gb' columns")
	ErrNoClientColumns   = errors.New("CSV file has no client columns")
	ErrNoRecords         = errors.New("no usable usage records; existing data left untouched")
)

// RowError describes one dropped row or cell. Row is 1-indexed with the
// header as row 1.
type RowError struct {
	Row     int    `json:"row"`
	Column  string `json:"column"`
	Code    string `json:"code"`
	Message string `json:"message"`
	Value   string `json:"value,omitempty"`
}

func (e RowError) Error() string {
	if e.Column != "" {
		return fmt.Sprintf("row %d, column '%s': %s", e.Row, e.Column, e.Message)
	}
	return fmt.Sprintf("row %d: %s", e.Row, e.Message)
}

// mergeRowErrors adds reader-level diagnostics and orders the result by row.
func mergeRowErrors(errs, malformed []RowError) []RowError {
	if len(malformed) == 0 {
		return errs
	}
	errs = append(errs, malformed...)
	slices.SortStableFunc(errs, func(a, b RowError) int { return cmp.Compare(a.Row, b.Row) })
	return errs
}
