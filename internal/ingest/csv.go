package ingest

import (
	"bufio"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
)

// table is a fully read CSV file with a trimmed header.
type table struct {
	header []string
	index  map[string]int
	rows   []record
	// rows the CSV reader rejected, or with values past the last header column
	malformed []RowError
}

type record struct {
	// line the record starts on, the header being line 1
	line  int
	cells []string
}

func readTable(r io.Reader) (*table, error) {
	br := bufio.NewReader(r)

	// UTF-8 BOM: 0xEF, 0xBB, 0xBF
	if b, err := br.Peek(3); err == nil && b[0] == 0xEF && b[1] == 0xBB && b[2] == 0xBF {
		_, _ = br.Discard(3)
	}

	cr := csv.NewReader(br)
	cr.TrimLeadingSpace = true
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, ErrEmptyFile
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}

	t := &table{header: make([]string, len(header)), index: make(map[string]int, len(header))}
	for i, h := range header {
		h = strings.TrimSpace(h)
		t.header[i] = h
		if _, dup := t.index[h]; !dup {
			t.index[h] = i
		}
	}

	for {
		cells, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		var pe *csv.ParseError
		if errors.As(err, &pe) {
			t.malformed = append(t.malformed, RowError{Row: pe.StartLine, Code: CodeMalformedRow, Message: pe.Err.Error()})
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read row %d: %w", len(t.rows)+2, err)
		}
		line, _ := cr.FieldPos(0)
		if extra := overflow(cells, len(header)); extra != "" {
			t.malformed = append(t.malformed, RowError{Row: line, Code: CodeMalformedRow, Message: "row has more values than header columns", Value: extra})
			continue
		}
		t.rows = append(t.rows, record{line: line, cells: cells})
	}
	return t, nil
}

// overflow returns the first non-blank value past the header width.
func overflow(cells []string, width int) string {
	for i := width; i < len(cells); i++ {
		if v := strings.TrimSpace(cells[i]); v != "" {
			return v
		}
	}
	return ""
}

// cell returns the trimmed value at column i, or "" when the row is short.
func cell(row []string, i int) string {
	if i < 0 || i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}

// column finds a header case-insensitively.
func (t *table) column(name string) (int, bool) {
	if i, ok := t.index[name]; ok {
		return i, true
	}
	for i, h := range t.header {
		if strings.EqualFold(h, name) {
			return i, true
		}
	}
	return -1, false
}
