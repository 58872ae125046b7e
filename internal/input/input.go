// Package input reads patent identifiers from a CSV file.
package input

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
)

// DefaultColumn is the header of the identifier column.
const DefaultColumn = "patent_number"

// Options selects which identifiers are read.
type Options struct {
	// Column is the header name of the identifier column.
	Column string

	// Offset skips that many identifiers.
	Offset int

	// Limit caps the number of identifiers returned; 0 means all.
	Limit int

	// StripHyphens removes "-" from identifiers ("US-1234-A1" -> "US1234A1").
	StripHyphens bool
}

// ReadFile reads identifiers from the CSV file at path.
func ReadFile(path string, opts Options) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open input: %w", err)
	}
	defer f.Close()

	ids, err := Read(f, opts)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return ids, nil
}

// Read reads identifiers from CSV data with a header row. Blank identifiers
// are skipped; duplicates and order are preserved.
func Read(r io.Reader, opts Options) ([]string, error) {
	if opts.Column == "" {
		opts.Column = DefaultColumn
	}
	if opts.Offset < 0 || opts.Limit < 0 {
		return nil, fmt.Errorf("offset and limit must be >= 0")
	}

	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("missing header row")
	}
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}

	col := -1
	for i, name := range header {
		if strings.TrimSpace(strings.TrimPrefix(name, "\uFEFF")) == opts.Column {
			col = i
			break
		}
	}
	if col < 0 {
		return nil, fmt.Errorf("column %q not found in header %v", opts.Column, header)
	}

	var ids []string
	skipped := 0
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read row: %w", err)
		}
		if col >= len(rec) {
			continue
		}

		id := strings.TrimSpace(rec[col])
		if opts.StripHyphens {
			id = strings.ReplaceAll(id, "-", "")
		}
		if id == "" {
			continue
		}

		if skipped < opts.Offset {
			skipped++
			continue
		}
		ids = append(ids, id)
		if opts.Limit > 0 && len(ids) == opts.Limit {
			break
		}
	}

	return ids, nil
}
