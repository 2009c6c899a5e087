// Package training turns a raw vehicle listings CSV into the three pricing
// artifacts: it cleans the data, fits the encoders, fits a linear model and
// evaluates it on a held-out split.
package training

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
)

// Table is a raw CSV dataset with every cell kept as text.
type Table struct {
	Header []string
	Rows   [][]string
}

// ReadCSV reads a header row followed by data rows. Cells are trimmed.
func ReadCSV(r io.Reader) (*Table, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("training: read csv: empty input")
		}
		return nil, fmt.Errorf("training: read csv header: %w", err)
	}
	t := &Table{Header: trimAll(header)}
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("training: read csv: %w", err)
		}
		row := trimAll(rec)
		// Short rows are padded as missing; long rows are cut to the header.
		for len(row) < len(t.Header) {
			row = append(row, "")
		}
		t.Rows = append(t.Rows, row[:len(t.Header)])
	}
	return t, nil
}

// Col returns the index of a column or -1.
func (t *Table) Col(name string) int {
	for i, h := range t.Header {
		if h == name {
			return i
		}
	}
	return -1
}

// Len returns the number of data rows.
func (t *Table) Len() int { return len(t.Rows) }

func trimAll(in []string) []string {
	out := make([]string, len(in))
	for i, s := range in {
		out[i] = strings.TrimSpace(s)
	}
	return out
}
