package artifact

import (
	"encoding/json"
	"fmt"
)

// OneHotColumn is one source column and the categories it was fitted on.
type OneHotColumn struct {
	Name       string   `json:"name"`
	Categories []string `json:"categories"`
}

// OneHotEncoder expands categorical columns into binary indicator columns.
// It is immutable once constructed.
type OneHotEncoder struct {
	columns  []OneHotColumn
	index    []map[string]int
	features []string
}

// NewOneHotEncoder builds an encoder from fitted columns. Category order is
// preserved and defines indicator order.
func NewOneHotEncoder(columns []OneHotColumn) (*OneHotEncoder, error) {
	if len(columns) == 0 {
		return nil, fmt.Errorf("one-hot: no columns")
	}
	e := &OneHotEncoder{
		columns: make([]OneHotColumn, len(columns)),
		index:   make([]map[string]int, len(columns)),
	}
	seen := make(map[string]bool, len(columns))
	for i, c := range columns {
		if c.Name == "" {
			return nil, fmt.Errorf("one-hot: column %d has no name", i)
		}
		if seen[c.Name] {
			return nil, fmt.Errorf("one-hot: duplicate column %s", c.Name)
		}
		seen[c.Name] = true
		if len(c.Categories) == 0 {
			return nil, fmt.Errorf("one-hot: column %s has no categories", c.Name)
		}
		idx := make(map[string]int, len(c.Categories))
		for j, cat := range c.Categories {
			if _, dup := idx[cat]; dup {
				return nil, fmt.Errorf("one-hot: column %s: duplicate category %q", c.Name, cat)
			}
			idx[cat] = j
			e.features = append(e.features, c.Name+"_"+cat)
		}
		e.columns[i] = OneHotColumn{Name: c.Name, Categories: append([]string(nil), c.Categories...)}
		e.index[i] = idx
	}
	return e, nil
}

// Columns returns the source column names in encoding order.
func (e *OneHotEncoder) Columns() []string {
	out := make([]string, len(e.columns))
	for i, c := range e.columns {
		out[i] = c.Name
	}
	return out
}

// Categories returns the fitted vocabulary of a column.
func (e *OneHotEncoder) Categories(column string) ([]string, bool) {
	for _, c := range e.columns {
		if c.Name == column {
			return append([]string(nil), c.Categories...), true
		}
	}
	return nil, false
}

// FeatureNames returns the indicator column names, "<column>_<category>".
func (e *OneHotEncoder) FeatureNames() []string {
	return append([]string(nil), e.features...)
}

// Transform returns the indicator values for one row. lookup supplies the
// row's value for a source column. A value outside the fitted vocabulary is
// an *UnseenCategoryError.
func (e *OneHotEncoder) Transform(lookup func(column string) (string, bool)) ([]float64, error) {
	out := make([]float64, len(e.features))
	offset := 0
	for i, c := range e.columns {
		v, ok := lookup(c.Name)
		if !ok {
			return nil, fmt.Errorf("one-hot: row has no column %s", c.Name)
		}
		j, ok := e.index[i][v]
		if !ok {
			return nil, &UnseenCategoryError{Column: c.Name, Value: v}
		}
		out[offset+j] = 1
		offset += len(c.Categories)
	}
	return out, nil
}

type oneHotDoc struct {
	header
	Columns []OneHotColumn `json:"columns"`
}

// MarshalJSON writes the artifact document.
func (e *OneHotEncoder) MarshalJSON() ([]byte, error) {
	return json.Marshal(oneHotDoc{
		header:  header{Kind: KindOneHotEncoder, Version: FormatVersion},
		Columns: e.columns,
	})
}

// DecodeOneHotEncoder parses a one-hot encoder document.
func DecodeOneHotEncoder(data []byte) (*OneHotEncoder, error) {
	if err := expectKind(data, KindOneHotEncoder); err != nil {
		return nil, err
	}
	var doc oneHotDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode one-hot encoder: %w", err)
	}
	return NewOneHotEncoder(doc.Columns)
}
