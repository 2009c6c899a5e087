package artifact

import (
	"encoding/json"
	"fmt"
	"sort"
)

// Vocabulary is the ordered class list of one label-encoded column.
type Vocabulary struct {
	classes []string
	index   map[string]int
}

// NewVocabulary builds a vocabulary. Classes must be non-empty and unique.
func NewVocabulary(classes []string) (*Vocabulary, error) {
	if len(classes) == 0 {
		return nil, fmt.Errorf("label: empty vocabulary")
	}
	v := &Vocabulary{
		classes: append([]string(nil), classes...),
		index:   make(map[string]int, len(classes)),
	}
	for i, c := range classes {
		if _, dup := v.index[c]; dup {
			return nil, fmt.Errorf("label: duplicate class %q", c)
		}
		v.index[c] = i
	}
	return v, nil
}

// Index returns the position of class, or false when it was not fitted.
func (v *Vocabulary) Index(class string) (int, bool) {
	i, ok := v.index[class]
	return i, ok
}

// First returns the class at index 0, the fallback for unseen values.
func (v *Vocabulary) First() string { return v.classes[0] }

// Classes returns a copy of the fitted classes in index order.
func (v *Vocabulary) Classes() []string { return append([]string(nil), v.classes...) }

// Len returns the number of classes.
func (v *Vocabulary) Len() int { return len(v.classes) }

// LabelEncoders maps categorical columns to integer indices, one vocabulary
// per column. An encoder built from a single shared class list applies the
// same vocabulary to every column it is asked about.
type LabelEncoders struct {
	columns map[string]*Vocabulary
	shared  *Vocabulary
}

// NewLabelEncoders builds per-column encoders.
func NewLabelEncoders(columns map[string][]string) (*LabelEncoders, error) {
	if len(columns) == 0 {
		return nil, fmt.Errorf("label: no columns")
	}
	le := &LabelEncoders{columns: make(map[string]*Vocabulary, len(columns))}
	for name, classes := range columns {
		v, err := NewVocabulary(classes)
		if err != nil {
			return nil, fmt.Errorf("label: column %s: %w", name, err)
		}
		le.columns[name] = v
	}
	return le, nil
}

// NewSharedLabelEncoder builds an encoder whose single vocabulary serves
// every column.
func NewSharedLabelEncoder(classes []string) (*LabelEncoders, error) {
	v, err := NewVocabulary(classes)
	if err != nil {
		return nil, err
	}
	return &LabelEncoders{shared: v}, nil
}

// Shared reports whether the encoder uses one vocabulary for all columns.
func (le *LabelEncoders) Shared() bool { return le.shared != nil }

// Vocabulary returns the vocabulary used for column.
func (le *LabelEncoders) Vocabulary(column string) (*Vocabulary, bool) {
	if le.shared != nil {
		return le.shared, true
	}
	v, ok := le.columns[column]
	return v, ok
}

// Transform returns the index of value in column's vocabulary. An unseen
// value maps to the index of the column's first class and fellBack is true.
func (le *LabelEncoders) Transform(column, value string) (idx int, fellBack bool, err error) {
	v, ok := le.Vocabulary(column)
	if !ok {
		return 0, false, fmt.Errorf("label: no vocabulary for column %s", column)
	}
	if i, ok := v.Index(value); ok {
		return i, false, nil
	}
	return 0, true, nil
}

type labelDoc struct {
	header
	Columns map[string][]string `json:"columns,omitempty"`
	Classes []string            `json:"classes,omitempty"`
}

// MarshalJSON writes the artifact document.
func (le *LabelEncoders) MarshalJSON() ([]byte, error) {
	doc := labelDoc{header: header{Kind: KindLabelEncoder, Version: FormatVersion}}
	if le.shared != nil {
		doc.Classes = le.shared.Classes()
		return json.Marshal(doc)
	}
	doc.Columns = make(map[string][]string, len(le.columns))
	names := make([]string, 0, len(le.columns))
	for name := range le.columns {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		doc.Columns[name] = le.columns[name].Classes()
	}
	return json.Marshal(doc)
}

// DecodeLabelEncoders parses a label encoder document. Either "columns" or
// the legacy shared "classes" list must be present.
func DecodeLabelEncoders(data []byte) (*LabelEncoders, error) {
	if err := expectKind(data, KindLabelEncoder); err != nil {
		return nil, err
	}
	var doc labelDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode label encoder: %w", err)
	}
	switch {
	case len(doc.Columns) > 0 && len(doc.Classes) > 0:
		return nil, fmt.Errorf("label: both columns and classes present")
	case len(doc.Columns) > 0:
		return NewLabelEncoders(doc.Columns)
	case len(doc.Classes) > 0:
		return NewSharedLabelEncoder(doc.Classes)
	default:
		return nil, fmt.Errorf("label: no classes")
	}
}
