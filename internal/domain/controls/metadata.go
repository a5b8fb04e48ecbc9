package controls

import (
	"encoding/json"
	"sort"
	"strconv"
	"strings"

	"github.com/colinvwood/taxa-barplot/pkg/errors"
)

// TypesRowID marks the metadata row that declares column types.
const TypesRowID = "#q2:types"

// SampleIDColumn is the identifier column of metadata and feature tables.
const SampleIDColumn = "sampleID"

// ColumnType is the declared type of a metadata column.
type ColumnType string

const (
	Categorical ColumnType = "categorical"
	Numeric     ColumnType = "numeric"
)

// ParseColumnType validates a types-row cell.
func ParseColumnType(s string) (ColumnType, error) {
	switch ColumnType(strings.ToLower(strings.TrimSpace(s))) {
	case Categorical:
		return Categorical, nil
	case Numeric:
		return Numeric, nil
	default:
		return "", errors.New(errors.ErrCodeDatasetParse, "unknown metadata column type").
			WithDetailf("type=%q", s)
	}
}

// Metadata holds typed per-sample annotations.
type Metadata struct {
	columns []string
	types   map[string]ColumnType
	values  map[string]map[string]string
	samples []string
}

// NewMetadata returns empty metadata.
func NewMetadata() *Metadata {
	return &Metadata{
		types:  make(map[string]ColumnType),
		values: make(map[string]map[string]string),
	}
}

// AddColumn declares a column. Redeclaring a column replaces its type.
func (m *Metadata) AddColumn(name string, t ColumnType) {
	if _, ok := m.types[name]; !ok {
		m.columns = append(m.columns, name)
	}
	m.types[name] = t
}

// SetRow stores the values for sampleID, replacing any previous row.
func (m *Metadata) SetRow(sampleID string, values map[string]string) {
	if _, ok := m.values[sampleID]; !ok {
		m.samples = append(m.samples, sampleID)
	}
	row := make(map[string]string, len(values))
	for k, v := range values {
		row[k] = v
	}
	m.values[sampleID] = row
}

// Columns returns the declared columns in declaration order.
func (m *Metadata) Columns() []string { return append([]string(nil), m.columns...) }

// SampleIDs returns the annotated samples in insertion order.
func (m *Metadata) SampleIDs() []string { return append([]string(nil), m.samples...) }

// Len returns the number of annotated samples.
func (m *Metadata) Len() int { return len(m.samples) }

// Type returns the declared type of column.
func (m *Metadata) Type(column string) (ColumnType, error) {
	t, ok := m.types[column]
	if !ok {
		return "", errors.New(errors.ErrCodeMetadataNotFound, "metadata column not found").
			WithDetailf("column=%q", column)
	}
	return t, nil
}

// Value returns the raw value of column for sampleID.
func (m *Metadata) Value(sampleID, column string) (string, bool) {
	row, ok := m.values[sampleID]
	if !ok {
		return "", false
	}
	v, ok := row[column]
	return v, ok
}

// NumericValue parses the value of column for sampleID. Missing or
// unparsable values report false.
func (m *Metadata) NumericValue(sampleID, column string) (float64, bool) {
	raw, ok := m.Value(sampleID, column)
	if !ok {
		return 0, false
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

// Levels returns the distinct non-empty values of column, sorted.
func (m *Metadata) Levels(column string) []string {
	seen := make(map[string]struct{})
	for _, row := range m.values {
		if v := row[column]; v != "" {
			seen[v] = struct{}{}
		}
	}
	out := make([]string, 0, len(seen))
	for v := range seen {
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}

type metadataColumn struct {
	Name string     `json:"name"`
	Type ColumnType `json:"type"`
}

type metadataRow struct {
	SampleID string            `json:"sample_id"`
	Values   map[string]string `json:"values"`
}

type metadataDoc struct {
	Columns []metadataColumn `json:"columns"`
	Rows    []metadataRow    `json:"rows"`
}

// MarshalJSON stores columns and rows in declaration order.
func (m *Metadata) MarshalJSON() ([]byte, error) {
	doc := metadataDoc{
		Columns: make([]metadataColumn, 0, len(m.columns)),
		Rows:    make([]metadataRow, 0, len(m.samples)),
	}
	for _, c := range m.columns {
		doc.Columns = append(doc.Columns, metadataColumn{Name: c, Type: m.types[c]})
	}
	for _, id := range m.samples {
		doc.Rows = append(doc.Rows, metadataRow{SampleID: id, Values: m.values[id]})
	}
	return json.Marshal(doc)
}

// UnmarshalJSON replaces m with the decoded document.
func (m *Metadata) UnmarshalJSON(data []byte) error {
	var doc metadataDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return err
	}
	*m = *NewMetadata()
	for _, c := range doc.Columns {
		m.AddColumn(c.Name, c.Type)
	}
	for _, r := range doc.Rows {
		m.SetRow(r.SampleID, r.Values)
	}
	return nil
}
