// Package ingest reads dataset files: the TSV taxonomy, the CSV feature
// table, CSV sample metadata and CSV color schemes.
package ingest

import (
	"encoding/csv"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/colinvwood/taxa-barplot/internal/domain/controls"
	"github.com/colinvwood/taxa-barplot/internal/domain/sample"
	"github.com/colinvwood/taxa-barplot/internal/domain/taxonomy"
	"github.com/colinvwood/taxa-barplot/pkg/errors"
)

// Taxonomy file header names.
const (
	FeatureIDHeader = "Feature ID"
	TaxonHeader     = "Taxon"
)

// Color scheme file header names.
const (
	SchemeNameHeader   = "schemeName"
	SchemeColorsHeader = "colors"
	colorDelimiter     = ";"
)

func newReader(r io.Reader, comma rune) *csv.Reader {
	cr := csv.NewReader(r)
	cr.Comma = comma
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true
	cr.TrimLeadingSpace = true
	return cr
}

func parseErr(file, msg string) *errors.AppError {
	return errors.New(errors.ErrCodeDatasetParse, msg).WithDetailf("file=%s", file)
}

func readHeader(cr *csv.Reader, file string) ([]string, error) {
	header, err := cr.Read()
	if err == io.EOF {
		return nil, parseErr(file, "file is empty")
	}
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeDatasetParse, "failed to read header").
			WithDetailf("file=%s", file)
	}
	for i := range header {
		header[i] = strings.TrimSpace(strings.TrimPrefix(header[i], "\ufeff"))
	}
	return header, nil
}

func columnIndex(header []string, name string) int {
	for i, h := range header {
		if strings.EqualFold(h, name) {
			return i
		}
	}
	return -1
}

func cell(record []string, i int) string {
	if i < 0 || i >= len(record) {
		return ""
	}
	return strings.TrimSpace(record[i])
}

// ParseTaxonomy reads a tab-separated taxonomy with "Feature ID" and
// "Taxon" columns. Other columns are ignored, as are directive rows whose
// first cell starts with "#".
func ParseTaxonomy(r io.Reader) ([]taxonomy.Row, error) {
	const file = "taxonomy"
	cr := newReader(r, '\t')
	header, err := readHeader(cr, file)
	if err != nil {
		return nil, err
	}
	idCol, taxonCol := columnIndex(header, FeatureIDHeader), columnIndex(header, TaxonHeader)
	if idCol < 0 || taxonCol < 0 {
		return nil, parseErr(file, "missing required column").
			WithDetailf("file=%s want=%q,%q got=%v", file, FeatureIDHeader, TaxonHeader, header)
	}

	var rows []taxonomy.Row
	for line := 2; ; line++ {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeDatasetParse, "failed to read row").
				WithDetailf("file=%s line=%d", file, line)
		}
		id := cell(rec, idCol)
		if id == "" || strings.HasPrefix(id, "#") {
			continue
		}
		rows = append(rows, taxonomy.Row{LeafID: id, Path: taxonomy.ParsePath(cell(rec, taxonCol))})
	}
	return rows, nil
}

// ParseFeatureTable reads a CSV with one row per sample: the sample ID
// column first, then one column per feature. Empty and zero cells are
// dropped. Negative or non-finite values are rejected.
func ParseFeatureTable(r io.Reader) ([]sample.Sample, error) {
	const file = "feature table"
	cr := newReader(r, ',')
	header, err := readHeader(cr, file)
	if err != nil {
		return nil, err
	}
	if len(header) < 2 {
		return nil, parseErr(file, "feature table has no feature columns")
	}
	features := header[1:]

	var samples []sample.Sample
	for line := 2; ; line++ {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeDatasetParse, "failed to read row").
				WithDetailf("file=%s line=%d", file, line)
		}
		id := cell(rec, 0)
		if id == "" {
			continue
		}
		s := sample.Sample{ID: id}
		for i, fid := range features {
			raw := cell(rec, i+1)
			if raw == "" {
				continue
			}
			v, err := strconv.ParseFloat(raw, 64)
			if err != nil {
				return nil, errors.New(errors.ErrCodeDatasetParse, "abundance is not a number").
					WithDetailf("file=%s line=%d sample=%q column=%q value=%q", file, line, id, fid, raw)
			}
			if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
				return nil, errors.New(errors.ErrCodeDatasetParse, "abundance must be a finite non-negative number").
					WithDetailf("file=%s line=%d sample=%q column=%q value=%q", file, line, id, fid, raw)
			}
			if v > 0 {
				s.Features = append(s.Features, sample.Feature{ID: fid, Abundance: v})
			}
		}
		samples = append(samples, s)
	}
	return samples, nil
}

// ParseMetadata reads sample metadata. The sampleID column may sit anywhere
// (the first column is used when no column is named sampleID). When the first
// data row is the "#q2:types" row it declares each column's type; otherwise a
// column is numeric when every non-empty value parses as a number.
func ParseMetadata(r io.Reader) (*controls.Metadata, error) {
	const file = "metadata"
	cr := newReader(r, ',')
	header, err := readHeader(cr, file)
	if err != nil {
		return nil, err
	}
	idCol := columnIndex(header, controls.SampleIDColumn)
	if idCol < 0 {
		idCol = 0
	}

	var (
		types   map[string]controls.ColumnType
		records [][]string
	)
	for line := 2; ; line++ {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeDatasetParse, "failed to read row").
				WithDetailf("file=%s line=%d", file, line)
		}
		id := cell(rec, idCol)
		if id == controls.TypesRowID {
			if types != nil || len(records) > 0 {
				return nil, parseErr(file, "types row must be the first data row").
					WithDetailf("file=%s line=%d", file, line)
			}
			types = make(map[string]controls.ColumnType, len(header))
			for i, col := range header {
				if i == idCol {
					continue
				}
				t, err := controls.ParseColumnType(cell(rec, i))
				if err != nil {
					return nil, errors.Wrap(err, errors.CodeUnknown, "invalid types row").
						WithDetailf("file=%s column=%q", file, col)
				}
				types[col] = t
			}
			continue
		}
		if id == "" {
			continue
		}
		records = append(records, rec)
	}

	md := controls.NewMetadata()
	for i, col := range header {
		if i == idCol {
			continue
		}
		t, ok := types[col]
		if !ok {
			t = inferType(records, i)
		}
		md.AddColumn(col, t)
	}
	for _, rec := range records {
		values := make(map[string]string, len(header)-1)
		for i, col := range header {
			if i == idCol {
				continue
			}
			values[col] = cell(rec, i)
		}
		md.SetRow(cell(rec, idCol), values)
	}
	return md, nil
}

func inferType(records [][]string, col int) controls.ColumnType {
	seen := false
	for _, rec := range records {
		v := cell(rec, col)
		if v == "" {
			continue
		}
		if _, err := strconv.ParseFloat(v, 64); err != nil {
			return controls.Categorical
		}
		seen = true
	}
	if !seen {
		return controls.Categorical
	}
	return controls.Numeric
}

// ParseSchemes reads named color schemes from a CSV with "schemeName" and
// "colors" columns, colors separated by ";".
func ParseSchemes(r io.Reader) (map[string][]string, error) {
	const file = "color schemes"
	cr := newReader(r, ',')
	header, err := readHeader(cr, file)
	if err != nil {
		return nil, err
	}
	nameCol, colorsCol := columnIndex(header, SchemeNameHeader), columnIndex(header, SchemeColorsHeader)
	if nameCol < 0 || colorsCol < 0 {
		return nil, parseErr(file, "missing required column").
			WithDetailf("file=%s want=%q,%q got=%v", file, SchemeNameHeader, SchemeColorsHeader, header)
	}

	schemes := make(map[string][]string)
	for line := 2; ; line++ {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeDatasetParse, "failed to read row").
				WithDetailf("file=%s line=%d", file, line)
		}
		name := cell(rec, nameCol)
		if name == "" {
			continue
		}
		var colors []string
		for _, c := range strings.Split(cell(rec, colorsCol), colorDelimiter) {
			if c = strings.TrimSpace(c); c != "" {
				colors = append(colors, c)
			}
		}
		if len(colors) == 0 {
			return nil, parseErr(file, "color scheme has no colors").
				WithDetailf("file=%s line=%d scheme=%q", file, line, name)
		}
		schemes[name] = colors
	}
	return schemes, nil
}
