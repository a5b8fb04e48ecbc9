package controls

import (
	"fmt"
	"slices"
	"strings"

	"github.com/colinvwood/taxa-barplot/internal/domain/sample"
	"github.com/colinvwood/taxa-barplot/pkg/errors"
)

// MaxLabels bounds the metadata columns shown under each bar.
const MaxLabels = 3

type sampleSort struct {
	name string
	cmp  func(a, b *sample.Projection) int
}

type sampleFilter struct {
	name string
	keep func(*sample.Projection) bool
}

// SampleControls filters and orders the bars of a render. Sorts are chained:
// later sorts only break ties left by earlier ones.
type SampleControls struct {
	metadata *Metadata
	sorts    []sampleSort
	filters  []sampleFilter
	labels   []string
}

// NewSampleControls returns empty controls over md. A nil md behaves as
// metadata with no columns.
func NewSampleControls(md *Metadata) *SampleControls {
	if md == nil {
		md = NewMetadata()
	}
	return &SampleControls{metadata: md}
}

// Metadata returns the metadata the controls read.
func (c *SampleControls) Metadata() *Metadata { return c.metadata }

func direction(ascending bool) string {
	if ascending {
		return "ascending"
	}
	return "descending"
}

func compareFloat(x, y float64) int {
	switch {
	case x < y:
		return -1
	case x > y:
		return 1
	default:
		return 0
	}
}

// AddMetadataSort orders samples by a metadata column. Categorical columns
// sort lexically, numeric columns numerically. Samples without a value sort
// last in either direction.
func (c *SampleControls) AddMetadataSort(column string, ascending bool) (string, error) {
	typ, err := c.metadata.Type(column)
	if err != nil {
		return "", err
	}
	md := c.metadata
	var cmp func(a, b *sample.Projection) int
	if typ == Numeric {
		cmp = func(a, b *sample.Projection) int {
			x, okX := md.NumericValue(a.Sample.ID, column)
			y, okY := md.NumericValue(b.Sample.ID, column)
			if r, done := missingLast(okX, okY); done {
				return r
			}
			if !ascending {
				x, y = y, x
			}
			return compareFloat(x, y)
		}
	} else {
		cmp = func(a, b *sample.Projection) int {
			x, okX := md.Value(a.Sample.ID, column)
			y, okY := md.Value(b.Sample.ID, column)
			if r, done := missingLast(okX && x != "", okY && y != ""); done {
				return r
			}
			if !ascending {
				x, y = y, x
			}
			return strings.Compare(x, y)
		}
	}
	name := fmt.Sprintf("%s-%s", column, direction(ascending))
	c.sorts = append(c.sorts, sampleSort{name: name, cmp: cmp})
	return name, nil
}

func missingLast(hasX, hasY bool) (int, bool) {
	switch {
	case hasX && hasY:
		return 0, false
	case hasX:
		return -1, true
	case hasY:
		return 1, true
	default:
		return 0, true
	}
}

// AddAbundanceSort orders samples by the relative abundance of the view
// taxon named fullName. Ascending runs from low to high abundance.
func (c *SampleControls) AddAbundanceSort(fullName string, ascending bool) string {
	cmp := func(a, b *sample.Projection) int {
		x, y := a.RelAbunOfName(fullName), b.RelAbunOfName(fullName)
		if !ascending {
			x, y = y, x
		}
		return compareFloat(x, y)
	}
	name := fmt.Sprintf("%s-%s", fullName, direction(ascending))
	c.sorts = append(c.sorts, sampleSort{name: name, cmp: cmp})
	return name
}

// RemoveSort drops the first sort called name.
func (c *SampleControls) RemoveSort(name string) bool {
	for i, s := range c.sorts {
		if s.name == name {
			c.sorts = slices.Delete(c.sorts, i, i+1)
			return true
		}
	}
	return false
}

// Sorts returns the active sort names in precedence order.
func (c *SampleControls) Sorts() []string {
	out := make([]string, len(c.sorts))
	for i, s := range c.sorts {
		out[i] = s.name
	}
	return out
}

// ReorderSorts sets sort precedence. names must be exactly the active sort
// names in any order.
func (c *SampleControls) ReorderSorts(names []string) error {
	if len(c.sorts) == 0 && len(names) == 0 {
		return nil
	}
	if len(names) != len(c.sorts) {
		return errors.New(errors.ErrCodeSortOrderMismatch, "sort order does not list every active sort").
			WithDetailf("active=%v requested=%v", c.Sorts(), names)
	}
	byName := make(map[string]sampleSort, len(c.sorts))
	for _, s := range c.sorts {
		byName[s.name] = s
	}
	updated := make([]sampleSort, 0, len(names))
	for _, n := range names {
		s, ok := byName[n]
		if !ok {
			return errors.New(errors.ErrCodeSortOrderMismatch, "sort order names an inactive sort").
				WithDetailf("sort=%q", n)
		}
		delete(byName, n)
		updated = append(updated, s)
	}
	c.sorts = updated
	return nil
}

// AddCategoricalFilter keeps samples whose column value is in levels (keep)
// or not in levels (!keep).
func (c *SampleControls) AddCategoricalFilter(column string, levels []string, keep bool) (string, error) {
	typ, err := c.metadata.Type(column)
	if err != nil {
		return "", err
	}
	if typ != Categorical {
		return "", errors.New(errors.ErrCodeControlUnsupported, "categorical filter on a numeric column").
			WithDetailf("column=%q", column)
	}
	set := make(map[string]struct{}, len(levels))
	for _, l := range levels {
		set[l] = struct{}{}
	}
	md := c.metadata
	op := "NOT IN"
	if keep {
		op = "IN"
	}
	name := fmt.Sprintf("%s %s %s", column, op, strings.Join(levels, ","))
	c.filters = append(c.filters, sampleFilter{
		name: name,
		keep: func(p *sample.Projection) bool {
			v, _ := md.Value(p.Sample.ID, column)
			_, in := set[v]
			return in == keep
		},
	})
	return name, nil
}

// AddNumericFilter removes samples whose column value is above (Above) or
// below (Below) value. Samples without a numeric value are kept.
func (c *SampleControls) AddNumericFilter(column string, value float64, op Operator) (string, error) {
	if _, err := ParseOperator(string(op)); err != nil {
		return "", err
	}
	typ, err := c.metadata.Type(column)
	if err != nil {
		return "", err
	}
	if typ != Numeric {
		return "", errors.New(errors.ErrCodeControlUnsupported, "numeric filter on a categorical column").
			WithDetailf("column=%q", column)
	}
	md := c.metadata
	name := fmt.Sprintf("%s %s %s", column, op, formatValue(value))
	c.filters = append(c.filters, sampleFilter{
		name: name,
		keep: func(p *sample.Projection) bool {
			v, ok := md.NumericValue(p.Sample.ID, column)
			return !ok || op.keeps(v, value)
		},
	})
	return name, nil
}

// AddAbundanceFilter removes samples in which the view taxon fullName is
// above (Above) or below (Below) value.
func (c *SampleControls) AddAbundanceFilter(fullName string, value float64, op Operator) (string, error) {
	if _, err := ParseOperator(string(op)); err != nil {
		return "", err
	}
	name := fmt.Sprintf("%s %s %s", fullName, op, formatValue(value))
	c.filters = append(c.filters, sampleFilter{
		name: name,
		keep: func(p *sample.Projection) bool { return op.keeps(p.RelAbunOfName(fullName), value) },
	})
	return name, nil
}

// RemoveFilter drops the first filter called name.
func (c *SampleControls) RemoveFilter(name string) bool {
	for i, f := range c.filters {
		if f.name == name {
			c.filters = slices.Delete(c.filters, i, i+1)
			return true
		}
	}
	return false
}

// Filters returns the active filter names in order.
func (c *SampleControls) Filters() []string {
	out := make([]string, len(c.filters))
	for i, f := range c.filters {
		out[i] = f.name
	}
	return out
}

// AddLabel shows column under each bar.
func (c *SampleControls) AddLabel(column string) error {
	if _, err := c.metadata.Type(column); err != nil {
		return err
	}
	if slices.Contains(c.labels, column) {
		return nil
	}
	if len(c.labels) >= MaxLabels {
		return errors.New(errors.ErrCodeControlUnsupported, "too many sample labels").
			WithDetailf("max=%d", MaxLabels)
	}
	c.labels = append(c.labels, column)
	return nil
}

// RemoveLabel stops showing column.
func (c *SampleControls) RemoveLabel(column string) error {
	i := slices.Index(c.labels, column)
	if i < 0 {
		return errors.New(errors.ErrCodeMetadataNotFound, "column is not a label").
			WithDetailf("column=%q", column)
	}
	c.labels = slices.Delete(c.labels, i, i+1)
	return nil
}

// Labels returns the label columns in display order.
func (c *SampleControls) Labels() []string { return append([]string(nil), c.labels...) }

// LabelValues returns the label values for sampleID, "" where missing.
func (c *SampleControls) LabelValues(sampleID string) []string {
	out := make([]string, len(c.labels))
	for i, col := range c.labels {
		out[i], _ = c.metadata.Value(sampleID, col)
	}
	return out
}

// Apply returns the samples that pass every filter, stably ordered by the
// chained sorts. The input slice is not modified.
func (c *SampleControls) Apply(projections []*sample.Projection) []*sample.Projection {
	out := make([]*sample.Projection, 0, len(projections))
next:
	for _, p := range projections {
		for _, f := range c.filters {
			if !f.keep(p) {
				continue next
			}
		}
		out = append(out, p)
	}
	if len(c.sorts) == 0 {
		return out
	}
	slices.SortStableFunc(out, func(a, b *sample.Projection) int {
		for _, s := range c.sorts {
			if r := s.cmp(a, b); r != 0 {
				return r
			}
		}
		return 0
	})
	return out
}
