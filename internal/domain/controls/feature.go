// Package controls filters and orders what a render shows: the view units
// stacked inside each bar and the bars (samples) themselves.
package controls

import (
	"fmt"
	"slices"
	"strconv"

	"github.com/colinvwood/taxa-barplot/internal/domain/sample"
	"github.com/colinvwood/taxa-barplot/pkg/errors"
)

// Operator is the comparison used by threshold filters. Above removes items
// whose value exceeds the threshold; Below removes items under it.
type Operator string

const (
	Above Operator = ">"
	Below Operator = "<"
)

// ParseOperator accepts ">" and "<".
func ParseOperator(s string) (Operator, error) {
	switch Operator(s) {
	case Above, Below:
		return Operator(s), nil
	default:
		return "", errors.New(errors.ErrCodeControlUnsupported, "unknown filter operator").
			WithDetailf("operator=%q", s)
	}
}

// keeps reports whether value survives a filter with threshold.
func (o Operator) keeps(value, threshold float64) bool {
	if o == Above {
		return value <= threshold
	}
	return value >= threshold
}

// PrevalenceKind selects which prevalence statistic a filter reads.
type PrevalenceKind string

const (
	PrevalenceAbsolute   PrevalenceKind = "absolute"
	PrevalenceProportion PrevalenceKind = "proportion"
)

// FeatureSortKey selects the statistic view units are ordered by.
type FeatureSortKey string

const (
	SortMeanRelAbun FeatureSortKey = "mean relative abundance"
	SortPrevalence  FeatureSortKey = "prevalence"
)

type unitFilter struct {
	name string
	keep func(*sample.ViewUnit) bool
}

// FeatureControls filters and orders the view units of one bar.
type FeatureControls struct {
	filters   []unitFilter
	sortKey   FeatureSortKey
	ascending bool
}

// NewFeatureControls returns controls with no filters, sorted by mean
// relative abundance descending.
func NewFeatureControls() *FeatureControls {
	return &FeatureControls{sortKey: SortMeanRelAbun}
}

func formatValue(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

// AddAbundanceFilter filters on per-sample relative abundance and returns
// the filter name.
func (c *FeatureControls) AddAbundanceFilter(value float64, op Operator) (string, error) {
	if _, err := ParseOperator(string(op)); err != nil {
		return "", err
	}
	name := fmt.Sprintf("abundance %s %s", op, formatValue(value))
	c.filters = append(c.filters, unitFilter{
		name: name,
		keep: func(u *sample.ViewUnit) bool { return op.keeps(u.RelAbun, value) },
	})
	return name, nil
}

// AddPrevalenceFilter filters on absolute prevalence or prevalence proportion.
func (c *FeatureControls) AddPrevalenceFilter(value float64, kind PrevalenceKind, op Operator) (string, error) {
	if _, err := ParseOperator(string(op)); err != nil {
		return "", err
	}
	var read func(*sample.ViewUnit) float64
	switch kind {
	case PrevalenceAbsolute:
		read = func(u *sample.ViewUnit) float64 { return float64(u.Prevalence) }
	case PrevalenceProportion:
		read = func(u *sample.ViewUnit) float64 { return u.PrevalenceProportion }
	default:
		return "", errors.New(errors.ErrCodeControlUnsupported, "unknown prevalence kind").
			WithDetailf("kind=%q", kind)
	}
	name := fmt.Sprintf("%s-prevalence-%s-%s", kind, op, formatValue(value))
	c.filters = append(c.filters, unitFilter{
		name: name,
		keep: func(u *sample.ViewUnit) bool { return op.keeps(read(u), value) },
	})
	return name, nil
}

// RemoveFilter drops the first filter called name.
func (c *FeatureControls) RemoveFilter(name string) bool {
	for i, f := range c.filters {
		if f.name == name {
			c.filters = slices.Delete(c.filters, i, i+1)
			return true
		}
	}
	return false
}

// Filters returns the active filter names in order.
func (c *FeatureControls) Filters() []string {
	out := make([]string, len(c.filters))
	for i, f := range c.filters {
		out[i] = f.name
	}
	return out
}

// SetSort replaces the unit ordering.
func (c *FeatureControls) SetSort(key FeatureSortKey, ascending bool) error {
	switch key {
	case SortMeanRelAbun, SortPrevalence:
	default:
		return errors.New(errors.ErrCodeControlUnsupported, "unknown feature sort").
			WithDetailf("sort=%q", key)
	}
	c.sortKey, c.ascending = key, ascending
	return nil
}

// SortName describes the active ordering, e.g. "prevalence ascending".
func (c *FeatureControls) SortName() string {
	dir := "descending"
	if c.ascending {
		dir = "ascending"
	}
	return fmt.Sprintf("%s %s", c.sortKey, dir)
}

func (c *FeatureControls) compare(a, b *sample.ViewUnit) int {
	var x, y float64
	if c.sortKey == SortPrevalence {
		x, y = float64(a.Prevalence), float64(b.Prevalence)
	} else {
		x, y = a.MeanRelAbun, b.MeanRelAbun
	}
	if !c.ascending {
		x, y = y, x
	}
	switch {
	case x < y:
		return -1
	case x > y:
		return 1
	default:
		return 0
	}
}

// Apply returns the units that pass every filter, stably ordered. The input
// slice is not modified.
func (c *FeatureControls) Apply(units []*sample.ViewUnit) []*sample.ViewUnit {
	out := make([]*sample.ViewUnit, 0, len(units))
next:
	for _, u := range units {
		for _, f := range c.filters {
			if !f.keep(u) {
				continue next
			}
		}
		out = append(out, u)
	}
	slices.SortStableFunc(out, c.compare)
	return out
}
