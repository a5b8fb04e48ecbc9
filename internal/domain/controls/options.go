package controls

import (
	"github.com/colinvwood/taxa-barplot/pkg/errors"
)

// FeatureFilterOption is the wire form of one unit filter.
type FeatureFilterOption struct {
	Kind       string  `json:"kind"` // abundance | prevalence
	Operator   string  `json:"operator"`
	Value      float64 `json:"value"`
	Prevalence string  `json:"prevalence,omitempty"` // absolute | proportion
}

// FeatureOptions is the wire form of FeatureControls.
type FeatureOptions struct {
	Filters   []FeatureFilterOption `json:"filters,omitempty"`
	Sort      string                `json:"sort,omitempty"`
	Ascending bool                  `json:"ascending,omitempty"`
}

// Build turns o into FeatureControls.
func (o FeatureOptions) Build() (*FeatureControls, error) {
	c := NewFeatureControls()
	for _, f := range o.Filters {
		op, err := ParseOperator(f.Operator)
		if err != nil {
			return nil, err
		}
		switch f.Kind {
		case "abundance":
			_, err = c.AddAbundanceFilter(f.Value, op)
		case "prevalence":
			kind := PrevalenceKind(f.Prevalence)
			if kind == "" {
				kind = PrevalenceAbsolute
			}
			_, err = c.AddPrevalenceFilter(f.Value, kind, op)
		default:
			err = unsupported("feature filter", f.Kind)
		}
		if err != nil {
			return nil, err
		}
	}
	if o.Sort != "" {
		if err := c.SetSort(FeatureSortKey(o.Sort), o.Ascending); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// SampleSortOption is the wire form of one sample sort.
type SampleSortOption struct {
	Kind      string `json:"kind"` // metadata | abundance
	Column    string `json:"column,omitempty"`
	Taxon     string `json:"taxon,omitempty"`
	Ascending bool   `json:"ascending,omitempty"`
}

// SampleFilterOption is the wire form of one sample filter.
type SampleFilterOption struct {
	Kind     string   `json:"kind"` // categorical | numeric | abundance
	Column   string   `json:"column,omitempty"`
	Taxon    string   `json:"taxon,omitempty"`
	Levels   []string `json:"levels,omitempty"`
	Keep     bool     `json:"keep,omitempty"`
	Operator string   `json:"operator,omitempty"`
	Value    float64  `json:"value,omitempty"`
}

// SampleOptions is the wire form of SampleControls.
type SampleOptions struct {
	Sorts   []SampleSortOption   `json:"sorts,omitempty"`
	Filters []SampleFilterOption `json:"filters,omitempty"`
	Labels  []string             `json:"labels,omitempty"`
}

// Build turns o into SampleControls over md.
func (o SampleOptions) Build(md *Metadata) (*SampleControls, error) {
	c := NewSampleControls(md)
	for _, s := range o.Sorts {
		var err error
		switch s.Kind {
		case "metadata":
			_, err = c.AddMetadataSort(s.Column, s.Ascending)
		case "abundance":
			c.AddAbundanceSort(s.Taxon, s.Ascending)
		default:
			err = unsupported("sample sort", s.Kind)
		}
		if err != nil {
			return nil, err
		}
	}
	for _, f := range o.Filters {
		var err error
		switch f.Kind {
		case "categorical":
			_, err = c.AddCategoricalFilter(f.Column, f.Levels, f.Keep)
		case "numeric":
			_, err = c.AddNumericFilter(f.Column, f.Value, Operator(f.Operator))
		case "abundance":
			_, err = c.AddAbundanceFilter(f.Taxon, f.Value, Operator(f.Operator))
		default:
			err = unsupported("sample filter", f.Kind)
		}
		if err != nil {
			return nil, err
		}
	}
	for _, l := range o.Labels {
		if err := c.AddLabel(l); err != nil {
			return nil, err
		}
	}
	return c, nil
}

func unsupported(what, kind string) error {
	return errors.New(errors.ErrCodeControlUnsupported, "unsupported "+what).
		WithDetailf("kind=%q", kind)
}
