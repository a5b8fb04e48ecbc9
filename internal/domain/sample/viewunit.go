package sample

import (
	"github.com/colinvwood/taxa-barplot/internal/domain/taxonomy"
	"github.com/colinvwood/taxa-barplot/pkg/errors"
)

// Resolver is the part of the view projector the aggregator needs.
type Resolver interface {
	ResolveFeature(leafID string) (taxonomy.Resolution, error)
	Taxon(id taxonomy.ID) (taxonomy.Taxon, error)
}

// ViewUnit is the render-scoped aggregate of every feature of one sample that
// currently displays as the same taxon.
type ViewUnit struct {
	Taxon     taxonomy.ID `json:"taxon"`
	Name      string      `json:"name"`
	FullName  string      `json:"full_name"`
	Depth     int         `json:"depth"`
	Features  []Feature   `json:"features"`
	Abundance float64     `json:"abundance"`
	RelAbun   float64     `json:"rel_abun"`

	Prevalence           int     `json:"prevalence"`
	PrevalenceProportion float64 `json:"prevalence_proportion"`
	MeanRelAbun          float64 `json:"mean_rel_abun"`

	Expanded  bool   `json:"expanded,omitempty"`
	Collapsed bool   `json:"collapsed,omitempty"`
	Color     string `json:"color,omitempty"`
}

// ProjectSample groups the features of s by display taxon. Units appear in
// the order their taxon is first encountered among s.Features.
func ProjectSample(s Sample, r Resolver) ([]*ViewUnit, error) {
	byTaxon := make(map[taxonomy.ID]*ViewUnit)
	units := make([]*ViewUnit, 0)

	for _, f := range s.Features {
		res, err := r.ResolveFeature(f.ID)
		if err != nil {
			return nil, errors.Wrap(err, errors.CodeUnknown, "failed to project sample").
				WithDetailf("sample=%q feature=%q", s.ID, f.ID)
		}
		u, ok := byTaxon[res.Taxon]
		if !ok {
			taxon, err := r.Taxon(res.Taxon)
			if err != nil {
				return nil, err
			}
			u = &ViewUnit{
				Taxon:     res.Taxon,
				Name:      taxon.Name,
				FullName:  taxon.FullName,
				Depth:     taxon.Depth,
				Expanded:  res.Expanded,
				Collapsed: res.Collapsed,
			}
			byTaxon[res.Taxon] = u
			units = append(units, u)
		}
		u.Features = append(u.Features, f)
		u.Abundance += f.Abundance
	}
	return units, nil
}

// ComputeRelativeAbundance sets RelAbun on each unit to its share of the
// summed abundance. A zero total yields 0 for every unit.
func ComputeRelativeAbundance(units []*ViewUnit) {
	var total float64
	for _, u := range units {
		total += u.Abundance
	}
	for _, u := range units {
		if total == 0 {
			u.RelAbun = 0
			continue
		}
		u.RelAbun = u.Abundance / total
	}
}
