package sample

import (
	"github.com/colinvwood/taxa-barplot/internal/domain/taxonomy"
	"github.com/colinvwood/taxa-barplot/pkg/errors"
)

// Tallies accumulates per-taxon counts across every sample of a render pass.
type Tallies struct {
	Prevalence map[taxonomy.ID]int
	RelAbunSum map[taxonomy.ID]float64
}

// Tally counts, for every display taxon, the samples it appears in and the
// sum of its relative abundance over those samples.
func Tally(all [][]*ViewUnit) Tallies {
	t := Tallies{
		Prevalence: make(map[taxonomy.ID]int),
		RelAbunSum: make(map[taxonomy.ID]float64),
	}
	for _, units := range all {
		for _, u := range units {
			t.Prevalence[u.Taxon]++
			t.RelAbunSum[u.Taxon] += u.RelAbun
		}
	}
	return t
}

// Finalize writes the cross-sample statistics onto units. sampleCount is the
// number of samples in the pass, absent samples counting as zero abundance.
func Finalize(units []*ViewUnit, tallies Tallies, sampleCount int) error {
	if sampleCount <= 0 {
		return errors.New(errors.ErrCodeEmptyDataset, "cannot finalize statistics without samples").
			WithDetailf("sample_count=%d", sampleCount)
	}
	n := float64(sampleCount)
	for _, u := range units {
		u.Prevalence = tallies.Prevalence[u.Taxon]
		u.PrevalenceProportion = float64(u.Prevalence) / n
		u.MeanRelAbun = tallies.RelAbunSum[u.Taxon] / n
	}
	return nil
}

// Projection is one sample with its view units for the current render.
type Projection struct {
	Sample Sample      `json:"sample"`
	Units  []*ViewUnit `json:"units"`
}

// Unit returns the unit displaying taxon, or nil.
func (p *Projection) Unit(taxon taxonomy.ID) *ViewUnit {
	for _, u := range p.Units {
		if u.Taxon == taxon {
			return u
		}
	}
	return nil
}

// RelAbunOf returns the relative abundance of taxon in this sample, 0 when
// absent. Two units for one taxon are an invariant violation.
func (p *Projection) RelAbunOf(taxon taxonomy.ID) (float64, error) {
	var found *ViewUnit
	for _, u := range p.Units {
		if u.Taxon != taxon {
			continue
		}
		if found != nil {
			return 0, errors.New(errors.ErrCodeInvariantViolation, "sample holds two units for one taxon").
				WithDetailf("sample=%q taxon=%d", p.Sample.ID, taxon)
		}
		found = u
	}
	if found == nil {
		return 0, nil
	}
	return found.RelAbun, nil
}

// RelAbunOfName is RelAbunOf keyed by full taxonomic name.
func (p *Projection) RelAbunOfName(fullName string) float64 {
	for _, u := range p.Units {
		if u.FullName == fullName {
			return u.RelAbun
		}
	}
	return 0
}

// RelAbunSum totals the relative abundance of every unit; 1 for a non-empty
// sample, 0 otherwise.
func (p *Projection) RelAbunSum() float64 {
	var total float64
	for _, u := range p.Units {
		total += u.RelAbun
	}
	return total
}

// Project runs the full two-pass aggregation: every sample is projected and
// normalised, then statistics are tallied and written to every unit.
func Project(samples []Sample, r Resolver) ([]*Projection, error) {
	out := make([]*Projection, 0, len(samples))
	all := make([][]*ViewUnit, 0, len(samples))
	for _, s := range samples {
		units, err := ProjectSample(s, r)
		if err != nil {
			return nil, err
		}
		ComputeRelativeAbundance(units)
		out = append(out, &Projection{Sample: s, Units: units})
		all = append(all, units)
	}

	tallies := Tally(all)
	if len(samples) == 0 {
		return nil, Finalize(nil, tallies, 0)
	}
	for _, units := range all {
		if err := Finalize(units, tallies, len(samples)); err != nil {
			return nil, err
		}
	}
	return out, nil
}
