package barplot

import (
	"context"
	"time"

	"github.com/colinvwood/taxa-barplot/internal/domain/controls"
	"github.com/colinvwood/taxa-barplot/internal/domain/sample"
	"github.com/colinvwood/taxa-barplot/internal/domain/taxonomy"
	"github.com/colinvwood/taxa-barplot/internal/infrastructure/monitoring/logging"
	"github.com/colinvwood/taxa-barplot/pkg/errors"
)

// RenderOptions are the per-request controls of one render pass.
type RenderOptions struct {
	Features controls.FeatureOptions `json:"features"`
	Samples  controls.SampleOptions  `json:"samples"`
}

// Bar is one rendered sample: its view units in draw order.
type Bar struct {
	SampleID string             `json:"sample_id"`
	Labels   []string           `json:"labels,omitempty"`
	Units    []*sample.ViewUnit `json:"units"`
}

// LegendEntry pairs a displayed taxon with its color, in first-drawn order.
type LegendEntry struct {
	FullName string `json:"full_name"`
	Color    string `json:"color"`
}

// RenderResult is the output of one render pass.
type RenderResult struct {
	DatasetID      string                  `json:"dataset_id"`
	DisplayDepth   int                     `json:"display_depth"`
	Overrides      []taxonomy.NodeOverride `json:"overrides"`
	Scheme         string                  `json:"scheme"`
	TotalSamples   int                     `json:"total_samples"`
	Bars           []Bar                   `json:"bars"`
	Legend         []LegendEntry           `json:"legend"`
	SampleFilters  []string                `json:"sample_filters,omitempty"`
	SampleSorts    []string                `json:"sample_sorts,omitempty"`
	FeatureFilters []string                `json:"feature_filters,omitempty"`
	FeatureSort    string                  `json:"feature_sort"`
}

// Render recomputes every view unit from scratch under the service lock.
func (s *serviceImpl) Render(ctx context.Context, opts RenderOptions) (res *RenderResult, err error) {
	start := time.Now()
	defer func() {
		units, samples := 0, 0
		if res != nil {
			samples = len(res.Bars)
			for _, b := range res.Bars {
				units += len(b.Units)
			}
		}
		if s.metrics != nil {
			s.metrics.RecordRender(time.Since(start), samples, units, err)
		}
		if err != nil {
			s.recordError("render", err)
		}
	}()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.requireLoaded(); err != nil {
		return nil, err
	}

	fc, err := opts.Features.Build()
	if err != nil {
		return nil, err
	}
	md := s.current.Metadata
	if md == nil {
		md = controls.NewMetadata()
	}
	sc, err := opts.Samples.Build(md)
	if err != nil {
		return nil, err
	}

	res = &RenderResult{
		DatasetID:      s.current.ID,
		DisplayDepth:   s.projector.DisplayDepth(),
		Overrides:      s.projector.ActiveOverrides(),
		Scheme:         s.palette.Scheme(),
		TotalSamples:   len(s.current.Samples),
		Bars:           []Bar{},
		Legend:         []LegendEntry{},
		SampleFilters:  sc.Filters(),
		SampleSorts:    sc.Sorts(),
		FeatureFilters: fc.Filters(),
		FeatureSort:    fc.SortName(),
	}

	projections, err := sample.Project(s.current.Samples, s.projector)
	if errors.IsEmptyDataset(err) {
		s.logger.Warn("Render over an empty sample set", logging.String("dataset_id", s.current.ID))
		return res, nil
	}
	if err != nil {
		if errors.IsInvariantViolation(err) {
			s.logger.Error("Projection invariant violated",
				logging.String("dataset_id", s.current.ID), logging.Err(err))
		}
		return nil, err
	}

	s.palette.Reset()
	seen := make(map[string]struct{})
	for _, p := range sc.Apply(projections) {
		units := fc.Apply(p.Units)
		for _, u := range units {
			u.Color = s.palette.Color(u.FullName)
			if _, ok := seen[u.FullName]; !ok {
				seen[u.FullName] = struct{}{}
				res.Legend = append(res.Legend, LegendEntry{FullName: u.FullName, Color: u.Color})
			}
		}
		res.Bars = append(res.Bars, Bar{
			SampleID: p.Sample.ID,
			Labels:   sc.LabelValues(p.Sample.ID),
			Units:    units,
		})
	}

	s.logger.Debug("Render complete",
		logging.String("dataset_id", s.current.ID),
		logging.Int("bars", len(res.Bars)),
		logging.Int("legend", len(res.Legend)),
		logging.Duration("elapsed", time.Since(start)))
	return res, nil
}
