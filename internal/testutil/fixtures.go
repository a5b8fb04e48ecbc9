package testutil

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/colinvwood/taxa-barplot/internal/domain/controls"
	"github.com/colinvwood/taxa-barplot/internal/domain/dataset"
	"github.com/colinvwood/taxa-barplot/internal/domain/sample"
	"github.com/colinvwood/taxa-barplot/internal/domain/taxonomy"
	"github.com/colinvwood/taxa-barplot/pkg/errors"
)

// FixtureDatasetID names the dataset built by NewFixtureDataset.
const FixtureDatasetID = "fixture"

// NewFixtureDataset returns a small, valid dataset: four features under two
// phyla and three samples with metadata.
//
//	k__Bacteria; p__Firmicutes; c__Bacilli         f1
//	k__Bacteria; p__Firmicutes; c__Clostridia      f2
//	k__Bacteria; p__Proteobacteria; c__Gamma       f3
//	k__Archaea                                     f4
func NewFixtureDataset() *dataset.Dataset {
	d := dataset.New(FixtureDatasetID, "Fixture")
	d.CreatedAt = time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	d.UpdatedAt = d.CreatedAt
	d.Rows = []taxonomy.Row{
		{LeafID: "f1", Path: []string{"k__Bacteria", "p__Firmicutes", "c__Bacilli"}},
		{LeafID: "f2", Path: []string{"k__Bacteria", "p__Firmicutes", "c__Clostridia"}},
		{LeafID: "f3", Path: []string{"k__Bacteria", "p__Proteobacteria", "c__Gamma"}},
		{LeafID: "f4", Path: []string{"k__Archaea"}},
	}
	d.Samples = []sample.Sample{
		{ID: "s1", Features: []sample.Feature{{ID: "f1", Abundance: 10}, {ID: "f2", Abundance: 30}, {ID: "f3", Abundance: 60}}},
		{ID: "s2", Features: []sample.Feature{{ID: "f1", Abundance: 5}, {ID: "f4", Abundance: 5}}},
		{ID: "s3", Features: []sample.Feature{{ID: "f2", Abundance: 1}, {ID: "f3", Abundance: 1}, {ID: "f4", Abundance: 2}}},
	}
	md := controls.NewMetadata()
	md.AddColumn("site", controls.Categorical)
	md.AddColumn("ph", controls.Numeric)
	md.SetRow("s1", map[string]string{"site": "gut", "ph": "6.5"})
	md.SetRow("s2", map[string]string{"site": "skin", "ph": "5.1"})
	md.SetRow("s3", map[string]string{"site": "gut", "ph": "7.0"})
	d.Metadata = md
	d.Schemes = map[string][]string{"mono": {"#000000", "#444444", "#888888"}}
	return d
}

// MemoryRepository is a map-backed dataset.Repository.
type MemoryRepository struct {
	mu   sync.RWMutex
	data map[string]*dataset.Dataset
	// Err, when set, is returned by every call.
	Err error
}

var _ dataset.Repository = (*MemoryRepository)(nil)

func NewMemoryRepository(seed ...*dataset.Dataset) *MemoryRepository {
	r := &MemoryRepository{data: make(map[string]*dataset.Dataset)}
	for _, d := range seed {
		r.data[d.ID] = d
	}
	return r
}

func (r *MemoryRepository) Save(_ context.Context, d *dataset.Dataset) error {
	if r.Err != nil {
		return r.Err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.data[d.ID] = d
	return nil
}

func (r *MemoryRepository) Get(_ context.Context, id string) (*dataset.Dataset, error) {
	if r.Err != nil {
		return nil, r.Err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.data[id]
	if !ok {
		return nil, errors.New(errors.ErrCodeDatasetNotFound, "dataset not found").WithDetailf("dataset=%q", id)
	}
	return d, nil
}

func (r *MemoryRepository) List(_ context.Context) ([]dataset.Summary, error) {
	if r.Err != nil {
		return nil, r.Err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]dataset.Summary, 0, len(r.data))
	for _, d := range r.data {
		out = append(out, d.Summary())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *MemoryRepository) Delete(_ context.Context, id string) error {
	if r.Err != nil {
		return r.Err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.data[id]; !ok {
		return errors.New(errors.ErrCodeDatasetNotFound, "dataset not found").WithDetailf("dataset=%q", id)
	}
	delete(r.data, id)
	return nil
}
