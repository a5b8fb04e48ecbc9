// Package dataset holds the imported inputs of a barplot: the taxonomy rows,
// the feature table, sample metadata and color schemes.
package dataset

import (
	"math"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/colinvwood/taxa-barplot/internal/domain/controls"
	"github.com/colinvwood/taxa-barplot/internal/domain/sample"
	"github.com/colinvwood/taxa-barplot/internal/domain/taxonomy"
	"github.com/colinvwood/taxa-barplot/pkg/errors"
)

// Dataset is the unit of import and storage.
type Dataset struct {
	ID        string              `json:"id"`
	Name      string              `json:"name"`
	Rows      []taxonomy.Row      `json:"rows"`
	Samples   []sample.Sample     `json:"samples"`
	Metadata  *controls.Metadata  `json:"metadata,omitempty"`
	Schemes   map[string][]string `json:"schemes,omitempty"`
	CreatedAt time.Time           `json:"created_at"`
	UpdatedAt time.Time           `json:"updated_at"`
}

// Summary is the listing view of a Dataset.
type Summary struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	FeatureCount int       `json:"feature_count"`
	SampleCount  int       `json:"sample_count"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// New returns an empty dataset. An empty id is replaced by a fresh UUID.
func New(id, name string) *Dataset {
	if id == "" {
		id = uuid.New().String()
	}
	if name == "" {
		name = id
	}
	now := time.Now().UTC()
	return &Dataset{
		ID:        id,
		Name:      name,
		Metadata:  controls.NewMetadata(),
		Schemes:   make(map[string][]string),
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Validate checks that the parts of the dataset agree with each other:
// sample IDs are unique and every measured feature is classified.
func (d *Dataset) Validate() error {
	if d.ID == "" {
		return errors.New(errors.ErrCodeDatasetInvalid, "dataset id is empty")
	}
	if len(d.Rows) == 0 {
		return errors.New(errors.ErrCodeDatasetInvalid, "dataset has no taxonomy rows").
			WithDetailf("dataset=%q", d.ID)
	}
	classified := make(map[string]struct{}, len(d.Rows))
	for _, r := range d.Rows {
		classified[r.LeafID] = struct{}{}
	}
	seen := make(map[string]struct{}, len(d.Samples))
	for _, s := range d.Samples {
		if s.ID == "" {
			return errors.New(errors.ErrCodeDatasetInvalid, "sample id is empty").
				WithDetailf("dataset=%q", d.ID)
		}
		if _, dup := seen[s.ID]; dup {
			return errors.New(errors.ErrCodeDatasetInvalid, "duplicate sample id").
				WithDetailf("dataset=%q sample=%q", d.ID, s.ID)
		}
		seen[s.ID] = struct{}{}
		for _, f := range s.Features {
			if _, ok := classified[f.ID]; !ok {
				return errors.New(errors.ErrCodeDatasetInvalid, "feature has no taxonomy row").
					WithDetailf("dataset=%q sample=%q feature=%q", d.ID, s.ID, f.ID)
			}
			if math.IsNaN(f.Abundance) || math.IsInf(f.Abundance, 0) || f.Abundance < 0 {
				return errors.New(errors.ErrCodeDatasetInvalid, "abundance must be a finite non-negative number").
					WithDetailf("dataset=%q sample=%q feature=%q abundance=%v", d.ID, s.ID, f.ID, f.Abundance)
			}
		}
	}
	return nil
}

// BuildTree builds the taxon tree from the dataset rows.
func (d *Dataset) BuildTree() (*taxonomy.Tree, error) {
	return taxonomy.Build(d.Rows)
}

// FeatureIDs returns the distinct measured feature IDs, sorted.
func (d *Dataset) FeatureIDs() []string {
	set := make(map[string]struct{})
	for _, s := range d.Samples {
		for _, f := range s.Features {
			set[f.ID] = struct{}{}
		}
	}
	out := make([]string, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// Sample returns the sample called id.
func (d *Dataset) Sample(id string) (sample.Sample, bool) {
	for _, s := range d.Samples {
		if s.ID == id {
			return s, true
		}
	}
	return sample.Sample{}, false
}

// Summary returns the listing view of d.
func (d *Dataset) Summary() Summary {
	return Summary{
		ID:           d.ID,
		Name:         d.Name,
		FeatureCount: len(d.Rows),
		SampleCount:  len(d.Samples),
		CreatedAt:    d.CreatedAt,
		UpdatedAt:    d.UpdatedAt,
	}
}
