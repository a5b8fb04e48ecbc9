package sample_test

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/colinvwood/taxa-barplot/internal/domain/sample"
	"github.com/colinvwood/taxa-barplot/internal/domain/taxonomy"
	"github.com/colinvwood/taxa-barplot/pkg/errors"
)

const epsilon = 1e-9

func exampleProjector(t *testing.T, depth int) *taxonomy.Projector {
	t.Helper()
	tree, err := taxonomy.Build([]taxonomy.Row{
		{LeafID: "f1", Path: taxonomy.ParsePath("a;b;c1")},
		{LeafID: "f2", Path: taxonomy.ParsePath("a;b;c2")},
		{LeafID: "f3", Path: taxonomy.ParsePath("a;x;y")},
	})
	require.NoError(t, err)
	return taxonomy.NewProjector(tree, depth)
}

func exampleSample() sample.Sample {
	return sample.Sample{ID: "s1", Features: []sample.Feature{
		{ID: "f1", Abundance: 0.2},
		{ID: "f2", Abundance: 0.3},
		{ID: "f3", Abundance: 0.5},
	}}
}

type mockResolver struct {
	mock.Mock
}

func (m *mockResolver) ResolveFeature(leafID string) (taxonomy.Resolution, error) {
	args := m.Called(leafID)
	return args.Get(0).(taxonomy.Resolution), args.Error(1)
}

func (m *mockResolver) Taxon(id taxonomy.ID) (taxonomy.Taxon, error) {
	args := m.Called(id)
	return args.Get(0).(taxonomy.Taxon), args.Error(1)
}

func TestProjectSample_BasicGrouping(t *testing.T) {
	t.Parallel()
	p := exampleProjector(t, 2)

	units, err := sample.ProjectSample(exampleSample(), p)
	require.NoError(t, err)
	sample.ComputeRelativeAbundance(units)

	require.Len(t, units, 2)
	assert.Equal(t, "a;b", units[0].FullName)
	assert.Equal(t, "b", units[0].Name)
	assert.Equal(t, 2, units[0].Depth)
	assert.InDelta(t, 0.5, units[0].Abundance, epsilon)
	assert.InDelta(t, 0.5, units[0].RelAbun, epsilon)
	assert.Equal(t, []sample.Feature{{ID: "f1", Abundance: 0.2}, {ID: "f2", Abundance: 0.3}}, units[0].Features)

	assert.Equal(t, "a;x", units[1].FullName)
	assert.InDelta(t, 0.5, units[1].Abundance, epsilon)
	assert.InDelta(t, 0.5, units[1].RelAbun, epsilon)
}

func TestProjectSample_FirstEncounterOrder(t *testing.T) {
	t.Parallel()
	p := exampleProjector(t, 2)

	s := sample.Sample{ID: "s2", Features: []sample.Feature{
		{ID: "f3", Abundance: 1},
		{ID: "f1", Abundance: 1},
		{ID: "f2", Abundance: 2},
	}}
	units, err := sample.ProjectSample(s, p)
	require.NoError(t, err)
	require.Len(t, units, 2)
	assert.Equal(t, "a;x", units[0].FullName)
	assert.Equal(t, "a;b", units[1].FullName)
	assert.Equal(t, 3.0, units[1].Abundance)
}

func TestProjectSample_CarriesOverrideFlags(t *testing.T) {
	t.Parallel()
	p := exampleProjector(t, 1)
	a, err := p.Tree().FindByPath("a")
	require.NoError(t, err)
	out, err := p.RequestExpansion(a, 2)
	require.NoError(t, err)
	require.True(t, out.Accepted)

	units, err := sample.ProjectSample(exampleSample(), p)
	require.NoError(t, err)
	require.Len(t, units, 2)
	for _, u := range units {
		assert.True(t, u.Expanded, u.FullName)
		assert.False(t, u.Collapsed, u.FullName)
	}
}

func TestProjectSample_UnknownFeature(t *testing.T) {
	t.Parallel()
	p := exampleProjector(t, 2)

	s := sample.Sample{ID: "s3", Features: []sample.Feature{{ID: "f1", Abundance: 1}, {ID: "ghost", Abundance: 2}}}
	_, err := sample.ProjectSample(s, p)
	require.Error(t, err)
	assert.True(t, errors.IsNotFound(err))
	assert.Contains(t, err.Error(), `feature="ghost"`)
}

func TestProjectSample_ResolverFailurePropagates(t *testing.T) {
	t.Parallel()
	r := new(mockResolver)
	r.On("ResolveFeature", "f1").
		Return(taxonomy.Resolution{Taxon: taxonomy.NoTaxon}, errors.New(errors.ErrCodeInvariantViolation, "two holders"))

	_, err := sample.ProjectSample(sample.Sample{ID: "s", Features: []sample.Feature{{ID: "f1", Abundance: 1}}}, r)
	require.Error(t, err)
	assert.True(t, errors.IsInvariantViolation(err))
	r.AssertExpectations(t)
}

func TestProjectSample_LooksUpEachTaxonOnce(t *testing.T) {
	t.Parallel()
	r := new(mockResolver)
	r.On("ResolveFeature", mock.Anything).Return(taxonomy.Resolution{Taxon: 7}, nil)
	r.On("Taxon", taxonomy.ID(7)).Return(taxonomy.Taxon{ID: 7, Name: "g", FullName: "k;g", Depth: 2}, nil).Once()

	s := sample.Sample{ID: "s", Features: []sample.Feature{{ID: "f1", Abundance: 1}, {ID: "f2", Abundance: 3}}}
	units, err := sample.ProjectSample(s, r)
	require.NoError(t, err)
	require.Len(t, units, 1)
	assert.Equal(t, 4.0, units[0].Abundance)
	r.AssertExpectations(t)
}

func TestComputeRelativeAbundance_ZeroTotal(t *testing.T) {
	t.Parallel()

	units := []*sample.ViewUnit{{Abundance: 0}, {Abundance: 0}}
	sample.ComputeRelativeAbundance(units)
	for _, u := range units {
		assert.Equal(t, 0.0, u.RelAbun)
		assert.False(t, math.IsNaN(u.RelAbun))
	}
	assert.NotPanics(t, func() { sample.ComputeRelativeAbundance(nil) })
}

func TestProperty_RelativeAbundanceClosure(t *testing.T) {
	t.Parallel()
	rng := rand.New(rand.NewSource(11))
	ids := []string{"f1", "f2", "f3"}

	for depth := 1; depth <= 3; depth++ {
		p := exampleProjector(t, depth)
		for round := 0; round < 50; round++ {
			s := sample.Sample{ID: "s"}
			for _, id := range ids {
				if rng.Intn(4) > 0 {
					s.Features = append(s.Features, sample.Feature{ID: id, Abundance: rng.Float64() * 1000})
				}
			}
			units, err := sample.ProjectSample(s, p)
			require.NoError(t, err)
			sample.ComputeRelativeAbundance(units)

			var sum float64
			for _, u := range units {
				sum += u.RelAbun
			}
			if s.TotalAbundance() > 0 {
				assert.InDelta(t, 1.0, sum, epsilon)
			} else {
				assert.Equal(t, 0.0, sum)
			}
		}
	}
}

func TestSample_Helpers(t *testing.T) {
	t.Parallel()

	s := sample.Sample{ID: "s", Features: []sample.Feature{{ID: "b", Abundance: 1}, {ID: "a", Abundance: 2}, {ID: "b", Abundance: 3}}}
	assert.Equal(t, 6.0, s.TotalAbundance())
	assert.Equal(t, []string{"a", "b"}, s.FeatureIDs())
}
