package controls

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/colinvwood/taxa-barplot/internal/domain/sample"
	"github.com/colinvwood/taxa-barplot/pkg/errors"
)

func exampleMetadata() *Metadata {
	md := NewMetadata()
	md.AddColumn("site", Categorical)
	md.AddColumn("ph", Numeric)
	md.SetRow("s1", map[string]string{"site": "gut", "ph": "6.5"})
	md.SetRow("s2", map[string]string{"site": "gut", "ph": "7.2"})
	md.SetRow("s3", map[string]string{"site": "skin", "ph": "5.1"})
	md.SetRow("s4", map[string]string{"site": "skin", "ph": ""})
	return md
}

func proj(id string, firmicutes float64) *sample.Projection {
	return &sample.Projection{
		Sample: sample.Sample{ID: id},
		Units: []*sample.ViewUnit{
			{FullName: "k;Firmicutes", RelAbun: firmicutes},
			{FullName: "k;Bacteroidetes", RelAbun: 1 - firmicutes},
		},
	}
}

func projections() []*sample.Projection {
	return []*sample.Projection{
		proj("s1", 0.2),
		proj("s2", 0.9),
		proj("s3", 0.5),
		proj("s4", 0.7),
	}
}

func ids(ps []*sample.Projection) []string {
	out := make([]string, len(ps))
	for i, p := range ps {
		out[i] = p.Sample.ID
	}
	return out
}

func TestSampleControls_NoControlsKeepsInputOrder(t *testing.T) {
	c := NewSampleControls(nil)
	assert.Equal(t, []string{"s1", "s2", "s3", "s4"}, ids(c.Apply(projections())))
	assert.Equal(t, 0, c.Metadata().Len())
}

func TestSampleControls_MetadataSort(t *testing.T) {
	c := NewSampleControls(exampleMetadata())

	name, err := c.AddMetadataSort("ph", true)
	require.NoError(t, err)
	assert.Equal(t, "ph-ascending", name)
	assert.Equal(t, []string{"s3", "s1", "s2", "s4"}, ids(c.Apply(projections())))

	require.True(t, c.RemoveSort(name))
	_, err = c.AddMetadataSort("ph", false)
	require.NoError(t, err)
	assert.Equal(t, []string{"s2", "s1", "s3", "s4"}, ids(c.Apply(projections())), "missing values stay last")

	_, err = c.AddMetadataSort("depth", true)
	assert.True(t, errors.IsNotFound(err))
}

func TestSampleControls_ChainedSorts(t *testing.T) {
	c := NewSampleControls(exampleMetadata())

	site, err := c.AddMetadataSort("site", false)
	require.NoError(t, err)
	abun := c.AddAbundanceSort("k;Firmicutes", true)
	assert.Equal(t, "k;Firmicutes-ascending", abun)

	// skin first, then gut; ties broken by Firmicutes low to high.
	assert.Equal(t, []string{"s3", "s4", "s1", "s2"}, ids(c.Apply(projections())))

	require.NoError(t, c.ReorderSorts([]string{abun, site}))
	assert.Equal(t, []string{abun, site}, c.Sorts())
	assert.Equal(t, []string{"s1", "s3", "s4", "s2"}, ids(c.Apply(projections())))
}

func TestSampleControls_ReorderSortsMismatch(t *testing.T) {
	c := NewSampleControls(exampleMetadata())
	assert.NoError(t, c.ReorderSorts(nil))

	a, _ := c.AddMetadataSort("site", true)
	b := c.AddAbundanceSort("k;Firmicutes", false)

	err := c.ReorderSorts([]string{a})
	assert.True(t, errors.IsCode(err, errors.ErrCodeSortOrderMismatch))

	err = c.ReorderSorts([]string{a, "ph-ascending"})
	assert.True(t, errors.IsConflict(err))

	err = c.ReorderSorts([]string{a, a})
	assert.Error(t, err)

	assert.Equal(t, []string{a, b}, c.Sorts(), "failed reorder leaves sorts untouched")
}

func TestSampleControls_CategoricalFilter(t *testing.T) {
	c := NewSampleControls(exampleMetadata())

	name, err := c.AddCategoricalFilter("site", []string{"gut"}, true)
	require.NoError(t, err)
	assert.Equal(t, "site IN gut", name)
	assert.Equal(t, []string{"s1", "s2"}, ids(c.Apply(projections())))

	require.True(t, c.RemoveFilter(name))
	name, err = c.AddCategoricalFilter("site", []string{"gut"}, false)
	require.NoError(t, err)
	assert.Equal(t, "site NOT IN gut", name)
	assert.Equal(t, []string{"s3", "s4"}, ids(c.Apply(projections())))

	_, err = c.AddCategoricalFilter("ph", []string{"7"}, true)
	assert.True(t, errors.IsCode(err, errors.ErrCodeControlUnsupported))
}

func TestSampleControls_NumericFilter(t *testing.T) {
	c := NewSampleControls(exampleMetadata())

	name, err := c.AddNumericFilter("ph", 7, Above)
	require.NoError(t, err)
	assert.Equal(t, "ph > 7", name)
	assert.Equal(t, []string{"s1", "s3", "s4"}, ids(c.Apply(projections())), "samples without a value are kept")

	_, err = c.AddNumericFilter("site", 1, Above)
	assert.True(t, errors.IsCode(err, errors.ErrCodeControlUnsupported))
	_, err = c.AddNumericFilter("ph", 1, Operator("!="))
	assert.True(t, errors.IsValidation(err))
}

func TestSampleControls_AbundanceFilter(t *testing.T) {
	c := NewSampleControls(nil)

	name, err := c.AddAbundanceFilter("k;Firmicutes", 0.5, Below)
	require.NoError(t, err)
	assert.Equal(t, "k;Firmicutes < 0.5", name)
	assert.Equal(t, []string{"s2", "s3", "s4"}, ids(c.Apply(projections())))
	assert.Equal(t, []string{name}, c.Filters())
	assert.False(t, c.RemoveFilter("other"))
}

func TestSampleControls_Labels(t *testing.T) {
	md := exampleMetadata()
	md.AddColumn("host", Categorical)
	md.AddColumn("age", Numeric)
	c := NewSampleControls(md)

	require.NoError(t, c.AddLabel("site"))
	require.NoError(t, c.AddLabel("ph"))
	require.NoError(t, c.AddLabel("site"), "re-adding is a no-op")
	require.NoError(t, c.AddLabel("host"))
	err := c.AddLabel("age")
	assert.True(t, errors.IsCode(err, errors.ErrCodeControlUnsupported))
	assert.True(t, errors.IsNotFound(c.AddLabel("nope")))

	assert.Equal(t, []string{"site", "ph", "host"}, c.Labels())
	assert.Equal(t, []string{"skin", "", ""}, c.LabelValues("s4"))

	require.NoError(t, c.RemoveLabel("ph"))
	assert.True(t, errors.IsNotFound(c.RemoveLabel("ph")))
	assert.Equal(t, []string{"site", "host"}, c.Labels())
}

func TestSampleOptions_Build(t *testing.T) {
	c, err := SampleOptions{
		Sorts: []SampleSortOption{
			{Kind: "metadata", Column: "site"},
			{Kind: "abundance", Taxon: "k;Firmicutes", Ascending: true},
		},
		Filters: []SampleFilterOption{
			{Kind: "categorical", Column: "site", Levels: []string{"gut", "skin"}, Keep: true},
			{Kind: "numeric", Column: "ph", Operator: ">", Value: 7},
			{Kind: "abundance", Taxon: "k;Firmicutes", Operator: "<", Value: 0.1},
		},
		Labels: []string{"site"},
	}.Build(exampleMetadata())
	require.NoError(t, err)

	assert.Equal(t, []string{"site-descending", "k;Firmicutes-ascending"}, c.Sorts())
	assert.Len(t, c.Filters(), 3)
	assert.Equal(t, []string{"site"}, c.Labels())
	assert.Equal(t, []string{"s3", "s4", "s1"}, ids(c.Apply(projections())))

	_, err = SampleOptions{Sorts: []SampleSortOption{{Kind: "random"}}}.Build(nil)
	assert.True(t, errors.IsCode(err, errors.ErrCodeControlUnsupported))
	_, err = SampleOptions{Labels: []string{"missing"}}.Build(nil)
	assert.True(t, errors.IsNotFound(err))
}
