package controls

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/colinvwood/taxa-barplot/pkg/errors"
)

func TestParseColumnType(t *testing.T) {
	cases := map[string]ColumnType{
		"categorical": Categorical,
		" Numeric ":   Numeric,
		"CATEGORICAL": Categorical,
	}
	for in, want := range cases {
		got, err := ParseColumnType(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := ParseColumnType("date")
	assert.True(t, errors.IsCode(err, errors.ErrCodeDatasetParse))
}

func TestMetadata_ColumnsAndValues(t *testing.T) {
	md := exampleMetadata()

	assert.Equal(t, []string{"site", "ph"}, md.Columns())
	assert.Equal(t, []string{"s1", "s2", "s3", "s4"}, md.SampleIDs())
	assert.Equal(t, 4, md.Len())

	typ, err := md.Type("ph")
	require.NoError(t, err)
	assert.Equal(t, Numeric, typ)

	_, err = md.Type("depth")
	assert.True(t, errors.IsNotFound(err))

	v, ok := md.Value("s2", "site")
	assert.True(t, ok)
	assert.Equal(t, "gut", v)

	_, ok = md.Value("s9", "site")
	assert.False(t, ok)

	f, ok := md.NumericValue("s1", "ph")
	assert.True(t, ok)
	assert.InDelta(t, 6.5, f, 1e-9)

	_, ok = md.NumericValue("s4", "ph")
	assert.False(t, ok, "empty numeric cell")

	assert.Equal(t, []string{"gut", "skin"}, md.Levels("site"))
}

func TestMetadata_SetRowCopiesAndReplaces(t *testing.T) {
	md := NewMetadata()
	md.AddColumn("site", Categorical)
	row := map[string]string{"site": "gut"}
	md.SetRow("s1", row)
	row["site"] = "skin"

	v, _ := md.Value("s1", "site")
	assert.Equal(t, "gut", v)

	md.SetRow("s1", map[string]string{"site": "oral"})
	v, _ = md.Value("s1", "site")
	assert.Equal(t, "oral", v)
	assert.Equal(t, 1, md.Len())

	md.AddColumn("site", Numeric)
	assert.Equal(t, []string{"site"}, md.Columns())
}

func TestMetadata_JSONRoundTrip(t *testing.T) {
	raw, err := json.Marshal(exampleMetadata())
	require.NoError(t, err)

	var md Metadata
	require.NoError(t, json.Unmarshal(raw, &md))
	assert.Equal(t, []string{"site", "ph"}, md.Columns())
	assert.Equal(t, []string{"s1", "s2", "s3", "s4"}, md.SampleIDs())
	typ, err := md.Type("ph")
	require.NoError(t, err)
	assert.Equal(t, Numeric, typ)
	v, _ := md.Value("s3", "site")
	assert.Equal(t, "skin", v)
}
