package testutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

// Fixture file contents mirroring NewFixtureDataset.
const (
	FixtureTaxonomyTSV = "Feature ID\tTaxon\n" +
		"f1\tk__Bacteria; p__Firmicutes; c__Bacilli\n" +
		"f2\tk__Bacteria; p__Firmicutes; c__Clostridia\n" +
		"f3\tk__Bacteria; p__Proteobacteria; c__Gamma\n" +
		"f4\tk__Archaea\n"
	FixtureFeatureCSV = "sampleID,f1,f2,f3,f4\n" +
		"s1,10,30,60,0\n" +
		"s2,5,0,0,5\n" +
		"s3,0,1,1,2\n"
	FixtureMetadataCSV = "sampleID,site,ph\n" +
		"#q2:types,categorical,numeric\n" +
		"s1,gut,6.5\n" +
		"s2,skin,5.1\n" +
		"s3,gut,7.0\n"
	FixtureSchemesCSV = "schemeName,colors\nmono,#000000;#444444;#888888\n"
)

// WriteFixtureFiles writes the fixture dataset into dir under the default
// file names and returns dir.
func WriteFixtureFiles(t testing.TB, dir string) string {
	t.Helper()
	for name, content := range map[string]string{
		"taxonomy.tsv":      FixtureTaxonomyTSV,
		"feature-table.csv": FixtureFeatureCSV,
		"metadata.csv":      FixtureMetadataCSV,
		"color-schemes.csv": FixtureSchemesCSV,
	} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
	}
	return dir
}
