package cli

import (
	"context"
	"io"
	"io/fs"
	"os"

	"github.com/spf13/cobra"

	"github.com/colinvwood/taxa-barplot/internal/domain/dataset"
	"github.com/colinvwood/taxa-barplot/internal/infrastructure/ingest"
	"github.com/colinvwood/taxa-barplot/internal/infrastructure/monitoring/logging"
	"github.com/colinvwood/taxa-barplot/pkg/errors"
)

// datasetFlags locates a dataset either as a directory of conventionally
// named files or as individual file paths.
type datasetFlags struct {
	Dir      string
	Taxonomy string
	Features string
	Metadata string
	Schemes  string
	ID       string
	Name     string
}

func (f *datasetFlags) register(cmd *cobra.Command) {
	fl := cmd.Flags()
	fl.StringVar(&f.Dir, "dir", "", "dataset directory holding taxonomy.tsv, feature-table.csv and optional metadata.csv, color-schemes.csv")
	fl.StringVar(&f.Taxonomy, "taxonomy", "", "taxonomy TSV (Feature ID, Taxon)")
	fl.StringVar(&f.Features, "features", "", "feature table CSV (one row per sample)")
	fl.StringVar(&f.Metadata, "metadata", "", "sample metadata CSV")
	fl.StringVar(&f.Schemes, "schemes", "", "color schemes CSV")
	fl.StringVar(&f.ID, "id", "", "dataset id (default: generated)")
	fl.StringVar(&f.Name, "name", "", "dataset display name")
}

// explicitOpener opens only the paths the user named. Anything else reads
// as missing so optional files are never picked up by accident.
func explicitOpener(paths ...string) ingest.Opener {
	allowed := make(map[string]struct{}, len(paths))
	for _, p := range paths {
		if p != "" {
			allowed[p] = struct{}{}
		}
	}
	return func(_ context.Context, name string) (io.ReadCloser, error) {
		if _, ok := allowed[name]; !ok {
			return nil, &fs.PathError{Op: "open", Path: name, Err: fs.ErrNotExist}
		}
		return os.Open(name)
	}
}

// source returns the dataset.Source described by the flags. requireFeatures
// is false for commands that only need the tree.
func (f *datasetFlags) source(log logging.Logger, requireFeatures bool) (dataset.Source, error) {
	if f.Dir != "" {
		if f.Taxonomy != "" || f.Features != "" {
			return nil, errors.InvalidParam("--dir cannot be combined with --taxonomy or --features")
		}
		return &ingest.DirectorySource{Dir: f.Dir, ID: f.ID, Name: f.Name, Logger: log}, nil
	}
	if f.Taxonomy == "" {
		return nil, errors.InvalidParam("either --dir or --taxonomy is required")
	}
	if f.Features == "" && requireFeatures {
		return nil, errors.InvalidParam("--features is required with --taxonomy")
	}

	return dataset.SourceFunc(func(ctx context.Context) (*dataset.Dataset, error) {
		if f.Features == "" {
			return f.treeOnly(ctx)
		}
		files := ingest.Files{
			Taxonomy:     f.Taxonomy,
			FeatureTable: f.Features,
			Metadata:     f.Metadata,
			Schemes:      f.Schemes,
		}
		open := explicitOpener(f.Taxonomy, f.Features, f.Metadata, f.Schemes)
		return ingest.Load(ctx, open, files, f.ID, f.Name)
	}), nil
}

// treeOnly loads a dataset with no samples; enough to inspect taxa.
func (f *datasetFlags) treeOnly(_ context.Context) (*dataset.Dataset, error) {
	fh, err := os.Open(f.Taxonomy)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeDatasetNotFound, "failed to open taxonomy").
			WithDetailf("file=%s", f.Taxonomy)
	}
	defer fh.Close()
	rows, err := ingest.ParseTaxonomy(fh)
	if err != nil {
		return nil, err
	}
	d := dataset.New(f.ID, f.Name)
	d.Rows = rows
	if err := d.Validate(); err != nil {
		return nil, err
	}
	return d, nil
}
