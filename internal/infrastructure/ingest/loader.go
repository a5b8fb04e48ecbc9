package ingest

import (
	"context"
	stderrors "errors"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/colinvwood/taxa-barplot/internal/domain/dataset"
	"github.com/colinvwood/taxa-barplot/internal/infrastructure/monitoring/logging"
	"github.com/colinvwood/taxa-barplot/pkg/errors"
)

// Files names the dataset files relative to their location. Metadata and
// Schemes are optional: a missing file leaves that part empty.
type Files struct {
	Taxonomy     string
	FeatureTable string
	Metadata     string
	Schemes      string
}

// DefaultFiles are the names used when a directory holds a dataset.
var DefaultFiles = Files{
	Taxonomy:     "taxonomy.tsv",
	FeatureTable: "feature-table.csv",
	Metadata:     "metadata.csv",
	Schemes:      "color-schemes.csv",
}

func (f Files) withDefaults() Files {
	if f.Taxonomy == "" {
		f.Taxonomy = DefaultFiles.Taxonomy
	}
	if f.FeatureTable == "" {
		f.FeatureTable = DefaultFiles.FeatureTable
	}
	if f.Metadata == "" {
		f.Metadata = DefaultFiles.Metadata
	}
	if f.Schemes == "" {
		f.Schemes = DefaultFiles.Schemes
	}
	return f
}

// Names returns the file names in load order.
func (f Files) Names() []string {
	f = f.withDefaults()
	return []string{f.Taxonomy, f.FeatureTable, f.Metadata, f.Schemes}
}

// Opener opens one named dataset file. A missing file must be reported with
// an error matching fs.ErrNotExist.
type Opener func(ctx context.Context, name string) (io.ReadCloser, error)

// DirOpener opens files under dir.
func DirOpener(dir string) Opener {
	return func(_ context.Context, name string) (io.ReadCloser, error) {
		return os.Open(filepath.Join(dir, name))
	}
}

func parseFile[T any](ctx context.Context, open Opener, name string, optional bool, parse func(io.Reader) (T, error)) (T, bool, error) {
	var zero T
	rc, err := open(ctx, name)
	if err != nil {
		if optional && stderrors.Is(err, fs.ErrNotExist) {
			return zero, false, nil
		}
		if stderrors.Is(err, fs.ErrNotExist) {
			return zero, false, errors.Wrap(err, errors.ErrCodeDatasetNotFound, "dataset file not found").
				WithDetailf("file=%s", name)
		}
		return zero, false, errors.Wrap(err, errors.ErrCodeExternalService, "failed to open dataset file").
			WithDetailf("file=%s", name)
	}
	defer rc.Close()
	v, err := parse(rc)
	if err != nil {
		return zero, false, errors.Wrap(err, errors.CodeUnknown, "failed to parse dataset file").
			WithDetailf("file=%s", name)
	}
	return v, true, nil
}

// Load reads and validates a dataset through open.
func Load(ctx context.Context, open Opener, files Files, id, name string) (*dataset.Dataset, error) {
	files = files.withDefaults()
	d := dataset.New(id, name)

	rows, _, err := parseFile(ctx, open, files.Taxonomy, false, ParseTaxonomy)
	if err != nil {
		return nil, err
	}
	d.Rows = rows

	samples, _, err := parseFile(ctx, open, files.FeatureTable, false, ParseFeatureTable)
	if err != nil {
		return nil, err
	}
	d.Samples = samples

	if md, ok, err := parseFile(ctx, open, files.Metadata, true, ParseMetadata); err != nil {
		return nil, err
	} else if ok {
		d.Metadata = md
	}

	if schemes, ok, err := parseFile(ctx, open, files.Schemes, true, ParseSchemes); err != nil {
		return nil, err
	} else if ok {
		d.Schemes = schemes
	}

	if err := d.Validate(); err != nil {
		return nil, err
	}
	return d, nil
}

// LoadDirectory reads a dataset from files in dir.
func LoadDirectory(ctx context.Context, dir string, files Files, id, name string) (*dataset.Dataset, error) {
	return Load(ctx, DirOpener(dir), files, id, name)
}

// DirectorySource is a dataset.Source over a directory on disk. When ID is
// empty the ID generated by the first successful load is kept for later
// loads, so reloads of the same directory serve the same dataset.
type DirectorySource struct {
	Dir    string
	Files  Files
	ID     string
	Name   string
	Logger logging.Logger

	mu sync.Mutex
}

// Load implements dataset.Source.
func (s *DirectorySource) Load(ctx context.Context) (*dataset.Dataset, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, err := LoadDirectory(ctx, s.Dir, s.Files, s.ID, s.Name)
	if err != nil {
		return nil, err
	}
	if s.ID == "" {
		s.ID = d.ID
	}
	if s.Logger != nil {
		s.Logger.Info("Dataset loaded from directory",
			logging.String("dir", s.Dir),
			logging.String("dataset_id", d.ID),
			logging.Int("features", len(d.Rows)),
			logging.Int("samples", len(d.Samples)))
	}
	return d, nil
}
