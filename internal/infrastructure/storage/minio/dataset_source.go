package minio

import (
	"context"
	stderrors "errors"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/colinvwood/taxa-barplot/internal/domain/dataset"
	"github.com/colinvwood/taxa-barplot/internal/infrastructure/ingest"
	"github.com/colinvwood/taxa-barplot/internal/infrastructure/monitoring/logging"
)

// DatasetSource loads a dataset whose files live under one object prefix.
type DatasetSource struct {
	client *Client
	prefix string
	files  ingest.Files
	id     string
	name   string
}

// NewDatasetSource keys the dataset files under prefix/id.
func NewDatasetSource(client *Client, prefix, id, name string, files ingest.Files) *DatasetSource {
	return &DatasetSource{
		client: client,
		prefix: path.Join(prefix, id),
		files:  files,
		id:     id,
		name:   name,
	}
}

func (s *DatasetSource) Prefix() string { return s.prefix }

// Load implements dataset.Source.
func (s *DatasetSource) Load(ctx context.Context) (*dataset.Dataset, error) {
	d, err := ingest.Load(ctx, s.client.Opener(s.prefix), s.files, s.id, s.name)
	if err != nil {
		return nil, err
	}
	s.client.logger.Info("Dataset loaded from object storage",
		logging.String("bucket", s.client.Bucket()),
		logging.String("prefix", s.prefix),
		logging.Int("features", len(d.Rows)),
		logging.Int("samples", len(d.Samples)))
	return d, nil
}

func contentType(name string) string {
	if strings.HasSuffix(name, ".tsv") {
		return "text/tab-separated-values"
	}
	return "text/csv"
}

// Upload copies the dataset files found in dir to the source prefix. Missing
// optional files are skipped; it returns the keys written.
func (s *DatasetSource) Upload(ctx context.Context, dir string) ([]string, error) {
	names := s.files.Names()
	var keys []string
	for i, name := range names {
		local := filepath.Join(dir, name)
		if _, err := os.Stat(local); err != nil {
			if stderrors.Is(err, fs.ErrNotExist) && i >= 2 {
				continue
			}
			return keys, err
		}
		key := path.Join(s.prefix, name)
		if err := s.client.UploadFile(ctx, key, local, contentType(name)); err != nil {
			return keys, err
		}
		keys = append(keys, key)
	}
	return keys, nil
}
