package cli

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/colinvwood/taxa-barplot/internal/application/barplot"
	"github.com/colinvwood/taxa-barplot/internal/bootstrap"
	"github.com/colinvwood/taxa-barplot/internal/config"
	"github.com/colinvwood/taxa-barplot/internal/domain/dataset"
	"github.com/colinvwood/taxa-barplot/internal/infrastructure/ingest"
	"github.com/colinvwood/taxa-barplot/internal/infrastructure/monitoring/logging"
	minioinfra "github.com/colinvwood/taxa-barplot/internal/infrastructure/storage/minio"
	"github.com/colinvwood/taxa-barplot/pkg/errors"
)

// resolveStore falls back to SQLite when neither the flag nor the config
// names a store.
func resolveStore(cfg *config.Config, flag string) string {
	if flag != "" {
		return flag
	}
	switch cfg.Dataset.Source {
	case config.SourceSQLite, config.SourcePostgres:
		return cfg.Dataset.Source
	}
	return bootstrap.StoreSQLite
}

func openStack(cmd *cobra.Command, cliCtx *CLIContext, store string, objectStore bool) (*bootstrap.Stack, error) {
	return bootstrap.Open(cmd.Context(), cliCtx.Config, cliCtx.Logger, bootstrap.Options{
		Store:       resolveStore(cliCtx.Config, store),
		ObjectStore: objectStore,
	})
}

type importOptions struct {
	data   datasetFlags
	store  string
	upload bool
}

func newImportCmd() *cobra.Command {
	o := &importOptions{}
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Parse a dataset and save it to the dataset store",
		Long: "import parses and validates a dataset, then saves it under the import lock.\n" +
			"With --upload the files under --dir are also copied to object storage\n" +
			"below dataset.object_prefix so a server can load them from there.",
		Example: `  taxabar import --dir ./data --id gut-survey --name "Gut survey"
  taxabar import --dir ./data --id gut-survey --store postgres --upload -c config.yaml`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runImport(cmd, o)
		},
	}
	o.data.register(cmd)
	cmd.Flags().StringVar(&o.store, "store", "", "dataset store: sqlite | postgres (default: dataset.source, else sqlite)")
	cmd.Flags().BoolVar(&o.upload, "upload", false, "also upload the --dir files to object storage")
	return cmd
}

func runImport(cmd *cobra.Command, o *importOptions) error {
	cliCtx, err := GetCLIContext(cmd)
	if err != nil {
		return err
	}
	ctx, cancel := cliCtx.withTimeout(cmd.Context())
	defer cancel()

	if o.upload && o.data.Dir == "" {
		return errors.InvalidParam("--upload requires --dir")
	}
	src, err := o.data.source(cliCtx.Logger, true)
	if err != nil {
		return err
	}

	stack, err := openStack(cmd, cliCtx, o.store, o.upload)
	if err != nil {
		return err
	}
	defer closeStack(stack, cliCtx.Logger)

	svc := barplot.NewService(stack.ServiceOptions())
	sum, err := svc.Import(ctx, src, bootstrap.SourceFile)
	if err != nil {
		return err
	}

	report := importReport{Summary: sum}
	if o.upload {
		up := minioinfra.NewDatasetSource(stack.MinIO, cliCtx.Config.Dataset.ObjectPrefix, sum.ID, sum.Name, ingest.Files{})
		keys, err := up.Upload(ctx, o.data.Dir)
		if err != nil {
			return err
		}
		report.Uploaded = keys
	}
	return PrintResult(cmd, report)
}

func closeStack(s *bootstrap.Stack, log logging.Logger) {
	if err := s.Close(); err != nil {
		log.Warn("Failed to close backends", logging.Err(err))
	}
}

type importReport struct {
	*dataset.Summary
	Uploaded []string `json:"uploaded,omitempty"`
}

func (r importReport) String() string {
	s := fmt.Sprintf("imported %s (%s): %d features, %d samples",
		r.ID, r.Name, r.FeatureCount, r.SampleCount)
	for _, k := range r.Uploaded {
		s += "\n  uploaded " + k
	}
	return s
}

func (r importReport) TableHeaders() []string { return summaryHeaders() }
func (r importReport) TableRows() [][]string  { return [][]string{summaryRow(*r.Summary)} }

func summaryHeaders() []string {
	return []string{"ID", "Name", "Features", "Samples", "Updated"}
}

func summaryRow(s dataset.Summary) []string {
	return []string{
		s.ID,
		s.Name,
		strconv.Itoa(s.FeatureCount),
		strconv.Itoa(s.SampleCount),
		s.UpdatedAt.Format(time.RFC3339),
	}
}
