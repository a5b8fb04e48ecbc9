package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/colinvwood/taxa-barplot/internal/domain/dataset"
	"github.com/colinvwood/taxa-barplot/internal/infrastructure/monitoring/logging"
	"github.com/colinvwood/taxa-barplot/pkg/errors"
)

func newDatasetsCmd() *cobra.Command {
	var store string
	cmd := &cobra.Command{
		Use:   "datasets",
		Short: "Manage stored datasets",
	}
	cmd.PersistentFlags().StringVar(&store, "store", "", "dataset store: sqlite | postgres (default: dataset.source, else sqlite)")

	list := &cobra.Command{
		Use:   "list",
		Short: "List stored datasets",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cliCtx, err := GetCLIContext(cmd)
			if err != nil {
				return err
			}
			ctx, cancel := cliCtx.withTimeout(cmd.Context())
			defer cancel()

			stack, err := openStack(cmd, cliCtx, store, false)
			if err != nil {
				return err
			}
			defer closeStack(stack, cliCtx.Logger)

			sums, err := stack.Repository.List(ctx)
			if err != nil {
				return err
			}
			return PrintResult(cmd, datasetList(sums))
		},
	}

	del := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a stored dataset",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cliCtx, err := GetCLIContext(cmd)
			if err != nil {
				return err
			}
			ctx, cancel := cliCtx.withTimeout(cmd.Context())
			defer cancel()
			if strings.TrimSpace(args[0]) == "" {
				return errors.InvalidParam("dataset id is required")
			}

			stack, err := openStack(cmd, cliCtx, store, false)
			if err != nil {
				return err
			}
			defer closeStack(stack, cliCtx.Logger)

			if err := stack.Repository.Delete(ctx, args[0]); err != nil {
				return err
			}
			cliCtx.Logger.Info("Dataset deleted", logging.String("dataset_id", args[0]))
			fmt.Fprintf(cmd.OutOrStdout(), "deleted %s\n", args[0])
			return nil
		},
	}

	cmd.AddCommand(list, del)
	return cmd
}

type datasetList []dataset.Summary

func (l datasetList) String() string {
	if len(l) == 0 {
		return "no datasets"
	}
	var b strings.Builder
	for _, s := range l {
		fmt.Fprintf(&b, "%-36s  %-24s  %5d features  %5d samples\n", s.ID, s.Name, s.FeatureCount, s.SampleCount)
	}
	return strings.TrimRight(b.String(), "\n")
}

func (l datasetList) TableHeaders() []string { return summaryHeaders() }

func (l datasetList) TableRows() [][]string {
	rows := make([][]string, 0, len(l))
	for _, s := range l {
		rows = append(rows, summaryRow(s))
	}
	return rows
}
