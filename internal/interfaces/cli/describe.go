package cli

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/colinvwood/taxa-barplot/internal/application/barplot"
)

func newDescribeCmd() *cobra.Command {
	var data datasetFlags
	cmd := &cobra.Command{
		Use:   "describe <taxon>",
		Short: "Show a taxon's place in the tree",
		Long: "describe prints the depth, ancestors, children and leaf features of a taxon.\n" +
			"The taxon is its full semicolon-joined path. Only the taxonomy is required.",
		Example: `  taxabar describe --taxonomy taxonomy.tsv 'k__Bacteria;p__Firmicutes'`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cliCtx, err := GetCLIContext(cmd)
			if err != nil {
				return err
			}
			ctx, cancel := cliCtx.withTimeout(cmd.Context())
			defer cancel()

			src, err := data.source(cliCtx.Logger, false)
			if err != nil {
				return err
			}
			d, err := src.Load(ctx)
			if err != nil {
				return err
			}
			svc := barplot.NewService(barplot.Options{
				DefaultDepth: 1,
				ColorScheme:  cliCtx.Config.View.ColorScheme,
				Logger:       cliCtx.Logger,
			})
			if err := svc.Load(ctx, d, "file"); err != nil {
				return err
			}
			desc, err := svc.DescribeTaxon(ctx, args[0])
			if err != nil {
				return err
			}
			return PrintResult(cmd, taxonReport{desc})
		},
	}
	data.register(cmd)
	return cmd
}

type taxonReport struct {
	*barplot.TaxonDescription
}

func (r taxonReport) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s\n", color.New(color.Bold).Sprint(r.FullName))
	fmt.Fprintf(&b, "  name       %s\n", r.Name)
	fmt.Fprintf(&b, "  depth      %d\n", r.Depth)
	fmt.Fprintf(&b, "  leaves     %d\n", r.LeafCount)
	if len(r.Ancestors) > 0 {
		fmt.Fprintf(&b, "  ancestors  %s\n", strings.Join(r.Ancestors, " > "))
	}
	if len(r.Children) > 0 {
		fmt.Fprintf(&b, "  children   %s\n", strings.Join(r.Children, ", "))
	}
	if r.IsLeaf && len(r.LeafIDs) > 0 {
		fmt.Fprintf(&b, "  features   %s\n", strings.Join(r.LeafIDs, ", "))
	}
	if r.Override.IsActive() {
		fmt.Fprintf(&b, "  override   %s\n", color.CyanString(r.Override.String()))
	}
	return strings.TrimRight(b.String(), "\n")
}

func (r taxonReport) TableHeaders() []string {
	return []string{"Taxon", "Depth", "Leaves", "Children", "Leaf"}
}

func (r taxonReport) TableRows() [][]string {
	return [][]string{{
		r.FullName,
		strconv.Itoa(r.Depth),
		strconv.Itoa(r.LeafCount),
		strconv.Itoa(len(r.Children)),
		strconv.FormatBool(r.IsLeaf),
	}}
}
