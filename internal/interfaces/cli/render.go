package cli

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/colinvwood/taxa-barplot/internal/application/barplot"
	"github.com/colinvwood/taxa-barplot/internal/domain/controls"
	"github.com/colinvwood/taxa-barplot/internal/domain/taxonomy"
	"github.com/colinvwood/taxa-barplot/pkg/errors"
)

type renderOptions struct {
	data          datasetFlags
	depth         int
	expand        []string
	collapse      []string
	maxRelAbun    float64
	minPrevalence float64
	sort          string
	ascending     bool
	scheme        string
	sampleSort    []string
	keep          []string
	labels        []string
}

func newRenderCmd() *cobra.Command {
	o := &renderOptions{}
	cmd := &cobra.Command{
		Use:   "render",
		Short: "Render per-sample view units at a display depth",
		Example: `  taxabar render --taxonomy taxonomy.tsv --features table.csv --depth 2
  taxabar render --dir ./data --expand 'k__Bacteria;p__Firmicutes=4' --max-rel-abun 0.5 -o table`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runRender(cmd, o)
		},
	}
	o.data.register(cmd)
	fl := cmd.Flags()
	fl.IntVar(&o.depth, "depth", 0, "display depth (default: view.default_display_depth)")
	fl.StringArrayVar(&o.expand, "expand", nil, "expand a taxon, as path=depth (repeatable)")
	fl.StringArrayVar(&o.collapse, "collapse", nil, "collapse a taxon into its ancestor, as path=depth (repeatable)")
	fl.Float64Var(&o.maxRelAbun, "max-rel-abun", 0, "drop view units whose relative abundance exceeds this")
	fl.Float64Var(&o.minPrevalence, "min-prevalence", 0, "drop view units present in fewer samples than this")
	fl.StringVar(&o.sort, "sort", "", "order view units by: abundance | prevalence")
	fl.BoolVar(&o.ascending, "ascending", false, "sort view units ascending")
	fl.StringVar(&o.scheme, "scheme", "", "color scheme")
	fl.StringArrayVar(&o.sampleSort, "sample-sort", nil, "sort samples by a metadata column; prefix with - for descending (repeatable)")
	fl.StringArrayVar(&o.keep, "keep", nil, "keep samples whose categorical column matches, as column=level[,level] (repeatable)")
	fl.StringArrayVar(&o.labels, "label", nil, "metadata column to print beside each sample (repeatable)")
	return cmd
}

// parseOverride splits "path=depth" at the last "=" since taxon names may
// contain one.
func parseOverride(s string) (string, int, error) {
	i := strings.LastIndex(s, "=")
	if i <= 0 || i == len(s)-1 {
		return "", 0, errors.InvalidParam("override must be path=depth").WithDetailf("value=%q", s)
	}
	depth, err := strconv.Atoi(strings.TrimSpace(s[i+1:]))
	if err != nil {
		return "", 0, errors.InvalidParam("override depth is not an integer").WithDetailf("value=%q", s)
	}
	return s[:i], depth, nil
}

func (o *renderOptions) options(flags interface{ Changed(string) bool }) (barplot.RenderOptions, error) {
	var opts barplot.RenderOptions
	if flags.Changed("max-rel-abun") {
		opts.Features.Filters = append(opts.Features.Filters, controls.FeatureFilterOption{
			Kind: "abundance", Operator: string(controls.Above), Value: o.maxRelAbun,
		})
	}
	if flags.Changed("min-prevalence") {
		opts.Features.Filters = append(opts.Features.Filters, controls.FeatureFilterOption{
			Kind: "prevalence", Operator: string(controls.Below), Value: o.minPrevalence,
			Prevalence: string(controls.PrevalenceAbsolute),
		})
	}
	switch o.sort {
	case "":
	case "abundance", string(controls.SortMeanRelAbun):
		opts.Features.Sort = string(controls.SortMeanRelAbun)
	case "prevalence":
		opts.Features.Sort = string(controls.SortPrevalence)
	default:
		return opts, errors.InvalidParam("unknown --sort").WithDetailf("sort=%q", o.sort)
	}
	opts.Features.Ascending = o.ascending

	for _, s := range o.sampleSort {
		asc := !strings.HasPrefix(s, "-")
		opts.Samples.Sorts = append(opts.Samples.Sorts, controls.SampleSortOption{
			Kind: "metadata", Column: strings.TrimPrefix(s, "-"), Ascending: asc,
		})
	}
	for _, k := range o.keep {
		col, levels, ok := strings.Cut(k, "=")
		if !ok || col == "" || levels == "" {
			return opts, errors.InvalidParam("--keep must be column=level[,level]").WithDetailf("value=%q", k)
		}
		opts.Samples.Filters = append(opts.Samples.Filters, controls.SampleFilterOption{
			Kind: "categorical", Column: col, Levels: strings.Split(levels, ","), Keep: true,
		})
	}
	opts.Samples.Labels = o.labels
	return opts, nil
}

func runRender(cmd *cobra.Command, o *renderOptions) error {
	cliCtx, err := GetCLIContext(cmd)
	if err != nil {
		return err
	}
	ctx, cancel := cliCtx.withTimeout(cmd.Context())
	defer cancel()

	opts, err := o.options(cmd.Flags())
	if err != nil {
		return err
	}
	src, err := o.data.source(cliCtx.Logger, true)
	if err != nil {
		return err
	}
	d, err := src.Load(ctx)
	if err != nil {
		return err
	}

	depth := cliCtx.Config.View.DefaultDisplayDepth
	if o.depth > 0 {
		depth = o.depth
	}
	svc := barplot.NewService(barplot.Options{
		DefaultDepth: depth,
		ColorScheme:  cliCtx.Config.View.ColorScheme,
		Logger:       cliCtx.Logger,
	})
	if err := svc.Load(ctx, d, "file"); err != nil {
		return err
	}
	if o.depth > 0 {
		out, err := svc.SetDisplayDepth(ctx, o.depth)
		if err != nil {
			return err
		}
		warnRejected(cmd, "depth", strconv.Itoa(o.depth), out)
	}
	if err := applyOverrides(ctx, cmd, o.expand, svc.RequestExpansion, "expand"); err != nil {
		return err
	}
	if err := applyOverrides(ctx, cmd, o.collapse, svc.RequestCollapse, "collapse"); err != nil {
		return err
	}
	if o.scheme != "" {
		if err := svc.SetColorScheme(ctx, o.scheme); err != nil {
			return err
		}
	}

	res, err := svc.Render(ctx, opts)
	if err != nil {
		return err
	}
	return PrintResult(cmd, renderReport{res})
}

func applyOverrides(ctx context.Context, cmd *cobra.Command, args []string,
	fn func(context.Context, string, int) (taxonomy.Outcome, error), what string) error {
	for _, arg := range args {
		path, depth, err := parseOverride(arg)
		if err != nil {
			return err
		}
		out, err := fn(ctx, path, depth)
		if err != nil {
			return err
		}
		warnRejected(cmd, what, arg, out)
	}
	return nil
}

func warnRejected(cmd *cobra.Command, what, target string, out taxonomy.Outcome) {
	if out.Accepted {
		return
	}
	PrintWarning(cmd, "%s %s rejected (%s): %s", what, target, out.Reason, out.Message)
}

// renderReport gives a RenderResult its text and table forms.
type renderReport struct {
	*barplot.RenderResult
}

func (r renderReport) String() string {
	var b strings.Builder
	bold := color.New(color.Bold).SprintFunc()
	fmt.Fprintf(&b, "dataset %s  depth %d  scheme %s  samples %d/%d\n",
		r.DatasetID, r.DisplayDepth, r.Scheme, len(r.Bars), r.TotalSamples)
	for _, ov := range r.Overrides {
		fmt.Fprintf(&b, "  override %s %s\n", ov.FullName, color.CyanString(ov.Override.String()))
	}
	for _, bar := range r.Bars {
		header := bar.SampleID
		if len(bar.Labels) > 0 {
			header += " [" + strings.Join(bar.Labels, ", ") + "]"
		}
		fmt.Fprintf(&b, "%s\n", bold(header))
		for _, u := range bar.Units {
			fmt.Fprintf(&b, "  %-50s %10s %7.2f%%  %s\n",
				u.FullName, formatAbundance(u.Abundance), u.RelAbun*100, u.Color)
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

func (r renderReport) TableHeaders() []string {
	return []string{"Sample", "Taxon", "Abundance", "Rel. abun.", "Prevalence", "Mean rel. abun.", "Color"}
}

func (r renderReport) TableRows() [][]string {
	var rows [][]string
	for _, bar := range r.Bars {
		for _, u := range bar.Units {
			rows = append(rows, []string{
				bar.SampleID,
				u.FullName,
				formatAbundance(u.Abundance),
				fmt.Sprintf("%.4f", u.RelAbun),
				strconv.Itoa(u.Prevalence),
				fmt.Sprintf("%.4f", u.MeanRelAbun),
				u.Color,
			})
		}
	}
	return rows
}

func formatAbundance(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
