package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/couchcryptid/monitoring-gap-etl/internal/adapter/csvsource"
	"github.com/couchcryptid/monitoring-gap-etl/internal/adapter/filesink"
	"github.com/couchcryptid/monitoring-gap-etl/internal/domain"
	"github.com/couchcryptid/monitoring-gap-etl/internal/observability"
	"github.com/couchcryptid/monitoring-gap-etl/internal/pipeline"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
)

const (
	outputTable = "table"
	outputJSON  = "json"
)

func newAnalyzeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "analyze",
		Short: "Analyze sources and print the missing-observation report",
		Long: `Analyze one or more monitoring sources and print, per source, the missing
dates per site, the dates several sites missed together, and the spatial
clusters of co-missing sites.

Examples:
  # Two sources, coordinates taken from the castnet files
  gapreport analyze --source castnet=castnet.csv --source nadp=nadp.csv

  # Sources from a manifest, CSV exports written to ./out
  gapreport analyze --sources sources.yaml --out ./out --format json`,
		RunE: runAnalyze,
	}
	addManifestFlags(cmd)
	cmd.Flags().Float64("distance", domain.DefaultThresholdKm, "cluster distance threshold in kilometres")
	cmd.Flags().Int("cadence-days", 7, "expected days between observations")
	cmd.Flags().Duration("budget", 0, "time budget per clustered date (0 disables)")
	cmd.Flags().Int("grid-min-sites", 64, "missing-site count from which clustering uses a spatial grid (0 disables)")
	cmd.Flags().Int("ranking", 10, "number of sites in each ranking list")
	cmd.Flags().Int("parallel", 4, "sources analyzed concurrently")
	cmd.Flags().String("format", outputTable, "stdout format: table or json")
	cmd.Flags().String("out", "", "also export per-source CSV tables to this directory")
	return cmd
}

// analyzeOptions are the validated analysis flags.
type analyzeOptions struct {
	analysis domain.AnalysisOptions
	parallel int
	format   string
	outDir   string
}

func analyzeOptionsFromFlags(cmd *cobra.Command) (analyzeOptions, error) {
	f := cmd.Flags()
	distance, _ := f.GetFloat64("distance")
	cadenceDays, _ := f.GetInt("cadence-days")
	budget, _ := f.GetDuration("budget")
	gridMin, _ := f.GetInt("grid-min-sites")
	ranking, _ := f.GetInt("ranking")
	parallel, _ := f.GetInt("parallel")
	format, _ := f.GetString("format")
	outDir, _ := f.GetString("out")

	switch {
	case distance < 0:
		return analyzeOptions{}, fmt.Errorf("invalid --distance %v: must not be negative", distance)
	case cadenceDays <= 0:
		return analyzeOptions{}, fmt.Errorf("invalid --cadence-days %d: must be positive", cadenceDays)
	case budget < 0:
		return analyzeOptions{}, fmt.Errorf("invalid --budget %v: must not be negative", budget)
	case gridMin < 0:
		return analyzeOptions{}, fmt.Errorf("invalid --grid-min-sites %d: must not be negative", gridMin)
	case ranking < 0:
		return analyzeOptions{}, fmt.Errorf("invalid --ranking %d: must not be negative", ranking)
	case parallel <= 0:
		return analyzeOptions{}, fmt.Errorf("invalid --parallel %d: must be positive", parallel)
	case format != outputTable && format != outputJSON:
		return analyzeOptions{}, fmt.Errorf("invalid --format %q: want %s or %s", format, outputTable, outputJSON)
	}

	return analyzeOptions{
		analysis: domain.AnalysisOptions{
			Stride:  time.Duration(cadenceDays) * 24 * time.Hour,
			Cluster: domain.ClusterOptions{
				ThresholdKm:  distance,
				Budget:       budget,
				GridMinSites: gridMin,
			},
			RankingSize: ranking,
		},
		parallel: parallel,
		format:   format,
		outDir:   outDir,
	}, nil
}

func runAnalyze(cmd *cobra.Command, _ []string) error {
	logger, err := newLogger(cmd)
	if err != nil {
		return err
	}
	opts, err := analyzeOptionsFromFlags(cmd)
	if err != nil {
		return err
	}
	manifest, err := manifestFromFlags(cmd)
	if err != nil {
		return err
	}

	var loaders []pipeline.Loader
	if opts.outDir != "" {
		loaders = append(loaders, filesink.NewWriter(opts.outDir, filesink.FormatCSV, logger))
	}

	analyzer := pipeline.NewAnalyzer(opts.analysis, nil, logger)
	metrics := observability.NewMetricsWithRegistry(prometheus.NewRegistry())
	p := pipeline.New(manifest, csvsource.NewReader(logger), analyzer, loaders, logger, metrics, opts.parallel)

	report, runErr := p.Run(cmd.Context())
	if report.FinishedAt.IsZero() {
		return runErr
	}

	out := cmd.OutOrStdout()
	if opts.format == outputJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		if err := enc.Encode(report); err != nil {
			return fmt.Errorf("write report: %w", err)
		}
	} else if err := printReport(out, report, opts.analysis.Cluster.ThresholdKm); err != nil {
		return fmt.Errorf("write report: %w", err)
	}

	if runErr != nil {
		return runErr
	}
	if n := failedSources(report); n > 0 {
		return fmt.Errorf("%d of %d sources failed", n, len(report.Sources))
	}
	return nil
}

func failedSources(report domain.RunReport) int {
	n := 0
	for _, s := range report.Sources {
		if s.Failed() {
			n++
		}
	}
	return n
}

// printReport renders every source as aligned text tables.
func printReport(w io.Writer, report domain.RunReport, thresholdKm float64) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	for i, src := range report.Sources {
		if i > 0 {
			fmt.Fprintln(tw)
		}
		if src.Failed() {
			fmt.Fprintf(tw, "== %s: FAILED: %s\n", src.Source, src.Error)
			continue
		}
		fmt.Fprintf(tw, "== %s (%d sites, %d rows read)\n", src.Source, len(src.Sites), src.Stats.RowsRead)

		fmt.Fprintln(tw, "\nMissing per site")
		fmt.Fprintln(tw, "SITE_ID\tRANGE_START\tRANGE_END\tMISSING\tMISSING_DATES")
		for _, s := range src.Sites {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\n", s.SiteID, day(s.RangeStart), day(s.RangeEnd), s.MissingCount(), days(s.MissingDates))
		}

		fmt.Fprintln(tw, "\nCorrelated dates")
		fmt.Fprintln(tw, "DATE\tSITES\tSITE_IDS")
		for _, c := range src.Correlations {
			fmt.Fprintf(tw, "%s\t%d\t%s\n", day(c.Date), c.SiteCount, list(c.SiteIDs))
		}

		fmt.Fprintf(tw, "\nClusters within %g km\n", thresholdKm)
		fmt.Fprintln(tw, "DATE\tSITES\tSITE_IDS")
		for _, c := range src.Clusters {
			fmt.Fprintf(tw, "%s\t%d\t%s\n", day(c.Date), len(c.SiteIDs), list(c.SiteIDs))
		}
		if len(src.SkippedDates) > 0 {
			fmt.Fprintf(tw, "skipped (budget exceeded): %s\n", days(src.SkippedDates))
		}
		if src.Stats.CoordinateMisses > 0 {
			fmt.Fprintf(tw, "sites without coordinates: %d\n", src.Stats.CoordinateMisses)
		}

		fmt.Fprintln(tw, "\nMost missing")
		fmt.Fprintln(tw, "RANK\tSITE_ID\tMONTHS\tMISSING")
		for rank, r := range src.Ranking.Top {
			fmt.Fprintf(tw, "%d\t%s\t%d\t%d\n", rank+1, r.SiteID, r.Months, r.MissingCount)
		}
		fmt.Fprintf(tw, "no loss: %d sites %s\n", src.Ranking.NoLossTotal, list(src.Ranking.NoLoss))
	}
	return tw.Flush()
}

func day(t time.Time) string { return t.Format(time.DateOnly) }

func days(ts []time.Time) string {
	if len(ts) == 0 {
		return "None"
	}
	out := make([]string, len(ts))
	for i, t := range ts {
		out[i] = day(t)
	}
	return strings.Join(out, ", ")
}

func list(items []string) string {
	if len(items) == 0 {
		return "None"
	}
	return strings.Join(items, ", ")
}
