package domain

import (
	"context"
	"fmt"
	"time"
)

// AnalysisOptions configures one source analysis.
type AnalysisOptions struct {
	Columns     ObservationColumns
	Stride      time.Duration
	Cluster     ClusterOptions
	RankingSize int
}

// AnalyzeSource runs reconciliation, temporal correlation and spatial
// clustering for one source table. A structural error is recorded on the
// returned report (Err and Error) and leaves every result set empty; row and
// site level problems only show up in Stats.
func AnalyzeSource(ctx context.Context, t RawTable, idx CoordinateIndex, opts AnalysisOptions) SourceReport {
	report := SourceReport{Source: t.Source}

	observations, stats, err := ParseObservations(t, opts.Columns)
	if err != nil {
		return report.fail(err)
	}
	samples, err := CountSamples(t, opts.Columns)
	if err != nil {
		return report.fail(err)
	}

	records, reconcileStats := Reconcile(observations, opts.Stride)
	stats.Add(reconcileStats)

	groups := GroupByDate(records)
	clusters, err := ClusterDates(ctx, groups, idx, opts.Cluster)
	if err != nil {
		return report.fail(fmt.Errorf("source %q: %w", t.Source, err))
	}
	stats.CoordinateMisses = clusters.CoordinateMisses

	report.Sites = records
	report.Correlations = Correlate(groups)
	report.Clusters = clusters.Clusters
	report.SkippedDates = clusters.SkippedDates
	report.SampleCounts = samples
	report.VariableCounts = CountVariables(t, opts.Columns)
	report.Ranking = RankSites(records, opts.RankingSize)
	report.Stats = stats
	return report
}

func (r SourceReport) fail(err error) SourceReport {
	r.Err = err
	r.Error = err.Error()
	return r
}
