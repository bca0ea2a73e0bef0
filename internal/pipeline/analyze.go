package pipeline

import (
	"context"
	"log/slog"

	"github.com/couchcryptid/monitoring-gap-etl/internal/domain"
)

// GapAnalyzer implements Analyzer using the domain analysis functions with
// optional place-name annotation.
type GapAnalyzer struct {
	opts     domain.AnalysisOptions
	geocoder domain.Geocoder
	logger   *slog.Logger
}

// NewAnalyzer creates a GapAnalyzer. Pass a nil geocoder to disable place
// annotation.
func NewAnalyzer(opts domain.AnalysisOptions, geocoder domain.Geocoder, logger *slog.Logger) *GapAnalyzer {
	return &GapAnalyzer{
		opts:     opts,
		geocoder: geocoder,
		logger:   logger,
	}
}

func (a *GapAnalyzer) Analyze(ctx context.Context, t domain.RawTable, cols domain.ObservationColumns, idx domain.CoordinateIndex) domain.SourceReport {
	opts := a.opts
	opts.Columns = cols

	report := domain.AnalyzeSource(ctx, t, idx, opts)
	if report.Failed() || a.geocoder == nil {
		return report
	}

	siteIDs := make([]string, 0, len(report.Sites))
	for _, s := range report.Sites {
		siteIDs = append(siteIDs, s.SiteID)
	}
	places := domain.ResolvePlaces(ctx, siteIDs, idx, a.geocoder, a.logger.With("source", t.Source))
	domain.ApplyPlaces(&report, places)
	return report
}
