package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/couchcryptid/monitoring-gap-etl/internal/config"
	"github.com/couchcryptid/monitoring-gap-etl/internal/domain"
	"github.com/couchcryptid/monitoring-gap-etl/internal/observability"
	"github.com/couchcryptid/storm-data-shared/retry"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

const (
	initialBackoff = 200 * time.Millisecond
	maxBackoff     = 5 * time.Second
	maxLoadTries   = 5
)

// Extractor reads the files of one source into a raw table.
type Extractor interface {
	Extract(ctx context.Context, source string, paths []string) (domain.RawTable, error)
}

// Analyzer computes the gap report for one source table.
type Analyzer interface {
	Analyze(ctx context.Context, t domain.RawTable, cols domain.ObservationColumns, idx domain.CoordinateIndex) domain.SourceReport
}

// Loader writes a finished run report to a destination.
type Loader interface {
	Name() string
	Load(ctx context.Context, report domain.RunReport) error
}

// Pipeline orchestrates one extract-analyze-load run over every configured source.
type Pipeline struct {
	manifest  *config.Manifest
	extractor Extractor
	analyzer  Analyzer
	loaders   []Loader
	logger    *slog.Logger
	metrics   *observability.Metrics
	parallel  int
	backoff   time.Duration

	ready  atomic.Bool
	latest atomic.Pointer[domain.RunReport]
}

// New creates a Pipeline for the sources in manifest. parallel bounds how many
// sources are extracted or analyzed at once.
func New(manifest *config.Manifest, e Extractor, a Analyzer, loaders []Loader, logger *slog.Logger, metrics *observability.Metrics, parallel int) *Pipeline {
	if parallel <= 0 {
		parallel = 1
	}
	return &Pipeline{
		manifest:  manifest,
		extractor: e,
		analyzer:  a,
		loaders:   loaders,
		logger:    logger,
		metrics:   metrics,
		parallel:  parallel,
		backoff:   initialBackoff,
	}
}

// CheckReadiness returns nil once a run has completed, or an error describing
// why the service is not yet ready.
func (p *Pipeline) CheckReadiness(_ context.Context) error {
	if !p.ready.Load() {
		return errors.New("no analysis run has completed yet")
	}
	return nil
}

// LatestReport returns the report of the most recent completed run.
func (p *Pipeline) LatestReport() (domain.RunReport, bool) {
	r := p.latest.Load()
	if r == nil {
		return domain.RunReport{}, false
	}
	return *r, true
}

// sourceRun tracks one source through extraction and analysis.
type sourceRun struct {
	spec    config.SourceSpec
	table   domain.RawTable
	err     error
	elapsed time.Duration
	report  domain.SourceReport
}

// Run extracts and analyzes every source, then hands the report to each
// loader. A source that cannot be read or lacks a required column fails on
// its own without aborting the run. An unusable coordinate table fails every
// source, and the failures are still reported and loaded. Cancellation
// returns the partial report without loading it.
func (p *Pipeline) Run(ctx context.Context) (domain.RunReport, error) {
	runStart := time.Now()
	report := domain.RunReport{RunID: uuid.NewString(), StartedAt: domain.Now()}
	logger := p.logger.With("run_id", report.RunID)

	logger.Info("analysis run started", "sources", len(p.manifest.Sources), "parallel", p.parallel)
	p.metrics.PipelineRunning.Set(1)
	defer p.metrics.PipelineRunning.Set(0)

	runs := make([]*sourceRun, len(p.manifest.Sources))
	for i, spec := range p.manifest.Sources {
		runs[i] = &sourceRun{spec: spec}
	}

	if err := p.extractAll(ctx, runs); err != nil {
		return report, err
	}

	idx, err := p.coordinateIndex(ctx, runs, logger)
	if err != nil {
		if ctx.Err() != nil {
			return report, ctx.Err()
		}
		logger.Error("coordinate index unavailable, failing every source", "error", err)
		failAll(runs, err)
	}

	if err := p.analyzeAll(ctx, runs, idx); err != nil {
		return report, err
	}

	for _, r := range runs {
		report.Sources = append(report.Sources, r.report)
		p.recordSource(r, logger)
	}
	report.FinishedAt = domain.Now()

	loadErr := p.loadAll(ctx, report, logger)
	if ctx.Err() != nil {
		return report, ctx.Err()
	}

	p.latest.Store(&report)
	p.ready.Store(true)
	p.metrics.RunsCompleted.Inc()
	p.metrics.RunDuration.Observe(time.Since(runStart).Seconds())
	logger.Info("analysis run finished", "duration", time.Since(runStart), "failed_sources", countFailed(report))
	return report, loadErr
}

func (p *Pipeline) extractAll(ctx context.Context, runs []*sourceRun) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.parallel)
	for _, r := range runs {
		g.Go(func() error {
			start := time.Now()
			r.table, r.err = p.extractor.Extract(gctx, r.spec.Label, r.spec.Paths)
			r.elapsed = time.Since(start)
			if r.err != nil {
				r.table = domain.RawTable{}
			}
			return gctx.Err()
		})
	}
	if err := g.Wait(); err != nil {
		return fmt.Errorf("extract sources: %w", err)
	}
	return nil
}

// coordinateIndex builds the site index from the configured coordinate files,
// or from source tables carrying coordinate columns when none are configured.
func (p *Pipeline) coordinateIndex(ctx context.Context, runs []*sourceRun, logger *slog.Logger) (domain.CoordinateIndex, error) {
	spec := p.manifest.Coordinates
	cols := spec.Columns.WithDefaults()

	var tables []domain.RawTable
	if len(spec.Paths) > 0 {
		for _, path := range spec.Paths {
			t, err := p.extractor.Extract(ctx, path, []string{path})
			if err != nil {
				return domain.CoordinateIndex{}, fmt.Errorf("coordinates: %w", err)
			}
			tables = append(tables, t)
		}
	} else {
		for _, r := range runs {
			if r.err == nil && r.table.HasColumns(cols.SiteID, cols.Latitude, cols.Longitude) {
				tables = append(tables, r.table)
			}
		}
	}

	idx, stats, err := domain.BuildCoordinateIndex(tables, cols)
	if err != nil {
		return domain.CoordinateIndex{}, fmt.Errorf("coordinates: %w", err)
	}
	logger.Info("coordinate index built",
		"tables", len(tables),
		"sites", idx.Len(),
		"rows", stats.Rows,
		"invalid", stats.Invalid,
		"duplicates", stats.Duplicates,
	)
	if idx.Len() == 0 {
		logger.Warn("no site coordinates available, spatial clustering will find nothing")
	}
	return idx, nil
}

func (p *Pipeline) analyzeAll(ctx context.Context, runs []*sourceRun, idx domain.CoordinateIndex) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.parallel)
	for _, r := range runs {
		g.Go(func() error {
			if r.err != nil {
				r.report = domain.SourceReport{Source: r.spec.Label, Err: r.err, Error: r.err.Error()}
				return nil
			}
			start := time.Now()
			r.report = p.analyzer.Analyze(gctx, r.table, r.spec.Columns, idx)
			r.elapsed += time.Since(start)
			r.table = domain.RawTable{}
			return gctx.Err()
		})
	}
	if err := g.Wait(); err != nil {
		return fmt.Errorf("analyze sources: %w", err)
	}
	return nil
}

// recordSource logs one source's outcome and updates its metrics.
func (p *Pipeline) recordSource(r *sourceRun, logger *slog.Logger) {
	rep := r.report
	source := rep.Source
	logger = logger.With("source", source)

	if rep.Failed() {
		p.metrics.SourcesProcessed.WithLabelValues("failed").Inc()
		logger.Error("source analysis failed", "error", rep.Err)
		return
	}
	p.metrics.SourcesProcessed.WithLabelValues("success").Inc()
	p.metrics.SourceDuration.WithLabelValues(source).Observe(r.elapsed.Seconds())

	s := rep.Stats
	p.metrics.RowsRead.WithLabelValues(source).Add(float64(s.RowsRead))
	for reason, n := range map[string]int{
		"missing_site_id":    s.MissingSiteID,
		"invalid_start":      s.InvalidStart,
		"invalid_end":        s.InvalidEnd,
		"dropped":            s.RowsDropped,
		"site_without_range": s.SitesWithoutRange,
	} {
		p.metrics.RowsExcluded.WithLabelValues(source, reason).Add(float64(n))
	}

	missing := 0
	for _, site := range rep.Sites {
		missing += site.MissingCount()
	}
	p.metrics.SitesReconciled.WithLabelValues(source).Set(float64(len(rep.Sites)))
	p.metrics.MissingDates.WithLabelValues(source).Set(float64(missing))
	p.metrics.CorrelatedDates.WithLabelValues(source).Set(float64(len(rep.Correlations)))
	p.metrics.Clusters.WithLabelValues(source).Set(float64(len(rep.Clusters)))
	p.metrics.SkippedDates.WithLabelValues(source).Set(float64(len(rep.SkippedDates)))
	p.metrics.CoordinateMisses.WithLabelValues(source).Set(float64(s.CoordinateMisses))

	if s.MissingSiteID+s.InvalidStart+s.InvalidEnd+s.SitesWithoutRange > 0 {
		logger.Warn("rows excluded from analysis",
			"rows_read", s.RowsRead,
			"rows_dropped", s.RowsDropped,
			"missing_site_id", s.MissingSiteID,
			"invalid_start", s.InvalidStart,
			"invalid_end", s.InvalidEnd,
			"sites_without_range", s.SitesWithoutRange,
		)
	}
	if len(rep.SkippedDates) > 0 {
		logger.Warn("clustering budget exhausted", "skipped_dates", len(rep.SkippedDates))
	}
	logger.Info("source analyzed",
		"sites", len(rep.Sites),
		"missing_dates", missing,
		"correlated_dates", len(rep.Correlations),
		"clusters", len(rep.Clusters),
		"coordinate_misses", s.CoordinateMisses,
		"duration", r.elapsed,
	)
}

// loadAll hands the report to every loader, retrying each with exponential
// backoff. Loader failures are joined; one failing sink does not stop the others.
func (p *Pipeline) loadAll(ctx context.Context, report domain.RunReport, logger *slog.Logger) error {
	var errs []error
	for _, l := range p.loaders {
		if err := p.loadWithRetry(ctx, l, report, logger); err != nil {
			errs = append(errs, fmt.Errorf("load %s: %w", l.Name(), err))
		}
	}
	return errors.Join(errs...)
}

func (p *Pipeline) loadWithRetry(ctx context.Context, l Loader, report domain.RunReport, logger *slog.Logger) error {
	backoff := p.backoff
	var err error
	for attempt := 1; attempt <= maxLoadTries; attempt++ {
		if err = l.Load(ctx, report); err == nil {
			p.metrics.ResultsLoaded.WithLabelValues(l.Name()).Inc()
			return nil
		}
		p.metrics.LoadErrors.WithLabelValues(l.Name()).Inc()
		logger.Error("load failed", "sink", l.Name(), "attempt", attempt, "error", err)

		if attempt == maxLoadTries || !retry.SleepWithContext(ctx, backoff) {
			break
		}
		backoff = retry.NextBackoff(backoff, maxBackoff)
	}
	return err
}

// failAll marks every source that is not already failed with err.
func failAll(runs []*sourceRun, err error) {
	for _, r := range runs {
		if r.err == nil {
			r.err = err
			r.table = domain.RawTable{}
		}
	}
}

func countFailed(report domain.RunReport) int {
	n := 0
	for _, s := range report.Sources {
		if s.Failed() {
			n++
		}
	}
	return n
}
