package filesink

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/couchcryptid/monitoring-gap-etl/internal/domain"
)

const (
	dateLayout = "2006-01-02"
	listSep    = ", "
	noneValue  = "None" // empty list cell
)

// ReportFile is the file name used by the JSON format.
const ReportFile = "report.json"

// Format selects how a run report is exported.
type Format string

const (
	FormatCSV  Format = "csv"
	FormatJSON Format = "json"
)

// Writer exports run reports to a directory.
// It implements pipeline.Loader.
type Writer struct {
	dir    string
	format Format
	logger *slog.Logger
}

// NewWriter creates a file sink writing to dir in the given format.
func NewWriter(dir string, format Format, logger *slog.Logger) *Writer {
	return &Writer{dir: dir, format: format, logger: logger}
}

// Name identifies the sink in logs and metrics.
func (w *Writer) Name() string { return "file" }

// Load writes report to the output directory. Each file is written to a
// temporary name and renamed into place.
func (w *Writer) Load(ctx context.Context, report domain.RunReport) error {
	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}

	if w.format == FormatJSON {
		return w.writeFile(ReportFile, func(f *os.File) error {
			enc := json.NewEncoder(f)
			enc.SetIndent("", "  ")
			return enc.Encode(report)
		})
	}

	for _, src := range report.Sources {
		if err := ctx.Err(); err != nil {
			return err
		}
		if src.Failed() {
			w.logger.Warn("skipping export of failed source", "source", src.Source, "error", src.Error)
			continue
		}
		for _, t := range sourceTables(src) {
			if err := w.writeCSV(src.Source+"_"+t.name+".csv", t.header, t.rows); err != nil {
				return err
			}
		}
	}
	return nil
}

// table is one exported CSV.
type table struct {
	name   string
	header []string
	rows   [][]string
}

func sourceTables(src domain.SourceReport) []table {
	tables := []table{
		missingTable(src.Sites),
		correlationTable(src.Correlations),
		clusterTable(src.Clusters),
		rankingTable(src.Ranking),
		sampleTable(src.SampleCounts),
	}
	if len(src.VariableCounts) > 0 {
		tables = append(tables, variableTable(src.VariableCounts))
	}
	if len(src.SkippedDates) > 0 {
		tables = append(tables, skippedTable(src.SkippedDates))
	}
	return tables
}

func missingTable(records []domain.MissingRecord) table {
	t := table{
		name:   "missing",
		header: []string{"SITE_ID", "RANGE_START", "RANGE_END", "MISSING_COUNT", "MISSING_DATES", "PLACE"},
	}
	for _, r := range records {
		t.rows = append(t.rows, []string{
			r.SiteID,
			r.RangeStart.Format(dateLayout),
			r.RangeEnd.Format(dateLayout),
			strconv.Itoa(r.MissingCount()),
			joinDates(r.MissingDates),
			r.Place,
		})
	}
	return t
}

func correlationTable(rows []domain.CorrelationRow) table {
	t := table{name: "correlation", header: []string{"DATE", "SITE_COUNT", "SITE_IDS"}}
	for _, r := range rows {
		t.rows = append(t.rows, []string{r.Date.Format(dateLayout), strconv.Itoa(r.SiteCount), joinList(r.SiteIDs)})
	}
	return t
}

func clusterTable(rows []domain.ClusterRow) table {
	t := table{name: "clusters", header: []string{"DATE", "SITE_IDS", "PLACES"}}
	for _, r := range rows {
		places := ""
		if len(r.Places) > 0 {
			places = strings.Join(r.Places, listSep)
		}
		t.rows = append(t.rows, []string{r.Date.Format(dateLayout), joinList(r.SiteIDs), places})
	}
	return t
}

func rankingTable(r domain.Ranking) table {
	t := table{name: "ranking", header: []string{"CATEGORY", "RANK", "SITE_ID", "MONTHS", "MISSING_COUNT"}}
	for i, s := range r.Top {
		t.rows = append(t.rows, []string{"most_missing", strconv.Itoa(i + 1), s.SiteID, strconv.Itoa(s.Months), strconv.Itoa(s.MissingCount)})
	}
	for i, id := range r.NoLoss {
		t.rows = append(t.rows, []string{"no_loss", strconv.Itoa(i + 1), id, "", "0"})
	}
	return t
}

func sampleTable(counts []domain.SiteSampleCount) table {
	t := table{name: "samples", header: []string{"SITE_ID", "SAMPLE_COUNT"}}
	for _, c := range counts {
		t.rows = append(t.rows, []string{c.SiteID, strconv.Itoa(c.Count)})
	}
	return t
}

func variableTable(counts []domain.VariableSampleCount) table {
	t := table{name: "variables", header: []string{"VARIABLE", "SAMPLE_COUNT"}}
	for _, c := range counts {
		t.rows = append(t.rows, []string{c.Variable, strconv.Itoa(c.Count)})
	}
	return t
}

func skippedTable(dates []time.Time) table {
	t := table{name: "skipped_dates", header: []string{"DATE"}}
	for _, d := range dates {
		t.rows = append(t.rows, []string{d.Format(dateLayout)})
	}
	return t
}

func joinDates(dates []time.Time) string {
	if len(dates) == 0 {
		return noneValue
	}
	parts := make([]string, len(dates))
	for i, d := range dates {
		parts[i] = d.Format(dateLayout)
	}
	return strings.Join(parts, listSep)
}

func joinList(items []string) string {
	if len(items) == 0 {
		return noneValue
	}
	return strings.Join(items, listSep)
}

func (w *Writer) writeCSV(name string, header []string, rows [][]string) error {
	return w.writeFile(name, func(f *os.File) error {
		cw := csv.NewWriter(f)
		if err := cw.Write(header); err != nil {
			return err
		}
		if err := cw.WriteAll(rows); err != nil {
			return err
		}
		return cw.Error()
	})
}

func (w *Writer) writeFile(name string, fill func(*os.File) error) error {
	tmp, err := os.CreateTemp(w.dir, "."+name+".*")
	if err != nil {
		return fmt.Errorf("create %s: %w", name, err)
	}
	defer os.Remove(tmp.Name()) //nolint:errcheck // no-op after a successful rename

	if err := fill(tmp); err != nil {
		tmp.Close()
		return fmt.Errorf("write %s: %w", name, err)
	}
	if err := tmp.Chmod(0o644); err != nil {
		tmp.Close()
		return fmt.Errorf("chmod %s: %w", name, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close %s: %w", name, err)
	}

	path := filepath.Join(w.dir, name)
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("rename %s: %w", name, err)
	}
	w.logger.Debug("result file written", "path", path)
	return nil
}
