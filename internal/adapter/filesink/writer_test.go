package filesink

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/couchcryptid/monitoring-gap-etl/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func sampleReport() domain.RunReport {
	return domain.RunReport{
		RunID:      "run-1",
		StartedAt:  time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
		FinishedAt: time.Date(2024, 5, 1, 12, 0, 3, 0, time.UTC),
		Sources: []domain.SourceReport{
			{
				Source: "castnet",
				Sites: []domain.MissingRecord{
					{SiteID: "BEL116", RangeStart: date(2020, 1, 7), RangeEnd: date(2020, 3, 3), MissingDates: []time.Time{date(2020, 1, 28), date(2020, 2, 11)}, Place: "Beltsville"},
					{SiteID: "CHE185", RangeStart: date(2020, 1, 7), RangeEnd: date(2020, 3, 3), MissingDates: []time.Time{}},
				},
				Correlations: []domain.CorrelationRow{
					{Date: date(2020, 1, 28), SiteCount: 2, SiteIDs: []string{"BEL116", "BWR139"}},
				},
				Clusters: []domain.ClusterRow{
					{Date: date(2020, 1, 28), SiteIDs: []string{"BEL116", "BWR139"}, Places: []string{"Beltsville", "Cambridge"}},
				},
				SkippedDates:   []time.Time{date(2020, 2, 11)},
				SampleCounts:   []domain.SiteSampleCount{{SiteID: "BEL116", Count: 6}, {SiteID: "CHE185", Count: 8}},
				VariableCounts: []domain.VariableSampleCount{{Variable: "SO4", Count: 14}},
				Ranking: domain.Ranking{
					Top:         []domain.RankedSite{{SiteID: "BEL116", Months: 2, MissingCount: 2}},
					NoLoss:      []string{"CHE185"},
					NoLossTotal: 1,
				},
			},
			{
				Source: "nadp",
				Error:  `source "nadp": observations table is missing required column "SITE_ID"`,
				Err:    domain.ErrSchema,
			},
		},
	}
}

func readCSV(t *testing.T, path string) [][]string {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	return rows
}

func TestWriter_Load_CSV(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "out")
	w := NewWriter(dir, FormatCSV, testLogger())

	require.NoError(t, w.Load(context.Background(), sampleReport()))

	assert.Equal(t, [][]string{
		{"SITE_ID", "RANGE_START", "RANGE_END", "MISSING_COUNT", "MISSING_DATES", "PLACE"},
		{"BEL116", "2020-01-07", "2020-03-03", "2", "2020-01-28, 2020-02-11", "Beltsville"},
		{"CHE185", "2020-01-07", "2020-03-03", "0", "None", ""},
	}, readCSV(t, filepath.Join(dir, "castnet_missing.csv")))

	assert.Equal(t, [][]string{
		{"DATE", "SITE_COUNT", "SITE_IDS"},
		{"2020-01-28", "2", "BEL116, BWR139"},
	}, readCSV(t, filepath.Join(dir, "castnet_correlation.csv")))

	assert.Equal(t, [][]string{
		{"DATE", "SITE_IDS", "PLACES"},
		{"2020-01-28", "BEL116, BWR139", "Beltsville, Cambridge"},
	}, readCSV(t, filepath.Join(dir, "castnet_clusters.csv")))

	assert.Equal(t, [][]string{
		{"CATEGORY", "RANK", "SITE_ID", "MONTHS", "MISSING_COUNT"},
		{"most_missing", "1", "BEL116", "2", "2"},
		{"no_loss", "1", "CHE185", "", "0"},
	}, readCSV(t, filepath.Join(dir, "castnet_ranking.csv")))

	assert.Equal(t, [][]string{
		{"SITE_ID", "SAMPLE_COUNT"},
		{"BEL116", "6"},
		{"CHE185", "8"},
	}, readCSV(t, filepath.Join(dir, "castnet_samples.csv")))

	assert.Equal(t, [][]string{{"VARIABLE", "SAMPLE_COUNT"}, {"SO4", "14"}}, readCSV(t, filepath.Join(dir, "castnet_variables.csv")))
	assert.Equal(t, [][]string{{"DATE"}, {"2020-02-11"}}, readCSV(t, filepath.Join(dir, "castnet_skipped_dates.csv")))

	matches, err := filepath.Glob(filepath.Join(dir, "nadp_*"))
	require.NoError(t, err)
	assert.Empty(t, matches, "failed sources are not exported")

	hidden, err := filepath.Glob(filepath.Join(dir, ".*"))
	require.NoError(t, err)
	assert.Empty(t, hidden, "temporary files are cleaned up")
}

func TestWriter_Load_CSVEmptyTablesKeepHeader(t *testing.T) {
	dir := t.TempDir()
	w := NewWriter(dir, FormatCSV, testLogger())

	report := domain.RunReport{Sources: []domain.SourceReport{{Source: "empty"}}}
	require.NoError(t, w.Load(context.Background(), report))

	assert.Equal(t, [][]string{{"DATE", "SITE_COUNT", "SITE_IDS"}}, readCSV(t, filepath.Join(dir, "empty_correlation.csv")))
	_, err := os.Stat(filepath.Join(dir, "empty_variables.csv"))
	assert.True(t, errors.Is(err, os.ErrNotExist))
}

func TestWriter_Load_JSON(t *testing.T) {
	dir := t.TempDir()
	w := NewWriter(dir, FormatJSON, testLogger())

	require.NoError(t, w.Load(context.Background(), sampleReport()))

	data, err := os.ReadFile(filepath.Join(dir, ReportFile))
	require.NoError(t, err)

	var decoded struct {
		RunID   string `json:"run_id"`
		Sources []struct {
			Source string `json:"source"`
			Sites  []struct {
				SiteID       string   `json:"site_id"`
				MissingDates []string `json:"missing_dates"`
			} `json:"sites"`
			Error string `json:"error"`
		} `json:"sources"`
	}
	require.NoError(t, json.Unmarshal(data, &decoded))

	assert.Equal(t, "run-1", decoded.RunID)
	require.Len(t, decoded.Sources, 2)
	assert.Equal(t, "BEL116", decoded.Sources[0].Sites[0].SiteID)
	assert.Equal(t, []string{"2020-01-28T00:00:00Z", "2020-02-11T00:00:00Z"}, decoded.Sources[0].Sites[0].MissingDates)
	assert.Contains(t, decoded.Sources[1].Error, "SITE_ID")
}

func TestWriter_Load_OutputDirIsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "taken")
	require.NoError(t, os.WriteFile(path, nil, 0o600))

	err := NewWriter(path, FormatCSV, testLogger()).Load(context.Background(), sampleReport())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "create output dir")
}

func TestWriter_Load_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := NewWriter(t.TempDir(), FormatCSV, testLogger()).Load(ctx, sampleReport())
	require.ErrorIs(t, err, context.Canceled)
}
