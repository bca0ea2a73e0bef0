package csvsource

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/couchcryptid/monitoring-gap-etl/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testReader() *Reader {
	return NewReader(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func writeCSV(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestReader_Extract_SingleFile(t *testing.T) {
	dir := t.TempDir()
	path := writeCSV(t, dir, "castnet.csv",
		"\ufeffSITE_ID, DATEON ,DATEOFF\n"+
			"BEL116,2020-01-07 09:00:00,2020-01-14 08:55:00\n"+
			"\n"+
			",,\n"+
			"BEL116,\"2020-01-14 09:00:00\",\n")

	table, err := testReader().Extract(context.Background(), "castnet", []string{path})

	require.NoError(t, err)
	assert.Equal(t, "castnet", table.Source)
	assert.Equal(t, []string{"SITE_ID", "DATEON", "DATEOFF"}, table.Header)
	assert.Equal(t, [][]string{
		{"BEL116", "2020-01-07 09:00:00", "2020-01-14 08:55:00"},
		{"BEL116", "2020-01-14 09:00:00", ""},
	}, table.Rows)
	assert.True(t, table.HasColumns("SITE_ID", "DATEON"))
}

func TestReader_Extract_ConcatenatesByColumnName(t *testing.T) {
	dir := t.TempDir()
	first := writeCSV(t, dir, "2019.csv",
		"SITE_ID,DATEON\n"+
			"BEL116,2019-12-31\n")
	second := writeCSV(t, dir, "2020.csv",
		"DATEON,SITE_ID,VARIABLE\n"+
			"2020-01-07,BEL116,SO4\n"+
			"2020-01-07,ABT147\n")

	table, err := testReader().Extract(context.Background(), "castnet", []string{first, second})

	require.NoError(t, err)
	assert.Equal(t, []string{"SITE_ID", "DATEON", "VARIABLE"}, table.Header)
	assert.Equal(t, [][]string{
		{"BEL116", "2019-12-31", ""},
		{"BEL116", "2020-01-07", "SO4"},
		{"ABT147", "2020-01-07", ""},
	}, table.Rows)
}

func TestReader_Extract_Errors(t *testing.T) {
	dir := t.TempDir()
	empty := writeCSV(t, dir, "empty.csv", "")
	ok := writeCSV(t, dir, "ok.csv", "SITE_ID\nA\n")

	tests := []struct {
		name  string
		paths []string
		want  string
	}{
		{"no files", nil, "no files"},
		{"missing file", []string{filepath.Join(dir, "nope.csv")}, "open"},
		{"empty file", []string{empty}, "empty file"},
		{"one bad among good", []string{ok, filepath.Join(dir, "nope.csv")}, "nope.csv"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := testReader().Extract(context.Background(), "nadp", tt.paths)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
			assert.Contains(t, err.Error(), `source "nadp"`)
		})
	}
}

func TestReader_Extract_ContextCancelled(t *testing.T) {
	path := writeCSV(t, t.TempDir(), "castnet.csv", "SITE_ID\nA\n")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := testReader().Extract(ctx, "castnet", []string{path})
	require.ErrorIs(t, err, context.Canceled)
}

func TestReader_Extract_FeedsAnalysis(t *testing.T) {
	path := writeCSV(t, t.TempDir(), "castnet.csv",
		"SITE_ID,DATEON,DATEOFF,LATITUDE,LONGITUDE\n"+
			"BEL116,2020-01-07 09:00,2020-01-14 08:00,39.0284,-76.8171\n"+
			"BEL116,2020-01-21 09:00,2020-01-28 08:00,39.0284,-76.8171\n")

	table, err := testReader().Extract(context.Background(), "castnet", []string{path})
	require.NoError(t, err)

	obs, _, err := domain.ParseObservations(table, domain.DefaultObservationColumns())
	require.NoError(t, err)
	records, _ := domain.Reconcile(obs, domain.DefaultStride)
	require.Len(t, records, 1)
	assert.Equal(t, 1, records[0].MissingCount())

	idx, _, err := domain.BuildCoordinateIndex([]domain.RawTable{table}, domain.DefaultCoordinateColumns())
	require.NoError(t, err)
	assert.Equal(t, 1, idx.Len())
}
