package csvsource

import (
	"bufio"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/couchcryptid/monitoring-gap-etl/internal/domain"
)

// ctxCheckEvery is how many rows are read between context checks.
const ctxCheckEvery = 4096

const utf8BOM = "\ufeff"

// Reader loads CSV files into raw tables.
// It implements pipeline.Extractor.
type Reader struct {
	logger *slog.Logger
}

// NewReader creates a CSV reader.
func NewReader(logger *slog.Logger) *Reader {
	return &Reader{logger: logger}
}

// Extract reads every file in paths and concatenates them into one table
// labelled source. Columns are aligned by name: the header is the union of
// all file headers in first-seen order, and cells a file lacks are empty.
func (r *Reader) Extract(ctx context.Context, source string, paths []string) (domain.RawTable, error) {
	table := domain.RawTable{Source: source}
	if len(paths) == 0 {
		return table, fmt.Errorf("source %q: no files", source)
	}

	columns := make(map[string]int)
	for _, path := range paths {
		header, rows, err := readFile(ctx, path)
		if err != nil {
			return domain.RawTable{}, fmt.Errorf("source %q: %w", source, err)
		}

		mapping := make([]int, len(header))
		for i, name := range header {
			idx, ok := columns[name]
			if !ok {
				idx = len(table.Header)
				columns[name] = idx
				table.Header = append(table.Header, name)
			}
			mapping[i] = idx
		}

		for _, row := range rows {
			aligned := make([]string, len(table.Header))
			for i, v := range row {
				if i < len(mapping) {
					aligned[mapping[i]] = v
				}
			}
			table.Rows = append(table.Rows, aligned)
		}

		r.logger.Debug("csv file read", "source", source, "path", path, "rows", len(rows), "columns", len(header))
	}

	// Earlier rows are shorter when a later file introduced new columns.
	for i, row := range table.Rows {
		if len(row) < len(table.Header) {
			table.Rows[i] = append(row, make([]string, len(table.Header)-len(row))...)
		}
	}
	return table, nil
}

func readFile(ctx context.Context, path string) ([]string, [][]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	cr := csv.NewReader(bufio.NewReader(f))
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, nil, fmt.Errorf("%s: empty file", path)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("%s: read header: %w", path, err)
	}
	for i, h := range header {
		if i == 0 {
			h = strings.TrimPrefix(h, utf8BOM)
		}
		header[i] = strings.TrimSpace(h)
	}

	var rows [][]string
	for n := 0; ; n++ {
		if n%ctxCheckEvery == 0 {
			if err := ctx.Err(); err != nil {
				return nil, nil, err
			}
		}
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, nil, fmt.Errorf("%s: %w", path, err)
		}
		if isBlank(rec) {
			continue
		}
		rows = append(rows, rec)
	}
	return header, rows, nil
}

func isBlank(rec []string) bool {
	for _, v := range rec {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}
