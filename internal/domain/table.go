package domain

import (
	"math"
	"strconv"
	"strings"
	"time"
)

// naTokens are cell values read as absent, matching the export conventions of
// the CASTNET and NADP weekly datasets.
var naTokens = map[string]struct{}{
	"":     {},
	"NaN":  {},
	"NAN":  {},
	"nan":  {},
	"null": {},
	"NULL": {},
}

// timestampLayouts are tried in order when parsing interval bounds. All values
// are interpreted in UTC.
var timestampLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
	"01/02/2006 15:04:05",
	"01/02/2006 15:04",
	"01/02/2006",
	"1/2/2006 15:04",
	"1/2/2006",
}

// RawTable is a source table as delivered by ingestion: a header row and
// string cells. Rows may be shorter than the header; missing cells read as
// absent.
type RawTable struct {
	Source string
	Header []string
	Rows   [][]string
}

// ObservationColumns maps the logical observation fields to header names.
type ObservationColumns struct {
	SiteID        string `yaml:"site_id"`
	IntervalStart string `yaml:"interval_start"`
	IntervalEnd   string `yaml:"interval_end"`
	Variable      string `yaml:"variable"`
}

// DefaultObservationColumns are the CASTNET/NADP weekly header names.
func DefaultObservationColumns() ObservationColumns {
	return ObservationColumns{
		SiteID:        "SITE_ID",
		IntervalStart: "DATEON",
		IntervalEnd:   "DATEOFF",
		Variable:      "VARIABLE",
	}
}

// WithDefaults fills empty fields from DefaultObservationColumns.
func (c ObservationColumns) WithDefaults() ObservationColumns {
	d := DefaultObservationColumns()
	if c.SiteID == "" {
		c.SiteID = d.SiteID
	}
	if c.IntervalStart == "" {
		c.IntervalStart = d.IntervalStart
	}
	if c.IntervalEnd == "" {
		c.IntervalEnd = d.IntervalEnd
	}
	if c.Variable == "" {
		c.Variable = d.Variable
	}
	return c
}

// CoordinateColumns maps the logical coordinate fields to header names.
type CoordinateColumns struct {
	SiteID    string `yaml:"site_id"`
	Latitude  string `yaml:"latitude"`
	Longitude string `yaml:"longitude"`
}

// DefaultCoordinateColumns are the CASTNET/NADP site table header names.
func DefaultCoordinateColumns() CoordinateColumns {
	return CoordinateColumns{SiteID: "SITE_ID", Latitude: "LATITUDE", Longitude: "LONGITUDE"}
}

// WithDefaults fills empty fields from DefaultCoordinateColumns.
func (c CoordinateColumns) WithDefaults() CoordinateColumns {
	d := DefaultCoordinateColumns()
	if c.SiteID == "" {
		c.SiteID = d.SiteID
	}
	if c.Latitude == "" {
		c.Latitude = d.Latitude
	}
	if c.Longitude == "" {
		c.Longitude = d.Longitude
	}
	return c
}

// columnIndex returns the position of name in the header, or -1.
func (t RawTable) columnIndex(name string) int {
	for i, h := range t.Header {
		if strings.TrimSpace(h) == name {
			return i
		}
	}
	return -1
}

// HasColumns reports whether every named column is present in the header.
func (t RawTable) HasColumns(names ...string) bool {
	for _, n := range names {
		if t.columnIndex(n) < 0 {
			return false
		}
	}
	return true
}

// requireColumn returns the index of a mandatory column or a *SchemaError.
func (t RawTable) requireColumn(table, name string) (int, error) {
	i := t.columnIndex(name)
	if i < 0 {
		return -1, &SchemaError{Source: t.Source, Table: table, Column: name}
	}
	return i, nil
}

// cell returns the trimmed value at column i of row, or "" when the column is
// out of range or holds an NA token.
func cell(row []string, i int) string {
	if i < 0 || i >= len(row) {
		return ""
	}
	v := strings.TrimSpace(row[i])
	if _, na := naTokens[v]; na {
		return ""
	}
	return v
}

// ParseObservations validates the table schema and converts its rows into
// observations. Row-level problems are counted, never returned as errors;
// the only error is a *SchemaError when the site id or interval start column
// is absent.
func ParseObservations(t RawTable, cols ObservationColumns) ([]Observation, ParseStats, error) {
	cols = cols.WithDefaults()
	var stats ParseStats

	siteIdx, err := t.requireColumn("observations", cols.SiteID)
	if err != nil {
		return nil, stats, err
	}
	startIdx, err := t.requireColumn("observations", cols.IntervalStart)
	if err != nil {
		return nil, stats, err
	}
	endIdx := t.columnIndex(cols.IntervalEnd)
	varIdx := t.columnIndex(cols.Variable)

	out := make([]Observation, 0, len(t.Rows))
	for _, row := range t.Rows {
		stats.RowsRead++

		siteID := cell(row, siteIdx)
		if siteID == "" {
			stats.MissingSiteID++
			stats.RowsDropped++
			continue
		}

		start, ok := parseTimestamp(cell(row, startIdx))
		if !ok {
			stats.InvalidStart++
		}

		var end time.Time
		if raw := cell(row, endIdx); raw != "" {
			if end, ok = parseTimestamp(raw); !ok {
				stats.InvalidEnd++
			}
		}

		if start.IsZero() && end.IsZero() {
			stats.RowsDropped++
			continue
		}

		out = append(out, Observation{
			SiteID:        siteID,
			ObservedAt:    start,
			ObservedUntil: end,
			Variable:      cell(row, varIdx),
		})
	}
	return out, stats, nil
}

// parseTimestamp parses s with the first matching layout. Empty input and
// unparseable values report false.
func parseTimestamp(s string) (time.Time, bool) {
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range timestampLayouts {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}

// parseDegrees parses a decimal-degree value and checks it against limit.
func parseDegrees(s string, limit float64) (float64, bool) {
	if s == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || v < -limit || v > limit {
		return 0, false
	}
	return v, true
}
