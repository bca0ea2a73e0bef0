package domain

import (
	"errors"
	"fmt"
)

// ErrSchema is matched by every *SchemaError via errors.Is.
var ErrSchema = errors.New("schema error")

// SchemaError reports a required column missing from an input table.
// It is fatal for the source it was raised on; other sources continue.
type SchemaError struct {
	Source string
	Table  string // "observations" or "coordinates"
	Column string
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("source %q: %s table is missing required column %q", e.Source, e.Table, e.Column)
}

func (e *SchemaError) Is(target error) bool { return target == ErrSchema }

// ParseStats aggregates row-level problems absorbed while parsing a source.
// None of them fail the source; they are surfaced for observability.
type ParseStats struct {
	RowsRead          int `json:"rows_read"`
	RowsDropped       int `json:"rows_dropped"`        // no site id, or neither timestamp usable
	MissingSiteID     int `json:"missing_site_id"`     // blank site id
	InvalidStart      int `json:"invalid_start"`       // interval start absent or unparseable
	InvalidEnd        int `json:"invalid_end"`         // interval end present but unparseable
	SitesWithoutRange int `json:"sites_without_range"` // sites with no valid timestamp at all
	CoordinateMisses  int `json:"coordinate_misses"`   // missing sites absent from the coordinate index
}

// Add accumulates o into s.
func (s *ParseStats) Add(o ParseStats) {
	s.RowsRead += o.RowsRead
	s.RowsDropped += o.RowsDropped
	s.MissingSiteID += o.MissingSiteID
	s.InvalidStart += o.InvalidStart
	s.InvalidEnd += o.InvalidEnd
	s.SitesWithoutRange += o.SitesWithoutRange
	s.CoordinateMisses += o.CoordinateMisses
}
