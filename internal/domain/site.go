package domain

import (
	"time"
)

// Observation is one measurement interval reported by a monitoring site.
type Observation struct {
	SiteID        string
	ObservedAt    time.Time // interval start (e.g. the week-on timestamp); zero if unparseable
	ObservedUntil time.Time // interval end; zero if absent or unparseable
	Variable      string    // measured variable, empty when the source has no variable column
}

// Coordinates represents a WGS-84 latitude/longitude pair in decimal degrees.
type Coordinates struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// MissingRecord is the cadence reconciliation result for one site of one source.
type MissingRecord struct {
	SiteID       string      `json:"site_id"`
	RangeStart   time.Time   `json:"range_start"`
	RangeEnd     time.Time   `json:"range_end"`
	MissingDates []time.Time `json:"missing_dates"`
	Place        string      `json:"place,omitempty"`

	// Observed holds the distinct observed interval-start dates, ascending.
	Observed []time.Time `json:"-"`
}

// MissingCount is the number of expected dates without an observation.
func (r MissingRecord) MissingCount() int { return len(r.MissingDates) }

// DateMissingGroup lists the sites missing on one calendar date.
type DateMissingGroup struct {
	Date    time.Time
	SiteIDs []string // sorted
}

// CorrelationRow is a date on which more than one site was missing.
type CorrelationRow struct {
	Date      time.Time `json:"date"`
	SiteCount int       `json:"site_count"`
	SiteIDs   []string  `json:"site_ids"`
}

// ClusterRow is one spatial cluster of co-missing sites on a date.
type ClusterRow struct {
	Date    time.Time `json:"date"`
	SiteIDs []string  `json:"site_ids"`
	Places  []string  `json:"places,omitempty"`
}

// SiteSampleCount is the number of rows a source reported for a site.
type SiteSampleCount struct {
	SiteID string `json:"site_id"`
	Count  int    `json:"sample_count"`
}

// VariableSampleCount is the number of rows a source reported for a variable.
type VariableSampleCount struct {
	Variable string `json:"variable"`
	Count    int    `json:"sample_count"`
}

// RankedSite is one row of the missing-count ranking.
type RankedSite struct {
	SiteID       string `json:"site_id"`
	Months       int    `json:"months"`
	MissingCount int    `json:"missing_count"`
}

// Ranking summarizes which sites lost the most samples and which lost none.
type Ranking struct {
	Top         []RankedSite `json:"top"`
	NoLoss      []string     `json:"no_loss"`
	NoLossTotal int          `json:"no_loss_total"`
}

// SourceReport collects every result computed for one monitoring source.
type SourceReport struct {
	Source         string                `json:"source"`
	Sites          []MissingRecord       `json:"sites"`
	Correlations   []CorrelationRow      `json:"correlations"`
	Clusters       []ClusterRow          `json:"clusters"`
	SkippedDates   []time.Time           `json:"skipped_dates,omitempty"`
	SampleCounts   []SiteSampleCount     `json:"sample_counts"`
	VariableCounts []VariableSampleCount `json:"variable_counts,omitempty"`
	Ranking        Ranking               `json:"ranking"`
	Stats          ParseStats            `json:"stats"`
	Error          string                `json:"error,omitempty"`
	Err            error                 `json:"-"`
}

// Failed reports whether the source aborted with a structural error.
func (r SourceReport) Failed() bool { return r.Err != nil }

// RunReport is the output of one batch run over every configured source.
type RunReport struct {
	RunID      string         `json:"run_id"`
	StartedAt  time.Time      `json:"started_at"`
	FinishedAt time.Time      `json:"finished_at"`
	Sources    []SourceReport `json:"sources"`
}

// Source returns the report for the given label.
func (r RunReport) Source(label string) (SourceReport, bool) {
	for _, s := range r.Sources {
		if s.Source == label {
			return s, true
		}
	}
	return SourceReport{}, false
}
