// Package domain detects missing observations in weekly environmental
// monitoring series and finds which gaps are shared across sites.
//
// # Data Sources
//
// Each source is one monitoring network exported as CSV, for example the
// CASTNET weekly filter-pack measurements (TDEP_MEASURED_WEEK_*.csv) and the
// NADP weekly wet-deposition concentrations (MEASURED_WEEKLY_WETCONC.csv).
// A source may span several files; ingestion concatenates them into one
// [RawTable] labelled with the source name.
//
// Column conventions (overridable per source, see [ObservationColumns]):
//
//	SITE_ID   site identifier, e.g. "BEL116"; unique within a network only
//	DATEON    interval start (sample put on), e.g. "2020-01-07 09:00:00"
//	DATEOFF   interval end (sample taken off), optional
//	VARIABLE  measured variable, optional, e.g. "SO4"
//
// Unknown values:
//
//	"", "NaN", "NAN", "nan", "null" and "NULL" are read as absent.
//	Unparseable timestamps are counted in [ParseStats] and ignored.
//
// # Stages
//
// Cadence reconciliation ([Reconcile]): per site, the expected calendar runs
// from the earliest DATEON in fixed strides (7 days by default) up to and
// including the latest DATEOFF. Strides are added to the full timestamp, so a
// trailing partial week is never generated. Expected and observed values are
// compared as UTC calendar dates.
//
// Temporal correlation ([GroupByDate], [Correlate]): missing dates are
// inverted into date → sites; dates with more than one site are shared-cause
// candidates regardless of geography.
//
// Spatial clustering ([ClusterDates]): for each date, sites with known
// coordinates are joined when their haversine distance is within the
// threshold (100 km by default). Connected components of two or more sites
// are clusters; they partition the date's co-missing sites.
//
// # Coordinates
//
// Site coordinates come from a separate table or, failing that, from source
// tables carrying LATITUDE/LONGITUDE. The first row for a site wins. Sites
// without usable coordinates still take part in temporal correlation.
package domain
