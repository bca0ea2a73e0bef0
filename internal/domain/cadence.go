package domain

import (
	"slices"
	"strings"
	"time"
)

// DefaultStride is the expected interval between weekly observations.
const DefaultStride = 7 * 24 * time.Hour

// dateOf truncates t to its UTC calendar date.
func dateOf(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// ExpectedCalendar returns the UTC dates of start + k*stride for every k >= 0
// whose full timestamp is not after end. A trailing partial interval is not
// generated. start itself is always the first entry.
func ExpectedCalendar(start, end time.Time, stride time.Duration) []time.Time {
	if stride <= 0 {
		stride = DefaultStride
	}
	if end.Before(start) {
		end = start
	}

	var out []time.Time
	for t := start; !t.After(end); t = t.Add(stride) {
		d := dateOf(t)
		if n := len(out); n > 0 && out[n-1].Equal(d) {
			continue
		}
		out = append(out, d)
	}
	return out
}

// siteSpan accumulates the timestamp bounds and observed dates of one site.
type siteSpan struct {
	minStart time.Time
	maxStart time.Time
	maxEnd   time.Time
	observed map[time.Time]struct{}
}

func (s *siteSpan) add(o Observation) {
	if !o.ObservedAt.IsZero() {
		if s.minStart.IsZero() || o.ObservedAt.Before(s.minStart) {
			s.minStart = o.ObservedAt
		}
		if o.ObservedAt.After(s.maxStart) {
			s.maxStart = o.ObservedAt
		}
		s.observed[dateOf(o.ObservedAt)] = struct{}{}
	}
	if !o.ObservedUntil.IsZero() && o.ObservedUntil.After(s.maxEnd) {
		s.maxEnd = o.ObservedUntil
	}
}

// rangeEnd is the latest interval end, never earlier than the latest start so
// every observed date stays inside the range.
func (s *siteSpan) rangeEnd() time.Time {
	if s.maxEnd.After(s.maxStart) {
		return s.maxEnd
	}
	return s.maxStart
}

// Reconcile compares each site's expected calendar against its observed
// interval starts and returns one MissingRecord per site, sorted by site id.
// Sites without a single valid interval start cannot establish a range and
// are counted in SitesWithoutRange instead.
func Reconcile(observations []Observation, stride time.Duration) ([]MissingRecord, ParseStats) {
	var stats ParseStats

	spans := make(map[string]*siteSpan)
	for _, o := range observations {
		s, ok := spans[o.SiteID]
		if !ok {
			s = &siteSpan{observed: make(map[time.Time]struct{})}
			spans[o.SiteID] = s
		}
		s.add(o)
	}

	records := make([]MissingRecord, 0, len(spans))
	for siteID, s := range spans {
		if s.minStart.IsZero() {
			stats.SitesWithoutRange++
			continue
		}
		records = append(records, reconcileSite(siteID, s, stride))
	}

	slices.SortFunc(records, func(a, b MissingRecord) int {
		return strings.Compare(a.SiteID, b.SiteID)
	})
	return records, stats
}

func reconcileSite(siteID string, s *siteSpan, stride time.Duration) MissingRecord {
	end := s.rangeEnd()
	expected := ExpectedCalendar(s.minStart, end, stride)

	missing := make([]time.Time, 0)
	for _, d := range expected {
		if _, ok := s.observed[d]; !ok {
			missing = append(missing, d)
		}
	}

	observed := make([]time.Time, 0, len(s.observed))
	for d := range s.observed {
		observed = append(observed, d)
	}
	slices.SortFunc(observed, time.Time.Compare)

	return MissingRecord{
		SiteID:       siteID,
		RangeStart:   dateOf(s.minStart),
		RangeEnd:     dateOf(end),
		MissingDates: missing,
		Observed:     observed,
	}
}
