package domain

import (
	"slices"
	"time"
)

// GroupByDate inverts per-site missing dates into per-date site sets. Every
// date missing for at least one site appears once; groups are ordered by
// date and their site ids are sorted and distinct.
func GroupByDate(records []MissingRecord) []DateMissingGroup {
	byDate := make(map[time.Time]map[string]struct{})
	for _, r := range records {
		for _, d := range r.MissingDates {
			d = dateOf(d)
			sites, ok := byDate[d]
			if !ok {
				sites = make(map[string]struct{})
				byDate[d] = sites
			}
			sites[r.SiteID] = struct{}{}
		}
	}

	groups := make([]DateMissingGroup, 0, len(byDate))
	for d, sites := range byDate {
		ids := make([]string, 0, len(sites))
		for id := range sites {
			ids = append(ids, id)
		}
		slices.Sort(ids)
		groups = append(groups, DateMissingGroup{Date: d, SiteIDs: ids})
	}
	slices.SortFunc(groups, func(a, b DateMissingGroup) int {
		return a.Date.Compare(b.Date)
	})
	return groups
}

// Correlate keeps the dates on which more than one site was missing. Sites
// missing alone are isolated faults and are not reported.
func Correlate(groups []DateMissingGroup) []CorrelationRow {
	rows := make([]CorrelationRow, 0)
	for _, g := range groups {
		if len(g.SiteIDs) < 2 {
			continue
		}
		rows = append(rows, CorrelationRow{
			Date:      g.Date,
			SiteCount: len(g.SiteIDs),
			SiteIDs:   slices.Clone(g.SiteIDs),
		})
	}
	slices.SortStableFunc(rows, func(a, b CorrelationRow) int {
		return a.Date.Compare(b.Date)
	})
	return rows
}
