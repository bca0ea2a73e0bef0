package domain

import (
	"cmp"
	"math"
	"slices"
	"strings"
)

// daysPerMonth converts a range length in days to months for the ranking.
const daysPerMonth = 30.44

// CountSamples returns the number of rows per site id, sorted by site id.
// Rows with a blank site id are not counted.
func CountSamples(t RawTable, cols ObservationColumns) ([]SiteSampleCount, error) {
	cols = cols.WithDefaults()
	siteIdx, err := t.requireColumn("observations", cols.SiteID)
	if err != nil {
		return nil, err
	}

	counts := make(map[string]int)
	for _, row := range t.Rows {
		if id := cell(row, siteIdx); id != "" {
			counts[id]++
		}
	}

	out := make([]SiteSampleCount, 0, len(counts))
	for id, n := range counts {
		out = append(out, SiteSampleCount{SiteID: id, Count: n})
	}
	slices.SortFunc(out, func(a, b SiteSampleCount) int { return strings.Compare(a.SiteID, b.SiteID) })
	return out, nil
}

// CountVariables returns the number of rows per measured variable, sorted by
// variable name. It returns nil when the table has no variable column.
func CountVariables(t RawTable, cols ObservationColumns) []VariableSampleCount {
	cols = cols.WithDefaults()
	varIdx := t.columnIndex(cols.Variable)
	if varIdx < 0 {
		return nil
	}

	counts := make(map[string]int)
	for _, row := range t.Rows {
		if v := cell(row, varIdx); v != "" {
			counts[v]++
		}
	}

	out := make([]VariableSampleCount, 0, len(counts))
	for v, n := range counts {
		out = append(out, VariableSampleCount{Variable: v, Count: n})
	}
	slices.SortFunc(out, func(a, b VariableSampleCount) int { return strings.Compare(a.Variable, b.Variable) })
	return out
}

// RankSites lists the n sites with the most missing dates (ties broken by
// site id) and the first n sites, by site id, that lost nothing.
func RankSites(records []MissingRecord, n int) Ranking {
	if n <= 0 {
		return Ranking{}
	}

	sorted := slices.Clone(records)
	slices.SortStableFunc(sorted, func(a, b MissingRecord) int {
		if c := cmp.Compare(b.MissingCount(), a.MissingCount()); c != 0 {
			return c
		}
		return strings.Compare(a.SiteID, b.SiteID)
	})

	var r Ranking
	for _, rec := range sorted {
		if rec.MissingCount() == 0 {
			continue
		}
		if len(r.Top) == n {
			break
		}
		r.Top = append(r.Top, RankedSite{
			SiteID:       rec.SiteID,
			Months:       rangeMonths(rec),
			MissingCount: rec.MissingCount(),
		})
	}

	for _, rec := range records {
		if rec.MissingCount() != 0 {
			continue
		}
		r.NoLossTotal++
		r.NoLoss = append(r.NoLoss, rec.SiteID)
	}
	slices.Sort(r.NoLoss)
	if len(r.NoLoss) > n {
		r.NoLoss = r.NoLoss[:n]
	}
	return r
}

func rangeMonths(r MissingRecord) int {
	days := r.RangeEnd.Sub(r.RangeStart).Hours() / 24
	return int(math.Round(days / daysPerMonth))
}
