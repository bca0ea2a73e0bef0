package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCountSamples(t *testing.T) {
	table := castnetTable(
		[]string{"BEL116", "2020-01-07", "", "SO4"},
		[]string{"BEL116", "bad", "", "NO3"},
		[]string{"ABT147", "2020-01-07", "", "SO4"},
		[]string{"NULL", "2020-01-07", "", "SO4"},
	)

	counts, err := CountSamples(table, DefaultObservationColumns())

	require.NoError(t, err)
	assert.Equal(t, []SiteSampleCount{
		{SiteID: "ABT147", Count: 1},
		{SiteID: "BEL116", Count: 2},
	}, counts)
}

func TestCountVariables(t *testing.T) {
	table := castnetTable(
		[]string{"BEL116", "2020-01-07", "", "SO4"},
		[]string{"BEL116", "2020-01-14", "", "NO3"},
		[]string{"ABT147", "2020-01-07", "", "SO4"},
		[]string{"ABT147", "2020-01-07", "", ""},
	)

	assert.Equal(t, []VariableSampleCount{
		{Variable: "NO3", Count: 1},
		{Variable: "SO4", Count: 2},
	}, CountVariables(table, DefaultObservationColumns()))

	noVariable := RawTable{Header: []string{"SITE_ID", "DATEON"}}
	assert.Nil(t, CountVariables(noVariable, DefaultObservationColumns()))
}

func TestRankSites(t *testing.T) {
	missing := func(n int) []time.Time { return make([]time.Time, n) }
	records := []MissingRecord{
		{SiteID: "C", RangeStart: date(2020, 1, 1), RangeEnd: date(2021, 1, 1), MissingDates: missing(3)},
		{SiteID: "A", RangeStart: date(2020, 1, 1), RangeEnd: date(2020, 7, 1), MissingDates: missing(5)},
		{SiteID: "B", RangeStart: date(2020, 1, 1), RangeEnd: date(2020, 2, 1), MissingDates: missing(3)},
		{SiteID: "Z", RangeStart: date(2020, 1, 1), RangeEnd: date(2020, 2, 1)},
		{SiteID: "Y", RangeStart: date(2020, 1, 1), RangeEnd: date(2020, 2, 1)},
		{SiteID: "X", RangeStart: date(2020, 1, 1), RangeEnd: date(2020, 2, 1)},
	}

	r := RankSites(records, 2)

	assert.Equal(t, []RankedSite{
		{SiteID: "A", Months: 6, MissingCount: 5},
		{SiteID: "B", Months: 1, MissingCount: 3},
	}, r.Top)
	assert.Equal(t, []string{"X", "Y"}, r.NoLoss)
	assert.Equal(t, 3, r.NoLossTotal)
}

func TestRankSites_ZeroSize(t *testing.T) {
	records := []MissingRecord{{SiteID: "A", MissingDates: make([]time.Time, 1)}}
	assert.Equal(t, Ranking{}, RankSites(records, 0))
}
