package domain

import (
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHaversine(t *testing.T) {
	tests := []struct {
		name     string
		a, b     Coordinates
		expected float64
		delta    float64
	}{
		{"same point", Coordinates{Lat: 35, Lon: -97}, Coordinates{Lat: 35, Lon: -97}, 0, 1e-9},
		{"half degree on the equator", Coordinates{Lat: 0, Lon: 0}, Coordinates{Lat: 0, Lon: 0.5}, 55.6, 0.1},
		{"one degree of latitude", Coordinates{Lat: 10, Lon: 20}, Coordinates{Lat: 11, Lon: 20}, 111.2, 0.1},
		{"Austin to Dallas", Coordinates{Lat: 30.2672, Lon: -97.7431}, Coordinates{Lat: 32.7767, Lon: -96.797}, 292, 2},
		{"antipodes", Coordinates{Lat: 0, Lon: 0}, Coordinates{Lat: 0, Lon: 180}, 20015.1, 0.5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.expected, Haversine(tt.a, tt.b), tt.delta)
		})
	}
}

func TestHaversine_Symmetric(t *testing.T) {
	r := rand.New(rand.NewPCG(1, 2))
	for range 500 {
		a := Coordinates{Lat: r.Float64()*180 - 90, Lon: r.Float64()*360 - 180}
		b := Coordinates{Lat: r.Float64()*180 - 90, Lon: r.Float64()*360 - 180}
		assert.InDelta(t, Haversine(a, b), Haversine(b, a), 1e-9)
	}
}

func TestBuildCoordinateIndex(t *testing.T) {
	sites := RawTable{
		Source: "sites.csv",
		Header: []string{"SITE_ID", "LATITUDE", "LONGITUDE", "STATE"},
		Rows: [][]string{
			{"BEL116", "39.0284", "-76.8171", "MD"},
			{"BEL116", "40.0", "-70.0", "MD"}, // duplicate: first wins
			{"BAD001", "north", "-70.0", "ME"},
			{"BAD001", "44.0", "-70.0", "ME"}, // first row was unusable and still wins
			{"OUT001", "91", "0", ""},
			{"", "10", "10", ""},
			{"SHORT1", "35.0"},
		},
	}
	more := RawTable{
		Source: "extra.csv",
		Header: []string{"LONGITUDE", "LATITUDE", "SITE_ID"},
		Rows: [][]string{
			{"-96.5", "35.5", "CHE185"},
			{"-1", "1", "BEL116"},
		},
	}

	idx, stats, err := BuildCoordinateIndex([]RawTable{sites, more}, DefaultCoordinateColumns())

	require.NoError(t, err)
	assert.Equal(t, 2, idx.Len())

	c, ok := idx.Lookup("BEL116")
	require.True(t, ok)
	assert.Equal(t, Coordinates{Lat: 39.0284, Lon: -76.8171}, c)

	c, ok = idx.Lookup("CHE185")
	require.True(t, ok)
	assert.Equal(t, Coordinates{Lat: 35.5, Lon: -96.5}, c)

	for _, id := range []string{"BAD001", "OUT001", "SHORT1", "NOPE"} {
		_, ok := idx.Lookup(id)
		assert.False(t, ok, id)
	}

	assert.Equal(t, 9, stats.Rows)
	assert.Equal(t, 4, stats.Invalid)
	assert.Equal(t, 3, stats.Duplicates)
}

func TestBuildCoordinateIndex_SchemaError(t *testing.T) {
	table := RawTable{Source: "sites.csv", Header: []string{"SITE_ID", "LAT", "LONGITUDE"}}

	_, _, err := BuildCoordinateIndex([]RawTable{table}, DefaultCoordinateColumns())

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrSchema)
	var schemaErr *SchemaError
	require.ErrorAs(t, err, &schemaErr)
	assert.Equal(t, "LATITUDE", schemaErr.Column)
	assert.Equal(t, "coordinates", schemaErr.Table)
	assert.Equal(t, "sites.csv", schemaErr.Source)
}

func TestBuildCoordinateIndex_CustomColumns(t *testing.T) {
	table := RawTable{
		Header: []string{"id", "lat", "lon"},
		Rows:   [][]string{{"X1", "1.5", "2.5"}},
	}

	idx, _, err := BuildCoordinateIndex([]RawTable{table}, CoordinateColumns{SiteID: "id", Latitude: "lat", Longitude: "lon"})

	require.NoError(t, err)
	c, ok := idx.Lookup("X1")
	require.True(t, ok)
	assert.Equal(t, Coordinates{Lat: 1.5, Lon: 2.5}, c)
}
