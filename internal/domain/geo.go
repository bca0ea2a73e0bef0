package domain

import (
	"math"
)

// EarthRadiusKm is the mean Earth radius used for great-circle distances.
const EarthRadiusKm = 6371.0088

// Haversine returns the great-circle distance in kilometers between two
// coordinates. It is symmetric in its arguments.
func Haversine(a, b Coordinates) float64 {
	lat1 := a.Lat * math.Pi / 180
	lat2 := b.Lat * math.Pi / 180
	dLat := (b.Lat - a.Lat) * math.Pi / 180
	dLon := (b.Lon - a.Lon) * math.Pi / 180

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLon/2)*math.Sin(dLon/2)
	return 2 * EarthRadiusKm * math.Asin(math.Min(1, math.Sqrt(h)))
}

// CoordinateStats counts rows absorbed while building a CoordinateIndex.
type CoordinateStats struct {
	Rows       int `json:"rows"`
	Invalid    int `json:"invalid"`    // blank site id, or latitude/longitude unparseable or out of range
	Duplicates int `json:"duplicates"` // later rows for an already indexed site
}

// CoordinateIndex is a read-only site → coordinates lookup. It is safe for
// concurrent use once built.
type CoordinateIndex struct {
	coords map[string]Coordinates
	// unusable holds sites whose first row carried invalid coordinates.
	unusable map[string]struct{}
}

// NewCoordinateIndex builds an index from an in-memory map.
func NewCoordinateIndex(coords map[string]Coordinates) CoordinateIndex {
	idx := CoordinateIndex{
		coords:   make(map[string]Coordinates, len(coords)),
		unusable: make(map[string]struct{}),
	}
	for id, c := range coords {
		idx.coords[id] = c
	}
	return idx
}

// Lookup returns the coordinates of a site and whether they are known.
func (i CoordinateIndex) Lookup(siteID string) (Coordinates, bool) {
	c, ok := i.coords[siteID]
	return c, ok
}

// Len is the number of sites with usable coordinates.
func (i CoordinateIndex) Len() int { return len(i.coords) }

// BuildCoordinateIndex reads site coordinates from tables in order. The first
// row seen for a site wins, including when that row's coordinates are
// unusable: such a site stays without coordinates. A table lacking a required
// column yields a *SchemaError.
func BuildCoordinateIndex(tables []RawTable, cols CoordinateColumns) (CoordinateIndex, CoordinateStats, error) {
	cols = cols.WithDefaults()
	idx := NewCoordinateIndex(nil)
	var stats CoordinateStats

	for _, t := range tables {
		siteIdx, err := t.requireColumn("coordinates", cols.SiteID)
		if err != nil {
			return CoordinateIndex{}, stats, err
		}
		latIdx, err := t.requireColumn("coordinates", cols.Latitude)
		if err != nil {
			return CoordinateIndex{}, stats, err
		}
		lonIdx, err := t.requireColumn("coordinates", cols.Longitude)
		if err != nil {
			return CoordinateIndex{}, stats, err
		}

		for _, row := range t.Rows {
			stats.Rows++
			siteID := cell(row, siteIdx)
			if siteID == "" {
				stats.Invalid++
				continue
			}
			if idx.seen(siteID) {
				stats.Duplicates++
				continue
			}

			lat, okLat := parseDegrees(cell(row, latIdx), 90)
			lon, okLon := parseDegrees(cell(row, lonIdx), 180)
			if !okLat || !okLon {
				stats.Invalid++
				idx.unusable[siteID] = struct{}{}
				continue
			}
			idx.coords[siteID] = Coordinates{Lat: lat, Lon: lon}
		}
	}
	return idx, stats, nil
}

func (i CoordinateIndex) seen(siteID string) bool {
	if _, ok := i.coords[siteID]; ok {
		return true
	}
	_, ok := i.unusable[siteID]
	return ok
}
