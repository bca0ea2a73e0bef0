package domain

import (
	"context"
	"log/slog"
	"slices"
)

// ResolvePlaces reverse geocodes every listed site that has coordinates and
// returns site id → place label. A nil geocoder yields an empty map. Lookup
// failures are logged and skipped so reports never depend on the provider.
func ResolvePlaces(ctx context.Context, siteIDs []string, idx CoordinateIndex, geocoder Geocoder, logger *slog.Logger) map[string]string {
	places := make(map[string]string)
	if geocoder == nil {
		return places
	}

	for _, id := range siteIDs {
		if _, done := places[id]; done {
			continue
		}
		c, ok := idx.Lookup(id)
		if !ok {
			continue
		}
		if ctx.Err() != nil {
			return places
		}

		result, err := geocoder.ReverseGeocode(ctx, c.Lat, c.Lon)
		if err != nil {
			logger.Warn("reverse geocoding failed",
				"site_id", id,
				"lat", c.Lat,
				"lon", c.Lon,
				"error", err,
			)
			continue
		}
		if label := placeLabel(result); label != "" {
			places[id] = label
		}
	}
	return places
}

// ApplyPlaces attaches resolved place labels to the per-site rows and the
// distinct, sorted labels of each cluster's members to the cluster rows.
func ApplyPlaces(report *SourceReport, places map[string]string) {
	if len(places) == 0 {
		return
	}
	for i := range report.Sites {
		report.Sites[i].Place = places[report.Sites[i].SiteID]
	}
	for i := range report.Clusters {
		var labels []string
		for _, id := range report.Clusters[i].SiteIDs {
			if p := places[id]; p != "" && !slices.Contains(labels, p) {
				labels = append(labels, p)
			}
		}
		slices.Sort(labels)
		report.Clusters[i].Places = labels
	}
}

func placeLabel(r GeocodingResult) string {
	if r.PlaceName != "" {
		return r.PlaceName
	}
	return r.FormattedAddress
}
