package domain

import (
	"context"
	"log/slog"
)

// EnrichHazard attaches place details to a hazard event. If geocoder is nil
// the event is returned untouched; if geocoding fails the event is returned
// with GeoSource "failed" so alerts are never dropped for lack of an address.
func EnrichHazard(ctx context.Context, event HazardEvent, geocoder Geocoder, logger *slog.Logger) HazardEvent {
	if geocoder == nil {
		return event
	}

	result, err := geocoder.ReverseGeocode(ctx, event.Geo.Lat, event.Geo.Lon)
	if err != nil {
		logger.Warn("reverse geocoding failed",
			"hazard_id", event.ID,
			"lat", event.Geo.Lat,
			"lon", event.Geo.Lon,
			"error", err,
		)
		event.GeoSource = "failed"
		return event
	}
	if result.FormattedAddress == "" {
		event.GeoSource = "original"
		return event
	}

	event.FormattedAddress = result.FormattedAddress
	event.PlaceName = result.PlaceName
	event.GeoConfidence = result.Confidence
	event.GeoSource = "reverse"
	return event
}
