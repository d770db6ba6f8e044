package geo

import (
	"math"

	"github.com/oshokin/family-guard/internal/domain/guard"
)

// earthRadiusMeters is the mean Earth radius used by the haversine formula.
const earthRadiusMeters = 6371000

// Distance returns the great-circle distance in meters between two
// coordinates, computed with the haversine formula. Altitude is ignored.
func Distance(a, b guard.Coordinate) float64 {
	lat1 := a.Latitude * math.Pi / 180
	lat2 := b.Latitude * math.Pi / 180
	dLat := (b.Latitude - a.Latitude) * math.Pi / 180
	dLng := (b.Longitude - a.Longitude) * math.Pi / 180

	sinLat := math.Sin(dLat / 2)
	sinLng := math.Sin(dLng / 2)

	h := sinLat*sinLat + math.Cos(lat1)*math.Cos(lat2)*sinLng*sinLng

	return 2 * earthRadiusMeters * math.Asin(math.Sqrt(h))
}

// Inside reports whether the point lies within the zone, boundary included.
// Low-accuracy fixes are not rejected here; filtering is the caller's call.
func Inside(point guard.Coordinate, zone *guard.SafeZone) bool {
	center := guard.Coordinate{
		Latitude:  zone.Latitude,
		Longitude: zone.Longitude,
	}

	return Distance(point, center) <= zone.RadiusMeters
}
