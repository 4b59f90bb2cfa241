package geo

import "math"

const earthRadiusMeters = 6371000

// RadiusSlack widens a radius check to absorb GPS error.
const RadiusSlack = 1.05

// Haversine returns the great-circle distance in meters between two points.
func Haversine(lat1, lon1, lat2, lon2 float64) float64 {
	dLat := toRad(lat2 - lat1)
	dLon := toRad(lon2 - lon1)
	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(toRad(lat1))*math.Cos(toRad(lat2))*math.Sin(dLon/2)*math.Sin(dLon/2)
	return earthRadiusMeters * 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
}

// WithinRadius is the client-side "am I inside" check. It is not the
// authoritative polygon check; the radius is multiplied by RadiusSlack.
func WithinRadius(centerLat, centerLon, lat, lon, radiusMeters float64) bool {
	return Haversine(centerLat, centerLon, lat, lon) <= radiusMeters*RadiusSlack
}

func toRad(deg float64) float64 {
	return deg * math.Pi / 180
}
