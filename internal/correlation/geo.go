package correlation

import (
	"math"

	"github.com/skywatch/backend/pkg/threat"
)

const earthRadiusKm = 6371.0

// Haversine returns the great-circle distance in kilometers between two
// lat/lng points. It is symmetric and zero for identical points.
func Haversine(a, b threat.Coordinates) float64 {
	lat1 := a.Lat * math.Pi / 180
	lat2 := b.Lat * math.Pi / 180
	dLat := (b.Lat - a.Lat) * math.Pi / 180
	dLng := (b.Lng - a.Lng) * math.Pi / 180

	sinLat := math.Sin(dLat / 2)
	sinLng := math.Sin(dLng / 2)
	h := sinLat*sinLat + math.Cos(lat1)*math.Cos(lat2)*sinLng*sinLng
	return 2 * earthRadiusKm * math.Asin(math.Min(1, math.Sqrt(h)))
}
