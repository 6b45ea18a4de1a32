// Package geo provides great-circle distance helpers for recorded routes.
package geo

import "math"

// EarthRadiusKm is the mean Earth radius used for all route distances.
const EarthRadiusKm = 6371.0

// HaversineKm returns the great-circle distance in kilometres between two points.
func HaversineKm(lat1, lng1, lat2, lng2 float64) float64 {
	dLat := toRadians(lat2 - lat1)
	dLng := toRadians(lng2 - lng1)

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(toRadians(lat1))*math.Cos(toRadians(lat2))*math.Sin(dLng/2)*math.Sin(dLng/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))

	return EarthRadiusKm * c
}

// HaversineMeters is HaversineKm in metres.
func HaversineMeters(lat1, lng1, lat2, lng2 float64) float64 {
	return HaversineKm(lat1, lng1, lat2, lng2) * 1000
}

func toRadians(deg float64) float64 {
	return deg * math.Pi / 180
}
