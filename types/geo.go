package types

import "math"

// earthRadiusKM is the mean Earth radius used for great-circle distances.
const earthRadiusKM = 6371.0

// GeoPoint is a latitude/longitude pair in decimal degrees.
type GeoPoint struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// DistanceKM returns the great-circle (haversine) distance in kilometres
// between p and other on a sphere of Earth's radius.
func (p GeoPoint) DistanceKM(other GeoPoint) float64 {
	lat1 := radians(p.Lat)
	lat2 := radians(other.Lat)
	dlat := radians(other.Lat - p.Lat)
	dlng := radians(other.Lng - p.Lng)

	a := math.Sin(dlat/2)*math.Sin(dlat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dlng/2)*math.Sin(dlng/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))

	return earthRadiusKM * c
}

func radians(deg float64) float64 {
	return deg * math.Pi / 180
}
