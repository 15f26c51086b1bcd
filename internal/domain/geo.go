package domain

import "math"

const earthRadiusMiles = 3959.0

// HaversineMiles returns the great-circle distance between two points in miles.
func HaversineMiles(lat1, lon1, lat2, lon2 float64) float64 {
	lat1Rad := lat1 * math.Pi / 180
	lat2Rad := lat2 * math.Pi / 180
	deltaLat := (lat2 - lat1) * math.Pi / 180
	deltaLon := (lon2 - lon1) * math.Pi / 180

	a := math.Sin(deltaLat/2)*math.Sin(deltaLat/2) +
		math.Cos(lat1Rad)*math.Cos(lat2Rad)*
			math.Sin(deltaLon/2)*math.Sin(deltaLon/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))

	return earthRadiusMiles * c
}

// BoundingBox is a lat/lon rectangle used to prefilter a radius query.
type BoundingBox struct {
	MinLat, MaxLat float64
	MinLon, MaxLon float64
}

// BoundingBoxAround returns a box that contains every point within miles of
// (lat, lon), with a 50% margin. One degree is taken as ~69 miles.
func BoundingBoxAround(lat, lon, miles float64) BoundingBox {
	latDelta := (miles / 69.0) * 1.5
	cosLat := math.Cos(lat * math.Pi / 180)
	lonDelta := 180.0
	if cosLat > 1e-6 {
		lonDelta = math.Min(180, (miles/(69.0*cosLat))*1.5)
	}
	return BoundingBox{
		MinLat: lat - latDelta,
		MaxLat: lat + latDelta,
		MinLon: lon - lonDelta,
		MaxLon: lon + lonDelta,
	}
}

// coverageSlackMiles absorbs float rounding when a query circle touches the
// edge of a covered one.
const coverageSlackMiles = 1e-6

// Coverage records a radius query and span whose complete API answer is in
// the cache. Stations the API did not return are known to be absent.
type Coverage struct {
	Latitude  float64
	Longitude float64
	Miles     float64
	Start     Instant
	End       Instant
}

// Contains reports whether the circle of miles around (lat, lon) lies inside
// the covered circle and [start, end] inside the covered span.
func (c Coverage) Contains(lat, lon, miles float64, start, end Instant) bool {
	if start.Before(c.Start) || end.After(c.End) {
		return false
	}
	return HaversineMiles(c.Latitude, c.Longitude, lat, lon)+miles <= c.Miles+coverageSlackMiles
}
