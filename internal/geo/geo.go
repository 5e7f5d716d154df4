package geo

import (
	"fmt"
	"math"
)

const (
	// EarthRadiusM matches the radius Redis uses for GEO distances so that
	// post-filtering agrees with the store about what is "in range".
	EarthRadiusM = 6372797.560856

	// MaxLat is the highest latitude the geohash encoding behind the presence
	// index accepts.
	MaxLat = 85.05112878
	MaxLng = 180.0
)

type LatLng struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// RangeError reports a coordinate outside the indexable range.
type RangeError struct {
	Field string
	Value float64
	Limit float64
}

func (e *RangeError) Error() string {
	return fmt.Sprintf("%s %.6f outside [-%.8f, %.8f]", e.Field, e.Value, e.Limit, e.Limit)
}

// Validate rejects NaN, infinities and coordinates outside the indexable range.
func (p LatLng) Validate() error {
	if math.IsNaN(p.Lat) || math.IsInf(p.Lat, 0) || p.Lat < -MaxLat || p.Lat > MaxLat {
		return &RangeError{Field: "lat", Value: p.Lat, Limit: MaxLat}
	}
	if math.IsNaN(p.Lng) || math.IsInf(p.Lng, 0) || p.Lng < -MaxLng || p.Lng > MaxLng {
		return &RangeError{Field: "lng", Value: p.Lng, Limit: MaxLng}
	}
	return nil
}

func (p LatLng) String() string { return fmt.Sprintf("(%.6f, %.6f)", p.Lat, p.Lng) }

// DistanceM returns the great-circle (haversine) distance in meters.
func DistanceM(a, b LatLng) float64 {
	lat1 := toRad(a.Lat)
	lat2 := toRad(b.Lat)
	dLat := lat2 - lat1
	dLng := toRad(b.Lng - a.Lng)

	sinLat := math.Sin(dLat / 2)
	sinLng := math.Sin(dLng / 2)
	h := sinLat*sinLat + math.Cos(lat1)*math.Cos(lat2)*sinLng*sinLng
	return 2 * EarthRadiusM * math.Asin(math.Sqrt(Clamp(h, 0, 1)))
}

// Quantize rounds both coordinates to the given number of decimal places.
// Three decimals is roughly a 110 m grid at the equator.
func Quantize(p LatLng, decimals int) LatLng {
	if decimals < 0 {
		decimals = 0
	}
	scale := math.Pow(10, float64(decimals))
	return LatLng{
		Lat: math.Round(p.Lat*scale) / scale,
		Lng: math.Round(p.Lng*scale) / scale,
	}
}

func Clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func toRad(deg float64) float64 { return deg * math.Pi / 180 }
