// Package geo provides great-circle distance and ETA estimation for
// position samples.
package geo

import (
	"math"
	"time"
)

// EarthRadiusMeters is the mean earth radius used by the haversine formula.
const EarthRadiusMeters = 6371000.0

// Point is a WGS84 coordinate.
type Point struct {
	Lat float64
	Lng float64
}

// DistanceMeters returns the haversine great-circle distance between two
// points in meters.
func DistanceMeters(a, b Point) float64 {
	latA := radians(a.Lat)
	latB := radians(b.Lat)
	dLat := radians(b.Lat - a.Lat)
	dLng := radians(b.Lng - a.Lng)

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(latA)*math.Cos(latB)*math.Sin(dLng/2)*math.Sin(dLng/2)

	return 2 * EarthRadiusMeters * math.Asin(math.Sqrt(h))
}

// BearingDegrees returns the initial bearing from a to b in degrees
// [0, 360).
func BearingDegrees(a, b Point) float64 {
	latA := radians(a.Lat)
	latB := radians(b.Lat)
	dLng := radians(b.Lng - a.Lng)

	y := math.Sin(dLng) * math.Cos(latB)
	x := math.Cos(latA)*math.Sin(latB) - math.Sin(latA)*math.Cos(latB)*math.Cos(dLng)

	deg := degrees(math.Atan2(y, x))
	return math.Mod(deg+360, 360)
}

// Fix is a timestamped position used for speed estimation.
type Fix struct {
	Point Point
	At    time.Time
}

// AverageSpeed returns the average ground speed in meters per second across
// an ordered series of fixes. Returns 0 when fewer than two fixes span a
// positive interval.
func AverageSpeed(fixes []Fix) float64 {
	if len(fixes) < 2 {
		return 0
	}

	var meters float64
	for i := 1; i < len(fixes); i++ {
		meters += DistanceMeters(fixes[i-1].Point, fixes[i].Point)
	}

	elapsed := fixes[len(fixes)-1].At.Sub(fixes[0].At)
	if elapsed <= 0 {
		return 0
	}

	return meters / elapsed.Seconds()
}

// EstimateETA returns the estimated time to reach dest from the latest fix,
// given an average speed in m/s. Returns 0 and false when the speed is not
// positive (stationary driver or insufficient data).
func EstimateETA(from Point, dest Point, speedMps float64) (time.Duration, bool) {
	if speedMps <= 0 {
		return 0, false
	}

	meters := DistanceMeters(from, dest)
	seconds := meters / speedMps
	return time.Duration(seconds * float64(time.Second)), true
}

func radians(deg float64) float64 { return deg * math.Pi / 180 }
func degrees(rad float64) float64 { return rad * 180 / math.Pi }
