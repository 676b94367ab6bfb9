package geo

import (
	"math"
	"testing"
	"time"
)

// Lagos island to Ikeja, roughly 13.5km apart.
var (
	lagosIsland = Point{Lat: 6.4541, Lng: 3.3947}
	ikeja       = Point{Lat: 6.6018, Lng: 3.3515}
)

func TestDistanceMeters(t *testing.T) {
	d := DistanceMeters(lagosIsland, ikeja)
	if d < 16000 || d > 18000 {
		t.Errorf("distance = %.0fm, want roughly 17km", d)
	}

	if d := DistanceMeters(lagosIsland, lagosIsland); d != 0 {
		t.Errorf("distance to self = %v, want 0", d)
	}
}

func TestDistanceMeters_Symmetric(t *testing.T) {
	ab := DistanceMeters(lagosIsland, ikeja)
	ba := DistanceMeters(ikeja, lagosIsland)
	if math.Abs(ab-ba) > 1e-6 {
		t.Errorf("distance not symmetric: %v vs %v", ab, ba)
	}
}

func TestBearingDegrees(t *testing.T) {
	// Due north.
	b := BearingDegrees(Point{Lat: 0, Lng: 0}, Point{Lat: 1, Lng: 0})
	if math.Abs(b) > 0.01 {
		t.Errorf("bearing = %v, want 0 (north)", b)
	}

	// Due east.
	b = BearingDegrees(Point{Lat: 0, Lng: 0}, Point{Lat: 0, Lng: 1})
	if math.Abs(b-90) > 0.01 {
		t.Errorf("bearing = %v, want 90 (east)", b)
	}
}

func TestAverageSpeed(t *testing.T) {
	start := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	// Two fixes 1 degree of latitude apart (~111km) over one hour.
	fixes := []Fix{
		{Point: Point{Lat: 0, Lng: 0}, At: start},
		{Point: Point{Lat: 1, Lng: 0}, At: start.Add(time.Hour)},
	}

	speed := AverageSpeed(fixes)
	// ~111km/h is ~30.9 m/s.
	if speed < 30 || speed > 32 {
		t.Errorf("speed = %v m/s, want ~30.9", speed)
	}
}

func TestAverageSpeed_Insufficient(t *testing.T) {
	if got := AverageSpeed(nil); got != 0 {
		t.Errorf("AverageSpeed(nil) = %v, want 0", got)
	}
	if got := AverageSpeed([]Fix{{Point: lagosIsland, At: time.Now()}}); got != 0 {
		t.Errorf("single fix speed = %v, want 0", got)
	}

	// Same timestamp on both fixes.
	now := time.Now()
	fixes := []Fix{
		{Point: lagosIsland, At: now},
		{Point: ikeja, At: now},
	}
	if got := AverageSpeed(fixes); got != 0 {
		t.Errorf("zero-elapsed speed = %v, want 0", got)
	}
}

func TestEstimateETA(t *testing.T) {
	eta, ok := EstimateETA(Point{Lat: 0, Lng: 0}, Point{Lat: 1, Lng: 0}, 30.9)
	if !ok {
		t.Fatal("expected ETA to be computable")
	}
	// ~111km at 30.9 m/s is roughly an hour.
	if eta < 55*time.Minute || eta > 65*time.Minute {
		t.Errorf("eta = %v, want ~1h", eta)
	}

	if _, ok := EstimateETA(lagosIsland, ikeja, 0); ok {
		t.Error("expected no ETA for zero speed")
	}
	if _, ok := EstimateETA(lagosIsland, ikeja, -5); ok {
		t.Error("expected no ETA for negative speed")
	}
}
