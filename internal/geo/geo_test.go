package geo

import (
	"errors"
	"math"
	"testing"
)

var (
	losAngeles = Coordinate{Latitude: 34.052235, Longitude: -118.243683}
	newYork    = Coordinate{Latitude: 40.7, Longitude: -74.0}
	nearLA     = Coordinate{Latitude: 34.0, Longitude: -118.3}
	london     = Coordinate{Latitude: 51.5074, Longitude: -0.1278}
)

func TestDistance_KnownPair(t *testing.T) {
	d, err := Distance(losAngeles, newYork)
	if err != nil {
		t.Fatalf("Distance failed: %v", err)
	}
	// LA to NYC great-circle is roughly 3936 km.
	if math.Abs(d-3936) > 15 {
		t.Errorf("expected ~3936 km, got %.1f", d)
	}
}

func TestDistance_Symmetry(t *testing.T) {
	points := []Coordinate{losAngeles, newYork, nearLA, london, {Latitude: -33.87, Longitude: 151.21}}
	for _, a := range points {
		for _, b := range points {
			ab, _ := Distance(a, b)
			ba, _ := Distance(b, a)
			if math.Abs(ab-ba) > 1e-9 {
				t.Errorf("distance not symmetric for %v,%v: %v vs %v", a, b, ab, ba)
			}
		}
	}
}

func TestDistance_SamePointIsZero(t *testing.T) {
	for _, p := range []Coordinate{losAngeles, newYork, {Latitude: 90, Longitude: 180}} {
		d, err := Distance(p, p)
		if err != nil {
			t.Fatalf("Distance failed: %v", err)
		}
		if d != 0 {
			t.Errorf("expected 0 for %v, got %v", p, d)
		}
	}
}

func TestDistance_TriangleInequality(t *testing.T) {
	points := []Coordinate{losAngeles, newYork, nearLA, london, {Latitude: 0, Longitude: 0}, {Latitude: -45, Longitude: 170}}
	for _, a := range points {
		for _, b := range points {
			for _, c := range points {
				ac, _ := Distance(a, c)
				ab, _ := Distance(a, b)
				bc, _ := Distance(b, c)
				if ac > ab+bc+1e-6 {
					t.Errorf("triangle inequality violated: d(%v,%v)=%v > %v+%v", a, c, ac, ab, bc)
				}
			}
		}
	}
}

func TestDistance_Antipodal(t *testing.T) {
	d, err := Distance(Coordinate{Latitude: 0, Longitude: 0}, Coordinate{Latitude: 0, Longitude: 180})
	if err != nil {
		t.Fatalf("Distance failed: %v", err)
	}
	half := math.Pi * EarthRadiusKm
	if math.Abs(d-half) > 1e-6 {
		t.Errorf("expected half circumference %v, got %v", half, d)
	}
}

func TestDistance_AntipodalOffEquator(t *testing.T) {
	half := math.Pi * EarthRadiusKm
	for lat := -89.0; lat <= 89; lat += 0.5 {
		for lon := -179.5; lon <= 0; lon += 0.5 {
			a := Coordinate{Latitude: lat, Longitude: lon}
			b := Coordinate{Latitude: -lat, Longitude: lon + 180}

			d, err := Distance(a, b)
			if err != nil {
				t.Fatalf("Distance(%v, %v) failed: %v", a, b, err)
			}
			if math.IsNaN(d) || math.Abs(d-half) > 1e-3 {
				t.Fatalf("Distance(%v, %v) = %v, expected %v", a, b, d, half)
			}
			back, _ := Distance(b, a)
			if back != d {
				t.Fatalf("Distance not symmetric for %v, %v: %v vs %v", a, b, d, back)
			}
		}
	}
}

func TestDistance_InvalidCoordinate(t *testing.T) {
	tests := []struct {
		name string
		c    Coordinate
	}{
		{"latitude too high", Coordinate{Latitude: 91, Longitude: 0}},
		{"latitude too low", Coordinate{Latitude: -90.1, Longitude: 0}},
		{"longitude too high", Coordinate{Latitude: 0, Longitude: 180.5}},
		{"NaN latitude", Coordinate{Latitude: math.NaN(), Longitude: 0}},
		{"NaN longitude", Coordinate{Latitude: 0, Longitude: math.NaN()}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Distance(tt.c, losAngeles); !errors.Is(err, ErrInvalidCoordinate) {
				t.Errorf("expected ErrInvalidCoordinate, got %v", err)
			}
			if _, err := Distance(losAngeles, tt.c); !errors.Is(err, ErrInvalidCoordinate) {
				t.Errorf("expected ErrInvalidCoordinate for second arg, got %v", err)
			}
		})
	}
}

func TestWithin_FiftyMilesOfLosAngeles(t *testing.T) {
	radius := MilesToKm(50)

	ok, err := Within(losAngeles, nearLA, radius)
	if err != nil {
		t.Fatalf("Within failed: %v", err)
	}
	if !ok {
		t.Error("expected point near LA to be within 50 miles")
	}

	ok, err = Within(losAngeles, newYork, radius)
	if err != nil {
		t.Fatalf("Within failed: %v", err)
	}
	if ok {
		t.Error("expected New York to be outside 50 miles of LA")
	}
}

func TestWithin_AntipodeInsideHalfCircumference(t *testing.T) {
	ok, err := Within(Coordinate{Latitude: 45.5, Longitude: -120.5}, Coordinate{Latitude: -45.5, Longitude: 59.5}, math.Pi*EarthRadiusKm+1)
	if err != nil {
		t.Fatalf("Within failed: %v", err)
	}
	if !ok {
		t.Error("expected antipode to be within half the circumference")
	}
}

func TestValidateRadius(t *testing.T) {
	for _, r := range []float64{0, 1, 50000} {
		if err := ValidateRadius(r); err != nil {
			t.Errorf("ValidateRadius(%v): unexpected error %v", r, err)
		}
	}
	for _, r := range []float64{-1, math.NaN(), math.Inf(1), math.Inf(-1)} {
		if err := ValidateRadius(r); !errors.Is(err, ErrInvalidRadius) {
			t.Errorf("ValidateRadius(%v): expected ErrInvalidRadius, got %v", r, err)
		}
	}
	if _, err := Within(losAngeles, nearLA, math.NaN()); !errors.Is(err, ErrInvalidRadius) {
		t.Errorf("Within with NaN radius: expected ErrInvalidRadius, got %v", err)
	}
}

func TestNewCoordinate(t *testing.T) {
	if _, err := NewCoordinate(34, -118); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if _, err := NewCoordinate(-100, 0); !errors.Is(err, ErrInvalidCoordinate) {
		t.Errorf("expected ErrInvalidCoordinate, got %v", err)
	}
}

func TestMilesKmRoundTrip(t *testing.T) {
	if got := KmToMiles(MilesToKm(50)); math.Abs(got-50) > 1e-9 {
		t.Errorf("expected 50, got %v", got)
	}
}
