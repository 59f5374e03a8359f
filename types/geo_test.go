package types

import (
	"math"
	"testing"
)

func TestDistanceKM(t *testing.T) {
	tests := []struct {
		name      string
		a, b      GeoPoint
		wantKM    float64
		tolerance float64
	}{
		{
			name:   "identical points",
			a:      GeoPoint{Lat: -26.2041, Lng: 28.0473},
			b:      GeoPoint{Lat: -26.2041, Lng: 28.0473},
			wantKM: 0, tolerance: 1e-9,
		},
		{
			// Johannesburg CBD to Sandton, roughly 12 km.
			name:   "Joburg to Sandton",
			a:      GeoPoint{Lat: -26.2041, Lng: 28.0473},
			b:      GeoPoint{Lat: -26.1076, Lng: 28.0567},
			wantKM: 10.8, tolerance: 0.5,
		},
		{
			// Johannesburg to Pretoria, roughly 55 km.
			name:   "Joburg to Pretoria",
			a:      GeoPoint{Lat: -26.2041, Lng: 28.0473},
			b:      GeoPoint{Lat: -25.7479, Lng: 28.2293},
			wantKM: 53.9, tolerance: 1.0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.a.DistanceKM(tt.b)
			if math.Abs(got-tt.wantKM) > tt.tolerance {
				t.Errorf("DistanceKM: got %.3f, want %.3f ± %.3f", got, tt.wantKM, tt.tolerance)
			}
		})
	}
}

func TestDistanceSymmetry(t *testing.T) {
	a := GeoPoint{Lat: -26.2041, Lng: 28.0473}
	b := GeoPoint{Lat: -25.7479, Lng: 28.2293}

	if d1, d2 := a.DistanceKM(b), b.DistanceKM(a); math.Abs(d1-d2) > 1e-9 {
		t.Errorf("distance not symmetric: %.9f vs %.9f", d1, d2)
	}
}
