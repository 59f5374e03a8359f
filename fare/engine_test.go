package fare

import (
	"errors"
	"testing"
	"time"

	"github.com/mzansipass/transit/agency"
	"github.com/mzansipass/transit/types"
)

var (
	joburgCBD = types.GeoPoint{Lat: -26.2041, Lng: 28.0473}
	sandton   = types.GeoPoint{Lat: -26.1076, Lng: 28.0567}
)

func reaVayaContext(start, end types.GeoPoint) Context {
	now := time.Date(2026, 3, 12, 7, 30, 0, 0, time.UTC)
	return Context{
		Agency:    agency.CodeReaVaya,
		Start:     start,
		End:       end,
		StartTime: now,
		EndTime:   now.Add(25 * time.Minute),
	}
}

func TestReaVayaZeroDistance(t *testing.T) {
	res, err := Calculate(reaVayaContext(joburgCBD, joburgCBD))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Identical start and end: amount is exactly the base fare.
	if !res.Amount.Equal(types.ZAR(1000)) {
		t.Errorf("amount: got %v, want %v", res.Amount, types.ZAR(1000))
	}
	if res.Breakdown == nil {
		t.Fatal("expected a breakdown")
	}
	if res.Breakdown.DistanceKM != 0 {
		t.Errorf("distance: got %v, want 0", res.Breakdown.DistanceKM)
	}
	if !res.Breakdown.Base.Equal(types.ZAR(1000)) {
		t.Errorf("base: got %v, want %v", res.Breakdown.Base, types.ZAR(1000))
	}
	if !res.Breakdown.PerKM.Equal(types.ZAR(125)) {
		t.Errorf("per_km: got %v, want %v", res.Breakdown.PerKM, types.ZAR(125))
	}
}

func TestReaVayaDistanceLinear(t *testing.T) {
	res, err := Calculate(reaVayaContext(joburgCBD, sandton))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !res.Amount.GreaterThan(types.ZAR(1000)) {
		t.Errorf("fare for a real distance should exceed the base: got %v", res.Amount)
	}
	if res.Breakdown.DistanceKM <= 0 {
		t.Errorf("expected positive distance, got %v", res.Breakdown.DistanceKM)
	}
}

func TestSymmetry(t *testing.T) {
	forward, err := Calculate(reaVayaContext(joburgCBD, sandton))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	reverse, err := Calculate(reaVayaContext(sandton, joburgCBD))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !forward.Amount.Equal(reverse.Amount) {
		t.Errorf("fare not symmetric: %v vs %v", forward.Amount, reverse.Amount)
	}
	if forward.Breakdown.DistanceKM != reverse.Breakdown.DistanceKM {
		t.Errorf("distance not symmetric: %v vs %v",
			forward.Breakdown.DistanceKM, reverse.Breakdown.DistanceKM)
	}
}

func TestDeterminism(t *testing.T) {
	ctx := reaVayaContext(joburgCBD, sandton)

	first, err := Calculate(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	for i := 0; i < 10; i++ {
		again, err := Calculate(ctx)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !again.Amount.Equal(first.Amount) {
			t.Fatalf("run %d: amount %v differs from first %v", i, again.Amount, first.Amount)
		}
		if *again.Breakdown != *first.Breakdown {
			t.Fatalf("run %d: breakdown differs", i)
		}
	}
}

func TestGautrainFlatRate(t *testing.T) {
	tests := []struct {
		name       string
		start, end types.GeoPoint
	}{
		{"zero distance", joburgCBD, joburgCBD},
		{"long distance", joburgCBD, types.GeoPoint{Lat: -25.7479, Lng: 28.2293}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := reaVayaContext(tt.start, tt.end)
			ctx.Agency = agency.CodeGautrain

			res, err := Calculate(ctx)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !res.Amount.Equal(types.ZAR(4500)) {
				t.Errorf("amount: got %v, want %v", res.Amount, types.ZAR(4500))
			}
			if res.Breakdown != nil {
				t.Error("flat-rate fare should carry no breakdown")
			}
		})
	}
}

func TestUnsupportedAgency(t *testing.T) {
	ctx := reaVayaContext(joburgCBD, sandton)
	ctx.Agency = "metrobus"

	_, err := Calculate(ctx)
	if !errors.Is(err, ErrUnsupportedAgency) {
		t.Errorf("expected ErrUnsupportedAgency, got %v", err)
	}
}
