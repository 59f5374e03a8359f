// Package fare is the pure, stateless fare calculation engine.
//
// Calculate dispatches on a closed set of agency codes; everything it
// needs arrives in the Context, so identical contexts always yield
// identical results. The engine reads no store and no clock.
package fare

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/mzansipass/transit/agency"
	"github.com/mzansipass/transit/types"
)

// ErrUnsupportedAgency is returned for agency codes outside the closed
// set. The engine never silently defaults.
var ErrUnsupportedAgency = errors.New("fare: unsupported agency")

// Context carries everything a pricing strategy may consult.
type Context struct {
	Agency    agency.Code    `json:"agency"`
	Start     types.GeoPoint `json:"start"`
	End       types.GeoPoint `json:"end"`
	StartTime time.Time      `json:"start_time"`
	EndTime   time.Time      `json:"end_time"`
}

// Result is a priced trip.
type Result struct {
	Amount    types.Money `json:"amount"`
	Breakdown *Breakdown  `json:"breakdown,omitempty"`
}

// Breakdown itemizes a distance-linear fare for auditability. Flat-rate
// fares carry no breakdown.
type Breakdown struct {
	Base       types.Money `json:"base"`
	DistanceKM float64     `json:"distance_km"`
	PerKM      types.Money `json:"per_km"`
}

// Rea Vaya tariff: R10.00 base plus R1.25 per kilometre.
var (
	reaVayaBase  = types.ZAR(1000)
	reaVayaPerKM = types.ZAR(125)
)

// Gautrain placeholder: flat R45.00 until zone-based pricing lands.
var gautrainFlat = types.ZAR(4500)

// Calculate prices a trip for the agency named in the context.
func Calculate(ctx Context) (Result, error) {
	switch ctx.Agency {
	case agency.CodeReaVaya:
		return distanceLinear(ctx, reaVayaBase, reaVayaPerKM), nil
	case agency.CodeGautrain:
		return flatRate(gautrainFlat), nil
	default:
		return Result{}, fmt.Errorf("%w: %q", ErrUnsupportedAgency, ctx.Agency)
	}
}

// distanceLinear prices base + perKM * haversine(start, end), rounded to
// the nearest cent.
func distanceLinear(ctx Context, base, perKM types.Money) Result {
	distanceKM := ctx.Start.DistanceKM(ctx.End)

	variable := types.Money{
		Amount:   int64(math.Round(float64(perKM.Amount) * distanceKM)),
		Currency: perKM.Currency,
	}

	return Result{
		Amount: base.Add(variable),
		Breakdown: &Breakdown{
			Base:       base,
			DistanceKM: math.Round(distanceKM*100) / 100,
			PerKM:      perKM,
		},
	}
}

// flatRate prices every trip the same regardless of geometry.
func flatRate(amount types.Money) Result {
	return Result{Amount: amount}
}
