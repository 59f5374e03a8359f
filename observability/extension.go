// Package observability provides a metrics extension for the transit
// core that records lifecycle event counts and fare distributions.
//
// Metric interfaces are defined locally so the package works with any
// backend: wrap your Prometheus or statsd client in a MetricFactory at
// wiring time.
package observability

import (
	"context"

	"github.com/mzansipass/transit/hook"
	"github.com/mzansipass/transit/id"
	"github.com/mzansipass/transit/trip"
	"github.com/mzansipass/transit/txn"
	"github.com/mzansipass/transit/types"
)

// Ensure MetricsExtension implements required interfaces.
var (
	_ hook.Hook             = (*MetricsExtension)(nil)
	_ hook.OnInit           = (*MetricsExtension)(nil)
	_ hook.OnTripStarted    = (*MetricsExtension)(nil)
	_ hook.OnTripCompleted  = (*MetricsExtension)(nil)
	_ hook.OnTripCancelled  = (*MetricsExtension)(nil)
	_ hook.OnTripRefunded   = (*MetricsExtension)(nil)
	_ hook.OnTopupInitiated = (*MetricsExtension)(nil)
	_ hook.OnTopupSettled   = (*MetricsExtension)(nil)
	_ hook.OnFaresSettled   = (*MetricsExtension)(nil)
)

// Counter interface for metric counters.
type Counter interface {
	Inc()
	Add(float64)
}

// Histogram interface for metric histograms.
type Histogram interface {
	Observe(float64)
}

// MetricFactory creates metrics.
type MetricFactory interface {
	Counter(name string) Counter
	Histogram(name string) Histogram
}

// MetricsExtension records system-wide lifecycle metrics.
// Register it with transit.WithHook to automatically track fare
// collection metrics.
type MetricsExtension struct {
	factory MetricFactory

	// Trip metrics
	TripsStarted   Counter
	TripsCompleted Counter
	TripsCancelled Counter
	TripsRefunded  Counter
	FareAmount     Histogram
	TripDuration   Histogram

	// Payment metrics
	TopupsInitiated Counter
	TopupsSettled   Counter
	TopupAmount     Histogram

	// Settlement metrics
	SettlementRuns  Counter
	SettledFares    Counter
	SettlementTotal Histogram
}

// NewMetricsExtension creates a MetricsExtension with the provided
// MetricFactory.
func NewMetricsExtension(factory MetricFactory) *MetricsExtension {
	return &MetricsExtension{
		factory: factory,

		// Trip metrics
		TripsStarted:   factory.Counter("transit.trips.started"),
		TripsCompleted: factory.Counter("transit.trips.completed"),
		TripsCancelled: factory.Counter("transit.trips.cancelled"),
		TripsRefunded:  factory.Counter("transit.trips.refunded"),
		FareAmount:     factory.Histogram("transit.fare.amount_cents"),
		TripDuration:   factory.Histogram("transit.trip.duration_seconds"),

		// Payment metrics
		TopupsInitiated: factory.Counter("transit.topups.initiated"),
		TopupsSettled:   factory.Counter("transit.topups.settled"),
		TopupAmount:     factory.Histogram("transit.topup.amount_cents"),

		// Settlement metrics
		SettlementRuns:  factory.Counter("transit.settlement.runs"),
		SettledFares:    factory.Counter("transit.settlement.fares"),
		SettlementTotal: factory.Histogram("transit.settlement.total_cents"),
	}
}

// Name implements hook.Hook.
func (m *MetricsExtension) Name() string { return "observability-metrics" }

// OnInit implements hook.OnInit.
func (m *MetricsExtension) OnInit(_ context.Context, _ interface{}) error {
	return nil
}

// OnTripStarted implements hook.OnTripStarted.
func (m *MetricsExtension) OnTripStarted(_ context.Context, _ *trip.Trip) error {
	m.TripsStarted.Inc()
	return nil
}

// OnTripCompleted implements hook.OnTripCompleted.
func (m *MetricsExtension) OnTripCompleted(_ context.Context, t *trip.Trip, _ *txn.Transaction) error {
	m.TripsCompleted.Inc()
	m.FareAmount.Observe(float64(t.Fare.Amount))
	if t.EndTime != nil {
		m.TripDuration.Observe(t.EndTime.Sub(t.StartTime).Seconds())
	}
	return nil
}

// OnTripCancelled implements hook.OnTripCancelled.
func (m *MetricsExtension) OnTripCancelled(_ context.Context, _ *trip.Trip) error {
	m.TripsCancelled.Inc()
	return nil
}

// OnTripRefunded implements hook.OnTripRefunded.
func (m *MetricsExtension) OnTripRefunded(_ context.Context, _ *trip.Trip, _ *txn.Transaction) error {
	m.TripsRefunded.Inc()
	return nil
}

// OnTopupInitiated implements hook.OnTopupInitiated.
func (m *MetricsExtension) OnTopupInitiated(_ context.Context, _ *txn.Transaction) error {
	m.TopupsInitiated.Inc()
	return nil
}

// OnTopupSettled implements hook.OnTopupSettled.
func (m *MetricsExtension) OnTopupSettled(_ context.Context, t *txn.Transaction) error {
	m.TopupsSettled.Inc()
	m.TopupAmount.Observe(float64(t.Amount.Amount))
	return nil
}

// OnFaresSettled implements hook.OnFaresSettled.
func (m *MetricsExtension) OnFaresSettled(_ context.Context, _ id.AgencyID, total types.Money, count int64) error {
	m.SettlementRuns.Inc()
	m.SettledFares.Add(float64(count))
	m.SettlementTotal.Observe(float64(total.Amount))
	return nil
}
