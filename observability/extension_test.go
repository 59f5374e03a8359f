package observability_test

import (
	"context"
	"testing"
	"time"

	"github.com/mzansipass/transit/id"
	"github.com/mzansipass/transit/observability"
	"github.com/mzansipass/transit/trip"
	"github.com/mzansipass/transit/txn"
	"github.com/mzansipass/transit/types"
)

type fakeCounter struct{ value float64 }

func (c *fakeCounter) Inc()          { c.value++ }
func (c *fakeCounter) Add(v float64) { c.value += v }

type fakeHistogram struct{ samples []float64 }

func (h *fakeHistogram) Observe(v float64) { h.samples = append(h.samples, v) }

type fakeFactory struct {
	counters   map[string]*fakeCounter
	histograms map[string]*fakeHistogram
}

func newFakeFactory() *fakeFactory {
	return &fakeFactory{
		counters:   make(map[string]*fakeCounter),
		histograms: make(map[string]*fakeHistogram),
	}
}

func (f *fakeFactory) Counter(name string) observability.Counter {
	c := &fakeCounter{}
	f.counters[name] = c
	return c
}

func (f *fakeFactory) Histogram(name string) observability.Histogram {
	h := &fakeHistogram{}
	f.histograms[name] = h
	return h
}

func TestTripMetrics(t *testing.T) {
	factory := newFakeFactory()
	ext := observability.NewMetricsExtension(factory)
	ctx := context.Background()

	tr := trip.New(id.NewUserID(), id.NewAgencyID(), "CARD-1", txn.NewFareReference(),
		types.GeoPoint{Lat: -26.2, Lng: 28.0}, time.Now().Add(-10*time.Minute))
	if err := ext.OnTripStarted(ctx, tr); err != nil {
		t.Fatalf("OnTripStarted: %v", err)
	}
	if err := tr.Complete(types.GeoPoint{Lat: -26.1, Lng: 28.1}, time.Now(), types.ZAR(1500)); err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if err := ext.OnTripCompleted(ctx, tr, nil); err != nil {
		t.Fatalf("OnTripCompleted: %v", err)
	}

	if got := factory.counters["transit.trips.started"].value; got != 1 {
		t.Errorf("trips started: got %v, want 1", got)
	}
	if got := factory.counters["transit.trips.completed"].value; got != 1 {
		t.Errorf("trips completed: got %v, want 1", got)
	}

	fares := factory.histograms["transit.fare.amount_cents"].samples
	if len(fares) != 1 || fares[0] != 1500 {
		t.Errorf("fare samples: got %v", fares)
	}
	durations := factory.histograms["transit.trip.duration_seconds"].samples
	if len(durations) != 1 || durations[0] < 500 {
		t.Errorf("duration samples: got %v, want one sample around 600s", durations)
	}
}

func TestSettlementMetrics(t *testing.T) {
	factory := newFakeFactory()
	ext := observability.NewMetricsExtension(factory)

	if err := ext.OnFaresSettled(context.Background(), id.NewAgencyID(), types.ZAR(2500), 2); err != nil {
		t.Fatalf("OnFaresSettled: %v", err)
	}

	if got := factory.counters["transit.settlement.runs"].value; got != 1 {
		t.Errorf("runs: got %v, want 1", got)
	}
	if got := factory.counters["transit.settlement.fares"].value; got != 2 {
		t.Errorf("fares: got %v, want 2", got)
	}
	totals := factory.histograms["transit.settlement.total_cents"].samples
	if len(totals) != 1 || totals[0] != 2500 {
		t.Errorf("totals: got %v", totals)
	}
}
