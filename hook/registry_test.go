package hook_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/mzansipass/transit/hook"
	"github.com/mzansipass/transit/id"
	"github.com/mzansipass/transit/trip"
	"github.com/mzansipass/transit/txn"
	"github.com/mzansipass/transit/types"
)

type tripWatcher struct {
	name      string
	started   int
	completed int
	err       error
}

func (w *tripWatcher) Name() string { return w.name }

func (w *tripWatcher) OnTripStarted(_ context.Context, _ *trip.Trip) error {
	w.started++
	return w.err
}

func (w *tripWatcher) OnTripCompleted(_ context.Context, _ *trip.Trip, _ *txn.Transaction) error {
	w.completed++
	return nil
}

func newTrip() *trip.Trip {
	return trip.New(id.NewUserID(), id.NewAgencyID(), "CARD-1", txn.NewFareReference(),
		types.GeoPoint{Lat: -26.2, Lng: 28.0}, time.Now())
}

func TestRegisterAndDispatch(t *testing.T) {
	r := hook.NewRegistry()
	w := &tripWatcher{name: "watcher"}

	if err := r.Register(w); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if r.Count() != 1 {
		t.Errorf("count: got %d", r.Count())
	}
	if r.Get("watcher") == nil {
		t.Error("Get returned nil")
	}

	r.EmitTripStarted(context.Background(), newTrip())
	r.EmitTripCompleted(context.Background(), newTrip(), nil)
	// The watcher does not implement OnTripCancelled; this must not panic.
	r.EmitTripCancelled(context.Background(), newTrip())

	if w.started != 1 {
		t.Errorf("started: got %d, want 1", w.started)
	}
	if w.completed != 1 {
		t.Errorf("completed: got %d, want 1", w.completed)
	}
}

func TestDuplicateRegistration(t *testing.T) {
	r := hook.NewRegistry()
	if err := r.Register(&tripWatcher{name: "dup"}); err != nil {
		t.Fatalf("first: %v", err)
	}
	if err := r.Register(&tripWatcher{name: "dup"}); err == nil {
		t.Fatal("duplicate registration must fail")
	}
}

func TestHookErrorsDoNotPropagate(t *testing.T) {
	r := hook.NewRegistry()
	failing := &tripWatcher{name: "failing", err: errors.New("backend down")}
	healthy := &tripWatcher{name: "healthy"}
	if err := r.Register(failing); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if err := r.Register(healthy); err != nil {
		t.Fatalf("Register: %v", err)
	}

	// Emission is fire-and-forget: a failing hook is logged and the
	// rest still run.
	r.EmitTripStarted(context.Background(), newTrip())

	if failing.started != 1 || healthy.started != 1 {
		t.Errorf("dispatch: failing %d, healthy %d, want 1 and 1",
			failing.started, healthy.started)
	}
}
