package sqlite_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/mzansipass/transit"
	"github.com/mzansipass/transit/account"
	"github.com/mzansipass/transit/agency"
	"github.com/mzansipass/transit/id"
	"github.com/mzansipass/transit/store"
	"github.com/mzansipass/transit/store/sqlite"
	"github.com/mzansipass/transit/trip"
	"github.com/mzansipass/transit/txn"
	"github.com/mzansipass/transit/types"
)

func newStore(t *testing.T) *sqlite.Store {
	t.Helper()

	s, err := sqlite.New(":memory:")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })

	if err := s.Migrate(context.Background()); err != nil {
		t.Fatalf("Migrate: %v", err)
	}
	return s
}

func seed(t *testing.T, s *sqlite.Store, balanceCents int64) (*account.User, *agency.Agency) {
	t.Helper()
	ctx := context.Background()

	u := account.NewUser("rider@example.com", "Rider")
	if err := s.CreateUser(ctx, u); err != nil {
		t.Fatalf("CreateUser: %v", err)
	}

	a := &agency.Agency{
		Entity: types.NewEntity(),
		ID:     id.NewAgencyID(),
		Name:   "Rea Vaya",
		Code:   agency.CodeReaVaya,
		Active: true,
	}
	if err := s.CreateAgency(ctx, a); err != nil {
		t.Fatalf("CreateAgency: %v", err)
	}

	if balanceCents > 0 {
		pending := txn.NewTopup(u.ID, types.ZAR(balanceCents), txn.NewTopupReference())
		if err := s.RecordTransaction(ctx, pending); err != nil {
			t.Fatalf("RecordTransaction: %v", err)
		}
		if _, _, err := s.SettleTopup(ctx, store.TopupSettlement{
			Reference: pending.Reference,
			Amount:    types.ZAR(balanceCents),
			Payload:   []byte(`{"status":"success"}`),
		}); err != nil {
			t.Fatalf("SettleTopup: %v", err)
		}
	}
	return u, a
}

func TestMigrateIsIdempotent(t *testing.T) {
	s := newStore(t)
	if err := s.Migrate(context.Background()); err != nil {
		t.Fatalf("second migrate: %v", err)
	}
}

func TestUserRoundTrip(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	u, _ := seed(t, s, 2500)

	got, err := s.GetUser(ctx, u.ID)
	if err != nil {
		t.Fatalf("GetUser: %v", err)
	}
	if got.Email != u.Email || got.Balance.Amount != 2500 {
		t.Errorf("round trip: got %s / %d", got.Email, got.Balance.Amount)
	}

	byEmail, err := s.GetUserByEmail(ctx, u.Email)
	if err != nil {
		t.Fatalf("GetUserByEmail: %v", err)
	}
	if byEmail.ID.String() != u.ID.String() {
		t.Errorf("by email: got %s, want %s", byEmail.ID, u.ID)
	}

	err = s.CreateUser(ctx, account.NewUser(u.Email, "Imposter"))
	if !errors.Is(err, transit.ErrUserExists) {
		t.Errorf("duplicate email: got %v, want ErrUserExists", err)
	}
}

func TestActiveTripUniqueIndex(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	u, a := seed(t, s, 2000)

	first := trip.New(u.ID, a.ID, "CARD-1", txn.NewFareReference(),
		types.GeoPoint{Lat: -26.2041, Lng: 28.0473}, time.Now())
	if err := s.CreateTrip(ctx, first); err != nil {
		t.Fatalf("first trip: %v", err)
	}

	second := trip.New(u.ID, a.ID, "CARD-1", txn.NewFareReference(),
		types.GeoPoint{Lat: -26.2041, Lng: 28.0473}, time.Now())
	err := s.CreateTrip(ctx, second)
	if !errors.Is(err, transit.ErrActiveTripConflict) {
		t.Fatalf("got %v, want ErrActiveTripConflict", err)
	}

	active, err := s.ActiveTrip(ctx, u.ID, "CARD-1")
	if err != nil {
		t.Fatalf("ActiveTrip: %v", err)
	}
	if active.ID.String() != first.ID.String() {
		t.Errorf("active: got %s, want %s", active.ID, first.ID)
	}
}

func TestCompleteTripAtomicUnit(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	u, a := seed(t, s, 2000)

	tr := trip.New(u.ID, a.ID, "CARD-1", txn.NewFareReference(),
		types.GeoPoint{Lat: -26.2041, Lng: 28.0473}, time.Now())
	if err := s.CreateTrip(ctx, tr); err != nil {
		t.Fatalf("CreateTrip: %v", err)
	}

	fareAmount := types.ZAR(1000)
	done, err := s.CompleteTrip(ctx, store.TripCompletion{
		TripID:          tr.ID,
		ExpectedVersion: tr.Version,
		End:             types.GeoPoint{Lat: -26.1076, Lng: 28.0567},
		EndTime:         time.Now(),
		Fare:            fareAmount,
		Transaction:     txn.NewFare(u.ID, a.ID, fareAmount, tr.Reference, txn.FareMeta{TripID: tr.ID}),
	})
	if err != nil {
		t.Fatalf("CompleteTrip: %v", err)
	}
	if done.Status != trip.StatusCompleted {
		t.Errorf("status: got %s", done.Status)
	}

	// Trip row persisted with end point and bumped version.
	persisted, err := s.GetTrip(ctx, tr.ID)
	if err != nil {
		t.Fatalf("GetTrip: %v", err)
	}
	if persisted.End == nil || persisted.EndTime == nil {
		t.Error("end point not persisted")
	}
	if persisted.Version != tr.Version+1 {
		t.Errorf("version: got %d", persisted.Version)
	}

	after, _ := s.GetUser(ctx, u.ID)
	if after.Balance.Amount != 1000 {
		t.Errorf("balance: got %d, want 1000", after.Balance.Amount)
	}

	rec, err := s.GetTransactionByReference(ctx, tr.Reference)
	if err != nil {
		t.Fatalf("fare record: %v", err)
	}
	if rec.Amount.Amount != -1000 {
		t.Errorf("fare amount: got %d, want -1000", rec.Amount.Amount)
	}
	if rec.Meta.Fare == nil || rec.Meta.Fare.TripID.String() != tr.ID.String() {
		t.Errorf("meta: got %+v", rec.Meta)
	}
}

func TestCompleteTripInsufficientBalanceRollsBack(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	u, a := seed(t, s, 600)

	tr := trip.New(u.ID, a.ID, "CARD-1", txn.NewFareReference(),
		types.GeoPoint{Lat: -26.2041, Lng: 28.0473}, time.Now())
	if err := s.CreateTrip(ctx, tr); err != nil {
		t.Fatalf("CreateTrip: %v", err)
	}

	fareAmount := types.ZAR(1000)
	_, err := s.CompleteTrip(ctx, store.TripCompletion{
		TripID:          tr.ID,
		ExpectedVersion: tr.Version,
		End:             types.GeoPoint{Lat: -26.1, Lng: 28.0},
		EndTime:         time.Now(),
		Fare:            fareAmount,
		Transaction:     txn.NewFare(u.ID, a.ID, fareAmount, tr.Reference, txn.FareMeta{TripID: tr.ID}),
	})
	if !errors.Is(err, transit.ErrInsufficientBalance) {
		t.Fatalf("got %v, want ErrInsufficientBalance", err)
	}

	persisted, _ := s.GetTrip(ctx, tr.ID)
	if !persisted.Active() {
		t.Errorf("trip must stay in progress, got %s", persisted.Status)
	}
	after, _ := s.GetUser(ctx, u.ID)
	if after.Balance.Amount != 600 {
		t.Errorf("balance: got %d, want 600", after.Balance.Amount)
	}
}

func TestSettleTopupIdempotent(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	u, _ := seed(t, s, 0)

	pending := txn.NewTopup(u.ID, types.ZAR(5000), txn.NewTopupReference())
	if err := s.RecordTransaction(ctx, pending); err != nil {
		t.Fatalf("record: %v", err)
	}

	settlement := store.TopupSettlement{
		Reference: pending.Reference,
		Amount:    types.ZAR(5000),
		Payload:   []byte(`{"status":"success"}`),
	}

	_, credited, err := s.SettleTopup(ctx, settlement)
	if err != nil {
		t.Fatalf("first settle: %v", err)
	}
	if !credited {
		t.Fatal("first settle must credit")
	}

	_, credited, err = s.SettleTopup(ctx, settlement)
	if err != nil {
		t.Fatalf("second settle: %v", err)
	}
	if credited {
		t.Fatal("second settle must not credit")
	}

	after, _ := s.GetUser(ctx, u.ID)
	if after.Balance.Amount != 5000 {
		t.Errorf("balance: got %d, want 5000", after.Balance.Amount)
	}

	// Duplicate reference on the unique column.
	err = s.RecordTransaction(ctx, txn.NewTopup(u.ID, types.ZAR(100), pending.Reference))
	if !errors.Is(err, transit.ErrDuplicateReference) {
		t.Errorf("got %v, want ErrDuplicateReference", err)
	}
}

func TestSettleAgencyFares(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	u, a := seed(t, s, 10000)

	ride := func(token string, cents int64) {
		tr := trip.New(u.ID, a.ID, token, txn.NewFareReference(),
			types.GeoPoint{Lat: -26.2, Lng: 28.0}, time.Now())
		if err := s.CreateTrip(ctx, tr); err != nil {
			t.Fatalf("CreateTrip: %v", err)
		}
		fareAmount := types.ZAR(cents)
		if _, err := s.CompleteTrip(ctx, store.TripCompletion{
			TripID:          tr.ID,
			ExpectedVersion: tr.Version,
			End:             types.GeoPoint{Lat: -26.1, Lng: 28.1},
			EndTime:         time.Now(),
			Fare:            fareAmount,
			Transaction:     txn.NewFare(u.ID, a.ID, fareAmount, tr.Reference, txn.FareMeta{TripID: tr.ID}),
		}); err != nil {
			t.Fatalf("CompleteTrip: %v", err)
		}
	}
	ride("CARD-1", 1000)
	ride("CARD-1", 1500)

	total, count, err := s.SettleAgencyFares(ctx, a.ID, time.Now())
	if err != nil {
		t.Fatalf("SettleAgencyFares: %v", err)
	}
	if count != 2 || total.Amount != 2500 {
		t.Errorf("got total %d count %d, want 2500 and 2", total.Amount, count)
	}

	total, count, err = s.SettleAgencyFares(ctx, a.ID, time.Now())
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if count != 0 || !total.IsZero() {
		t.Errorf("second run must find nothing, got total %d count %d", total.Amount, count)
	}
}

func TestCancelTripVersionGuard(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	u, a := seed(t, s, 2000)

	tr := trip.New(u.ID, a.ID, "CARD-1", txn.NewFareReference(),
		types.GeoPoint{Lat: -26.2, Lng: 28.0}, time.Now())
	if err := s.CreateTrip(ctx, tr); err != nil {
		t.Fatalf("CreateTrip: %v", err)
	}

	_, err := s.CancelTrip(ctx, tr.ID, tr.Version+3)
	if !errors.Is(err, transit.ErrConcurrencyConflict) {
		t.Fatalf("stale version: got %v, want ErrConcurrencyConflict", err)
	}

	cancelled, err := s.CancelTrip(ctx, tr.ID, tr.Version)
	if err != nil {
		t.Fatalf("CancelTrip: %v", err)
	}
	if cancelled.Status != trip.StatusCancelled {
		t.Errorf("status: got %s", cancelled.Status)
	}

	_, err = s.CancelTrip(ctx, tr.ID, cancelled.Version)
	if !errors.Is(err, transit.ErrNoActiveTrip) {
		t.Fatalf("second cancel: got %v, want ErrNoActiveTrip", err)
	}
}
