package txn

import (
	"strings"
	"testing"

	"github.com/mzansipass/transit/id"
	"github.com/mzansipass/transit/types"
)

func TestNewFare(t *testing.T) {
	userID := id.NewUserID()
	agencyID := id.NewAgencyID()
	tripID := id.NewTripID()

	tx := NewFare(userID, agencyID, types.ZAR(1000), "fare_abc", FareMeta{TripID: tripID})

	if tx.Type != TypeFare {
		t.Errorf("type: got %s, want %s", tx.Type, TypeFare)
	}
	if tx.Status != StatusSuccess {
		t.Errorf("status: got %s, want %s", tx.Status, StatusSuccess)
	}
	if !tx.Amount.Equal(types.ZAR(-1000)) {
		t.Errorf("fare amount should be negative: got %v", tx.Amount)
	}
	if tx.Meta.Fare == nil || tx.Meta.Fare.TripID.String() != tripID.String() {
		t.Error("fare meta should reference the trip")
	}
	if tx.Meta.Topup != nil || tx.Meta.Refund != nil {
		t.Error("only the fare branch of the meta union should be set")
	}
	if !tx.Final() {
		t.Error("fare records are final at creation")
	}
	if tx.Settled {
		t.Error("fare records start unsettled")
	}
}

func TestNewTopup(t *testing.T) {
	tx := NewTopup(id.NewUserID(), types.ZAR(5000), "ps_abc")

	if tx.Type != TypeTopup {
		t.Errorf("type: got %s, want %s", tx.Type, TypeTopup)
	}
	if tx.Status != StatusPending {
		t.Errorf("status: got %s, want %s", tx.Status, StatusPending)
	}
	if !tx.Amount.Equal(types.ZAR(5000)) {
		t.Errorf("amount: got %v, want %v", tx.Amount, types.ZAR(5000))
	}
	if !tx.AgencyID.IsNil() {
		t.Error("topups carry no agency")
	}
	if tx.Final() {
		t.Error("pending topup is not final")
	}
}

func TestNewRefund(t *testing.T) {
	tripID := id.NewTripID()
	tx := NewRefund(id.NewUserID(), id.NewAgencyID(), types.ZAR(1000), RefundReference(tripID), RefundMeta{TripID: tripID, Reason: "service failure"})

	if tx.Type != TypeRefund {
		t.Errorf("type: got %s, want %s", tx.Type, TypeRefund)
	}
	if !tx.Amount.Equal(types.ZAR(1000)) {
		t.Errorf("refund amount should be positive: got %v", tx.Amount)
	}
	if tx.Meta.Refund == nil || tx.Meta.Refund.Reason != "service failure" {
		t.Error("refund meta not recorded")
	}
}

func TestReferences(t *testing.T) {
	if a, b := NewFareReference(), NewFareReference(); a == b {
		t.Errorf("fare references should be unique: %q", a)
	}
	if !strings.HasPrefix(NewTopupReference(), "ps_") {
		t.Error("topup references carry the ps_ prefix")
	}

	tripID := id.NewTripID()
	if RefundReference(tripID) != RefundReference(tripID) {
		t.Error("refund references must be deterministic per trip")
	}
}
