package sqlite

import (
	"database/sql"
	"encoding/json"

	"github.com/mzansipass/transit/account"
	"github.com/mzansipass/transit/trip"
	"github.com/mzansipass/transit/txn"
	"github.com/mzansipass/transit/types"
)

const (
	userColumns = `id, email, name, role, balance, currency, created_at, updated_at`
	cardColumns = `id, token, user_id, label, linked, created_at, updated_at`
	agcyColumns = `id, code, name, email, phone, active, created_at, updated_at`
	tripColumns = `id, user_id, agency_id, card_token, reference,
		start_lat, start_lng, start_time, end_lat, end_lng, end_time,
		fare, currency, status, version, created_at, updated_at`
	txnColumns = `id, user_id, agency_id, amount, currency, type, status,
		reference, meta, settled, settled_at, created_at, updated_at`
)

// row is satisfied by *sql.Row and *sql.Rows.
type row interface {
	Scan(dest ...any) error
}

func scanUser(r row) (*account.User, error) {
	u := new(account.User)
	var balance int64
	var currency string
	if err := r.Scan(&u.ID, &u.Email, &u.Name, &u.Role,
		&balance, &currency, &u.CreatedAt, &u.UpdatedAt); err != nil {
		return nil, err
	}
	u.Balance = types.Money{Amount: balance, Currency: currency}
	return u, nil
}

func scanCard(r row) (*account.Card, error) {
	c := new(account.Card)
	if err := r.Scan(&c.ID, &c.Token, &c.UserID, &c.Label,
		&c.Linked, &c.CreatedAt, &c.UpdatedAt); err != nil {
		return nil, err
	}
	return c, nil
}

func scanTrip(r row) (*trip.Trip, error) {
	t := new(trip.Trip)
	var endLat, endLng sql.NullFloat64
	var endTime sql.NullTime
	var fareCents int64
	var currency string
	if err := r.Scan(&t.ID, &t.UserID, &t.AgencyID, &t.CardToken, &t.Reference,
		&t.Start.Lat, &t.Start.Lng, &t.StartTime, &endLat, &endLng, &endTime,
		&fareCents, &currency, &t.Status, &t.Version, &t.CreatedAt, &t.UpdatedAt); err != nil {
		return nil, err
	}
	if endLat.Valid && endLng.Valid {
		t.End = &types.GeoPoint{Lat: endLat.Float64, Lng: endLng.Float64}
	}
	if endTime.Valid {
		et := endTime.Time
		t.EndTime = &et
	}
	t.Fare = types.Money{Amount: fareCents, Currency: currency}
	return t, nil
}

func scanTxn(r row) (*txn.Transaction, error) {
	t := new(txn.Transaction)
	var amount int64
	var currency string
	var meta []byte
	var settledAt sql.NullTime
	if err := r.Scan(&t.ID, &t.UserID, &t.AgencyID, &amount, &currency,
		&t.Type, &t.Status, &t.Reference, &meta,
		&t.Settled, &settledAt, &t.CreatedAt, &t.UpdatedAt); err != nil {
		return nil, err
	}
	t.Amount = types.Money{Amount: amount, Currency: currency}
	if settledAt.Valid {
		at := settledAt.Time
		t.SettledAt = &at
	}
	if len(meta) > 0 {
		if err := json.Unmarshal(meta, &t.Meta); err != nil {
			return nil, err
		}
	}
	return t, nil
}
