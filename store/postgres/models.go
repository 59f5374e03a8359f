package postgres

import (
	"encoding/json"
	"time"

	"github.com/jackc/pgx/v5"

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

func scanUser(row pgx.Row) (*account.User, error) {
	u := new(account.User)
	var balance int64
	var currency string
	if err := row.Scan(&u.ID, &u.Email, &u.Name, &u.Role,
		&balance, &currency, &u.CreatedAt, &u.UpdatedAt); err != nil {
		return nil, err
	}
	u.Balance = types.Money{Amount: balance, Currency: currency}
	return u, nil
}

func scanCard(row pgx.Row) (*account.Card, error) {
	c := new(account.Card)
	if err := row.Scan(&c.ID, &c.Token, &c.UserID, &c.Label,
		&c.Linked, &c.CreatedAt, &c.UpdatedAt); err != nil {
		return nil, err
	}
	return c, nil
}

func scanTrip(row pgx.Row) (*trip.Trip, error) {
	t := new(trip.Trip)
	var endLat, endLng *float64
	var endTime *time.Time
	var fareCents int64
	var currency string
	if err := row.Scan(&t.ID, &t.UserID, &t.AgencyID, &t.CardToken, &t.Reference,
		&t.Start.Lat, &t.Start.Lng, &t.StartTime, &endLat, &endLng, &endTime,
		&fareCents, &currency, &t.Status, &t.Version, &t.CreatedAt, &t.UpdatedAt); err != nil {
		return nil, err
	}
	if endLat != nil && endLng != nil {
		t.End = &types.GeoPoint{Lat: *endLat, Lng: *endLng}
	}
	t.EndTime = endTime
	t.Fare = types.Money{Amount: fareCents, Currency: currency}
	return t, nil
}

func scanTxn(row pgx.Row) (*txn.Transaction, error) {
	t := new(txn.Transaction)
	var amount int64
	var currency string
	var meta []byte
	if err := row.Scan(&t.ID, &t.UserID, &t.AgencyID, &amount, &currency,
		&t.Type, &t.Status, &t.Reference, &meta,
		&t.Settled, &t.SettledAt, &t.CreatedAt, &t.UpdatedAt); err != nil {
		return nil, err
	}
	t.Amount = types.Money{Amount: amount, Currency: currency}
	if len(meta) > 0 {
		if err := json.Unmarshal(meta, &t.Meta); err != nil {
			return nil, err
		}
	}
	return t, nil
}
