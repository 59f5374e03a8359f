// Package sqlite implements the unified store on SQLite via the
// modernc database/sql driver. SQLite's single-writer model plus
// read-check-write transactions give the atomic units their
// all-or-nothing semantics.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite" // registers the "sqlite" driver

	"github.com/mzansipass/transit"
	"github.com/mzansipass/transit/account"
	"github.com/mzansipass/transit/agency"
	"github.com/mzansipass/transit/id"
	"github.com/mzansipass/transit/store"
	"github.com/mzansipass/transit/trip"
	"github.com/mzansipass/transit/txn"
	"github.com/mzansipass/transit/types"
)

// compile-time interface check
var _ store.Store = (*Store)(nil)

// Store implements store.Store on a SQLite database.
type Store struct {
	db *sql.DB
}

// New opens (or creates) a SQLite database at path. Use ":memory:" for
// an ephemeral database.
func New(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("transit/sqlite: open: %w", err)
	}
	// A single connection sidesteps SQLITE_BUSY between the pool's
	// writers.
	db.SetMaxOpenConns(1)
	return &Store{db: db}, nil
}

// DB returns the underlying database handle for direct access.
func (s *Store) DB() *sql.DB { return s.db }

// Migrate applies the schema. Statements are idempotent.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `PRAGMA foreign_keys = ON`); err != nil {
		return err
	}
	for _, stmt := range migrations {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("transit/sqlite: migration failed: %w", err)
		}
	}
	return nil
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// withTx runs fn in a transaction, rolling back on any error.
func (s *Store) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

// translateErr maps SQLite errors onto the core's sentinels. The
// modernc driver exposes constraint failures only through the message
// text, which names the violated columns.
func translateErr(err error) error {
	if err == nil {
		return nil
	}
	msg := err.Error()
	if !strings.Contains(msg, "UNIQUE constraint failed") {
		return err
	}

	switch {
	case strings.Contains(msg, "transit_trips.user_id"):
		return fmt.Errorf("%w: %v", transit.ErrActiveTripConflict, err)
	case strings.Contains(msg, "transit_transactions.reference"):
		return fmt.Errorf("%w: %v", transit.ErrDuplicateReference, err)
	case strings.Contains(msg, "transit_users.email"):
		return fmt.Errorf("%w: %v", transit.ErrUserExists, err)
	case strings.Contains(msg, "transit_cards.token"):
		return fmt.Errorf("%w: %v", transit.ErrCardExists, err)
	case strings.Contains(msg, "transit_agencies.code"):
		return fmt.Errorf("%w: %v", transit.ErrAgencyExists, err)
	}
	return err
}

// ==================== Account Store ====================

func (s *Store) CreateUser(ctx context.Context, u *account.User) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO transit_users (`+userColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		u.ID, u.Email, u.Name, string(u.Role),
		u.Balance.Amount, u.Balance.Currency, u.CreatedAt, u.UpdatedAt)
	return translateErr(err)
}

func (s *Store) GetUser(ctx context.Context, userID id.UserID) (*account.User, error) {
	return getUser(ctx, s.db, userID)
}

func getUser(ctx context.Context, q querier, userID id.UserID) (*account.User, error) {
	u, err := scanUser(q.QueryRowContext(ctx, `
		SELECT `+userColumns+` FROM transit_users WHERE id = ?`, userID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", transit.ErrUserNotFound, userID)
		}
		return nil, err
	}
	return u, nil
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (*account.User, error) {
	u, err := scanUser(s.db.QueryRowContext(ctx, `
		SELECT `+userColumns+` FROM transit_users WHERE email = ?`, email))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", transit.ErrUserNotFound, email)
		}
		return nil, err
	}
	return u, nil
}

func (s *Store) CreateCard(ctx context.Context, c *account.Card) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO transit_cards (`+cardColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.Token, c.UserID, c.Label, c.Linked, c.CreatedAt, c.UpdatedAt)
	return translateErr(err)
}

func (s *Store) GetCardByToken(ctx context.Context, token string) (*account.Card, error) {
	c, err := scanCard(s.db.QueryRowContext(ctx, `
		SELECT `+cardColumns+` FROM transit_cards WHERE token = ?`, token))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: token %s", transit.ErrCardNotFound, token)
		}
		return nil, err
	}
	return c, nil
}

func (s *Store) SetCardLinked(ctx context.Context, cardID id.CardID, linked bool) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE transit_cards SET linked = ?, updated_at = ? WHERE id = ?`,
		linked, time.Now().UTC(), cardID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", transit.ErrCardNotFound, cardID)
	}
	return nil
}

// ==================== Agency Store ====================

func (s *Store) CreateAgency(ctx context.Context, a *agency.Agency) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO transit_agencies (`+agcyColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, string(a.Code), a.Name, a.Email, a.Phone, a.Active, a.CreatedAt, a.UpdatedAt)
	return translateErr(err)
}

func (s *Store) GetAgency(ctx context.Context, agencyID id.AgencyID) (*agency.Agency, error) {
	return scanAgency(s.db.QueryRowContext(ctx, `
		SELECT `+agcyColumns+` FROM transit_agencies WHERE id = ?`, agencyID), agencyID.String())
}

func (s *Store) GetAgencyByCode(ctx context.Context, code agency.Code) (*agency.Agency, error) {
	return scanAgency(s.db.QueryRowContext(ctx, `
		SELECT `+agcyColumns+` FROM transit_agencies WHERE code = ?`, string(code)), string(code))
}

func scanAgency(r row, key string) (*agency.Agency, error) {
	a := new(agency.Agency)
	err := r.Scan(&a.ID, &a.Code, &a.Name, &a.Email, &a.Phone,
		&a.Active, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", transit.ErrAgencyNotFound, key)
		}
		return nil, err
	}
	return a, nil
}

// ==================== Trip Store ====================

func (s *Store) CreateTrip(ctx context.Context, t *trip.Trip) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO transit_trips (
			id, user_id, agency_id, card_token, reference,
			start_lat, start_lng, start_time,
			fare, currency, status, version, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.UserID, t.AgencyID, t.CardToken, t.Reference,
		t.Start.Lat, t.Start.Lng, t.StartTime,
		t.Fare.Amount, t.Fare.Currency, string(t.Status), t.Version,
		t.CreatedAt, t.UpdatedAt)
	return translateErr(err)
}

func (s *Store) GetTrip(ctx context.Context, tripID id.TripID) (*trip.Trip, error) {
	return getTrip(ctx, s.db, tripID)
}

func getTrip(ctx context.Context, q querier, tripID id.TripID) (*trip.Trip, error) {
	t, err := scanTrip(q.QueryRowContext(ctx, `
		SELECT `+tripColumns+` FROM transit_trips WHERE id = ?`, tripID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", transit.ErrTripNotFound, tripID)
		}
		return nil, err
	}
	return t, nil
}

func (s *Store) ActiveTrip(ctx context.Context, userID id.UserID, cardToken string) (*trip.Trip, error) {
	t, err := scanTrip(s.db.QueryRowContext(ctx, `
		SELECT `+tripColumns+` FROM transit_trips
		WHERE user_id = ? AND card_token = ? AND status = 'in_progress'`,
		userID, cardToken))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: user %s card %s", transit.ErrNoActiveTrip, userID, cardToken)
		}
		return nil, err
	}
	return t, nil
}

func (s *Store) ListTrips(ctx context.Context, agencyID id.AgencyID, opts trip.ListOpts) ([]*trip.Trip, error) {
	query := `SELECT ` + tripColumns + ` FROM transit_trips WHERE agency_id = ?`
	args := []any{agencyID}

	if opts.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(opts.Status))
	}
	query += ` ORDER BY created_at DESC`
	if opts.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, opts.Limit)
	}
	if opts.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, opts.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*trip.Trip
	for rows.Next() {
		t, err := scanTrip(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *Store) CancelTrip(ctx context.Context, tripID id.TripID, expectedVersion int64) (*trip.Trip, error) {
	var cancelled *trip.Trip
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		t, err := getTrip(ctx, tx, tripID)
		if err != nil {
			return err
		}
		if !t.Active() {
			return fmt.Errorf("%w: trip %s is %s", transit.ErrNoActiveTrip, tripID, t.Status)
		}
		if t.Version != expectedVersion {
			return fmt.Errorf("%w: trip %s version %d != %d",
				transit.ErrConcurrencyConflict, tripID, t.Version, expectedVersion)
		}
		if err := t.Cancel(time.Now()); err != nil {
			return err
		}

		_, err = tx.ExecContext(ctx, `
			UPDATE transit_trips
			SET end_time = ?, status = ?, version = ?, updated_at = ?
			WHERE id = ?`,
			t.EndTime, string(t.Status), t.Version, t.UpdatedAt, tripID)
		if err != nil {
			return err
		}
		cancelled = t
		return nil
	})
	if err != nil {
		return nil, translateErr(err)
	}
	return cancelled, nil
}

// ==================== Transaction Store ====================

func (s *Store) RecordTransaction(ctx context.Context, t *txn.Transaction) error {
	return translateErr(insertTxn(ctx, s.db, t))
}

func insertTxn(ctx context.Context, q querier, t *txn.Transaction) error {
	meta, err := json.Marshal(t.Meta)
	if err != nil {
		return err
	}
	_, err = q.ExecContext(ctx, `
		INSERT INTO transit_transactions (`+txnColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.UserID, t.AgencyID, t.Amount.Amount, t.Amount.Currency,
		string(t.Type), string(t.Status), t.Reference, meta,
		t.Settled, t.SettledAt, t.CreatedAt, t.UpdatedAt)
	return err
}

func (s *Store) GetTransaction(ctx context.Context, txnID id.TransactionID) (*txn.Transaction, error) {
	t, err := scanTxn(s.db.QueryRowContext(ctx, `
		SELECT `+txnColumns+` FROM transit_transactions WHERE id = ?`, txnID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", transit.ErrTransactionNotFound, txnID)
		}
		return nil, err
	}
	return t, nil
}

func (s *Store) GetTransactionByReference(ctx context.Context, reference string) (*txn.Transaction, error) {
	return getTxnByReference(ctx, s.db, reference)
}

func getTxnByReference(ctx context.Context, q querier, reference string) (*txn.Transaction, error) {
	t, err := scanTxn(q.QueryRowContext(ctx, `
		SELECT `+txnColumns+` FROM transit_transactions WHERE reference = ?`, reference))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: reference %s", transit.ErrTransactionNotFound, reference)
		}
		return nil, err
	}
	return t, nil
}

func (s *Store) ListTransactions(ctx context.Context, userID id.UserID, opts txn.ListOpts) ([]*txn.Transaction, error) {
	query := `SELECT ` + txnColumns + ` FROM transit_transactions WHERE user_id = ?`
	args := []any{userID}

	if opts.Type != "" {
		query += ` AND type = ?`
		args = append(args, string(opts.Type))
	}
	query += ` ORDER BY created_at DESC`
	if opts.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, opts.Limit)
	}
	if opts.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, opts.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*txn.Transaction
	for rows.Next() {
		t, err := scanTxn(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// ==================== Atomic units ====================

func (s *Store) CompleteTrip(ctx context.Context, c store.TripCompletion) (*trip.Trip, error) {
	var completed *trip.Trip
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		t, err := getTrip(ctx, tx, c.TripID)
		if err != nil {
			return err
		}
		if !t.Active() {
			return fmt.Errorf("%w: trip %s is %s", transit.ErrNoActiveTrip, c.TripID, t.Status)
		}
		if t.Version != c.ExpectedVersion {
			return fmt.Errorf("%w: trip %s version %d != %d",
				transit.ErrConcurrencyConflict, c.TripID, t.Version, c.ExpectedVersion)
		}

		u, err := getUser(ctx, tx, t.UserID)
		if err != nil {
			return err
		}
		if err := u.Debit(c.Fare); err != nil {
			return err
		}
		if err := t.Complete(c.End, c.EndTime, c.Fare); err != nil {
			return err
		}

		if _, err := tx.ExecContext(ctx, `
			UPDATE transit_trips
			SET end_lat = ?, end_lng = ?, end_time = ?,
				fare = ?, status = ?, version = ?, updated_at = ?
			WHERE id = ?`,
			t.End.Lat, t.End.Lng, t.EndTime,
			t.Fare.Amount, string(t.Status), t.Version, t.UpdatedAt, t.ID); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `
			UPDATE transit_users SET balance = ?, updated_at = ? WHERE id = ?`,
			u.Balance.Amount, u.UpdatedAt, u.ID); err != nil {
			return err
		}
		if err := insertTxn(ctx, tx, c.Transaction); err != nil {
			return err
		}

		completed = t
		return nil
	})
	if err != nil {
		return nil, translateErr(err)
	}
	return completed, nil
}

func (s *Store) SettleTopup(ctx context.Context, set store.TopupSettlement) (*txn.Transaction, bool, error) {
	var settled *txn.Transaction
	credited := false
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		t, err := getTxnByReference(ctx, tx, set.Reference)
		if err != nil {
			return err
		}
		if t.Type != txn.TypeTopup {
			return fmt.Errorf("%w: reference %s is not a topup", transit.ErrInvalidInput, set.Reference)
		}
		if t.Final() {
			settled = t
			return nil
		}

		u, err := getUser(ctx, tx, t.UserID)
		if err != nil {
			return err
		}
		if err := u.Credit(set.Amount); err != nil {
			return err
		}

		now := time.Now().UTC()
		t.Status = txn.StatusSuccess
		t.Amount = set.Amount
		t.Meta.Topup = &txn.TopupMeta{GatewayPayload: set.Payload}
		t.Settled = true
		t.SettledAt = &now
		t.Touch()

		meta, err := json.Marshal(t.Meta)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `
			UPDATE transit_transactions
			SET status = ?, amount = ?, meta = ?, settled = 1, settled_at = ?, updated_at = ?
			WHERE reference = ? AND status = 'pending'`,
			string(t.Status), t.Amount.Amount, meta, t.SettledAt, t.UpdatedAt, set.Reference); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `
			UPDATE transit_users SET balance = ?, updated_at = ? WHERE id = ?`,
			u.Balance.Amount, u.UpdatedAt, u.ID); err != nil {
			return err
		}

		settled = t
		credited = true
		return nil
	})
	if err != nil {
		return nil, false, translateErr(err)
	}
	return settled, credited, nil
}

func (s *Store) FailTopup(ctx context.Context, reference string, payload json.RawMessage) (*txn.Transaction, error) {
	var failed *txn.Transaction
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		t, err := getTxnByReference(ctx, tx, reference)
		if err != nil {
			return err
		}
		if t.Type != txn.TypeTopup {
			return fmt.Errorf("%w: reference %s is not a topup", transit.ErrInvalidInput, reference)
		}
		if t.Final() {
			failed = t
			return nil
		}

		t.Status = txn.StatusFailed
		t.Meta.Topup = &txn.TopupMeta{GatewayPayload: payload}
		t.Touch()

		meta, err := json.Marshal(t.Meta)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `
			UPDATE transit_transactions
			SET status = ?, meta = ?, updated_at = ?
			WHERE reference = ? AND status = 'pending'`,
			string(t.Status), meta, t.UpdatedAt, reference); err != nil {
			return err
		}
		failed = t
		return nil
	})
	if err != nil {
		return nil, translateErr(err)
	}
	return failed, nil
}

func (s *Store) Credit(ctx context.Context, c store.BalanceCredit) (*account.User, error) {
	var out *account.User
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		u, err := getUser(ctx, tx, c.UserID)
		if err != nil {
			return err
		}
		if err := u.Credit(c.Amount); err != nil {
			return err
		}
		if err := insertTxn(ctx, tx, c.Transaction); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `
			UPDATE transit_users SET balance = ?, updated_at = ? WHERE id = ?`,
			u.Balance.Amount, u.UpdatedAt, u.ID); err != nil {
			return err
		}
		out = u
		return nil
	})
	if err != nil {
		return nil, translateErr(err)
	}
	return out, nil
}

func (s *Store) SettleAgencyFares(ctx context.Context, agencyID id.AgencyID, settledAt time.Time) (types.Money, int64, error) {
	total := types.Zero("zar")
	var count int64
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		rows, err := tx.QueryContext(ctx, `
			SELECT amount FROM transit_transactions
			WHERE agency_id = ? AND type = 'fare' AND settled = 0`, agencyID)
		if err != nil {
			return err
		}
		for rows.Next() {
			var amount int64
			if err := rows.Scan(&amount); err != nil {
				rows.Close()
				return err
			}
			total = total.Add(types.ZAR(amount).Abs())
			count++
		}
		if err := rows.Err(); err != nil {
			rows.Close()
			return err
		}
		rows.Close()

		_, err = tx.ExecContext(ctx, `
			UPDATE transit_transactions
			SET settled = 1, settled_at = ?, updated_at = ?
			WHERE agency_id = ? AND type = 'fare' AND settled = 0`,
			settledAt.UTC(), settledAt.UTC(), agencyID)
		return err
	})
	if err != nil {
		return types.Zero("zar"), 0, translateErr(err)
	}
	return total, count, nil
}
