// Package postgres implements the unified store on PostgreSQL via pgx.
// Atomic units run inside transactions with row locks on the user and
// trip rows, so the balance check and the mutation always see the same
// state.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

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

// Store implements store.Store on a pgx connection pool.
type Store struct {
	pool *pgxpool.Pool
}

// New creates a PostgreSQL store from a DSN.
func New(ctx context.Context, dsn string) (*Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("transit/postgres: connect: %w", err)
	}
	return &Store{pool: pool}, nil
}

// NewWithPool wraps an existing pool. The caller keeps ownership of its
// lifecycle only until Close is called.
func NewWithPool(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Pool returns the underlying pool for direct access.
func (s *Store) Pool() *pgxpool.Pool { return s.pool }

// Migrate applies the schema. Statements are idempotent.
func (s *Store) Migrate(ctx context.Context) error {
	for _, stmt := range migrations {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("transit/postgres: migration failed: %w", err)
		}
	}
	return nil
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close releases the pool.
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

// querier is satisfied by both the pool and a transaction.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// translateErr maps PostgreSQL errors onto the core's sentinels.
func translateErr(err error) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}

	switch pgErr.Code {
	case "23505": // unique_violation
		switch pgErr.ConstraintName {
		case "transit_trips_active_key":
			return fmt.Errorf("%w: %s", transit.ErrActiveTripConflict, pgErr.Detail)
		case "transit_transactions_reference_key":
			return fmt.Errorf("%w: %s", transit.ErrDuplicateReference, pgErr.Detail)
		case "transit_users_email_key":
			return fmt.Errorf("%w: %s", transit.ErrUserExists, pgErr.Detail)
		case "transit_cards_token_key":
			return fmt.Errorf("%w: %s", transit.ErrCardExists, pgErr.Detail)
		case "transit_agencies_code_key":
			return fmt.Errorf("%w: %s", transit.ErrAgencyExists, pgErr.Detail)
		}
	case "40001", "40P01": // serialization_failure, deadlock_detected
		return fmt.Errorf("%w: %s", transit.ErrConcurrencyConflict, pgErr.Message)
	}
	return err
}

// ==================== Account Store ====================

func (s *Store) CreateUser(ctx context.Context, u *account.User) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO transit_users (`+userColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		u.ID, u.Email, u.Name, string(u.Role),
		u.Balance.Amount, u.Balance.Currency, u.CreatedAt, u.UpdatedAt)
	return translateErr(err)
}

func (s *Store) GetUser(ctx context.Context, userID id.UserID) (*account.User, error) {
	return s.getUser(ctx, s.pool, userID, false)
}

func (s *Store) getUser(ctx context.Context, q querier, userID id.UserID, forUpdate bool) (*account.User, error) {
	query := `SELECT ` + userColumns + ` FROM transit_users WHERE id = $1`
	if forUpdate {
		query += ` FOR UPDATE`
	}
	u, err := scanUser(q.QueryRow(ctx, query, userID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", transit.ErrUserNotFound, userID)
		}
		return nil, err
	}
	return u, nil
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (*account.User, error) {
	u, err := scanUser(s.pool.QueryRow(ctx, `
		SELECT `+userColumns+` FROM transit_users WHERE email = $1`, email))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", transit.ErrUserNotFound, email)
		}
		return nil, err
	}
	return u, nil
}

func (s *Store) CreateCard(ctx context.Context, c *account.Card) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO transit_cards (`+cardColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		c.ID, c.Token, c.UserID, c.Label, c.Linked, c.CreatedAt, c.UpdatedAt)
	return translateErr(err)
}

func (s *Store) GetCardByToken(ctx context.Context, token string) (*account.Card, error) {
	c, err := scanCard(s.pool.QueryRow(ctx, `
		SELECT `+cardColumns+` FROM transit_cards WHERE token = $1`, token))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: token %s", transit.ErrCardNotFound, token)
		}
		return nil, err
	}
	return c, nil
}

func (s *Store) SetCardLinked(ctx context.Context, cardID id.CardID, linked bool) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE transit_cards SET linked = $2, updated_at = $3 WHERE id = $1`,
		cardID, linked, time.Now().UTC())
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", transit.ErrCardNotFound, cardID)
	}
	return nil
}

// ==================== Agency Store ====================

func (s *Store) CreateAgency(ctx context.Context, a *agency.Agency) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO transit_agencies (`+agcyColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		a.ID, string(a.Code), a.Name, a.Email, a.Phone, a.Active, a.CreatedAt, a.UpdatedAt)
	return translateErr(err)
}

func (s *Store) GetAgency(ctx context.Context, agencyID id.AgencyID) (*agency.Agency, error) {
	return s.scanAgencyRow(s.pool.QueryRow(ctx, `
		SELECT `+agcyColumns+` FROM transit_agencies WHERE id = $1`, agencyID), agencyID.String())
}

func (s *Store) GetAgencyByCode(ctx context.Context, code agency.Code) (*agency.Agency, error) {
	return s.scanAgencyRow(s.pool.QueryRow(ctx, `
		SELECT `+agcyColumns+` FROM transit_agencies WHERE code = $1`, string(code)), string(code))
}

func (s *Store) scanAgencyRow(row pgx.Row, key string) (*agency.Agency, error) {
	a := new(agency.Agency)
	err := row.Scan(&a.ID, &a.Code, &a.Name, &a.Email, &a.Phone,
		&a.Active, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", transit.ErrAgencyNotFound, key)
		}
		return nil, err
	}
	return a, nil
}

// ==================== Trip Store ====================

func (s *Store) CreateTrip(ctx context.Context, t *trip.Trip) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO transit_trips (
			id, user_id, agency_id, card_token, reference,
			start_lat, start_lng, start_time,
			fare, currency, status, version, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
		t.ID, t.UserID, t.AgencyID, t.CardToken, t.Reference,
		t.Start.Lat, t.Start.Lng, t.StartTime,
		t.Fare.Amount, t.Fare.Currency, string(t.Status), t.Version,
		t.CreatedAt, t.UpdatedAt)
	return translateErr(err)
}

func (s *Store) GetTrip(ctx context.Context, tripID id.TripID) (*trip.Trip, error) {
	return s.getTrip(ctx, s.pool, tripID, false)
}

func (s *Store) getTrip(ctx context.Context, q querier, tripID id.TripID, forUpdate bool) (*trip.Trip, error) {
	query := `SELECT ` + tripColumns + ` FROM transit_trips WHERE id = $1`
	if forUpdate {
		query += ` FOR UPDATE`
	}
	t, err := scanTrip(q.QueryRow(ctx, query, tripID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", transit.ErrTripNotFound, tripID)
		}
		return nil, err
	}
	return t, nil
}

func (s *Store) ActiveTrip(ctx context.Context, userID id.UserID, cardToken string) (*trip.Trip, error) {
	t, err := scanTrip(s.pool.QueryRow(ctx, `
		SELECT `+tripColumns+` FROM transit_trips
		WHERE user_id = $1 AND card_token = $2 AND status = 'in_progress'`,
		userID, cardToken))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: user %s card %s", transit.ErrNoActiveTrip, userID, cardToken)
		}
		return nil, err
	}
	return t, nil
}

func (s *Store) ListTrips(ctx context.Context, agencyID id.AgencyID, opts trip.ListOpts) ([]*trip.Trip, error) {
	query := `SELECT ` + tripColumns + ` FROM transit_trips WHERE agency_id = $1`
	args := []any{agencyID}

	if opts.Status != "" {
		args = append(args, string(opts.Status))
		query += fmt.Sprintf(` AND status = $%d`, len(args))
	}
	query += ` ORDER BY created_at DESC`
	if opts.Limit > 0 {
		args = append(args, opts.Limit)
		query += fmt.Sprintf(` LIMIT $%d`, len(args))
	}
	if opts.Offset > 0 {
		args = append(args, opts.Offset)
		query += fmt.Sprintf(` OFFSET $%d`, len(args))
	}

	rows, err := s.pool.Query(ctx, query, args...)
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
	err := pgx.BeginTxFunc(ctx, s.pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		t, err := s.getTrip(ctx, tx, tripID, true)
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

		_, err = tx.Exec(ctx, `
			UPDATE transit_trips
			SET end_time = $2, status = $3, version = $4, updated_at = $5
			WHERE id = $1`,
			tripID, t.EndTime, string(t.Status), t.Version, t.UpdatedAt)
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
	return translateErr(s.insertTxn(ctx, s.pool, t))
}

func (s *Store) insertTxn(ctx context.Context, q querier, t *txn.Transaction) error {
	meta, err := json.Marshal(t.Meta)
	if err != nil {
		return err
	}
	_, err = q.Exec(ctx, `
		INSERT INTO transit_transactions (`+txnColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		t.ID, t.UserID, t.AgencyID, t.Amount.Amount, t.Amount.Currency,
		string(t.Type), string(t.Status), t.Reference, meta,
		t.Settled, t.SettledAt, t.CreatedAt, t.UpdatedAt)
	return err
}

func (s *Store) GetTransaction(ctx context.Context, txnID id.TransactionID) (*txn.Transaction, error) {
	t, err := scanTxn(s.pool.QueryRow(ctx, `
		SELECT `+txnColumns+` FROM transit_transactions WHERE id = $1`, txnID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", transit.ErrTransactionNotFound, txnID)
		}
		return nil, err
	}
	return t, nil
}

func (s *Store) GetTransactionByReference(ctx context.Context, reference string) (*txn.Transaction, error) {
	return s.getTxnByReference(ctx, s.pool, reference, false)
}

func (s *Store) getTxnByReference(ctx context.Context, q querier, reference string, forUpdate bool) (*txn.Transaction, error) {
	query := `SELECT ` + txnColumns + ` FROM transit_transactions WHERE reference = $1`
	if forUpdate {
		query += ` FOR UPDATE`
	}
	t, err := scanTxn(q.QueryRow(ctx, query, reference))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: reference %s", transit.ErrTransactionNotFound, reference)
		}
		return nil, err
	}
	return t, nil
}

func (s *Store) ListTransactions(ctx context.Context, userID id.UserID, opts txn.ListOpts) ([]*txn.Transaction, error) {
	query := `SELECT ` + txnColumns + ` FROM transit_transactions WHERE user_id = $1`
	args := []any{userID}

	if opts.Type != "" {
		args = append(args, string(opts.Type))
		query += fmt.Sprintf(` AND type = $%d`, len(args))
	}
	query += ` ORDER BY created_at DESC`
	if opts.Limit > 0 {
		args = append(args, opts.Limit)
		query += fmt.Sprintf(` LIMIT $%d`, len(args))
	}
	if opts.Offset > 0 {
		args = append(args, opts.Offset)
		query += fmt.Sprintf(` OFFSET $%d`, len(args))
	}

	rows, err := s.pool.Query(ctx, query, args...)
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
	err := pgx.BeginTxFunc(ctx, s.pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		t, err := s.getTrip(ctx, tx, c.TripID, true)
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

		// Lock the user row so the balance check holds until commit.
		u, err := s.getUser(ctx, tx, t.UserID, true)
		if err != nil {
			return err
		}
		if err := u.Debit(c.Fare); err != nil {
			return err
		}
		if err := t.Complete(c.End, c.EndTime, c.Fare); err != nil {
			return err
		}

		if _, err := tx.Exec(ctx, `
			UPDATE transit_trips
			SET end_lat = $2, end_lng = $3, end_time = $4,
				fare = $5, status = $6, version = $7, updated_at = $8
			WHERE id = $1`,
			t.ID, t.End.Lat, t.End.Lng, t.EndTime,
			t.Fare.Amount, string(t.Status), t.Version, t.UpdatedAt); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, `
			UPDATE transit_users SET balance = $2, updated_at = $3 WHERE id = $1`,
			u.ID, u.Balance.Amount, u.UpdatedAt); err != nil {
			return err
		}
		if err := s.insertTxn(ctx, tx, c.Transaction); err != nil {
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
	err := pgx.BeginTxFunc(ctx, s.pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		t, err := s.getTxnByReference(ctx, tx, set.Reference, true)
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

		u, err := s.getUser(ctx, tx, t.UserID, true)
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
		if _, err := tx.Exec(ctx, `
			UPDATE transit_transactions
			SET status = $2, amount = $3, meta = $4,
				settled = TRUE, settled_at = $5, updated_at = $6
			WHERE reference = $1 AND status = 'pending'`,
			set.Reference, string(t.Status), t.Amount.Amount, meta, t.SettledAt, t.UpdatedAt); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, `
			UPDATE transit_users SET balance = $2, updated_at = $3 WHERE id = $1`,
			u.ID, u.Balance.Amount, u.UpdatedAt); err != nil {
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
	err := pgx.BeginTxFunc(ctx, s.pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		t, err := s.getTxnByReference(ctx, tx, reference, true)
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
		if _, err := tx.Exec(ctx, `
			UPDATE transit_transactions
			SET status = $2, meta = $3, updated_at = $4
			WHERE reference = $1 AND status = 'pending'`,
			reference, string(t.Status), meta, t.UpdatedAt); err != nil {
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
	err := pgx.BeginTxFunc(ctx, s.pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		u, err := s.getUser(ctx, tx, c.UserID, true)
		if err != nil {
			return err
		}
		if err := u.Credit(c.Amount); err != nil {
			return err
		}
		if err := s.insertTxn(ctx, tx, c.Transaction); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, `
			UPDATE transit_users SET balance = $2, updated_at = $3 WHERE id = $1`,
			u.ID, u.Balance.Amount, u.UpdatedAt); err != nil {
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
	err := pgx.BeginTxFunc(ctx, s.pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx, `
			UPDATE transit_transactions
			SET settled = TRUE, settled_at = $2, updated_at = $2
			WHERE agency_id = $1 AND type = 'fare' AND settled = FALSE
			RETURNING amount`,
			agencyID, settledAt.UTC())
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			var amount int64
			if err := rows.Scan(&amount); err != nil {
				return err
			}
			total = total.Add(types.ZAR(amount).Abs())
			count++
		}
		return rows.Err()
	})
	if err != nil {
		return types.Zero("zar"), 0, translateErr(err)
	}
	return total, count, nil
}
