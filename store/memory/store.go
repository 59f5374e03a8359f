// Package memory provides an in-memory store for tests and embedded
// usage. All operations run under a single mutex, which trivially gives
// the atomic units their all-or-nothing semantics.
package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

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

// Store is an in-memory implementation of store.Store. Values are
// cloned on the way in and out so callers can never mutate stored
// state behind the lock's back.
type Store struct {
	mu     sync.Mutex
	closed bool

	users        map[string]*account.User // by user ID
	usersByEmail map[string]string        // email -> user ID

	cards        map[string]*account.Card // by card ID
	cardsByToken map[string]string        // token -> card ID

	agencies       map[string]*agency.Agency // by agency ID
	agenciesByCode map[agency.Code]string    // code -> agency ID

	trips     map[string]*trip.Trip // by trip ID
	tripOrder []string              // insertion order

	txns      map[string]*txn.Transaction // by transaction ID
	txnsByRef map[string]string           // reference -> transaction ID
	txnOrder  []string                    // insertion order
}

// New creates an empty in-memory store.
func New() *Store {
	return &Store{
		users:          make(map[string]*account.User),
		usersByEmail:   make(map[string]string),
		cards:          make(map[string]*account.Card),
		cardsByToken:   make(map[string]string),
		agencies:       make(map[string]*agency.Agency),
		agenciesByCode: make(map[agency.Code]string),
		trips:          make(map[string]*trip.Trip),
		txns:           make(map[string]*txn.Transaction),
		txnsByRef:      make(map[string]string),
	}
}

// ──────────────────────────────────────────────────
// Core
// ──────────────────────────────────────────────────

// Migrate is a no-op for the in-memory store.
func (s *Store) Migrate(_ context.Context) error { return nil }

// Ping reports whether the store is open.
func (s *Store) Ping(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return transit.ErrStoreClosed
	}
	return nil
}

// Close marks the store closed.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// ──────────────────────────────────────────────────
// Users and cards
// ──────────────────────────────────────────────────

func (s *Store) CreateUser(_ context.Context, u *account.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return transit.ErrStoreClosed
	}

	if _, ok := s.usersByEmail[u.Email]; ok {
		return fmt.Errorf("%w: %s", transit.ErrUserExists, u.Email)
	}
	if _, ok := s.users[u.ID.String()]; ok {
		return fmt.Errorf("%w: %s", transit.ErrUserExists, u.ID)
	}

	s.users[u.ID.String()] = cloneUser(u)
	s.usersByEmail[u.Email] = u.ID.String()
	return nil
}

func (s *Store) GetUser(_ context.Context, userID id.UserID) (*account.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.getUserLocked(userID)
}

func (s *Store) getUserLocked(userID id.UserID) (*account.User, error) {
	if s.closed {
		return nil, transit.ErrStoreClosed
	}
	u, ok := s.users[userID.String()]
	if !ok {
		return nil, fmt.Errorf("%w: %s", transit.ErrUserNotFound, userID)
	}
	return cloneUser(u), nil
}

func (s *Store) GetUserByEmail(_ context.Context, email string) (*account.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, transit.ErrStoreClosed
	}

	uid, ok := s.usersByEmail[email]
	if !ok {
		return nil, fmt.Errorf("%w: %s", transit.ErrUserNotFound, email)
	}
	return cloneUser(s.users[uid]), nil
}

func (s *Store) CreateCard(_ context.Context, c *account.Card) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return transit.ErrStoreClosed
	}

	if _, ok := s.cardsByToken[c.Token]; ok {
		return fmt.Errorf("%w: token %s", transit.ErrCardExists, c.Token)
	}
	if _, ok := s.users[c.UserID.String()]; !ok {
		return fmt.Errorf("%w: %s", transit.ErrUserNotFound, c.UserID)
	}

	s.cards[c.ID.String()] = cloneCard(c)
	s.cardsByToken[c.Token] = c.ID.String()
	return nil
}

func (s *Store) GetCardByToken(_ context.Context, token string) (*account.Card, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, transit.ErrStoreClosed
	}

	cid, ok := s.cardsByToken[token]
	if !ok {
		return nil, fmt.Errorf("%w: token %s", transit.ErrCardNotFound, token)
	}
	return cloneCard(s.cards[cid]), nil
}

func (s *Store) SetCardLinked(_ context.Context, cardID id.CardID, linked bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return transit.ErrStoreClosed
	}

	c, ok := s.cards[cardID.String()]
	if !ok {
		return fmt.Errorf("%w: %s", transit.ErrCardNotFound, cardID)
	}
	c.Linked = linked
	c.Touch()
	return nil
}

// ──────────────────────────────────────────────────
// Agencies
// ──────────────────────────────────────────────────

func (s *Store) CreateAgency(_ context.Context, a *agency.Agency) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return transit.ErrStoreClosed
	}

	if _, ok := s.agenciesByCode[a.Code]; ok {
		return fmt.Errorf("%w: code %s", transit.ErrAgencyExists, a.Code)
	}

	cp := *a
	s.agencies[a.ID.String()] = &cp
	s.agenciesByCode[a.Code] = a.ID.String()
	return nil
}

func (s *Store) GetAgency(_ context.Context, agencyID id.AgencyID) (*agency.Agency, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.getAgencyLocked(agencyID)
}

func (s *Store) getAgencyLocked(agencyID id.AgencyID) (*agency.Agency, error) {
	if s.closed {
		return nil, transit.ErrStoreClosed
	}
	a, ok := s.agencies[agencyID.String()]
	if !ok {
		return nil, fmt.Errorf("%w: %s", transit.ErrAgencyNotFound, agencyID)
	}
	cp := *a
	return &cp, nil
}

func (s *Store) GetAgencyByCode(_ context.Context, code agency.Code) (*agency.Agency, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, transit.ErrStoreClosed
	}

	aid, ok := s.agenciesByCode[code]
	if !ok {
		return nil, fmt.Errorf("%w: code %s", transit.ErrAgencyNotFound, code)
	}
	cp := *s.agencies[aid]
	return &cp, nil
}

// ──────────────────────────────────────────────────
// Trips
// ──────────────────────────────────────────────────

func (s *Store) CreateTrip(_ context.Context, t *trip.Trip) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return transit.ErrStoreClosed
	}

	// Single-active-trip guard per (user, card).
	for _, existing := range s.trips {
		if existing.Active() &&
			existing.UserID.String() == t.UserID.String() &&
			existing.CardToken == t.CardToken {
			return fmt.Errorf("%w: trip %s", transit.ErrActiveTripConflict, existing.ID)
		}
	}

	s.trips[t.ID.String()] = cloneTrip(t)
	s.tripOrder = append(s.tripOrder, t.ID.String())
	return nil
}

func (s *Store) GetTrip(_ context.Context, tripID id.TripID) (*trip.Trip, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, transit.ErrStoreClosed
	}

	t, ok := s.trips[tripID.String()]
	if !ok {
		return nil, fmt.Errorf("%w: %s", transit.ErrTripNotFound, tripID)
	}
	return cloneTrip(t), nil
}

func (s *Store) ActiveTrip(_ context.Context, userID id.UserID, cardToken string) (*trip.Trip, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, transit.ErrStoreClosed
	}

	for _, t := range s.trips {
		if t.Active() && t.UserID.String() == userID.String() && t.CardToken == cardToken {
			return cloneTrip(t), nil
		}
	}
	return nil, fmt.Errorf("%w: user %s card %s", transit.ErrNoActiveTrip, userID, cardToken)
}

func (s *Store) ListTrips(_ context.Context, agencyID id.AgencyID, opts trip.ListOpts) ([]*trip.Trip, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, transit.ErrStoreClosed
	}

	// Newest first.
	var out []*trip.Trip
	skipped := 0
	for i := len(s.tripOrder) - 1; i >= 0; i-- {
		t := s.trips[s.tripOrder[i]]
		if t.AgencyID.String() != agencyID.String() {
			continue
		}
		if opts.Status != "" && t.Status != opts.Status {
			continue
		}
		if skipped < opts.Offset {
			skipped++
			continue
		}
		out = append(out, cloneTrip(t))
		if opts.Limit > 0 && len(out) >= opts.Limit {
			break
		}
	}
	return out, nil
}

func (s *Store) CancelTrip(_ context.Context, tripID id.TripID, expectedVersion int64) (*trip.Trip, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, transit.ErrStoreClosed
	}

	t, ok := s.trips[tripID.String()]
	if !ok {
		return nil, fmt.Errorf("%w: %s", transit.ErrTripNotFound, tripID)
	}
	if !t.Active() {
		return nil, fmt.Errorf("%w: trip %s is %s", transit.ErrNoActiveTrip, tripID, t.Status)
	}
	if t.Version != expectedVersion {
		return nil, fmt.Errorf("%w: trip %s version %d != %d",
			transit.ErrConcurrencyConflict, tripID, t.Version, expectedVersion)
	}

	next := cloneTrip(t)
	if err := next.Cancel(time.Now().UTC()); err != nil {
		return nil, err
	}
	s.trips[tripID.String()] = next
	return cloneTrip(next), nil
}

// ──────────────────────────────────────────────────
// Transactions
// ──────────────────────────────────────────────────

func (s *Store) RecordTransaction(_ context.Context, t *txn.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return transit.ErrStoreClosed
	}
	return s.recordTransactionLocked(t)
}

func (s *Store) recordTransactionLocked(t *txn.Transaction) error {
	if _, ok := s.txnsByRef[t.Reference]; ok {
		return fmt.Errorf("%w: %s", transit.ErrDuplicateReference, t.Reference)
	}

	s.txns[t.ID.String()] = cloneTxn(t)
	s.txnsByRef[t.Reference] = t.ID.String()
	s.txnOrder = append(s.txnOrder, t.ID.String())
	return nil
}

func (s *Store) GetTransaction(_ context.Context, txnID id.TransactionID) (*txn.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, transit.ErrStoreClosed
	}

	t, ok := s.txns[txnID.String()]
	if !ok {
		return nil, fmt.Errorf("%w: %s", transit.ErrTransactionNotFound, txnID)
	}
	return cloneTxn(t), nil
}

func (s *Store) GetTransactionByReference(_ context.Context, reference string) (*txn.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, transit.ErrStoreClosed
	}

	tid, ok := s.txnsByRef[reference]
	if !ok {
		return nil, fmt.Errorf("%w: reference %s", transit.ErrTransactionNotFound, reference)
	}
	return cloneTxn(s.txns[tid]), nil
}

func (s *Store) ListTransactions(_ context.Context, userID id.UserID, opts txn.ListOpts) ([]*txn.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, transit.ErrStoreClosed
	}

	var out []*txn.Transaction
	skipped := 0
	for i := len(s.txnOrder) - 1; i >= 0; i-- {
		t := s.txns[s.txnOrder[i]]
		if t.UserID.String() != userID.String() {
			continue
		}
		if opts.Type != "" && t.Type != opts.Type {
			continue
		}
		if skipped < opts.Offset {
			skipped++
			continue
		}
		out = append(out, cloneTxn(t))
		if opts.Limit > 0 && len(out) >= opts.Limit {
			break
		}
	}
	return out, nil
}

// ──────────────────────────────────────────────────
// Atomic units
// ──────────────────────────────────────────────────

func (s *Store) CompleteTrip(_ context.Context, c store.TripCompletion) (*trip.Trip, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, transit.ErrStoreClosed
	}

	t, ok := s.trips[c.TripID.String()]
	if !ok {
		return nil, fmt.Errorf("%w: %s", transit.ErrTripNotFound, c.TripID)
	}
	if !t.Active() {
		return nil, fmt.Errorf("%w: trip %s is %s", transit.ErrNoActiveTrip, c.TripID, t.Status)
	}
	if t.Version != c.ExpectedVersion {
		return nil, fmt.Errorf("%w: trip %s version %d != %d",
			transit.ErrConcurrencyConflict, c.TripID, t.Version, c.ExpectedVersion)
	}
	if _, ok := s.txnsByRef[c.Transaction.Reference]; ok {
		return nil, fmt.Errorf("%w: %s", transit.ErrDuplicateReference, c.Transaction.Reference)
	}

	u, err := s.getUserLocked(t.UserID)
	if err != nil {
		return nil, err
	}
	if err := u.Debit(c.Fare); err != nil {
		return nil, err
	}

	next := cloneTrip(t)
	if err := next.Complete(c.End, c.EndTime, c.Fare); err != nil {
		return nil, err
	}

	// Commit. Every check passed, so nothing below can fail except the
	// reference guard above, which was already taken.
	s.trips[next.ID.String()] = next
	s.users[u.ID.String()] = u
	s.txns[c.Transaction.ID.String()] = cloneTxn(c.Transaction)
	s.txnsByRef[c.Transaction.Reference] = c.Transaction.ID.String()
	s.txnOrder = append(s.txnOrder, c.Transaction.ID.String())

	return cloneTrip(next), nil
}

func (s *Store) SettleTopup(_ context.Context, set store.TopupSettlement) (*txn.Transaction, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, false, transit.ErrStoreClosed
	}

	tid, ok := s.txnsByRef[set.Reference]
	if !ok {
		return nil, false, fmt.Errorf("%w: reference %s", transit.ErrTransactionNotFound, set.Reference)
	}
	t := s.txns[tid]
	if t.Type != txn.TypeTopup {
		return nil, false, fmt.Errorf("%w: reference %s is not a topup", transit.ErrInvalidInput, set.Reference)
	}
	if t.Final() {
		// Already resolved: redelivery is a no-op.
		return cloneTxn(t), false, nil
	}

	u, err := s.getUserLocked(t.UserID)
	if err != nil {
		return nil, false, err
	}
	if err := u.Credit(set.Amount); err != nil {
		return nil, false, err
	}

	next := cloneTxn(t)
	next.Status = txn.StatusSuccess
	next.Amount = set.Amount
	next.Meta.Topup = &txn.TopupMeta{GatewayPayload: set.Payload}
	now := time.Now().UTC()
	next.Settled = true
	next.SettledAt = &now
	next.Touch()

	s.txns[tid] = next
	s.users[u.ID.String()] = u

	return cloneTxn(next), true, nil
}

func (s *Store) FailTopup(_ context.Context, reference string, payload json.RawMessage) (*txn.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, transit.ErrStoreClosed
	}

	tid, ok := s.txnsByRef[reference]
	if !ok {
		return nil, fmt.Errorf("%w: reference %s", transit.ErrTransactionNotFound, reference)
	}
	t := s.txns[tid]
	if t.Type != txn.TypeTopup {
		return nil, fmt.Errorf("%w: reference %s is not a topup", transit.ErrInvalidInput, reference)
	}
	if t.Final() {
		return cloneTxn(t), nil
	}

	next := cloneTxn(t)
	next.Status = txn.StatusFailed
	next.Meta.Topup = &txn.TopupMeta{GatewayPayload: payload}
	next.Touch()
	s.txns[tid] = next

	return cloneTxn(next), nil
}

func (s *Store) Credit(_ context.Context, c store.BalanceCredit) (*account.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, transit.ErrStoreClosed
	}

	u, err := s.getUserLocked(c.UserID)
	if err != nil {
		return nil, err
	}
	if err := u.Credit(c.Amount); err != nil {
		return nil, err
	}
	if err := s.recordTransactionLocked(c.Transaction); err != nil {
		return nil, err
	}
	s.users[u.ID.String()] = u

	return cloneUser(u), nil
}

func (s *Store) SettleAgencyFares(_ context.Context, agencyID id.AgencyID, settledAt time.Time) (types.Money, int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return types.Zero("zar"), 0, transit.ErrStoreClosed
	}

	at := settledAt.UTC()
	total := types.Zero("zar")
	var count int64
	for tid, t := range s.txns {
		if t.Type != txn.TypeFare || t.Settled || t.AgencyID.String() != agencyID.String() {
			continue
		}
		next := cloneTxn(t)
		next.Settled = true
		next.SettledAt = &at
		next.Touch()
		s.txns[tid] = next

		total = total.Add(t.Amount.Abs())
		count++
	}
	return total, count, nil
}

// ──────────────────────────────────────────────────
// Clone helpers
// ──────────────────────────────────────────────────

func cloneUser(u *account.User) *account.User {
	cp := *u
	return &cp
}

func cloneCard(c *account.Card) *account.Card {
	cp := *c
	return &cp
}

func cloneTrip(t *trip.Trip) *trip.Trip {
	cp := *t
	if t.End != nil {
		end := *t.End
		cp.End = &end
	}
	if t.EndTime != nil {
		et := *t.EndTime
		cp.EndTime = &et
	}
	return &cp
}

func cloneTxn(t *txn.Transaction) *txn.Transaction {
	cp := *t
	if t.Meta.Fare != nil {
		m := *t.Meta.Fare
		if t.Meta.Fare.Breakdown != nil {
			b := *t.Meta.Fare.Breakdown
			m.Breakdown = &b
		}
		cp.Meta.Fare = &m
	}
	if t.Meta.Topup != nil {
		m := *t.Meta.Topup
		if t.Meta.Topup.GatewayPayload != nil {
			m.GatewayPayload = append(json.RawMessage(nil), t.Meta.Topup.GatewayPayload...)
		}
		cp.Meta.Topup = &m
	}
	if t.Meta.Refund != nil {
		m := *t.Meta.Refund
		cp.Meta.Refund = &m
	}
	if t.SettledAt != nil {
		at := *t.SettledAt
		cp.SettledAt = &at
	}
	return &cp
}
