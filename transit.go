package transit

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/mzansipass/transit/account"
	"github.com/mzansipass/transit/agency"
	"github.com/mzansipass/transit/fare"
	"github.com/mzansipass/transit/gateway"
	"github.com/mzansipass/transit/hook"
	"github.com/mzansipass/transit/id"
	"github.com/mzansipass/transit/store"
	"github.com/mzansipass/transit/trip"
	"github.com/mzansipass/transit/txn"
	"github.com/mzansipass/transit/types"
)

// Transit is the fare collection core: the trip lifecycle state machine,
// the balance/ledger consistency rules, and top-up reconciliation
// against the payment gateway.
type Transit struct {
	store   store.Store
	gateway gateway.Client
	hooks   *hook.Registry
	logger  *slog.Logger

	// Configuration
	minTripBalance types.Money
	gatewayTimeout time.Duration
}

// New creates a new Transit core on top of a store.
func New(s store.Store, opts ...Option) *Transit {
	t := &Transit{
		store:          s,
		hooks:          hook.NewRegistry(),
		logger:         slog.Default(),
		minTripBalance: account.MinTripBalance,
		gatewayTimeout: 20 * time.Second,
	}

	for _, opt := range opts {
		opt(t)
	}

	return t
}

// Option configures a Transit instance.
type Option func(*Transit)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(t *Transit) {
		t.logger = logger
		t.hooks.WithLogger(logger)
	}
}

// WithGateway sets the payment gateway client used for top-ups.
func WithGateway(c gateway.Client) Option {
	return func(t *Transit) {
		t.gateway = c
	}
}

// WithHook registers a lifecycle hook.
func WithHook(h hook.Hook) Option {
	return func(t *Transit) {
		if err := t.hooks.Register(h); err != nil {
			t.logger.Warn("hook registration failed", "error", err)
		}
	}
}

// WithMinTripBalance overrides the tap-in balance floor.
func WithMinTripBalance(m types.Money) Option {
	return func(t *Transit) {
		t.minTripBalance = m
	}
}

// WithGatewayTimeout bounds how long a single top-up operation may wait
// on the payment provider.
func WithGatewayTimeout(d time.Duration) Option {
	return func(t *Transit) {
		if d > 0 {
			t.gatewayTimeout = d
		}
	}
}

// Start migrates the store and initializes hooks.
func (t *Transit) Start(ctx context.Context) error {
	if err := t.store.Migrate(ctx); err != nil {
		return err
	}

	t.hooks.EmitInit(ctx, t)

	t.logger.Info("transit core started",
		"min_trip_balance", t.minTripBalance.String(),
		"gateway_timeout", t.gatewayTimeout,
	)

	return nil
}

// Stop shuts down the core and closes the store.
func (t *Transit) Stop() error {
	t.hooks.EmitShutdown(context.Background())
	return t.store.Close()
}

// ──────────────────────────────────────────────────
// Provisioning
// ──────────────────────────────────────────────────

// RegisterUser creates a passenger account with a zero balance.
func (t *Transit) RegisterUser(ctx context.Context, email, name string) (*account.User, error) {
	if email == "" {
		return nil, ValidationError{Field: "email", Message: "required"}
	}

	u := account.NewUser(email, name)
	if err := t.store.CreateUser(ctx, u); err != nil {
		return nil, err
	}

	t.logger.Info("user registered", "user_id", u.ID.String())
	return u, nil
}

// IssueCard binds a new linked transit card to a user.
func (t *Transit) IssueCard(ctx context.Context, userID id.UserID, token, label string) (*account.Card, error) {
	if token == "" {
		return nil, ValidationError{Field: "token", Message: "required"}
	}
	if _, err := t.store.GetUser(ctx, userID); err != nil {
		return nil, err
	}

	c := &account.Card{
		Entity: types.NewEntity(),
		ID:     id.NewCardID(),
		Token:  token,
		UserID: userID,
		Label:  label,
		Linked: true,
	}
	if err := t.store.CreateCard(ctx, c); err != nil {
		return nil, err
	}

	t.logger.Info("card issued", "card_id", c.ID.String(), "user_id", userID.String())
	return c, nil
}

// UnlinkCard revokes a card. The record stays for audit; taps with the
// token are rejected from here on.
func (t *Transit) UnlinkCard(ctx context.Context, cardID id.CardID) error {
	return t.store.SetCardLinked(ctx, cardID, false)
}

// CreateAgency registers a transport operator. Its code must belong to
// the closed set the fare engine prices for.
func (t *Transit) CreateAgency(ctx context.Context, a *agency.Agency) error {
	if a.Name == "" {
		return ValidationError{Field: "name", Message: "required"}
	}
	if a.Code == "" {
		return ValidationError{Field: "code", Message: "required"}
	}
	if a.ID.IsNil() {
		a.ID = id.NewAgencyID()
	}
	a.Entity = types.NewEntity()

	return t.store.CreateAgency(ctx, a)
}

// ──────────────────────────────────────────────────
// Trips
// ──────────────────────────────────────────────────

// TapInRequest starts a trip.
type TapInRequest struct {
	UserID    id.UserID
	CardToken string
	Agency    agency.Code
	Location  types.GeoPoint

	// At defaults to the current time when zero.
	At time.Time
}

// TapIn starts a trip for a card after the balance floor check. The
// floor is an affordability gate independent of the eventual fare.
func (t *Transit) TapIn(ctx context.Context, req TapInRequest) (*trip.Trip, error) {
	if req.CardToken == "" {
		return nil, ValidationError{Field: "card_token", Message: "required"}
	}

	card, err := t.store.GetCardByToken(ctx, req.CardToken)
	if err != nil {
		return nil, err
	}
	// An unlinked or foreign card reads the same as an unknown one.
	if !card.Usable(req.UserID) {
		return nil, fmt.Errorf("%w: %s", ErrCardNotFound, req.CardToken)
	}

	ag, err := t.store.GetAgencyByCode(ctx, req.Agency)
	if err != nil {
		return nil, err
	}
	if !ag.Active {
		return nil, fmt.Errorf("%w: %s", ErrAgencyInactive, ag.Code)
	}

	u, err := t.store.GetUser(ctx, req.UserID)
	if err != nil {
		return nil, err
	}
	if u.Balance.LessThan(t.minTripBalance) {
		return nil, fmt.Errorf("%w: balance %s below floor %s",
			ErrInsufficientBalance, u.Balance, t.minTripBalance)
	}

	at := req.At
	if at.IsZero() {
		at = time.Now()
	}

	tr := trip.New(req.UserID, ag.ID, req.CardToken, txn.NewFareReference(), req.Location, at)
	if err := t.store.CreateTrip(ctx, tr); err != nil {
		return nil, err
	}

	t.hooks.EmitTripStarted(ctx, tr)
	t.logger.Info("tap in",
		"trip_id", tr.ID.String(),
		"user_id", req.UserID.String(),
		"agency", string(ag.Code),
	)

	return tr, nil
}

// TapOutRequest ends a trip.
type TapOutRequest struct {
	UserID    id.UserID
	CardToken string
	Location  types.GeoPoint

	// At defaults to the current time when zero.
	At time.Time
}

// TapOutResult is a completed trip with its priced fare and the balance
// after the debit.
type TapOutResult struct {
	Trip    *trip.Trip
	Fare    fare.Result
	Balance types.Money
}

// TapOut completes the active trip for a card: it prices the trip from
// the recorded start and supplied end, then closes the trip, debits the
// balance, and appends the fare transaction in one atomic unit. If the
// fare exceeds the balance the trip stays in progress and no money
// moves.
func (t *Transit) TapOut(ctx context.Context, req TapOutRequest) (*TapOutResult, error) {
	if req.CardToken == "" {
		return nil, ValidationError{Field: "card_token", Message: "required"}
	}

	card, err := t.store.GetCardByToken(ctx, req.CardToken)
	if err != nil {
		return nil, err
	}
	if !card.Usable(req.UserID) {
		return nil, fmt.Errorf("%w: %s", ErrCardNotFound, req.CardToken)
	}

	tr, err := t.store.ActiveTrip(ctx, req.UserID, req.CardToken)
	if err != nil {
		return nil, err
	}

	ag, err := t.store.GetAgency(ctx, tr.AgencyID)
	if err != nil {
		return nil, err
	}

	at := req.At
	if at.IsZero() {
		at = time.Now()
	}

	priced, err := fare.Calculate(fare.Context{
		Agency:    ag.Code,
		Start:     tr.Start,
		End:       req.Location,
		StartTime: tr.StartTime,
		EndTime:   at,
	})
	if err != nil {
		return nil, err
	}

	fareTx := txn.NewFare(req.UserID, ag.ID, priced.Amount, tr.Reference, txn.FareMeta{
		TripID:    tr.ID,
		Breakdown: priced.Breakdown,
	})

	completed, err := t.store.CompleteTrip(ctx, store.TripCompletion{
		TripID:          tr.ID,
		ExpectedVersion: tr.Version,
		End:             req.Location,
		EndTime:         at,
		Fare:            priced.Amount,
		Transaction:     fareTx,
	})
	if err != nil {
		return nil, err
	}

	u, err := t.store.GetUser(ctx, req.UserID)
	if err != nil {
		return nil, err
	}

	t.hooks.EmitTripCompleted(ctx, completed, fareTx)
	t.logger.Info("tap out",
		"trip_id", completed.ID.String(),
		"user_id", req.UserID.String(),
		"fare", priced.Amount.String(),
		"balance", u.Balance.String(),
	)

	return &TapOutResult{Trip: completed, Fare: priced, Balance: u.Balance}, nil
}

// CancelTrip closes an in-progress trip administratively. No money
// moves.
func (t *Transit) CancelTrip(ctx context.Context, tripID id.TripID) (*trip.Trip, error) {
	tr, err := t.store.GetTrip(ctx, tripID)
	if err != nil {
		return nil, err
	}
	if !tr.Active() {
		return nil, fmt.Errorf("%w: trip %s is %s", ErrNoActiveTrip, tripID, tr.Status)
	}

	cancelled, err := t.store.CancelTrip(ctx, tripID, tr.Version)
	if err != nil {
		return nil, err
	}

	t.hooks.EmitTripCancelled(ctx, cancelled)
	t.logger.Info("trip cancelled", "trip_id", tripID.String())

	return cancelled, nil
}

// RefundTrip reverses a completed trip's fare: it credits the passenger
// and appends a refund transaction in one atomic unit. The refund
// reference is derived from the trip, so refunding twice collides on
// the ledger's uniqueness constraint.
func (t *Transit) RefundTrip(ctx context.Context, tripID id.TripID, reason string) (*txn.Transaction, error) {
	tr, err := t.store.GetTrip(ctx, tripID)
	if err != nil {
		return nil, err
	}
	if tr.Status != trip.StatusCompleted || !tr.Fare.IsPositive() {
		return nil, fmt.Errorf("%w: trip %s", ErrTripNotRefundable, tripID)
	}

	refund := txn.NewRefund(tr.UserID, tr.AgencyID, tr.Fare, txn.RefundReference(tr.ID), txn.RefundMeta{
		TripID: tr.ID,
		Reason: reason,
	})

	u, err := t.store.Credit(ctx, store.BalanceCredit{
		UserID:      tr.UserID,
		Amount:      tr.Fare,
		Transaction: refund,
	})
	if err != nil {
		return nil, err
	}

	t.hooks.EmitTripRefunded(ctx, tr, refund)
	t.logger.Info("trip refunded",
		"trip_id", tripID.String(),
		"amount", tr.Fare.String(),
		"balance", u.Balance.String(),
	)

	return refund, nil
}

// GetTrip retrieves a trip by ID.
func (t *Transit) GetTrip(ctx context.Context, tripID id.TripID) (*trip.Trip, error) {
	return t.store.GetTrip(ctx, tripID)
}

// ListTrips lists an agency's trips, newest first.
func (t *Transit) ListTrips(ctx context.Context, agencyID id.AgencyID, opts trip.ListOpts) ([]*trip.Trip, error) {
	return t.store.ListTrips(ctx, agencyID, opts)
}

// ──────────────────────────────────────────────────
// Fares
// ──────────────────────────────────────────────────

// CalculateFare prices a hypothetical trip without touching any state.
func (t *Transit) CalculateFare(_ context.Context, fc fare.Context) (fare.Result, error) {
	return fare.Calculate(fc)
}

// ──────────────────────────────────────────────────
// Top-ups
// ──────────────────────────────────────────────────

// TopupSession is a freshly initiated top-up: the pending ledger record
// and the provider's checkout handle.
type TopupSession struct {
	Transaction *txn.Transaction
	Session     *gateway.Session
}

// InitiateTopup records a pending top-up and requests a payment session
// from the gateway. The balance does not change here.
func (t *Transit) InitiateTopup(ctx context.Context, userID id.UserID, amount types.Money) (*TopupSession, error) {
	if t.gateway == nil {
		return nil, ErrNoGateway
	}
	if err := account.ValidateAmount(amount); err != nil {
		return nil, err
	}

	u, err := t.store.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	pending := txn.NewTopup(userID, amount, txn.NewTopupReference())
	if err := t.store.RecordTransaction(ctx, pending); err != nil {
		return nil, err
	}

	gwCtx, cancel := context.WithTimeout(ctx, t.gatewayTimeout)
	defer cancel()

	session, err := t.gateway.Initialize(gwCtx, gateway.InitializeRequest{
		Email:     u.Email,
		Amount:    amount.Amount,
		Reference: pending.Reference,
		Currency:  "ZAR",
	})
	if err != nil {
		t.logger.Error("topup initialize failed",
			"reference", pending.Reference,
			"error", err,
		)
		return nil, err
	}

	t.hooks.EmitTopupInitiated(ctx, pending)
	t.logger.Info("topup initiated",
		"reference", pending.Reference,
		"user_id", userID.String(),
		"amount", amount.String(),
	)

	return &TopupSession{Transaction: pending, Session: session}, nil
}

// TopupVerification is the outcome of a verification attempt.
type TopupVerification struct {
	Status      gateway.Status
	Transaction *txn.Transaction

	// Credited is true only for the single call that applied the
	// balance credit.
	Credited bool
}

// VerifyTopup confirms a top-up against the gateway and credits the
// balance exactly once. A reference that already settled returns
// immediately without side effects, which makes webhook redelivery and
// client retries safe.
func (t *Transit) VerifyTopup(ctx context.Context, reference string) (*TopupVerification, error) {
	if t.gateway == nil {
		return nil, ErrNoGateway
	}

	tx, err := t.store.GetTransactionByReference(ctx, reference)
	if err != nil {
		return nil, err
	}
	if tx.Type != txn.TypeTopup {
		return nil, ValidationError{Field: "reference", Message: "not a topup transaction"}
	}
	if tx.Status == txn.StatusSuccess {
		return &TopupVerification{Status: gateway.StatusSuccess, Transaction: tx}, nil
	}

	gwCtx, cancel := context.WithTimeout(ctx, t.gatewayTimeout)
	defer cancel()

	result, err := t.gateway.Verify(gwCtx, reference)
	if err != nil {
		return nil, err
	}

	switch result.Status {
	case gateway.StatusSuccess:
		settled, credited, err := t.store.SettleTopup(ctx, store.TopupSettlement{
			Reference: reference,
			Amount:    types.ZAR(result.Amount),
			Payload:   result.Payload,
		})
		if err != nil {
			return nil, err
		}
		if credited {
			t.hooks.EmitTopupSettled(ctx, settled)
			t.logger.Info("topup settled",
				"reference", reference,
				"amount", settled.Amount.String(),
			)
		}
		return &TopupVerification{Status: gateway.StatusSuccess, Transaction: settled, Credited: credited}, nil

	case gateway.StatusFailed:
		failed, err := t.store.FailTopup(ctx, reference, result.Payload)
		if err != nil {
			return nil, err
		}
		t.logger.Info("topup failed at gateway", "reference", reference)
		return &TopupVerification{Status: gateway.StatusFailed, Transaction: failed}, nil

	default:
		// Still pending at the provider; nothing to record yet.
		return &TopupVerification{Status: gateway.StatusPending, Transaction: tx}, nil
	}
}

// ──────────────────────────────────────────────────
// Settlement and lookups
// ──────────────────────────────────────────────────

// SettleAgencyFares marks every unsettled fare transaction for the
// agency settled and returns the gross total and count.
func (t *Transit) SettleAgencyFares(ctx context.Context, agencyID id.AgencyID) (types.Money, int64, error) {
	if _, err := t.store.GetAgency(ctx, agencyID); err != nil {
		return types.Zero("zar"), 0, err
	}

	total, count, err := t.store.SettleAgencyFares(ctx, agencyID, time.Now().UTC())
	if err != nil {
		return types.Zero("zar"), 0, err
	}

	if count > 0 {
		t.hooks.EmitFaresSettled(ctx, agencyID, total, count)
		t.logger.Info("agency fares settled",
			"agency_id", agencyID.String(),
			"total", total.String(),
			"count", count,
		)
	}

	return total, count, nil
}

// GetUser retrieves a passenger account.
func (t *Transit) GetUser(ctx context.Context, userID id.UserID) (*account.User, error) {
	return t.store.GetUser(ctx, userID)
}

// ListTransactions lists a user's ledger history, newest first.
func (t *Transit) ListTransactions(ctx context.Context, userID id.UserID, opts txn.ListOpts) ([]*txn.Transaction, error) {
	return t.store.ListTransactions(ctx, userID, opts)
}
