// Package audit bridges transit lifecycle events to an audit trail
// backend.
//
// It defines a local Recorder interface so the package does not depend
// on any particular audit store. Callers inject a RecorderFunc adapter
// that bridges to their backend at wiring time.
package audit

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/mzansipass/transit/hook"
	"github.com/mzansipass/transit/id"
	"github.com/mzansipass/transit/trip"
	"github.com/mzansipass/transit/txn"
	"github.com/mzansipass/transit/types"
)

// Compile-time interface checks.
var (
	_ hook.Hook             = (*Extension)(nil)
	_ hook.OnTripStarted    = (*Extension)(nil)
	_ hook.OnTripCompleted  = (*Extension)(nil)
	_ hook.OnTripCancelled  = (*Extension)(nil)
	_ hook.OnTripRefunded   = (*Extension)(nil)
	_ hook.OnTopupInitiated = (*Extension)(nil)
	_ hook.OnTopupSettled   = (*Extension)(nil)
	_ hook.OnFaresSettled   = (*Extension)(nil)
)

// Recorder is the interface that audit backends must implement.
type Recorder interface {
	Record(ctx context.Context, event *Event) error
}

// Event is one audit trail entry.
type Event struct {
	Action     string         `json:"action"`
	Resource   string         `json:"resource"`
	Category   string         `json:"category"`
	ResourceID string         `json:"resource_id,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	Outcome    string         `json:"outcome"`
	Severity   string         `json:"severity"`
}

// RecorderFunc is an adapter to use a plain function as a Recorder.
type RecorderFunc func(ctx context.Context, event *Event) error

// Record implements Recorder.
func (f RecorderFunc) Record(ctx context.Context, event *Event) error {
	return f(ctx, event)
}

// Extension emits an audit event for every transit lifecycle event.
// Register it with transit.WithHook.
type Extension struct {
	recorder Recorder
	enabled  map[string]bool // nil = all enabled
	logger   *slog.Logger
}

// New creates an Extension that emits audit events through the provided
// Recorder.
func New(r Recorder, opts ...Option) *Extension {
	e := &Extension{
		recorder: r,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Name implements hook.Hook.
func (e *Extension) Name() string { return "audit" }

// OnTripStarted implements hook.OnTripStarted.
func (e *Extension) OnTripStarted(ctx context.Context, t *trip.Trip) error {
	return e.record(ctx, ActionTripStarted, SeverityInfo, OutcomeSuccess,
		ResourceTrip, t.ID.String(), CategoryTravel,
		"user_id", t.UserID.String(),
		"agency_id", t.AgencyID.String(),
		"card_token", t.CardToken,
	)
}

// OnTripCompleted implements hook.OnTripCompleted.
func (e *Extension) OnTripCompleted(ctx context.Context, t *trip.Trip, fare *txn.Transaction) error {
	return e.record(ctx, ActionTripCompleted, SeverityInfo, OutcomeSuccess,
		ResourceTrip, t.ID.String(), CategoryTravel,
		"user_id", t.UserID.String(),
		"fare", t.Fare.String(),
		"reference", fare.Reference,
	)
}

// OnTripCancelled implements hook.OnTripCancelled.
func (e *Extension) OnTripCancelled(ctx context.Context, t *trip.Trip) error {
	return e.record(ctx, ActionTripCancelled, SeverityWarning, OutcomeSuccess,
		ResourceTrip, t.ID.String(), CategoryTravel,
		"user_id", t.UserID.String(),
	)
}

// OnTripRefunded implements hook.OnTripRefunded.
func (e *Extension) OnTripRefunded(ctx context.Context, t *trip.Trip, refund *txn.Transaction) error {
	return e.record(ctx, ActionTripRefunded, SeverityWarning, OutcomeSuccess,
		ResourceTrip, t.ID.String(), CategoryPayment,
		"user_id", t.UserID.String(),
		"amount", refund.Amount.String(),
		"reference", refund.Reference,
	)
}

// OnTopupInitiated implements hook.OnTopupInitiated.
func (e *Extension) OnTopupInitiated(ctx context.Context, t *txn.Transaction) error {
	return e.record(ctx, ActionTopupInitiated, SeverityInfo, OutcomeSuccess,
		ResourceTransaction, t.ID.String(), CategoryPayment,
		"user_id", t.UserID.String(),
		"amount", t.Amount.String(),
		"reference", t.Reference,
	)
}

// OnTopupSettled implements hook.OnTopupSettled.
func (e *Extension) OnTopupSettled(ctx context.Context, t *txn.Transaction) error {
	return e.record(ctx, ActionTopupSettled, SeverityInfo, OutcomeSuccess,
		ResourceTransaction, t.ID.String(), CategoryPayment,
		"user_id", t.UserID.String(),
		"amount", t.Amount.String(),
		"reference", t.Reference,
	)
}

// OnFaresSettled implements hook.OnFaresSettled.
func (e *Extension) OnFaresSettled(ctx context.Context, agencyID id.AgencyID, total types.Money, count int64) error {
	return e.record(ctx, ActionFaresSettled, SeverityInfo, OutcomeSuccess,
		ResourceAgency, agencyID.String(), CategoryPayment,
		"total", total.String(),
		"count", count,
	)
}

// record builds and sends an audit event if the action is enabled.
func (e *Extension) record(
	ctx context.Context,
	action, severity, outcome string,
	resource, resourceID, category string,
	kvPairs ...any,
) error {
	if e.enabled != nil && !e.enabled[action] {
		return nil
	}

	meta := make(map[string]any, len(kvPairs)/2)
	for i := 0; i+1 < len(kvPairs); i += 2 {
		key, ok := kvPairs[i].(string)
		if !ok {
			key = fmt.Sprintf("%v", kvPairs[i])
		}
		meta[key] = kvPairs[i+1]
	}

	evt := &Event{
		Action:     action,
		Resource:   resource,
		Category:   category,
		ResourceID: resourceID,
		Metadata:   meta,
		Outcome:    outcome,
		Severity:   severity,
	}

	if recErr := e.recorder.Record(ctx, evt); recErr != nil {
		e.logger.Warn("audit: failed to record audit event",
			"action", action,
			"resource_id", resourceID,
			"error", recErr,
		)
	}
	return nil
}
