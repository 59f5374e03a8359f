// Package gateway abstracts the external payment provider used for
// balance top-ups. The core exchanges minor-unit amounts and opaque
// references with it and stores everything else for audit.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

// Status is the provider's view of a payment.
type Status string

const (
	StatusSuccess Status = "success"
	StatusFailed  Status = "failed"
	StatusPending Status = "pending"
)

// ErrGateway is the sentinel for provider failures: transport errors,
// timeouts, and non-2xx responses after retries are exhausted.
var ErrGateway = errors.New("gateway: request failed")

// Error carries provider failure detail. It unwraps to ErrGateway so
// callers can classify with errors.Is.
type Error struct {
	Op         string
	StatusCode int
	Message    string
}

func (e *Error) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("gateway: %s: status %d: %s", e.Op, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("gateway: %s: %s", e.Op, e.Message)
}

func (e *Error) Unwrap() error { return ErrGateway }

// InitializeRequest asks the provider for a hosted payment session.
// Amount is in minor units (cents).
type InitializeRequest struct {
	Email     string
	Amount    int64
	Reference string
	Currency  string
}

// Session is the provider's checkout handle returned to the caller.
type Session struct {
	CheckoutURL string `json:"checkout_url"`
	AccessCode  string `json:"access_code,omitempty"`
	Reference   string `json:"reference"`
}

// VerifyResult is the provider's answer for a reference. Payload is the
// raw provider response body, stored verbatim for audit.
type VerifyResult struct {
	Status  Status
	Amount  int64
	Payload json.RawMessage
}

// Client is the payment provider boundary.
type Client interface {
	Initialize(ctx context.Context, req InitializeRequest) (*Session, error)
	Verify(ctx context.Context, reference string) (*VerifyResult, error)
}
