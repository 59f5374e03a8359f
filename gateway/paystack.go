package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v5"
)

// DefaultBaseURL is the production Paystack API endpoint.
const DefaultBaseURL = "https://api.paystack.co"

// Paystack is a Client backed by the Paystack HTTP API. Requests carry a
// bounded timeout and are retried with exponential backoff; 4xx
// responses are permanent.
type Paystack struct {
	baseURL   string
	secretKey string
	client    *http.Client
	logger    *slog.Logger
	maxTries  uint
}

// compile-time interface check
var _ Client = (*Paystack)(nil)

// PaystackOption configures a Paystack client.
type PaystackOption func(*Paystack)

// WithBaseURL overrides the API endpoint (tests, sandboxes).
func WithBaseURL(url string) PaystackOption {
	return func(p *Paystack) { p.baseURL = url }
}

// WithHTTPClient overrides the HTTP client, including its timeout.
func WithHTTPClient(c *http.Client) PaystackOption {
	return func(p *Paystack) { p.client = c }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) PaystackOption {
	return func(p *Paystack) { p.logger = logger }
}

// WithMaxTries bounds the retry budget per request (minimum 1).
func WithMaxTries(n uint) PaystackOption {
	return func(p *Paystack) {
		if n > 0 {
			p.maxTries = n
		}
	}
}

// NewPaystack creates a Paystack client authenticated with the given
// secret key.
func NewPaystack(secretKey string, opts ...PaystackOption) *Paystack {
	p := &Paystack{
		baseURL:   DefaultBaseURL,
		secretKey: secretKey,
		client:    &http.Client{Timeout: 15 * time.Second},
		logger:    slog.Default(),
		maxTries:  3,
	}

	for _, opt := range opts {
		opt(p)
	}

	return p
}

// envelope is the common Paystack response wrapper.
type envelope struct {
	Status  bool            `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

// Initialize requests a hosted payment session.
func (p *Paystack) Initialize(ctx context.Context, req InitializeRequest) (*Session, error) {
	body := struct {
		Email     string `json:"email"`
		Amount    int64  `json:"amount"`
		Reference string `json:"reference"`
		Currency  string `json:"currency,omitempty"`
	}{
		Email:     req.Email,
		Amount:    req.Amount,
		Reference: req.Reference,
		Currency:  req.Currency,
	}

	env, err := p.do(ctx, http.MethodPost, "/transaction/initialize", body)
	if err != nil {
		return nil, err
	}

	var data struct {
		AuthorizationURL string `json:"authorization_url"`
		AccessCode       string `json:"access_code"`
		Reference        string `json:"reference"`
	}
	if err := json.Unmarshal(env.Data, &data); err != nil {
		return nil, &Error{Op: "initialize", Message: fmt.Sprintf("decode response: %v", err)}
	}

	return &Session{
		CheckoutURL: data.AuthorizationURL,
		AccessCode:  data.AccessCode,
		Reference:   data.Reference,
	}, nil
}

// Verify asks the provider for the final state of a reference.
func (p *Paystack) Verify(ctx context.Context, reference string) (*VerifyResult, error) {
	env, err := p.do(ctx, http.MethodGet, "/transaction/verify/"+reference, nil)
	if err != nil {
		return nil, err
	}

	var data struct {
		Status string `json:"status"`
		Amount int64  `json:"amount"`
	}
	if err := json.Unmarshal(env.Data, &data); err != nil {
		return nil, &Error{Op: "verify", Message: fmt.Sprintf("decode response: %v", err)}
	}

	return &VerifyResult{
		Status:  normalizeStatus(data.Status),
		Amount:  data.Amount,
		Payload: env.Data,
	}, nil
}

// do performs one API call with retry. Transport errors and 5xx
// responses are retried with exponential backoff up to maxTries; 4xx
// responses fail immediately.
func (p *Paystack) do(ctx context.Context, method, path string, body any) (*envelope, error) {
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("gateway: encode request: %w", err)
		}
	}

	attempt := 0
	operation := func() (*envelope, error) {
		attempt++

		var reader io.Reader
		if payload != nil {
			reader = bytes.NewReader(payload)
		}

		req, err := http.NewRequestWithContext(ctx, method, p.baseURL+path, reader)
		if err != nil {
			return nil, backoff.Permanent(&Error{Op: path, Message: err.Error()})
		}
		req.Header.Set("Authorization", "Bearer "+p.secretKey)
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := p.client.Do(req)
		if err != nil {
			p.logger.Warn("gateway request failed",
				"path", path,
				"attempt", attempt,
				"error", err,
			)
			return nil, &Error{Op: path, Message: err.Error()}
		}
		defer resp.Body.Close() //nolint:errcheck // read-only body

		raw, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, &Error{Op: path, Message: err.Error()}
		}

		if resp.StatusCode >= 500 {
			p.logger.Warn("gateway server error",
				"path", path,
				"attempt", attempt,
				"status", resp.StatusCode,
			)
			return nil, &Error{Op: path, StatusCode: resp.StatusCode, Message: string(raw)}
		}
		if resp.StatusCode >= 400 {
			return nil, backoff.Permanent(&Error{Op: path, StatusCode: resp.StatusCode, Message: string(raw)})
		}

		var env envelope
		if err := json.Unmarshal(raw, &env); err != nil {
			return nil, backoff.Permanent(&Error{Op: path, Message: fmt.Sprintf("decode envelope: %v", err)})
		}
		if !env.Status {
			return nil, backoff.Permanent(&Error{Op: path, Message: env.Message})
		}

		return &env, nil
	}

	env, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(backoff.NewExponentialBackOff()),
		backoff.WithMaxTries(p.maxTries),
	)
	if err != nil {
		return nil, err
	}

	return env, nil
}

// normalizeStatus folds the provider's status vocabulary into the three
// states the core acts on. Anything unfinished is pending.
func normalizeStatus(s string) Status {
	switch s {
	case "success":
		return StatusSuccess
	case "failed", "reversed":
		return StatusFailed
	default:
		return StatusPending
	}
}
