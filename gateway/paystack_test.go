package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
)

func TestInitialize(t *testing.T) {
	var gotAuth string
	var gotBody struct {
		Email     string `json:"email"`
		Amount    int64  `json:"amount"`
		Reference string `json:"reference"`
		Currency  string `json:"currency"`
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/transaction/initialize" {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		gotAuth = r.Header.Get("Authorization")
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Errorf("decode request: %v", err)
		}

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"status": true,
			"message": "Authorization URL created",
			"data": {
				"authorization_url": "https://checkout.paystack.com/abc123",
				"access_code": "abc123",
				"reference": "ps_ref_1"
			}
		}`))
	}))
	defer srv.Close()

	p := NewPaystack("sk_test_x", WithBaseURL(srv.URL))

	session, err := p.Initialize(context.Background(), InitializeRequest{
		Email:     "thabo@example.com",
		Amount:    5000,
		Reference: "ps_ref_1",
		Currency:  "ZAR",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if gotAuth != "Bearer sk_test_x" {
		t.Errorf("authorization header: got %q", gotAuth)
	}
	if gotBody.Amount != 5000 || gotBody.Reference != "ps_ref_1" || gotBody.Currency != "ZAR" {
		t.Errorf("unexpected request body: %+v", gotBody)
	}
	if session.CheckoutURL != "https://checkout.paystack.com/abc123" {
		t.Errorf("checkout URL: got %q", session.CheckoutURL)
	}
	if session.Reference != "ps_ref_1" {
		t.Errorf("reference: got %q", session.Reference)
	}
}

func TestVerify(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/transaction/verify/ps_ref_1" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		_, _ = w.Write([]byte(`{
			"status": true,
			"message": "Verification successful",
			"data": {"status": "success", "amount": 5000, "channel": "card"}
		}`))
	}))
	defer srv.Close()

	p := NewPaystack("sk_test_x", WithBaseURL(srv.URL))

	result, err := p.Verify(context.Background(), "ps_ref_1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if result.Status != StatusSuccess {
		t.Errorf("status: got %s, want %s", result.Status, StatusSuccess)
	}
	if result.Amount != 5000 {
		t.Errorf("amount: got %d, want 5000", result.Amount)
	}
	if len(result.Payload) == 0 {
		t.Error("raw payload should be retained for audit")
	}
}

func TestVerifyStatusNormalization(t *testing.T) {
	tests := []struct {
		provider string
		want     Status
	}{
		{"success", StatusSuccess},
		{"failed", StatusFailed},
		{"reversed", StatusFailed},
		{"abandoned", StatusPending},
		{"ongoing", StatusPending},
		{"pending", StatusPending},
	}

	for _, tt := range tests {
		t.Run(tt.provider, func(t *testing.T) {
			if got := normalizeStatus(tt.provider); got != tt.want {
				t.Errorf("normalizeStatus(%q): got %s, want %s", tt.provider, got, tt.want)
			}
		})
	}
}

func TestRetryOnServerError(t *testing.T) {
	var calls atomic.Int32

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte(`{
			"status": true,
			"data": {"status": "success", "amount": 1000}
		}`))
	}))
	defer srv.Close()

	p := NewPaystack("sk_test_x", WithBaseURL(srv.URL), WithMaxTries(3))

	result, err := p.Verify(context.Background(), "ps_ref_2")
	if err != nil {
		t.Fatalf("expected success after retries, got %v", err)
	}
	if result.Status != StatusSuccess {
		t.Errorf("status: got %s", result.Status)
	}
	if got := calls.Load(); got != 3 {
		t.Errorf("expected 3 attempts, got %d", got)
	}
}

func TestNoRetryOnClientError(t *testing.T) {
	var calls atomic.Int32

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	p := NewPaystack("sk_bad", WithBaseURL(srv.URL), WithMaxTries(3))

	_, err := p.Verify(context.Background(), "ps_ref_3")
	if !errors.Is(err, ErrGateway) {
		t.Fatalf("expected ErrGateway, got %v", err)
	}

	var gatewayErr *Error
	if !errors.As(err, &gatewayErr) {
		t.Fatal("expected a *gateway.Error")
	}
	if gatewayErr.StatusCode != http.StatusUnauthorized {
		t.Errorf("status code: got %d", gatewayErr.StatusCode)
	}
	if got := calls.Load(); got != 1 {
		t.Errorf("4xx must not be retried: got %d attempts", got)
	}
}

func TestGatewayExhaustedRetries(t *testing.T) {
	var calls atomic.Int32

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	p := NewPaystack("sk_test_x", WithBaseURL(srv.URL), WithMaxTries(2))

	_, err := p.Verify(context.Background(), "ps_ref_4")
	if !errors.Is(err, ErrGateway) {
		t.Fatalf("expected ErrGateway, got %v", err)
	}
	if got := calls.Load(); got != 2 {
		t.Errorf("expected 2 attempts, got %d", got)
	}
}
