package types

import (
	"encoding/json"
	"testing"
)

func TestMoneyConstructors(t *testing.T) {
	tests := []struct {
		name     string
		money    Money
		amount   int64
		currency string
		display  string
	}{
		{"ZAR", ZAR(1000), 1000, "zar", "R10.00"},
		{"ZAR cents", ZAR(550), 550, "zar", "R5.50"},
		{"ZAR negative", ZAR(-1250), -1250, "zar", "R-12.50"},
		{"Zero ZAR", Zero("ZAR"), 0, "zar", "R0.00"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.money.Amount != tt.amount {
				t.Errorf("Amount: got %d, want %d", tt.money.Amount, tt.amount)
			}
			if tt.money.Currency != tt.currency {
				t.Errorf("Currency: got %s, want %s", tt.money.Currency, tt.currency)
			}
			if tt.money.String() != tt.display {
				t.Errorf("Display: got %s, want %s", tt.money.String(), tt.display)
			}
		})
	}
}

func TestMoneyArithmetic(t *testing.T) {
	tests := []struct {
		name     string
		op       func() Money
		expected Money
	}{
		{"Add", func() Money { return ZAR(100).Add(ZAR(200)) }, ZAR(300)},
		{"Subtract", func() Money { return ZAR(500).Subtract(ZAR(200)) }, ZAR(300)},
		{"Negate", func() Money { return ZAR(100).Negate() }, ZAR(-100)},
		{"Abs positive", func() Money { return ZAR(100).Abs() }, ZAR(100)},
		{"Abs negative", func() Money { return ZAR(-100).Abs() }, ZAR(100)},
		{"Chained", func() Money {
			return ZAR(2000).Subtract(ZAR(1000)).Add(ZAR(500))
		}, ZAR(1500)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := tt.op()
			if !result.Equal(tt.expected) {
				t.Errorf("Got %v, want %v", result, tt.expected)
			}
		})
	}
}

func TestMoneyComparisons(t *testing.T) {
	if !ZAR(100).LessThan(ZAR(200)) {
		t.Error("ZAR(100) should be less than ZAR(200)")
	}
	if !ZAR(200).GreaterThan(ZAR(100)) {
		t.Error("ZAR(200) should be greater than ZAR(100)")
	}
	if !ZAR(0).IsZero() {
		t.Error("ZAR(0) should be zero")
	}
	if !ZAR(1).IsPositive() {
		t.Error("ZAR(1) should be positive")
	}
	if !ZAR(-1).IsNegative() {
		t.Error("ZAR(-1) should be negative")
	}
}

func TestMoneyCurrencyMismatch(t *testing.T) {
	defer func() {
		if r := recover(); r == nil {
			t.Error("Expected panic for currency mismatch")
		}
	}()

	_ = ZAR(100).Add(Money{Amount: 100, Currency: "usd"})
}

func TestMoneySum(t *testing.T) {
	got := Sum(ZAR(100), ZAR(250), ZAR(-50))
	if !got.Equal(ZAR(300)) {
		t.Errorf("Sum: got %v, want %v", got, ZAR(300))
	}

	if !Sum().Equal(Zero("zar")) {
		t.Error("empty Sum should be zero ZAR")
	}
}

func TestMoneyJSON(t *testing.T) {
	data, err := json.Marshal(ZAR(1000))
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}

	var decoded struct {
		Amount   int64  `json:"amount"`
		Currency string `json:"currency"`
		Display  string `json:"display"`
	}
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}

	if decoded.Amount != 1000 || decoded.Currency != "zar" || decoded.Display != "R10.00" {
		t.Errorf("unexpected JSON payload: %+v", decoded)
	}
}
