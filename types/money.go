// Package types provides common value types shared by orderflow entities.
package types

import (
	"encoding/json"
	"fmt"
	"strings"
)

// DefaultCurrency is the marketplace settlement currency.
const DefaultCurrency = "rub"

// Money is an amount in the smallest currency unit (kopecks for RUB).
// All arithmetic is integer-only.
type Money struct {
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"` // ISO 4217 lowercase
}

// RUB creates a Money value in Russian rubles from kopecks.
func RUB(kopecks int64) Money { return Money{Amount: kopecks, Currency: DefaultCurrency} }

// Zero returns a zero Money value in the specified currency.
func Zero(currency string) Money { return Money{Amount: 0, Currency: strings.ToLower(currency)} }

// IsNegative reports whether the amount is below zero.
func (m Money) IsNegative() bool { return m.Amount < 0 }

// Equal reports whether both values have the same amount and currency.
func (m Money) Equal(other Money) bool {
	return m.Amount == other.Amount && m.Currency == other.Currency
}

// Normalize fills an empty currency with DefaultCurrency.
func (m Money) Normalize() Money {
	if m.Currency == "" {
		m.Currency = DefaultCurrency
	}
	m.Currency = strings.ToLower(m.Currency)
	return m
}

// FormatMajor returns the amount in major units without a symbol, e.g.
// "1500.00" for RUB(150000).
func (m Money) FormatMajor() string {
	abs := m.Amount
	sign := ""
	if abs < 0 {
		abs = -abs
		sign = "-"
	}
	return fmt.Sprintf("%s%d.%02d", sign, abs/100, abs%100)
}

// String renders the amount with its currency, e.g. "1500.00 ₽".
func (m Money) String() string {
	return m.FormatMajor() + " " + currencySymbol(m.Currency)
}

// MarshalJSON implements json.Marshaler.
func (m Money) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Amount   int64  `json:"amount"`
		Currency string `json:"currency"`
		Display  string `json:"display"`
	}{
		Amount:   m.Amount,
		Currency: m.Currency,
		Display:  m.String(),
	})
}

// UnmarshalJSON accepts both the object form produced by MarshalJSON and a
// bare integer amount in minor units.
func (m *Money) UnmarshalJSON(data []byte) error {
	var minor int64
	if err := json.Unmarshal(data, &minor); err == nil {
		*m = RUB(minor)
		return nil
	}

	var obj struct {
		Amount   int64  `json:"amount"`
		Currency string `json:"currency"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return fmt.Errorf("money: %w", err)
	}
	*m = Money{Amount: obj.Amount, Currency: obj.Currency}.Normalize()
	return nil
}

func currencySymbol(currency string) string {
	switch strings.ToLower(currency) {
	case "rub":
		return "₽"
	case "usd":
		return "$"
	case "eur":
		return "€"
	case "kzt":
		return "₸"
	}
	return strings.ToUpper(currency)
}
