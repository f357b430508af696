package models

import (
	"errors"
	"fmt"
	"strings"
)

// ErrCurrencyMismatch is returned when arithmetic is attempted between
// Money values of different currencies.
var ErrCurrencyMismatch = errors.New("money: currency mismatch")

// Money is an immutable amount in minor currency units (cents) plus an
// uppercase ISO-4217 currency code. Amounts are integers; float math is
// never used for monetary values.
type Money struct {
	Amount   int64  `gorm:"column:amount;not null" json:"amount"`
	Currency string `gorm:"column:currency;type:varchar(3);not null" json:"currency"`
}

// NewMoney builds a Money value. The currency is normalized to uppercase;
// negative amounts and malformed currency codes are rejected.
func NewMoney(amount int64, currency string) (Money, error) {
	if amount < 0 {
		return Money{}, fmt.Errorf("money: amount must not be negative, got %d", amount)
	}
	c := strings.ToUpper(strings.TrimSpace(currency))
	if len(c) != 3 {
		return Money{}, fmt.Errorf("money: invalid currency code %q", currency)
	}
	for _, r := range c {
		if r < 'A' || r > 'Z' {
			return Money{}, fmt.Errorf("money: invalid currency code %q", currency)
		}
	}
	return Money{Amount: amount, Currency: c}, nil
}

// MustMoney is NewMoney for statically known values; it panics on error.
func MustMoney(amount int64, currency string) Money {
	m, err := NewMoney(amount, currency)
	if err != nil {
		panic(err)
	}
	return m
}

// Add returns a new Money with the sum of both amounts.
func (m Money) Add(other Money) (Money, error) {
	if m.Currency != other.Currency {
		return Money{}, ErrCurrencyMismatch
	}
	return Money{Amount: m.Amount + other.Amount, Currency: m.Currency}, nil
}

// Sub returns a new Money with the difference. Subtracting below zero is an
// error so callers cannot produce negative monetary values by accident.
func (m Money) Sub(other Money) (Money, error) {
	if m.Currency != other.Currency {
		return Money{}, ErrCurrencyMismatch
	}
	if other.Amount > m.Amount {
		return Money{}, fmt.Errorf("money: result would be negative (%d - %d)", m.Amount, other.Amount)
	}
	return Money{Amount: m.Amount - other.Amount, Currency: m.Currency}, nil
}

// Cmp compares two amounts of the same currency: -1, 0 or +1.
func (m Money) Cmp(other Money) (int, error) {
	if m.Currency != other.Currency {
		return 0, ErrCurrencyMismatch
	}
	switch {
	case m.Amount < other.Amount:
		return -1, nil
	case m.Amount > other.Amount:
		return 1, nil
	default:
		return 0, nil
	}
}

// IsZero reports whether the amount is zero.
func (m Money) IsZero() bool {
	return m.Amount == 0
}

// IsPositive reports whether the amount is greater than zero.
func (m Money) IsPositive() bool {
	return m.Amount > 0
}

func (m Money) String() string {
	return fmt.Sprintf("%d %s", m.Amount, m.Currency)
}
