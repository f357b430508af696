package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewMoney(t *testing.T) {
	tests := []struct {
		name     string
		amount   int64
		currency string
		wantErr  bool
		want     Money
	}{
		{name: "normalizes currency", amount: 1999, currency: "eur", want: Money{Amount: 1999, Currency: "EUR"}},
		{name: "zero amount ok", amount: 0, currency: "USD", want: Money{Amount: 0, Currency: "USD"}},
		{name: "negative amount", amount: -1, currency: "EUR", wantErr: true},
		{name: "short currency", amount: 100, currency: "EU", wantErr: true},
		{name: "garbage currency", amount: 100, currency: "E1R", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NewMoney(tt.amount, tt.currency)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestMoney_Arithmetic(t *testing.T) {
	a := MustMoney(1000, "EUR")
	b := MustMoney(250, "EUR")

	sum, err := a.Add(b)
	require.NoError(t, err)
	assert.Equal(t, int64(1250), sum.Amount)
	// operands untouched
	assert.Equal(t, int64(1000), a.Amount)

	diff, err := a.Sub(b)
	require.NoError(t, err)
	assert.Equal(t, int64(750), diff.Amount)

	_, err = b.Sub(a)
	assert.Error(t, err, "subtracting below zero must fail")

	cmp, err := a.Cmp(b)
	require.NoError(t, err)
	assert.Equal(t, 1, cmp)
}

func TestMoney_CurrencyMismatch(t *testing.T) {
	eur := MustMoney(100, "EUR")
	usd := MustMoney(100, "USD")

	_, err := eur.Add(usd)
	assert.ErrorIs(t, err, ErrCurrencyMismatch)
	_, err = eur.Sub(usd)
	assert.ErrorIs(t, err, ErrCurrencyMismatch)
	_, err = eur.Cmp(usd)
	assert.ErrorIs(t, err, ErrCurrencyMismatch)
}

func TestPayment_Guards(t *testing.T) {
	p := &Payment{Amount: 1000, Currency: "EUR", Status: PaymentStatusAuthorized}
	assert.True(t, p.CanCapture())

	p.Status = PaymentStatusCaptured
	assert.False(t, p.CanCapture())
	assert.True(t, p.CanRefund(1000))
	assert.False(t, p.CanRefund(1001), "refund above captured amount")
	assert.False(t, p.CanRefund(0))

	p.RefundedAmount = 900
	assert.True(t, p.CanRefund(100))
	assert.False(t, p.CanRefund(101), "cumulative refunds capped at captured amount")

	p.Status = PaymentStatusPending
	assert.False(t, p.CanRefund(100), "refund requires captured payment")
}
