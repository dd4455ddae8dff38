// Package money provides an immutable amount and currency pair.
package money

import (
	"strings"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/ecomify/internal/domain/failure"
)

// Currency is an ISO 4217 currency code.
type Currency string

const (
	USD Currency = "USD"
	BRL Currency = "BRL"
)

// minorUnits lists the accepted currencies with their number of decimal places.
var minorUnits = map[Currency]int32{
	USD: 2,
	BRL: 2,
}

var (
	// ErrInvalid is returned when an amount or currency fails validation.
	ErrInvalid = failure.Validation("money.invalid", "invalid money")
	// ErrCurrencyMismatch is returned when combining amounts in different currencies.
	ErrCurrencyMismatch = failure.Conflict("money.currency_mismatch", "currency mismatch")
)

// Supported reports whether c is in the currency allow-list.
func Supported(c Currency) bool {
	_, ok := minorUnits[c]
	return ok
}

// ParseCurrency normalizes s and checks it against the allow-list.
func ParseCurrency(s string) (Currency, error) {
	c := Currency(strings.ToUpper(strings.TrimSpace(s)))
	if !Supported(c) {
		return "", failure.Validation(ErrInvalid.Code, ErrInvalid.Message,
			failure.FieldError{Field: "currency", Message: "unsupported currency " + s})
	}
	return c, nil
}

// Money is an amount in a supported currency. The zero value is not valid;
// use New or Zero.
type Money struct {
	currency Currency
	amount   decimal.Decimal
}

// New returns Money with a strictly positive amount in a supported currency.
func New(amount decimal.Decimal, currency Currency) (Money, error) {
	var f failure.Fields
	f.Check(amount.IsPositive(), "amount", "must be greater than zero")
	f.Check(Supported(currency), "currency", "unsupported currency "+string(currency))
	if err := f.Err(ErrInvalid.Code, ErrInvalid.Message); err != nil {
		return Money{}, err
	}
	return Money{currency: currency, amount: amount}, nil
}

// MustNew is like New but panics on invalid input. Intended for constants and tests.
func MustNew(amount string, currency Currency) Money {
	m, err := New(decimal.RequireFromString(amount), currency)
	if err != nil {
		panic(err)
	}
	return m
}

// Zero returns a zero amount, bypassing the positive amount rule.
func Zero(currency Currency) Money {
	return Money{currency: currency, amount: decimal.Zero}
}

// Currency returns the currency code.
func (m Money) Currency() Currency { return m.currency }

// Amount returns the decimal amount.
func (m Money) Amount() decimal.Decimal { return m.amount }

// IsZero reports whether the amount is zero.
func (m Money) IsZero() bool { return m.amount.IsZero() }

// Add returns m + other. Both must share a currency.
func (m Money) Add(other Money) (Money, error) {
	if m.currency != other.currency {
		return Money{}, errors.Wrapf(ErrCurrencyMismatch, "%s vs %s", m.currency, other.currency)
	}
	return Money{currency: m.currency, amount: m.amount.Add(other.amount)}, nil
}

// Times returns m multiplied by n.
func (m Money) Times(n int64) Money {
	return Money{currency: m.currency, amount: m.amount.Mul(decimal.NewFromInt(n))}
}

// Round rounds the amount to the currency's minor units.
func (m Money) Round() Money {
	places, ok := minorUnits[m.currency]
	if !ok {
		places = 2
	}
	return Money{currency: m.currency, amount: m.amount.Round(places)}
}

// Equal reports whether both values have the same currency and amount.
func (m Money) Equal(other Money) bool {
	return m.currency == other.currency && m.amount.Equal(other.amount)
}

// Format renders the amount with the currency's minor units, as "12.50".
func (m Money) Format() string {
	places, ok := minorUnits[m.currency]
	if !ok {
		places = 2
	}
	return m.amount.StringFixed(places)
}

// String formats the value as "12.50 USD".
func (m Money) String() string {
	return m.Format() + " " + string(m.currency)
}
