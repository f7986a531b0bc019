package domain

import (
	"encoding/json"
	"errors"

	"github.com/shopspring/decimal"
)

// MoneyScale is the number of fractional digits kept for an amount.
const MoneyScale = 2

var (
	ErrMoneyTooPrecise = errors.New("amount has more than 2 decimal places")
	ErrMoneyOverflow   = errors.New("amount is out of range")
)

// Money is an amount in the currency's smallest unit (cents).
type Money int64

// MoneyFromDecimal converts a decimal amount to cents without rounding.
func MoneyFromDecimal(d decimal.Decimal) (Money, error) {
	cents := d.Shift(MoneyScale)
	if !cents.IsInteger() {
		return 0, ErrMoneyTooPrecise
	}
	bi := cents.BigInt()
	if !bi.IsInt64() {
		return 0, ErrMoneyOverflow
	}
	return Money(bi.Int64()), nil
}

// MustMoney parses s and panics on failure. Intended for tests and constants.
func MustMoney(s string) Money {
	m, err := MoneyFromDecimal(decimal.RequireFromString(s))
	if err != nil {
		panic(err)
	}
	return m
}

func (m Money) Decimal() decimal.Decimal {
	return decimal.New(int64(m), -MoneyScale)
}

func (m Money) String() string {
	return m.Decimal().StringFixed(MoneyScale)
}

func (m Money) MarshalJSON() ([]byte, error) {
	return json.Marshal(m.String())
}

func (m *Money) UnmarshalJSON(data []byte) error {
	var d decimal.Decimal
	if err := d.UnmarshalJSON(data); err != nil {
		return err
	}
	v, err := MoneyFromDecimal(d)
	if err != nil {
		return err
	}
	*m = v
	return nil
}
