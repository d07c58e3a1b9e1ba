package core

import (
	"bytes"
	"database/sql/driver"
	"fmt"
	"strings"
	"unicode"

	"github.com/Rhymond/go-money"
	"github.com/shopspring/decimal"
)

// DefaultCurrency is used when formatting amounts without an explicit
// currency code.
const DefaultCurrency = money.BRL

// Money is an amount in major currency units (reais, euros...). It is kept as
// an arbitrary precision decimal so that sums never drift.
type Money struct {
	d decimal.Decimal
}

// NewMoney wraps a decimal value.
func NewMoney(d decimal.Decimal) Money { return Money{d: d} }

// MoneyFromCents builds an amount from minor units.
func MoneyFromCents(cents int64) Money { return Money{d: decimal.New(cents, -2)} }

// MustParseMoney parses s with decimal.RequireFromString; it panics on bad input
// and is meant for tests and constants.
func MustParseMoney(s string) Money { return Money{d: decimal.RequireFromString(s)} }

// ParseAmount converts user input into a positive amount.
//
// It accepts both dot (12.34) and comma (12,34) decimal separators. When both
// are present the last one is the decimal separator and the other one is
// treated as a thousands separator, so "1.234,56" and "1,234.56" both parse.
// Dots alone followed by groups of exactly three digits are thousands
// separators as typed in pt-BR: "1.234" is 1234 and "1.234.567" is 1234567.
// Amounts are rounded half-up to cents. Zero, negative and malformed values
// return ErrInvalidAmount.
func ParseAmount(s string) (Money, error) {
	s = strings.TrimSpace(s)
	if s == "" || strings.HasPrefix(s, "+") || strings.HasPrefix(s, "-") {
		return Money{}, ErrInvalidAmount
	}
	lastDot, lastComma := strings.LastIndex(s, "."), strings.LastIndex(s, ",")
	switch {
	case lastDot >= 0 && lastComma >= 0:
		if lastComma > lastDot {
			s = strings.ReplaceAll(s, ".", "")
			s = strings.Replace(s, ",", ".", 1)
		} else {
			s = strings.ReplaceAll(s, ",", "")
		}
	case lastComma >= 0:
		if strings.Count(s, ",") > 1 {
			return Money{}, ErrInvalidAmount
		}
		s = strings.Replace(s, ",", ".", 1)
	case lastDot >= 0 && dotGrouped(s):
		s = strings.ReplaceAll(s, ".", "")
	}
	return ParseDecimalAmount(s)
}

// ParseDecimalAmount parses a plain decimal such as a JSON number, with a dot
// as the only separator, into a positive amount rounded to cents.
func ParseDecimalAmount(s string) (Money, error) {
	s = strings.TrimSpace(s)
	if s == "" || strings.Count(s, ".") > 1 {
		return Money{}, ErrInvalidAmount
	}
	for _, r := range s {
		if r != '.' && !unicode.IsDigit(r) {
			return Money{}, ErrInvalidAmount
		}
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Money{}, ErrInvalidAmount
	}
	m := Money{d: d.Round(2)}
	if !m.IsPositive() {
		return Money{}, ErrInvalidAmount
	}
	return m, nil
}

// dotGrouped reports whether s is digits split by dots into thousands groups
// with a non-zero leading group.
func dotGrouped(s string) bool {
	groups := strings.Split(s, ".")
	lead := groups[0]
	if lead == "" || len(lead) > 3 || lead[0] == '0' {
		return false
	}
	for _, g := range groups[1:] {
		if len(g) != 3 {
			return false
		}
	}
	return true
}

// Validate returns ErrInvalidAmount unless the amount is strictly positive.
func (m Money) Validate() error {
	if !m.IsPositive() {
		return ErrInvalidAmount
	}
	return nil
}

func (m Money) Decimal() decimal.Decimal { return m.d }
func (m Money) Add(o Money) Money        { return Money{d: m.d.Add(o.d)} }
func (m Money) Sub(o Money) Money        { return Money{d: m.d.Sub(o.d)} }
func (m Money) Cmp(o Money) int          { return m.d.Cmp(o.d) }
func (m Money) Equal(o Money) bool       { return m.d.Equal(o.d) }
func (m Money) IsZero() bool             { return m.d.IsZero() }
func (m Money) IsPositive() bool         { return m.d.IsPositive() }
func (m Money) IsNegative() bool         { return m.d.IsNegative() }

// Cents returns the amount in minor units, rounded half-up.
func (m Money) Cents() int64 { return m.d.Shift(2).Round(0).IntPart() }

// Float64 is for display and percentages only.
func (m Money) Float64() float64 {
	f, _ := m.d.Float64()
	return f
}

// Ratio returns m/o as a float, or 0 when o is zero.
func (m Money) Ratio(o Money) float64 {
	if o.d.IsZero() {
		return 0
	}
	f, _ := m.d.DivRound(o.d, 6).Float64()
	return f
}

// String renders the amount with exactly two decimals, dot separated.
func (m Money) String() string { return m.d.StringFixed(2) }

// Format renders the amount in the given ISO 4217 currency, e.g. "R$1.234,56"
// for BRL. An empty or unknown code falls back to DefaultCurrency.
func (m Money) Format(code string) string {
	if code == "" || money.GetCurrency(code) == nil {
		code = DefaultCurrency
	}
	cur := money.New(0, code).Currency()
	return cur.Formatter().Format(m.d.Shift(int32(cur.Fraction)).Round(0).IntPart())
}

// MarshalJSON encodes the amount as a bare JSON number.
func (m Money) MarshalJSON() ([]byte, error) {
	return []byte(m.d.String()), nil
}

// UnmarshalJSON accepts both numbers and quoted decimal strings.
func (m *Money) UnmarshalJSON(b []byte) error {
	b = bytes.Trim(b, `"`)
	if len(b) == 0 || string(b) == "null" {
		m.d = decimal.Zero
		return nil
	}
	d, err := decimal.NewFromString(string(b))
	if err != nil {
		return fmt.Errorf("decode amount %q: %w", b, err)
	}
	m.d = d
	return nil
}

// Value implements driver.Valuer so amounts can be stored in NUMERIC columns.
func (m Money) Value() (driver.Value, error) { return m.d.String(), nil }

// Scan implements sql.Scanner.
func (m *Money) Scan(src any) error { return m.d.Scan(src) }
