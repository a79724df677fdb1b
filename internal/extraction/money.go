package extraction

import (
	"bytes"
	"fmt"

	"github.com/shopspring/decimal"
)

// Money is an exact decimal amount. It marshals as a JSON number with two
// fractional digits.
type Money struct {
	decimal.Decimal
}

// NewMoney wraps d.
func NewMoney(d decimal.Decimal) Money {
	return Money{Decimal: d}
}

// MustMoney parses s and panics on failure. It is meant for literals.
func MustMoney(s string) Money {
	return Money{Decimal: decimal.RequireFromString(s)}
}

// MoneyPtr returns a pointer to a Money holding d.
func MoneyPtr(d decimal.Decimal) *Money {
	m := NewMoney(d)
	return &m
}

// MarshalJSON implements json.Marshaler.
func (m Money) MarshalJSON() ([]byte, error) {
	return []byte(m.StringFixed(2)), nil
}

// UnmarshalJSON accepts both JSON numbers and quoted decimal strings.
func (m *Money) UnmarshalJSON(data []byte) error {
	data = bytes.Trim(data, `"`)
	d, err := decimal.NewFromString(string(data))
	if err != nil {
		return fmt.Errorf("decoding amount %s: %w", data, err)
	}
	m.Decimal = d
	return nil
}

// String formats the amount with two fractional digits.
func (m Money) String() string {
	return m.StringFixed(2)
}
