package ledger

import (
	"bytes"
	"encoding/json"
	"strings"

	errorsmod "cosmossdk.io/errors"
	"github.com/shopspring/decimal"
)

// Amount is a non-negative decimal currency value. It is rendered as a JSON
// string with at least two fractional digits ("0.00", "0.02", "0.005").
// The zero value is an unset amount; see Valid.
type Amount struct {
	d     decimal.Decimal
	valid bool
}

// ZeroAmount is the additive identity.
var ZeroAmount = Amount{d: decimal.Zero, valid: true}

// ParseAmount parses a decimal string, rejecting empty, malformed and
// negative values.
func ParseAmount(value string) (Amount, error) {
	value = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(value), "$"))
	if value == "" {
		return Amount{}, errorsmod.Wrap(ErrInvalidInput, "amount required")
	}
	d, err := decimal.NewFromString(value)
	if err != nil {
		return Amount{}, errorsmod.Wrapf(ErrInvalidInput, "malformed amount %q", value)
	}
	if d.IsNegative() {
		return Amount{}, errorsmod.Wrapf(ErrInvalidInput, "negative amount %q", value)
	}
	return Amount{d: d, valid: true}, nil
}

// MustAmount parses value and panics on error. Intended for constants and tests.
func MustAmount(value string) Amount {
	a, err := ParseAmount(value)
	if err != nil {
		panic(err)
	}
	return a
}

// Add returns a + b exactly.
func (a Amount) Add(b Amount) Amount {
	return Amount{d: a.d.Add(b.d), valid: true}
}

// Valid reports whether the amount was parsed or computed rather than left unset.
func (a Amount) Valid() bool {
	return a.valid
}

// Equal reports numeric equality ("0.2" equals "0.20").
func (a Amount) Equal(b Amount) bool {
	return a.d.Equal(b.d)
}

// IsZero reports whether the amount is zero.
func (a Amount) IsZero() bool {
	return a.d.IsZero()
}

// Decimal exposes the underlying value.
func (a Amount) Decimal() decimal.Decimal {
	return a.d
}

// Float32 is a lossy conversion used for metrics samples.
func (a Amount) Float32() float32 {
	f, _ := a.d.Float64()
	return float32(f)
}

// String renders the amount with at least two fractional digits.
func (a Amount) String() string {
	places := int32(2)
	if exp := -a.d.Exponent(); exp > places {
		places = exp
	}
	return a.d.StringFixed(places)
}

// Display renders the amount rounded to two fractional digits.
func (a Amount) Display() string {
	return a.d.StringFixed(2)
}

// MarshalJSON encodes the amount as a quoted decimal string.
func (a Amount) MarshalJSON() ([]byte, error) {
	return json.Marshal(a.String())
}

// UnmarshalJSON accepts either a quoted decimal string or a bare number.
func (a *Amount) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*a = Amount{}
		return nil
	}
	var raw string
	if len(data) > 0 && data[0] == '"' {
		if err := json.Unmarshal(data, &raw); err != nil {
			return err
		}
	} else {
		raw = string(data)
	}
	parsed, err := ParseAmount(raw)
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}
