package types

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"

	"backoffice/internal/core/apperror"
)

// Quantity is a count of whole stock units.
// Stock is never fractional: JSON input such as 2.5 is rejected with INVALID_QUANTITY,
// while 2.0 is accepted as 2.
type Quantity int64

func (q Quantity) Int64() int64 { return int64(q) }

func (q Quantity) IsZero() bool { return q == 0 }

func (q Quantity) IsPositive() bool { return q > 0 }

func (q Quantity) IsNegative() bool { return q < 0 }

func (q Quantity) Neg() Quantity { return -q }

func (q Quantity) String() string { return strconv.FormatInt(int64(q), 10) }

// MarshalJSON encodes Quantity as a JSON integer.
func (q Quantity) MarshalJSON() ([]byte, error) {
	return []byte(q.String()), nil
}

// UnmarshalJSON accepts a JSON number or a numeric string.
func (q *Quantity) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*q = 0
		return nil
	}

	s := string(data)
	if len(data) >= 2 && data[0] == '"' && data[len(data)-1] == '"' {
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
	}

	parsed, err := ParseQuantity(s)
	if err != nil {
		return err
	}
	*q = parsed
	return nil
}

// ParseQuantity parses a whole quantity. A fractional part is only allowed when it is all zeros.
func ParseQuantity(s string) (Quantity, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, apperror.NewInvalidQuantity("quantity is empty", s)
	}
	if strings.ContainsAny(s, "eE") {
		return 0, apperror.NewInvalidQuantity("quantity must be a whole number", s)
	}

	intPart, frac, _ := strings.Cut(s, ".")
	if strings.Trim(frac, "0") != "" {
		return 0, apperror.NewInvalidQuantity("quantity must be a whole number", s)
	}

	v, err := strconv.ParseInt(intPart, 10, 64)
	if err != nil {
		return 0, apperror.NewInvalidQuantity("quantity is not a number", s).WithCause(err)
	}
	return Quantity(v), nil
}
