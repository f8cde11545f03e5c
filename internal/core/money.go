// Package core holds the expense domain: master data, tokens, expenses,
// money parsing and bill numbering.
package core

import (
	"fmt"
	"strconv"
	"strings"
)

// maxUnits keeps units*100 inside int64.
const maxUnits = (1<<63 - 1) / 100

// ParseDecimalToCents converts a decimal amount such as "42.50" or "42,50"
// into cents. The third fractional digit rounds half-up and further digits
// are ignored. Zero, signed and malformed amounts yield ErrInvalidAmount.
func ParseDecimalToCents(s string) (int64, error) {
	s = strings.ReplaceAll(strings.TrimSpace(s), ",", ".")
	units, frac, _ := strings.Cut(s, ".")
	if s == "" || !digitsOnly(units) || !digitsOnly(frac) {
		return 0, ErrInvalidAmount
	}
	if units == "" {
		units = "0"
	}
	u, err := strconv.ParseInt(units, 10, 64)
	if err != nil || u > maxUnits {
		return 0, ErrInvalidAmount
	}

	// Pad to three digits: two for cents and one for rounding.
	frac = (frac + "000")[:3]
	cents := u*100 + int64(frac[0]-'0')*10 + int64(frac[1]-'0')
	if frac[2] >= '5' {
		cents++
	}
	if cents <= 0 {
		return 0, ErrInvalidAmount
	}
	return cents, nil
}

func digitsOnly(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

// ParseMoney wraps ParseDecimalToCents.
func ParseMoney(s string) (Money, error) {
	c, err := ParseDecimalToCents(s)
	if err != nil {
		return Money{}, err
	}
	return Money{Cents: c}, nil
}

// MustParseMoney is ParseMoney for literals known to be valid.
func MustParseMoney(s string) Money {
	m, err := ParseMoney(s)
	if err != nil {
		panic(fmt.Sprintf("core: invalid money literal %q", s))
	}
	return m
}

// Float returns the amount in currency units, for spreadsheet cells.
func (m Money) Float() float64 {
	return float64(m.Cents) / 100
}

// String renders the amount with two decimals and a dot separator.
func (m Money) String() string {
	c := m.Cents
	if c < 0 {
		return "-" + Money{Cents: -c}.String()
	}
	return fmt.Sprintf("%d.%02d", c/100, c%100)
}
