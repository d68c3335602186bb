/*
money.go - Fixed-point currency value

PURPOSE:
  Money is the single currency representation used across the engine.
  It stores integer minor units (cents) and never touches floating point,
  so arithmetic is exact and comparisons need no epsilon.

KEY OPERATIONS:
  FromMinorUnits:    Construct from cents
  FromDecimalString: Construct from a strict "22.45" style string
  ParseMoney:        Lenient parsing of amounts found in notification text
  MulFactor:         Multiply by a decimal scalar, rounding half-up
  Format:            Always two fractional digits ("22.00")
  FormatSimplified:  Drop redundant fractional digits ("22", "5.5")

WHY INTEGER MINOR UNITS?
  Notification amounts are money, and money in floats drifts. Storing
  cents as int64 keeps every add/sub exact; only multiplication by a
  decimal factor needs rounding, which goes through shopspring/decimal
  and rounds half-up to the nearest cent.

SEE ALSO:
  - types.go: CandidateTransaction carries a Money amount
  - ../notify: rules call ParseMoney on extracted amount text
*/
package ledger

import (
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// =============================================================================
// MONEY - Immutable fixed-point currency value (minor units)
// =============================================================================

// Money is an exact currency value in minor units (cents).
// The zero value is a valid zero amount.
type Money struct {
	cents int64
}

// FromMinorUnits constructs a Money from a minor-unit count.
func FromMinorUnits(n int64) Money { return Money{cents: n} }

// FromDecimalString constructs a Money from a strict decimal string
// such as "22.45" or "-3". Anything decimal.NewFromString rejects is an error.
func FromDecimalString(s string) (Money, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return Money{}, ErrNoAmount
	}
	return Money{cents: d.Shift(2).Round(0).IntPart()}, nil
}

// MinorUnits returns the minor-unit magnitude (can be negative).
func (m Money) MinorUnits() int64 { return m.cents }

// Arithmetic is closed over Money and never loses precision.
func (m Money) Add(o Money) Money { return Money{cents: m.cents + o.cents} }
func (m Money) Sub(o Money) Money { return Money{cents: m.cents - o.cents} }
func (m Money) Neg() Money        { return Money{cents: -m.cents} }
func (m Money) Abs() Money {
	if m.cents < 0 {
		return Money{cents: -m.cents}
	}
	return m
}

// MulFactor multiplies by a decimal scalar and rounds half-up to the
// nearest minor unit. This is the only operation that can round.
func (m Money) MulFactor(factor decimal.Decimal) Money {
	product := decimal.NewFromInt(m.cents).Mul(factor)
	return Money{cents: product.Round(0).IntPart()}
}

// Exact integer comparisons. No epsilon handling: the representation is exact.
func (m Money) IsZero() bool     { return m.cents == 0 }
func (m Money) IsPositive() bool { return m.cents > 0 }
func (m Money) IsNegative() bool { return m.cents < 0 }
func (m Money) Equal(o Money) bool { return m.cents == o.cents }

// =============================================================================
// FORMATTING
// =============================================================================

// Format renders the value with exactly two fractional digits: 2200 -> "22.00".
func (m Money) Format() string {
	sign, units, frac := m.split()
	return sign + units + "." + frac
}

// FormatSimplified drops redundant fractional digits:
// 2200 -> "22", 550 -> "5.5", 2245 -> "22.45", 0 -> "0", 1 -> "0.01", 10 -> "0.1".
func (m Money) FormatSimplified() string {
	sign, units, frac := m.split()
	switch {
	case frac == "00":
		return sign + units
	case frac[1] == '0':
		return sign + units + "." + frac[:1]
	default:
		return sign + units + "." + frac
	}
}

func (m Money) String() string { return m.Format() }

func (m Money) split() (sign, units, frac string) {
	c := m.cents
	if c < 0 {
		sign = "-"
		c = -c
	}
	units = strconv.FormatInt(c/100, 10)
	f := c % 100
	frac = string([]byte{byte('0' + f/10), byte('0' + f%10)})
	return sign, units, frac
}

// =============================================================================
// LENIENT PARSING - For amounts lifted out of notification text
// =============================================================================

// ParseMoney parses an amount as it appears in notification text.
// Accepted: optional surrounding whitespace, an optional leading minus,
// thousands separators (comma or period), a comma or period decimal
// separator with one or two fractional digits, and a missing integer
// part (".99"). Empty or non-numeric input returns ErrNoAmount.
//
// Disambiguation: when both ',' and '.' appear, the last one is the
// decimal separator. When only one appears, it is a decimal separator
// if followed by one or two digits, and a thousands separator if
// followed by exactly three.
func ParseMoney(s string) (Money, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Money{}, ErrNoAmount
	}

	negative := false
	if s[0] == '-' {
		negative = true
		s = s[1:]
	}
	if s == "" {
		return Money{}, ErrNoAmount
	}

	for _, r := range s {
		if (r < '0' || r > '9') && r != ',' && r != '.' {
			return Money{}, ErrNoAmount
		}
	}

	intPart, fracPart, err := splitAmount(s)
	if err != nil {
		return Money{}, err
	}

	var units int64
	for i := 0; i < len(intPart); i++ {
		units = units*10 + int64(intPart[i]-'0')
	}

	cents := units * 100
	switch len(fracPart) {
	case 0:
	case 1:
		cents += int64(fracPart[0]-'0') * 10
	case 2:
		cents += int64(fracPart[0]-'0')*10 + int64(fracPart[1]-'0')
	default:
		return Money{}, ErrNoAmount
	}

	if negative {
		cents = -cents
	}
	return Money{cents: cents}, nil
}

// splitAmount separates integer digits from fractional digits, resolving
// separator ambiguity and stripping thousands grouping.
func splitAmount(s string) (intPart, fracPart string, err error) {
	lastSep := strings.LastIndexAny(s, ",.")
	if lastSep == -1 {
		return s, "", nil
	}

	tail := s[lastSep+1:]
	head := s[:lastSep]
	otherSep := strings.ContainsAny(head, ",.")

	isDecimal := false
	switch {
	case otherSep:
		// Both separators present: the last one is decimal.
		isDecimal = true
	case len(tail) >= 1 && len(tail) <= 2:
		isDecimal = true
	case len(tail) == 3:
		// Lone separator followed by a 3-digit group: thousands.
		isDecimal = false
	default:
		return "", "", ErrNoAmount
	}

	if isDecimal {
		if len(tail) == 0 || len(tail) > 2 {
			return "", "", ErrNoAmount
		}
		return stripSeparators(head), tail, nil
	}
	return stripSeparators(s), "", nil
}

func stripSeparators(s string) string {
	s = strings.ReplaceAll(s, ",", "")
	return strings.ReplaceAll(s, ".", "")
}
