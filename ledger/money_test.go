package ledger

import (
	"testing"

	"github.com/shopspring/decimal"
)

// =============================================================================
// FORMATTING
// =============================================================================

func TestFormatAlwaysTwoFractionDigits(t *testing.T) {
	cases := []struct {
		cents int64
		want  string
	}{
		{2200, "22.00"},
		{550, "5.50"},
		{2245, "22.45"},
		{0, "0.00"},
		{1, "0.01"},
		{10, "0.10"},
		{-2245, "-22.45"},
		{-1, "-0.01"},
		{100000000, "1000000.00"},
	}
	for _, c := range cases {
		got := FromMinorUnits(c.cents).Format()
		if got != c.want {
			t.Errorf("Format(%d cents) = %q, want %q", c.cents, got, c.want)
		}
	}
}

func TestFormatSimplifiedDropsRedundantZeros(t *testing.T) {
	cases := []struct {
		cents int64
		want  string
	}{
		{2200, "22"},   // whole amount drops fraction entirely
		{550, "5.5"}, // trailing zero in fraction drops
		{2245, "22.45"},
		{0, "0"},
		{1, "0.01"},
		{10, "0.1"},
		{-2200, "-22"},
		{-550, "-5.5"},
	}
	for _, c := range cases {
		got := FromMinorUnits(c.cents).FormatSimplified()
		if got != c.want {
			t.Errorf("FormatSimplified(%d cents) = %q, want %q", c.cents, got, c.want)
		}
	}
}

// =============================================================================
// PARSING
// =============================================================================

func TestParseMoneyRoundTrip(t *testing.T) {
	// Every representable amount must survive format-then-parse intact.
	cents := []int64{0, 1, 10, 99, 100, 550, 2200, 2245, 123456789, -1, -10, -2245}
	for _, c := range cents {
		m := FromMinorUnits(c)
		for _, text := range []string{m.Format(), m.FormatSimplified()} {
			parsed, err := ParseMoney(text)
			if err != nil {
				t.Fatalf("ParseMoney(%q): %v", text, err)
			}
			if !parsed.Equal(m) {
				t.Errorf("round trip %d cents via %q = %d cents", c, text, parsed.MinorUnits())
			}
		}
	}
}

func TestParseMoneySeparatorDisambiguation(t *testing.T) {
	cases := []struct {
		text string
		want int64
	}{
		// Both separators present: the last one is the decimal point.
		{"1,234.56", 123456},
		{"1.234,56", 123456},
		{"12,34,567.89", 123456789},
		// Lone separator with 1-2 trailing digits is a decimal point.
		{"22.45", 2245},
		{"22,45", 2245},
		{"5.5", 550},
		// Lone separator with exactly 3 trailing digits groups thousands.
		{"1,234", 123400},
		{"1.234", 123400},
		// No separator at all.
		{"22", 2200},
		{"0", 0},
	}
	for _, c := range cases {
		got, err := ParseMoney(c.text)
		if err != nil {
			t.Fatalf("ParseMoney(%q): %v", c.text, err)
		}
		if got.MinorUnits() != c.want {
			t.Errorf("ParseMoney(%q) = %d cents, want %d", c.text, got.MinorUnits(), c.want)
		}
	}
}

func TestParseMoneyRejectsGarbage(t *testing.T) {
	for _, text := range []string{"", "abc", "12.34.56.78x", "..", "--5"} {
		if _, err := ParseMoney(text); err == nil {
			t.Errorf("ParseMoney(%q) should fail", text)
		}
	}
}

// =============================================================================
// ARITHMETIC
// =============================================================================

func TestMoneyArithmeticIsExact(t *testing.T) {
	// GIVEN 0.10 added to itself ten times
	sum := Money{}
	dime := FromMinorUnits(10)
	for i := 0; i < 10; i++ {
		sum = sum.Add(dime)
	}
	// THEN the result is exactly 1.00, no float drift
	if sum.MinorUnits() != 100 {
		t.Errorf("10 * 0.10 = %d cents, want 100", sum.MinorUnits())
	}
}

func TestMulFactorRoundsHalfAwayFromZero(t *testing.T) {
	cases := []struct {
		cents  int64
		factor string
		want   int64
	}{
		{1000, "0.5", 500},
		{333, "0.5", 167},   // 166.5 rounds up
		{-333, "0.5", -167}, // symmetric for negatives
		{999, "1.1", 1099},  // 1098.9 rounds to 1099
	}
	for _, c := range cases {
		f := decimal.RequireFromString(c.factor)
		got := FromMinorUnits(c.cents).MulFactor(f)
		if got.MinorUnits() != c.want {
			t.Errorf("%d cents * %s = %d, want %d", c.cents, c.factor, got.MinorUnits(), c.want)
		}
	}
}

func TestFromDecimalString(t *testing.T) {
	m, err := FromDecimalString("22.45")
	if err != nil {
		t.Fatalf("FromDecimalString: %v", err)
	}
	if m.MinorUnits() != 2245 {
		t.Errorf("FromDecimalString(22.45) = %d cents", m.MinorUnits())
	}
	if _, err := FromDecimalString("not money"); err == nil {
		t.Error("FromDecimalString should reject non-numeric input")
	}
}
