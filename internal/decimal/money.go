package decimal

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Zero is decimal zero
var Zero = decimal.Zero

// Hundred is used for percentage conversions
var Hundred = decimal.NewFromInt(100)

// FromInt creates decimal from int
func FromInt(v int64) decimal.Decimal {
	return decimal.NewFromInt(v)
}

// FromFloat creates decimal from float with rounding
func FromFloat(v float64) decimal.Decimal {
	return decimal.NewFromFloat(v).Round(2)
}

// FromString parses decimal from string
func FromString(s string) (decimal.Decimal, error) {
	return decimal.NewFromString(s)
}

// MustFromString parses decimal from string, panics on error
func MustFromString(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

// Parse reads a number written either with a dot decimal separator (NF-e
// wire format, "1234.56") or in Brazilian notation ("1.234,56").
func Parse(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "R$")
	s = strings.TrimSpace(s)
	if s == "" {
		return Zero, fmt.Errorf("empty number")
	}

	lastDot := strings.LastIndex(s, ".")
	lastComma := strings.LastIndex(s, ",")
	switch {
	case lastComma >= 0 && lastComma > lastDot:
		s = strings.ReplaceAll(s, ".", "")
		s = strings.Replace(s, ",", ".", 1)
	case lastComma >= 0:
		s = strings.ReplaceAll(s, ",", "")
	}
	return decimal.NewFromString(s)
}

// ParseOrZero is Parse with unparseable input mapped to zero
func ParseOrZero(s string) decimal.Decimal {
	d, err := Parse(s)
	if err != nil {
		return Zero
	}
	return d
}

// Round2 rounds half away from zero to 2 places (centavos)
func Round2(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}

// Mul multiplies two decimals, rounds to 2 places
func Mul(a, b decimal.Decimal) decimal.Decimal {
	return a.Mul(b).Round(2)
}

// Div divides a by b, rounds to 2 places
func Div(a, b decimal.Decimal) decimal.Decimal {
	if b.IsZero() {
		return Zero
	}
	return a.Div(b).Round(2)
}

// PercentOf computes amount * (percent/100) without rounding
func PercentOf(amount, percent decimal.Decimal) decimal.Decimal {
	return amount.Mul(percent).Div(Hundred)
}

// RatioAsPercent computes part/whole as a percentage rounded to 2 places.
// A zero whole yields zero.
func RatioAsPercent(part, whole decimal.Decimal) decimal.Decimal {
	if whole.IsZero() {
		return Zero
	}
	return part.Div(whole).Mul(decimal.NewFromInt(10000)).Round(0).Div(Hundred)
}

// PercentToFraction converts 0-100 percent to a 0-1 fraction
func PercentToFraction(percent decimal.Decimal) decimal.Decimal {
	return percent.Div(Hundred)
}

// Sum sums a slice of decimals
func Sum(values []decimal.Decimal) decimal.Decimal {
	result := Zero
	for _, v := range values {
		result = result.Add(v)
	}
	return result
}

// IsPositive returns true if decimal is greater than zero
func IsPositive(d decimal.Decimal) bool {
	return d.GreaterThan(Zero)
}

// IsNonNegative returns true if decimal is >= zero
func IsNonNegative(d decimal.Decimal) bool {
	return d.GreaterThanOrEqual(Zero)
}

// FormatBRL renders an amount as Brazilian Real, e.g. "R$ 1.234,56".
// Presentation only; never feed the result back into calculations.
func FormatBRL(d decimal.Decimal) string {
	rounded := d.Round(2)
	if rounded.IsNegative() {
		return "-R$ " + formatBR(rounded.Neg())
	}
	return "R$ " + formatBR(rounded)
}

// FormatPercent renders a 0-100 percentage with 2 places, e.g. "15,00%"
func FormatPercent(d decimal.Decimal) string {
	rounded := d.Round(2)
	if rounded.IsNegative() {
		return "-" + formatBR(rounded.Neg()) + "%"
	}
	return formatBR(rounded) + "%"
}

// formatBR writes a non-negative amount with "." grouping and "," decimals
func formatBR(d decimal.Decimal) string {
	intPart, frac, _ := strings.Cut(d.StringFixed(2), ".")

	var b strings.Builder
	for i, digit := range intPart {
		if i > 0 && (len(intPart)-i)%3 == 0 {
			b.WriteByte('.')
		}
		b.WriteRune(digit)
	}
	b.WriteByte(',')
	b.WriteString(frac)
	return b.String()
}
