package decimal_test

import (
	"testing"

	dec "github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rezonia/nfe-entry/internal/decimal"
)

func TestFromFloat(t *testing.T) {
	d := decimal.FromFloat(100.555)
	// Should round to 2 decimal places
	assert.True(t, d.Equal(dec.NewFromFloat(100.56)))
}

func TestMustFromString(t *testing.T) {
	d := decimal.MustFromString("999.99")
	assert.True(t, d.Equal(dec.RequireFromString("999.99")))

	assert.Panics(t, func() {
		decimal.MustFromString("invalid")
	})
}

func TestParse(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"1234.56", "1234.56"},
		{"1.234,56", "1234.56"},
		{"1234,56", "1234.56"},
		{"R$ 1.234,56", "1234.56"},
		{"1,234.56", "1234.56"},
		{" 10 ", "10"},
		{"0.0000", "0"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			d, err := decimal.Parse(tt.input)
			require.NoError(t, err)
			assert.True(t, d.Equal(dec.RequireFromString(tt.expected)),
				"got %s, want %s", d.String(), tt.expected)
		})
	}
}

func TestParse_Invalid(t *testing.T) {
	_, err := decimal.Parse("")
	require.Error(t, err)

	_, err = decimal.Parse("abc")
	require.Error(t, err)

	assert.True(t, decimal.ParseOrZero("abc").IsZero())
}

func TestRound2(t *testing.T) {
	assert.True(t, decimal.Round2(dec.RequireFromString("12.105")).Equal(dec.RequireFromString("12.11")))
	assert.True(t, decimal.Round2(dec.RequireFromString("12.104")).Equal(dec.RequireFromString("12.1")))
}

func TestDiv(t *testing.T) {
	a := dec.NewFromInt(100)
	b := dec.NewFromInt(3)
	result := decimal.Div(a, b)
	assert.True(t, result.Equal(dec.RequireFromString("33.33")))

	// Division by zero returns zero
	result = decimal.Div(a, dec.Zero)
	assert.True(t, result.IsZero())
}

func TestPercentOf(t *testing.T) {
	result := decimal.PercentOf(dec.NewFromInt(55), dec.NewFromInt(10))
	assert.True(t, result.Equal(dec.RequireFromString("5.5")))
}

func TestRatioAsPercent(t *testing.T) {
	tests := []struct {
		name     string
		part     string
		whole    string
		expected string
	}{
		{"15 percent", "150", "1000", "15"},
		{"rounds to 2 places", "1", "3", "33.33"},
		{"zero whole", "10", "0", "0"},
		{"two thirds", "2", "3", "66.67"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := decimal.RatioAsPercent(dec.RequireFromString(tt.part), dec.RequireFromString(tt.whole))
			assert.True(t, result.Equal(dec.RequireFromString(tt.expected)),
				"got %s, want %s", result.String(), tt.expected)
		})
	}
}

func TestPercentToFraction(t *testing.T) {
	result := decimal.PercentToFraction(dec.RequireFromString("17.5"))
	assert.True(t, result.Equal(dec.RequireFromString("0.175")))
}

func TestSum(t *testing.T) {
	values := []dec.Decimal{
		dec.NewFromInt(100),
		dec.NewFromInt(200),
		dec.NewFromInt(300),
	}
	result := decimal.Sum(values)
	assert.True(t, result.Equal(dec.NewFromInt(600)))
	assert.True(t, decimal.Sum(nil).IsZero())
}

func TestIsPositive(t *testing.T) {
	assert.True(t, decimal.IsPositive(dec.NewFromInt(1)))
	assert.False(t, decimal.IsPositive(dec.Zero))
	assert.False(t, decimal.IsPositive(dec.NewFromInt(-1)))
}

func TestIsNonNegative(t *testing.T) {
	assert.True(t, decimal.IsNonNegative(dec.NewFromInt(1)))
	assert.True(t, decimal.IsNonNegative(dec.Zero))
	assert.False(t, decimal.IsNonNegative(dec.NewFromInt(-1)))
}

func TestFormatBRL(t *testing.T) {
	assert.Equal(t, "R$ 1.234,56", decimal.FormatBRL(dec.RequireFromString("1234.56")))
	assert.Equal(t, "R$ 0,50", decimal.FormatBRL(dec.RequireFromString("0.5")))
	assert.Equal(t, "-R$ 10,00", decimal.FormatBRL(dec.NewFromInt(-10)))
}

func TestFormatBRL_Exact(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"12345678901234567.89", "R$ 12.345.678.901.234.567,89"},
		{"1000000", "R$ 1.000.000,00"},
		{"999.995", "R$ 1.000,00"},
		{"0.005", "R$ 0,01"},
		{"-0.004", "R$ 0,00"},
		{"100", "R$ 100,00"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, decimal.FormatBRL(dec.RequireFromString(tt.in)))
		})
	}
}

func TestFormatPercent(t *testing.T) {
	assert.Equal(t, "15,00%", decimal.FormatPercent(dec.NewFromInt(15)))
	assert.Equal(t, "18,70%", decimal.FormatPercent(dec.RequireFromString("18.7")))
	assert.Equal(t, "1.250,50%", decimal.FormatPercent(dec.RequireFromString("1250.5")))
}
