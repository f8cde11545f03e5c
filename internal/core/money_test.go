package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDecimalToCents(t *testing.T) {
	valid := map[string]int64{
		"1":      100,
		"1.0":    100,
		"1.23":   123,
		"1,23":   123,
		"0.01":   1,
		"1.005":  101,
		"1.0049": 100,
		"42.50":  4250,
		" 2.50 ": 250,
		".5":     50,
		"7.":     700,
	}
	for in, want := range valid {
		got, err := ParseDecimalToCents(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	for _, in := range []string{"", "+1", "-1", "0", "0.004", "abc", "1.2.3", "١", ".", "99999999999999999999"} {
		_, err := ParseDecimalToCents(in)
		assert.ErrorIs(t, err, ErrInvalidAmount, in)
	}
}

func TestMoneyString(t *testing.T) {
	cases := map[int64]string{1: "0.01", 100: "1.00", 4250: "42.50", 123456: "1234.56", -5: "-0.05"}
	for cents, want := range cases {
		assert.Equal(t, want, Money{Cents: cents}.String())
	}
}

func TestParseMoney(t *testing.T) {
	m, err := ParseMoney("42.50")
	require.NoError(t, err)
	assert.Equal(t, int64(4250), m.Cents)

	_, err = ParseMoney("0")
	assert.ErrorIs(t, err, ErrInvalidAmount)

	assert.Equal(t, int64(350), MustParseMoney("3,5").Cents)
	assert.Panics(t, func() { MustParseMoney("x") })
}
