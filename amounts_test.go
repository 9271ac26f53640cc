package imarket

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAmount(t *testing.T) {
	cases := []struct {
		amount   string
		decimals int
		want     string
	}{
		{"1", 18, "1000000000000000000"},
		{"0.5", 18, "500000000000000000"},
		{"1.25", 6, "1250000"},
		{"100", 0, "100"},
		{"0.1234567", 6, "123456"},
		{" 2 ", 2, "200"},
	}

	for _, tc := range cases {
		got, err := ParseAmount(tc.amount, tc.decimals)
		require.NoError(t, err, tc.amount)
		assert.Equal(t, tc.want, got.String(), tc.amount)
	}
}

func TestParseAmountRejectsInvalidInput(t *testing.T) {
	for _, amount := range []string{"", ".", ".5", "1.2.3", "abc", "-1"} {
		_, err := ParseAmount(amount, 18)
		assert.Error(t, err, amount)
	}

	_, err := ParseAmount("1", -1)
	assert.Error(t, err)
	_, err = ParseAmount("1", MaxDecimals+1)
	assert.Error(t, err)
}
