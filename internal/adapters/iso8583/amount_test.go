package iso8583

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMinorUnits(t *testing.T) {
	tests := []struct {
		amount   string
		currency string
		want     string
		wantErr  bool
	}{
		{amount: "1012.04", currency: "USD", want: "000000101204"},
		{amount: "0.5", currency: "usd", want: "000000000050"},
		{amount: "15000", currency: "CLP", want: "000000015000"},
		{amount: "10.005", currency: "USD", want: "000000001001"},
		{amount: "-1", currency: "USD", wantErr: true},
		{amount: "9999999999.99", currency: "USD", want: "999999999999"},
		{amount: "99999999999.99", currency: "USD", wantErr: true},
		{amount: "10000000000", currency: "USD", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.amount+tt.currency, func(t *testing.T) {
			got, err := minorUnits(decimal.RequireFromString(tt.amount), tt.currency)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFixedWidthAndRRN(t *testing.T) {
	assert.Equal(t, "ab  ", fixedWidth("ab", 4))
	assert.Equal(t, "abcd", fixedWidth("abcdef", 4))
	assert.Equal(t, "345678901234", rrn("12345678901234"))
	assert.Equal(t, "000055500011", rrn("55500011"))
	assert.Equal(t, "000084383487", rrn("000084383487"))
}
