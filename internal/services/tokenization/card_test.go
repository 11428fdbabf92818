package tokenization

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidatePAN(t *testing.T) {
	tests := []struct {
		name      string
		pan       string
		wantBrand string
		wantErr   error
	}{
		{name: "visa_16", pan: "4111111111111111", wantBrand: "visa"},
		{name: "visa_13", pan: "4222222222222", wantBrand: "visa"},
		{name: "mastercard_51", pan: "5555555555554444", wantBrand: "mastercard"},
		{name: "mastercard_2_series", pan: "2223003122003222", wantBrand: "mastercard"},
		{name: "amex", pan: "378282246310005", wantBrand: "amex"},
		{name: "diners", pan: "30569309025904", wantBrand: "diners"},
		{name: "discover", pan: "6011111111111117", wantBrand: "discover"},
		{name: "unknown_brand_valid_luhn", pan: "9999999999999995", wantBrand: ""},
		{name: "bad_check_digit", pan: "4111111111111112", wantErr: errLuhn},
		{name: "too_long", pan: "41111111111111111111", wantErr: errLength},
		{name: "non_numeric", pan: "4111-1111", wantErr: errNotNumeric},
		{name: "visa_wrong_length", pan: "41111111111114", wantErr: errBrandLength},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			brand, err := validatePAN(tt.pan)
			if tt.wantErr != nil {
				require.Error(t, err)
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantBrand, brand)
		})
	}
}

func TestNormalizePAN(t *testing.T) {
	assert.Equal(t, "4111111111111111", normalizePAN(" 4111-1111 1111\t1111 "))
}

func TestValidateExpiry(t *testing.T) {
	assert.NoError(t, validateExpiry("01", "29"))
	assert.NoError(t, validateExpiry("12", "2031"))
	assert.ErrorIs(t, validateExpiry("00", "29"), errExpiryFormat)
	assert.ErrorIs(t, validateExpiry("ab", "29"), errExpiryFormat)
	assert.ErrorIs(t, validateExpiry("10", "2a"), errExpiryFormat)
}
