package validation

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vpnda/sparebank-sync/pkg/models"
)

func TestValidateAmount(t *testing.T) {
	max := decimal.NewFromInt(200)

	testCases := []struct {
		name        string
		input       string
		max         *decimal.Decimal
		expected    string
		expectedErr error
	}{
		{name: "Whole number", input: "100", max: &max, expected: "100.00"},
		{name: "Rounds half up", input: "10.005", expected: "10.01"},
		{name: "Rounds down", input: "10.004", expected: "10.00"},
		{name: "Surrounding whitespace", input: "  42.5 ", expected: "42.50"},
		{name: "Equal to max", input: "200", max: &max, expected: "200.00"},
		{name: "Above max", input: "200.01", max: &max, expectedErr: models.ErrExceedsMaximum},
		{name: "Zero", input: "0", expectedErr: models.ErrNotPositive},
		{name: "Negative", input: "-5", expectedErr: models.ErrNotPositive},
		{name: "Rounds to zero", input: "0.004", expectedErr: models.ErrNotPositive},
		{name: "Not a number", input: "abc", expectedErr: models.ErrInvalidFormat},
		{name: "NaN", input: "NaN", expectedErr: models.ErrInvalidFormat},
		{name: "Empty", input: "", expectedErr: models.ErrInvalidFormat},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ValidateAmount(tc.input, tc.max)
			if tc.expectedErr != nil {
				require.Error(t, err)
				assert.True(t, errors.Is(err, tc.expectedErr), "got %v", err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.expected, got.StringFixed(2))
		})
	}
}

func TestValidateAmountWithCurrencyConversion(t *testing.T) {
	max := decimal.NewFromInt(200)

	t.Run("Within limit after conversion", func(t *testing.T) {
		got, err := ValidateAmountWithCurrencyConversion("15", "USD", "NOK", max)
		require.NoError(t, err)
		// returned amount stays in the transfer currency
		assert.Equal(t, "15.00", got.StringFixed(2))
	})

	t.Run("Exceeds limit after conversion", func(t *testing.T) {
		_, err := ValidateAmountWithCurrencyConversion("50", "USD", "NOK", max)
		require.Error(t, err)
		assert.True(t, errors.Is(err, models.ErrLimitExceeded))
		assert.Equal(t,
			"Transfer amount of 50.00 USD (equivalent to 500.00 NOK) exceeds maximum allowed amount of 200.00 NOK",
			err.Error())
	})

	t.Run("Same currency", func(t *testing.T) {
		_, err := ValidateAmountWithCurrencyConversion("200.01", "NOK", "NOK", max)
		assert.True(t, errors.Is(err, models.ErrLimitExceeded))

		got, err := ValidateAmountWithCurrencyConversion("199.999", "nok", "NOK", max)
		require.NoError(t, err)
		assert.Equal(t, "200.00", got.StringFixed(2))
	})

	t.Run("Unsupported currency", func(t *testing.T) {
		_, err := ValidateAmountWithCurrencyConversion("10", "JPY", "NOK", max)
		assert.True(t, errors.Is(err, models.ErrUnsupportedCurrency))
	})

	t.Run("Invalid amount", func(t *testing.T) {
		_, err := ValidateAmountWithCurrencyConversion("ten", "USD", "NOK", max)
		assert.True(t, errors.Is(err, models.ErrInvalidFormat))
	})
}
