// Package validation holds the pure checks applied to a transfer before it
// is sent to the bank: amount parsing, limits, currency conversion and
// Norwegian account number checksums.
package validation

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/vpnda/sparebank-sync/pkg/models"
)

// amountPlaces is the number of decimals kept on every amount.
const amountPlaces = 2

// ValidateAmount parses amount and checks it is positive and, when max is
// given, not above max. The result is rounded half-up to two decimals.
func ValidateAmount(amount string, max *decimal.Decimal) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(amount))
	if err != nil {
		return decimal.Zero, &models.ValidationError{
			Kind:    models.InvalidFormat,
			Message: "Invalid amount format",
		}
	}

	if !d.IsPositive() {
		return decimal.Zero, &models.ValidationError{
			Kind:    models.NotPositive,
			Message: "Amount must be positive",
		}
	}

	if max != nil && d.GreaterThan(*max) {
		return decimal.Zero, &models.ValidationError{
			Kind:    models.ExceedsMaximum,
			Message: fmt.Sprintf("Amount cannot exceed %s", max.String()),
		}
	}

	// shopspring rounds half away from zero, which is half-up for the
	// positive values that reach this point.
	d = d.Round(amountPlaces)
	if !d.IsPositive() {
		return decimal.Zero, &models.ValidationError{
			Kind:    models.NotPositive,
			Message: "Amount must be positive",
		}
	}

	return d, nil
}

// ValidateAmountWithCurrencyConversion validates amount in transferCurrency
// and checks it against maxAmount, which is expressed in defaultCurrency.
// The returned amount stays in transferCurrency.
func ValidateAmountWithCurrencyConversion(amount, transferCurrency, defaultCurrency string,
	maxAmount decimal.Decimal) (decimal.Decimal, error) {
	d, err := ValidateAmount(amount, nil)
	if err != nil {
		return decimal.Zero, err
	}

	converted, err := ConvertCurrency(d, transferCurrency, defaultCurrency)
	if err != nil {
		return decimal.Zero, err
	}

	if converted.GreaterThan(maxAmount) {
		return decimal.Zero, &models.ValidationError{
			Kind: models.LimitExceeded,
			Message: fmt.Sprintf(
				"Transfer amount of %s %s (equivalent to %s %s) exceeds maximum allowed amount of %s %s",
				d.StringFixed(amountPlaces), strings.ToUpper(transferCurrency),
				converted.StringFixed(amountPlaces), strings.ToUpper(defaultCurrency),
				maxAmount.StringFixed(amountPlaces), strings.ToUpper(defaultCurrency)),
		}
	}

	return d, nil
}
