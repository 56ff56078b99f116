package validation

import (
	"regexp"
)

var (
	accountNumberSeparators = regexp.MustCompile(`[\s.]`)
	elevenDigits            = regexp.MustCompile(`^\d{11}$`)

	// BBBB AA AAAAC: bank, account, check digit
	mod11Weights = []int{5, 4, 3, 2, 7, 6, 5, 4, 3, 2}
)

// ValidateNorwegianAccountNumber checks an 11 digit account number against
// its modulo 11 check digit. Spaces and dots are ignored.
func ValidateNorwegianAccountNumber(accountNumber string) bool {
	clean := accountNumberSeparators.ReplaceAllString(accountNumber, "")
	if !elevenDigits.MatchString(clean) {
		return false
	}

	sum := 0
	for i, w := range mod11Weights {
		sum += int(clean[i]-'0') * w
	}

	remainder := sum % 11
	expected := 0
	if remainder >= 2 {
		expected = 11 - remainder
	}

	return expected == int(clean[10]-'0')
}
