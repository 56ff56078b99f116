package utils

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Capitalize turns an upper-case type code such as CURRENCY_ACCOUNT into
// a label ("Currency Account").
func Capitalize(s string) string {
	s = strings.ReplaceAll(s, "_", " ")
	return cases.Title(language.English).String(strings.ToLower(s))
}

// MaskSecret shows only the first 4 and last 4 characters of a secret
func MaskSecret(secret string) string {
	if secret == "" {
		return "Not set"
	}
	if len(secret) > 8 {
		return secret[:4] + strings.Repeat("*", len(secret)-8) + secret[len(secret)-4:]
	}
	return strings.Repeat("*", len(secret))
}
