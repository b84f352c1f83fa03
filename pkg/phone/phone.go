// Package phone canonicalizes loosely formatted local phone numbers into
// international "+<country code><digits>" form.
package phone

import (
	"regexp"
	"strings"
)

// DefaultCountryCode is Uganda's calling code.
const DefaultCountryCode = "256"

// localDigits is the length of a subscriber number without trunk prefix or
// country code.
const localDigits = 9

var (
	nonDigits  = regexp.MustCompile(`\D`)
	phoneShape = regexp.MustCompile(`^\+?\d{10,13}$`)
)

// Normalizer rewrites phone numbers for one country.
type Normalizer struct {
	// CountryCode is the calling code without "+". Defaults to DefaultCountryCode.
	CountryCode string
}

// Normalize strips everything but digits and rewrites the result as an
// international number. It never fails; input it cannot interpret is returned
// as "+" followed by its digits.
func (n Normalizer) Normalize(raw string) string {
	cc := n.CountryCode
	if cc == "" {
		cc = DefaultCountryCode
	}

	digits := nonDigits.ReplaceAllString(raw, "")

	switch {
	case strings.HasPrefix(digits, "0"):
		return "+" + cc + digits[1:]
	case strings.HasPrefix(digits, cc):
		return "+" + digits
	case len(digits) == localDigits:
		return "+" + cc + digits
	default:
		return "+" + digits
	}
}

// Normalize rewrites raw using the default country code.
func Normalize(raw string) string {
	return Normalizer{}.Normalize(raw)
}

// IsPhoneLike reports whether s is a bare phone number token: an optional
// leading "+" and 10 to 13 digits.
func IsPhoneLike(s string) bool {
	return phoneShape.MatchString(strings.TrimSpace(s))
}
