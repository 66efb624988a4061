// Package phone provides phone number utilities.
// This is part of the platform layer and contains no business logic.
package phone

import (
	"strings"

	"incident_portal_backend/platform/config"

	"github.com/nyaruka/phonenumbers"
)

// Normalizer canonicalizes locally-formatted numbers into E.164 for the
// configured country before any call is placed.
type Normalizer struct {
	region      string
	countryCode string
}

// New creates a Normalizer for the configured region.
func New(cfg config.PhoneConfig) *Normalizer {
	return &Normalizer{
		region:      cfg.GetPhoneRegion(),
		countryCode: cfg.GetPhoneCountryCode(),
	}
}

// Normalize formats a phone number to international form. Numbers the
// phonenumbers library recognizes as valid are formatted as E.164; everything
// else goes through the deterministic trunk-prefix rule so that malformed
// input still produces a stable canonical string (it will simply fail at the
// provider rather than here).
func (n *Normalizer) Normalize(input string) string {
	trimmed := strings.TrimSpace(input)
	if trimmed == "" {
		return trimmed
	}

	if number, err := phonenumbers.Parse(trimmed, n.region); err == nil {
		if phonenumbers.IsValidNumber(number) {
			return phonenumbers.Format(number, phonenumbers.E164)
		}
	}

	return n.normalizeRaw(trimmed)
}

// normalizeRaw applies the country rule to a string the parser rejected:
// keep only digits (and a leading +), then resolve the country prefix.
func (n *Normalizer) normalizeRaw(input string) string {
	hadPlus := strings.HasPrefix(input, "+")
	digits := stripNonDigits(input)
	if digits == "" {
		return input
	}

	switch {
	case strings.HasPrefix(digits, n.countryCode):
		return "+" + digits
	case hadPlus:
		return "+" + digits
	case strings.HasPrefix(digits, "0"):
		// Domestic trunk prefix: 0412... -> +61412...
		return "+" + n.countryCode + digits[1:]
	default:
		return "+" + n.countryCode + digits
	}
}

func stripNonDigits(input string) string {
	var b strings.Builder
	for _, r := range input {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
