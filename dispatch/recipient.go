package dispatch

import (
	"strings"
)

// DefaultCountryCode is applied to bare local-mobile numbers. The service
// grew up serving Lebanese users, so the Lebanon prefix is the default; it is
// configurable on the Dispatcher.
const DefaultCountryCode = "961"

// DefaultDomainSuffix is the messaging network's address suffix.
const DefaultDomainSuffix = "c.us"

// localMobileLeads lists the leading digit pairs of recognized 8-digit local
// mobile numbers; 7-digit numbers leading with 3 are handled separately.
var localMobileLeads = []string{"70", "71", "76", "78", "79", "81"}

// NormalizeRecipient reduces raw input to the canonical wire form
// "<digits>@<suffix>". It strips whitespace and punctuation, removes "+" and
// "00" international prefixes, applies countryCode to numbers matching the
// local-mobile pattern, and rejects anything that does not end up as a
// plausible international number. The second return is false for input that
// must be dropped before dispatch.
func NormalizeRecipient(raw, countryCode, domainSuffix string) (string, bool) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return "", false
	}
	// Already in wire form: keep the user part and re-validate.
	if at := strings.IndexByte(s, '@'); at >= 0 {
		s = s[:at]
	}

	plus := strings.HasPrefix(s, "+")
	digits := digitsOf(s)
	if digits == "" {
		return "", false
	}
	if !plus && strings.HasPrefix(digits, "00") {
		digits = digits[2:]
	}

	if !plus && isLocalMobile(digits, countryCode) {
		digits = countryCode + strings.TrimPrefix(digits, "0")
	}

	// International sanity bounds; anything shorter cannot carry a country
	// code and is excluded at validation rather than reported as a failure.
	if len(digits) < 10 || len(digits) > 15 {
		return "", false
	}
	return digits + "@" + domainSuffix, true
}

// isLocalMobile reports whether digits (optionally 0-prefixed) match the
// local mobile plan for the configured default country code. Numbers already
// starting with the country code are international, not local.
func isLocalMobile(digits, countryCode string) bool {
	if strings.HasPrefix(digits, countryCode) {
		return false
	}
	d := strings.TrimPrefix(digits, "0")
	if len(d) == 7 && d[0] == '3' {
		return true
	}
	if len(d) == 8 {
		for _, lead := range localMobileLeads {
			if strings.HasPrefix(d, lead) {
				return true
			}
		}
	}
	return false
}

func digitsOf(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// normalizeAll maps raw recipients to canonical form, silently dropping the
// un-normalizable and de-duplicating while preserving first-seen order.
func normalizeAll(raw []string, countryCode, domainSuffix string) []string {
	seen := make(map[string]struct{}, len(raw))
	out := make([]string, 0, len(raw))
	for _, r := range raw {
		canon, ok := NormalizeRecipient(r, countryCode, domainSuffix)
		if !ok {
			continue
		}
		if _, dup := seen[canon]; dup {
			continue
		}
		seen[canon] = struct{}{}
		out = append(out, canon)
	}
	return out
}
