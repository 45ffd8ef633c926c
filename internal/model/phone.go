package model

import "strings"

const (
	countryCode    = "91"
	whatsAppPrefix = "https://wa.me/+"
)

// NormalizePhone keeps the digits of a free-text phone number and puts them
// in international form: a bare 10 digit number gets the country code and a
// single trunk zero is replaced by it. Returns "" when there are no digits.
func NormalizePhone(raw string) string {
	var b strings.Builder
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	digits := b.String()
	if digits == "" {
		return ""
	}

	switch {
	case !strings.HasPrefix(digits, countryCode) && len(digits) == 10:
		digits = countryCode + digits
	case strings.HasPrefix(digits, "0"):
		digits = countryCode + digits[1:]
	}
	return digits
}

// WhatsAppLink builds the wa.me link for number, falling back to the stored
// link and then to "#".
func WhatsAppLink(number, stored string) string {
	if digits := NormalizePhone(number); digits != "" {
		return whatsAppPrefix + digits
	}
	if stored != "" {
		return stored
	}
	return "#"
}
