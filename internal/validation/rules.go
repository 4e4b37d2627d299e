// Package validation holds the checkout form predicates. Every function is
// pure; the caller decides how errors are surfaced.
package validation

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

var (
	emailRe  = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)
	phoneRe  = regexp.MustCompile(`^(\+62|62|0)[0-9]{9,12}$`)
	postalRe = regexp.MustCompile(`^[0-9]{5}$`)
	cardRe   = regexp.MustCompile(`^[0-9]{13,19}$`)
	cvvRe    = regexp.MustCompile(`^[0-9]{3,4}$`)
	expiryRe = regexp.MustCompile(`^(\d{2})/(\d{2})$`)
)

const (
	minNameLength    = 3
	minAddressLength = 10
)

// Required reports whether the trimmed value is non-empty.
func Required(v string) bool {
	return strings.TrimSpace(v) != ""
}

// Email checks for local@domain.tld without whitespace.
func Email(v string) bool {
	return emailRe.MatchString(strings.TrimSpace(v))
}

// Phone accepts Indonesian mobile numbers: +62, 62 or 0 followed by 9-12 digits.
func Phone(v string) bool {
	return phoneRe.MatchString(strings.TrimSpace(v))
}

// PostalCode accepts exactly five digits.
func PostalCode(v string) bool {
	return postalRe.MatchString(strings.TrimSpace(v))
}

// CardNumber accepts 13-19 digits (spaces ignored) passing the Luhn checksum.
func CardNumber(v string) bool {
	clean := StripSpaces(v)
	return cardRe.MatchString(clean) && Luhn(clean)
}

// Luhn validates a digit string: double every second digit from the right,
// subtract 9 above 9, and require the sum to be divisible by 10.
func Luhn(digits string) bool {
	if digits == "" {
		return false
	}
	sum := 0
	double := false
	for i := len(digits) - 1; i >= 0; i-- {
		c := digits[i]
		if c < '0' || c > '9' {
			return false
		}
		d := int(c - '0')
		if double {
			d *= 2
			if d > 9 {
				d -= 9
			}
		}
		sum += d
		double = !double
	}
	return sum%10 == 0
}

// CVV accepts three or four digits.
func CVV(v string) bool {
	return cvvRe.MatchString(strings.TrimSpace(v))
}

// Expiry accepts MM/YY whose first day of month is strictly after now.
// The current month is therefore already expired.
func Expiry(v string, now time.Time) bool {
	m := expiryRe.FindStringSubmatch(strings.TrimSpace(v))
	if m == nil {
		return false
	}
	month, _ := strconv.Atoi(m[1])
	year, _ := strconv.Atoi(m[2])
	if month < 1 || month > 12 {
		return false
	}
	expiry := time.Date(2000+year, time.Month(month), 1, 0, 0, 0, 0, now.Location())
	return expiry.After(now)
}

// FullName requires at least three characters.
func FullName(v string) bool {
	return len([]rune(strings.TrimSpace(v))) >= minNameLength
}

// Address requires at least ten characters.
func Address(v string) bool {
	return len([]rune(strings.TrimSpace(v))) >= minAddressLength
}

// StripSpaces removes all whitespace from a card number.
func StripSpaces(v string) string {
	return strings.Join(strings.Fields(v), "")
}

// LastFour returns the last four digits of a card number, or "" when shorter.
func LastFour(card string) string {
	clean := StripSpaces(card)
	if len(clean) < 4 {
		return ""
	}
	return clean[len(clean)-4:]
}
