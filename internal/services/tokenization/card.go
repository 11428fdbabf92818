package tokenization

import (
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"
)

var (
	errNotNumeric   = errors.New("card number must contain digits only")
	errLength       = errors.New("card number length must be 13..19 digits")
	errLuhn         = errors.New("invalid luhn check digit")
	errBrandLength  = errors.New("card number length does not match brand")
	errExpiryFormat = errors.New("expiry must be MM and YY or YYYY")
)

type brandRule struct {
	name    string
	lengths []int
	matches func(pan string) bool
}

var brandRules = []brandRule{
	{name: "amex", lengths: []int{15}, matches: prefixes("34", "37")},
	{name: "diners", lengths: []int{14, 15, 16, 17, 18, 19}, matches: func(pan string) bool {
		return prefixes("36", "38", "39")(pan) || prefixRange(pan, 3, 300, 305)
	}},
	{name: "discover", lengths: []int{16, 17, 18, 19}, matches: func(pan string) bool {
		return prefixes("6011", "64", "65")(pan)
	}},
	{name: "mastercard", lengths: []int{16}, matches: func(pan string) bool {
		return prefixRange(pan, 2, 51, 55) || prefixRange(pan, 4, 2221, 2720)
	}},
	{name: "visa", lengths: []int{13, 16, 19}, matches: prefixes("4")},
}

// normalizePAN drops spaces and dashes
func normalizePAN(s string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case ' ', '\t', '-':
			return -1
		default:
			return r
		}
	}, strings.TrimSpace(s))
}

// validatePAN checks digits, length, the Luhn digit and the brand length.
// It returns the detected brand, or "" for brands without a rule.
func validatePAN(pan string) (string, error) {
	if pan == "" || !isDigits(pan) {
		return "", errNotNumeric
	}
	if l := len(pan); l < 13 || l > 19 {
		return "", errLength
	}
	if pan[len(pan)-1] != luhnCheckDigit(pan[:len(pan)-1]) {
		return "", errLuhn
	}

	for _, rule := range brandRules {
		if !rule.matches(pan) {
			continue
		}
		if !slices.Contains(rule.lengths, len(pan)) {
			return rule.name, fmt.Errorf("%w: %s", errBrandLength, rule.name)
		}
		return rule.name, nil
	}
	return "", nil
}

// validateExpiry accepts MM with YY or YYYY
func validateExpiry(month, year string) error {
	m, err := strconv.Atoi(month)
	if err != nil || m < 1 || m > 12 {
		return errExpiryFormat
	}
	if (len(year) != 2 && len(year) != 4) || !isDigits(year) {
		return errExpiryFormat
	}
	return nil
}

func luhnCheckDigit(body string) byte {
	sum, double := 0, true
	for i := len(body) - 1; i >= 0; i-- {
		d := int(body[i] - '0')
		if double {
			d *= 2
			if d > 9 {
				d -= 9
			}
		}
		sum += d
		double = !double
	}
	return byte('0' + (10-sum%10)%10)
}

func isDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

func prefixes(ps ...string) func(string) bool {
	return func(pan string) bool {
		for _, p := range ps {
			if strings.HasPrefix(pan, p) {
				return true
			}
		}
		return false
	}
}

func prefixRange(pan string, digits, lo, hi int) bool {
	if len(pan) < digits {
		return false
	}
	v, err := strconv.Atoi(pan[:digits])
	return err == nil && v >= lo && v <= hi
}
