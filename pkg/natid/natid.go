// Package natid validates national identity numbers: a numeric body plus a
// modulo-11 check digit (0-9 or K), with optional dot grouping and dash.
package natid

import (
	"strings"
)

// Normalize strips dot separators and the dash and uppercases the verifier,
// so "12.345.678-k" becomes "12345678K". It does not validate.
func Normalize(raw string) string {
	s := strings.ToUpper(strings.TrimSpace(raw))
	s = strings.ReplaceAll(s, ".", "")
	s = strings.ReplaceAll(s, "-", "")
	return s
}

// Valid reports whether raw is a well-formed national ID whose check digit
// verifies under the modulo-11 scheme.
func Valid(raw string) bool {
	s := Normalize(raw)
	if len(s) < 8 || len(s) > 9 {
		return false
	}
	body, verifier := s[:len(s)-1], s[len(s)-1]
	for _, r := range body {
		if r < '0' || r > '9' {
			return false
		}
	}
	return checkDigit(body) == verifier
}

// checkDigit computes the modulo-11 verifier for a numeric body.
// Digits are weighted 2..7 cycling from the rightmost position.
func checkDigit(body string) byte {
	sum := 0
	weight := 2
	for i := len(body) - 1; i >= 0; i-- {
		sum += int(body[i]-'0') * weight
		weight++
		if weight > 7 {
			weight = 2
		}
	}
	switch r := 11 - sum%11; r {
	case 11:
		return '0'
	case 10:
		return 'K'
	default:
		return byte('0' + r)
	}
}
