// Package validation checks user-supplied location names before they reach the
// settings store or the upstream API.
package validation

import (
	"errors"
	"strings"
	"unicode"
	"unicode/utf8"
)

var (
	ErrLocationEmpty        = errors.New("location is required")
	ErrLocationTooShort     = errors.New("location too short")
	ErrLocationTooLong      = errors.New("location too long")
	ErrLocationInvalidUTF8  = errors.New("location is not valid UTF-8")
	ErrLocationInvalidChars = errors.New("location contains invalid characters")
)

// Rules bounds a location name length in runes. Zero disables a bound.
type Rules struct {
	MinLen int
	MaxLen int
}

// DefaultRules match what the upstream geocoder accepts in practice.
var DefaultRules = Rules{MinLen: 1, MaxLen: 100}

// ValidateLocation trims input and checks it against rules. Place names may contain
// letters in any script, digits, spaces and the punctuation found in real names
// (comma, hyphen, period, apostrophe). Case is preserved; comparisons are the
// caller's concern.
func ValidateLocation(input string, rules Rules) (string, error) {
	if !utf8.ValidString(input) {
		return "", ErrLocationInvalidUTF8
	}
	s := strings.TrimSpace(input)
	n := utf8.RuneCountInString(s)
	if n == 0 {
		return "", ErrLocationEmpty
	}
	if rules.MinLen > 0 && n < rules.MinLen {
		return "", ErrLocationTooShort
	}
	if rules.MaxLen > 0 && n > rules.MaxLen {
		return "", ErrLocationTooLong
	}
	for _, c := range s {
		if !isAllowedLocationRune(c) {
			return "", ErrLocationInvalidChars
		}
	}
	return s, nil
}

// SameLocation reports whether two location names refer to the same saved entry.
func SameLocation(a, b string) bool {
	return strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
}

func isAllowedLocationRune(r rune) bool {
	if unicode.IsLetter(r) || unicode.IsNumber(r) || unicode.IsMark(r) {
		return true
	}
	switch r {
	case ' ', ',', '-', '.', '\'':
		return true
	}
	return false
}
