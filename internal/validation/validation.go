package validation

import (
	"errors"
	"strings"
	"unicode"
)

// ErrCityTooLong is returned when the city name exceeds the maximum length in bytes.
var ErrCityTooLong = errors.New("city name too long")

// ErrCityInvalidChars is returned when the city name contains disallowed characters.
var ErrCityInvalidChars = errors.New("city name contains invalid characters")

// ValidateCity trims the input, enforces maxLen in bytes (the companion link budgets
// bytes, not runes) and restricts to letters (Unicode), digits, space, comma, period,
// apostrophe and hyphen. An empty name is valid: the city line is optional.
func ValidateCity(input string, maxLen int) (string, error) {
	s := strings.TrimSpace(input)
	if s == "" {
		return "", nil
	}
	if maxLen > 0 && len(s) > maxLen {
		return "", ErrCityTooLong
	}
	for _, c := range s {
		if !isAllowedCityRune(c) {
			return "", ErrCityInvalidChars
		}
	}
	return s, nil
}

func isAllowedCityRune(r rune) bool {
	if unicode.IsLetter(r) || unicode.IsNumber(r) {
		return true
	}
	switch r {
	case ' ', ',', '-', '.', '\'':
		return true
	}
	return false
}
