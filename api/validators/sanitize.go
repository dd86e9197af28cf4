package validators

import (
	"strings"
	"unicode"
)

// SanitizeString trims s, drops control characters and caps it at maxRunes
// runes so multi-byte labels are never cut mid-character. maxRunes <= 0
// disables the cap.
func SanitizeString(s string, maxRunes int) string {
	cleaned := strings.Map(func(r rune) rune {
		if unicode.IsControl(r) && r != '\n' {
			return -1
		}
		return r
	}, strings.TrimSpace(s))
	if maxRunes <= 0 {
		return cleaned
	}
	runes := []rune(cleaned)
	if len(runes) <= maxRunes {
		return cleaned
	}
	return strings.TrimSpace(string(runes[:maxRunes]))
}
