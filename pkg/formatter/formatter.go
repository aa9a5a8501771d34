package formatter

import (
	"strings"
	"unicode"
)

// HasCyrillic reports whether the string contains at least one Cyrillic
// letter. Used to tell localized user-facing text apart from technical
// English error strings.
func HasCyrillic(s string) bool {
	for _, r := range s {
		if unicode.Is(unicode.Cyrillic, r) {
			return true
		}
	}
	return false
}

// Excerpt shortens a text to at most max runes for log previews.
// Example: Excerpt("Жили-были старик со старухой", 12) -> "Жили-были ст…"
func Excerpt(s string, max int) string {
	s = strings.TrimSpace(s)
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max]) + "…"
}
