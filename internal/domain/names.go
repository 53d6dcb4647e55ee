package domain

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// FoldName canonicalizes a human-entered name for case- and accent-insensitive matching.
func FoldName(name string) string {
	name = strings.Join(strings.Fields(name), " ")
	if name == "" {
		return ""
	}
	stripped, _, err := transform.String(transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC), name)
	if err != nil {
		stripped = name
	}
	// Casers are stateful, so each call gets its own.
	return cases.Fold().String(stripped)
}

// SameName reports whether two names match after folding.
func SameName(a, b string) bool {
	return FoldName(a) == FoldName(b)
}
