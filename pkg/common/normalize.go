package common

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"unicode"
)

// CanonicalName lowercases a display name and collapses whitespace, hyphens
// and punctuation runs to single underscores, so that "Meta Frontend",
// "meta-frontend" and "Meta_Frontend" collide to the same canonical form.
func CanonicalName(name string) string {
	var b strings.Builder
	b.Grow(len(name))

	pendingSep := false
	for _, r := range strings.TrimSpace(name) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			if pendingSep && b.Len() > 0 {
				b.WriteByte('_')
			}
			pendingSep = false
			b.WriteRune(unicode.ToLower(r))
		default:
			pendingSep = true
		}
	}
	return b.String()
}

// EntityID derives the stable, namespace-scoped entity id from a name.
// Currently the id is the canonical name itself; keeping the two notions
// separate lets the id scheme change without touching callers.
func EntityID(name string) string {
	return CanonicalName(name)
}

// NormalizeText lowercases text and maps every non-alphanumeric rune except
// hyphens to a space, preserving byte offsets: the output is the same length
// as the input for ASCII text. Hyphenated compounds stay intact so
// "word-level" scans as one token.
func NormalizeText(text string) string {
	var b strings.Builder
	b.Grow(len(text))
	for _, r := range text {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r) || r == '-':
			b.WriteRune(unicode.ToLower(r))
		default:
			b.WriteRune(' ')
		}
	}
	return b.String()
}

// Tokenize splits normalized text on whitespace. Hyphenated compounds are
// single tokens.
func Tokenize(text string) []string {
	return strings.Fields(NormalizeText(text))
}

// ContentHash returns the hex SHA-256 of the normalized description. Two
// descriptions differing only in case and punctuation hash identically, so
// cosmetic edits do not trigger a re-scan.
func ContentHash(description string) string {
	sum := sha256.Sum256([]byte(strings.Join(Tokenize(description), " ")))
	return hex.EncodeToString(sum[:])
}
