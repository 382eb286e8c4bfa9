package signal

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// stripMarks decomposes to NFKD and removes combining marks, folding
// accented and full-width homoglyphs ("vérify", "ｖｅｒｉｆｙ") onto their
// ASCII forms so keyword rules match obfuscated text.
var stripMarks = transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// Normalize prepares raw message text for rule matching: unicode folding,
// lowercasing, and whitespace collapsing. The original text is never
// modified; callers match against the normalized copy.
func Normalize(text string) string {
	folded, _, err := transform.String(stripMarks, text)
	if err != nil {
		// Malformed input falls back to the raw text; rules still run.
		folded = text
	}
	folded = strings.ToLower(folded)
	return strings.Join(strings.Fields(folded), " ")
}

// leetDigits are digits commonly substituted for letters in evasion
// attempts ("sh4re y0ur p1n").
var leetDigits = map[rune]rune{'0': 'o', '1': 'i', '3': 'e', '4': 'a', '5': 's', '@': 'a', '$': 's'}

// containsLeetspeak reports whether text has letter-digit-letter sequences
// that look like intentional substitution, as opposed to incidental numbers
// like amounts or dates.
func containsLeetspeak(text string) bool {
	rs := []rune(text)
	for i := 1; i < len(rs)-1; i++ {
		if _, ok := leetDigits[rs[i]]; !ok {
			continue
		}
		if unicode.IsLetter(rs[i-1]) && unicode.IsLetter(rs[i+1]) {
			return true
		}
	}
	return false
}

// DeLeet maps leetspeak substitutions back to letters when the text shows
// an actual substitution pattern. Returns text unchanged otherwise.
func DeLeet(text string) string {
	if !containsLeetspeak(text) {
		return text
	}
	return strings.Map(func(r rune) rune {
		if repl, ok := leetDigits[r]; ok {
			return repl
		}
		return r
	}, text)
}
