package grading

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// punctuation is the set of characters stripped during normalisation. The
// typographic apostrophe is included because speech engines emit it for
// French elisions ("l’eau").
const punctuation = ".,;:!?¡¿'\"«»-—’"

func isPunct(r rune) bool {
	return strings.ContainsRune(punctuation, r)
}

func isPunctOrSpace(r rune) bool {
	return isPunct(r) || unicode.IsSpace(r)
}

// NormalizePhrase lowercases text and strips whitespace and punctuation from
// both ends of the whole string. Punctuation inside the phrase is kept.
func NormalizePhrase(text string) string {
	return strings.TrimFunc(strings.ToLower(text), isPunctOrSpace)
}

// NormalizeWord lowercases token, removes diacritics, and drops every
// punctuation and whitespace rune.
func NormalizeWord(token string) string {
	if token == "" {
		return ""
	}
	// A fresh transformer per call: transform.Chain keeps internal state and
	// is not safe for concurrent use.
	stripAccents := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(stripAccents, strings.ToLower(token))
	if err != nil {
		folded = strings.ToLower(token)
	}
	return strings.Map(func(r rune) rune {
		if isPunctOrSpace(r) {
			return -1
		}
		return r
	}, folded)
}

// NormalizeWords splits text on whitespace and normalises each token with
// [NormalizeWord]. Tokens made only of punctuation are dropped.
func NormalizeWords(text string) []string {
	fields := strings.Fields(text)
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		if w := NormalizeWord(f); w != "" {
			out = append(out, w)
		}
	}
	return out
}

// Normalize returns the word-level normalisation of text joined by single
// spaces.
func Normalize(text string) string {
	return strings.Join(NormalizeWords(text), " ")
}

// NormalizeStrict returns the word-level normalisation of text with all
// whitespace removed, so that "Bonjour, le chat !" and "bonjour lechat"
// compare equal.
func NormalizeStrict(text string) string {
	return strings.Join(NormalizeWords(text), "")
}
