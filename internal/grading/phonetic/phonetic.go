// Package phonetic flags misheard words that nevertheless sound like the
// expected word, so that feedback can say "homophone" instead of "wrong".
//
// The check runs in two stages:
//
//  1. Phonetic codes: Double Metaphone codes are computed for both words. If
//     any primary or secondary code overlaps, the pair is a phonetic
//     candidate.
//
//  2. Jaro-Winkler ranking: a phonetic candidate is accepted when the
//     Jaro-Winkler similarity of the two words reaches the phonetic
//     threshold (default 0.70). Without a code overlap the pair must reach
//     the stricter fuzzy threshold (default 0.92).
//
// Hints are advisory only and never change a grading score.
package phonetic

import (
	"strings"

	"github.com/antzucaro/matchr"

	"github.com/Allakabeth/projet-aclef-pedagogie-sub006/internal/grading"
)

const (
	defaultPhoneticThreshold = 0.70
	defaultFuzzyThreshold    = 0.92
)

// Option is a functional option for configuring a [Matcher].
type Option func(*Matcher)

// WithPhoneticThreshold sets the minimum Jaro-Winkler score for a pair whose
// Double Metaphone codes overlap. Default: 0.70.
func WithPhoneticThreshold(threshold float64) Option {
	return func(m *Matcher) {
		m.phoneticThreshold = threshold
	}
}

// WithFuzzyThreshold sets the minimum Jaro-Winkler score for a pair without
// any code overlap. Default: 0.92.
func WithFuzzyThreshold(threshold float64) Option {
	return func(m *Matcher) {
		m.fuzzyThreshold = threshold
	}
}

// Matcher decides whether two words sound alike. It is read-only after
// construction and safe for concurrent use.
type Matcher struct {
	phoneticThreshold float64
	fuzzyThreshold    float64
}

// New returns a [Matcher] configured with the supplied options.
func New(opts ...Option) *Matcher {
	m := &Matcher{
		phoneticThreshold: defaultPhoneticThreshold,
		fuzzyThreshold:    defaultFuzzyThreshold,
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// SoundsAlike reports whether heard is a plausible mishearing of expected.
// Both words are normalised with [grading.NormalizeWord] first; identical or
// empty words never count as sound-alikes.
func (m *Matcher) SoundsAlike(expected, heard string) (score float64, ok bool) {
	e := grading.NormalizeWord(expected)
	h := grading.NormalizeWord(heard)
	if e == "" || h == "" || e == h {
		return 0, false
	}

	score = matchr.JaroWinkler(e, h, false)
	if codesOverlap(codes(e), codes(h)) {
		if score >= m.phoneticThreshold {
			return score, true
		}
		return 0, false
	}
	if score >= m.fuzzyThreshold {
		return score, true
	}
	return 0, false
}

// Hint is a sound-alike annotation for one graded word.
type Hint struct {
	Index    int     `json:"index"`
	Expected string  `json:"expected"`
	Heard    string  `json:"heard"`
	Score    float64 `json:"score"`
}

// Annotate returns a [Hint] for every non-perfect word whose best match
// sounds like the expected word.
func (m *Matcher) Annotate(words []grading.MatchResult) []Hint {
	var hints []Hint
	for i, w := range words {
		if w.Tier == grading.TierPerfect || w.Matched == "" {
			continue
		}
		if s, ok := m.SoundsAlike(w.Expected, w.Matched); ok {
			hints = append(hints, Hint{Index: i, Expected: w.Expected, Heard: w.Matched, Score: s})
		}
	}
	return hints
}

// codes returns the non-empty Double Metaphone codes of word.
func codes(word string) map[string]struct{} {
	set := make(map[string]struct{}, 2)
	p, s := matchr.DoubleMetaphone(strings.ToLower(word))
	if p != "" {
		set[p] = struct{}{}
	}
	if s != "" {
		set[s] = struct{}{}
	}
	return set
}

// codesOverlap returns true if the two code sets share at least one code.
func codesOverlap(a, b map[string]struct{}) bool {
	if len(a) > len(b) {
		a, b = b, a
	}
	for code := range a {
		if _, ok := b[code]; ok {
			return true
		}
	}
	return false
}
