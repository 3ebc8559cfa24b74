package grading

import "strings"

// AlignWords finds, for every expected word, the best-scoring transcribed
// word and returns one [MatchResult] per expected word.
//
// Each expected word is matched independently, so one transcribed word can
// serve as the best match for several expected words. When several
// transcribed words reach the same best score the first one wins.
//
// Scoring per candidate pair, after [NormalizeWord]:
//
//   - identical words score [ExactScore];
//   - otherwise, when one contains the other, [SubstringScore];
//   - otherwise the edit-distance [Similarity], raised to [PrefixRescueScore]
//     when it is below [PrefixRescueBelow] and both words share their first
//     [PrefixRescueRunes] runes.
func AlignWords(expected, transcribed []string) []MatchResult {
	heard := make([]string, len(transcribed))
	for i, t := range transcribed {
		heard[i] = NormalizeWord(t)
	}

	results := make([]MatchResult, len(expected))
	for i, raw := range expected {
		e := NormalizeWord(raw)
		best := MatchResult{Expected: e}
		for _, t := range heard {
			if s := candidateScore(e, t); s > best.Score {
				best.Score = s
				best.Matched = t
			}
		}
		best.Tier = TierFor(best.Score)
		results[i] = best
	}
	return results
}

// ScoreWords aligns the word lists and aggregates the result.
func ScoreWords(expected, transcribed []string) PhraseScore {
	words := AlignWords(expected, transcribed)
	return PhraseScore{
		Words:   words,
		Percent: meanPercent(words),
	}
}

// GradeWords splits both texts with [NormalizeWords] and scores them with
// [ScoreWords].
func GradeWords(expected, transcribed string) PhraseScore {
	return ScoreWords(NormalizeWords(expected), NormalizeWords(transcribed))
}

func candidateScore(e, t string) float64 {
	if e == t {
		return ExactScore
	}
	if e != "" && t != "" && (strings.Contains(e, t) || strings.Contains(t, e)) {
		return SubstringScore
	}
	s := Similarity(e, t)
	if s < PrefixRescueBelow && sharePrefix(e, t, PrefixRescueRunes) {
		return PrefixRescueScore
	}
	return s
}

// sharePrefix reports whether the first n runes of one word prefix the other.
// Empty words never share a prefix.
func sharePrefix(a, b string, n int) bool {
	if a == "" || b == "" {
		return false
	}
	return strings.HasPrefix(b, headRunes(a, n)) || strings.HasPrefix(a, headRunes(b, n))
}

func headRunes(s string, n int) string {
	r := []rune(s)
	if len(r) > n {
		r = r[:n]
	}
	return string(r)
}

func meanPercent(words []MatchResult) int {
	if len(words) == 0 {
		return 0
	}
	var sum float64
	for _, w := range words {
		sum += w.Score
	}
	return toPercent(sum / float64(len(words)))
}
