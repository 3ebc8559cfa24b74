package grading

import "math"

// GradePhrase compares a transcribed utterance with the expected phrase as a
// whole. Both strings are reduced with [NormalizeStrict] before computing the
// edit-distance similarity, so spacing, punctuation, case and accents never
// cost points.
func GradePhrase(expected, transcribed string) PhraseGrade {
	e := NormalizeStrict(expected)
	t := NormalizeStrict(transcribed)
	pct := toPercent(Similarity(e, t))
	return PhraseGrade{
		Expected:          e,
		Transcribed:       t,
		Distance:          Levenshtein(e, t),
		SimilarityPercent: pct,
		Pass:              pct >= PhrasePassPercent,
	}
}

// toPercent rounds a [0, 1] ratio to an integer percentage.
func toPercent(ratio float64) int {
	return int(math.Round(ratio * 100))
}
