// Package grading scores a learner's spoken answer against the expected text
// of a dictation exercise.
//
// Two graders are provided:
//
//  1. [GradePhrase] compares the whole utterance as one string. Both sides are
//     normalised with [NormalizeStrict] (case, accents, punctuation and spaces
//     removed) and the edit-distance similarity is turned into a percentage
//     with a fixed pass mark of [PhrasePassPercent].
//
//  2. [AlignWords] (and the [GradeWords] / [ScoreWords] helpers) match every
//     expected word against the transcribed words and bucket the best score
//     into a [Tier] for per-word feedback.
//
// Every function is pure and total: any pair of strings, including empty
// ones, yields a result and never an error. All functions are safe for
// concurrent use; the package holds no mutable state.
package grading

// PhrasePassPercent is the minimum similarity percentage for a phrase to be
// accepted by [GradePhrase].
const PhrasePassPercent = 80

// Candidate scores used by [AlignWords].
const (
	// ExactScore is awarded when the normalised words are identical.
	ExactScore = 1.0

	// SubstringScore is awarded when one word contains the other.
	SubstringScore = 0.8

	// PrefixRescueScore replaces a low edit-distance score when both words
	// start with the same [PrefixRescueRunes] runes. Speech engines often
	// truncate or mishear the end of short words.
	PrefixRescueScore = 0.5

	// PrefixRescueBelow is the edit-distance score under which the prefix
	// rescue applies.
	PrefixRescueBelow = 0.3

	// PrefixRescueRunes is the prefix length compared by the rescue rule.
	PrefixRescueRunes = 2
)

// Tier thresholds. A score is placed in the highest tier whose threshold it
// reaches.
const (
	PerfectThreshold = 0.9
	GoodThreshold    = 0.7
	MediumThreshold  = 0.4
)

// Tier is a feedback bucket for a word match.
type Tier string

const (
	TierPerfect Tier = "perfect"
	TierGood    Tier = "good"
	TierMedium  Tier = "medium"
	TierMissing Tier = "missing"
)

// TierFor maps a score to its [Tier]. The mapping is monotonic: a higher
// score never lands in a lower tier.
func TierFor(score float64) Tier {
	switch {
	case score >= PerfectThreshold:
		return TierPerfect
	case score >= GoodThreshold:
		return TierGood
	case score >= MediumThreshold:
		return TierMedium
	default:
		return TierMissing
	}
}

// PhraseGrade is the outcome of [GradePhrase].
type PhraseGrade struct {
	// Expected and Transcribed are the strictly normalised forms that were
	// compared.
	Expected    string `json:"expected"`
	Transcribed string `json:"transcribed"`

	// Distance is the Levenshtein distance between the normalised forms.
	Distance int `json:"distance"`

	// SimilarityPercent is the rounded similarity in [0, 100].
	SimilarityPercent int `json:"similarity_percent"`

	// Pass reports SimilarityPercent >= PhrasePassPercent.
	Pass bool `json:"pass"`
}

// MatchResult is the best match found for one expected word.
type MatchResult struct {
	// Expected is the normalised expected word.
	Expected string `json:"expected"`

	// Matched is the transcribed word selected as best match, or "" when no
	// transcribed word scored above zero.
	Matched string `json:"matched"`

	// Score is the match score in [0, 1].
	Score float64 `json:"score"`

	// Tier is TierFor(Score).
	Tier Tier `json:"tier"`
}

// PhraseScore aggregates the per-word results of a whole exercise item.
type PhraseScore struct {
	// Words holds one result per expected word, in expected order.
	Words []MatchResult `json:"words"`

	// Percent is round(mean(Score) * 100), or 0 when there are no words.
	Percent int `json:"percent"`
}
