package grading

// Levenshtein returns the minimum number of single-rune insertions, deletions
// and substitutions needed to turn a into b.
func Levenshtein(a, b string) int {
	ar, br := []rune(a), []rune(b)
	if len(ar) == 0 {
		return len(br)
	}
	if len(br) == 0 {
		return len(ar)
	}

	// Two rows of the (len(b)+1) x (len(a)+1) table.
	prev := make([]int, len(ar)+1)
	cur := make([]int, len(ar)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(br); i++ {
		cur[0] = i
		for j := 1; j <= len(ar); j++ {
			cost := 1
			if br[i-1] == ar[j-1] {
				cost = 0
			}
			cur[j] = min(
				prev[j]+1,      // deletion
				cur[j-1]+1,     // insertion
				prev[j-1]+cost, // substitution
			)
		}
		prev, cur = cur, prev
	}
	return prev[len(ar)]
}

// Similarity returns 1 - Levenshtein(a, b) / max(len(a), len(b)), measured in
// runes and clamped to [0, 1]. Two empty strings are identical (1.0).
func Similarity(a, b string) float64 {
	la, lb := len([]rune(a)), len([]rune(b))
	longest := max(la, lb)
	if longest == 0 {
		return 1.0
	}
	s := 1 - float64(Levenshtein(a, b))/float64(longest)
	return min(max(s, 0), 1)
}
