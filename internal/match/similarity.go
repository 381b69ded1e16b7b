package match

import "github.com/antzucaro/matchr"

// Similarity returns a normalized Levenshtein similarity in [0, 1]:
// (maxLen − editDistance) / maxLen, with 1.0 when both strings are empty.
// Symmetric: Similarity(a, b) == Similarity(b, a).
func Similarity(a, b string) float64 {
	ra, rb := []rune(a), []rune(b)
	maxLen := len(ra)
	if len(rb) > maxLen {
		maxLen = len(rb)
	}
	if maxLen == 0 {
		return 1.0
	}
	dist := matchr.Levenshtein(a, b)
	return float64(maxLen-dist) / float64(maxLen)
}
