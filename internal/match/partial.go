package match

import "strings"

// partialScoreCap bounds the token-overlap score: containment alone never
// carries the certainty of a full-string match.
const partialScoreCap = 0.8

// tokenIncrement is the accumulator step for each containing token pair.
const tokenIncrement = 0.5

// PartialScore computes a containment-based overlap score between two
// normalized names. Both names are split on whitespace and tokens of length
// ≤ 2 are discarded; every (input token, device token) pair where either
// contains the other adds a fixed increment, and the accumulated value is
// divided by the larger token count and capped at 0.8. Returns 0 when either
// side has no usable tokens.
func PartialScore(input, device string) float64 {
	inTokens := significantTokens(input)
	devTokens := significantTokens(device)
	if len(inTokens) == 0 || len(devTokens) == 0 {
		return 0
	}

	var acc float64
	for _, it := range inTokens {
		for _, dt := range devTokens {
			if strings.Contains(it, dt) || strings.Contains(dt, it) {
				acc += tokenIncrement
			}
		}
	}

	denom := len(inTokens)
	if len(devTokens) > denom {
		denom = len(devTokens)
	}
	score := acc / float64(denom)
	if score > partialScoreCap {
		return partialScoreCap
	}
	return score
}

// significantTokens splits a normalized name on whitespace and keeps only
// tokens longer than two characters.
func significantTokens(s string) []string {
	fields := strings.Fields(s)
	tokens := fields[:0:0]
	for _, f := range fields {
		if len(f) > 2 {
			tokens = append(tokens, f)
		}
	}
	return tokens
}
