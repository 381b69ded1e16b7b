package match

// phoneticConfidence is the fixed confidence assigned to whole-name
// phonetic matches. Sound-alike equality is strong evidence but never as
// certain as an exact variant hit.
const phoneticConfidence = 0.85

// BestMatch evaluates all enabled strategies for a single input name against
// a single candidate device and returns the strongest result, or nil when no
// strategy produces a match.
//
// An exact variant hit short-circuits with confidence 1.0. Otherwise the
// fuzzy, phonetic, and partial candidates compete on confidence; ties go to
// the earlier strategy in that order, so fuzzy beats phonetic beats partial
// at equal confidence.
//
// StrictMode restricts evaluation to the exact and fuzzy strategies. The
// phonetic candidate is exempt from MinSimilarity; fuzzy and partial are not.
func BestMatch(inputName string, device Device, opts Options) *Result {
	inputVariants := Variants(inputName)
	deviceVariants := Variants(device.DisplayName)
	if len(inputVariants) == 0 || len(deviceVariants) == 0 {
		return nil
	}

	// Exact: any input variant equals any device variant.
	deviceSet := make(map[string]struct{}, len(deviceVariants))
	for _, dv := range deviceVariants {
		deviceSet[dv] = struct{}{}
	}
	for _, iv := range inputVariants {
		if _, ok := deviceSet[iv]; ok {
			return &Result{
				Device:         device,
				Method:         MethodExact,
				Confidence:     1.0,
				MatchedVariant: iv,
				OriginalName:   device.DisplayName,
			}
		}
	}

	var best *Result

	// consider keeps the highest-confidence candidate; earlier strategies
	// win ties because a later candidate must strictly exceed the incumbent.
	consider := func(method Method, confidence float64, matchedVariant string) {
		if best != nil && confidence <= best.Confidence {
			return
		}
		best = &Result{
			Device:         device,
			Method:         method,
			Confidence:     confidence,
			MatchedVariant: matchedVariant,
			OriginalName:   device.DisplayName,
		}
	}

	// Fuzzy: best Levenshtein similarity over the variant cross product.
	var bestFuzzy float64
	var bestFuzzyVariant string
	for _, iv := range inputVariants {
		for _, dv := range deviceVariants {
			if sim := Similarity(iv, dv); sim > bestFuzzy {
				bestFuzzy = sim
				bestFuzzyVariant = dv
			}
		}
	}
	if bestFuzzy >= opts.MinSimilarity {
		consider(MethodFuzzy, bestFuzzy, bestFuzzyVariant)
	}

	if opts.StrictMode {
		return best
	}

	// Phonetic: whole-name code equality at fixed confidence.
	if opts.EnablePhonetic {
		inputCode := PhoneticCode(inputName)
		deviceCode := PhoneticCode(device.DisplayName)
		if inputCode != "0000" && inputCode == deviceCode {
			consider(MethodPhonetic, phoneticConfidence, Normalize(device.DisplayName))
		}
	}

	// Partial: token containment overlap.
	if opts.EnablePartialMatch {
		score := PartialScore(Normalize(inputName), Normalize(device.DisplayName))
		if score >= opts.MinSimilarity {
			consider(MethodPartial, score, Normalize(device.DisplayName))
		}
	}

	return best
}
