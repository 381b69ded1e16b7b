// Package match implements the device name resolution engine: a
// multi-strategy fuzzy matcher that maps free-text device references
// ("desk and workshop light in bedroom", "kitchin lite") to registered
// devices from a hub snapshot.
//
// Four strategies run in priority order for each candidate device:
//
//  1. Exact: any generated variant of the input equals any variant of the
//     device's display name. Absolute priority, confidence 1.0.
//  2. Fuzzy: maximum Levenshtein similarity across the variant cross
//     product, gated by [Options.MinSimilarity].
//  3. Phonetic: whole-name sound-alike codes are identical, fixed
//     confidence 0.85, not gated by the similarity threshold.
//  4. Partial: token containment overlap, gated by [Options.MinSimilarity].
//
// The engine is pure computation: it takes an immutable device snapshot on
// every call, never caches, and is safe for concurrent use.
package match

// DeviceType classifies a controllable device. The set is open (callers may
// define additional types) but these cover the common hub inventory.
type DeviceType string

const (
	TypeLight       DeviceType = "light"
	TypeBlinds      DeviceType = "blinds"
	TypeOutlet      DeviceType = "outlet"
	TypeAirPurifier DeviceType = "air_purifier"
)

// Device is one entry of a hub device snapshot. The engine only reads it;
// snapshots are produced and owned by the hub registry.
type Device struct {
	// ID is the hub-assigned stable unique identifier.
	ID string

	// DisplayName is derived by the registry from the user's custom name,
	// falling back to the model name, falling back to "{type}_{id}".
	DisplayName string

	// Type classifies the device.
	Type DeviceType

	// Reachable reports hub connectivity. Informational only; the engine
	// does not filter on it.
	Reachable bool
}

// Method identifies which strategy produced a match.
type Method string

const (
	MethodExact    Method = "exact"
	MethodFuzzy    Method = "fuzzy"
	MethodPhonetic Method = "phonetic"
	MethodPartial  Method = "partial"
)

// Options tunes the matching strategies. Use [DefaultOptions] as a starting
// point; a zero Options accepts fuzzy matches of any quality and disables
// the phonetic and partial strategies.
type Options struct {
	// MinSimilarity is the threshold applied to fuzzy and partial scores.
	// Exact and phonetic matches are not gated by it.
	MinSimilarity float64

	// EnablePhonetic enables the sound-alike strategy.
	EnablePhonetic bool

	// EnablePartialMatch enables the token-overlap strategy.
	EnablePartialMatch bool

	// StrictMode restricts matching to the exact and fuzzy strategies,
	// regardless of EnablePhonetic and EnablePartialMatch. Use it when a
	// wrong match is worse than no match (e.g. destructive actions).
	StrictMode bool
}

// DefaultOptions returns the standard matching configuration: similarity
// threshold 0.6 with all strategies enabled.
func DefaultOptions() Options {
	return Options{
		MinSimilarity:      0.6,
		EnablePhonetic:     true,
		EnablePartialMatch: true,
	}
}

// Result is a single resolved match. Confidence is always in [0, 1] and is
// 1.0 exactly when Method is [MethodExact].
type Result struct {
	// Device is the matched snapshot entry.
	Device Device

	// Method identifies the strategy that produced this match.
	Method Method

	// Confidence scores match strength in [0, 1].
	Confidence float64

	// MatchedVariant is the surface form of the device name that produced
	// the match (may differ from DisplayName, e.g. an abbreviation).
	MatchedVariant string

	// OriginalName is the device's display name, for presentation.
	OriginalName string
}
