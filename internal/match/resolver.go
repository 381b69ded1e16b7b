package match

import (
	"errors"
	"sort"
	"strings"
)

// ErrNoDevicesRemain is returned by [ApplyExclusions] when every candidate
// device was excluded and no controllable device is left.
var ErrNoDevicesRemain = errors.New("match: no controllable devices remain after exclusion")

// SuggestionMinSimilarity is the lowered threshold used by
// [FindSimilarDevices]. Suggestions are for disambiguation output only and
// must never trigger a control action, so recall beats precision here.
const SuggestionMinSimilarity = 0.3

// ExclusionConfidence is the minimum match confidence for an exclude name to
// actually remove a device in [ApplyExclusions]. Below it the exclude name is
// considered unresolved and ignored.
const ExclusionConfidence = 0.6

// FindBestDeviceMatch resolves inputName against the device snapshot and
// returns the strongest match, or nil when nothing qualifies.
//
// typeFilter, when non-empty, restricts candidates to that device type
// before matching. Exact matches dominate: when one or more devices match
// exactly, the exact match with the lexicographically lowest device ID is
// returned, so duplicate display names resolve deterministically regardless
// of snapshot order.
func FindBestDeviceMatch(inputName string, devices []Device, typeFilter DeviceType, opts Options) *Result {
	var best *Result
	var bestExact *Result

	for _, d := range devices {
		if typeFilter != "" && d.Type != typeFilter {
			continue
		}
		r := BestMatch(inputName, d, opts)
		if r == nil {
			continue
		}
		if r.Method == MethodExact {
			if bestExact == nil || r.Device.ID < bestExact.Device.ID {
				bestExact = r
			}
			continue
		}
		if best == nil || r.Confidence > best.Confidence {
			best = r
		}
	}

	if bestExact != nil {
		return bestExact
	}
	return best
}

// FindDeviceMatches resolves inputName against the snapshot and returns up
// to maxResults matches sorted by descending confidence. Only matches with
// confidence ≥ opts.MinSimilarity are kept. Each device appears at most
// once. The sort is stable on the original snapshot order, with equal
// confidences tied-broken by device ID for determinism.
func FindDeviceMatches(inputName string, devices []Device, typeFilter DeviceType, opts Options, maxResults int) []Result {
	if maxResults <= 0 {
		return nil
	}

	var results []Result
	for _, d := range devices {
		if typeFilter != "" && d.Type != typeFilter {
			continue
		}
		r := BestMatch(inputName, d, opts)
		if r == nil || r.Confidence < opts.MinSimilarity {
			continue
		}
		results = append(results, *r)
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].Confidence != results[j].Confidence {
			return results[i].Confidence > results[j].Confidence
		}
		return results[i].Device.ID < results[j].Device.ID
	})

	if len(results) > maxResults {
		results = results[:maxResults]
	}
	return results
}

// FindSimilarDevices returns loose suggestions for a name that failed to
// resolve, using [SuggestionMinSimilarity] instead of the caller's
// threshold. Intended purely for "did you mean ...?" output.
func FindSimilarDevices(inputName string, devices []Device, typeFilter DeviceType, maxResults int) []Result {
	opts := DefaultOptions()
	opts.MinSimilarity = SuggestionMinSimilarity
	return FindDeviceMatches(inputName, devices, typeFilter, opts, maxResults)
}

// FindDevicesByRoom returns every device whose display name belongs to the
// given room, for "all lights in <room>" phrasing. This is a deliberately
// simple prefix/substring check, not the fuzzy engine: the room string is
// normalized, the literal substrings "room", "lights", and "light" are
// stripped, and all whitespace is removed; a device matches when its
// normalized display name starts with "<room>_", starts with <room>, or
// contains <room>. No ranking, no confidence.
func FindDevicesByRoom(roomName string, devices []Device, typeFilter DeviceType) []Device {
	room := Normalize(roomName)
	room = strings.ReplaceAll(room, "room", "")
	room = strings.ReplaceAll(room, "lights", "")
	room = strings.ReplaceAll(room, "light", "")
	room = strings.ReplaceAll(room, " ", "")
	if room == "" {
		return nil
	}

	var out []Device
	for _, d := range devices {
		if typeFilter != "" && d.Type != typeFilter {
			continue
		}
		name := Normalize(d.DisplayName)
		if strings.HasPrefix(name, room+"_") || strings.HasPrefix(name, room) || strings.Contains(name, room) {
			out = append(out, d)
		}
	}
	return out
}

// ResolveDevice resolves idOrName to a single device: an exact identifier
// lookup first (respecting typeFilter), then fuzzy resolution via
// [FindBestDeviceMatch] with default options. Returns nil when neither path
// finds a device.
func ResolveDevice(idOrName string, devices []Device, typeFilter DeviceType) *Device {
	for i := range devices {
		if devices[i].ID != idOrName {
			continue
		}
		if typeFilter != "" && devices[i].Type != typeFilter {
			continue
		}
		d := devices[i]
		return &d
	}

	if r := FindBestDeviceMatch(idOrName, devices, typeFilter, DefaultOptions()); r != nil {
		d := r.Device
		return &d
	}
	return nil
}

// ApplyExclusions removes devices named by excludeNames from candidates
// before a batch control action ("turn off all bedroom lights except the
// bed light"). Each exclude name is resolved independently against the full
// snapshot, not just the candidates; a device is removed only when its match
// confidence exceeds [ExclusionConfidence]. Returns [ErrNoDevicesRemain]
// when nothing is left to control.
func ApplyExclusions(candidates []Device, excludeNames []string, snapshot []Device, opts Options) ([]Device, error) {
	excluded := make(map[string]struct{}, len(excludeNames))
	for _, name := range excludeNames {
		r := FindBestDeviceMatch(name, snapshot, "", opts)
		if r == nil || r.Confidence <= ExclusionConfidence {
			continue
		}
		excluded[r.Device.ID] = struct{}{}
	}

	remaining := make([]Device, 0, len(candidates))
	for _, d := range candidates {
		if _, skip := excluded[d.ID]; skip {
			continue
		}
		remaining = append(remaining, d)
	}
	if len(remaining) == 0 {
		return nil, ErrNoDevicesRemain
	}
	return remaining, nil
}
