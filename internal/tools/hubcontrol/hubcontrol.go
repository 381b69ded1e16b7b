// Package hubcontrol provides the "hub_control" tool: the LLM-facing entry
// point for switching, dimming, and coloring apartment devices.
//
// Device names arriving here come from voice transcription and LLM rephrasing,
// so every name is resolved through the fuzzy matching engine rather than
// compared literally. Unresolvable names produce "did you mean ...?"
// suggestions in the tool result so the model can ask the user instead of
// guessing.
package hubcontrol

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/voxhaus/voxhaus/internal/hub"
	"github.com/voxhaus/voxhaus/internal/match"
	"github.com/voxhaus/voxhaus/internal/observe"
	"github.com/voxhaus/voxhaus/internal/tools"
	"github.com/voxhaus/voxhaus/pkg/provider/llm"
)

// maxSuggestions bounds the "did you mean" list in tool results.
const maxSuggestions = 3

// maxSearchResults bounds the search_devices result list.
const maxSearchResults = 5

// DeviceSource yields the current device snapshot. *hub.Registry implements it.
type DeviceSource interface {
	Snapshot() []match.Device
}

// CommandApplier fans a command out to a device set. *hub.Controller
// implements it.
type CommandApplier interface {
	Apply(ctx context.Context, devices []match.Device, cmd hub.Command) (hub.Report, error)
}

// controlArgs is the JSON-decoded input for the "hub_control" tool.
type controlArgs struct {
	Action          string   `json:"action"`
	DeviceName      string   `json:"deviceName,omitempty"`
	DeviceType      string   `json:"deviceType,omitempty"`
	State           *bool    `json:"state,omitempty"`
	Brightness      *int     `json:"brightness,omitempty"`
	ColorHue        *float64 `json:"colorHue,omitempty"`
	ColorSaturation *float64 `json:"colorSaturation,omitempty"`
	Room            string   `json:"room,omitempty"`
	ExcludeDevices  []string `json:"excludeDevices,omitempty"`
	Query           string   `json:"query,omitempty"`
}

// deviceInfo is the device shape embedded in tool results.
type deviceInfo struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Type      string `json:"type"`
	Reachable bool   `json:"reachable"`
}

// controlResult is the JSON-encoded output for control actions.
type controlResult struct {
	OK          bool         `json:"ok"`
	Message     string       `json:"message"`
	Devices     []deviceInfo `json:"devices,omitempty"`
	Suggestions []deviceInfo `json:"suggestions,omitempty"`
}

// searchResult is one entry of the search_devices output.
type searchResult struct {
	deviceInfo
	Confidence float64 `json:"confidence"`
	Method     string  `json:"method"`
}

// handler carries the collaborators shared by all hub_control actions.
type handler struct {
	source  DeviceSource
	applier CommandApplier
	opts    match.Options
	metrics *observe.Metrics
}

// Option configures the hub_control tool.
type Option func(*handler)

// WithMetrics sets the metrics instance used to count resolution attempts.
// Default: [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(h *handler) {
		h.metrics = m
	}
}

// Tools returns the hub_control tool wired to the given device source and
// command applier. opts controls the fuzzy resolution behaviour.
func Tools(source DeviceSource, applier CommandApplier, opts match.Options, topts ...Option) []tools.Tool {
	h := &handler{source: source, applier: applier, opts: opts}
	for _, o := range topts {
		o(h)
	}
	if h.metrics == nil {
		h.metrics = observe.DefaultMetrics()
	}
	return []tools.Tool{
		{
			Definition: llm.ToolDefinition{
				Name: "hub_control",
				Description: "Control apartment devices through the smart home hub: switch devices on or off, " +
					"set light brightness and color, control every device in a room at once (optionally excluding " +
					"some devices), search for devices by approximate name, or list all known devices. Device names " +
					"are matched fuzzily, so slightly misheard or abbreviated names still resolve.",
				Parameters: map[string]any{
					"type": "object",
					"properties": map[string]any{
						"action": map[string]any{
							"type":        "string",
							"description": "What to do.",
							"enum": []string{
								"control_device", "set_brightness", "set_color",
								"control_room_devices", "search_devices", "list_devices",
							},
						},
						"deviceName": map[string]any{
							"type":        "string",
							"description": "Device name as the user said it. Required for control_device, set_brightness, set_color.",
						},
						"deviceType": map[string]any{
							"type":        "string",
							"description": "Optional device type filter.",
							"enum":        []string{"light", "blinds", "outlet", "airPurifier"},
						},
						"state": map[string]any{
							"type":        "boolean",
							"description": "true to switch on, false to switch off. Required for control_device and control_room_devices.",
						},
						"brightness": map[string]any{
							"type":        "integer",
							"description": "Brightness percentage 1-100. Required for set_brightness.",
						},
						"colorHue": map[string]any{
							"type":        "number",
							"description": "Color hue in degrees 0-360. Required for set_color.",
						},
						"colorSaturation": map[string]any{
							"type":        "number",
							"description": "Color saturation 0.0-1.0. Required for set_color.",
						},
						"room": map[string]any{
							"type":        "string",
							"description": "Room name for control_room_devices, e.g. \"bedroom\" or \"living room\".",
						},
						"excludeDevices": map[string]any{
							"type":        "array",
							"items":       map[string]any{"type": "string"},
							"description": "Device names to leave untouched during control_room_devices.",
						},
						"query": map[string]any{
							"type":        "string",
							"description": "Approximate device name for search_devices.",
						},
					},
					"required": []string{"action"},
				},
			},
			Handler: h.handle,
		},
	}
}

// handle dispatches a hub_control call to the requested action.
func (h *handler) handle(ctx context.Context, args string) (string, error) {
	var a controlArgs
	if err := json.Unmarshal([]byte(args), &a); err != nil {
		return "", fmt.Errorf("hubcontrol: failed to parse arguments: %w", err)
	}

	switch a.Action {
	case "control_device":
		return h.controlDevice(ctx, a)
	case "set_brightness":
		return h.setBrightness(ctx, a)
	case "set_color":
		return h.setColor(ctx, a)
	case "control_room_devices":
		return h.controlRoom(ctx, a)
	case "search_devices":
		return h.searchDevices(a)
	case "list_devices":
		return h.listDevices()
	default:
		return "", fmt.Errorf("hubcontrol: unknown action %q", a.Action)
	}
}

// controlDevice switches a single fuzzily-resolved device on or off.
func (h *handler) controlDevice(ctx context.Context, a controlArgs) (string, error) {
	if a.DeviceName == "" {
		return "", errors.New("hubcontrol: control_device requires deviceName")
	}
	if a.State == nil {
		return "", errors.New("hubcontrol: control_device requires state")
	}

	snapshot := h.source.Snapshot()
	r := h.resolve(ctx, a.DeviceName, snapshot, match.DeviceType(a.DeviceType))
	if r == nil {
		return h.unresolved(a.DeviceName, snapshot, match.DeviceType(a.DeviceType))
	}

	return h.apply(ctx, []match.Device{r.Device}, hub.Command{On: a.State})
}

// setBrightness sets the light level of a single light.
func (h *handler) setBrightness(ctx context.Context, a controlArgs) (string, error) {
	if a.DeviceName == "" {
		return "", errors.New("hubcontrol: set_brightness requires deviceName")
	}
	if a.Brightness == nil {
		return "", errors.New("hubcontrol: set_brightness requires brightness")
	}
	if *a.Brightness < 1 || *a.Brightness > 100 {
		return "", fmt.Errorf("hubcontrol: brightness must be 1-100, got %d", *a.Brightness)
	}

	snapshot := h.source.Snapshot()
	r := h.resolve(ctx, a.DeviceName, snapshot, match.TypeLight)
	if r == nil {
		return h.unresolved(a.DeviceName, snapshot, match.TypeLight)
	}

	on := true
	return h.apply(ctx, []match.Device{r.Device}, hub.Command{On: &on, LightLevel: a.Brightness})
}

// setColor sets the hue and saturation of a single color-capable light.
func (h *handler) setColor(ctx context.Context, a controlArgs) (string, error) {
	if a.DeviceName == "" {
		return "", errors.New("hubcontrol: set_color requires deviceName")
	}
	if a.ColorHue == nil || a.ColorSaturation == nil {
		return "", errors.New("hubcontrol: set_color requires colorHue and colorSaturation")
	}
	if *a.ColorHue < 0 || *a.ColorHue > 360 {
		return "", fmt.Errorf("hubcontrol: colorHue must be 0-360, got %g", *a.ColorHue)
	}
	if *a.ColorSaturation < 0 || *a.ColorSaturation > 1 {
		return "", fmt.Errorf("hubcontrol: colorSaturation must be 0.0-1.0, got %g", *a.ColorSaturation)
	}

	snapshot := h.source.Snapshot()
	r := h.resolve(ctx, a.DeviceName, snapshot, match.TypeLight)
	if r == nil {
		return h.unresolved(a.DeviceName, snapshot, match.TypeLight)
	}

	return h.apply(ctx, []match.Device{r.Device}, hub.Command{
		ColorHue:        a.ColorHue,
		ColorSaturation: a.ColorSaturation,
	})
}

// controlRoom switches every device in a room, honoring exclusions.
func (h *handler) controlRoom(ctx context.Context, a controlArgs) (string, error) {
	if a.Room == "" {
		return "", errors.New("hubcontrol: control_room_devices requires room")
	}
	if a.State == nil {
		return "", errors.New("hubcontrol: control_room_devices requires state")
	}

	snapshot := h.source.Snapshot()
	candidates := match.FindDevicesByRoom(a.Room, snapshot, match.DeviceType(a.DeviceType))
	if len(candidates) == 0 {
		return marshalResult(controlResult{
			OK:      false,
			Message: fmt.Sprintf("no devices found in room %q", a.Room),
		})
	}

	remaining, err := match.ApplyExclusions(candidates, a.ExcludeDevices, snapshot, h.opts)
	if err != nil {
		if errors.Is(err, match.ErrNoDevicesRemain) {
			return marshalResult(controlResult{
				OK:      false,
				Message: fmt.Sprintf("every device in room %q was excluded; nothing to control", a.Room),
			})
		}
		return "", err
	}

	return h.apply(ctx, remaining, hub.Command{On: a.State})
}

// searchDevices returns ranked fuzzy matches for an approximate name.
func (h *handler) searchDevices(a controlArgs) (string, error) {
	if a.Query == "" {
		return "", errors.New("hubcontrol: search_devices requires query")
	}

	snapshot := h.source.Snapshot()
	matches := match.FindDeviceMatches(a.Query, snapshot, match.DeviceType(a.DeviceType), h.opts, maxSearchResults)

	out := make([]searchResult, 0, len(matches))
	for _, m := range matches {
		out = append(out, searchResult{
			deviceInfo: toInfo(m.Device),
			Confidence: m.Confidence,
			Method:     string(m.Method),
		})
	}
	res, err := json.Marshal(struct {
		Matches []searchResult `json:"matches"`
	}{Matches: out})
	if err != nil {
		return "", fmt.Errorf("hubcontrol: encode result: %w", err)
	}
	return string(res), nil
}

// listDevices dumps the current registry snapshot.
func (h *handler) listDevices() (string, error) {
	snapshot := h.source.Snapshot()
	out := make([]deviceInfo, 0, len(snapshot))
	for _, d := range snapshot {
		out = append(out, toInfo(d))
	}
	res, err := json.Marshal(struct {
		Devices []deviceInfo `json:"devices"`
	}{Devices: out})
	if err != nil {
		return "", fmt.Errorf("hubcontrol: encode result: %w", err)
	}
	return string(res), nil
}

// apply fans a command out and renders the report as a tool result.
func (h *handler) apply(ctx context.Context, devices []match.Device, cmd hub.Command) (string, error) {
	report, err := h.applier.Apply(ctx, devices, cmd)
	if err != nil {
		return "", fmt.Errorf("hubcontrol: %w", err)
	}

	infos := make([]deviceInfo, 0, len(report.Succeeded()))
	for _, d := range report.Succeeded() {
		infos = append(infos, toInfo(d))
	}
	return marshalResult(controlResult{
		OK:      report.AllOK(),
		Message: report.Summary(),
		Devices: infos,
	})
}

// resolve runs the name through the matching engine and counts the attempt.
// Returns nil when nothing clears the confidence threshold.
func (h *handler) resolve(ctx context.Context, name string, snapshot []match.Device, typeFilter match.DeviceType) *match.Result {
	r := match.FindBestDeviceMatch(name, snapshot, typeFilter, h.opts)
	if r == nil || r.Confidence < h.opts.MinSimilarity {
		h.metrics.RecordResolution(ctx, "none", "unresolved")
		return nil
	}
	h.metrics.RecordResolution(ctx, string(r.Method), "resolved")
	return r
}

// unresolved renders a miss with loose suggestions so the model can ask the
// user instead of silently controlling the wrong device.
func (h *handler) unresolved(name string, snapshot []match.Device, typeFilter match.DeviceType) (string, error) {
	similar := match.FindSimilarDevices(name, snapshot, typeFilter, maxSuggestions)
	suggestions := make([]deviceInfo, 0, len(similar))
	for _, s := range similar {
		suggestions = append(suggestions, toInfo(s.Device))
	}
	return marshalResult(controlResult{
		OK:          false,
		Message:     fmt.Sprintf("no device matched %q", name),
		Suggestions: suggestions,
	})
}

func toInfo(d match.Device) deviceInfo {
	return deviceInfo{
		ID:        d.ID,
		Name:      d.DisplayName,
		Type:      string(d.Type),
		Reachable: d.Reachable,
	}
}

func marshalResult(r controlResult) (string, error) {
	res, err := json.Marshal(r)
	if err != nil {
		return "", fmt.Errorf("hubcontrol: encode result: %w", err)
	}
	return string(res), nil
}
