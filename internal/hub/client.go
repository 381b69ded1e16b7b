// Package hub talks to the smart-home hub: a REST client for device listing
// and control, a websocket event stream for state changes, a registry that
// owns the authoritative device map and hands out immutable snapshots for
// name resolution, and a controller that fans control commands out to a
// resolved device set.
package hub

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// DeviceState is the hub's view of one device, as returned by the REST API
// and updated by the event stream.
type DeviceState struct {
	ID         string
	Type       string
	CustomName string
	Model      string
	Reachable  bool

	// Optional attributes; nil when the device does not expose them.
	IsOn            *bool
	LightLevel      *int
	ColorHue        *float64
	ColorSaturation *float64
	BlindsTarget    *int
}

// deviceEnvelope is the wire shape of a device in hub API responses and
// deviceStateChanged events.
type deviceEnvelope struct {
	ID          string           `json:"id"`
	DeviceType  string           `json:"deviceType"`
	IsReachable bool             `json:"isReachable"`
	Attributes  deviceAttributes `json:"attributes"`
}

// deviceAttributes is the attributes object of a hub device. Pointer fields
// distinguish "absent" from zero values.
type deviceAttributes struct {
	CustomName      string   `json:"customName"`
	Model           string   `json:"model"`
	IsOn            *bool    `json:"isOn,omitempty"`
	LightLevel      *int     `json:"lightLevel,omitempty"`
	ColorHue        *float64 `json:"colorHue,omitempty"`
	ColorSaturation *float64 `json:"colorSaturation,omitempty"`
	BlindsTarget    *int     `json:"blindsTargetLevel,omitempty"`
}

func (e deviceEnvelope) state() DeviceState {
	return DeviceState{
		ID:              e.ID,
		Type:            e.DeviceType,
		CustomName:      e.Attributes.CustomName,
		Model:           e.Attributes.Model,
		Reachable:       e.IsReachable,
		IsOn:            e.Attributes.IsOn,
		LightLevel:      e.Attributes.LightLevel,
		ColorHue:        e.Attributes.ColorHue,
		ColorSaturation: e.Attributes.ColorSaturation,
		BlindsTarget:    e.Attributes.BlindsTarget,
	}
}

// Option is a functional option for configuring a [Client].
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client. Useful for tests and for
// callers that need custom transport settings.
func WithHTTPClient(c *http.Client) Option {
	return func(h *Client) {
		h.httpClient = c
	}
}

// WithInsecureTLS disables TLS certificate verification. Home hubs ship with
// self-signed certificates, so this is commonly required on the local LAN.
func WithInsecureTLS() Option {
	return func(h *Client) {
		h.httpClient = &http.Client{
			Timeout: h.httpClient.Timeout,
			Transport: &http.Transport{
				TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
			},
		}
	}
}

// WithTimeout sets the per-request HTTP timeout. Default 10s.
func WithTimeout(d time.Duration) Option {
	return func(h *Client) {
		h.httpClient.Timeout = d
	}
}

// Client is the REST client for the hub API. All methods are safe for
// concurrent use.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// NewClient creates a hub REST client. baseURL is the hub API root (e.g.
// "https://192.168.1.20:8443/v1") and token is the bearer token issued
// during hub pairing.
func NewClient(baseURL, token string, opts ...Option) (*Client, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("hub: baseURL must not be empty")
	}
	if token == "" {
		return nil, fmt.Errorf("hub: token must not be empty")
	}
	c := &Client{
		baseURL:    baseURL,
		token:      token,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
	for _, o := range opts {
		o(c)
	}
	return c, nil
}

// Devices fetches the full device list from the hub.
func (c *Client) Devices(ctx context.Context) ([]DeviceState, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/devices", nil)
	if err != nil {
		return nil, fmt.Errorf("hub: list devices: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("hub: list devices: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("hub: list devices: unexpected status %d", resp.StatusCode)
	}

	var envelopes []deviceEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&envelopes); err != nil {
		return nil, fmt.Errorf("hub: list devices decode: %w", err)
	}

	states := make([]DeviceState, 0, len(envelopes))
	for _, e := range envelopes {
		states = append(states, e.state())
	}
	return states, nil
}

// SetDeviceAttributes patches the given attributes onto one device. The hub
// expects a single-element array of attribute patches.
func (c *Client) SetDeviceAttributes(ctx context.Context, deviceID string, attrs map[string]any) error {
	if deviceID == "" {
		return fmt.Errorf("hub: set attributes: deviceID must not be empty")
	}
	if len(attrs) == 0 {
		return fmt.Errorf("hub: set attributes: no attributes given")
	}

	body, err := json.Marshal([]map[string]any{{"attributes": attrs}})
	if err != nil {
		return fmt.Errorf("hub: set attributes encode: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPatch, c.baseURL+"/devices/"+deviceID, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("hub: set attributes: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("hub: set attributes %s: %w", deviceID, err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusAccepted && resp.StatusCode != http.StatusNoContent {
		return fmt.Errorf("hub: set attributes %s: unexpected status %d", deviceID, resp.StatusCode)
	}
	return nil
}
