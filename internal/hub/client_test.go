package hub_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/voxhaus/voxhaus/internal/hub"
)

func TestClientDevices(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/devices" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer secret" {
			t.Errorf("Authorization = %q, want bearer token", got)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`[
			{"id":"abc123","deviceType":"light","isReachable":true,
			 "attributes":{"customName":"bedroom_bed","model":"TRADFRI bulb E27","isOn":true,"lightLevel":80}},
			{"id":"def456","deviceType":"outlet","isReachable":false,
			 "attributes":{"customName":"","model":"TRADFRI control outlet"}}
		]`))
	}))
	defer srv.Close()

	c, err := hub.NewClient(srv.URL, "secret")
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}

	devices, err := c.Devices(context.Background())
	if err != nil {
		t.Fatalf("Devices: %v", err)
	}
	if len(devices) != 2 {
		t.Fatalf("got %d devices, want 2", len(devices))
	}

	d := devices[0]
	if d.ID != "abc123" || d.Type != "light" || d.CustomName != "bedroom_bed" || !d.Reachable {
		t.Fatalf("first device decoded wrong: %+v", d)
	}
	if d.IsOn == nil || !*d.IsOn {
		t.Fatalf("IsOn = %v, want true", d.IsOn)
	}
	if d.LightLevel == nil || *d.LightLevel != 80 {
		t.Fatalf("LightLevel = %v, want 80", d.LightLevel)
	}
	if devices[1].IsOn != nil {
		t.Fatalf("absent isOn should decode to nil, got %v", *devices[1].IsOn)
	}
}

func TestClientDevicesErrorStatus(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	c, _ := hub.NewClient(srv.URL, "bad-token")
	if _, err := c.Devices(context.Background()); err == nil {
		t.Fatal("expected error on 401 response")
	}
}

func TestClientSetDeviceAttributes(t *testing.T) {
	t.Parallel()

	var gotBody []map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPatch {
			t.Errorf("method = %s, want PATCH", r.Method)
		}
		if r.URL.Path != "/devices/abc123" {
			t.Errorf("path = %q, want /devices/abc123", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Errorf("decode body: %v", err)
		}
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	c, _ := hub.NewClient(srv.URL, "secret")
	err := c.SetDeviceAttributes(context.Background(), "abc123", map[string]any{"isOn": false})
	if err != nil {
		t.Fatalf("SetDeviceAttributes: %v", err)
	}

	if len(gotBody) != 1 {
		t.Fatalf("body = %v, want single-element patch array", gotBody)
	}
	attrs, ok := gotBody[0]["attributes"].(map[string]any)
	if !ok || attrs["isOn"] != false {
		t.Fatalf("attributes = %v, want isOn=false", gotBody[0])
	}
}

func TestClientSetDeviceAttributesValidation(t *testing.T) {
	t.Parallel()

	c, _ := hub.NewClient("https://hub.local", "secret")
	if err := c.SetDeviceAttributes(context.Background(), "", map[string]any{"isOn": true}); err == nil {
		t.Fatal("expected error for empty device ID")
	}
	if err := c.SetDeviceAttributes(context.Background(), "abc", nil); err == nil {
		t.Fatal("expected error for empty attributes")
	}
}

func TestNewClientValidation(t *testing.T) {
	t.Parallel()

	if _, err := hub.NewClient("", "tok"); err == nil {
		t.Fatal("expected error for empty baseURL")
	}
	if _, err := hub.NewClient("https://hub.local", ""); err == nil {
		t.Fatal("expected error for empty token")
	}
}
