package hub_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/voxhaus/voxhaus/internal/hub"
	"github.com/voxhaus/voxhaus/internal/match"
)

// fakeSetter records attribute patches and fails for configured device IDs.
type fakeSetter struct {
	mu      sync.Mutex
	calls   map[string]map[string]any
	failing map[string]error
}

func newFakeSetter() *fakeSetter {
	return &fakeSetter{calls: make(map[string]map[string]any), failing: make(map[string]error)}
}

func (f *fakeSetter) SetDeviceAttributes(_ context.Context, deviceID string, attrs map[string]any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[deviceID] = attrs
	return f.failing[deviceID]
}

func lights(ids ...string) []match.Device {
	out := make([]match.Device, 0, len(ids))
	for _, id := range ids {
		out = append(out, match.Device{ID: id, DisplayName: id, Type: match.TypeLight, Reachable: true})
	}
	return out
}

func TestControllerApply(t *testing.T) {
	t.Parallel()

	setter := newFakeSetter()
	ctrl := hub.NewController(setter)

	on := false
	report, err := ctrl.Apply(context.Background(), lights("d1", "d2", "d3"), hub.Command{On: &on})
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if !report.AllOK() {
		t.Fatalf("report has failures: %+v", report.Failed())
	}
	if len(report.Succeeded()) != 3 {
		t.Fatalf("succeeded = %d, want 3", len(report.Succeeded()))
	}
	for _, id := range []string{"d1", "d2", "d3"} {
		attrs, ok := setter.calls[id]
		if !ok {
			t.Fatalf("device %s was not controlled", id)
		}
		if attrs["isOn"] != false {
			t.Fatalf("device %s attrs = %v, want isOn=false", id, attrs)
		}
	}
}

func TestControllerApplyPartialFailure(t *testing.T) {
	t.Parallel()

	setter := newFakeSetter()
	setter.failing["d2"] = errors.New("bulb unreachable")
	ctrl := hub.NewController(setter)

	on := true
	report, err := ctrl.Apply(context.Background(), lights("d1", "d2", "d3"), hub.Command{On: &on})
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}

	// One failing device must not abort the rest of the fan-out.
	if len(report.Succeeded()) != 2 {
		t.Fatalf("succeeded = %d, want 2", len(report.Succeeded()))
	}
	failed := report.Failed()
	if len(failed) != 1 || failed[0].Device.ID != "d2" {
		t.Fatalf("failed = %+v, want only d2", failed)
	}
	if !strings.Contains(report.Summary(), "2 of 3") {
		t.Fatalf("Summary() = %q, want partial-success wording", report.Summary())
	}
}

func TestControllerApplyValidation(t *testing.T) {
	t.Parallel()

	ctrl := hub.NewController(newFakeSetter())
	on := true

	if _, err := ctrl.Apply(context.Background(), nil, hub.Command{On: &on}); err == nil {
		t.Fatal("expected error for empty device set")
	}
	if _, err := ctrl.Apply(context.Background(), lights("d1"), hub.Command{}); err == nil {
		t.Fatal("expected error for empty command")
	}
}

func TestCommandAttributes(t *testing.T) {
	t.Parallel()

	setter := newFakeSetter()
	ctrl := hub.NewController(setter)

	on := true
	level := 60
	hue := 240.0
	sat := 0.8
	_, err := ctrl.Apply(context.Background(), lights("d1"), hub.Command{
		On: &on, LightLevel: &level, ColorHue: &hue, ColorSaturation: &sat,
	})
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}

	attrs := setter.calls["d1"]
	want := map[string]any{"isOn": true, "lightLevel": 60, "colorHue": 240.0, "colorSaturation": 0.8}
	for k, v := range want {
		if attrs[k] != v {
			t.Fatalf("attrs[%q] = %v, want %v", k, attrs[k], v)
		}
	}
	if _, blind := attrs["blindsTargetLevel"]; blind {
		t.Fatal("unset blinds target leaked into attributes")
	}
}
