package hub

import (
	"context"
	"fmt"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/voxhaus/voxhaus/internal/match"
)

// controlConcurrency bounds the number of in-flight hub calls during a
// fan-out. Home hubs throttle aggressively above a handful of parallel
// requests.
const controlConcurrency = 4

// DeviceSetter is the part of the hub API the controller needs. *Client
// implements it; tests inject fakes.
type DeviceSetter interface {
	SetDeviceAttributes(ctx context.Context, deviceID string, attrs map[string]any) error
}

// Command is one control action applied uniformly to a device set. Nil
// fields are left untouched on the device.
type Command struct {
	// On switches the device on or off.
	On *bool

	// LightLevel sets brightness in percent (1-100). Lights only.
	LightLevel *int

	// ColorHue sets the hue in degrees (0-360). Color lights only.
	ColorHue *float64

	// ColorSaturation sets saturation (0.0-1.0). Color lights only.
	ColorSaturation *float64

	// BlindsTarget sets the blinds position in percent (0 open, 100 closed).
	BlindsTarget *int
}

// attributes converts the command into the hub's attribute patch shape.
func (c Command) attributes() map[string]any {
	attrs := make(map[string]any, 3)
	if c.On != nil {
		attrs["isOn"] = *c.On
	}
	if c.LightLevel != nil {
		attrs["lightLevel"] = *c.LightLevel
	}
	if c.ColorHue != nil {
		attrs["colorHue"] = *c.ColorHue
	}
	if c.ColorSaturation != nil {
		attrs["colorSaturation"] = *c.ColorSaturation
	}
	if c.BlindsTarget != nil {
		attrs["blindsTargetLevel"] = *c.BlindsTarget
	}
	return attrs
}

// Outcome is the per-device result of a fan-out control action.
type Outcome struct {
	Device match.Device
	Err    error
}

// Report collects per-device outcomes of one control fan-out. The policy is
// deliberately partial-success: one unreachable bulb must not abort "turn
// off all bedroom lights except the bed light" for the rest of the room.
type Report struct {
	Outcomes []Outcome
}

// Succeeded returns the devices that were controlled successfully.
func (r Report) Succeeded() []match.Device {
	var out []match.Device
	for _, o := range r.Outcomes {
		if o.Err == nil {
			out = append(out, o.Device)
		}
	}
	return out
}

// Failed returns the outcomes that errored.
func (r Report) Failed() []Outcome {
	var out []Outcome
	for _, o := range r.Outcomes {
		if o.Err != nil {
			out = append(out, o)
		}
	}
	return out
}

// AllOK reports whether every device was controlled successfully.
func (r Report) AllOK() bool {
	return len(r.Failed()) == 0
}

// Summary renders a short human-readable description of the report, suitable
// for a voice response.
func (r Report) Summary() string {
	failed := r.Failed()
	if len(failed) == 0 {
		return fmt.Sprintf("controlled %d device(s)", len(r.Outcomes))
	}
	names := make([]string, 0, len(failed))
	for _, o := range failed {
		names = append(names, o.Device.DisplayName)
	}
	return fmt.Sprintf("controlled %d of %d device(s); failed: %s",
		len(r.Outcomes)-len(failed), len(r.Outcomes), strings.Join(names, ", "))
}

// Controller fans a [Command] out to a resolved device set.
type Controller struct {
	setter DeviceSetter
}

// NewController creates a controller issuing device calls through setter.
func NewController(setter DeviceSetter) *Controller {
	return &Controller{setter: setter}
}

// Apply issues cmd to every device concurrently (bounded) and returns the
// per-device report. The returned error is non-nil only when cmd carries no
// attributes or devices is empty; per-device failures are reported in the
// Report, not as an error.
func (c *Controller) Apply(ctx context.Context, devices []match.Device, cmd Command) (Report, error) {
	if len(devices) == 0 {
		return Report{}, fmt.Errorf("hub: control: no devices to control")
	}
	attrs := cmd.attributes()
	if len(attrs) == 0 {
		return Report{}, fmt.Errorf("hub: control: command has no attributes")
	}

	outcomes := make([]Outcome, len(devices))

	var g errgroup.Group
	g.SetLimit(controlConcurrency)
	for i, d := range devices {
		g.Go(func() error {
			outcomes[i] = Outcome{
				Device: d,
				Err:    c.setter.SetDeviceAttributes(ctx, d.ID, attrs),
			}
			return nil
		})
	}
	// Goroutines never return errors; Wait is purely a join.
	_ = g.Wait()

	return Report{Outcomes: outcomes}, nil
}
