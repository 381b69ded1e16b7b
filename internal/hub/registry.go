package hub

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/voxhaus/voxhaus/internal/match"
	"github.com/voxhaus/voxhaus/internal/observe"
)

// DeviceLister is the part of the hub API the registry needs. *Client
// implements it; tests inject fakes.
type DeviceLister interface {
	Devices(ctx context.Context) ([]DeviceState, error)
}

// Registry owns the authoritative device map. It is refreshed from the hub
// (periodically or on demand) and updated in place by the event stream; the
// resolution engine never sees it directly: every call gets an immutable
// [Registry.Snapshot] instead, so matching stays pure while hub connectivity
// churns underneath.
type Registry struct {
	lister  DeviceLister
	metrics *observe.Metrics

	mu      sync.RWMutex
	devices map[string]DeviceState
}

// RegistryOption configures a [Registry].
type RegistryOption func(*Registry)

// WithRegistryMetrics sets the metrics instance used to maintain the tracked
// device gauge. Default: [observe.DefaultMetrics].
func WithRegistryMetrics(m *observe.Metrics) RegistryOption {
	return func(r *Registry) {
		r.metrics = m
	}
}

// NewRegistry creates an empty registry backed by the given lister. Call
// [Registry.Refresh] (or start [Registry.Run]) to populate it.
func NewRegistry(lister DeviceLister, opts ...RegistryOption) *Registry {
	r := &Registry{
		lister:  lister,
		devices: make(map[string]DeviceState),
	}
	for _, o := range opts {
		o(r)
	}
	if r.metrics == nil {
		r.metrics = observe.DefaultMetrics()
	}
	return r
}

// Refresh replaces the registry contents with the hub's current device list.
func (r *Registry) Refresh(ctx context.Context) error {
	states, err := r.lister.Devices(ctx)
	if err != nil {
		return fmt.Errorf("registry: refresh: %w", err)
	}

	next := make(map[string]DeviceState, len(states))
	for _, s := range states {
		next[s.ID] = s
	}

	r.mu.Lock()
	delta := len(next) - len(r.devices)
	r.devices = next
	r.mu.Unlock()

	if delta != 0 {
		r.metrics.TrackedDevices.Add(ctx, int64(delta))
	}

	slog.Debug("device registry refreshed", "devices", len(states))
	return nil
}

// Run refreshes the registry on the given interval until ctx is cancelled.
// Refresh failures are logged and retried on the next tick; the previous
// snapshot stays valid in between.
func (r *Registry) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := r.Refresh(ctx); err != nil {
				slog.Warn("device registry refresh failed", "err", err)
			}
		}
	}
}

// Apply merges a single device state change into the registry. Used by the
// event stream for deviceStateChanged events.
func (r *Registry) Apply(state DeviceState) {
	if state.ID == "" {
		return
	}
	r.mu.Lock()
	_, known := r.devices[state.ID]
	r.devices[state.ID] = state
	r.mu.Unlock()

	if !known {
		r.metrics.TrackedDevices.Add(context.Background(), 1)
	}
}

// Remove deletes a device from the registry (deviceRemoved events).
func (r *Registry) Remove(id string) {
	r.mu.Lock()
	_, known := r.devices[id]
	delete(r.devices, id)
	r.mu.Unlock()

	if known {
		r.metrics.TrackedDevices.Add(context.Background(), -1)
	}
}

// Get returns the current state of one device.
func (r *Registry) Get(id string) (DeviceState, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.devices[id]
	return s, ok
}

// Snapshot returns an immutable copy of the registry as resolution-engine
// devices, sorted by ID so iteration order is deterministic. The caller owns
// the returned slice.
func (r *Registry) Snapshot() []match.Device {
	r.mu.RLock()
	out := make([]match.Device, 0, len(r.devices))
	for _, s := range r.devices {
		out = append(out, match.Device{
			ID:          s.ID,
			DisplayName: DisplayName(s),
			Type:        match.DeviceType(s.Type),
			Reachable:   s.Reachable,
		})
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Len returns the number of devices currently known.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.devices)
}

// DisplayName derives the presentable name for a device: the user's custom
// name when set, the model name otherwise, and "{type}_{id}" as the last
// resort for unnamed devices.
func DisplayName(s DeviceState) string {
	if s.CustomName != "" {
		return s.CustomName
	}
	if s.Model != "" {
		return s.Model
	}
	return s.Type + "_" + s.ID
}
