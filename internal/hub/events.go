package hub

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/coder/websocket"

	"github.com/voxhaus/voxhaus/internal/observe"
)

const (
	// reconnectBase is the initial reconnect delay; doubles per attempt.
	reconnectBase = time.Second

	// reconnectMax caps the reconnect backoff.
	reconnectMax = 30 * time.Second
)

// backoff tracks the reconnect delay across failed websocket sessions.
// A successful connection resets it so that a hub restart hours later is
// retried at the base delay again, not at the accumulated maximum.
type backoff struct {
	delay time.Duration
}

// next returns the delay to wait before the upcoming attempt and advances
// the schedule.
func (b *backoff) next() time.Duration {
	if b.delay < reconnectBase {
		b.delay = reconnectBase
	}
	d := b.delay
	b.delay *= 2
	if b.delay > reconnectMax {
		b.delay = reconnectMax
	}
	return d
}

// reset returns the schedule to the base delay.
func (b *backoff) reset() {
	b.delay = reconnectBase
}

// event is the wire shape of a hub websocket event.
type event struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// EventStream keeps the registry current between refreshes by subscribing to
// the hub's websocket event feed.
type EventStream struct {
	url      string
	token    string
	registry *Registry
	metrics  *observe.Metrics
}

// StreamOption configures an [EventStream].
type StreamOption func(*EventStream)

// WithStreamMetrics sets the metrics instance used to count hub events.
// Default: [observe.DefaultMetrics].
func WithStreamMetrics(m *observe.Metrics) StreamOption {
	return func(s *EventStream) {
		s.metrics = m
	}
}

// NewEventStream creates a stream for the hub websocket endpoint (e.g.
// "wss://192.168.1.20:8443/v1") feeding the given registry.
func NewEventStream(url, token string, registry *Registry, opts ...StreamOption) *EventStream {
	s := &EventStream{url: url, token: token, registry: registry}
	for _, o := range opts {
		o(s)
	}
	if s.metrics == nil {
		s.metrics = observe.DefaultMetrics()
	}
	return s
}

// Run connects to the hub event feed and applies device state changes to the
// registry until ctx is cancelled. Connection failures reconnect with
// exponential backoff that resets once a session connects; a periodic
// registry refresh (see [Registry.Run]) covers any events missed while
// disconnected.
func (s *EventStream) Run(ctx context.Context) {
	var b backoff
	for {
		connected, err := s.consume(ctx)
		if connected {
			b.reset()
		}
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			delay := b.next()
			slog.Warn("hub event stream disconnected", "err", err, "retry_in", delay)

			select {
			case <-ctx.Done():
				return
			case <-time.After(delay):
			}
		}
	}
}

// consume runs one websocket session: dial, then read events until error or
// cancellation. connected reports whether the dial succeeded, regardless of
// how the session ended.
func (s *EventStream) consume(ctx context.Context) (connected bool, err error) {
	conn, _, err := websocket.Dial(ctx, s.url, &websocket.DialOptions{
		HTTPHeader: map[string][]string{
			"Authorization": {"Bearer " + s.token},
		},
	})
	if err != nil {
		return false, err
	}
	defer conn.Close(websocket.StatusNormalClosure, "done")

	slog.Info("hub event stream connected", "url", s.url)

	for {
		_, msg, err := conn.Read(ctx)
		if err != nil {
			return true, err
		}
		s.handle(ctx, msg)
	}
}

// handle decodes one event frame and applies it to the registry. Unknown
// event types are counted but otherwise ignored; malformed frames are
// dropped.
func (s *EventStream) handle(ctx context.Context, msg []byte) {
	var ev event
	if err := json.Unmarshal(msg, &ev); err != nil {
		return
	}
	if ev.Type != "" {
		s.metrics.RecordHubEvent(ctx, ev.Type)
	}

	switch ev.Type {
	case "deviceStateChanged", "deviceAdded":
		var env deviceEnvelope
		if err := json.Unmarshal(ev.Data, &env); err != nil || env.ID == "" {
			return
		}
		s.registry.Apply(env.state())

	case "deviceRemoved":
		var env deviceEnvelope
		if err := json.Unmarshal(ev.Data, &env); err != nil || env.ID == "" {
			return
		}
		s.registry.Remove(env.ID)
	}
}
