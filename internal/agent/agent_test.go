package agent_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/voxhaus/voxhaus/internal/agent"
	"github.com/voxhaus/voxhaus/internal/history"
	"github.com/voxhaus/voxhaus/internal/match"
	"github.com/voxhaus/voxhaus/internal/observe"
	"github.com/voxhaus/voxhaus/internal/tools"
	"github.com/voxhaus/voxhaus/pkg/provider/llm"
)

// scriptedProvider replays canned responses and records incoming requests.
type scriptedProvider struct {
	responses []*llm.CompletionResponse
	requests  []llm.CompletionRequest
	err       error
}

func (p *scriptedProvider) Complete(_ context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	p.requests = append(p.requests, req)
	if p.err != nil {
		return nil, p.err
	}
	if len(p.responses) == 0 {
		return &llm.CompletionResponse{Content: "done"}, nil
	}
	resp := p.responses[0]
	p.responses = p.responses[1:]
	return resp, nil
}

// fixedSource serves a static snapshot.
type fixedSource struct {
	devices []match.Device
}

func (f *fixedSource) Snapshot() []match.Device { return f.devices }

func testSource() *fixedSource {
	return &fixedSource{devices: []match.Device{
		{ID: "d1", DisplayName: "Kitchen Light", Type: match.TypeLight, Reachable: true},
		{ID: "d2", DisplayName: "Hallway Outlet", Type: match.TypeOutlet, Reachable: false},
	}}
}

// echoTool records its arguments and returns a fixed result.
func echoTool(name string, out string, calls *[]string) tools.Tool {
	return tools.Tool{
		Definition: llm.ToolDefinition{Name: name, Description: "test tool"},
		Handler: func(_ context.Context, args string) (string, error) {
			*calls = append(*calls, args)
			return out, nil
		},
	}
}

func TestChat_PlainAnswer(t *testing.T) {
	t.Parallel()

	provider := &scriptedProvider{responses: []*llm.CompletionResponse{
		{Content: "The kitchen light is already on."},
	}}
	store := history.NewMemStore()
	a := agent.New(provider, testSource(), store, nil)

	got, err := a.Chat(context.Background(), "s1", "is the kitchen light on?")
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if got.Text != "The kitchen light is already on." {
		t.Errorf("unexpected answer %q", got.Text)
	}
	if len(got.ToolCalls) != 0 {
		t.Errorf("expected no tool calls, got %+v", got.ToolCalls)
	}

	entries, err := store.Recent(context.Background(), "s1", 0)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(entries) != 2 || entries[0].Role != "user" || entries[1].Role != "assistant" {
		t.Errorf("expected user+assistant turns recorded, got %+v", entries)
	}
}

func TestChat_SystemPromptCarriesInventory(t *testing.T) {
	t.Parallel()

	provider := &scriptedProvider{responses: []*llm.CompletionResponse{{Content: "ok"}}}
	a := agent.New(provider, testSource(), history.NewMemStore(), nil)

	if _, err := a.Chat(context.Background(), "s1", "hello"); err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if len(provider.requests) != 1 {
		t.Fatalf("expected 1 completion, got %d", len(provider.requests))
	}
	sp := provider.requests[0].SystemPrompt
	if !strings.Contains(sp, "Kitchen Light") || !strings.Contains(sp, "unreachable") {
		t.Errorf("system prompt missing device inventory:\n%s", sp)
	}
}

func TestChat_ToolLoop(t *testing.T) {
	t.Parallel()

	provider := &scriptedProvider{responses: []*llm.CompletionResponse{
		{ToolCalls: []llm.ToolCall{{
			ID:        "call_1",
			Name:      "hub_control",
			Arguments: `{"action":"control_device","deviceName":"kitchen light","state":true}`,
		}}},
		{Content: "Done, the kitchen light is on."},
	}}

	var calls []string
	tool := echoTool("hub_control", `{"ok":true,"message":"controlled 1 device(s)"}`, &calls)
	store := history.NewMemStore()
	a := agent.New(provider, testSource(), store, []tools.Tool{tool})

	got, err := a.Chat(context.Background(), "s1", "turn on the kitchen light")
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if got.Text != "Done, the kitchen light is on." {
		t.Errorf("unexpected answer %q", got.Text)
	}
	if len(calls) != 1 || !strings.Contains(calls[0], "control_device") {
		t.Errorf("expected one tool call with control_device args, got %v", calls)
	}
	if len(got.ToolCalls) != 1 || got.ToolCalls[0].Name != "hub_control" {
		t.Errorf("expected reply to carry the hub_control call, got %+v", got.ToolCalls)
	}
	if !strings.Contains(got.ToolCalls[0].Result, "controlled 1") {
		t.Errorf("tool result missing from reply: %+v", got.ToolCalls[0])
	}

	// The second completion must see the tool result.
	if len(provider.requests) != 2 {
		t.Fatalf("expected 2 completions, got %d", len(provider.requests))
	}
	last := provider.requests[1].Messages
	found := false
	for _, m := range last {
		if m.Role == "tool" && m.ToolCallID == "call_1" && strings.Contains(m.Content, "controlled 1") {
			found = true
		}
	}
	if !found {
		t.Error("expected tool result message in second completion request")
	}

	// Tool turn lands in history.
	entries, _ := store.Recent(context.Background(), "s1", 0)
	var toolTurns int
	for _, e := range entries {
		if e.Role == "tool" && e.ToolName == "hub_control" {
			toolTurns++
		}
	}
	if toolTurns != 1 {
		t.Errorf("expected 1 recorded tool turn, got %d", toolTurns)
	}
}

func TestChat_ToolFailureReportedToModel(t *testing.T) {
	t.Parallel()

	provider := &scriptedProvider{responses: []*llm.CompletionResponse{
		{ToolCalls: []llm.ToolCall{{ID: "call_1", Name: "hub_control", Arguments: `{}`}}},
		{Content: "Sorry, that failed."},
	}}

	tool := tools.Tool{
		Definition: llm.ToolDefinition{Name: "hub_control"},
		Handler: func(context.Context, string) (string, error) {
			return "", errors.New("hub unreachable")
		},
	}
	a := agent.New(provider, testSource(), history.NewMemStore(), []tools.Tool{tool})

	got, err := a.Chat(context.Background(), "s1", "turn on the kitchen light")
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if got.Text != "Sorry, that failed." {
		t.Errorf("unexpected answer %q", got.Text)
	}

	var sawError bool
	for _, m := range provider.requests[1].Messages {
		if m.Role == "tool" && strings.Contains(m.Content, "hub unreachable") {
			sawError = true
		}
	}
	if !sawError {
		t.Error("expected tool error to be reported back to the model")
	}
}

func TestChat_UnknownToolReported(t *testing.T) {
	t.Parallel()

	provider := &scriptedProvider{responses: []*llm.CompletionResponse{
		{ToolCalls: []llm.ToolCall{{ID: "call_1", Name: "open_pod_bay_doors", Arguments: `{}`}}},
		{Content: "I cannot do that."},
	}}
	a := agent.New(provider, testSource(), history.NewMemStore(), nil)

	if _, err := a.Chat(context.Background(), "s1", "open the pod bay doors"); err != nil {
		t.Fatalf("Chat: %v", err)
	}

	var sawUnknown bool
	for _, m := range provider.requests[1].Messages {
		if m.Role == "tool" && strings.Contains(m.Content, "unknown tool") {
			sawUnknown = true
		}
	}
	if !sawUnknown {
		t.Error("expected unknown-tool result message")
	}
}

func TestChat_ToolLoopBounded(t *testing.T) {
	t.Parallel()

	looping := &loopingProvider{}

	var calls []string
	tool := echoTool("hub_control", `{"ok":true}`, &calls)
	a := agent.New(looping, testSource(), history.NewMemStore(), []tools.Tool{tool})

	if _, err := a.Chat(context.Background(), "s1", "loop forever"); err == nil {
		t.Fatal("expected error when the tool loop never terminates")
	}
}

// loopingProvider always responds with a tool call.
type loopingProvider struct{}

func (p *loopingProvider) Complete(context.Context, llm.CompletionRequest) (*llm.CompletionResponse, error) {
	return &llm.CompletionResponse{
		ToolCalls: []llm.ToolCall{{ID: "call_n", Name: "hub_control", Arguments: `{}`}},
	}, nil
}

func TestChat_EmptyText(t *testing.T) {
	t.Parallel()

	a := agent.New(&scriptedProvider{}, testSource(), history.NewMemStore(), nil)
	if _, err := a.Chat(context.Background(), "s1", "   "); err == nil {
		t.Fatal("expected error for empty text")
	}
}

func TestChat_ProviderError(t *testing.T) {
	t.Parallel()

	a := agent.New(&scriptedProvider{err: errors.New("rate limited")}, testSource(), history.NewMemStore(), nil)
	if _, err := a.Chat(context.Background(), "s1", "hello"); err == nil {
		t.Fatal("expected provider error to surface")
	}
}

func TestChat_CountsTurnsAndSessions(t *testing.T) {
	t.Parallel()

	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })

	m, err := observe.NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}

	provider := &scriptedProvider{}
	a := agent.New(provider, testSource(), history.NewMemStore(), nil, agent.WithMetrics(m))
	ctx := context.Background()

	// Two turns in the kitchen, one in the bedroom.
	for _, turn := range []struct{ session, text string }{
		{"room:kitchen", "turn on the light"},
		{"room:kitchen", "and dim it"},
		{"room:bedroom", "close the blinds"},
	} {
		if _, err := a.Chat(ctx, turn.session, turn.text); err != nil {
			t.Fatalf("Chat(%s): %v", turn.session, err)
		}
	}

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}

	if got := sumCounter(t, rm, "voxhaus.active_sessions"); got != 2 {
		t.Errorf("session gauge = %d, want 2 distinct sessions", got)
	}
	if got := sumCounter(t, rm, "voxhaus.provider.requests"); got != 3 {
		t.Errorf("provider request counter = %d, want 3 completions", got)
	}
}

// sumCounter sums every data point of the named int64 sum instrument.
func sumCounter(t *testing.T, rm metricdata.ResourceMetrics, name string) int64 {
	t.Helper()

	var total int64
	for _, sm := range rm.ScopeMetrics {
		for _, met := range sm.Metrics {
			if met.Name != name {
				continue
			}
			sum, ok := met.Data.(metricdata.Sum[int64])
			if !ok {
				t.Fatalf("metric %s is %T, want Sum[int64]", name, met.Data)
			}
			for _, dp := range sum.DataPoints {
				total += dp.Value
			}
		}
	}
	return total
}
