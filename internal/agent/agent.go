// Package agent implements the command orchestrator: it turns a user's text
// command into LLM completions, executes the tool calls the model requests
// (device control, search, announcements), and returns the model's final
// spoken-style answer.
//
// The orchestrator is transport-agnostic. The HTTP layer feeds it text that
// arrived either as typed chat or as a speech-to-text transcript.
package agent

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/voxhaus/voxhaus/internal/history"
	"github.com/voxhaus/voxhaus/internal/match"
	"github.com/voxhaus/voxhaus/internal/observe"
	"github.com/voxhaus/voxhaus/internal/tools"
	"github.com/voxhaus/voxhaus/pkg/provider/llm"
)

const (
	// maxToolRounds bounds the completion/tool loop per turn. A model stuck
	// re-calling tools gets cut off rather than burning tokens forever.
	maxToolRounds = 6

	// historyLimit is how many prior turns are replayed into the prompt.
	historyLimit = 20

	defaultTemperature = 0.2
)

// systemPromptTemplate frames the model as the apartment controller. The
// device inventory is rendered at call time so the model always sees the
// current registry snapshot.
const systemPromptTemplate = `You are Voxhaus, the voice assistant for a smart apartment.

You control devices exclusively through the tools provided. Never claim a
device changed state unless a tool call reported success.

Guidelines:
- Device names in user commands come from speech recognition and may be
  slightly wrong; pass them to the tools as the user said them — the tools
  resolve names fuzzily.
- When a tool reports that a name did not resolve and offers suggestions,
  ask the user which device they meant instead of guessing.
- Keep answers short and conversational; they may be spoken aloud.

Known devices:
%s`

// DeviceSource yields the current device snapshot for the system prompt.
type DeviceSource interface {
	Snapshot() []match.Device
}

// ToolResult records one tool call the model requested during a turn,
// together with the rendered result that was fed back to it.
type ToolResult struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
	Result    string `json:"result"`
}

// Reply is the outcome of one user turn.
type Reply struct {
	// Text is the assistant's final answer, suitable for speaking aloud.
	Text string

	// ToolCalls lists the tool executions that happened during the turn,
	// in order.
	ToolCalls []ToolResult
}

// Option is a functional option for configuring an [Agent].
type Option func(*Agent)

// WithTemperature sets the LLM sampling temperature. Default: 0.2.
func WithTemperature(temp float64) Option {
	return func(a *Agent) {
		a.temperature = temp
	}
}

// WithMetrics sets the metrics instance. Default: [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(a *Agent) {
		a.metrics = m
	}
}

// Agent orchestrates one LLM conversation per session. It is safe for
// concurrent use across sessions.
type Agent struct {
	provider    llm.Provider
	source      DeviceSource
	store       history.Store
	tools       map[string]tools.Tool
	defs        []llm.ToolDefinition
	temperature float64
	metrics     *observe.Metrics

	mu       sync.Mutex
	sessions map[string]struct{}
}

// New creates an Agent that completes against provider, renders the device
// inventory from source, persists turns to store, and offers toolset to the
// model.
func New(provider llm.Provider, source DeviceSource, store history.Store, toolset []tools.Tool, opts ...Option) *Agent {
	a := &Agent{
		provider:    provider,
		source:      source,
		store:       store,
		tools:       make(map[string]tools.Tool, len(toolset)),
		temperature: defaultTemperature,
		sessions:    make(map[string]struct{}),
	}
	for _, t := range toolset {
		a.tools[t.Definition.Name] = t
		a.defs = append(a.defs, t.Definition)
	}
	for _, o := range opts {
		o(a)
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}
	return a
}

// Chat processes one user turn for sessionID and returns the assistant's
// final answer. Tool calls requested by the model are executed in-between
// completions; tool failures are reported back to the model as tool results
// so it can recover or apologize.
func (a *Agent) Chat(ctx context.Context, sessionID, userText string) (*Reply, error) {
	if strings.TrimSpace(userText) == "" {
		return nil, fmt.Errorf("agent: empty user text")
	}

	log := observe.Logger(ctx).With(slog.String("session_id", sessionID))
	a.trackSession(ctx, sessionID)

	if err := a.store.Append(ctx, history.Entry{
		SessionID: sessionID,
		Role:      "user",
		Content:   userText,
	}); err != nil {
		return nil, fmt.Errorf("agent: record user turn: %w", err)
	}

	messages, err := a.loadHistory(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	req := llm.CompletionRequest{
		SystemPrompt: fmt.Sprintf(systemPromptTemplate, a.renderInventory()),
		Messages:     messages,
		Tools:        a.defs,
		Temperature:  a.temperature,
	}

	var executed []ToolResult

	for round := 0; round < maxToolRounds; round++ {
		llmStart := time.Now()
		resp, err := a.provider.Complete(ctx, req)
		a.metrics.LLMDuration.Record(ctx, time.Since(llmStart).Seconds())
		if err != nil {
			a.metrics.RecordProviderRequest(ctx, "llm", "complete", "error")
			a.metrics.RecordProviderError(ctx, "llm", "complete")
			return nil, fmt.Errorf("agent: completion: %w", err)
		}
		a.metrics.RecordProviderRequest(ctx, "llm", "complete", "ok")

		if len(resp.ToolCalls) == 0 {
			if err := a.store.Append(ctx, history.Entry{
				SessionID: sessionID,
				Role:      "assistant",
				Content:   resp.Content,
			}); err != nil {
				log.Warn("failed to record assistant turn", slog.String("error", err.Error()))
			}
			return &Reply{Text: resp.Content, ToolCalls: executed}, nil
		}

		req.Messages = append(req.Messages, llm.Message{
			Role:      "assistant",
			Content:   resp.Content,
			ToolCalls: resp.ToolCalls,
		})

		for _, tc := range resp.ToolCalls {
			result := a.execute(ctx, log, tc)
			executed = append(executed, ToolResult{
				Name:      tc.Name,
				Arguments: tc.Arguments,
				Result:    result,
			})
			req.Messages = append(req.Messages, llm.Message{
				Role:       "tool",
				Content:    result,
				ToolCallID: tc.ID,
			})
			if err := a.store.Append(ctx, history.Entry{
				SessionID: sessionID,
				Role:      "tool",
				ToolName:  tc.Name,
				Content:   result,
			}); err != nil {
				log.Warn("failed to record tool turn", slog.String("error", err.Error()))
			}
		}
	}

	return nil, fmt.Errorf("agent: tool loop exceeded %d rounds", maxToolRounds)
}

// trackSession raises the active session gauge the first time a session ID
// is seen. Sessions are per room and never expire, so the gauge counts the
// rooms that have spoken to the assistant since startup.
func (a *Agent) trackSession(ctx context.Context, sessionID string) {
	a.mu.Lock()
	_, known := a.sessions[sessionID]
	if !known {
		a.sessions[sessionID] = struct{}{}
	}
	a.mu.Unlock()

	if !known {
		a.metrics.ActiveSessions.Add(ctx, 1)
	}
}

// execute runs a single tool call and renders its result (or failure) as the
// tool message content.
func (a *Agent) execute(ctx context.Context, log *slog.Logger, tc llm.ToolCall) string {
	tool, ok := a.tools[tc.Name]
	if !ok {
		a.metrics.RecordToolCall(ctx, tc.Name, "unknown")
		return fmt.Sprintf(`{"error":"unknown tool %q"}`, tc.Name)
	}

	start := time.Now()
	result, err := tool.Handler(ctx, tc.Arguments)
	a.metrics.ToolExecutionDuration.Record(ctx, time.Since(start).Seconds())

	if err != nil {
		a.metrics.RecordToolCall(ctx, tc.Name, "error")
		log.Warn("tool call failed",
			slog.String("tool", tc.Name),
			slog.String("error", err.Error()),
		)
		return fmt.Sprintf(`{"error":%q}`, err.Error())
	}

	a.metrics.RecordToolCall(ctx, tc.Name, "ok")
	log.Debug("tool call completed",
		slog.String("tool", tc.Name),
		slog.Duration("duration", time.Since(start)),
	)
	return result
}

// loadHistory replays the session's recent turns as LLM messages. Tool turns
// are replayed as plain assistant context rather than protocol tool results,
// since their original tool-call IDs are not retained across turns.
func (a *Agent) loadHistory(ctx context.Context, sessionID string) ([]llm.Message, error) {
	entries, err := a.store.Recent(ctx, sessionID, historyLimit)
	if err != nil {
		return nil, fmt.Errorf("agent: load history: %w", err)
	}

	messages := make([]llm.Message, 0, len(entries))
	for _, e := range entries {
		switch e.Role {
		case "user", "assistant":
			messages = append(messages, llm.Message{Role: e.Role, Content: e.Content})
		case "tool":
			messages = append(messages, llm.Message{
				Role:    "assistant",
				Content: fmt.Sprintf("[%s result] %s", e.ToolName, e.Content),
			})
		}
	}
	return messages, nil
}

// renderInventory formats the device snapshot for the system prompt.
func (a *Agent) renderInventory() string {
	devices := a.source.Snapshot()
	if len(devices) == 0 {
		return "(no devices known yet)"
	}

	var b strings.Builder
	for _, d := range devices {
		state := "reachable"
		if !d.Reachable {
			state = "unreachable"
		}
		fmt.Fprintf(&b, "- %s (id %s, type %s, %s)\n", d.DisplayName, d.ID, d.Type, state)
	}
	return strings.TrimRight(b.String(), "\n")
}
