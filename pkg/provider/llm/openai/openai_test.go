package openai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/voxhaus/voxhaus/pkg/provider/llm"
)

func TestToMessageParam_System(t *testing.T) {
	msg := llm.Message{Role: "system", Content: "You control apartment devices."}
	param, err := toMessageParam(msg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if param.OfSystem == nil {
		t.Fatal("expected OfSystem to be set")
	}
}

func TestToMessageParam_User(t *testing.T) {
	msg := llm.Message{Role: "user", Content: "turn on the kitchen light"}
	param, err := toMessageParam(msg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if param.OfUser == nil {
		t.Fatal("expected OfUser to be set")
	}
}

func TestToMessageParam_AssistantWithToolCalls(t *testing.T) {
	msg := llm.Message{
		Role:    "assistant",
		Content: "Switching it on.",
		ToolCalls: []llm.ToolCall{
			{ID: "call_1", Name: "hub_control", Arguments: `{"action":"control_device","deviceName":"kitchen light","state":true}`},
		},
	}
	param, err := toMessageParam(msg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if param.OfAssistant == nil {
		t.Fatal("expected OfAssistant to be set")
	}
	if len(param.OfAssistant.ToolCalls) != 1 {
		t.Fatalf("expected 1 tool call, got %d", len(param.OfAssistant.ToolCalls))
	}
	tc := param.OfAssistant.ToolCalls[0]
	if tc.ID != "call_1" || tc.Function.Name != "hub_control" {
		t.Errorf("tool call = %s/%s, want call_1/hub_control", tc.ID, tc.Function.Name)
	}
}

func TestToMessageParam_ToolResult(t *testing.T) {
	msg := llm.Message{Role: "tool", Content: "controlled 1 of 1 devices", ToolCallID: "call_1"}
	param, err := toMessageParam(msg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if param.OfTool == nil {
		t.Fatal("expected OfTool to be set")
	}
	if param.OfTool.ToolCallID != "call_1" {
		t.Errorf("ToolCallID = %s, want call_1", param.OfTool.ToolCallID)
	}
}

func TestToMessageParam_UnknownRole(t *testing.T) {
	if _, err := toMessageParam(llm.Message{Role: "narrator", Content: "meanwhile"}); err == nil {
		t.Fatal("expected error for unknown role")
	}
}

func TestCompletionParams(t *testing.T) {
	p := &Provider{model: "gpt-4o-mini"}
	params, err := p.completionParams(llm.CompletionRequest{
		SystemPrompt: "You control apartment devices.",
		Messages: []llm.Message{
			{Role: "user", Content: "dim the bedroom"},
		},
		Tools: []llm.ToolDefinition{
			{Name: "hub_control", Description: "Control devices", Parameters: map[string]any{"type": "object"}},
		},
		Temperature: 0.2,
		MaxTokens:   512,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(params.Messages) != 2 {
		t.Fatalf("expected 2 messages (system + user), got %d", len(params.Messages))
	}
	if params.Messages[0].OfSystem == nil {
		t.Error("expected first message to be the system prompt")
	}
	if len(params.Tools) != 1 || params.Tools[0].Function.Name != "hub_control" {
		t.Fatalf("tools = %+v, want hub_control", params.Tools)
	}
	if !params.Temperature.Valid() || params.Temperature.Value != 0.2 {
		t.Error("expected temperature 0.2 to be set")
	}
	if !params.MaxCompletionTokens.Valid() || params.MaxCompletionTokens.Value != 512 {
		t.Error("expected max completion tokens 512 to be set")
	}
}

// TestComplete_ToolCallRoundTrip runs a full completion against a stub chat
// completions endpoint and checks the tool call survives the mapping.
func TestComplete_ToolCallRoundTrip(t *testing.T) {
	stub := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/chat/completions") {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{{
				"message": map[string]any{
					"role":    "assistant",
					"content": "",
					"tool_calls": []map[string]any{{
						"id":   "call_7",
						"type": "function",
						"function": map[string]any{
							"name":      "hub_control",
							"arguments": `{"action":"list_devices"}`,
						},
					}},
				},
			}},
			"usage": map[string]any{
				"prompt_tokens":     42,
				"completion_tokens": 7,
				"total_tokens":      49,
			},
		})
	}))
	t.Cleanup(stub.Close)

	p, err := New("sk-test", "gpt-4o-mini", WithBaseURL(stub.URL), WithHTTPClient(stub.Client()))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	resp, err := p.Complete(context.Background(), llm.CompletionRequest{
		Messages: []llm.Message{{Role: "user", Content: "what devices do you know?"}},
	})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if len(resp.ToolCalls) != 1 {
		t.Fatalf("got %d tool calls, want 1", len(resp.ToolCalls))
	}
	tc := resp.ToolCalls[0]
	if tc.ID != "call_7" || tc.Name != "hub_control" {
		t.Errorf("tool call = %s/%s", tc.ID, tc.Name)
	}
	if resp.Usage.TotalTokens != 49 {
		t.Errorf("total tokens = %d, want 49", resp.Usage.TotalTokens)
	}
}

func TestComplete_EmptyChoices(t *testing.T) {
	stub := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"choices":[]}`))
	}))
	t.Cleanup(stub.Close)

	p, err := New("sk-test", "gpt-4o-mini", WithBaseURL(stub.URL), WithHTTPClient(stub.Client()))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := p.Complete(context.Background(), llm.CompletionRequest{
		Messages: []llm.Message{{Role: "user", Content: "hello"}},
	}); err == nil {
		t.Fatal("expected error for empty choices")
	}
}

func TestNew_MissingAPIKey(t *testing.T) {
	if _, err := New("", "gpt-4o"); err == nil {
		t.Fatal("expected error for empty API key")
	}
}

func TestNew_MissingModel(t *testing.T) {
	if _, err := New("sk-test", ""); err == nil {
		t.Fatal("expected error for empty model")
	}
}
