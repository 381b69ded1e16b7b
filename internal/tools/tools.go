// Package tools defines the shared [Tool] type used by the built-in tool
// packages. Each sub-package exports a constructor function that returns a
// slice of [Tool] values ready for registration with the command orchestrator.
package tools

import (
	"context"

	"github.com/voxhaus/voxhaus/pkg/provider/llm"
)

// Tool represents a built-in tool offered to the LLM.
//
// Each Tool carries its LLM-facing schema ([llm.ToolDefinition]) together
// with the handler function that is invoked when the LLM calls the tool.
type Tool struct {
	// Definition is the tool's LLM-facing schema including its name,
	// description, and JSON Schema parameter specification.
	Definition llm.ToolDefinition

	// Handler executes the tool with JSON-encoded args and returns a
	// JSON-encoded result string on success, or a descriptive error.
	// Implementations must be safe for concurrent use and must respect
	// context cancellation.
	Handler func(ctx context.Context, args string) (string, error)
}
