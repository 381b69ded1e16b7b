// Package announce provides the "play_announcement" tool: it synthesizes a
// short spoken message via the configured TTS provider and hands the PCM
// audio to a playback sink (typically a speaker endpoint on the local
// network).
package announce

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/voxhaus/voxhaus/internal/tools"
	"github.com/voxhaus/voxhaus/pkg/provider/llm"
	"github.com/voxhaus/voxhaus/pkg/provider/tts"
)

// Player consumes synthesized PCM audio. Implementations must be safe for
// concurrent use.
type Player interface {
	Play(ctx context.Context, pcm []byte) error
}

// announceArgs is the JSON-decoded input for the "play_announcement" tool.
type announceArgs struct {
	// Text is the message to speak.
	Text string `json:"text"`
}

// announceResult is the JSON-encoded output.
type announceResult struct {
	OK         bool   `json:"ok"`
	Message    string `json:"message"`
	AudioBytes int    `json:"audioBytes"`
}

// Tools returns the play_announcement tool wired to synth and player. voice
// selects which synthesis voice to use.
func Tools(synth tts.Provider, player Player, voice tts.VoiceProfile) []tools.Tool {
	return []tools.Tool{
		{
			Definition: llm.ToolDefinition{
				Name: "play_announcement",
				Description: "Speak a short announcement through the apartment speakers. " +
					"Use this to confirm completed actions out loud or to relay a message.",
				Parameters: map[string]any{
					"type": "object",
					"properties": map[string]any{
						"text": map[string]any{
							"type":        "string",
							"description": "The message to speak.",
						},
					},
					"required": []string{"text"},
				},
			},
			Handler: func(ctx context.Context, args string) (string, error) {
				var a announceArgs
				if err := json.Unmarshal([]byte(args), &a); err != nil {
					return "", fmt.Errorf("announce: failed to parse arguments: %w", err)
				}
				if a.Text == "" {
					return "", errors.New("announce: text must not be empty")
				}

				pcm, err := synth.Synthesize(ctx, a.Text, voice)
				if err != nil {
					return "", fmt.Errorf("announce: synthesize: %w", err)
				}
				if err := player.Play(ctx, pcm); err != nil {
					return "", fmt.Errorf("announce: play: %w", err)
				}

				res, err := json.Marshal(announceResult{
					OK:         true,
					Message:    "announcement played",
					AudioBytes: len(pcm),
				})
				if err != nil {
					return "", fmt.Errorf("announce: encode result: %w", err)
				}
				return string(res), nil
			},
		},
	}
}
