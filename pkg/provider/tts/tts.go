// Package tts defines the Provider interface for text-to-speech backends.
package tts

import "context"

// VoiceProfile describes a synthesis voice offered by a backend.
type VoiceProfile struct {
	// ID is the backend-specific voice identifier.
	ID string

	// Name is the human-readable voice name.
	Name string

	// Provider names the backend this voice belongs to.
	Provider string

	// Metadata carries backend-specific labels (accent, age, category, ...).
	Metadata map[string]string
}

// Provider is the abstraction over any text-to-speech backend.
// Implementations must be safe for concurrent use.
type Provider interface {
	// Synthesize converts text into raw 16-bit signed little-endian PCM audio
	// using the given voice.
	Synthesize(ctx context.Context, text string, voice VoiceProfile) ([]byte, error)

	// ListVoices returns the voices available to the configured account.
	ListVoices(ctx context.Context) ([]VoiceProfile, error)
}
