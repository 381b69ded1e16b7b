// Package stt defines the Provider interface for speech-to-text backends.
package stt

import "context"

// TranscribeOptions carries per-request hints for a transcription.
type TranscribeOptions struct {
	// Language is a BCP-47 language code hint (e.g., "en"). Empty means the
	// provider default.
	Language string

	// SampleRate is the PCM sample rate in Hz. Only consulted when the audio
	// payload is raw PCM rather than a self-describing container. Zero means
	// the provider default.
	SampleRate int

	// Channels is the PCM channel count. Zero means mono.
	Channels int
}

// Transcript is the result of a transcription request.
type Transcript struct {
	// Text is the transcribed text, trimmed by the backend.
	Text string

	// Language is the language the backend detected or was told to use.
	Language string
}

// Provider is the abstraction over any speech-to-text backend. Implementations
// must be safe for concurrent use.
type Provider interface {
	// Transcribe converts audio into text. The audio payload is either a
	// complete WAV file or raw 16-bit signed little-endian PCM.
	Transcribe(ctx context.Context, audio []byte, opts TranscribeOptions) (*Transcript, error)
}
