package api

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/voxhaus/voxhaus/internal/agent"
	"github.com/voxhaus/voxhaus/internal/history"
	"github.com/voxhaus/voxhaus/internal/observe"
	"github.com/voxhaus/voxhaus/pkg/provider/stt"
	"github.com/voxhaus/voxhaus/pkg/provider/tts"
)

// historyMessage is one prior turn supplied inline by a stateless client.
type historyMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Message string `json:"message"`
	// RoomName scopes the conversation; each room is its own session.
	RoomName string `json:"roomName"`
	// ConversationHistory seeds a session the server has not seen yet.
	// Ignored once the server holds its own history for the room.
	ConversationHistory []historyMessage `json:"conversationHistory"`
}

type chatResponse struct {
	Response  string             `json:"response"`
	ToolCalls []agent.ToolResult `json:"toolCalls,omitempty"`
	Success   bool               `json:"success"`
	Timestamp string             `json:"timestamp"`
	// Audio carries the spoken answer as base64 PCM on the voice command
	// path. Empty on /chat.
	Audio       string `json:"audio,omitempty"`
	AudioFormat string `json:"audioFormat,omitempty"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// handleChat runs one typed conversation turn.
func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	s.completeTurn(w, r, false)
}

// handleTextVoiceCommand is the room-client command path: identical to /chat
// except the answer is additionally synthesized to speech when a TTS
// provider is configured.
func (s *Server) handleTextVoiceCommand(w http.ResponseWriter, r *http.Request) {
	s.completeTurn(w, r, true)
}

func (s *Server) completeTurn(w http.ResponseWriter, r *http.Request, speak bool) {
	ctx := r.Context()
	log := observe.Logger(ctx)

	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("decode request: %w", err))
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		writeError(w, http.StatusBadRequest, fmt.Errorf("message is required"))
		return
	}

	sessionID := sessionForRoom(req.RoomName)
	if err := s.seedHistory(r, sessionID, req.ConversationHistory); err != nil {
		log.Warn("failed to seed conversation history", slog.String("error", err.Error()))
	}

	reply, err := s.deps.Agent.Chat(ctx, sessionID, req.Message)
	if err != nil {
		log.Error("chat turn failed",
			slog.String("session_id", sessionID),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, fmt.Errorf("chat: %w", err))
		return
	}

	resp := chatResponse{
		Response:  reply.Text,
		ToolCalls: reply.ToolCalls,
		Success:   true,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}

	if speak && s.deps.TTS != nil && reply.Text != "" {
		start := time.Now()
		pcm, err := s.deps.TTS.Synthesize(ctx, reply.Text, s.deps.Voice)
		s.deps.Metrics.TTSDuration.Record(ctx, time.Since(start).Seconds())
		if err != nil {
			// The text answer is still useful without audio.
			s.deps.Metrics.RecordProviderRequest(ctx, "tts", "synthesize", "error")
			s.deps.Metrics.RecordProviderError(ctx, "tts", "synthesize")
			log.Warn("answer synthesis failed", slog.String("error", err.Error()))
		} else {
			s.deps.Metrics.RecordProviderRequest(ctx, "tts", "synthesize", "ok")
			resp.Audio = base64.StdEncoding.EncodeToString(pcm)
			resp.AudioFormat = "pcm_16000"
		}
	}

	writeJSON(w, http.StatusOK, resp)
}

// sessionForRoom maps a client room name to a conversation session ID.
func sessionForRoom(room string) string {
	room = strings.TrimSpace(room)
	if room == "" {
		return "room:default"
	}
	return "room:" + strings.ToLower(room)
}

// seedHistory imports client-supplied turns for sessions the server has not
// seen yet, so stateless clients keep context across server restarts.
func (s *Server) seedHistory(r *http.Request, sessionID string, msgs []historyMessage) error {
	if len(msgs) == 0 {
		return nil
	}
	existing, err := s.deps.History.Recent(r.Context(), sessionID, 1)
	if err != nil {
		return err
	}
	if len(existing) > 0 {
		return nil
	}
	for _, m := range msgs {
		if m.Role != "user" && m.Role != "assistant" {
			continue
		}
		if err := s.deps.History.Append(r.Context(), history.Entry{
			SessionID: sessionID,
			Role:      m.Role,
			Content:   m.Content,
		}); err != nil {
			return err
		}
	}
	return nil
}

// handleSTT transcribes a multipart audio upload (field "audio").
func (s *Server) handleSTT(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if s.deps.STT == nil {
		writeError(w, http.StatusServiceUnavailable, fmt.Errorf("no STT provider configured"))
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxAudioUpload)
	file, _, err := r.FormFile("audio")
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("audio upload: %w", err))
		return
	}
	defer file.Close()

	audio, err := io.ReadAll(file)
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("read audio: %w", err))
		return
	}

	start := time.Now()
	transcript, err := s.deps.STT.Transcribe(ctx, audio, stt.TranscribeOptions{
		Language: r.FormValue("language"),
	})
	s.deps.Metrics.STTDuration.Record(ctx, time.Since(start).Seconds())
	if err != nil {
		s.deps.Metrics.RecordProviderRequest(ctx, "stt", "transcribe", "error")
		s.deps.Metrics.RecordProviderError(ctx, "stt", "transcribe")
		writeError(w, http.StatusBadGateway, fmt.Errorf("transcribe: %w", err))
		return
	}
	s.deps.Metrics.RecordProviderRequest(ctx, "stt", "transcribe", "ok")

	writeJSON(w, http.StatusOK, map[string]string{
		"text":     transcript.Text,
		"language": transcript.Language,
	})
}

type ttsRequest struct {
	Text  string `json:"text"`
	Voice string `json:"voice"`
}

// handleTTS synthesizes speech for arbitrary text and returns raw audio.
func (s *Server) handleTTS(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if s.deps.TTS == nil {
		writeError(w, http.StatusServiceUnavailable, fmt.Errorf("no TTS provider configured"))
		return
	}

	var req ttsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("decode request: %w", err))
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		writeError(w, http.StatusBadRequest, fmt.Errorf("text is required"))
		return
	}

	voice := s.deps.Voice
	if req.Voice != "" {
		voice = tts.VoiceProfile{ID: req.Voice, Provider: voice.Provider}
	}

	start := time.Now()
	pcm, err := s.deps.TTS.Synthesize(ctx, req.Text, voice)
	s.deps.Metrics.TTSDuration.Record(ctx, time.Since(start).Seconds())
	if err != nil {
		s.deps.Metrics.RecordProviderRequest(ctx, "tts", "synthesize", "error")
		s.deps.Metrics.RecordProviderError(ctx, "tts", "synthesize")
		writeError(w, http.StatusBadGateway, fmt.Errorf("synthesize: %w", err))
		return
	}
	s.deps.Metrics.RecordProviderRequest(ctx, "tts", "synthesize", "ok")

	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("X-Audio-Format", "pcm_16000")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(pcm); err != nil {
		observe.Logger(ctx).Warn("failed to write audio response", slog.String("error", err.Error()))
	}
}

type deviceListing struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Type      string `json:"type"`
	Reachable bool   `json:"reachable"`
}

// handleDevices lists the current registry snapshot.
func (s *Server) handleDevices(w http.ResponseWriter, _ *http.Request) {
	snapshot := s.deps.Devices.Snapshot()
	devices := make([]deviceListing, 0, len(snapshot))
	for _, d := range snapshot {
		devices = append(devices, deviceListing{
			ID:        d.ID,
			Name:      d.DisplayName,
			Type:      string(d.Type),
			Reachable: d.Reachable,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"devices": devices,
		"count":   len(devices),
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("failed to encode response", slog.String("error", err.Error()))
	}
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, errorResponse{Error: err.Error()})
}
