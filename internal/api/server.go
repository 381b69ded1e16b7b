// Package api exposes the Voxhaus HTTP surface: chat and voice command
// endpoints for room clients, raw STT/TTS passthrough, the device listing,
// and the health/metrics endpoints.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/voxhaus/voxhaus/internal/agent"
	"github.com/voxhaus/voxhaus/internal/health"
	"github.com/voxhaus/voxhaus/internal/history"
	"github.com/voxhaus/voxhaus/internal/match"
	"github.com/voxhaus/voxhaus/internal/observe"
	"github.com/voxhaus/voxhaus/pkg/provider/stt"
	"github.com/voxhaus/voxhaus/pkg/provider/tts"
)

const (
	// maxAudioUpload caps STT uploads. A minute of 16 kHz mono PCM is just
	// under 2 MiB; compressed uploads are far smaller.
	maxAudioUpload = 8 << 20

	// gracefulShutdownTimeout bounds in-flight request draining on shutdown.
	gracefulShutdownTimeout = 10 * time.Second
)

// DeviceSource yields the current device snapshot for the /devices listing.
type DeviceSource interface {
	Snapshot() []match.Device
}

// Deps holds the dependencies the server routes against. Agent and Devices
// are required; STT and TTS are optional and their endpoints respond 503
// when unconfigured.
type Deps struct {
	Agent   *agent.Agent
	Devices DeviceSource
	History history.Store

	STT   stt.Provider
	TTS   tts.Provider
	Voice tts.VoiceProfile

	Health  *health.Handler
	Metrics *observe.Metrics
}

// Server is the Voxhaus HTTP server.
type Server struct {
	deps    Deps
	handler http.Handler
	httpSrv *http.Server

	certFile string
	keyFile  string
}

// Option is a functional option for [New].
type Option func(*Server)

// WithTLS makes Run serve HTTPS with the given certificate pair.
func WithTLS(certFile, keyFile string) Option {
	return func(s *Server) {
		s.certFile = certFile
		s.keyFile = keyFile
	}
}

// New creates the server and assembles its routes.
func New(addr string, deps Deps, opts ...Option) (*Server, error) {
	if deps.Agent == nil {
		return nil, errors.New("api: agent is required")
	}
	if deps.Devices == nil {
		return nil, errors.New("api: device source is required")
	}
	if deps.History == nil {
		deps.History = history.NewMemStore()
	}
	if deps.Metrics == nil {
		deps.Metrics = observe.DefaultMetrics()
	}
	if deps.Health == nil {
		deps.Health = health.New()
	}

	s := &Server{deps: deps}
	for _, o := range opts {
		o(s)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /chat", s.handleChat)
	mux.HandleFunc("POST /text-voice-command", s.handleTextVoiceCommand)
	mux.HandleFunc("POST /stt", s.handleSTT)
	mux.HandleFunc("POST /tts", s.handleTTS)
	mux.HandleFunc("GET /devices", s.handleDevices)
	mux.Handle("GET /metrics", promhttp.Handler())
	deps.Health.Register(mux)

	s.handler = observe.Middleware(deps.Metrics)(mux)
	s.httpSrv = &http.Server{
		Addr:              addr,
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s, nil
}

// Handler returns the fully assembled handler. Exposed for httptest.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Run serves HTTP (or HTTPS when TLS was configured) until ctx is cancelled,
// then drains in-flight requests.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		var err error
		if s.certFile != "" {
			err = s.httpSrv.ListenAndServeTLS(s.certFile, s.keyFile)
		} else {
			err = s.httpSrv.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("api: serve: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer cancel()
	if err := s.httpSrv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("api: shutdown: %w", err)
	}
	return <-errCh
}
