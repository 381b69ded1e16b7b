// Command voxhaus is the main entry point for the Voxhaus apartment voice
// assistant backend.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	anyllmlib "github.com/mozilla-ai/any-llm-go"

	"github.com/voxhaus/voxhaus/internal/agent"
	"github.com/voxhaus/voxhaus/internal/api"
	"github.com/voxhaus/voxhaus/internal/config"
	"github.com/voxhaus/voxhaus/internal/health"
	"github.com/voxhaus/voxhaus/internal/history"
	"github.com/voxhaus/voxhaus/internal/hub"
	"github.com/voxhaus/voxhaus/internal/match"
	"github.com/voxhaus/voxhaus/internal/observe"
	"github.com/voxhaus/voxhaus/internal/tools/announce"
	"github.com/voxhaus/voxhaus/internal/tools/hubcontrol"
	"github.com/voxhaus/voxhaus/pkg/provider/llm"
	"github.com/voxhaus/voxhaus/pkg/provider/llm/anyllm"
	"github.com/voxhaus/voxhaus/pkg/provider/llm/openai"
	"github.com/voxhaus/voxhaus/pkg/provider/stt"
	"github.com/voxhaus/voxhaus/pkg/provider/stt/whisper"
	"github.com/voxhaus/voxhaus/pkg/provider/tts"
	"github.com/voxhaus/voxhaus/pkg/provider/tts/elevenlabs"
)

// version is stamped at build time via -ldflags.
var version = "dev"

const (
	defaultListenAddr     = ":8080"
	defaultRefreshSeconds = 300
)

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	flag.Parse()

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "voxhaus: config file %q not found — copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "voxhaus: %v\n", err)
		}
		return 1
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	logger := newLogger(cfg.Server.LogLevel)
	slog.SetDefault(logger)

	slog.Info("voxhaus starting",
		"version", version,
		"config", *configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
	)

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Telemetry ─────────────────────────────────────────────────────────────
	shutdownTelemetry, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceName:    "voxhaus",
		ServiceVersion: version,
	})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTelemetry(flushCtx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()

	// ── Hub connection ────────────────────────────────────────────────────────
	var hubOpts []hub.Option
	if cfg.Hub.InsecureTLS {
		hubOpts = append(hubOpts, hub.WithInsecureTLS())
	}
	client, err := hub.NewClient(cfg.Hub.BaseURL, cfg.Hub.Token, hubOpts...)
	if err != nil {
		slog.Error("failed to create hub client", "err", err)
		return 1
	}

	registry := hub.NewRegistry(client)
	if err := registry.Refresh(ctx); err != nil {
		// The hub may simply be rebooting; the periodic refresh recovers.
		slog.Warn("initial device refresh failed", "err", err)
	} else {
		slog.Info("device registry loaded", "devices", registry.Len())
	}

	refreshSeconds := cfg.Hub.RefreshSeconds
	if refreshSeconds == 0 {
		refreshSeconds = defaultRefreshSeconds
	}
	go registry.Run(ctx, time.Duration(refreshSeconds)*time.Second)

	eventsURL := cfg.Hub.EventsURL
	if eventsURL == "" {
		eventsURL, err = deriveEventsURL(cfg.Hub.BaseURL)
		if err != nil {
			slog.Error("failed to derive hub events URL", "err", err)
			return 1
		}
	}
	stream := hub.NewEventStream(eventsURL, cfg.Hub.Token, registry)
	go stream.Run(ctx)

	controller := hub.NewController(client)

	// ── Providers ─────────────────────────────────────────────────────────────
	reg := config.NewRegistry()
	registerBuiltinProviders(reg)

	llmProvider, sttProvider, ttsProvider, err := buildProviders(cfg, reg)
	if err != nil {
		slog.Error("failed to build providers", "err", err)
		return 1
	}
	if llmProvider == nil {
		slog.Error("providers.llm must be configured")
		return 1
	}

	// ── History store ─────────────────────────────────────────────────────────
	var store history.Store
	checkers := []health.Checker{
		{Name: "hub", Check: func(ctx context.Context) error {
			_, err := client.Devices(ctx)
			return err
		}},
	}
	if cfg.History.Backend == config.HistoryPostgres {
		pg, err := history.NewPostgresStore(ctx, cfg.History.PostgresDSN)
		if err != nil {
			slog.Error("failed to connect history store", "err", err)
			return 1
		}
		defer pg.Close()
		store = pg
		checkers = append(checkers, health.Checker{Name: "history", Check: pg.Ping})
		slog.Info("history store connected", "backend", "postgres")
	} else {
		store = history.NewMemStore()
		slog.Info("history store in memory")
	}

	// ── Tools + agent ─────────────────────────────────────────────────────────
	matchOpts := resolverOptions(cfg.Resolver)
	toolset := hubcontrol.Tools(registry, controller, matchOpts)

	voice := tts.VoiceProfile{
		ID:       cfg.Providers.TTS.Voice,
		Provider: cfg.Providers.TTS.Name,
	}
	if ttsProvider != nil && len(cfg.Speakers.Endpoints) > 0 {
		player, err := announce.NewHTTPPlayer(cfg.Speakers.Endpoints)
		if err != nil {
			slog.Error("failed to create announcement player", "err", err)
			return 1
		}
		toolset = append(toolset, announce.Tools(ttsProvider, player, voice)...)
		slog.Info("announcements enabled", "speakers", len(cfg.Speakers.Endpoints))
	}

	ag := agent.New(llmProvider, registry, store, toolset)

	// ── HTTP server ───────────────────────────────────────────────────────────
	listenAddr := cfg.Server.ListenAddr
	if listenAddr == "" {
		listenAddr = defaultListenAddr
	}
	var apiOpts []api.Option
	if cfg.Server.TLS != nil {
		apiOpts = append(apiOpts, api.WithTLS(cfg.Server.TLS.CertFile, cfg.Server.TLS.KeyFile))
	}
	srv, err := api.New(listenAddr, api.Deps{
		Agent:   ag,
		Devices: registry,
		History: store,
		STT:     sttProvider,
		TTS:     ttsProvider,
		Voice:   voice,
		Health:  health.New(checkers...),
	}, apiOpts...)
	if err != nil {
		slog.Error("failed to create API server", "err", err)
		return 1
	}

	printStartupSummary(cfg, listenAddr)
	slog.Info("server ready — press Ctrl+C to shut down")

	if err := srv.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("server error", "err", err)
		return 1
	}
	slog.Info("goodbye")
	return 0
}

// ── Provider wiring ───────────────────────────────────────────────────────────

// anyllmBackends are the LLM names served through the any-llm multiplexer.
// OpenAI gets its own native provider below for full tool-calling support.
var anyllmBackends = []string{
	"anthropic", "gemini", "deepseek", "mistral", "groq", "llamacpp", "llamafile",
}

// registerBuiltinProviders wires all built-in provider factories into reg.
// Each factory receives a config.ProviderEntry and constructs the appropriate
// provider from the real implementation packages.
func registerBuiltinProviders(reg *config.Registry) {
	// ── LLM ───────────────────────────────────────────────────────────────────
	reg.RegisterLLM("openai", func(entry config.ProviderEntry) (llm.Provider, error) {
		var opts []openai.Option
		if entry.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(entry.BaseURL))
		}
		return openai.New(entry.APIKey, entry.Model, opts...)
	})

	for _, providerName := range anyllmBackends {
		reg.RegisterLLM(providerName, func(entry config.ProviderEntry) (llm.Provider, error) {
			var opts []anyllmlib.Option
			if entry.APIKey != "" {
				opts = append(opts, anyllmlib.WithAPIKey(entry.APIKey))
			}
			if entry.BaseURL != "" {
				opts = append(opts, anyllmlib.WithBaseURL(entry.BaseURL))
			}
			return anyllm.New(providerName, entry.Model, opts...)
		})
	}

	// ollama is a local server; it uses BaseURL for the address, not an API key.
	reg.RegisterLLM("ollama", func(entry config.ProviderEntry) (llm.Provider, error) {
		var opts []anyllmlib.Option
		if entry.BaseURL != "" {
			opts = append(opts, anyllmlib.WithBaseURL(entry.BaseURL))
		}
		return anyllm.New("ollama", entry.Model, opts...)
	})

	// ── STT ───────────────────────────────────────────────────────────────────
	reg.RegisterSTT("whisper", func(entry config.ProviderEntry) (stt.Provider, error) {
		var opts []whisper.Option
		if entry.Model != "" {
			opts = append(opts, whisper.WithModel(entry.Model))
		}
		if lang := optString(entry.Options, "language"); lang != "" {
			opts = append(opts, whisper.WithLanguage(lang))
		}
		return whisper.New(entry.BaseURL, opts...)
	})

	// ── TTS ───────────────────────────────────────────────────────────────────
	reg.RegisterTTS("elevenlabs", func(entry config.ProviderEntry) (tts.Provider, error) {
		var opts []elevenlabs.Option
		if entry.Model != "" {
			opts = append(opts, elevenlabs.WithModel(entry.Model))
		}
		if outputFmt := optString(entry.Options, "output_format"); outputFmt != "" {
			opts = append(opts, elevenlabs.WithOutputFormat(outputFmt))
		}
		return elevenlabs.New(entry.APIKey, opts...)
	})
}

// buildProviders instantiates the providers named in cfg using the registry.
// STT and TTS are optional; the corresponding endpoints degrade gracefully
// when they are absent.
func buildProviders(cfg *config.Config, reg *config.Registry) (llm.Provider, stt.Provider, tts.Provider, error) {
	var (
		llmProvider llm.Provider
		sttProvider stt.Provider
		ttsProvider tts.Provider
	)

	if name := cfg.Providers.LLM.Name; name != "" {
		p, err := reg.CreateLLM(cfg.Providers.LLM)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("create llm provider %q: %w", name, err)
		}
		llmProvider = p
		slog.Info("provider created", "kind", "llm", "name", name, "model", cfg.Providers.LLM.Model)
	}

	if name := cfg.Providers.STT.Name; name != "" {
		p, err := reg.CreateSTT(cfg.Providers.STT)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("create stt provider %q: %w", name, err)
		}
		sttProvider = p
		slog.Info("provider created", "kind", "stt", "name", name)
	}

	if name := cfg.Providers.TTS.Name; name != "" {
		p, err := reg.CreateTTS(cfg.Providers.TTS)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("create tts provider %q: %w", name, err)
		}
		ttsProvider = p
		slog.Info("provider created", "kind", "tts", "name", name)
	}

	return llmProvider, sttProvider, ttsProvider, nil
}

// resolverOptions maps resolver config onto matching options.
func resolverOptions(rc config.ResolverConfig) match.Options {
	opts := match.DefaultOptions()
	if rc.MinSimilarity != 0 {
		opts.MinSimilarity = rc.MinSimilarity
	}
	opts.EnablePhonetic = !rc.DisablePhonetic
	opts.EnablePartialMatch = !rc.DisablePartial
	opts.StrictMode = rc.Strict
	return opts
}

// deriveEventsURL swaps the hub REST base URL scheme to websocket and points
// at the /events feed.
func deriveEventsURL(baseURL string) (string, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return "", fmt.Errorf("parse hub base URL: %w", err)
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	case "http":
		u.Scheme = "ws"
	default:
		return "", fmt.Errorf("unexpected hub URL scheme %q", u.Scheme)
	}
	u.Path = "/events"
	return u.String(), nil
}

// ── Startup summary ───────────────────────────────────────────────────────────

func printStartupSummary(cfg *config.Config, listenAddr string) {
	fmt.Println("╔═══════════════════════════════════════╗")
	fmt.Println("║         Voxhaus — startup summary     ║")
	fmt.Println("╠═══════════════════════════════════════╣")
	printProvider("LLM", cfg.Providers.LLM.Name, cfg.Providers.LLM.Model)
	printProvider("STT", cfg.Providers.STT.Name, cfg.Providers.STT.Model)
	printProvider("TTS", cfg.Providers.TTS.Name, cfg.Providers.TTS.Model)
	fmt.Printf("║  History         : %-19s ║\n", historyLabel(cfg.History))
	fmt.Printf("║  Speakers        : %-19d ║\n", len(cfg.Speakers.Endpoints))
	fmt.Printf("║  Listen addr     : %-19s ║\n", listenAddr)
	fmt.Println("╚═══════════════════════════════════════╝")
}

func historyLabel(hc config.HistoryConfig) string {
	if hc.Backend == config.HistoryPostgres {
		return "postgres"
	}
	return "memory"
}

func printProvider(kind, name, model string) {
	value := name
	if value == "" {
		value = "(not configured)"
	} else if model != "" {
		value = name + " / " + model
	}
	if len(value) > 19 {
		value = value[:16] + "…"
	}
	fmt.Printf("║  %-12s    : %-19s ║\n", kind, value)
}

// ── Logger ─────────────────────────────────────────────────────────────────────

func newLogger(level config.LogLevel) *slog.Logger {
	var lvl slog.Level
	switch level {
	case config.LogDebug:
		lvl = slog.LevelDebug
	case config.LogWarn:
		lvl = slog.LevelWarn
	case config.LogError:
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}

// ── Helpers ───────────────────────────────────────────────────────────────────

// optString extracts a string value from a provider Options map[string]any.
// Returns "" if the map is nil, the key is absent, or the value is not a string.
func optString(opts map[string]any, key string) string {
	if opts == nil {
		return ""
	}
	v, ok := opts[key]
	if !ok {
		return ""
	}
	s, ok := v.(string)
	if !ok {
		return ""
	}
	return s
}
