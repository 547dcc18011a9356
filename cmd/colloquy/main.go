// Command colloquy runs scripted-free conversations between two AI agents:
// either live in the terminal with synchronised audio and text, or as an
// HTTP server that streams turns to web clients.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	anyllmlib "github.com/mozilla-ai/any-llm-go"

	"github.com/MrWong99/colloquy/internal/app"
	"github.com/MrWong99/colloquy/internal/config"
	"github.com/MrWong99/colloquy/internal/observe"
	"github.com/MrWong99/colloquy/internal/present"
	"github.com/MrWong99/colloquy/internal/resilience"
	"github.com/MrWong99/colloquy/internal/web"
	"github.com/MrWong99/colloquy/pkg/provider/llm"
	"github.com/MrWong99/colloquy/pkg/provider/llm/anyllm"
	"github.com/MrWong99/colloquy/pkg/provider/tts"
	"github.com/MrWong99/colloquy/pkg/provider/tts/edge"
	oatts "github.com/MrWong99/colloquy/pkg/provider/tts/openai"
)

// version is stamped by the release build.
var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	serve := flag.Bool("serve", false, "run the HTTP API instead of a terminal session")
	listen := flag.String("listen", "", "listen address for -serve (overrides server.listen_addr)")
	topic := flag.String("topic", "", "conversation topic (overrides conversation.topic)")
	turns := flag.Int("turns", 0, "turn budget (overrides conversation.max_turns)")
	flag.Parse()

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "colloquy: config file %q not found — copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "colloquy: %v\n", err)
		}
		return 1
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	slog.SetDefault(newLogger(cfg.Server.LogLevel))
	slog.Info("colloquy starting",
		"version", version,
		"config", *configPath,
		"mode", cfg.Conversation.Mode,
		"log_level", cfg.Server.LogLevel,
	)

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Telemetry ─────────────────────────────────────────────────────────────
	shutdownMetrics, err := observe.InitProvider(ctx, observe.ProviderConfig{ServiceVersion: version})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownMetrics(flushCtx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()

	// ── Providers ─────────────────────────────────────────────────────────────
	providers, err := buildProviders(cfg)
	if err != nil {
		slog.Error("failed to build providers", "err", err)
		return 1
	}

	manager := app.NewManager(cfg, providers, observe.DefaultMetrics())

	if *serve {
		return runServer(ctx, cfg, manager, providers, *listen)
	}
	return runTerminal(ctx, manager, app.Overrides{Topic: *topic, MaxTurns: *turns})
}

// runServer serves the HTTP API until a shutdown signal arrives.
func runServer(ctx context.Context, cfg *config.Config, manager *app.Manager, providers app.Providers, listen string) int {
	addr := listen
	if addr == "" {
		addr = cfg.Server.ListenAddr
	}
	if addr == "" {
		addr = ":8080"
	}

	srv := web.New(addr, manager, observe.DefaultMetrics(),
		web.WithHealthCheck("tts", func(ctx context.Context) error {
			_, err := providers.TTS.ListVoices(ctx)
			return err
		}),
	)
	slog.Info("server ready — press Ctrl+C to shut down", "addr", addr)
	if err := srv.Run(ctx); err != nil {
		slog.Error("server error", "err", err)
		return 1
	}
	slog.Info("goodbye")
	return 0
}

// runTerminal runs a single session and presents it live in the terminal.
func runTerminal(ctx context.Context, manager *app.Manager, ov app.Overrides) int {
	opts := []present.Option{}
	if player, err := present.DetectPlayer(); err != nil {
		slog.Warn("continuing text-only", "err", err)
	} else {
		opts = append(opts, present.WithPlayer(player))
	}
	presenter, err := present.New(os.Stdout, opts...)
	if err != nil {
		slog.Error("failed to set up presenter", "err", err)
		return 1
	}
	defer presenter.Close()

	sess, err := manager.Start(ctx, ov)
	if err != nil {
		slog.Error("failed to start session", "err", err)
		return 1
	}

	for turn := range sess.Turns() {
		if err := presenter.Present(ctx, turn); err != nil {
			if !errors.Is(err, context.Canceled) {
				slog.Error("presentation error", "err", err)
			}
			sess.Stop()
			break
		}
	}
	<-sess.Done()

	if err := sess.Err(); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("session error", "err", err, "turns", len(sess.Transcript()))
		return 1
	}
	fmt.Printf("\n%d turns. Goodbye.\n", len(sess.Transcript()))
	return 0
}

// ── Provider wiring ───────────────────────────────────────────────────────────

// anyLLMProviders are the generation backends reachable through any-llm.
var anyLLMProviders = map[string]bool{
	"openai": true, "anthropic": true, "ollama": true, "gemini": true,
	"deepseek": true, "mistral": true, "groq": true, "llamacpp": true,
	"llamafile": true,
}

func buildProviders(cfg *config.Config) (app.Providers, error) {
	llmProvider, err := buildLLM(cfg.Providers.LLM)
	if err != nil {
		return app.Providers{}, fmt.Errorf("llm provider %q: %w", cfg.Providers.LLM.Name, err)
	}
	ttsProvider, err := buildTTS(cfg.Providers.TTS)
	if err != nil {
		return app.Providers{}, fmt.Errorf("tts provider %q: %w", cfg.Providers.TTS.Name, err)
	}
	slog.Info("providers created",
		"llm", cfg.Providers.LLM.Name,
		"llm_fallbacks", len(cfg.Providers.LLM.Fallbacks),
		"tts", cfg.Providers.TTS.Name,
		"tts_fallbacks", len(cfg.Providers.TTS.Fallbacks),
	)
	return app.Providers{LLM: llmProvider, TTS: ttsProvider}, nil
}

// buildLLM constructs the generation provider, wrapped in a fallback group
// when the config names fallbacks.
func buildLLM(entry config.ProviderEntry) (llm.Provider, error) {
	primary, err := newAnyLLM(entry.Name, entry.Model, entry.APIKey, entry.BaseURL)
	if err != nil {
		return nil, err
	}
	if len(entry.Fallbacks) == 0 {
		return primary, nil
	}

	group := resilience.NewLLMFallback(primary, entry.Name, resilience.FallbackConfig{})
	for _, fb := range entry.Fallbacks {
		p, err := newAnyLLM(fb.Name, fb.Model, fb.APIKey, fb.BaseURL)
		if err != nil {
			return nil, fmt.Errorf("fallback %q: %w", fb.Name, err)
		}
		group.AddFallback(fb.Name, p)
	}
	return group, nil
}

func newAnyLLM(name, model, apiKey, baseURL string) (llm.Provider, error) {
	if !anyLLMProviders[name] {
		return nil, fmt.Errorf("unknown llm provider %q", name)
	}
	var opts []anyllmlib.Option
	if apiKey != "" {
		opts = append(opts, anyllmlib.WithAPIKey(apiKey))
	}
	if baseURL != "" {
		opts = append(opts, anyllmlib.WithBaseURL(baseURL))
	}
	return anyllm.New(name, model, opts...)
}

// buildTTS constructs the synthesis provider, wrapped in a fallback group
// when the config names fallbacks.
func buildTTS(entry config.ProviderEntry) (tts.Provider, error) {
	primary, err := newTTS(entry.Name, entry.Model, entry.APIKey)
	if err != nil {
		return nil, err
	}
	if len(entry.Fallbacks) == 0 {
		return primary, nil
	}

	group := resilience.NewTTSFallback(primary, entry.Name, resilience.FallbackConfig{})
	for _, fb := range entry.Fallbacks {
		p, err := newTTS(fb.Name, fb.Model, fb.APIKey)
		if err != nil {
			return nil, fmt.Errorf("fallback %q: %w", fb.Name, err)
		}
		group.AddFallback(fb.Name, p)
	}
	return group, nil
}

func newTTS(name, model, apiKey string) (tts.Provider, error) {
	switch name {
	case "edge":
		return edge.New(), nil
	case "openai":
		var opts []oatts.Option
		if model != "" {
			opts = append(opts, oatts.WithModel(model))
		}
		return oatts.New(apiKey, opts...)
	default:
		return nil, fmt.Errorf("unknown tts provider %q", name)
	}
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
