// Command earworm is the main entry point for the Earworm lyrics listener.
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"

	"github.com/earworm-audio/earworm/internal/app"
	"github.com/earworm-audio/earworm/internal/config"
	"github.com/earworm-audio/earworm/internal/health"
	"github.com/earworm-audio/earworm/internal/observe"
	"github.com/earworm-audio/earworm/internal/resilience"
	"github.com/earworm-audio/earworm/pkg/audio"
	"github.com/earworm-audio/earworm/pkg/provider/matcher"
	"github.com/earworm-audio/earworm/pkg/provider/matcher/fuzzy"
	"github.com/earworm-audio/earworm/pkg/provider/matcher/postgres"
	"github.com/earworm-audio/earworm/pkg/provider/player"
	"github.com/earworm-audio/earworm/pkg/provider/player/spotify"
	"github.com/earworm-audio/earworm/pkg/provider/recognizer"
	"github.com/earworm-audio/earworm/pkg/provider/recognizer/vosk"
	"github.com/earworm-audio/earworm/pkg/provider/recognizer/whispercpp"
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
			fmt.Fprintf(os.Stderr, "earworm: config file %q not found — copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "earworm: %v\n", err)
		}
		return 1
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	logger := newLogger(cfg.Server.LogLevel)
	slog.SetDefault(logger)

	slog.Info("earworm starting",
		"config", *configPath,
		"log_level", cfg.Server.LogLevel,
	)

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Telemetry ─────────────────────────────────────────────────────────────
	otelShutdown, err := observe.InitProvider(ctx, observe.ProviderConfig{ServiceName: "earworm"})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := otelShutdown(shutdownCtx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()

	metrics, err := observe.NewMetrics(otel.GetMeterProvider())
	if err != nil {
		slog.Error("failed to create metrics", "err", err)
		return 1
	}

	// ── Provider registry ─────────────────────────────────────────────────────
	reg := config.NewRegistry()
	registerBuiltinProviders(ctx, reg)

	providers, err := buildProviders(cfg, reg)
	if err != nil {
		slog.Error("failed to build providers", "err", err)
		return 1
	}

	// ── Audio capture ─────────────────────────────────────────────────────────
	capturer, err := openCapturer(cfg)
	if err != nil {
		slog.Error("failed to open audio capture", "err", err)
		return 1
	}
	providers.Source = capturer

	// ── Startup summary ───────────────────────────────────────────────────────
	printStartupSummary(cfg)

	application, err := app.New(cfg, providers,
		app.WithMetrics(metrics),
		app.WithDeviceSelector(promptDeviceSelection),
	)
	if err != nil {
		slog.Error("failed to initialise application", "err", err)
		return 1
	}

	// ── Ops endpoint (metrics + health) ───────────────────────────────────────
	if cfg.Server.MetricsAddr != "" {
		opsSrv := serveOps(cfg.Server.MetricsAddr, providers, application)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = opsSrv.Shutdown(shutdownCtx)
		}()
	}

	if err := capturer.Start(ctx); err != nil {
		slog.Error("failed to start audio capture", "err", err)
		return 1
	}

	slog.Info("listening — press Ctrl+C to stop")

	if err := application.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("run error", "err", err)
		return 1
	}

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := application.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
		return 1
	}
	slog.Info("goodbye")
	return 0
}

// ── Provider wiring ───────────────────────────────────────────────────────────

// registerBuiltinProviders wires all built-in provider factories into reg.
// Each factory receives a config.ProviderEntry and constructs the appropriate
// provider from the real implementation packages.
func registerBuiltinProviders(ctx context.Context, reg *config.Registry) {
	// ── Recognizers ───────────────────────────────────────────────────────────

	reg.RegisterRecognizer("whisper-native", func(entry config.ProviderEntry) (recognizer.Provider, error) {
		modelPath := entry.Model
		if modelPath == "" {
			modelPath = entry.StringOption("model_path", "")
		}
		var opts []whispercpp.Option
		if lang := entry.StringOption("language", ""); lang != "" {
			opts = append(opts, whispercpp.WithLanguage(lang))
		}
		return whispercpp.New(modelPath, opts...)
	})

	reg.RegisterRecognizer("vosk", func(entry config.ProviderEntry) (recognizer.Provider, error) {
		var opts []vosk.Option
		if entry.BaseURL != "" {
			opts = append(opts, vosk.WithEndpoint(entry.BaseURL))
		}
		if rate := entry.StringOption("sample_rate", ""); rate != "" {
			n, err := strconv.Atoi(rate)
			if err != nil {
				return nil, fmt.Errorf("vosk: invalid sample_rate %q: %w", rate, err)
			}
			opts = append(opts, vosk.WithSampleRate(n))
		}
		return vosk.New(opts...), nil
	})

	// ── Matchers ──────────────────────────────────────────────────────────────

	reg.RegisterMatcher("postgres", func(entry config.ProviderEntry) (matcher.Provider, error) {
		dsn := entry.StringOption("dsn", entry.BaseURL)
		if dsn == "" {
			return nil, errors.New("postgres: dsn option is required")
		}
		var opts []postgres.Option
		if limit := entry.StringOption("limit", ""); limit != "" {
			n, err := strconv.Atoi(limit)
			if err != nil {
				return nil, fmt.Errorf("postgres: invalid limit %q: %w", limit, err)
			}
			opts = append(opts, postgres.WithLimit(n))
		}
		return postgres.New(ctx, dsn, opts...)
	})

	reg.RegisterMatcher("songbook", func(entry config.ProviderEntry) (matcher.Provider, error) {
		path := entry.StringOption("path", "")
		if path == "" {
			return nil, errors.New("songbook: path option is required")
		}
		var opts []fuzzy.Option
		if th := entry.StringOption("threshold", ""); th != "" {
			f, err := strconv.ParseFloat(th, 64)
			if err != nil {
				return nil, fmt.Errorf("songbook: invalid threshold %q: %w", th, err)
			}
			opts = append(opts, fuzzy.WithThreshold(f))
		}
		return fuzzy.Load(path, opts...)
	})

	// ── Players ───────────────────────────────────────────────────────────────

	reg.RegisterPlayer("spotify", func(entry config.ProviderEntry) (player.Provider, error) {
		var opts []spotify.Option
		if entry.BaseURL != "" {
			opts = append(opts, spotify.WithBaseURL(entry.BaseURL))
		}
		if market := entry.StringOption("market", ""); market != "" {
			opts = append(opts, spotify.WithMarket(market))
		}
		return spotify.New(entry.APIKey, opts...)
	})
}

// buildProviders instantiates the providers named in cfg using the registry
// and returns them in an [app.Providers] struct. The audio source slot is
// filled separately by openCapturer.
func buildProviders(cfg *config.Config, reg *config.Registry) (*app.Providers, error) {
	ps := &app.Providers{}

	rec, err := reg.CreateRecognizer(cfg.Providers.Recognizer)
	if err != nil {
		return nil, fmt.Errorf("create recognizer provider %q: %w", cfg.Providers.Recognizer.Name, err)
	}
	ps.Recognizer = wrapRecognizer(cfg.Providers.Recognizer, rec)
	slog.Info("provider created", "kind", "recognizer", "name", cfg.Providers.Recognizer.Name)

	m, err := reg.CreateMatcher(cfg.Providers.Matcher)
	if err != nil {
		return nil, fmt.Errorf("create matcher provider %q: %w", cfg.Providers.Matcher.Name, err)
	}
	ps.Matcher = wrapMatcher(cfg.Providers.Matcher, m)
	slog.Info("provider created", "kind", "matcher", "name", cfg.Providers.Matcher.Name)

	p, err := reg.CreatePlayer(cfg.Providers.Player)
	if err != nil {
		return nil, fmt.Errorf("create player provider %q: %w", cfg.Providers.Player.Name, err)
	}
	ps.Player = p
	slog.Info("provider created", "kind", "player", "name", cfg.Providers.Player.Name)

	return ps, nil
}

// wrapMatcher layers a local songbook fallback over the configured matcher
// when the entry carries a fallback_songbook option. The corpus backend
// keeps answering through its circuit breaker; the songbook only serves
// while the backend is faulting.
func wrapMatcher(entry config.ProviderEntry, primary matcher.Provider) matcher.Provider {
	path := entry.StringOption("fallback_songbook", "")
	if path == "" {
		return primary
	}
	book, err := fuzzy.Load(path)
	if err != nil {
		slog.Warn("fallback songbook unavailable, continuing without it", "path", path, "err", err)
		return primary
	}
	fb := resilience.NewMatcherFallback(primary, entry.Name, resilience.FallbackConfig{})
	fb.AddFallback("songbook", book)
	slog.Info("matcher fallback enabled", "primary", entry.Name, "fallback", "songbook", "songs", book.Len())
	return fb
}

// wrapRecognizer layers a local whisper fallback over the configured
// recognizer when the entry carries a fallback_model_path option.
func wrapRecognizer(entry config.ProviderEntry, primary recognizer.Provider) recognizer.Provider {
	modelPath := entry.StringOption("fallback_model_path", "")
	if modelPath == "" {
		return primary
	}
	native, err := whispercpp.New(modelPath)
	if err != nil {
		slog.Warn("fallback recognizer unavailable, continuing without it", "model", modelPath, "err", err)
		return primary
	}
	fb := resilience.NewRecognizerFallback(primary, entry.Name, resilience.FallbackConfig{})
	fb.AddFallback("whisper-native", native)
	slog.Info("recognizer fallback enabled", "primary", entry.Name, "fallback", "whisper-native")
	return fb
}

// ── Audio capture ─────────────────────────────────────────────────────────────

// openCapturer opens the configured input device (prompting on stdin when the
// config leaves device_index unset) and calibrates the silence gate from
// ambient noise.
func openCapturer(cfg *config.Config) (*audio.Capturer, error) {
	idx, err := resolveInputDevice(cfg)
	if err != nil {
		return nil, err
	}

	var capOpts []audio.CapturerOption
	if cfg.Audio.SampleRate > 0 {
		capOpts = append(capOpts, audio.WithSampleRate(cfg.Audio.SampleRate))
	}
	var segOpts []audio.SegmenterOption
	if d := cfg.Audio.SilenceThreshold.Std(); d > 0 {
		segOpts = append(segOpts, audio.WithSilenceThreshold(d))
	}
	if d := cfg.Audio.MaxPhrase.Std(); d > 0 {
		segOpts = append(segOpts, audio.WithMaxPhrase(d))
	}
	if len(segOpts) > 0 {
		capOpts = append(capOpts, audio.WithSegmenterOptions(segOpts...))
	}

	capturer, err := audio.NewCapturer(idx, capOpts...)
	if err != nil {
		return nil, err
	}

	calibration := cfg.Audio.CalibrationDuration.Std()
	if calibration <= 0 {
		calibration = 2 * time.Second
	}
	fmt.Printf("Calibrating microphone for %s — please stay quiet…\n", calibration)
	if err := capturer.Calibrate(calibration); err != nil {
		_ = capturer.Close()
		return nil, err
	}

	return capturer, nil
}

// resolveInputDevice returns the configured device index, or prompts the user
// to pick one from the enumerated input devices.
func resolveInputDevice(cfg *config.Config) (int, error) {
	if cfg.Audio.DeviceIndex != nil {
		return *cfg.Audio.DeviceIndex, nil
	}

	devices, err := audio.ListDevices()
	if err != nil {
		return 0, err
	}
	if len(devices) == 0 {
		return 0, errors.New("no audio input devices found")
	}

	fmt.Println("Available input devices:")
	for _, d := range devices {
		fmt.Printf("  %d: %s (%d channels)\n", d.Index, d.Name, d.InputChannels)
	}

	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("Select input device: ")
		if !scanner.Scan() {
			return 0, errors.New("stdin closed before a device was selected")
		}
		choice, err := strconv.Atoi(strings.TrimSpace(scanner.Text()))
		if err != nil {
			fmt.Println("Please enter a device number.")
			continue
		}
		for _, d := range devices {
			if d.Index == choice {
				return choice, nil
			}
		}
		fmt.Println("No such device.")
	}
}

// promptDeviceSelection answers the playback-device prompt on stdin. The
// labels already carry their selectable index.
func promptDeviceSelection(devices []string) (string, error) {
	fmt.Println("Available playback devices:")
	for _, label := range devices {
		fmt.Printf("  %s\n", label)
	}
	fmt.Print("Select playback device: ")

	scanner := bufio.NewScanner(os.Stdin)
	if !scanner.Scan() {
		return "", errors.New("stdin closed before a device was selected")
	}
	return strings.TrimSpace(scanner.Text()), nil
}

// ── Ops endpoint ──────────────────────────────────────────────────────────────

// serveOps exposes Prometheus metrics plus liveness and readiness probes on
// one address. Readiness covers the lyrics corpus (when the backend supports
// pinging), the playback service, and the pipeline's stop signal.
func serveOps(addr string, providers *app.Providers, application *app.App) *http.Server {
	var checkers []health.Checker
	if pinger, ok := providers.Matcher.(interface{ Ping(context.Context) error }); ok {
		checkers = append(checkers, health.Checker{Name: "corpus", Check: pinger.Ping})
	}
	checkers = append(checkers, health.Checker{
		Name: "player",
		Check: func(ctx context.Context) error {
			_, err := providers.Player.Devices(ctx)
			return err
		},
	})
	checkers = append(checkers, health.Checker{
		Name: "pipeline",
		Check: func(context.Context) error {
			if application.Stopped() {
				return errors.New("stop signal tripped")
			}
			return nil
		},
	})

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	health.New(checkers...).Register(mux)

	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		slog.Info("ops endpoint listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("ops endpoint error", "err", err)
		}
	}()
	return srv
}

// ── Startup summary ───────────────────────────────────────────────────────────

func printStartupSummary(cfg *config.Config) {
	fmt.Println("╔═══════════════════════════════════════╗")
	fmt.Println("║         Earworm — startup summary     ║")
	fmt.Println("╠═══════════════════════════════════════╣")
	printProvider("Recognizer", cfg.Providers.Recognizer.Name, cfg.Providers.Recognizer.Model)
	printProvider("Matcher", cfg.Providers.Matcher.Name, "")
	printProvider("Player", cfg.Providers.Player.Name, "")
	fmt.Printf("║  Window size     : %-19d ║\n", cfg.Pipeline.WindowSize)
	if cfg.Pipeline.PlayerDeviceID != "" {
		fmt.Printf("║  Playback device : %-19s ║\n", truncate(cfg.Pipeline.PlayerDeviceID, 19))
	} else {
		fmt.Printf("║  Playback device : %-19s ║\n", "(prompt)")
	}
	if cfg.Server.MetricsAddr != "" {
		fmt.Printf("║  Metrics addr    : %-19s ║\n", truncate(cfg.Server.MetricsAddr, 19))
	}
	fmt.Println("╚═══════════════════════════════════════╝")
}

func printProvider(kind, name, model string) {
	value := name
	if value == "" {
		value = "(not configured)"
	} else if model != "" {
		value = name + " / " + model
	}
	fmt.Printf("║  %-12s    : %-19s ║\n", kind, truncate(value, 19))
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-1] + "…"
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
