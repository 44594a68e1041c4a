// Command intervoxa is the main entry point for the Intervoxa interview
// coaching server.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/intervoxa/internal/analysis"
	"github.com/MrWong99/intervoxa/internal/config"
	"github.com/MrWong99/intervoxa/internal/evaluator"
	"github.com/MrWong99/intervoxa/internal/gateway"
	"github.com/MrWong99/intervoxa/internal/health"
	"github.com/MrWong99/intervoxa/internal/observe"
	"github.com/MrWong99/intervoxa/internal/resilience"
	"github.com/MrWong99/intervoxa/internal/session"
	"github.com/MrWong99/intervoxa/internal/transcript"
	"github.com/MrWong99/intervoxa/pkg/provider/stt"
)

// version is overridden at build time via -ldflags "-X main.version=...".
var version = "dev"

const shutdownTimeout = 15 * time.Second

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	listenAddr := flag.String("listen", "", "override server.listen_addr from the config file")
	flag.Parse()

	// ── Environment ───────────────────────────────────────────────────────────
	// .env is optional; API keys referenced via api_key_env may live there.
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "intervoxa: load .env: %v\n", err)
		return 1
	}

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "intervoxa: config file %q not found — copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "intervoxa: %v\n", err)
		}
		return 1
	}
	if *listenAddr != "" {
		cfg.Server.ListenAddr = *listenAddr
	}
	if cfg.Server.ListenAddr == "" {
		cfg.Server.ListenAddr = ":8080"
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	logger := newLogger(cfg.Server.LogLevel)
	slog.SetDefault(logger)

	slog.Info("intervoxa starting",
		"version", version,
		"config", *configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
	)

	// ── Telemetry ─────────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	otelShutdown, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceName:    cfg.Telemetry.ServiceName,
		ServiceVersion: version,
	})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := otelShutdown(sctx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()
	metrics := observe.DefaultMetrics()

	// ── Providers ─────────────────────────────────────────────────────────────
	reg := config.DefaultRegistry()

	sttProvider, err := reg.CreateSTT(cfg.STT)
	if err != nil {
		slog.Error("failed to create stt provider", "kind", "stt", "name", cfg.STT.Provider, "err", err)
		return 1
	}
	slog.Info("provider created", "kind", "stt", "name", cfg.STT.Provider)

	chain, err := buildEvaluatorChain(cfg, reg, metrics, logger)
	if err != nil {
		slog.Error("failed to build evaluator chain", "err", err)
		return 1
	}

	// ── Session machine ───────────────────────────────────────────────────────
	recorder := transcript.NewRecorder(transcript.Config{
		Provider: sttProvider,
		Stream: stt.StreamConfig{
			SampleRate:     cfg.STT.SampleRate,
			Channels:       cfg.STT.Channels,
			Language:       cfg.STT.Language,
			InterimResults: cfg.STT.InterimResults,
		},
		OnRestart: func(int) {
			metrics.RecorderRestarts.Add(context.Background(), 1)
		},
	})
	machine := session.NewMachine(session.Config{
		Evaluator: evaluator.NewLLM(evaluator.WithTimeout(chain, cfg.Evaluator.Timeout.Std()), logger),
		Recorder:  recorder,
		Analysis: analysis.Config{
			RecomputeInterval: cfg.Analysis.RecomputeInterval.Std(),
			ActivityDebounce:  cfg.Analysis.ActivityDebounce.Std(),
		},
		Log: logger,
	})

	// ── HTTP surface ──────────────────────────────────────────────────────────
	gw := gateway.New(gateway.Config{
		Machine: machine,
		Metrics: metrics,
		Log:     logger,
	})

	checks := health.New(
		health.Checker{Name: "evaluator", Check: evaluatorCheck(chain)},
		health.Checker{Name: "stt", Check: func(context.Context) error {
			if cfg.STT.Provider == "" {
				return errors.New("no stt provider configured")
			}
			return nil
		}},
	)

	mux := http.NewServeMux()
	gw.Register(mux)
	checks.Register(mux)
	mux.Handle("GET /metrics", promhttp.Handler())

	server := &http.Server{
		Addr:              cfg.Server.ListenAddr,
		Handler:           observe.Middleware(metrics)(mux),
		ReadHeaderTimeout: 10 * time.Second,
	}

	printStartupSummary(cfg)
	slog.Info("server ready — press Ctrl+C to shut down")

	// ── Serve ─────────────────────────────────────────────────────────────────
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		if tls := cfg.Server.TLS; tls != nil {
			err = server.ListenAndServeTLS(tls.CertFile, tls.KeyFile)
		} else {
			err = server.ListenAndServe()
		}
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	})
	g.Go(func() error {
		err := gw.Run(gctx)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})
	g.Go(func() error {
		<-gctx.Done()
		slog.Info("shutdown signal received, stopping…")
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return server.Shutdown(sctx)
	})

	if err := g.Wait(); err != nil {
		slog.Error("run error", "err", err)
		return 1
	}
	slog.Info("goodbye")
	return 0
}

// buildEvaluatorChain instantiates every configured backend, wraps each in
// metrics instrumentation, and registers it with a breaker-guarded chain in
// config order.
func buildEvaluatorChain(cfg *config.Config, reg *config.Registry, metrics *observe.Metrics, logger *slog.Logger) (*resilience.Chain, error) {
	chain := resilience.NewChain(logger)
	breakerCfg := resilience.BreakerConfig{
		FailureThreshold: cfg.Evaluator.Breaker.FailureThreshold,
		Cooldown:         cfg.Evaluator.Breaker.Cooldown.Std(),
		ProbeQuota:       cfg.Evaluator.Breaker.ProbeQuota,
	}

	for _, entry := range cfg.Evaluator.Backends {
		backend, err := reg.CreateBackend(entry)
		if err != nil {
			return nil, fmt.Errorf("create backend %q: %w", entry.Name, err)
		}
		chain.Add(entry.Name, observe.MeasureCompleter(backend, metrics, entry.Name), breakerCfg)
		slog.Info("evaluation backend registered",
			"backend", entry.Name,
			"type", entry.Type,
			"model", entry.Model,
		)
	}
	return chain, nil
}

// evaluatorCheck reports unready when every backend breaker is open.
func evaluatorCheck(chain *resilience.Chain) func(context.Context) error {
	return func(context.Context) error {
		states := chain.States()
		if len(states) == 0 {
			return errors.New("no backends configured")
		}
		for _, st := range states {
			if st != resilience.BreakerOpen {
				return nil
			}
		}
		return errors.New("all backend breakers are open")
	}
}

// ── Startup summary ───────────────────────────────────────────────────────────

func printStartupSummary(cfg *config.Config) {
	fmt.Println("╔═══════════════════════════════════════╗")
	fmt.Println("║        Intervoxa — startup summary    ║")
	fmt.Println("╠═══════════════════════════════════════╣")
	printEntry("STT", cfg.STT.Provider)
	for i, be := range cfg.Evaluator.Backends {
		printEntry(fmt.Sprintf("Backend %d", i+1), string(be.Type)+" / "+be.Model)
	}
	printEntry("Listen addr", cfg.Server.ListenAddr)
	if cfg.Server.TLS != nil {
		printEntry("TLS", "enabled")
	}
	fmt.Println("╚═══════════════════════════════════════╝")
}

func printEntry(kind, value string) {
	if value == "" {
		value = "(not configured)"
	}
	if len(value) > 19 {
		value = value[:16] + "…"
	}
	fmt.Printf("║  %-14s  : %-19s ║\n", kind, value)
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
