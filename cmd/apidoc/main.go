package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"apidoc/internal/app"
	"apidoc/internal/config"
	"apidoc/internal/shared/observability"
)

var (
	configPath = flag.String("config", "./apidoc.toml", "Path to config file")
	once       = flag.Bool("once", true, "Run a single build and exit")
	watch      = flag.Bool("watch", false, "Rebuild when sources change")
	fromState  = flag.Bool("from-state", false, "Re-hydrate the persisted system instead of re-parsing")
	verbose    = flag.Bool("verbose", false, "Enable verbose logging")
	version    = flag.Bool("version", false, "Print version and exit")
)

const VERSION = "0.3.0"

func main() {
	flag.Parse()

	if *version {
		fmt.Printf("apidoc v%s\n", VERSION)
		os.Exit(0)
	}

	logLevel := slog.LevelInfo
	if *verbose {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)

	cfg, err := config.Load(*configPath)
	if err != nil {
		if *configPath == "./apidoc.toml" {
			cfg, err = config.Load("./apidoc.example.toml")
		}
		if err != nil {
			slog.Error("failed to load config", "error", err)
			os.Exit(1)
		}
	}

	// positional arguments override the configured source paths
	if flag.NArg() > 0 {
		cfg.Paths = flag.Args()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := observability.InitTracing(ctx, cfg.Metrics.OTLPEndpoint)
	if err != nil {
		slog.Error("failed to initialize tracing", "error", err)
		os.Exit(1)
	}
	defer shutdownTracing(context.Background())

	a, err := app.New(cfg)
	if err != nil {
		slog.Error("failed to initialize", "error", err)
		os.Exit(1)
	}
	defer a.Close()

	a.LoadInventories(ctx)

	if *fromState {
		loaded, err := a.LoadPersisted()
		if err != nil {
			slog.Error("failed to load persisted state", "error", err)
			os.Exit(1)
		}
		if !loaded {
			slog.Warn("no persisted state found, building from source")
		}
	}

	if a.System == nil {
		if err := a.Build(ctx); err != nil {
			slog.Error("build failed", "error", err)
			os.Exit(1)
		}
	}

	if err := a.GenerateOutputs(); err != nil {
		slog.Error("failed to write outputs", "error", err)
		os.Exit(1)
	}

	a.PrintSummary()

	if !*watch && *once {
		return
	}

	if cfg.Metrics.Listen != "" {
		srv := observability.NewServer(cfg.Metrics.Listen, nil)
		if err := srv.Start(ctx); err != nil {
			slog.Error("failed to start metrics server", "error", err)
		}
		defer srv.Stop(context.Background())
	}

	if err := a.StartWatcher(ctx); err != nil {
		slog.Error("failed to start watcher", "error", err)
		os.Exit(1)
	}

	<-ctx.Done()
}
