package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/raaihank/report-sentinel/internal/audit"
	"github.com/raaihank/report-sentinel/internal/cache"
	"github.com/raaihank/report-sentinel/internal/config"
	"github.com/raaihank/report-sentinel/internal/deid"
	"github.com/raaihank/report-sentinel/internal/guard"
	"github.com/raaihank/report-sentinel/internal/logger"
	"github.com/raaihank/report-sentinel/internal/pipeline"
	"github.com/raaihank/report-sentinel/internal/rewrite"
	"github.com/raaihank/report-sentinel/internal/server"
	"github.com/raaihank/report-sentinel/internal/websocket"
)

var (
	version = server.Version
	commit  = "dev"
	date    = "unknown"
)

func main() {
	var (
		configPath  = flag.String("config", "", "Path to configuration file")
		showVersion = flag.Bool("version", false, "Show version information")
		healthCheck = flag.Bool("health-check", false, "Perform health check and exit")
	)
	flag.Parse()

	if *showVersion {
		fmt.Printf("report-sentinel %s (commit: %s, built: %s)\n", version, commit, date)
		os.Exit(0)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	if *healthCheck {
		performHealthCheck(cfg.Server.Port)
		return
	}

	log, err := logger.New(logger.FromConfig(cfg.Logging))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	log.Info("Starting report-sentinel",
		zap.String("version", version),
		zap.String("commit", commit),
		zap.String("build_date", date),
		zap.Int("port", cfg.Server.Port),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	redactor, err := deid.NewRedactor(cfg.Redaction.NameKeywords)
	if err != nil {
		log.Fatal("Failed to build redactor", zap.Error(err))
	}

	engine, err := buildEngine(cfg.Guard)
	if err != nil {
		log.Fatal("Failed to build guard", zap.Error(err))
	}

	provider, err := rewrite.New(ctx, cfg.Rewrite)
	if err != nil {
		log.Fatal("Failed to create rewrite provider", zap.Error(err))
	}

	if cfg.Cache.Enabled {
		candidates, err := cache.NewCandidateCache(cfg.Cache, log.Logger)
		if err != nil {
			// Caching is an optimisation; run without it
			log.Warn("Candidate cache disabled", zap.Error(err))
		} else {
			defer candidates.Close()
			provider = cache.NewCachedProvider(provider, candidates, log.Logger)
		}
	}

	sink, err := audit.New(cfg.Audit, log.Logger)
	if err != nil {
		log.Fatal("Failed to open audit trail", zap.Error(err))
	}
	defer sink.Close()

	var hub *websocket.Hub
	var publisher pipeline.Publisher
	if cfg.WebSocket.Enabled {
		hub = websocket.NewHub(websocket.HubConfigFromConfig(cfg.WebSocket), log.Logger)
		go hub.Run(ctx)
		publisher = hub
	}

	processor := pipeline.NewProcessor(redactor, engine, provider, sink, publisher, pipeline.Config{
		MaxTextLength:   cfg.Pipeline.MaxTextLength,
		RewriteTimeout:  cfg.Rewrite.Timeout,
		DefaultLanguage: cfg.Rewrite.Language,
	}, log)

	if *configPath != "" {
		err := config.Watch(*configPath, func(newConfig *config.Config) {
			engine, err := buildEngine(newConfig.Guard)
			if err != nil {
				log.Error("Guard vocabulary reload rejected", zap.Error(err))
				return
			}
			processor.SetEngine(engine)
			log.Info("Guard vocabulary reloaded")
		}, func(err error) {
			log.Error("Configuration reload rejected", zap.Error(err))
		})
		if err != nil {
			log.Warn("Configuration hot reload disabled", zap.Error(err))
		}
	}

	srv := server.New(cfg, processor, hub, log)

	serverErrors := make(chan error, 1)
	go func() {
		log.Info("HTTP server listening", zap.Int("port", cfg.Server.Port))
		serverErrors <- srv.Start(ctx)
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			log.Error("Server error", zap.Error(err))
		}
	case sig := <-shutdown:
		log.Info("Shutdown signal received", zap.String("signal", sig.String()))

		// Give outstanding requests 30 seconds to complete
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()

		if err := srv.Stop(shutdownCtx); err != nil {
			log.Error("Failed to shutdown server gracefully", zap.Error(err))
		}
		log.Info("Server shutdown complete")
	}
}

func buildEngine(cfg config.GuardConfig) (*guard.Engine, error) {
	vocabulary, err := guard.VocabularyFromConfig(cfg)
	if err != nil {
		return nil, err
	}
	return guard.NewEngine(vocabulary)
}

// performHealthCheck performs a health check against the running server
func performHealthCheck(port int) {
	client := &http.Client{
		Timeout: 5 * time.Second,
	}

	resp, err := client.Get(fmt.Sprintf("http://localhost:%d/health", port))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Health check failed: %v\n", err)
		os.Exit(1)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		fmt.Fprintf(os.Stderr, "Health check failed: HTTP %d\n", resp.StatusCode)
		os.Exit(1)
	}

	fmt.Println("Health check passed")
	os.Exit(0)
}
