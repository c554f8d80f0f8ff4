package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"
	_ "time/tzdata"

	ical "github.com/arran4/golang-ical"
	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"

	"calproxy/internal/cache"
	"calproxy/internal/config"
	"calproxy/internal/ics"
	"calproxy/internal/log"
	"calproxy/internal/rules"
	"calproxy/internal/web"
)

const gracefulTimeout = 10 * time.Second

// Version can be overridden at build time.
var Version = "dev"

// flagConfig holds parsed CLI flag values.
type flagConfig struct {
	configPath  string
	listen      string
	debug       bool
	showVersion bool
}

func main() {
	// Best-effort .env load so CALPROXY_CONFIG can come from a local file.
	_ = godotenv.Load()

	flags := parseFlags()
	if flags.showVersion {
		fmt.Printf("calproxy %s\n", Version)
		return
	}

	conf, err := config.Load(flags.configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	// CLI -listen overrides the config file if provided.
	if flags.listen != "" {
		conf.Listen = flags.listen
	}

	logger := log.Setup(conf.Logging, flags.debug)
	logger.Info("calproxy starting",
		"version", Version,
		"config_path", flags.configPath,
		"listen", conf.Listen,
		"calendar_count", len(conf.Calendars),
		"refresh_cron", conf.RefreshCron,
	)

	fetcher := ics.NewFetcher(nil, nil, logger)
	transformer := rules.NewTransformer(logger)

	refresh := func(ctx context.Context, cal config.Calendar) (*ical.Calendar, error) {
		res, err := fetcher.Fetch(ctx, cal.URL)
		if err != nil {
			return nil, err
		}
		doc, err := ics.Parse(res.Body)
		if err != nil {
			return nil, err
		}
		return transformer.Transform(doc, cal.Rules), nil
	}

	calCache := cache.New(conf.Calendars, refresh, logger)
	server := web.NewServer(conf, calCache, logger)

	var warmer *cron.Cron
	if conf.RefreshCron != "" {
		warmer = cron.New()
		if _, err := warmer.AddFunc(conf.RefreshCron, func() {
			calCache.RefreshAll(context.Background())
		}); err != nil {
			logger.Error("failed to schedule background refresh", "error", err)
			os.Exit(1)
		}
		warmer.Start()
		logger.Info("background refresh scheduled", "cron", conf.RefreshCron)
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info("signal received, shutting down", "signal", sig.String())
	case err := <-errCh:
		if err != nil {
			logger.Error("HTTP server failed", "error", err)
			os.Exit(1)
		}
		return
	}

	if warmer != nil {
		warmer.Stop()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), gracefulTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("error during shutdown", "error", err)
		os.Exit(1)
	}
	logger.Info("calproxy stopped")
}

func parseFlags() flagConfig {
	var cfg flagConfig

	flag.StringVar(&cfg.configPath, "config", envOrDefault("CALPROXY_CONFIG", "config.yaml"), "Path to config file")
	flag.StringVar(&cfg.listen, "listen", "", "HTTP listen address (overrides config if set)")
	flag.BoolVar(&cfg.debug, "debug", false, "Enable debug logging")
	flag.BoolVar(&cfg.showVersion, "version", false, "Print version and exit")

	flag.Parse()

	return cfg
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
