package main

import (
	"context"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mvalenta/kiri/agent"
	"github.com/mvalenta/kiri/bot"
	"github.com/mvalenta/kiri/config"
	"github.com/mvalenta/kiri/history"
	"github.com/mvalenta/kiri/llm"
	"github.com/mvalenta/kiri/logstore"
	"github.com/mvalenta/kiri/profile"
	"github.com/mvalenta/kiri/router"
	"github.com/mvalenta/kiri/soul"
	"github.com/mvalenta/kiri/web"
)

func main() {
	logLevel := flag.String("log-level", "info", "Log level: debug, info, warn, error")
	logFormat := flag.String("log-format", "text", "Log format: text or json")
	configPath := flag.String("config", "", "Path to config file")
	flag.Parse()

	// Config path: --config flag > KIRI_CONFIG env > default
	cfgPath := config.Resolve()
	if *configPath != "" {
		cfgPath = *configPath
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		setupLogger(*logLevel, *logFormat, nil)
		slog.Error("failed to load config", "error", err, "path", cfgPath)
		os.Exit(1)
	}

	var logs *logstore.Store
	if cfg.Log.DBPath != "" {
		logs, err = logstore.Open(cfg.Log.DBPath)
		if err != nil {
			setupLogger(*logLevel, *logFormat, nil)
			slog.Error("failed to open log store", "error", err)
			os.Exit(1)
		}
		defer logs.Close()
	}
	setupLogger(*logLevel, *logFormat, logs)
	slog.Info("config loaded", "path", cfgPath)

	profiles := profile.New(cfg.Profile.Path)
	if err := profiles.Load(); err != nil {
		slog.Error("failed to load profile store", "error", err)
		os.Exit(1)
	}
	slog.Info("profile store loaded", "path", cfg.Profile.Path)

	if cfg.LLM.FallbackKey == "" {
		slog.Warn("llm.fallback_key not set, no key-level fallback available")
	}

	b, err := bot.New(cfg.Bot.Token)
	if err != nil {
		slog.Error("failed to create bot", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	res := &agent.Resources{
		Cfg:       cfg,
		Session:   b.Session(),
		LLM:       llm.New(&cfg.LLM),
		History:   history.New(cfg.History.Window),
		Profiles:  profiles,
		Tiers:     router.New(cfg.Router.LengthThreshold, cfg.Router.Keywords),
		SoulText:  soul.Load(cfg.Bot.SoulFile),
		StartedAt: time.Now(),
	}

	agentRouter := agent.NewRouter(ctx, res)
	b.SetRouter(agentRouter)

	var webSrv *web.Server
	if cfg.Web.Addr != "" {
		webSrv = web.New(cfg.Web.Addr, res, agentRouter, logs)
		go func() {
			slog.Info("web dashboard listening", "addr", cfg.Web.Addr)
			if err := webSrv.Start(); err != nil && err != http.ErrServerClosed {
				slog.Error("web server stopped", "error", err)
			}
		}()
	}

	if err := b.Start(); err != nil {
		slog.Error("failed to start bot", "error", err)
		os.Exit(1)
	}
	slog.Info("bot started")

	// Block until SIGTERM or SIGINT.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
	<-sigCh

	slog.Info("shutting down")
	cancel()
	b.Stop()
	agentRouter.WaitForDrain()
	if webSrv != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		webSrv.Shutdown(shutdownCtx)
		shutdownCancel()
	}
	slog.Info("shutdown complete")
}

// setupLogger installs the default slog handler, teeing records into the
// SQLite log store when one is configured.
func setupLogger(level, format string, logs *logstore.Store) {
	var l slog.Level
	switch level {
	case "debug":
		l = slog.LevelDebug
	case "warn":
		l = slog.LevelWarn
	case "error":
		l = slog.LevelError
	default:
		l = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: l}
	var h slog.Handler
	if format == "json" {
		h = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		h = slog.NewTextHandler(os.Stderr, opts)
	}
	if logs != nil {
		h = logstore.NewHandler(h, logs)
	}
	slog.SetDefault(slog.New(h))
}
