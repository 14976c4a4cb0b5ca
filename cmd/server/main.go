package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ahrdadan/headctl/internal/api"
	"github.com/ahrdadan/headctl/internal/browser"
	"github.com/ahrdadan/headctl/internal/config"
	"github.com/ahrdadan/headctl/internal/events"
	"github.com/ahrdadan/headctl/internal/logging"
	"github.com/ahrdadan/headctl/internal/scratch"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"go.uber.org/zap"
)

func main() {
	// Parse CLI flags
	cfg := config.ParseFlags()

	// Handle --version and --help
	config.HandleFlags(cfg)

	log := logging.New(cfg.LogLevel, logging.Format(cfg.LogFormat))
	defer func() { _ = log.Sync() }()

	log.Info("starting", zap.String("app", config.AppName), zap.String("version", config.Version))

	// Chromium setup
	chromeBin := cfg.BrowserBin
	if chromeBin == "" {
		installCtx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
		bin, err := browser.InstallChrome(installCtx, cfg.ChromeRevision, cfg.InstallDeps, log)
		cancel()
		if err != nil {
			log.Warn("chromium download failed, falling back to launcher lookup", zap.Error(err))
		}
		chromeBin = bin
	}

	// Operation events: live subscribers, plus NATS when configured
	hub := events.NewHub()
	defer hub.Close()

	notifiers := events.Multi{hub}
	if cfg.NatsURL != "" {
		pub, err := events.ConnectNATS(cfg.NatsURL, cfg.NatsSubject, log)
		if err != nil {
			log.Warn("NATS unavailable, events stay local", zap.Error(err))
		} else {
			defer pub.Close()
			notifiers = append(notifiers, pub)
		}
	}

	// Browser service
	launchCfg := browser.LaunchConfig{
		Bin:             chromeBin,
		UserDataDir:     browser.DefaultUserDataDir(),
		Window:          browser.Size{Width: cfg.WindowWidth, Height: cfg.WindowHeight},
		PageLoadTimeout: cfg.PageLoadTimeout,
		ScriptTimeout:   cfg.ScriptTimeout,
	}
	opts := browser.DefaultOptions()
	opts.DefaultURL = cfg.DefaultURL
	opts.NavigateTimeout = cfg.PageLoadTimeout

	svc := browser.NewService(
		browser.NewRodLauncher(launchCfg, log),
		browser.NewProcessReaper(launchCfg.UserDataDir, log),
		opts,
		notifiers,
		log,
	)

	if !cfg.NoAutostart {
		go func() {
			if err := svc.Start(context.Background()); err != nil {
				log.Error("browser autostart failed, use POST /api/start to retry", zap.Error(err))
			}
		}()
	}

	// Scratch files for screenshot downloads
	dir, err := scratch.New(cfg.ScratchDir, cfg.ScratchTTL, log)
	if err != nil {
		log.Fatal("failed to prepare scratch dir", zap.Error(err))
	}
	dir.Start(cfg.ScratchTTL / 2)
	defer dir.Stop()

	// Create Fiber app
	app := fiber.New(fiber.Config{
		AppName:               config.AppName,
		ErrorHandler:          api.ErrorHandler,
		DisableStartupMessage: true,
	})

	// Middleware
	app.Use(recover.New())
	app.Use(logger.New())
	app.Use(cors.New())

	// Setup routes
	handler := api.NewHandler(svc, dir, hub, log)
	rateLimiter := api.SetupRoutes(app, handler, api.RouteConfig{
		RateLimitRequests: cfg.RateLimitRequests,
		RateLimitWindow:   time.Minute,
		RateLimitBurst:    max(1, cfg.RateLimitRequests/6),
	})
	defer rateLimiter.Close()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-quit
		log.Info("shutting down server")
		if err := svc.Stop(context.Background()); err != nil {
			log.Warn("failed to stop browser", zap.Error(err))
		}
		if err := app.Shutdown(); err != nil {
			log.Error("error during shutdown", zap.Error(err))
		}
	}()

	// Start server
	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	log.Info("listening", zap.String("addr", addr), zap.Bool("autostart", !cfg.NoAutostart))

	if err := app.Listen(addr); err != nil {
		log.Error("server stopped", zap.Error(err))
	}

	if err := svc.Stop(context.Background()); err != nil {
		log.Warn("failed to stop browser", zap.Error(err))
	}
}
