package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"

	"github.com/subgen/api/internal/client"
	"github.com/subgen/api/internal/handler"
	"github.com/subgen/api/internal/logging"
	"github.com/subgen/api/internal/middleware"
	"github.com/subgen/api/internal/service"
	"github.com/subgen/api/internal/storage"
	"github.com/subgen/api/internal/subtitle"
	"github.com/subgen/api/internal/tracker"
	"github.com/subgen/api/internal/worker"
	ws "github.com/subgen/api/internal/websocket"
)

func runServe() error {
	cfg, ring, err := loadConfig(true)
	if err != nil {
		return err
	}
	log := logging.WithComponent("server")

	// Storage
	store, err := storage.New(cfg.Storage.Dir)
	if err != nil {
		return err
	}
	if cfg.Storage.SweepOnStartup {
		if _, err := store.Sweep(); err != nil {
			log.Warn().Err(err).Msg("startup sweep failed")
		}
	}

	// External tools
	whisperClient := client.NewWhisperClient(&cfg.Whisper)
	chatClient := client.NewChatClient(&cfg.Chat)
	if !chatClient.IsConfigured() {
		log.Warn().Msg("chat endpoint not configured, translation requests will keep original text")
	}

	// Core
	jobTracker := tracker.New(tracker.NewMemoryStore())
	pipeline := worker.NewPipelineWorker(
		whisperClient,
		subtitle.NewTranslator(chatClient),
		jobTracker,
		store,
		worker.PipelineOptions{
			Timeout:              cfg.Pipeline.Timeout,
			ToolConcurrency:      cfg.Pipeline.ToolConcurrency,
			TranslateConcurrency: cfg.Pipeline.TranslateConcurrency,
		},
	)
	pool := worker.NewPool()
	subtitleService := service.NewSubtitleService(jobTracker, store, pool, pipeline)

	// Log tail hub
	hubCtx, stopHub := context.WithCancel(context.Background())
	defer stopHub()
	hub := ws.NewHub(ring)
	go hub.Run(hubCtx)

	// Initialize validator
	validate := validator.New()

	// Initialize Fiber app
	app := fiber.New(fiber.Config{
		ErrorHandler:          handler.ErrorHandler,
		BodyLimit:             cfg.Server.BodyLimitMB * 1024 * 1024,
		DisableStartupMessage: true,
	})

	// Global middleware
	app.Use(recover.New())
	app.Use(requestid.New())
	app.Use(logger.New(logger.Config{
		Format: "[${time}] ${status} - ${latency} ${method} ${path} ${locals:requestid}\n",
	}))
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,POST,OPTIONS",
		AllowHeaders: "Origin,Content-Type,Accept",
	}))

	handler.Register(app, handler.Routes{
		Upload:      handler.NewUploadHandler(subtitleService, validate),
		Download:    handler.NewDownloadHandler(subtitleService),
		System:      handler.NewSystemHandler(subtitleService, ring),
		Hub:         hub,
		UploadLimit: middleware.NewRateLimiter(cfg.RateLimit.UploadPerMin, cfg.RateLimit.Burst).Limit(),
		Backlog:     50,
	})

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	serveErr := make(chan error, 1)
	go func() {
		addr := ":" + cfg.Server.Port
		log.Info().Str("addr", addr).Str("env", cfg.Server.Env).Msg("server starting")
		serveErr <- app.Listen(addr)
	}()

	select {
	case sig := <-quit:
		log.Info().Str("signal", sig.String()).Msg("shutting down server")
	case err := <-serveErr:
		if err != nil {
			log.Error().Err(err).Msg("server error")
		}
	}

	if err := app.ShutdownWithTimeout(cfg.Server.ShutdownTimeout); err != nil {
		log.Error().Err(err).Msg("server shutdown error")
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := pool.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("pipeline shutdown incomplete")
	}
	stopHub()

	removed, err := store.Sweep()
	if err != nil {
		return fmt.Errorf("shutdown sweep: %w", err)
	}
	log.Info().Int("removed", removed).Msg("server stopped")
	return nil
}
