package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"photobooth/internal/http/handlers"
	httpapi "photobooth/internal/http/httpapi"
	"photobooth/internal/imagegen"
	"photobooth/internal/infra"
	"photobooth/internal/metrics"
	"photobooth/internal/photobooth"
	"photobooth/internal/postprocess"
	"photobooth/internal/providers/gemini"
	"photobooth/internal/scancode"
	"photobooth/internal/storage"
	"photobooth/internal/upload"
)

func main() {
	// .env is optional
	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	for _, warning := range cfg.Warnings() {
		logger.Warn().Msg(warning)
	}

	prom := metrics.NewProm("photobooth")

	generator, err := buildGenerator(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialise image generator")
	}
	processor, err := postprocess.New(cfg.CanvasWidth, cfg.CanvasHeight, cfg.WatermarkPath)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialise post-processor")
	}
	if _, err := os.Stat(cfg.WatermarkPath); err != nil {
		logger.Warn().Err(err).Str("path", cfg.WatermarkPath).Msg("watermark not readable; generation requests will fail")
	}

	policy, err := storage.NewPolicy(cfg.RetentionPolicy, cfg.RetentionTTL, cfg.RetentionKeep)
	if err != nil {
		logger.Fatal().Err(err).Msg("invalid retention policy")
	}
	store, err := storage.NewArtifactStore(cfg.DownloadsDir, storage.Options{
		Policy:       policy,
		Logger:       logger,
		Recorder:     prom,
		PendingGrace: cfg.RetentionSweepInterval,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialise artifact store")
	}
	receiver, err := upload.NewReceiver(cfg.UploadDir, cfg.UploadMaxBytes)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialise upload receiver")
	}
	qr, err := scancode.New(cfg.QRRenderer, cfg.QRSize)
	if err != nil {
		logger.Fatal().Err(err).Msg("invalid qr renderer")
	}

	janitor := storage.NewJanitor(store, cfg.RetentionSweepInterval, logger)
	go janitor.Run(ctx)

	svc := photobooth.NewService(generator, processor, store, prom, logger)
	app := handlers.NewApp(cfg, logger, receiver, svc, store, qr, prom)
	router := httpapi.NewRouter(app, prom.Handler())
	server := infra.NewHTTPServer(cfg, router)

	go func() {
		logger.Info().
			Str("addr", server.Addr()).
			Str("generator", cfg.GeneratorMode).
			Str("retention", policy.Name()).
			Str("qr", qr.Mode()).
			Msg("photobooth listening")
		if err := server.Start(); err != nil {
			logger.Fatal().Err(err).Msg("http server failed")
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTPIdleTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("failed to shutdown server")
	}
	logger.Info().Msg("server stopped")
}

func buildGenerator(ctx context.Context, cfg *infra.Config, logger zerolog.Logger) (imagegen.Generator, error) {
	var base imagegen.Generator
	switch cfg.GeneratorMode {
	case infra.GeneratorModeSynthetic:
		base = gemini.NewSynthetic(1024, 1024)
	case infra.GeneratorModeGemini:
		if !cfg.HasAPIKey() {
			base = gemini.Unconfigured{}
			break
		}
		client, err := gemini.NewClient(ctx, gemini.Options{
			APIKey:  cfg.GoogleAPIKey,
			BaseURL: cfg.GeminiBaseURL,
			Model:   cfg.GeminiModel,
			Timeout: cfg.GenerationTimeout,
			Logger:  &logger,
		})
		if err != nil {
			return nil, err
		}
		base = client
	default:
		return nil, fmt.Errorf("unknown generator mode %q", cfg.GeneratorMode)
	}
	return imagegen.NewGated(base, cfg.GenerationConcurrency), nil
}
