package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"photobooth/internal/infra"
	"photobooth/internal/storage"
)

// sweeper applies the configured retention policy to DOWNLOADS_DIR. It is
// useful when several API processes share one directory or when the API is
// stopped and stale artifacts still have to go.
func main() {
	once := flag.Bool("once", false, "run a single sweep and exit")
	flag.Parse()

	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv).With().Str("component", "sweeper").Logger()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	policy, err := storage.NewPolicy(cfg.RetentionPolicy, cfg.RetentionTTL, cfg.RetentionKeep)
	if err != nil {
		logger.Fatal().Err(err).Msg("sweeper: invalid retention policy")
	}
	store, err := storage.NewArtifactStore(cfg.DownloadsDir, storage.Options{Policy: policy, Logger: logger, PendingGrace: cfg.RetentionSweepInterval})
	if err != nil {
		logger.Fatal().Err(err).Msg("sweeper: failed to open artifact store")
	}

	janitor := storage.NewJanitor(store, cfg.RetentionSweepInterval, logger)
	if *once {
		removed := janitor.RunOnce(ctx)
		logger.Info().Int("removed", removed).Str("dir", store.BasePath()).Msg("sweeper: done")
		return
	}
	janitor.Run(ctx)
}
