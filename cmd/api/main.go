package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/goonidz/purple-sub000/internal/adapter/repo"
	"github.com/goonidz/purple-sub000/internal/engine"
	"github.com/goonidz/purple-sub000/internal/http/handlers"
	httpapi "github.com/goonidz/purple-sub000/internal/http/httpapi"
	"github.com/goonidz/purple-sub000/internal/infra"
	"github.com/goonidz/purple-sub000/internal/providers/image"
	"github.com/goonidz/purple-sub000/internal/providers/prompt"
	"github.com/goonidz/purple-sub000/internal/providers/transcribe"
	"github.com/goonidz/purple-sub000/internal/storage"
)

func main() {
	// Load .env (optional)
	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv)

	ctx := context.Background()
	dbpool, err := infra.NewDBPool(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect database")
	}
	defer dbpool.Close()

	if err := repo.Migrate(ctx, dbpool); err != nil {
		logger.Fatal().Err(err).Msg("failed to apply schema")
	}

	jobs := repo.NewJobRepository(dbpool)
	projects := repo.NewProjectRepository(dbpool)
	history := repo.NewThumbnailHistoryRepository(dbpool)

	transcriber, err := transcribe.NewClient(transcribe.Options{
		BaseURL: cfg.TranscribeBaseURL,
		APIKey:  cfg.TranscribeAPIKey,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("transcription client")
	}
	prompter, err := prompt.NewClient(prompt.Options{
		BaseURL: cfg.PromptBaseURL,
		APIKey:  cfg.PromptAPIKey,
		Model:   cfg.PromptModel,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("prompt client")
	}
	predictions, err := image.NewClient(image.Options{
		BaseURL: cfg.PredictionBaseURL,
		APIKey:  cfg.PredictionAPIKey,
		Model:   cfg.ImageModel,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("prediction client")
	}

	store, err := storage.NewFileStore(cfg.StoragePath, cfg.StorageBaseURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("asset store")
	}
	fetcher := storage.NewFetcher(nil, 0)

	eng, err := engine.New(engine.Deps{
		Jobs:        jobs,
		Projects:    projects,
		History:     history,
		Transcriber: transcriber,
		Prompts:     prompter,
		Predictions: predictions,
		Store:       store,
		Fetcher:     fetcher,
		Logger:      logger,
		Config: engine.Config{
			PollInterval:      cfg.PollInterval,
			PollMaxWait:       cfg.PollMaxWait,
			PromptBatchSize:   cfg.PromptBatchSize,
			ImageBatchSize:    cfg.ImageBatchSize,
			StaleJobThreshold: cfg.StaleJobThreshold,
			JanitorInterval:   cfg.JanitorInterval,
		},
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("engine")
	}
	eng.Start()

	app := handlers.NewApp(eng, jobs, logger)
	router := httpapi.NewRouter(app, cfg, logger)
	server := infra.NewHTTPServer(cfg, router)

	go func() {
		logger.Info().Msgf("API listening on :%s", cfg.Port)
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("http server failed")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("failed to shutdown server")
	}
	if err := eng.Close(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("failed to drain job engine")
	}
	logger.Info().Msg("server stopped")
}
