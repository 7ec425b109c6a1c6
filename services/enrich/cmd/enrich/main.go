package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"atmosphera/internal/metrics"
	"atmosphera/internal/util"
	"atmosphera/pkg/ai"
	"atmosphera/pkg/media"
	"atmosphera/pkg/queue"
	"atmosphera/pkg/storage"
	"atmosphera/services/enrich/internal/app"
	"atmosphera/services/enrich/internal/config"
)

func main() {
	cfg, err := config.Load(config.ConfigPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	logger := util.InitLogger(cfg.LogLevel)

	aiClient := ai.NewClient(ai.Config{
		APIKey:     cfg.GeminiAPIKey,
		BaseURL:    cfg.GeminiBaseURL,
		ImageModel: cfg.ImageModel,
		TTSModel:   cfg.TTSModel,
	})

	var mediaStore media.Store
	if cfg.DatabaseURL != "" {
		mediaStore, err = media.NewGormStore(cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("failed to init postgres media store: %v", err)
		}
	} else {
		logger.Warn("no databaseURL configured, artifact index is process-local")
		mediaStore = media.NewMemoryStore()
	}

	objects, err := storage.NewMinioStore(cfg.MinioEndpoint, cfg.MinioAccessKey, cfg.MinioSecretKey, cfg.MinioBucket, cfg.MinioUseSSL)
	if err != nil {
		log.Fatalf("failed to init object store: %v", err)
	}

	jobs, err := queue.NewRedisJobQueue(queue.RedisQueueConfig{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	})
	if err != nil {
		log.Fatalf("failed to init media queue: %v", err)
	}

	worker, err := app.NewWorker(aiClient, mediaStore, objects, logger)
	if err != nil {
		log.Fatalf("failed to init worker: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	jobs.Start(ctx, cfg.Concurrency, worker.Handle)
	logger.Info("enrichment worker started", "concurrency", cfg.Concurrency)

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	mux.Handle("/metrics", metrics.Handler())

	srv := &http.Server{Addr: ":" + cfg.Port, Handler: mux}
	go func() {
		<-ctx.Done()
		_ = srv.Close()
	}()
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("metrics server error", "err", err)
	}
}
