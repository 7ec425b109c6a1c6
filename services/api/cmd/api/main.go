package main

import (
	"log"
	"log/slog"
	"net/http"
	"time"

	"atmosphera/internal/ratelimit"
	"atmosphera/internal/util"
	"atmosphera/services/api/internal/app"
	"atmosphera/services/api/internal/config"
	"atmosphera/services/api/internal/server"
)

func main() {
	cfg, err := config.Load(config.ConfigPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger := util.InitLogger(cfg.LogLevel)
	refineDebounce, err := config.ParseRefineDebounce(cfg.RefineDebounce)
	if err != nil {
		log.Fatalf("failed to parse refine debounce: %v", err)
	}

	appCore, err := app.New(app.Config{
		AIKey:          cfg.GeminiAPIKey,
		AIBaseURL:      cfg.GeminiBaseURL,
		TextModel:      cfg.TextModel,
		ImageModel:     cfg.ImageModel,
		TTSModel:       cfg.TTSModel,
		LiveModel:      cfg.LiveModel,
		CatalogURL:     cfg.CatalogBaseURL,
		CoverURL:       cfg.CoverBaseURL,
		RedisAddr:      cfg.RedisAddr,
		RedisPassword:  cfg.RedisPassword,
		DatabaseURL:    cfg.DatabaseURL,
		MinioEndpoint:  cfg.MinioEndpoint,
		MinioAccessKey: cfg.MinioAccessKey,
		MinioSecretKey: cfg.MinioSecretKey,
		MinioBucket:    cfg.MinioBucket,
		MinioUseSSL:    cfg.MinioUseSSL,
		SessionSecret:  cfg.SessionSecret,
		RefineDebounce: refineDebounce,
	})
	if err != nil {
		log.Fatalf("failed to init app: %v", err)
	}
	defer appCore.Close()

	if !appCore.AIConfigured() {
		logger.Warn("no AI key configured, AI features will report unavailable")
	}

	var limiter *ratelimit.FixedWindowLimiter
	if cfg.RedisAddr != "" && cfg.RateLimitPerMinute > 0 {
		limiter, err = ratelimit.NewRedisFixedWindowLimiter(cfg.RedisAddr, cfg.RedisPassword, "", cfg.RateLimitPerMinute, time.Minute)
		if err != nil {
			log.Fatalf("failed to init rate limiter: %v", err)
		}
	}

	httpServer, err := server.New(server.Config{
		App:     appCore,
		Limiter: limiter,
	})
	if err != nil {
		log.Fatalf("failed to init server: %v", err)
	}

	addr := ":" + cfg.Port
	srv := &http.Server{
		Addr:         addr,
		Handler:      httpServer.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	slog.Info("api server listening", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("server error", "err", err)
	}
}
