package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"chatrelay/backend/internal/api/handler"
	"chatrelay/backend/internal/auth"
	"chatrelay/backend/internal/blob"
	"chatrelay/backend/internal/chathub"
	"chatrelay/backend/internal/config"
	"chatrelay/backend/internal/logging"
	"chatrelay/backend/internal/storage"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func setupDependencies(cfg *config.Config, logger *zap.Logger) (*gorm.DB, *redis.Client) {
	db, err := gorm.Open(postgres.Open(cfg.DatabaseDSN), &gorm.Config{})
	if err != nil {
		logger.Fatal("failed to connect PostgreSQL", zap.Error(err))
	}
	if err := storage.AutoMigrate(db); err != nil {
		logger.Fatal("failed to run migrations", zap.Error(err))
	}

	// Redis only backs the presence mirror, so the server runs without it.
	var rdb *redis.Client
	if cfg.RedisAddr != "" {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		if err := rdb.Ping(ctx).Err(); err != nil {
			logger.Warn("redis unavailable, presence mirror disabled", zap.String("addr", cfg.RedisAddr), zap.Error(err))
			rdb.Close()
			rdb = nil
		}
	}

	logger.Info("database connected, migrations complete", zap.Bool("redis", rdb != nil))
	return db, rdb
}

func setupBlobStore(ctx context.Context, cfg *config.Config, logger *zap.Logger) (blob.Store, string) {
	if cfg.BlobBackend == "minio" {
		store, err := blob.NewMinioStore(ctx, cfg.MinioEndpoint, cfg.MinioAccessKey, cfg.MinioSecretKey, cfg.MinioBucket, cfg.MinioUseSSL, logger)
		if err != nil {
			logger.Fatal("failed to connect MinIO", zap.Error(err))
		}
		return store, ""
	}
	store, err := blob.NewDiskStore(cfg.UploadDir, cfg.PublicBaseURL)
	if err != nil {
		logger.Fatal("failed to prepare upload dir", zap.Error(err))
	}
	return store, store.Dir()
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}
	logger, err := logging.New(cfg.LogLevel)
	if err != nil {
		log.Fatalf("failed to build logger: %v", err)
	}
	defer logger.Sync()

	logger.Info("starting chatrelay backend", zap.String("addr", cfg.HTTPAddr))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, rdb := setupDependencies(cfg, logger)
	store := storage.NewStorageService(db, rdb, logger)

	// The mirror outlives the signal context so the offline changes from
	// router.Close still reach Redis.
	mirrorCtx, stopMirror := context.WithCancel(context.Background())
	mirrorDone := make(chan struct{})
	var mirror chathub.PresenceNotifier
	if rdb != nil {
		m := chathub.NewPresenceMirror(store, logger)
		go func() {
			defer close(mirrorDone)
			m.Run(mirrorCtx)
		}()
		mirror = m
	} else {
		close(mirrorDone)
	}

	router := chathub.NewRouter(store, chathub.Options{
		TypingTimeout:  cfg.TypingTimeout,
		ChatRequestTTL: cfg.ChatRequestTTL,
		HistoryLimit:   cfg.HistoryLimit,
		Logger:         logger,
		Mirror:         mirror,
	})
	dispatcher := chathub.NewDispatcher(router, logger)
	tokens := auth.NewTokenService(cfg.JWTSecret, cfg.JWTTTL, cfg.JWTIssuer)
	blobs, uploadDir := setupBlobStore(ctx, cfg, logger)

	h := handler.NewHandler(router, dispatcher, store, tokens, blobs, logger)
	h.SendBuffer = cfg.SendBuffer
	h.HistoryLimit = cfg.HistoryLimit
	h.MaxUploadBytes = cfg.MaxUploadBytes

	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery(), handler.RequestLogger(logger))
	h.Routes(r)
	if uploadDir != "" {
		r.Static("/uploads", uploadDir)
	}

	// No WriteTimeout: it would cut long-lived WebSocket connections.
	server := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		MaxHeaderBytes:    1 << 20,
	}

	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("http server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("http shutdown", zap.Error(err))
	}
	router.Close()
	stopMirror()
	<-mirrorDone
	if rdb != nil {
		rdb.Close()
	}
}
