package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/joho/godotenv"
	"github.com/nicoplay/nicoplay/internal/database"
	"github.com/nicoplay/nicoplay/internal/geoip"
	"github.com/nicoplay/nicoplay/internal/realtime"
	"github.com/nicoplay/nicoplay/internal/server"
	"github.com/nicoplay/nicoplay/internal/storage"
	"github.com/nicoplay/nicoplay/internal/video"
)

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Fatalf("loading .env: %v", err)
	}

	port := getEnv("PORT", "8080")
	databaseURL := os.Getenv("DATABASE_URL")
	if databaseURL == "" {
		log.Fatal("DATABASE_URL is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	db, err := database.Connect(ctx, databaseURL)
	if err != nil {
		log.Fatalf("database connection failed: %v", err)
	}
	defer db.Close()

	if err := db.Migrate(databaseURL); err != nil {
		log.Fatalf("database migration failed: %v", err)
	}
	log.Println("database migrations applied")

	maxUploadBytes := getEnvInt64("MAX_UPLOAD_BYTES", 500*1024*1024)
	baseURL := getEnv("BASE_URL", "http://localhost:8080")

	store, err := storage.New(ctx, storage.Config{
		Endpoint:       getEnv("S3_ENDPOINT", "http://localhost:3900"),
		PublicEndpoint: os.Getenv("S3_PUBLIC_ENDPOINT"),
		Bucket:         getEnv("S3_BUCKET", "nicoplay"),
		AccessKey:      os.Getenv("S3_ACCESS_KEY"),
		SecretKey:      os.Getenv("S3_SECRET_KEY"),
		Region:         getEnv("S3_REGION", "us-east-1"),
		MaxUploadBytes: maxUploadBytes,
	})
	if err != nil {
		log.Fatalf("storage initialization failed: %v", err)
	}
	if err := store.EnsureBucket(ctx); err != nil {
		log.Fatalf("storage bucket check failed: %v", err)
	}
	if err := store.SetCORS(ctx, []string{baseURL}); err != nil {
		slog.Warn("storage: could not set bucket CORS", "error", err)
	}
	log.Println("storage bucket ready")

	geo, err := geoip.New(os.Getenv("GEOIP_DB_PATH"))
	if err != nil {
		log.Fatalf("geoip initialization failed: %v", err)
	}
	defer geo.Close()
	if !geo.Enabled() {
		slog.Info("viewer geolocation disabled")
	}

	var webFS fs.FS
	if dir := os.Getenv("WEB_DIR"); dir != "" {
		webFS = os.DirFS(dir)
		log.Printf("serving player assets from %s", dir)
	} else {
		log.Println("WEB_DIR not set, static serving disabled")
	}

	workerCtx, workerCancel := context.WithCancel(context.Background())
	defer workerCancel()

	hub := realtime.NewHub()
	go hub.Run(workerCtx)

	var broker realtime.Broker = realtime.NewLocalBroker(hub)
	if redisURL := os.Getenv("REDIS_URL"); redisURL != "" {
		opts, err := redis.ParseURL(redisURL)
		if err != nil {
			log.Fatalf("invalid REDIS_URL: %v", err)
		}
		rdb := redis.NewClient(opts)
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			log.Fatalf("redis connection failed: %v", err)
		}
		redisBroker := realtime.NewRedisBroker(rdb, hub, getEnv("REDIS_CHANNEL", ""))
		go redisBroker.Run(workerCtx)
		broker = redisBroker
		log.Println("live comments fanned out through redis")
	}

	srv := server.New(server.Config{
		DB:                    db.Pool,
		Pinger:                db,
		Storage:               store,
		Hub:                   hub,
		Broker:                broker,
		Geo:                   geo,
		WebFS:                 webFS,
		BaseURL:               baseURL,
		MaxUploadBytes:        maxUploadBytes,
		S3PublicEndpoint:      os.Getenv("S3_PUBLIC_ENDPOINT"),
		AllowedFrameAncestors: strings.TrimSpace(os.Getenv("ALLOWED_FRAME_ANCESTORS")),
	})

	video.StartCleanupLoop(workerCtx, db.Pool, store, 10*time.Minute)

	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%s", port),
		Handler:           srv,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Minute,
		WriteTimeout:      2 * time.Minute,
		IdleTimeout:       120 * time.Second,
	}

	shutdownCh := make(chan os.Signal, 1)
	signal.Notify(shutdownCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		log.Printf("nicoplay listening on :%s", port)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal(err)
		}
	}()

	<-shutdownCh
	log.Println("shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("shutdown failed: %v", err)
	}
	// live sockets are hijacked, so Shutdown does not wait for them
	workerCancel()
	log.Println("shutdown complete")
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvInt64(key string, fallback int64) int64 {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseInt(value, 10, 64); err == nil {
			return parsed
		}
	}
	return fallback
}
