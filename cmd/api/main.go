//	@title			Blobdrop API
//	@version		1.0
//	@description	Uploads files into an object storage container under timestamped keys, lists them and issues signed read links.
//
//	@host		localhost:8080
//	@BasePath	/api/v1

package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	httpSwagger "github.com/swaggo/http-swagger/v2"

	"github.com/blobdrop/service/internal/config"
	"github.com/blobdrop/service/internal/flash"
	"github.com/blobdrop/service/internal/health"
	"github.com/blobdrop/service/internal/logger"
	appMiddleware "github.com/blobdrop/service/internal/middleware"
	"github.com/blobdrop/service/internal/naming"
	"github.com/blobdrop/service/internal/storage"
	"github.com/blobdrop/service/internal/upload"
	"github.com/blobdrop/service/internal/web"

	_ "github.com/blobdrop/service/docs/swagger"
)

const serviceName = "blobdrop"

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	log := logger.New(serviceName, cfg.LogLevel)
	slog.SetDefault(log)

	store, err := storage.New(storage.Options{
		Driver:    cfg.StorageDriver,
		Container: cfg.ContainerName,
		LocalDir:  cfg.LocalStorageDir,
		Minio: storage.MinioConfig{
			Endpoint:   cfg.StorageEndpoint,
			AccessKey:  cfg.StorageAccessKey,
			SecretKey:  cfg.StorageSecretKey,
			Region:     cfg.StorageRegion,
			UseSSL:     cfg.StorageUseSSL,
			PublicRead: cfg.StoragePublicRead,
		},
	}, log)
	if err != nil {
		log.Error("object storage init failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	initCtx, initCancel := context.WithTimeout(context.Background(), 30*time.Second)
	err = store.EnsureContainer(initCtx)
	initCancel()
	if err != nil {
		log.Error("ensure container failed",
			slog.String("container", cfg.ContainerName), slog.String("error", err.Error()))
		os.Exit(1)
	}

	views, err := web.New()
	if err != nil {
		log.Error("template parse failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// Wire dependencies: storage → service → handler
	uploadSvc := upload.NewService(store, naming.NewResolver(cfg.KeyPrefix), upload.Options{
		Overwrite:           cfg.UploadOverwrite,
		AllowedContentTypes: cfg.AllowedContentTypes,
		SniffContentType:    cfg.SniffContentType,
		SignedURLTTL:        cfg.SASTTL,
	}, log)
	flashCodec := flash.NewCodec([]byte(cfg.FlashSecret), "blobdrop_flash", cfg.IsProduction())
	uploadHandler := upload.NewHandler(uploadSvc, views, flashCodec, cfg.MaxUploadBytes(), log)

	healthHandler := health.NewHandler(5 * time.Second)
	healthHandler.Register("storage", store.Ping)

	// Router
	r := chi.NewRouter()
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(appMiddleware.Logger(log))
	r.Use(appMiddleware.Metrics)
	r.Use(chiMiddleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: cfg.CORSAllowedOrigins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-ID"},
		MaxAge:         300,
	}))

	// Health and metrics
	r.Get("/health", healthHandler.Liveness)
	r.Get("/healthz", healthHandler.Liveness)
	r.Get("/ready", healthHandler.Readiness)
	r.Handle("/metrics", promhttp.Handler())

	// Swagger UI at /swagger/
	r.Get("/swagger/*", httpSwagger.Handler(
		httpSwagger.URL("/swagger/doc.json"),
	))

	// Browser pages; JSON when the client asks for it
	uploadHandler.Routes(r)

	// API v1
	r.Route("/api/v1", uploadHandler.APIRoutes)

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  cfg.HTTPReadTimeout,
		WriteTimeout: cfg.HTTPWriteTimeout,
		IdleTimeout:  cfg.HTTPIdleTimeout,
	}

	// Start server in goroutine; wait for shutdown signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		log.Info("server listening",
			slog.String("addr", srv.Addr),
			slog.String("env", cfg.AppEnv),
			slog.String("storage", cfg.StorageDriver),
			slog.String("container", cfg.ContainerName),
			slog.String("prefix", cfg.KeyPrefix),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server error", slog.String("error", err.Error()))
			os.Exit(1)
		}
	}()

	<-quit
	log.Info("shutting down gracefully")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Error("forced shutdown", slog.String("error", err.Error()))
		os.Exit(1)
	}

	log.Info("server stopped")
}
