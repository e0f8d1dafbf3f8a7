// @title                       Contacts API
// @version                     1.0
// @description                 Personal address book: per-user contacts with photos, paging, sorting and filtering.
// @BasePath                    /
// @securityDefinitions.apikey  BearerAuth
// @in                          header
// @name                        Authorization
// @description                 Type "Bearer" followed by a space and the access token.
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

	"github.com/phonebook/contacts-api/internal/api"
	"github.com/phonebook/contacts-api/internal/api/handler"
	"github.com/phonebook/contacts-api/internal/core/service"
	mongodb "github.com/phonebook/contacts-api/internal/infrastructure/db/mongo"
	redisdb "github.com/phonebook/contacts-api/internal/infrastructure/db/redis"
	"github.com/phonebook/contacts-api/internal/infrastructure/queue"
	"github.com/phonebook/contacts-api/internal/infrastructure/storage"
	"github.com/phonebook/contacts-api/internal/pkg/config"
	"github.com/phonebook/contacts-api/pkg/logger"
)

const shutdownTimeout = 15 * time.Second

func main() {
	// A missing .env is fine; the real environment wins either way.
	_ = godotenv.Load()

	cfg := config.Load()
	log := logger.Init(logger.OptionsFor(cfg.Env, cfg.LogLevel))

	if cfg.JWTSecret == "" {
		log.Fatal().Msg("JWT_SECRET must be set")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// --- Storage backends ---
	mongoClient, db, err := mongodb.Connect(ctx, mongodb.Config{
		URI:      cfg.Mongo.URI,
		Database: cfg.Mongo.Database,
		AppName:  "contacts-api",
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to mongodb")
	}
	defer func() {
		disconnectCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		_ = mongoClient.Disconnect(disconnectCtx)
	}()

	rdb, err := redisdb.Connect(ctx, redisdb.Config{Addr: cfg.Redis.Addr, DB: cfg.Redis.DB})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to redis")
	}
	defer rdb.Close()

	contactRepo := mongodb.NewContactRepository(db)
	authRepo := mongodb.NewAuthRepository(db)
	if err := mongodb.Bootstrap(ctx, contactRepo, authRepo); err != nil {
		log.Fatal().Err(err).Msg("failed to prepare mongodb collections")
	}

	sink, err := storage.New(ctx, cfg.Storage)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialise photo storage")
	}
	uploadDir := ""
	if local, ok := sink.(*storage.LocalSink); ok {
		uploadDir = local.Dir()
	}

	// --- Background workers ---
	workerCtx, stopWorkers := context.WithCancel(context.Background())
	cleaner := queue.NewDispatcher(cfg.Cleanup.Workers, sink, log.With().Str("component", "photo_cleanup").Logger())
	cleaner.Start(workerCtx)

	// --- Services ---
	contactService := service.NewContactService(
		contactRepo,
		sink,
		cleaner,
		redisdb.NewIdempotencyStore(rdb),
		log.With().Str("component", "contact_service").Logger(),
	)
	authService := service.NewAuthService(authRepo, cfg.JWTSecret, cfg.JWTTTL)

	e := api.NewRouter(api.Deps{
		Config:         cfg,
		Logger:         log,
		ContactService: contactService,
		AuthService:    authService,
		Redis:          rdb,
		Readiness: map[string]handler.Pinger{
			"mongodb": handler.MongoPinger(db),
			"redis":   handler.RedisPinger(rdb),
		},
		UploadDir: uploadDir,
	})

	go func() {
		log.Info().
			Str("port", cfg.Port).
			Str("env", cfg.Env).
			Str("photo_backend", sink.Backend()).
			Msg("contacts api listening")
		if err := e.Start(":" + cfg.Port); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("http server stopped")
			stop()
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("graceful shutdown failed")
	}

	// In-flight requests are done; let queued photo removals stop with them.
	stopWorkers()
	cleaner.Wait()
}
