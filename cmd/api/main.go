package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"storefront/internal/access"
	"storefront/internal/api"
	"storefront/internal/cart"
	"storefront/internal/config"
	"storefront/internal/funnel"
	"storefront/internal/repository"
)

func main() {
	cfg := config.Load()
	log := zerolog.New(os.Stdout).With().Timestamp().Logger()

	ctx := context.Background()

	// Postgres store for trials, purchases and abandoned carts
	cred := &repository.Credentials{
		Host:              cfg.PostgresHost,
		Port:              cfg.PostgresPort,
		User:              cfg.PostgresUser,
		Password:          cfg.PostgresPassword,
		DBName:            cfg.PostgresDB,
		MigrationsDirPath: cfg.MigrationsPath,
	}
	store, err := repository.NewStore(cred)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to postgres")
	}
	defer store.Close()
	if err := store.RunMigrations(cred); err != nil {
		log.Fatal().Err(err).Msg("failed to run migrations")
	}
	log.Info().Str("host", cfg.PostgresHost).Msg("connected to postgres")

	// Cart storage backend
	var storage cart.Storage
	switch cfg.CartBackend {
	case "mongo":
		mongoDB, err := cart.ConnectMongoDB(ctx, cfg.MongoURI, cfg.MongoDBName)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to mongodb")
		}
		defer mongoDB.Client().Disconnect(ctx)

		mongoStorage := cart.NewMongoStorage(mongoDB)
		if err := mongoStorage.CreateIndexes(ctx); err != nil {
			log.Fatal().Err(err).Msg("failed to create mongo indexes")
		}
		storage = mongoStorage
		log.Info().Str("uri", cfg.MongoURI).Msg("connected to mongodb")
	default:
		redisClient := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       0,
		})
		defer redisClient.Close()
		if err := redisClient.Ping(ctx).Err(); err != nil {
			log.Fatal().Err(err).Msg("redis connection failed")
		}
		storage = cart.NewRedisStorage(redisClient, log)
		log.Info().Str("addr", cfg.RedisAddr).Msg("connected to redis")
	}

	publisher := funnel.NewKafkaPublisher(cfg.KafkaBrokers...)
	defer publisher.Close()

	recorder := funnel.NewRecorder(store, publisher, cfg.FunnelDebounce, log)
	defer recorder.Close()

	carts := cart.NewService(storage, recorder, log)
	resolver := access.NewResolver(store, log)

	handler := api.NewHandler(carts, resolver, recorder, cfg.RequestTimeout, log)
	sessionStore := api.NewSessionStore(cfg.SessionSecret)
	router := api.NewRouter(handler, sessionStore, cfg.JWTSecret, cfg.RequestTimeout, log)

	srv := &http.Server{
		Addr:    ":" + cfg.ServerPort,
		Handler: router,
	}

	go func() {
		log.Info().Str("port", cfg.ServerPort).Msg("storefront api listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}
}
