package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"tapassist/internal/api"
	"tapassist/internal/assistant"
	"tapassist/internal/commit"
	"tapassist/internal/config"
	"tapassist/internal/conversation"
	"tapassist/internal/logger"
	"tapassist/internal/storage"
)

func main() {
	// .env is optional; in deployment the environment is set by the platform.
	_ = godotenv.Load()

	cfg, err := config.Load("config.yaml")
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}
	if err := logger.Init(cfg.Log); err != nil {
		log.Fatal().Err(err).Msg("failed to initialize logger")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	mongoClient, err := storage.ConnectMongo(ctx, cfg.Storage.MongoURI)
	if err != nil {
		log.Fatal().Err(err).Msg("mongo connection failed")
	}
	defer func() {
		if err := mongoClient.Disconnect(context.Background()); err != nil {
			log.Warn().Err(err).Msg("mongo disconnect failed")
		}
	}()
	db := mongoClient.Database(cfg.Storage.MongoDatabase)

	redisClient, err := storage.ConnectRedis(ctx, cfg.Storage.RedisURL)
	if err != nil {
		log.Fatal().Err(err).Msg("redis connection failed")
	}
	defer redisClient.Close()

	chatModel, err := assistant.NewChatModel(ctx, cfg.Assistant)
	if err != nil {
		log.Fatal().Err(err).Msg("chat model setup failed")
	}
	threads := assistant.NewRedisThreadStore(redisClient, time.Duration(cfg.Assistant.ThreadTTLSeconds)*time.Second)
	svc := assistant.NewClient(cfg.Assistant, chatModel, threads)

	cache := conversation.NewCache(redisClient, time.Duration(cfg.Storage.CacheTTLSeconds)*time.Second)
	repo := conversation.NewMongoRepository(db, cache)
	hub := conversation.NewHub(svc, repo)

	engine := commit.NewEngine(commit.NewMongoRewardStore(db), commit.NewMongoPinVerifier(db))

	server := api.NewServer(hub, repo, engine,
		time.Duration(cfg.Server.ReadTimeout)*time.Second,
		time.Duration(cfg.Server.WriteTimeout)*time.Second,
	)

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Listen(cfg.Server.Addr)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			log.Fatal().Err(err).Msg("http server failed")
		}
	case <-ctx.Done():
		log.Info().Msg("shutting down")
		if err := server.Shutdown(); err != nil {
			log.Error().Err(err).Msg("shutdown failed")
		}
	}
}
