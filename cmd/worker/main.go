// Command worker consumes ingest tasks from the asynq queue.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"
	"github.com/joho/godotenv"

	"github.com/dharsanguruparan/Quill/internal/config"
	"github.com/dharsanguruparan/Quill/internal/logging"
	"github.com/dharsanguruparan/Quill/internal/server"
	"github.com/dharsanguruparan/Quill/internal/worker"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	_ = godotenv.Load()
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	logger := logging.New(cfg.LogLevel)

	infra, err := server.OpenInfra(ctx, cfg)
	if err != nil {
		log.Fatalf("init infra: %v", err)
	}
	defer infra.Close()

	limits, err := server.NewPlans(cfg, infra.Subscriptions)
	if err != nil {
		log.Fatalf("init plans: %v", err)
	}
	pipeline := server.NewPipeline(cfg, infra.Files, infra.Fetcher(cfg), limits, server.NewEmbedder(cfg), infra.Index, logger)

	srv := asynq.NewServer(asynq.RedisClientOpt{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	}, asynq.Config{
		Concurrency: cfg.ProcessingPool,
	})
	processor := worker.NewProcessor(infra.Files, pipeline, logger)

	go func() {
		<-ctx.Done()
		srv.Shutdown()
	}()

	logger.Info(ctx, "worker started", "concurrency", cfg.ProcessingPool)
	if err := srv.Run(processor.Handler()); err != nil {
		logger.Error(ctx, "worker stopped", "error", err)
		os.Exit(1)
	}
}
