// Command api serves the Quill HTTP surface backed by Postgres, MinIO and
// an asynq queue. Ingestion runs in cmd/worker.
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
	"github.com/dharsanguruparan/Quill/internal/queue"
	"github.com/dharsanguruparan/Quill/internal/server"
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

	client := asynq.NewClient(asynq.RedisClientOpt{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	defer client.Close()

	srv, err := server.NewAPI(cfg, infra, queue.NewAsynqEnqueuer(client), logger)
	if err != nil {
		log.Fatalf("init api: %v", err)
	}
	if err := srv.Run(ctx, cfg.Address); err != nil {
		logger.Error(ctx, "api stopped", "error", err)
		os.Exit(1)
	}
}
