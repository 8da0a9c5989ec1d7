// Command server runs Quill as a single process: in-memory stores and
// vector index, uploads on local disk and an in-process worker pool.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/dharsanguruparan/Quill/internal/config"
	"github.com/dharsanguruparan/Quill/internal/logging"
	"github.com/dharsanguruparan/Quill/internal/server"
)

func main() {
	_ = godotenv.Load()
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	logger := logging.New(cfg.LogLevel)

	srv, err := server.NewLocal(cfg, logger)
	if err != nil {
		log.Fatalf("init server: %v", err)
	}
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if err := srv.Run(ctx); err != nil {
		logger.Error(ctx, "server stopped", "error", err)
		os.Exit(1)
	}
}
