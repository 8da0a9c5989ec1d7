// Package server wires configuration into the concrete services behind the
// api, worker and single-process binaries.
package server

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dharsanguruparan/Quill/internal/api"
	"github.com/dharsanguruparan/Quill/internal/chat"
	"github.com/dharsanguruparan/Quill/internal/config"
	"github.com/dharsanguruparan/Quill/internal/database"
	"github.com/dharsanguruparan/Quill/internal/embedding"
	"github.com/dharsanguruparan/Quill/internal/generation"
	"github.com/dharsanguruparan/Quill/internal/ingest"
	"github.com/dharsanguruparan/Quill/internal/loader"
	"github.com/dharsanguruparan/Quill/internal/logging"
	pdfutil "github.com/dharsanguruparan/Quill/internal/pdf"
	"github.com/dharsanguruparan/Quill/internal/plans"
	"github.com/dharsanguruparan/Quill/internal/processing"
	"github.com/dharsanguruparan/Quill/internal/queue"
	"github.com/dharsanguruparan/Quill/internal/repository"
	"github.com/dharsanguruparan/Quill/internal/s3storage"
	"github.com/dharsanguruparan/Quill/internal/signing"
	"github.com/dharsanguruparan/Quill/internal/storage"
	"github.com/dharsanguruparan/Quill/internal/vectorindex"
)

// NewEmbedder builds the Ollama embedding client.
func NewEmbedder(cfg *config.Config) *embedding.Ollama {
	return embedding.NewOllama(embedding.Config{
		BaseURL:           cfg.OllamaURL,
		Model:             cfg.EmbeddingModel,
		Timeout:           cfg.EmbedTimeout,
		Dimensions:        cfg.EmbeddingDimensions,
		RequestsPerSecond: cfg.EmbeddingRPS,
	})
}

// generatorOptions starts from the generation defaults. Zero values in cfg
// leave the default in place.
func generatorOptions(cfg *config.Config) generation.Options {
	opts := generation.DefaultOptions()
	if cfg.Temperature > 0 {
		opts.Temperature = cfg.Temperature
	}
	if cfg.MaxNewTokens > 0 {
		opts.MaxNewTokens = cfg.MaxNewTokens
	}
	return opts
}

// NewGenerator picks the answer generator named by cfg.GenerationProvider.
func NewGenerator(cfg *config.Config) (generation.Generator, error) {
	opts := generatorOptions(cfg)
	switch cfg.GenerationProvider {
	case config.ProviderHuggingFace:
		return generation.NewHuggingFace(generation.HuggingFaceConfig{
			BaseURL: cfg.HuggingFaceURL,
			Model:   cfg.GenerationModel,
			Token:   cfg.HuggingFaceToken,
			Timeout: cfg.GenerateTimeout,
			Options: opts,
		}), nil
	case config.ProviderOllama:
		return generation.NewOllama(generation.OllamaConfig{
			BaseURL: cfg.OllamaURL,
			Model:   cfg.GenerationModel,
			Timeout: cfg.GenerateTimeout,
			Options: opts,
		}), nil
	default:
		return nil, fmt.Errorf("unknown generation provider %q", cfg.GenerationProvider)
	}
}

// NewPlans loads the plan table and resolves users through subs.
func NewPlans(cfg *config.Config, subs plans.SubscriptionLookup) (*plans.Provider, error) {
	table, err := plans.LoadFile(cfg.PlansFile)
	if err != nil {
		return nil, fmt.Errorf("load plans: %w", err)
	}
	return plans.NewProvider(table, subs), nil
}

// NewChat builds the chat service on top of the given stores and index.
func NewChat(cfg *config.Config, files storage.FileStore, messages storage.MessageStore, embedder embedding.Embedder, index vectorindex.Index, log logging.Logger) (*chat.Service, error) {
	generator, err := NewGenerator(cfg)
	if err != nil {
		return nil, err
	}
	assembler := chat.NewAssembler(chat.AssemblerConfig{
		Files:         files,
		Messages:      messages,
		Embedder:      embedder,
		Index:         index,
		TopK:          cfg.TopK,
		HistoryWindow: cfg.HistoryWindow,
		IndexTimeout:  cfg.IndexTimeout,
	})
	return chat.NewService(assembler, generator, log), nil
}

// NewPipeline builds the ingestion pipeline. Documents are fetched through
// fetcher and parsed as PDFs.
func NewPipeline(cfg *config.Config, files storage.FileStore, fetcher loader.Fetcher, limits ingest.LimitsProvider, embedder embedding.Embedder, index vectorindex.Index, log logging.Logger) *ingest.Pipeline {
	return ingest.NewPipeline(ingest.Deps{
		Files:        files,
		Loader:       loader.New(fetcher, pdfutil.Parser{}, cfg.FetchTimeout),
		Limits:       limits,
		Embedder:     embedder,
		Index:        index,
		Log:          log,
		IndexTimeout: cfg.IndexTimeout,
	})
}

// Infra holds the Postgres and object store backed services shared by the
// api and worker binaries.
type Infra struct {
	Pool          *pgxpool.Pool
	Files         *repository.FileRepository
	Messages      *repository.MessageRepository
	Subscriptions *repository.SubscriptionRepository
	Index         *vectorindex.Postgres
	Blobs         *s3storage.Storage
}

// OpenInfra connects to Postgres, applies migrations and prepares the upload
// bucket.
func OpenInfra(ctx context.Context, cfg *config.Config) (*Infra, error) {
	pool, err := database.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}
	if err := database.Migrate(ctx, pool); err != nil {
		pool.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	blobs, err := s3storage.New(cfg, cfg.MaxUploadSize)
	if err != nil {
		pool.Close()
		return nil, err
	}
	if err := blobs.EnsureBuckets(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return &Infra{
		Pool:          pool,
		Files:         repository.NewFileRepository(pool),
		Messages:      repository.NewMessageRepository(pool),
		Subscriptions: repository.NewSubscriptionRepository(pool),
		Index:         vectorindex.NewPostgres(pool),
		Blobs:         blobs,
	}, nil
}

// Fetcher reads uploads from the bucket first and falls back to File.URL
// for files stored elsewhere.
func (i *Infra) Fetcher(cfg *config.Config) loader.Fetcher {
	return loader.FirstOf(i.Blobs, loader.NewHTTPFetcher(nil, cfg.MaxUploadSize))
}

func (i *Infra) Close() {
	i.Pool.Close()
}

// NewAPI builds the HTTP server for the distributed deployment. Ingestion is
// handed to enqueuer.
func NewAPI(cfg *config.Config, infra *Infra, enqueuer queue.Enqueuer, log logging.Logger) (*api.Server, error) {
	chatService, err := NewChat(cfg, infra.Files, infra.Messages, NewEmbedder(cfg), infra.Index, log)
	if err != nil {
		return nil, err
	}
	return api.New(api.Deps{
		Chat:          chatService,
		Hook:          ingest.NewHook(infra.Files, enqueuer, log),
		Files:         infra.Files,
		Blobs:         infra.Blobs,
		Signer:        signing.NewSigner(cfg.HookSecret, cfg.HookTolerance),
		JWTSecret:     cfg.JWTSecret,
		Log:           log,
		MaxUploadSize: cfg.MaxUploadSize,
	}), nil
}

// Local runs every component in one process: in-memory stores and index,
// uploads on disk and an in-process worker pool.
type Local struct {
	cfg       *config.Config
	Store     *storage.MemoryStore
	Index     *vectorindex.Memory
	processor *processing.Processor
	api       *api.Server
	once      sync.Once
}

// NewLocal builds a Local server from cfg.
func NewLocal(cfg *config.Config, log logging.Logger) (*Local, error) {
	if log == nil {
		log = logging.Nop()
	}
	blobs, err := storage.NewDiskBlobs(cfg.BlobDir)
	if err != nil {
		return nil, err
	}
	store := storage.NewMemoryStore()
	embedder := NewEmbedder(cfg)
	index := vectorindex.NewMemory(embedder.Dimensions())

	limits, err := NewPlans(cfg, store)
	if err != nil {
		return nil, err
	}
	fetcher := loader.FirstOf(blobs, loader.NewHTTPFetcher(nil, cfg.MaxUploadSize))
	pipeline := NewPipeline(cfg, store, fetcher, limits, embedder, index, log)
	processor := processing.New(store, pipeline, cfg.ProcessingPool, log)

	chatService, err := NewChat(cfg, store, store, embedder, index, log)
	if err != nil {
		return nil, err
	}
	srv := api.New(api.Deps{
		Chat:          chatService,
		Hook:          ingest.NewHook(store, processor, log),
		Files:         store,
		Blobs:         blobs,
		Signer:        signing.NewSigner(cfg.HookSecret, cfg.HookTolerance),
		JWTSecret:     cfg.JWTSecret,
		Log:           log,
		MaxUploadSize: cfg.MaxUploadSize,
	})
	return &Local{
		cfg:       cfg,
		Store:     store,
		Index:     index,
		processor: processor,
		api:       srv,
	}, nil
}

// Handler exposes the routed HTTP handler. Workers are not started.
func (l *Local) Handler() http.Handler {
	return l.api.Handler()
}

// Run starts the worker pool once and serves HTTP until ctx is cancelled.
// In-flight ingestion finishes before Run returns.
func (l *Local) Run(ctx context.Context) error {
	l.once.Do(func() {
		l.processor.Start(ctx)
	})
	err := l.api.Run(ctx, l.cfg.Address)
	l.processor.Wait()
	return err
}
