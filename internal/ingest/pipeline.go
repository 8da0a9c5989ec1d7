// Package ingest turns a completed upload into searchable vectors and keeps
// the file's status in step with the outcome.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/dharsanguruparan/Quill/internal/embedding"
	"github.com/dharsanguruparan/Quill/internal/loader"
	"github.com/dharsanguruparan/Quill/internal/logging"
	"github.com/dharsanguruparan/Quill/internal/model"
	"github.com/dharsanguruparan/Quill/internal/storage"
	"github.com/dharsanguruparan/Quill/internal/vectorindex"
)

// DocumentLoader fetches and parses an uploaded file.
type DocumentLoader interface {
	Load(ctx context.Context, file model.File, maxBytes int64) (*loader.Document, error)
}

// LimitsProvider returns the plan limits of a user.
type LimitsProvider interface {
	Limits(ctx context.Context, userID string) (model.PlanLimits, error)
}

// Ingester is what the queue workers call.
type Ingester interface {
	Ingest(ctx context.Context, file model.File) error
}

// Pipeline runs the ingestion steps for one file at a time. It is safe for
// concurrent use on different files.
type Pipeline struct {
	files        storage.FileStore
	loader       DocumentLoader
	limits       LimitsProvider
	embedder     embedding.Embedder
	index        vectorindex.Index
	log          logging.Logger
	indexTimeout time.Duration
}

var _ Ingester = (*Pipeline)(nil)

// Deps groups the collaborators of a Pipeline.
type Deps struct {
	Files        storage.FileStore
	Loader       DocumentLoader
	Limits       LimitsProvider
	Embedder     embedding.Embedder
	Index        vectorindex.Index
	Log          logging.Logger
	IndexTimeout time.Duration
}

func NewPipeline(d Deps) *Pipeline {
	log := d.Log
	if log == nil {
		log = logging.Nop()
	}
	return &Pipeline{
		files:        d.Files,
		loader:       d.Loader,
		limits:       d.Limits,
		embedder:     d.Embedder,
		index:        d.Index,
		log:          log.With("component", "ingest"),
		indexTimeout: d.IndexTimeout,
	}
}

// Ingest marks the file PROCESSING, loads it within the owner's plan,
// embeds every non-blank page and writes the vectors under the file's
// namespace, then marks it SUCCESS. Any failure marks it FAILED and removes
// whatever was written to the namespace. Failures are reported through the
// file status only; the returned error is non-nil when the status itself
// could not be written.
func (p *Pipeline) Ingest(ctx context.Context, file model.File) error {
	log := p.log.With("file_id", file.ID, "key", file.Key)

	if err := p.files.UpdateStatus(ctx, file.ID, model.StatusProcessing, ""); err != nil {
		return fmt.Errorf("mark processing: %w", err)
	}

	chunks, err := p.prepare(ctx, file)
	if err == nil {
		err = p.upsert(ctx, file.ID, chunks)
	}
	if err != nil {
		return p.fail(ctx, log, file, err)
	}

	if err := p.files.UpdateStatus(ctx, file.ID, model.StatusSuccess, ""); err != nil {
		return fmt.Errorf("mark success: %w", err)
	}
	log.Info(ctx, "file ingested", "chunks", len(chunks))
	return nil
}

func (p *Pipeline) prepare(ctx context.Context, file model.File) ([]model.Chunk, error) {
	limits, err := p.limits.Limits(ctx, file.UserID)
	if err != nil {
		return nil, fmt.Errorf("plan limits: %w", err)
	}

	doc, err := p.loader.Load(ctx, file, limits.MaxFileSizeBytes)
	if err != nil {
		return nil, err
	}
	if err := checkQuota(doc, limits); err != nil {
		return nil, err
	}

	var (
		texts []string
		pages []int
	)
	for _, page := range doc.Pages {
		if strings.TrimSpace(page.Text) == "" {
			continue
		}
		texts = append(texts, page.Text)
		pages = append(pages, page.Number)
	}
	if len(texts) == 0 {
		return nil, nil
	}

	vectors, err := p.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return nil, err
	}
	if len(vectors) != len(texts) {
		return nil, fmt.Errorf("got %d vectors for %d pages: %w", len(vectors), len(texts), model.ErrEmbedding)
	}
	dims := p.embedder.Dimensions()
	for i, v := range vectors {
		if len(v) != dims {
			return nil, fmt.Errorf("page %d vector has %d dimensions, want %d: %w", pages[i], len(v), dims, model.ErrEmbedding)
		}
	}
	chunks := make([]model.Chunk, len(texts))
	for i := range texts {
		chunks[i] = model.Chunk{
			ID:        uuid.NewString(),
			Namespace: file.ID,
			Page:      pages[i],
			Text:      texts[i],
			Vector:    vectors[i],
		}
	}
	return chunks, nil
}

func (p *Pipeline) upsert(ctx context.Context, namespace string, chunks []model.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}
	if p.indexTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.indexTimeout)
		defer cancel()
	}
	return p.index.Upsert(ctx, namespace, chunks)
}

// checkQuota compares the loaded document against the plan. Both the page
// count and the byte size must fit. Size is checked first because an
// oversize document is never parsed.
func checkQuota(doc *loader.Document, limits model.PlanLimits) error {
	if limits.MaxFileSizeBytes > 0 && doc.Size > limits.MaxFileSizeBytes {
		return fmt.Errorf("file is %d bytes, %s plan allows %d: %w", doc.Size, limits.Name, limits.MaxFileSizeBytes, model.ErrQuotaExceeded)
	}
	if limits.PagesPerPDF > 0 && len(doc.Pages) > limits.PagesPerPDF {
		return fmt.Errorf("file has %d pages, %s plan allows %d: %w", len(doc.Pages), limits.Name, limits.PagesPerPDF, model.ErrQuotaExceeded)
	}
	return nil
}

func (p *Pipeline) fail(ctx context.Context, log logging.Logger, file model.File, cause error) error {
	log.Error(ctx, "ingest failed", "error", cause, "retryable", model.Retryable(cause))

	if !errors.Is(cause, model.ErrQuotaExceeded) {
		if err := p.index.DeleteNamespace(context.WithoutCancel(ctx), file.ID); err != nil {
			log.Warn(ctx, "namespace cleanup failed", "error", err)
		}
	}
	if err := p.files.UpdateStatus(context.WithoutCancel(ctx), file.ID, model.StatusFailed, cause.Error()); err != nil {
		return fmt.Errorf("mark failed: %w", err)
	}
	return nil
}
